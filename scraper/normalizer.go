package scraper

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const maxNormalizePasses = 16

// Normalizer turns raw scraped text into a display name
type Normalizer struct {
	MinLen int
	MaxLen int

	lexicon  *Lexicon
	glued    *regexp.Regexp
	leading  *regexp.Regexp
	trailing *regexp.Regexp
}

// NewNormalizer creates a normalizer. Non-positive lengths fall back to 4..100.
func NewNormalizer(lexicon *Lexicon, minLen, maxLen int) *Normalizer {
	if lexicon == nil {
		lexicon = DefaultLexicon()
	}
	if minLen <= 0 {
		minLen = 4
	}
	if maxLen <= 0 {
		maxLen = 100
	}

	tokens := make([]string, 0, len(lexicon.ActionTokens))
	for _, t := range lexicon.ActionTokens {
		tokens = append(tokens, strings.ReplaceAll(regexp.QuoteMeta(t), " ", `\s+`))
	}
	actions := strings.Join(tokens, "|")
	noise := `(?:` + actions + `)(?:\s+|$)|\d+(?:\.\d+)?\s*%\s*off\b|\d+\s*mins?\b|₹\s*\d[\d,]*(?:\.\d+)?|rs\.?\s*\d[\d,]*(?:\.\d+)?`

	return &Normalizer{
		MinLen:   minLen,
		MaxLen:   maxLen,
		lexicon:  lexicon,
		glued:    regexp.MustCompile(`^(?:ADD|SAVE|BUY)([A-Z][a-z])`),
		leading:  regexp.MustCompile(`(?i)^(?:` + noise + `)\s*`),
		trailing: regexp.MustCompile(`(?i)(?:^|\s+)(?:` + noise + `)$`),
	}
}

// Normalize cleans raw into a canonical name, or returns "" when the text
// is not a plausible product name. Normalize(Normalize(x)) == Normalize(x).
func (n *Normalizer) Normalize(raw string) string {
	s := raw
	for i := 0; i < maxNormalizePasses; i++ {
		next := n.pass(s)
		if next == s {
			break
		}
		s = next
	}
	if n.pass(s) != s || !n.acceptable(s) {
		return ""
	}
	return s
}

func (n *Normalizer) pass(s string) string {
	s = norm.NFKC.String(s)
	s = strings.Map(keepNameRune, s)
	s = strings.Join(strings.Fields(s), " ")

	s = n.glued.ReplaceAllString(s, "$1")
	for {
		next := n.leading.ReplaceAllString(s, "")
		if next == s {
			break
		}
		s = next
	}
	for {
		next := n.trailing.ReplaceAllString(s, "")
		if next == s {
			break
		}
		s = next
	}

	s = strings.TrimLeftFunc(s, func(r rune) bool { return !unicode.IsLetter(r) })
	s = strings.TrimRight(s, " .-&,/+(")
	return s
}

func (n *Normalizer) acceptable(s string) bool {
	length := utf8.RuneCountInString(s)
	if length < n.MinLen || length > n.MaxLen {
		return false
	}
	if strings.IndexFunc(s, unicode.IsLetter) < 0 {
		return false
	}
	if n.lexicon.HasRejectPhrase(s) || n.lexicon.IsPromotional(s) {
		return false
	}
	return true
}

// keepNameRune maps characters that never appear in product names to a space
func keepNameRune(r rune) rune {
	switch {
	case unicode.IsLetter(r), unicode.IsDigit(r), unicode.IsMark(r):
		return r
	case unicode.IsSpace(r):
		return ' '
	}
	switch r {
	case '.', '-', '&', '\'', '(', ')', '/', ',', '%', '+', '₹':
		return r
	}
	return ' '
}
