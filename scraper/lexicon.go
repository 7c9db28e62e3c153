package scraper

import (
	"strings"
	"unicode"
)

// Lexicon holds the word tables consumed by the Normalizer and Scorer
type Lexicon struct {
	// ActionTokens are UI button labels that leak into scraped names
	ActionTokens []string
	// RejectPhrases mark page chrome that is never a product name
	RejectPhrases []string
	// Promotional words; a name made only of these is a banner, not a product
	Promotional []string
	// Brands drive brand-search classification in the Scorer
	Brands []string
	// Categories earn category points in the Scorer
	Categories []string
}

// DefaultLexicon returns the tables shared by all grocery platforms
func DefaultLexicon() *Lexicon {
	return &Lexicon{
		ActionTokens: []string{
			"add to cart", "add", "save", "buy", "cart", "notify me", "sold out", "out of stock",
		},
		RejectPhrases: []string{
			"showing results", "search results", "no results for", "welcome to",
			"detect my location", "provide your delivery", "login", "sign up",
		},
		Promotional: []string{
			"coupon", "earn", "get", "sign", "up", "worth", "flat", "offer", "discount",
			"save", "free", "delivery", "welcome", "both", "refer", "friend", "bonus",
			"cashback", "reward", "promo", "deal", "special", "limited", "time", "showing",
			"results", "search", "cart", "login", "location", "empty", "off", "on", "your",
			"first", "order", "orders", "and", "for", "you", "now",
		},
		Brands: []string{
			"amul", "hatsun", "nestle", "heritage", "mother dairy", "country delight",
			"epigamia", "frubon", "yippee", "maggi", "mtr", "knorr", "wai wai", "bambino",
			"britannia",
		},
		Categories: []string{
			"milk", "curd", "dahi", "dairy", "cheese", "butter", "yogurt", "cream",
			"paneer", "ghee",
		},
	}
}

// IsPromotional reports whether every word of name is a promotional word
func (l *Lexicon) IsPromotional(name string) bool {
	words := strings.Fields(strings.ToLower(name))
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		if !contains(l.Promotional, strings.Trim(w, ".,-&'()/%+")) {
			return false
		}
	}
	return true
}

// HasRejectPhrase reports whether the name contains page chrome text.
// Phrases match whole words only, so "login" does not reject "Loginov Honey".
func (l *Lexicon) HasRejectPhrase(name string) bool {
	padded := " " + strings.Join(wordsOf(name), " ") + " "
	for _, phrase := range l.RejectPhrases {
		if strings.Contains(padded, " "+strings.Join(wordsOf(phrase), " ")+" ") {
			return true
		}
	}
	return false
}

// wordsOf lower-cases s and splits it on anything that is not a letter or digit
func wordsOf(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}
