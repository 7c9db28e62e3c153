package scraper

import (
	"regexp"
	"strings"
)

// BotVerdict is the outcome of inspecting a rendered page for a bot wall
type BotVerdict struct {
	IsWall  bool
	Kind    string
	Score   float64
	Reasons []string
}

// Reason joins the matched indicators
func (v BotVerdict) Reason() string {
	return strings.Join(v.Reasons, "; ")
}

// BotDetector detects bot walls, CAPTCHAs and error pages served instead of search results
type BotDetector struct {
	botPatterns     []*regexp.Regexp
	captchaPatterns []*regexp.Regexp
	blockPatterns   []*regexp.Regexp
}

// NewBotDetector creates a new bot detector
func NewBotDetector() *BotDetector {
	return &BotDetector{
		botPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)access denied`),
			regexp.MustCompile(`(?i)bot detected`),
			regexp.MustCompile(`(?i)please verify you are human`),
			regexp.MustCompile(`(?i)security check`),
			regexp.MustCompile(`(?i)cloudflare`),
			regexp.MustCompile(`(?i)akamai`),
			regexp.MustCompile(`(?i)too many requests`),
			regexp.MustCompile(`(?i)checking your browser`),
			regexp.MustCompile(`(?i)ddos protection`),
			regexp.MustCompile(`(?i)unusual traffic`),
		},
		captchaPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)captcha`),
			regexp.MustCompile(`(?i)verify you are human`),
			regexp.MustCompile(`(?i)select all images`),
			regexp.MustCompile(`(?i)click the checkbox`),
		},
		blockPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)403 forbidden`),
			regexp.MustCompile(`(?i)429 too many requests`),
			regexp.MustCompile(`(?i)503 service unavailable`),
			regexp.MustCompile(`(?i)site temporarily unavailable`),
			regexp.MustCompile(`(?i)we are under maintenance`),
		},
	}
}

// Detect scores the page text and title. A single weak indicator on a full
// page is not enough to call it a wall.
func (bd *BotDetector) Detect(pageText, pageTitle string) BotVerdict {
	content := pageText + " " + pageTitle
	v := BotVerdict{Kind: "bot_wall"}

	for _, pattern := range bd.botPatterns {
		if pattern.MatchString(content) {
			v.Score += 0.3
			v.Reasons = append(v.Reasons, pattern.String())
		}
	}

	captcha := false
	for _, pattern := range bd.captchaPatterns {
		if pattern.MatchString(content) {
			v.Score += 0.5
			v.Reasons = append(v.Reasons, "captcha: "+pattern.String())
			captcha = true
		}
	}

	httpError := false
	for _, pattern := range bd.blockPatterns {
		if pattern.MatchString(content) {
			v.Score += 0.4
			v.Reasons = append(v.Reasons, "http error: "+pattern.String())
			httpError = true
		}
	}

	if len(strings.TrimSpace(pageText)) < 1000 && v.Score > 0 {
		v.Score += 0.2
		v.Reasons = append(v.Reasons, "very short content with bot indicators")
	}

	if v.Score > 1.0 {
		v.Score = 1.0
	}

	switch {
	case captcha:
		v.Kind = "captcha"
	case httpError:
		v.Kind = "http_error"
	}

	v.IsWall = v.Score > 0.3
	return v
}
