package scraper

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// PriceMatch is one currency-marked amount found in text
type PriceMatch struct {
	Value float64
	Text  string
	Start int
	End   int
}

// PriceParser reads rupee amounts in the formats grocery sites render:
// ₹26, ₹ 1,299, Rs. 45.50, INR 1,00,000
type PriceParser struct {
	rupee *regexp.Regexp
	bare  *regexp.Regexp
}

// NewPriceParser creates a rupee price parser
func NewPriceParser() *PriceParser {
	return &PriceParser{
		rupee: regexp.MustCompile(`(?i)(?:₹|\brs\.?|\binr)\s*([0-9]{1,3}(?:,[0-9]{2,3})+(?:\.[0-9]{1,2})?|[0-9]+(?:\.[0-9]{1,2})?)`),
		bare:  regexp.MustCompile(`([0-9]{1,3}(?:,[0-9]{2,3})+(?:\.[0-9]{1,2})?|[0-9]+(?:\.[0-9]{1,2})?)`),
	}
}

// ParsePrice returns the first currency-marked amount in text
func (pp *PriceParser) ParsePrice(text string) (float64, error) {
	m := pp.rupee.FindStringSubmatch(text)
	if m == nil {
		return 0, fmt.Errorf("no rupee price found in: %q", strings.TrimSpace(text))
	}
	return parseAmount(m[1])
}

// ParseAmount parses a bare number such as a regex capture group
func (pp *PriceParser) ParseAmount(text string) (float64, error) {
	m := pp.bare.FindString(text)
	if m == "" {
		return 0, fmt.Errorf("no amount found in: %q", strings.TrimSpace(text))
	}
	return parseAmount(m)
}

// FindAll returns every currency-marked amount in text, in order
func (pp *PriceParser) FindAll(text string) []PriceMatch {
	var out []PriceMatch
	for _, idx := range pp.rupee.FindAllStringSubmatchIndex(text, -1) {
		value, err := parseAmount(text[idx[2]:idx[3]])
		if err != nil {
			continue
		}
		out = append(out, PriceMatch{
			Value: value,
			Text:  text[idx[0]:idx[1]],
			Start: idx[0],
			End:   idx[1],
		})
	}
	return out
}

func parseAmount(s string) (float64, error) {
	value, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	return value, nil
}
