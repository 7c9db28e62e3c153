package scraper

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"pricecart/models"

	"github.com/PuerkitoBio/goquery"
)

// Page is a rendered search page
type Page struct {
	URL   string
	Title string
	HTML  string
}

// Document parses the page HTML with page chrome scripts removed
func (p *Page) Document() (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(p.HTML))
	if err != nil {
		return nil, fmt.Errorf("parse page html: %w", err)
	}
	doc.Find("script, style, noscript, template").Remove()
	return doc, nil
}

// PageText returns the visible text of the body with one line per text node
func PageText(doc *goquery.Document) string {
	var b strings.Builder
	collectText(doc.Find("body"), &b)
	return b.String()
}

func collectText(s *goquery.Selection, b *strings.Builder) {
	s.Contents().Each(func(_ int, c *goquery.Selection) {
		if goquery.NodeName(c) == "#text" {
			if text := strings.TrimSpace(c.Text()); text != "" {
				b.WriteString(text)
				b.WriteByte('\n')
			}
			return
		}
		collectText(c, b)
	})
}

// SelectorSet locates products inside structured markup
type SelectorSet struct {
	Container string
	Name      string
	Price     string
	Image     string
}

// ExtractorConfig holds the per-platform extraction rules
type ExtractorConfig struct {
	Selectors          []SelectorSet
	StructuredMaxPrice float64
	Patterns           []*regexp.Regexp
	MinPrice           float64
	MaxPrice           float64
	StopAfter          int
	ContextWindow      int
}

// Extractor turns a rendered page into raw name/price candidates
type Extractor struct {
	cfg        ExtractorConfig
	normalizer *Normalizer
	prices     *PriceParser
}

// NewExtractor creates an extractor. Zero band values default to [5, 2000].
func NewExtractor(cfg ExtractorConfig, normalizer *Normalizer) *Extractor {
	if cfg.MinPrice <= 0 {
		cfg.MinPrice = 5
	}
	if cfg.MaxPrice <= 0 {
		cfg.MaxPrice = 2000
	}
	if cfg.StructuredMaxPrice <= 0 {
		cfg.StructuredMaxPrice = cfg.MaxPrice + 1
	}
	if cfg.StopAfter <= 0 {
		cfg.StopAfter = 2
	}
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = 200
	}
	if normalizer == nil {
		normalizer = NewNormalizer(nil, 0, 0)
	}
	return &Extractor{cfg: cfg, normalizer: normalizer, prices: NewPriceParser()}
}

// candidateSet collects candidates for one strategy pass, dropping names that
// normalize to nothing and repeats of an already seen name
type candidateSet struct {
	normalizer *Normalizer
	seen       map[string]bool
	items      []models.RawCandidate
}

func (e *Extractor) newSet() *candidateSet {
	return &candidateSet{normalizer: e.normalizer, seen: make(map[string]bool)}
}

func (cs *candidateSet) add(raw string, price float64, image string) bool {
	key := strings.ToLower(cs.normalizer.Normalize(raw))
	if key == "" || cs.seen[key] {
		return false
	}
	cs.seen[key] = true
	cs.items = append(cs.items, models.RawCandidate{RawText: strings.TrimSpace(raw), Price: price, Image: image})
	return true
}

func (e *Extractor) inBand(price float64) bool {
	return price > 0 && price >= e.cfg.MinPrice && price <= e.cfg.MaxPrice
}

// Extract runs the structured, regex and generic strategies in order and
// returns the candidates of the first one that finds anything
func (e *Extractor) Extract(page *Page, maxResults int) []models.RawCandidate {
	if page == nil || maxResults <= 0 {
		return nil
	}
	doc, err := page.Document()
	if err != nil {
		return nil
	}

	if found := e.structured(doc, maxResults); len(found) > 0 {
		return found
	}

	text := PageText(doc)
	if found := e.regexMining(text, maxResults); len(found) > 0 {
		return found
	}
	return e.genericScan(text, maxResults)
}

func (e *Extractor) structured(doc *goquery.Document, maxResults int) []models.RawCandidate {
	for _, sel := range e.cfg.Selectors {
		set := e.newSet()
		doc.Find(sel.Container).EachWithBreak(func(_ int, c *goquery.Selection) bool {
			name := strings.TrimSpace(c.Find(sel.Name).First().Text())
			if name == "" {
				return true
			}
			priceText := c.Text()
			if sel.Price != "" {
				priceText = c.Find(sel.Price).First().Text()
			}
			price, err := e.prices.ParsePrice(priceText)
			if err != nil || price >= e.cfg.StructuredMaxPrice || !e.inBand(price) {
				return true
			}
			image := ""
			if sel.Image != "" {
				image, _ = c.Find(sel.Image).First().Attr("src")
			}
			set.add(name, price, image)
			return len(set.items) < maxResults
		})
		if len(set.items) > 0 {
			return set.items
		}
	}
	return nil
}

func (e *Extractor) regexMining(text string, maxResults int) []models.RawCandidate {
	set := e.newSet()
	for _, pattern := range e.cfg.Patterns {
		for _, m := range pattern.FindAllStringSubmatch(text, -1) {
			if len(m) < 3 {
				continue
			}
			price, err := e.prices.ParseAmount(m[2])
			if err != nil || !e.inBand(price) {
				continue
			}
			set.add(e.lastNameLine(m[1]), price, "")
			if len(set.items) >= maxResults {
				return set.items
			}
		}
		if len(set.items) >= e.cfg.StopAfter {
			break
		}
	}
	return set.items
}

func (e *Extractor) genericScan(text string, maxResults int) []models.RawCandidate {
	set := e.newSet()
	prev := 0
	for _, m := range e.prices.FindAll(text) {
		if !e.inBand(m.Value) {
			prev = m.End
			continue
		}
		window := lastRunes(text[prev:m.Start], e.cfg.ContextWindow)
		prev = m.End
		set.add(e.lastNameLine(window), m.Value, "")
		if len(set.items) >= maxResults {
			break
		}
	}
	return set.items
}

// lastNameLine picks the closest line before a price that still reads as a
// name once normalized
func (e *Extractor) lastNameLine(raw string) string {
	lines := strings.Split(raw, "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if e.normalizer.Normalize(lines[i]) != "" {
			return lines[i]
		}
	}
	return ""
}

func lastRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[len(runes)-n:])
}
