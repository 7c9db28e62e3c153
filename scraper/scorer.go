package scraper

import (
	"sort"
	"strings"

	"pricecart/models"
)

// ScoringWeights are the per-platform relevancy parameters
type ScoringWeights struct {
	Primary     int
	Secondary   int
	Phrase      int
	Category    int
	FallbackMin int
	ResultCap   int
	MinTokenLen int
}

// DefaultScoringWeights returns the weights used by every platform unless overridden
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{
		Primary:     10,
		Secondary:   5,
		Phrase:      8,
		Category:    2,
		FallbackMin: 10,
		ResultCap:   2,
		MinTokenLen: 3,
	}
}

// Scorer ranks and filters candidates against a query
type Scorer struct {
	weights    ScoringWeights
	brands     []string
	categories []string
}

// NewScorer creates a scorer over the brand and category tables of lexicon
func NewScorer(weights ScoringWeights, lexicon *Lexicon) *Scorer {
	if lexicon == nil {
		lexicon = DefaultLexicon()
	}
	return &Scorer{
		weights:    weights,
		brands:     lexicon.Brands,
		categories: lexicon.Categories,
	}
}

// QueryTerms is a tokenized search query
type QueryTerms struct {
	Phrase    string
	Primary   string
	Secondary []string
}

// ParseQuery lower-cases and tokenizes query, dropping short tokens
func (s *Scorer) ParseQuery(query string) QueryTerms {
	phrase := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	terms := QueryTerms{Phrase: phrase}

	for _, token := range strings.Fields(phrase) {
		if len([]rune(token)) < s.weights.MinTokenLen {
			continue
		}
		if terms.Primary == "" {
			terms.Primary = token
			continue
		}
		terms.Secondary = append(terms.Secondary, token)
	}
	return terms
}

// IsBrandSearch reports whether the primary token names a known brand,
// matching by substring in either direction
func (s *Scorer) IsBrandSearch(terms QueryTerms) bool {
	if terms.Primary == "" {
		return false
	}
	for _, brand := range s.brands {
		if strings.Contains(brand, terms.Primary) || strings.Contains(terms.Primary, brand) {
			return true
		}
	}
	return false
}

type scored struct {
	product    models.ScoredProduct
	score      int
	hasPrimary bool
}

func (s *Scorer) evaluate(p models.ScoredProduct, terms QueryTerms) scored {
	name := strings.ToLower(p.Name)
	r := scored{product: p}

	if terms.Primary != "" && strings.Contains(name, terms.Primary) {
		r.score += s.weights.Primary
		r.hasPrimary = true
	}
	for _, token := range terms.Secondary {
		if strings.Contains(name, token) {
			r.score += s.weights.Secondary
		}
	}
	if terms.Phrase != "" && strings.Contains(name, terms.Phrase) {
		r.score += s.weights.Phrase
	}
	for _, keyword := range s.categories {
		if strings.Contains(name, keyword) {
			r.score += s.weights.Category
		}
	}
	return r
}

// Score returns the accepted candidates ranked by relevancy and capped to
// the result limit. Brand searches only accept names that mention the brand
// unless nothing does, in which case candidates scoring at least
// FallbackMin are let through. Other searches accept any candidate that
// scored, category points included.
func (s *Scorer) Score(candidates []models.ScoredProduct, query string) []models.ScoredProduct {
	terms := s.ParseQuery(query)
	brandSearch := s.IsBrandSearch(terms)

	all := make([]scored, 0, len(candidates))
	for _, c := range candidates {
		all = append(all, s.evaluate(c, terms))
	}

	accepted := make([]scored, 0, len(all))
	for _, r := range all {
		switch {
		case terms.Primary == "":
			accepted = append(accepted, r)
		case brandSearch:
			if r.hasPrimary {
				accepted = append(accepted, r)
			}
		default:
			if r.score > 0 {
				accepted = append(accepted, r)
			}
		}
	}

	if brandSearch && len(accepted) == 0 {
		for _, r := range all {
			if r.score >= s.weights.FallbackMin {
				accepted = append(accepted, r)
			}
		}
	}

	sort.SliceStable(accepted, func(i, j int) bool {
		return accepted[i].score > accepted[j].score
	})

	if s.weights.ResultCap > 0 && len(accepted) > s.weights.ResultCap {
		accepted = accepted[:s.weights.ResultCap]
	}

	out := make([]models.ScoredProduct, 0, len(accepted))
	for _, r := range accepted {
		p := r.product
		p.RelevancyScore = r.score
		out = append(out, p)
	}
	return out
}
