package services

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"pricecart/models"

	"github.com/antzucaro/matchr"
	"github.com/google/uuid"
)

// Merge strategies
const (
	MergeExact = "exact"
	MergeFuzzy = "fuzzy"
)

// DefaultFuzzyThreshold is the minimum name similarity for fuzzy grouping
const DefaultFuzzyThreshold = 0.7

// Merger groups platform results into one product per real-world item
type Merger struct {
	strategy  string
	threshold float64
	now       func() time.Time
	newID     func() string
}

// NewMerger creates a merger for the given strategy
func NewMerger(strategy string, threshold float64) (*Merger, error) {
	strategy = strings.ToLower(strings.TrimSpace(strategy))
	if strategy == "" {
		strategy = MergeExact
	}
	if strategy != MergeExact && strategy != MergeFuzzy {
		return nil, fmt.Errorf("unknown merge strategy %q", strategy)
	}
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultFuzzyThreshold
	}
	return &Merger{
		strategy:  strategy,
		threshold: threshold,
		now:       time.Now,
		newID:     uuid.NewString,
	}, nil
}

// MergeKey is the grouping key of a product name: lower case, parentheses
// removed and whitespace collapsed
func MergeKey(name string) string {
	name = strings.ToLower(name)
	name = strings.NewReplacer("(", "", ")", "").Replace(name)
	return strings.Join(strings.Fields(name), " ")
}

type group struct {
	key     string
	product *models.MergedProduct
}

// Merge groups the products of the successful results. Groups keep the order
// they were first seen in and a platform never has two prices in one group.
func (m *Merger) Merge(results []models.PlatformResult) []models.MergedProduct {
	var groups []*group
	byKey := make(map[string]*group)

	for _, result := range results {
		if !result.Success {
			continue
		}
		for _, sp := range result.Products {
			key := MergeKey(sp.Name)
			if key == "" {
				continue
			}

			g := byKey[key]
			if g == nil && m.strategy == MergeFuzzy {
				g = m.closest(groups, key)
			}
			if g == nil {
				g = &group{key: key, product: m.newProduct(sp)}
				groups = append(groups, g)
				byKey[key] = g
			}
			if g.product.ImageURL == nil && sp.Image != nil {
				g.product.ImageURL = sp.Image
			}

			g.product.UpsertPrice(models.PricePoint{
				Platform:      result.Platform,
				Price:         sp.Price,
				OriginalPrice: sp.OriginalPrice,
				URL:           sp.URL,
				InStock:       sp.InStock,
				DeliveryFee:   sp.DeliveryFee,
				DeliveryTime:  sp.DeliveryTime,
				ScrapedAt:     result.ScrapedAt,
			})
		}
	}

	merged := make([]models.MergedProduct, 0, len(groups))
	for _, g := range groups {
		merged = append(merged, *g.product)
	}
	return merged
}

func (m *Merger) newProduct(sp models.ScoredProduct) *models.MergedProduct {
	category := sp.Category
	if category == "" {
		category = "General"
	}
	return &models.MergedProduct{
		ID:        m.newID(),
		Name:      sp.Name,
		Category:  category,
		ImageURL:  sp.Image,
		CreatedAt: m.now().UTC(),
		Prices:    []models.PricePoint{},
	}
}

// closest returns the most similar group at or above the threshold, first seen wins ties
func (m *Merger) closest(groups []*group, key string) *group {
	var best *group
	bestScore := 0.0
	for _, g := range groups {
		score := Similarity(g.key, key)
		if score >= m.threshold && score > bestScore {
			best, bestScore = g, score
		}
	}
	return best
}

// Similarity is 1 - levenshtein(a, b) / max(len(a), len(b)) over runes
func Similarity(a, b string) float64 {
	maxLen := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if maxLen == 0 {
		return 1
	}
	return 1 - float64(matchr.Levenshtein(a, b))/float64(maxLen)
}
