package services

import (
	"strconv"
	"testing"
	"time"

	"pricecart/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMerger(t *testing.T, strategy string) *Merger {
	t.Helper()
	m, err := NewMerger(strategy, 0.7)
	require.NoError(t, err)
	n := 0
	m.newID = func() string { n++; return "p" + strconv.Itoa(n) }
	m.now = func() time.Time { return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC) }
	return m
}

func product(name string, price float64) models.ScoredProduct {
	return models.ScoredProduct{Name: name, Price: price, InStock: true, Category: "Dairy"}
}

func TestMergeKey(t *testing.T) {
	assert.Equal(t, "amul taaza milk 500 ml", MergeKey("  Amul Taaza  Milk (500 ml) "))
}

func TestNewMerger_Strategy(t *testing.T) {
	m, err := NewMerger("", 0)
	require.NoError(t, err)
	assert.Equal(t, MergeExact, m.strategy)
	assert.Equal(t, DefaultFuzzyThreshold, m.threshold)

	_, err = NewMerger("phonetic", 0.7)
	assert.Error(t, err)
}

func TestMerge_SameProductTwoPlatforms(t *testing.T) {
	m := newTestMerger(t, MergeExact)

	merged := m.Merge([]models.PlatformResult{
		models.NewPlatformSuccess("zepto", []models.ScoredProduct{product("Amul Taaza Milk (500 ml)", 29)}),
		models.NewPlatformSuccess("blinkit", []models.ScoredProduct{product("amul taaza milk 500 ml", 27)}),
	})

	require.Len(t, merged, 1)
	p := merged[0]
	assert.Equal(t, "p1", p.ID)
	assert.Equal(t, "Amul Taaza Milk (500 ml)", p.Name)
	require.Len(t, p.Prices, 2)

	// merge keeps first-seen order; sorting happens on read
	assert.Equal(t, "zepto", p.Prices[0].Platform)
	p.SortPrices()
	assert.Equal(t, "blinkit", p.Prices[0].Platform)
	assert.Equal(t, 27.0, p.Prices[0].Price)
	assert.Equal(t, 29.0, p.Prices[1].Price)
}

func TestMerge_OnePricePerPlatform(t *testing.T) {
	m := newTestMerger(t, MergeExact)

	merged := m.Merge([]models.PlatformResult{
		models.NewPlatformSuccess("zepto", []models.ScoredProduct{
			product("Amul Milk", 29),
			product("AMUL MILK", 31),
		}),
	})

	require.Len(t, merged, 1)
	require.Len(t, merged[0].Prices, 1)
	assert.Equal(t, 31.0, merged[0].Prices[0].Price)
}

func TestMerge_SkipsFailuresAndKeepsOrder(t *testing.T) {
	m := newTestMerger(t, MergeExact)

	merged := m.Merge([]models.PlatformResult{
		models.NewPlatformFailure("swiggy", "no products found"),
		models.NewPlatformSuccess("zepto", []models.ScoredProduct{product("Bread", 40), product("Butter", 55)}),
		models.NewPlatformSuccess("blinkit", []models.ScoredProduct{product("Eggs", 80), product("Bread", 38)}),
	})

	require.Len(t, merged, 3)
	assert.Equal(t, []string{"Bread", "Butter", "Eggs"}, []string{merged[0].Name, merged[1].Name, merged[2].Name})
	assert.Len(t, merged[0].Prices, 2)
}

func TestMerge_Fuzzy(t *testing.T) {
	exact := newTestMerger(t, MergeExact)
	fuzzy := newTestMerger(t, MergeFuzzy)

	results := []models.PlatformResult{
		models.NewPlatformSuccess("zepto", []models.ScoredProduct{product("Amul Taaza Toned Milk", 29)}),
		models.NewPlatformSuccess("blinkit", []models.ScoredProduct{
			product("Amul Taaza Toned Milk 500ml", 28),
			product("Mother Dairy Curd", 45),
		}),
	}

	assert.Len(t, exact.Merge(results), 3)

	merged := fuzzy.Merge(results)
	require.Len(t, merged, 2)
	assert.Len(t, merged[0].Prices, 2)
	assert.Equal(t, "Mother Dairy Curd", merged[1].Name)
}

func TestMerge_FirstImageWins(t *testing.T) {
	m := newTestMerger(t, MergeExact)
	img := "https://cdn.example/milk.png"

	withImage := product("Milk", 29)
	withImage.Image = &img

	merged := m.Merge([]models.PlatformResult{
		models.NewPlatformSuccess("zepto", []models.ScoredProduct{product("Milk", 30)}),
		models.NewPlatformSuccess("blinkit", []models.ScoredProduct{withImage}),
	})
	require.Len(t, merged, 1)
	require.NotNil(t, merged[0].ImageURL)
	assert.Equal(t, img, *merged[0].ImageURL)
}

func TestSimilarity(t *testing.T) {
	assert.Equal(t, 1.0, Similarity("", ""))
	assert.Equal(t, 1.0, Similarity("milk", "milk"))
	assert.InDelta(t, 0.75, Similarity("milk", "silk"), 0.0001)
	assert.Less(t, Similarity("milk", "bread"), DefaultFuzzyThreshold)
}
