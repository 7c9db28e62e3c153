package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertPriceReplacesSamePlatform(t *testing.T) {
	p := MergedProduct{Name: "Amul Toned Milk 500ml"}

	p.UpsertPrice(PricePoint{Platform: "zepto", Price: 28})
	p.UpsertPrice(PricePoint{Platform: "blinkit", Price: 27})
	p.UpsertPrice(PricePoint{Platform: "zepto", Price: 26})

	require.Len(t, p.Prices, 2)
	assert.Equal(t, "zepto", p.Prices[0].Platform)
	assert.Equal(t, 26.0, p.Prices[0].Price)
}

func TestSortPricesAscending(t *testing.T) {
	p := MergedProduct{Prices: []PricePoint{
		{Platform: "zepto", Price: 30},
		{Platform: "blinkit", Price: 26},
		{Platform: "swiggy", Price: 28},
	}}

	p.SortPrices()

	assert.Equal(t, []float64{26, 28, 30}, []float64{p.Prices[0].Price, p.Prices[1].Price, p.Prices[2].Price})
	require.NotNil(t, p.LowestPrice())
	assert.Equal(t, "blinkit", p.LowestPrice().Platform)
}

func TestPlatformFailureCarriesMessage(t *testing.T) {
	r := NewPlatformFailure("swiggy", "platform scraping is disabled")

	assert.False(t, r.Success)
	assert.Empty(t, r.Products)
	assert.Equal(t, "platform scraping is disabled", r.ErrorMessage())
	assert.Equal(t, "", NewPlatformSuccess("zepto", nil).ErrorMessage())
}

func TestScrapeTaskLifecycle(t *testing.T) {
	task := NewScrapeTask("milk")
	assert.Equal(t, TaskStatusQueued, task.CurrentStatus())
	assert.False(t, task.IsCompleted())

	task.Start()
	assert.Equal(t, TaskStatusProcessing, task.CurrentStatus())

	task.Complete(&LiveScrapeResult{Success: true, Message: "Successfully scraped and stored 1 products"})
	view := task.View()
	assert.Equal(t, TaskStatusCompleted, view.Status)
	assert.True(t, task.IsCompleted())
	require.NotNil(t, view.CompletedAt)
	assert.Equal(t, "Successfully scraped and stored 1 products", view.Message)
}
