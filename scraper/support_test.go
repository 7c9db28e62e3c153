package scraper

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceParser(t *testing.T) {
	pp := NewPriceParser()

	tests := []struct {
		in   string
		want float64
	}{
		{"₹26", 26},
		{"MRP ₹ 1,299", 1299},
		{"Rs. 45.50", 45.5},
		{"INR 1,00,000", 100000},
		{"now ₹68 ₹72", 68},
	}
	for _, tt := range tests {
		got, err := pp.ParsePrice(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := pp.ParsePrice("flowers 20")
	assert.Error(t, err)
	_, err = pp.ParsePrice("Out of stock")
	assert.Error(t, err)
}

func TestPriceParserFindAll(t *testing.T) {
	pp := NewPriceParser()
	text := "Amul Milk ₹26 Heritage Curd ₹ 1,250"

	matches := pp.FindAll(text)

	require.Len(t, matches, 2)
	assert.Equal(t, 26.0, matches[0].Value)
	assert.Equal(t, 1250.0, matches[1].Value)
	assert.Equal(t, "₹26", text[matches[0].Start:matches[0].End])
}

func TestBotDetector(t *testing.T) {
	bd := NewBotDetector()

	wall := bd.Detect("Checking your browser before accessing. Please complete the captcha.", "Just a moment")
	assert.True(t, wall.IsWall)
	assert.Equal(t, "captcha", wall.Kind)
	assert.NotEmpty(t, wall.Reason())

	page := strings.Repeat("Amul Milk ₹26 ADD ", 100) + " protected by cloudflare"
	assert.False(t, bd.Detect(page, "Search results").IsWall)

	assert.False(t, bd.Detect("Amul Taaza Toned Milk ₹27", "milk").IsWall)
}

func TestSearchURLFor(t *testing.T) {
	assert.Equal(t, "https://www.zeptonow.com/search?query=amul+toned+milk", zeptoPlatform().SearchURLFor(" amul toned milk "))
	assert.Equal(t, "https://blinkit.com/s/?q=amul%20toned%20milk", blinkitPlatform().SearchURLFor("amul toned milk"))
	assert.Equal(t, "https://blinkit.com/s/?q=salt%20%26%20pepper", blinkitPlatform().SearchURLFor("salt & pepper"))
	assert.Equal(t, "https://www.swiggy.com/instamart/search?custom_back=true&query=curd", swiggyPlatform().SearchURLFor("curd"))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(DefaultPlatforms(), map[string]bool{"swiggy": true, "zepto": false})

	assert.Equal(t, []string{"zepto", "blinkit", "swiggy"}, r.Keys())
	assert.Equal(t, []string{"blinkit", "swiggy"}, r.EnabledKeys())

	require.NoError(t, r.SetEnabled("Zepto", true))
	assert.True(t, r.IsEnabled("zepto"))
	assert.ErrorIs(t, r.SetEnabled("bigbasket", true), ErrUnsupportedPlatform)

	status := r.Status()
	require.Len(t, status, 3)
	assert.Equal(t, "Swiggy Instamart", status[2].Name)
	assert.True(t, status[2].Enabled)
}

func TestDefaultRegistryDisablesSwiggy(t *testing.T) {
	r := NewRegistry(DefaultPlatforms(), nil)
	assert.Equal(t, []string{"zepto", "blinkit"}, r.EnabledKeys())
}

func TestRetryPolicy(t *testing.T) {
	calls := 0
	err := RetryPolicy{MaxAttempts: 3}.Do(context.Background(), nil, func(int) error {
		calls++
		if calls < 3 {
			return errors.New("flaky")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = RetryPolicy{MaxAttempts: 3}.Do(context.Background(), nil, func(int) error {
		calls++
		return context.DeadlineExceeded
	})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = RetryPolicy{MaxAttempts: 3, Delay: time.Minute}.Do(ctx, nil, func(int) error {
		return errors.New("down")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
