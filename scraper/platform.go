package scraper

import (
	"net/url"
	"regexp"
	"strings"
	"time"
)

// WaitSpec tells the fetcher when a search page has rendered enough content
type WaitSpec struct {
	Attempts        int
	Delay           time.Duration
	MinPriceMarkers int
	MinBodyLength   int
}

// Platform describes one grocery site as data: where to search, how to
// extract, how to score and what delivery defaults to report
type Platform struct {
	Key     string
	Name    string
	Enabled bool

	SearchURL   string
	PlusSpaces  bool
	MaxResults  int
	Timeout     time.Duration
	Wait        WaitSpec
	Retry       RetryPolicy
	Extraction  ExtractorConfig
	Weights     ScoringWeights
	NameMinLen  int
	NameMaxLen  int
	ExtraBrands []string

	DeliveryFee  string
	DeliveryTime string
	Category     string
}

// SearchURLFor builds the search page URL for query
func (p *Platform) SearchURLFor(query string) string {
	escaped := url.QueryEscape(strings.TrimSpace(query))
	if !p.PlusSpaces {
		escaped = strings.ReplaceAll(escaped, "+", "%20")
	}
	return p.SearchURL + escaped
}

// DefaultPlatforms returns the zepto, blinkit and swiggy profiles in registry order
func DefaultPlatforms() []*Platform {
	return []*Platform{zeptoPlatform(), blinkitPlatform(), swiggyPlatform()}
}

func zeptoPlatform() *Platform {
	return &Platform{
		Key:        "zepto",
		Name:       "Zepto",
		Enabled:    true,
		SearchURL:  "https://www.zeptonow.com/search?query=",
		PlusSpaces: true,
		MaxResults: 10,
		Timeout:    60 * time.Second,
		Wait: WaitSpec{
			Attempts:        6,
			Delay:           time.Second,
			MinPriceMarkers: 3,
			MinBodyLength:   10000,
		},
		Retry: DefaultRetryPolicy(),
		Extraction: ExtractorConfig{
			Selectors: []SelectorSet{
				{Container: `[data-testid="product-card"]`, Name: `[data-testid="product-card-name"]`, Price: `[data-testid="product-card-price"]`, Image: "img"},
			},
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`([A-Za-z][^₹]*?)₹\s*(\d+)`),
			},
			MinPrice:      10,
			MaxPrice:      1000,
			StopAfter:     2,
			ContextWindow: 200,
		},
		Weights:      DefaultScoringWeights(),
		NameMinLen:   4,
		NameMaxLen:   100,
		DeliveryFee:  "Free",
		DeliveryTime: "10-15 mins",
		Category:     "Food & Snacks",
	}
}

func blinkitPlatform() *Platform {
	return &Platform{
		Key:        "blinkit",
		Name:       "Blinkit",
		Enabled:    true,
		SearchURL:  "https://blinkit.com/s/?q=",
		MaxResults: 5,
		Timeout:    60 * time.Second,
		Wait: WaitSpec{
			Attempts:        5,
			Delay:           time.Second,
			MinPriceMarkers: 3,
			MinBodyLength:   8000,
		},
		Retry: DefaultRetryPolicy(),
		Extraction: ExtractorConfig{
			Selectors: []SelectorSet{
				{Container: `div[data-testid="plp-product"]`, Name: `[data-testid="plp-product-name"]`, Price: `[data-testid="plp-product-price"]`, Image: "img"},
				{Container: `.Product__UpdatedC`, Name: `.Product__UpdatedTitle`, Price: `.Product__UpdatedPrice`, Image: "img"},
			},
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`(\d+\s*mins[^₹]*?)₹\s*(\d+)[^₹]*?ADD`),
				regexp.MustCompile(`(Hatsun[^₹]*?)₹\s*(\d+)`),
				regexp.MustCompile(`([A-Za-z][^₹]*?)₹\s*(\d+)(?:\s*ADD)?`),
			},
			MinPrice:      5,
			MaxPrice:      1000,
			StopAfter:     2,
			ContextWindow: 150,
		},
		Weights:      DefaultScoringWeights(),
		NameMinLen:   4,
		NameMaxLen:   100,
		DeliveryFee:  "₹20",
		DeliveryTime: "15-20 mins",
		Category:     "Grocery",
	}
}

func swiggyPlatform() *Platform {
	return &Platform{
		Key:        "swiggy",
		Name:       "Swiggy Instamart",
		Enabled:    false,
		SearchURL:  "https://www.swiggy.com/instamart/search?custom_back=true&query=",
		MaxResults: 25,
		Timeout:    60 * time.Second,
		Wait: WaitSpec{
			Attempts:        5,
			Delay:           1500 * time.Millisecond,
			MinPriceMarkers: 3,
			MinBodyLength:   8000,
		},
		Retry: DefaultRetryPolicy(),
		Extraction: ExtractorConfig{
			Selectors: []SelectorSet{
				{Container: `[data-testid*="item"]`, Name: `[data-testid="item-name"]`, Price: `[data-testid="item-price"]`, Image: "img"},
				{Container: `.ItemCard`, Name: `.ItemCard__name`, Price: `.ItemCard__price`, Image: "img"},
				{Container: `[class*="ItemCard"]`, Name: `h3, h4, [class*="name"], [class*="title"]`, Price: `[class*="price"], .rupee`, Image: "img"},
				{Container: `[class*="item-card"]`, Name: `h3, h4, [class*="name"], [class*="title"]`, Price: `[class*="price"], .rupee`, Image: "img"},
			},
			StructuredMaxPrice: 2000,
			Patterns: []*regexp.Regexp{
				regexp.MustCompile(`([A-Za-z][^₹]*?)₹\s*(\d+(?:\.\d+)?)`),
			},
			MinPrice:      5,
			MaxPrice:      2000,
			StopAfter:     2,
			ContextWindow: 200,
		},
		Weights:      DefaultScoringWeights(),
		NameMinLen:   4,
		NameMaxLen:   100,
		DeliveryFee:  "₹25",
		DeliveryTime: "20-30 mins",
		Category:     "Grocery",
	}
}
