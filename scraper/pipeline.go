package scraper

import (
	"context"
	"errors"
	"fmt"
	"time"

	"pricecart/models"

	"go.uber.org/zap"
)

var (
	// ErrUnsupportedPlatform is returned for a platform key that is not registered
	ErrUnsupportedPlatform = errors.New("unsupported platform")
	// ErrPlatformDisabled is returned when scraping a platform that is switched off
	ErrPlatformDisabled = errors.New("platform scraping is disabled")
	// ErrNoProducts means every extraction strategy came back empty
	ErrNoProducts = errors.New("no products found")
	// ErrBotWall means the site served a bot wall instead of results
	ErrBotWall = errors.New("bot wall detected")
)

// Fetcher loads a rendered search page
type Fetcher interface {
	Fetch(ctx context.Context, platform string, url string, wait WaitSpec) (*Page, error)
}

// Runner scrapes one platform for a query
type Runner interface {
	Run(ctx context.Context, query string) ([]models.ScoredProduct, error)
}

// Pipeline is the fetch, extract, normalize and score chain for one platform
type Pipeline struct {
	platform   *Platform
	fetcher    Fetcher
	extractor  *Extractor
	normalizer *Normalizer
	scorer     *Scorer
	bots       *BotDetector
	log        *zap.Logger
}

// NewPipeline builds the pipeline for platform
func NewPipeline(platform *Platform, fetcher Fetcher, lexicon *Lexicon, log *zap.Logger) *Pipeline {
	if lexicon == nil {
		lexicon = DefaultLexicon()
	}
	if log == nil {
		log = zap.NewNop()
	}
	if len(platform.ExtraBrands) > 0 {
		merged := *lexicon
		merged.Brands = append(append([]string{}, lexicon.Brands...), platform.ExtraBrands...)
		lexicon = &merged
	}

	normalizer := NewNormalizer(lexicon, platform.NameMinLen, platform.NameMaxLen)
	return &Pipeline{
		platform:   platform,
		fetcher:    fetcher,
		extractor:  NewExtractor(platform.Extraction, normalizer),
		normalizer: normalizer,
		scorer:     NewScorer(platform.Weights, lexicon),
		bots:       NewBotDetector(),
		log:        log.With(zap.String("platform", platform.Key)),
	}
}

// Run scrapes the platform, retrying when the page fails to load, is a bot
// wall or yields no candidates
func (p *Pipeline) Run(ctx context.Context, query string) ([]models.ScoredProduct, error) {
	searchURL := p.platform.SearchURLFor(query)
	var products []models.ScoredProduct

	err := p.platform.Retry.Do(ctx, p.log, func(attempt int) error {
		start := time.Now()
		page, err := p.fetcher.Fetch(ctx, p.platform.Key, searchURL, p.platform.Wait)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", searchURL, err)
		}

		candidates := p.extractor.Extract(page, p.platform.MaxResults)
		if len(candidates) == 0 {
			if verdict := p.detectWall(page); verdict.IsWall {
				return fmt.Errorf("%w (%s): %s", ErrBotWall, verdict.Kind, verdict.Reason())
			}
			return ErrNoProducts
		}

		products = p.score(candidates, searchURL, query)
		p.log.Debug("extracted candidates",
			zap.Int("attempt", attempt),
			zap.Int("candidates", len(candidates)),
			zap.Int("accepted", len(products)),
			zap.Duration("duration", time.Since(start)),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (p *Pipeline) detectWall(page *Page) BotVerdict {
	doc, err := page.Document()
	if err != nil {
		return BotVerdict{}
	}
	return p.bots.Detect(PageText(doc), page.Title)
}

func (p *Pipeline) score(candidates []models.RawCandidate, searchURL, query string) []models.ScoredProduct {
	built := make([]models.ScoredProduct, 0, len(candidates))
	for _, c := range candidates {
		name := p.normalizer.Normalize(c.RawText)
		if name == "" {
			continue
		}
		var image *string
		if c.Image != "" {
			img := c.Image
			image = &img
		}
		built = append(built, models.ScoredProduct{
			Name:         name,
			Price:        c.Price,
			URL:          searchURL,
			Image:        image,
			InStock:      true,
			DeliveryFee:  p.platform.DeliveryFee,
			DeliveryTime: p.platform.DeliveryTime,
			Category:     p.platform.Category,
		})
	}
	return p.scorer.Score(built, query)
}
