package scrapeapp

import (
	"context"

	"go.uber.org/zap"

	"github.com/Vector/vector-trip-scraper/config"
	"github.com/Vector/vector-trip-scraper/models"
	"github.com/Vector/vector-trip-scraper/normalizer"
	"github.com/Vector/vector-trip-scraper/relay"
	"github.com/Vector/vector-trip-scraper/wanderlog"
)

var DefaultKnobs = config.Knobs{
	MaxImages:    relay.DefaultMaxImages,
	RelayWorkers: relay.DefaultWorkers,
	HeaderImages: normalizer.DefaultHeaderImages,
}

// KnobSource supplies the tunables read at the start of every build.
type KnobSource interface {
	Knobs(ctx context.Context, def config.Knobs) (config.Knobs, error)
}

// Pipeline relays the images of an extraction and normalizes it into a
// bundle. Without an uploader images keep their source URLs.
type Pipeline struct {
	uploader relay.Uploader
	knobs    KnobSource
	log      *zap.Logger
}

func NewPipeline(uploader relay.Uploader, knobs KnobSource, log *zap.Logger) *Pipeline {
	return &Pipeline{uploader: uploader, knobs: knobs, log: log}
}

func (p *Pipeline) Build(ctx context.Context, ex *wanderlog.Extraction) models.Bundle {
	k := p.loadKnobs(ctx)
	candidates := CandidateImages(ex)

	var urlMap map[string]string

	if p.uploader == nil {
		urlMap = identityMap(candidates, k.MaxImages)
	} else {
		urlMap = relay.New(p.uploader, p.log.With(zap.String("url", ex.URL)),
			relay.WithMaxImages(k.MaxImages),
			relay.WithWorkers(k.RelayWorkers),
		).RelayAll(ctx, candidates).URLMap
	}

	return normalizer.Normalize(normalizer.Input{
		Extraction:   ex,
		URLMap:       urlMap,
		HeaderImages: k.HeaderImages,
	})
}

func (p *Pipeline) loadKnobs(ctx context.Context) config.Knobs {
	if p.knobs == nil {
		return DefaultKnobs
	}

	k, err := p.knobs.Knobs(ctx, DefaultKnobs)
	if err != nil {
		p.log.Warn("could not load scrape settings, using defaults", zap.Error(err))

		return DefaultKnobs
	}

	return k
}

// CandidateImages lists every image an extraction references, page images
// first, without duplicates.
func CandidateImages(ex *wanderlog.Extraction) []string {
	seen := make(map[string]struct{})

	var ans []string

	add := func(urls []string) {
		for _, u := range urls {
			if _, ok := seen[u]; ok || u == "" {
				continue
			}

			seen[u] = struct{}{}
			ans = append(ans, u)
		}
	}

	add(ex.DOM.Images)

	for _, a := range ex.Data.Activities {
		add(a.Images)
	}

	for _, h := range ex.Data.Hotels {
		add(h.Photos)
	}

	return ans
}

func identityMap(urls []string, limit int) map[string]string {
	ans := make(map[string]string, len(urls))

	for _, u := range urls {
		if len(ans) >= limit {
			break
		}

		if relay.Relayable(u) {
			ans[u] = u
		}
	}

	return ans
}
