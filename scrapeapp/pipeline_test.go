package scrapeapp

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Vector/vector-trip-scraper/config"
	"github.com/Vector/vector-trip-scraper/models"
	"github.com/Vector/vector-trip-scraper/wanderlog"
)

type fakeUploader struct {
	mu    sync.Mutex
	calls []string
}

func (f *fakeUploader) Upload(_ context.Context, u string) (string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, u)
	f.mu.Unlock()

	if strings.Contains(u, "broken") {
		return "", errors.New("relay refused")
	}

	return strings.Replace(u, "https://src/", "https://cdn/", 1), nil
}

type fixedKnobs struct {
	k   config.Knobs
	err error
}

func (f fixedKnobs) Knobs(context.Context, config.Knobs) (config.Knobs, error) {
	return f.k, f.err
}

func testExtraction() *wanderlog.Extraction {
	return &wanderlog.Extraction{
		URL: "https://wanderlog.com/view/abc/trip",
		DOM: wanderlog.DOMResult{Images: []string{
			"https://src/hero.jpg",
			"data:image/png;base64,AAAA",
			"https://src/broken.jpg",
		}},
		Data: wanderlog.StructuredData{
			Activities: []models.Activity{
				{Key: "place:p1", Name: "Lake", Images: []string{"https://src/lake.jpg", "https://src/hero.jpg"}},
			},
			Hotels: []models.Hotel{{Name: "Inn", Photos: []string{"https://src/room.jpg"}}},
		},
	}
}

func TestCandidateImages(t *testing.T) {
	got := CandidateImages(testExtraction())

	assert.Equal(t, []string{
		"https://src/hero.jpg",
		"data:image/png;base64,AAAA",
		"https://src/broken.jpg",
		"https://src/lake.jpg",
		"https://src/room.jpg",
	}, got)
}

func TestPipelineBuild(t *testing.T) {
	tests := []struct {
		name      string
		uploader  *fakeUploader
		knobs     KnobSource
		wantURLs  []string
		wantCalls int
	}{
		{
			name:     "[success scenario] - relayed with partial failure",
			uploader: &fakeUploader{},
			knobs:    fixedKnobs{k: config.Knobs{MaxImages: 10, RelayWorkers: 2, HeaderImages: 1}},
			wantURLs: []string{
				"https://cdn/hero.jpg",
				"https://cdn/lake.jpg",
				"https://cdn/room.jpg",
			},
			wantCalls: 4,
		},
		{
			name:      "[success scenario] - knob errors fall back to defaults",
			uploader:  &fakeUploader{},
			knobs:     fixedKnobs{err: errors.New("db down")},
			wantURLs:  []string{"https://cdn/hero.jpg", "https://cdn/lake.jpg", "https://cdn/room.jpg"},
			wantCalls: 4,
		},
		{
			name:      "[success scenario] - image cap",
			uploader:  &fakeUploader{},
			knobs:     fixedKnobs{k: config.Knobs{MaxImages: 1, RelayWorkers: 1, HeaderImages: 1}},
			wantURLs:  []string{"https://cdn/hero.jpg", "https://src/lake.jpg", "https://src/room.jpg"},
			wantCalls: 1,
		},
		{
			name: "[success scenario] - no uploader keeps source urls",
			// without a relay every page image qualifies for the header
			wantURLs: []string{
				"https://src/hero.jpg",
				"https://src/broken.jpg",
				"https://src/lake.jpg",
				"https://src/room.jpg",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p *Pipeline
			if tt.uploader != nil {
				p = NewPipeline(tt.uploader, tt.knobs, zap.NewNop())
			} else {
				p = NewPipeline(nil, tt.knobs, zap.NewNop())
			}

			b := p.Build(context.Background(), testExtraction())

			var urls []string
			for _, img := range b.Images {
				urls = append(urls, img.URL)
			}

			assert.Equal(t, tt.wantURLs, urls)

			if tt.uploader != nil {
				assert.Len(t, tt.uploader.calls, tt.wantCalls)
			}

			require.NotEmpty(t, b.Images)
			assert.Equal(t, models.SectionHeader, b.Images[0].Section)
		})
	}
}

func TestValidateURL(t *testing.T) {
	got, err := ValidateURL("  https://wanderlog.com/view/abc/trip ")
	require.NoError(t, err)
	assert.Equal(t, "https://wanderlog.com/view/abc/trip", got)

	_, err = ValidateURL("https://www.wanderlog.com/view/abc/trip")
	assert.NoError(t, err)

	_, err = ValidateURL("https://wanderlog.com.evil.example/x")
	assert.ErrorIs(t, err, ErrInvalidURL)

	_, err = ValidateURL("wanderlog.com/view/abc")
	assert.ErrorIs(t, err, ErrInvalidURL)
}
