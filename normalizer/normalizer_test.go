package normalizer_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vector/vector-trip-scraper/models"
	"github.com/Vector/vector-trip-scraper/normalizer"
	"github.com/Vector/vector-trip-scraper/wanderlog"
)

func relayed(u string) string {
	return "https://storage.example.com/" + u[len("https://img.example.com/"):]
}

func fixture() normalizer.Input {
	dom := []string{
		"https://img.example.com/hero.jpg",
		"https://img.example.com/failed.jpg",
		"https://img.example.com/louise-1.jpg",
		"https://img.example.com/street.jpg",
		"data:image/png;base64,AAAA",
	}

	urlMap := map[string]string{}
	for _, u := range []string{
		"https://img.example.com/hero.jpg",
		"https://img.example.com/louise-1.jpg",
		"https://img.example.com/street.jpg",
		"https://img.example.com/louise-2.jpg",
	} {
		urlMap[u] = relayed(u)
	}

	return normalizer.Input{
		HeaderImages: 2,
		URLMap:       urlMap,
		Extraction: &wanderlog.Extraction{
			URL:       "https://wanderlog.com/view/abc/rockies-road-trip",
			ScrapedAt: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
			DOM:       wanderlog.DOMResult{Images: dom},
			Data: wanderlog.StructuredData{
				Title:     "State title",
				Creator:   "Jamie Doe",
				StartDate: "2025-07-13",
				Activities: []models.Activity{
					{Key: "place:p1", Name: "Lake Louise", Images: []string{
						"https://img.example.com/louise-2.jpg",
						"https://img.example.com/unrelayed.jpg",
					}},
					{Key: "place:p2", Name: "Moraine Lake", Images: []string{
						"https://img.example.com/louise-2.jpg",
						"https://img.example.com/moraine.jpg",
					}},
					{Key: "name:trailhead-cafe", Name: "Trailhead Cafe", Images: []string{
						"https://img.example.com/cafe.jpg",
					}},
				},
				Hotels: []models.Hotel{
					{Name: "Fairmont", Photos: []string{
						"https://img.example.com/moraine.jpg",
						"https://img.example.com/fairmont.jpg",
					}},
				},
				Schedule: []models.DailySchedule{{
					DayNumber: 1,
					Items: []models.ScheduleItem{
						{Type: models.ItemFood, Name: "Trailhead Cafe", ActivityKey: "name:trailhead-cafe"},
					},
				}},
			},
		},
	}
}

func TestNormalize(t *testing.T) {
	b := normalizer.Normalize(fixture())

	t.Run("[success scenario] - header takes the first relayed page images", func(t *testing.T) {
		require.GreaterOrEqual(t, len(b.Images), 2)

		assert.Equal(t, models.SectionHeader, b.Images[0].Section)
		assert.Equal(t, relayed("https://img.example.com/hero.jpg"), b.Images[0].URL)
		assert.Equal(t, models.SectionHeader, b.Images[1].Section)
		assert.Equal(t, relayed("https://img.example.com/louise-1.jpg"), b.Images[1].URL)
	})

	t.Run("[success scenario] - relay fallback keeps original url", func(t *testing.T) {
		assert.Equal(t, []string{
			relayed("https://img.example.com/louise-2.jpg"),
			"https://img.example.com/unrelayed.jpg",
		}, b.Activities[0].Images)
	})

	t.Run("[success scenario] - images are disjoint across owners", func(t *testing.T) {
		seen := map[string]bool{}
		for _, img := range b.Images {
			assert.False(t, seen[img.URL], "duplicate %s", img.URL)
			seen[img.URL] = true
		}

		assert.Equal(t, []string{"https://img.example.com/moraine.jpg"}, b.Activities[1].Images)
		assert.Equal(t, []string{"https://img.example.com/fairmont.jpg"}, b.Hotels[0].Photos)
	})

	t.Run("[success scenario] - dining section for food stops", func(t *testing.T) {
		var cafe *models.Image

		for i := range b.Images {
			if b.Images[i].ActivityKey == "name:trailhead-cafe" {
				cafe = &b.Images[i]
			}
		}

		require.NotNil(t, cafe)
		assert.Equal(t, models.SectionDining, cafe.Section)
	})

	t.Run("[success scenario] - leftover relayed page images are unassociated", func(t *testing.T) {
		last := b.Images[len(b.Images)-1]
		assert.Equal(t, relayed("https://img.example.com/street.jpg"), last.URL)
		assert.Empty(t, last.Section)
		assert.Empty(t, last.ActivityKey)

		for _, img := range b.Images {
			assert.NotEqual(t, "https://img.example.com/failed.jpg", img.URL)
			assert.NotContains(t, img.URL, "data:")
		}
	})

	t.Run("[success scenario] - stats add up", func(t *testing.T) {
		// hero, louise-1, louise-2, unrelayed, moraine, cafe, fairmont, street
		assert.Len(t, b.Images, 8)
		assert.Equal(t, models.ImageStats{Total: 8, Associated: 6, Unassociated: 2}, b.ImageStats)

		for i, img := range b.Images {
			assert.Equal(t, i, img.Position)
		}
	})

	t.Run("[success scenario] - trip fields", func(t *testing.T) {
		assert.Equal(t, "State title", b.Trip.Title)
		assert.Equal(t, "Jamie Doe", b.Trip.Creator)
		assert.Equal(t, "2025-07-13", b.Trip.StartDate)
		assert.Equal(t, "https://wanderlog.com/view/abc/rockies-road-trip", b.Trip.SourceURL)
	})
}

func TestNormalizeEmpty(t *testing.T) {
	b := normalizer.Normalize(normalizer.Input{})

	assert.Empty(t, b.Images)
	assert.Equal(t, models.ImageStats{}, b.ImageStats)
}

func TestTitleFromURL(t *testing.T) {
	assert.Equal(t, "Rockies Road Trip", normalizer.TitleFromURL("https://wanderlog.com/view/abc/rockies-road-trip/"))
	assert.Empty(t, normalizer.TitleFromURL("https://wanderlog.com/"))
}
