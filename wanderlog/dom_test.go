package wanderlog

import (
	"context"
	"net/url"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func readFixture(t *testing.T, name string) string {
	t.Helper()

	data, err := os.ReadFile("testdata/" + name)
	require.NoError(t, err)

	return string(data)
}

func TestParseDOM(t *testing.T) {
	base, err := url.Parse(tripURL)
	require.NoError(t, err)

	html := readFixture(t, "trip.html")

	t.Run("[success scenario] - fixture page", func(t *testing.T) {
		got, err := ParseDOM(html, PageExtras{}, base)
		require.NoError(t, err)

		assert.Equal(t, "Canadian Rockies Road Trip", got.Title)
		assert.Equal(t, "Ten days through Banff and Jasper.", got.Summary)
		assert.Equal(t, "Jamie Doe", got.Creator)

		require.Len(t, got.Sections, 2)
		assert.Equal(t, "Overview", got.Sections[0].Tag)
		assert.Equal(t, "Overview Ten days of lakes, hikes and mountain towns.", got.Sections[0].Text)
		assert.Equal(t, "Day 1", got.Sections[1].Tag)

		assert.Equal(t, []string{
			"https://cdn.example.com/hero.jpg",
			"https://images.example.com/lake.jpg",
			"https://images.example.com/town-400.jpg",
			"data:image/png;base64,AAAA",
			"https://images.example.com/pic.webp",
			"https://images.example.com/bg.jpg",
		}, got.Images)
		assert.Equal(t, 1, got.HeaderImages)
	})

	t.Run("[success scenario] - live page extras", func(t *testing.T) {
		extras := PageExtras{
			Large:       []string{"https://images.example.com/lake.jpg", "https://cdn.example.com/icon-large.png"},
			Backgrounds: []string{"https://images.example.com/computed.jpg", "https://images.example.com/bg.jpg"},
		}

		got, err := ParseDOM(html, extras, base)
		require.NoError(t, err)

		assert.Equal(t, 1, got.HeaderImages)
		assert.Equal(t, "https://images.example.com/lake.jpg", got.Images[0])
		assert.Equal(t, "https://images.example.com/computed.jpg", got.Images[len(got.Images)-1])
		assert.NotContains(t, got.Images, "https://cdn.example.com/icon-large.png")
	})

	t.Run("[success scenario] - title suffix stripped from document title", func(t *testing.T) {
		got, err := ParseDOM(`<html><head><title>Banff Weekend | Wanderlog</title></head><body></body></html>`, PageExtras{}, base)
		require.NoError(t, err)

		assert.Equal(t, "Banff Weekend", got.Title)
		assert.Empty(t, got.Sections)
		assert.Empty(t, got.Images)
	})
}

func TestExtractDOM(t *testing.T) {
	page := &fakePage{url: tripURL, content: readFixture(t, "trip.html")}

	got := ExtractDOM(context.Background(), page, zap.NewNop())

	assert.Equal(t, "Canadian Rockies Road Trip", got.Title)
	assert.Len(t, got.Images, 6)
}
