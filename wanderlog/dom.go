package wanderlog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/Vector/vector-trip-scraper/deduper"
	"github.com/Vector/vector-trip-scraper/wanderlog/classify"
)

const (
	minSectionText  = 20
	maxHeaderImages = 5

	mapSelector     = `.mapboxgl-map, .leaflet-container, [class*="Map"], [data-testid*="map"]`
	sectionSelector = `section, article, [data-section], [class*="Section"]`
)

var (
	titleSuffixRe = regexp.MustCompile(`(?i)\s*[-|–]\s*Wanderlog\s*$`)
	cssURLRe      = regexp.MustCompile(`url\(\s*['"]?([^'")]+)['"]?\s*\)`)
	spacesRe      = regexp.MustCompile(`\s+`)
)

type Section struct {
	Tag  string `json:"tag"`
	Text string `json:"text"`
}

// DOMResult is what the rendered page shows, independent of client state.
type DOMResult struct {
	Title    string    `json:"title"`
	Summary  string    `json:"summary"`
	Creator  string    `json:"creator"`
	Sections []Section `json:"sections"`
	// Images holds content image URLs, large header images first.
	Images       []string `json:"images"`
	HeaderImages int      `json:"header_images"`
}

// PageExtras carries what only a live page can tell: computed background
// images and images rendered large enough to serve as trip headers.
type PageExtras struct {
	Backgrounds []string `json:"backgrounds"`
	Large       []string `json:"large"`
}

const pageExtrasJS = `() => {
	const backgrounds = [];
	for (const el of document.querySelectorAll('*')) {
		const bg = window.getComputedStyle(el).backgroundImage;
		if (!bg || bg === 'none') continue;
		for (const m of bg.matchAll(/url\(["']?([^"')]+)["']?\)/g)) backgrounds.push(m[1]);
	}
	const large = [];
	for (const img of Array.from(document.images)) {
		if (img.width > 400 && img.height > 200) large.push(img.currentSrc || img.src);
	}
	return JSON.stringify({backgrounds, large});
}`

// ExtractDOM reads the rendered page. It never fails: anything it cannot
// read is left empty.
func ExtractDOM(_ context.Context, page Page, log *zap.Logger) DOMResult {
	html, err := page.Content()
	if err != nil {
		log.Warn("could not read page content", zap.Error(err))

		return DOMResult{}
	}

	var extras PageExtras

	raw, err := page.Evaluate(pageExtrasJS)
	if err == nil {
		if s, ok := raw.(string); ok {
			if err := json.Unmarshal([]byte(s), &extras); err != nil {
				log.Debug("could not decode page extras", zap.Error(err))
			}
		}
	} else {
		log.Debug("could not evaluate page extras", zap.Error(err))
	}

	base, _ := url.Parse(page.URL())

	ans, err := ParseDOM(html, extras, base)
	if err != nil {
		log.Warn("could not parse page content", zap.Error(err))

		return DOMResult{}
	}

	return ans
}

// ParseDOM extracts title, summary, sections and image URLs from page HTML.
func ParseDOM(html string, extras PageExtras, base *url.URL) (DOMResult, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return DOMResult{}, fmt.Errorf("failed to parse html: %w", err)
	}

	ans := DOMResult{
		Title:    extractTitle(doc),
		Summary:  extractSummary(doc),
		Creator:  firstText(doc, `[data-testid="trip-creator"], [class*="AuthorName"], a[href^="/user/"]`),
		Sections: extractSections(doc),
	}

	ans.Images, ans.HeaderImages = extractImages(doc, extras, base)

	return ans, nil
}

func extractTitle(doc *goquery.Document) string {
	title := firstText(doc, `[data-testid="trip-title"]`)
	if title == "" {
		title = firstText(doc, "h1")
	}

	if title == "" {
		title = firstText(doc, "title")
	}

	return strings.TrimSpace(titleSuffixRe.ReplaceAllString(title, ""))
}

func extractSummary(doc *goquery.Document) string {
	for _, sel := range []string{`meta[name="description"]`, `meta[property="og:description"]`} {
		if v, ok := doc.Find(sel).First().Attr("content"); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}

	return ""
}

func extractSections(doc *goquery.Document) []Section {
	var ans []Section

	doc.Find(sectionSelector).Each(func(_ int, s *goquery.Selection) {
		if s.Is(mapSelector) || s.Closest(mapSelector).Length() > 0 {
			return
		}

		c := s.Clone()
		c.Find(mapSelector).Remove()
		c.Find("script, style, noscript").Remove()

		text := collapse(c.Text())
		if len(text) <= minSectionText {
			return
		}

		tag := collapse(s.Find("h1, h2, h3, h4").First().Text())
		if tag == "" {
			tag = s.AttrOr("data-section", s.AttrOr("id", ""))
		}

		ans = append(ans, Section{Tag: tag, Text: text})
	})

	return ans
}

func extractImages(doc *goquery.Document, extras PageExtras, base *url.URL) ([]string, int) {
	var (
		header []string
		rest   []string
	)

	seen := deduper.New()
	ctx := context.Background()

	add := func(dst *[]string, raw string) bool {
		u, ok := classify.NormalizeImageURL(raw, base)
		if !ok || classify.IsNoiseImageURL(u) {
			return false
		}

		if !seen.AddIfNotExists(ctx, u) {
			return false
		}

		*dst = append(*dst, u)

		return true
	}

	for _, u := range extras.Large {
		if len(header) >= maxHeaderImages {
			break
		}

		add(&header, u)
	}

	if len(extras.Large) == 0 {
		doc.Find("img").EachWithBreak(func(_ int, s *goquery.Selection) bool {
			if isLargeImage(s) {
				add(&header, s.AttrOr("src", ""))
			}

			return len(header) < maxHeaderImages
		})
	}

	doc.Find("img").Each(func(_ int, s *goquery.Selection) {
		for _, attr := range []string{"src", "data-src", "data-lazy", "data-lazy-src"} {
			if v, ok := s.Attr(attr); ok {
				add(&rest, v)
			}
		}

		if v, ok := s.Attr("srcset"); ok {
			add(&rest, classify.FirstSrcsetURL(v))
		}
	})

	doc.Find("picture source[srcset]").Each(func(_ int, s *goquery.Selection) {
		add(&rest, classify.FirstSrcsetURL(s.AttrOr("srcset", "")))
	})

	doc.Find("[style*='background']").Each(func(_ int, s *goquery.Selection) {
		for _, m := range cssURLRe.FindAllStringSubmatch(s.AttrOr("style", ""), -1) {
			add(&rest, m[1])
		}
	})

	for _, u := range extras.Backgrounds {
		add(&rest, u)
	}

	return append(header, rest...), len(header)
}

func isLargeImage(s *goquery.Selection) bool {
	w, errW := strconv.Atoi(s.AttrOr("width", ""))
	h, errH := strconv.Atoi(s.AttrOr("height", ""))

	return errW == nil && errH == nil && w > 400 && h > 200
}

func firstText(doc *goquery.Document, sel string) string {
	return collapse(doc.Find(sel).First().Text())
}

func collapse(s string) string {
	return strings.TrimSpace(spacesRe.ReplaceAllString(s, " "))
}
