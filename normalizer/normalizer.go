// Package normalizer turns an extraction plus the relay's URL map into the
// bundle the writer persists.
package normalizer

import (
	"net/url"
	"path"
	"strings"

	"github.com/Vector/vector-trip-scraper/models"
	"github.com/Vector/vector-trip-scraper/wanderlog"
)

const DefaultHeaderImages = 5

type Input struct {
	Extraction *wanderlog.Extraction
	// URLMap maps source image URLs to relayed ones.
	URLMap       map[string]string
	HeaderImages int
}

// Normalize builds the bundle for one scrape. It is pure: the same input
// always gives the same bundle.
//
// Every image URL is emitted at most once. When two owners share an image
// the first claimant keeps it, in this order: header, activities, hotels,
// remaining page images.
func Normalize(in Input) models.Bundle {
	ex := in.Extraction
	if ex == nil {
		ex = &wanderlog.Extraction{}
	}

	headerN := in.HeaderImages
	if headerN <= 0 {
		headerN = DefaultHeaderImages
	}

	b := models.Bundle{
		Trip:       buildTrip(ex),
		Flights:    ex.Data.Flights,
		CarRentals: ex.Data.CarRentals,
		Schedule:   ex.Data.Schedule,
	}

	imgs := newImageSet(in.URLMap)

	// header: the first relayed page images
	for _, u := range ex.DOM.Images {
		if imgs.headers >= headerN {
			break
		}

		if relayed, ok := in.URLMap[u]; ok && imgs.claim(u, relayed, models.SectionHeader, "") {
			imgs.headers++
		}
	}

	food := foodActivities(ex.Data.Schedule)

	b.Activities = make([]models.Activity, 0, len(ex.Data.Activities))

	for _, a := range ex.Data.Activities {
		section := models.SectionActivity
		if _, ok := food[a.Key]; ok {
			section = models.SectionDining
		}

		a.Images = imgs.claimAll(a.Images, section, a.Key)
		b.Activities = append(b.Activities, a)
	}

	b.Hotels = make([]models.Hotel, 0, len(ex.Data.Hotels))

	for _, h := range ex.Data.Hotels {
		h.Photos = imgs.claimAll(h.Photos, models.SectionHotel, "")
		b.Hotels = append(b.Hotels, h)
	}

	// page images nobody claimed are kept when they made it through the relay
	for _, u := range ex.DOM.Images {
		if relayed, ok := in.URLMap[u]; ok {
			imgs.claim(u, relayed, "", "")
		}
	}

	b.Images = imgs.list
	b.ImageStats = models.CountImages(b.Images)

	return b
}

type imageSet struct {
	urlMap  map[string]string
	seen    map[string]struct{}
	list    []models.Image
	headers int
}

func newImageSet(urlMap map[string]string) *imageSet {
	return &imageSet{
		urlMap: urlMap,
		seen:   make(map[string]struct{}),
	}
}

// remap returns the relayed URL, or the source URL when the relay failed.
func (s *imageSet) remap(u string) string {
	if relayed, ok := s.urlMap[u]; ok {
		return relayed
	}

	return u
}

func (s *imageSet) claim(source, u, section, activityKey string) bool {
	if u == "" || strings.HasPrefix(u, "data:") {
		return false
	}

	if _, ok := s.seen[u]; ok {
		return false
	}

	s.seen[u] = struct{}{}

	s.list = append(s.list, models.Image{
		SourceURL:   source,
		URL:         u,
		Position:    len(s.list),
		Section:     section,
		ActivityKey: activityKey,
	})

	return true
}

// claimAll claims urls for one owner and returns the remapped URLs it got.
func (s *imageSet) claimAll(urls []string, section, activityKey string) []string {
	var ans []string

	for _, u := range urls {
		relayed := s.remap(u)
		if s.claim(u, relayed, section, activityKey) {
			ans = append(ans, relayed)
		}
	}

	return ans
}

func foodActivities(days []models.DailySchedule) map[string]struct{} {
	ans := make(map[string]struct{})

	for _, d := range days {
		for _, it := range d.Items {
			if it.Type == models.ItemFood && it.ActivityKey != "" {
				ans[it.ActivityKey] = struct{}{}
			}
		}
	}

	return ans
}

func buildTrip(ex *wanderlog.Extraction) models.Trip {
	return models.Trip{
		SourceURL: ex.URL,
		Title:     firstNonEmpty(ex.DOM.Title, ex.Data.Title, TitleFromURL(ex.URL)),
		Creator:   firstNonEmpty(ex.Data.Creator, ex.DOM.Creator),
		StartDate: ex.Data.StartDate,
		EndDate:   ex.Data.EndDate,
		Notes:     ex.Data.Notes,
		ScrapedAt: ex.ScrapedAt,
	}
}

// TitleFromURL makes a title out of the last path segment of a trip URL:
// ".../view/abc/rockies-road-trip" gives "Rockies Road Trip".
func TitleFromURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}

	slug := path.Base(strings.TrimSuffix(u.Path, "/"))
	if slug == "." || slug == "/" {
		return ""
	}

	words := strings.FieldsFunc(slug, func(r rune) bool {
		return r == '-' || r == '_'
	})

	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}

	return strings.Join(words, " ")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}

	return ""
}
