package classify

import (
	"net/url"
	"regexp"
	"strings"
)

var nonAlnumRe = regexp.MustCompile(`[^a-z0-9]+`)

// StableKey identifies an activity within a trip across scrapes. The source
// place id wins when the page exposes one; otherwise the normalized name.
func StableKey(placeID, name string) string {
	if id := strings.TrimSpace(placeID); id != "" {
		return "place:" + id
	}

	return "name:" + NormalizeName(name)
}

// NormalizeName lowercases a name and collapses punctuation to dashes.
func NormalizeName(name string) string {
	return strings.Trim(nonAlnumRe.ReplaceAllString(strings.ToLower(name), "-"), "-")
}

var noiseImagePatterns = []string{
	// map tiles
	"mapbox",
	"/tiles/",
	"tile.openstreetmap",
	"maps.googleapis.com/maps/api/staticmap",
	"maps.gstatic.com",
	"/maptile",
	// app assets
	"/assets/",
	"favicon",
	".svg",
	"logo",
	"icon",
	"sprite",
	"avatar",
	"/emoji/",
}

// IsNoiseImageURL reports whether an image URL is a map tile or an app
// asset rather than trip content.
func IsNoiseImageURL(u string) bool {
	lower := strings.ToLower(u)
	for _, p := range noiseImagePatterns {
		if strings.Contains(lower, p) {
			return true
		}
	}

	return false
}

// NormalizeImageURL resolves protocol-relative and relative URLs against
// base and rejects anything that is not http(s) or a data URI.
func NormalizeImageURL(raw string, base *url.URL) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}

	if strings.HasPrefix(raw, "data:") {
		return raw, true
	}

	if strings.HasPrefix(raw, "//") {
		raw = "https:" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}

	if !u.IsAbs() {
		if base == nil {
			return "", false
		}

		u = base.ResolveReference(u)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}

	return u.String(), true
}

// FirstSrcsetURL returns the first candidate URL of a srcset attribute.
func FirstSrcsetURL(srcset string) string {
	first, _, _ := strings.Cut(strings.TrimSpace(srcset), ",")

	fields := strings.Fields(first)
	if len(fields) == 0 {
		return ""
	}

	return fields[0]
}
