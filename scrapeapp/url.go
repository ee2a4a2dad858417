package scrapeapp

import (
	"net/url"
	"strings"

	"github.com/Vector/vector-trip-scraper/wanderlog"
)

// ValidateURL checks that raw is an absolute http(s) URL on the trip site
// and returns it trimmed.
func ValidateURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", ErrInvalidURL
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", ErrInvalidURL
	}

	host := strings.ToLower(u.Hostname())
	if host != wanderlog.Host && !strings.HasSuffix(host, "."+wanderlog.Host) {
		return "", ErrInvalidURL
	}

	return raw, nil
}
