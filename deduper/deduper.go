package deduper

import (
	"context"
	"net/url"
	"strings"
	"sync"
)

// Deduper remembers URLs it has seen, compared by URLKey. The DOM extractor
// uses one per page for image URLs and the batch runners one per input file.
type Deduper interface {
	AddIfNotExists(context.Context, string) bool
	Len() int
}

func New() Deduper {
	return &hashmap{
		seen: make(map[uint64]struct{}),
		mux:  &sync.RWMutex{},
	}
}

// URLKey canonicalizes an image URL for deduplication: scheme and host are
// lowercased and the fragment dropped. Non-URL input is returned trimmed.
func URLKey(raw string) string {
	raw = strings.TrimSpace(raw)

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.RawFragment = ""

	return u.String()
}
