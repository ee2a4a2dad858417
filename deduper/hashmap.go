package deduper

import (
	"context"
	"hash/fnv"
	"sync"
)

var _ Deduper = (*hashmap)(nil)

type hashmap struct {
	mux  *sync.RWMutex
	seen map[uint64]struct{}
}

func (d *hashmap) AddIfNotExists(_ context.Context, key string) bool {
	h := d.hash(URLKey(key))

	d.mux.RLock()
	_, ok := d.seen[h]
	d.mux.RUnlock()

	if ok {
		return false
	}

	d.mux.Lock()
	defer d.mux.Unlock()

	if _, ok := d.seen[h]; ok {
		return false
	}

	d.seen[h] = struct{}{}

	return true
}

func (d *hashmap) Len() int {
	d.mux.RLock()
	defer d.mux.RUnlock()

	return len(d.seen)
}

func (d *hashmap) hash(key string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(key))

	return h.Sum64()
}
