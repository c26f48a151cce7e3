package fetcher

import (
	"golang.org/x/sync/singleflight"
)

// Group de-duplicates concurrent identical listings. Collectors run
// sequentially today, but the engine and enumerator may share a Fetcher.
type Group struct {
	g singleflight.Group
}

func (g *Group) Do(key string, fn func() ([]Entry, error)) ([]Entry, error, bool) {
	v, err, shared := g.g.Do(key, func() (interface{}, error) {
		return fn()
	})
	entries, _ := v.([]Entry)
	return entries, err, shared
}
