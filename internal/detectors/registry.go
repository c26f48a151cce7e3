package detectors

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

var (
	registry = make(map[string]Collector)
	mu       sync.RWMutex
)

func Register(c Collector) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := registry[c.ID()]; exists {
		panic(fmt.Sprintf("collector %s already registered", c.ID()))
	}
	registry[c.ID()] = c
}

// List returns all collectors sorted by ID. The order is stable and decides
// ties between equally confident signals.
func List() []Collector {
	mu.RLock()
	defer mu.RUnlock()
	return listLocked()
}

func listLocked() []Collector {
	collectors := make([]Collector, 0, len(registry))
	for _, c := range registry {
		collectors = append(collectors, c)
	}
	sort.Slice(collectors, func(i, j int) bool {
		return collectors[i].ID() < collectors[j].ID()
	})
	return collectors
}

// Resolve selects collectors by a comma-separated list of IDs. The empty
// selector selects all of them. The result is sorted by ID.
func Resolve(selector string) ([]Collector, error) {
	mu.RLock()
	defer mu.RUnlock()

	if strings.TrimSpace(selector) == "" {
		return listLocked(), nil
	}

	seen := make(map[string]bool)
	var selected []Collector
	for _, id := range strings.Split(selector, ",") {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		c, ok := registry[id]
		if !ok {
			return nil, fmt.Errorf("detector not found: %s", id)
		}
		seen[id] = true
		selected = append(selected, c)
	}
	sort.Slice(selected, func(i, j int) bool {
		return selected[i].ID() < selected[j].ID()
	})
	return selected, nil
}

// Configure passes opts to every configurable collector. Unknown keys are
// ignored by collectors that do not declare them.
func Configure(opts map[string]string) error {
	mu.RLock()
	defer mu.RUnlock()
	for _, c := range listLocked() {
		cc, ok := c.(ConfigurableCollector)
		if !ok {
			continue
		}
		if err := cc.Configure(opts); err != nil {
			return fmt.Errorf("configure %s: %w", c.ID(), err)
		}
	}
	return nil
}
