package engine

import (
	"sort"

	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/models"
)

// Diff is the reconciliation plan between the listing and the store.
type Diff struct {
	// ToAdd and ToKeep follow listing order, most urgent first.
	ToAdd  []string
	ToKeep []string
	// ToRemove is sorted.
	ToRemove []string
	// RemovalsSuppressed is set when an empty listing met a non-empty store.
	RemovalsSuppressed bool
}

// ComputeDiff splits listing and stored ids into add, keep and remove sets.
// An empty listing never removes anything: it is treated as a failed read.
func ComputeDiff(listing *models.Listing, stored []string) Diff {
	inStore := make(map[string]struct{}, len(stored))
	for _, id := range stored {
		inStore[id] = struct{}{}
	}

	d := Diff{ToAdd: []string{}, ToKeep: []string{}, ToRemove: []string{}}
	for _, id := range listing.IDs() {
		if _, ok := inStore[id]; ok {
			d.ToKeep = append(d.ToKeep, id)
		} else {
			d.ToAdd = append(d.ToAdd, id)
		}
	}

	if listing.Len() == 0 && len(inStore) > 0 {
		d.RemovalsSuppressed = true
		return d
	}

	for id := range inStore {
		if !listing.Has(id) {
			d.ToRemove = append(d.ToRemove, id)
		}
	}
	sort.Strings(d.ToRemove)
	return d
}
