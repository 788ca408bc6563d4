package models

import "fmt"

// DeadlineRecord is one row of the open-deadline dashboard.
type DeadlineRecord struct {
	CaseID   string
	Class    string
	Subject  string
	Court    string
	Deadline Deadline
	// Handle is the portal link to the case page.
	Handle string
}

// Validate checks the fields needed to reach the case.
func (r *DeadlineRecord) Validate() error {
	if r.CaseID == "" {
		return fmt.Errorf("%w: deadline record has no case id", ErrInvalidRecord)
	}
	if r.Handle == "" {
		return fmt.Errorf("%w: deadline record %s has no case link", ErrInvalidRecord, r.CaseID)
	}
	return nil
}

// Listing is the ordered set of open-deadline records keyed by case id.
// Order is the dashboard's own order, most urgent first.
type Listing struct {
	order   []string
	records map[string]DeadlineRecord
}

// NewListing returns an empty listing.
func NewListing() *Listing {
	return &Listing{records: make(map[string]DeadlineRecord)}
}

// Add appends rec. A repeated case id replaces the record and keeps the first position.
func (l *Listing) Add(rec DeadlineRecord) {
	if l.records == nil {
		l.records = make(map[string]DeadlineRecord)
	}
	if _, ok := l.records[rec.CaseID]; !ok {
		l.order = append(l.order, rec.CaseID)
	}
	l.records[rec.CaseID] = rec
}

// IDs returns the case ids in listing order.
func (l *Listing) IDs() []string {
	if l == nil {
		return nil
	}
	out := make([]string, len(l.order))
	copy(out, l.order)
	return out
}

// Get returns the record for id.
func (l *Listing) Get(id string) (DeadlineRecord, bool) {
	if l == nil {
		return DeadlineRecord{}, false
	}
	rec, ok := l.records[id]
	return rec, ok
}

// Has reports whether id is listed.
func (l *Listing) Has(id string) bool {
	_, ok := l.Get(id)
	return ok
}

// Len returns the number of distinct cases.
func (l *Listing) Len() int {
	if l == nil {
		return 0
	}
	return len(l.order)
}
