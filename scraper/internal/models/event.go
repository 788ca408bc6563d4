package models

import (
	"fmt"
	"time"
)

// Event is a numbered procedural occurrence of a case. (CaseID, Seq) is its natural key.
type Event struct {
	CaseID         string
	Seq            int
	OccurredAt     time.Time
	Description    string
	Actor          string
	HasDeadline    bool
	DeadlineDays   *int
	DeadlineStatus string
	DeadlineStart  *time.Time
	DeadlineEnd    *time.Time
	RefersTo       *int
	Urgent         bool
	CreatedAt      time.Time
}

// EventRecord is an event as extracted from the case page, with its document links.
type EventRecord struct {
	Event
	Documents []DocumentRef
}

// Validate checks the fields an event cannot be stored without.
func (r *EventRecord) Validate() error {
	if r.Seq <= 0 {
		return fmt.Errorf("%w: event sequence must be positive, got %d", ErrInvalidRecord, r.Seq)
	}
	if r.OccurredAt.IsZero() {
		return fmt.Errorf("%w: event %d has no timestamp", ErrInvalidRecord, r.Seq)
	}
	return nil
}
