package logging

import (
	"log/slog"
	"time"
)

// Common field names for consistent logging across the scraper.
const (
	FieldService  = "service"
	FieldRunID    = "run_id"
	FieldCaseID   = "case_id"
	FieldEventSeq = "event_seq"
	FieldDocument = "document"
	FieldPhase    = "phase"
	FieldState    = "state"
	FieldStatus   = "status"
	FieldURL      = "url"
	FieldDuration = "duration_ms"
	FieldError    = "error"
	FieldCount    = "count"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// RunID returns a slog attribute for a sync run ID.
func RunID(id string) slog.Attr {
	return slog.String(FieldRunID, id)
}

// CaseID returns a slog attribute for a case number.
func CaseID(id string) slog.Attr {
	return slog.String(FieldCaseID, id)
}

// EventSeq returns a slog attribute for an event sequence number.
func EventSeq(seq int) slog.Attr {
	return slog.Int(FieldEventSeq, seq)
}

// Document returns a slog attribute for a document name.
func Document(name string) slog.Attr {
	return slog.String(FieldDocument, name)
}

// Phase returns a slog attribute for the sync phase (listing, remove, add, keep).
func Phase(phase string) slog.Attr {
	return slog.String(FieldPhase, phase)
}

// State returns a slog attribute for a run loop state.
func State(state string) slog.Attr {
	return slog.String(FieldState, state)
}

// Status returns a slog attribute for a run status.
func Status(status string) slog.Attr {
	return slog.String(FieldStatus, status)
}

// URL returns a slog attribute for a portal URL.
func URL(u string) slog.Attr {
	return slog.String(FieldURL, u)
}

// Duration returns a slog attribute for a duration in milliseconds.
func Duration(d time.Duration) slog.Attr {
	return slog.Int64(FieldDuration, d.Milliseconds())
}

// Error returns a slog attribute for an error.
func Error(err error) slog.Attr {
	return slog.String(FieldError, err.Error())
}

// Count returns a slog attribute for a count.
func Count(n int) slog.Attr {
	return slog.Int(FieldCount, n)
}
