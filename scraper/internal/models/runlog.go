package models

import (
	"time"
	"unicode/utf8"
)

// RunStatus is the lifecycle state of a sync run.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunPartial RunStatus = "partial"
	RunError   RunStatus = "error"
)

// MaxErrorMessageLength bounds RunLog.ErrorMessage, in characters.
const MaxErrorMessageLength = 500

// IsTerminal reports whether the status ends a run.
func (s RunStatus) IsTerminal() bool {
	return s == RunSuccess || s == RunPartial || s == RunError
}

// RunStats are the counters accumulated during a run.
type RunStats struct {
	Added             int `json:"added" yaml:"added"`
	Removed           int `json:"removed" yaml:"removed"`
	Updated           int `json:"updated" yaml:"updated"`
	Errors            int `json:"errors" yaml:"errors"`
	DocumentsUploaded int `json:"documents_uploaded" yaml:"documents_uploaded"`
	DocumentsSkipped  int `json:"documents_skipped" yaml:"documents_skipped"`
	DocumentErrors    int `json:"document_errors" yaml:"document_errors"`
	EventsStored      int `json:"events_stored" yaml:"events_stored"`
}

// RunLog is the persisted record of one sync invocation.
type RunLog struct {
	ID                string     `json:"id" yaml:"id"`
	StartedAt         time.Time  `json:"started_at" yaml:"started_at"`
	FinishedAt        *time.Time `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Status            RunStatus  `json:"status" yaml:"status"`
	Added             int        `json:"added" yaml:"added"`
	Removed           int        `json:"removed" yaml:"removed"`
	Updated           int        `json:"updated" yaml:"updated"`
	Errors            int        `json:"errors" yaml:"errors"`
	DocumentsUploaded int        `json:"documents_uploaded" yaml:"documents_uploaded"`
	HasPending        bool       `json:"has_pending" yaml:"has_pending"`
	ErrorMessage      *string    `json:"error_message,omitempty" yaml:"error_message,omitempty"`
}

// Finish moves the log to a terminal status and copies the counters.
// A non-empty message is truncated to MaxErrorMessageLength characters.
func (l *RunLog) Finish(status RunStatus, stats RunStats, hasPending bool, message string, at time.Time) {
	l.Status = status
	l.FinishedAt = &at
	l.Added = stats.Added
	l.Removed = stats.Removed
	l.Updated = stats.Updated
	l.Errors = stats.Errors
	l.DocumentsUploaded = stats.DocumentsUploaded
	l.HasPending = hasPending
	if message != "" {
		msg := TruncateMessage(message, MaxErrorMessageLength)
		l.ErrorMessage = &msg
	}
}

// TruncateMessage cuts s to at most max runes without splitting a character.
func TruncateMessage(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max])
}
