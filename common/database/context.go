// Package database holds the timeouts applied to store operations.
package database

import (
	"context"
	"time"
)

const (
	// QueryTimeout bounds single-row and per-case reads.
	QueryTimeout = 5 * time.Second

	// WriteTimeout bounds upserts and run-log writes.
	WriteTimeout = 10 * time.Second

	// BulkTimeout bounds whole-table reads and cascading deletes.
	BulkTimeout = 30 * time.Second
)

// QueryContext derives a context bounded by QueryTimeout.
func QueryContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, QueryTimeout)
}

// WriteContext derives a context bounded by WriteTimeout.
func WriteContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, WriteTimeout)
}

// BulkContext derives a context bounded by BulkTimeout.
func BulkContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, BulkTimeout)
}
