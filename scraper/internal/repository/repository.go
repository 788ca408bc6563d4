package repository

import (
	"context"
	"errors"

	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/models"
)

var (
	ErrCaseNotFound = errors.New("case not found")
	ErrRunNotFound  = errors.New("sync run not found")
)

// Repository persists cases, events, documents and run logs by their natural keys.
type Repository interface {
	Ping(ctx context.Context) error

	ListCaseIDs(ctx context.Context) ([]string, error)
	GetCase(ctx context.Context, id string) (*models.Case, error)
	ListCases(ctx context.Context) ([]*models.Case, error)
	UpsertCase(ctx context.Context, c *models.Case) error
	UpdateCaseDeadline(ctx context.Context, id string, deadline models.Deadline) error
	DeleteCase(ctx context.Context, id string) error

	MaxEventSeq(ctx context.Context, caseID string) (int, error)
	UpsertEvent(ctx context.Context, e *models.Event) error
	ListEvents(ctx context.Context, caseID string) ([]*models.Event, error)

	DocumentExists(ctx context.Context, key models.DocumentKey) (bool, error)
	UpsertDocument(ctx context.Context, d *models.Document) error
	ListDocuments(ctx context.Context, caseID string) ([]*models.Document, error)

	CreateRun(ctx context.Context, run *models.RunLog) error
	FinishRun(ctx context.Context, run *models.RunLog) error
	GetRun(ctx context.Context, id string) (*models.RunLog, error)
	ListRuns(ctx context.Context, limit int) ([]*models.RunLog, error)

	Close()
}
