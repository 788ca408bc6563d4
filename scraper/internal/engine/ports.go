package engine

import (
	"context"

	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/models"
)

// ListingFetcher reads the open-deadline dashboard.
type ListingFetcher interface {
	FetchOpenDeadlines(ctx context.Context) (*models.Listing, error)
}

// CaseSession is an opened case page.
type CaseSession interface {
	Header(ctx context.Context) (*models.Header, error)
	Subjects(ctx context.Context) ([]models.Subject, error)
	Parties(ctx context.Context) ([]models.Party, error)
	// Events returns the events in page order, newest first.
	Events(ctx context.Context) ([]models.EventRecord, error)
	Close() error
}

// CaseExtractor opens a case page from a listing handle.
type CaseExtractor interface {
	OpenCase(ctx context.Context, handle string) (CaseSession, error)
}

// DocumentFetcher downloads a document by its portal reference.
// It returns models.ErrDocumentNotFound when nothing can be retrieved.
type DocumentFetcher interface {
	FetchDocument(ctx context.Context, ref string) (*models.FetchedDocument, error)
}

// Source is an authenticated portal session.
type Source interface {
	ListingFetcher
	CaseExtractor
	DocumentFetcher
}

// BlobStore persists document bytes.
type BlobStore interface {
	Put(ctx context.Context, obj models.BlobObject) (*models.StoredBlob, error)
	DeleteAll(ctx context.Context, caseID string) error
}

// Store is the persistence the engine writes through.
type Store interface {
	ListCaseIDs(ctx context.Context) ([]string, error)
	UpsertCase(ctx context.Context, c *models.Case) error
	UpdateCaseDeadline(ctx context.Context, caseID string, d models.Deadline) error
	DeleteCase(ctx context.Context, caseID string) error
	MaxEventSeq(ctx context.Context, caseID string) (int, error)
	UpsertEvent(ctx context.Context, e *models.Event) error
	DocumentExists(ctx context.Context, key models.DocumentKey) (bool, error)
	UpsertDocument(ctx context.Context, d *models.Document) error
	CreateRun(ctx context.Context, run *models.RunLog) error
	FinishRun(ctx context.Context, run *models.RunLog) error
}

// Notifier receives sync outcomes. Implementations must not block for long.
type Notifier interface {
	CaseAdded(ctx context.Context, c *models.Case)
	CaseRemoved(ctx context.Context, caseID string)
	RunFinished(ctx context.Context, run *models.RunLog)
}
