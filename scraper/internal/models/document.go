package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrDocumentNotFound is returned by document fetchers when the portal has nothing to serve.
var ErrDocumentNotFound = errors.New("document not found")

// DocumentType is the coarse category detected from a document's bytes.
type DocumentType string

const (
	DocumentPDF     DocumentType = "PDF"
	DocumentImage   DocumentType = "IMG"
	DocumentVideo   DocumentType = "VIDEO"
	DocumentAudio   DocumentType = "AUDIO"
	DocumentArchive DocumentType = "ARQUIVO"
	DocumentHTML    DocumentType = "HTML"
	DocumentOther   DocumentType = "OUTRO"
)

// DocumentRef is a document link attached to an event.
type DocumentRef struct {
	Name string
	Ref  string
}

// Validate checks that the link can be fetched and named.
func (d DocumentRef) Validate() error {
	if d.Name == "" || d.Ref == "" {
		return fmt.Errorf("%w: document reference needs name and ref", ErrInvalidRecord)
	}
	return nil
}

// DocumentKey is the natural key of a stored document.
type DocumentKey struct {
	CaseID      string
	EventSeq    int
	ExternalRef string
}

// Document is a stored copy of an event attachment.
type Document struct {
	ID           string
	CaseID       string
	EventSeq     int
	ExternalRef  string
	OriginalName string
	Type         DocumentType
	StoragePath  string
	StorageURL   string
	SizeBytes    int64
	ContentHash  string
	CreatedAt    time.Time
}

// Key returns the document's natural key.
func (d *Document) Key() DocumentKey {
	return DocumentKey{CaseID: d.CaseID, EventSeq: d.EventSeq, ExternalRef: d.ExternalRef}
}

// FetchedDocument is the payload returned by a document fetcher.
type FetchedDocument struct {
	Data        []byte
	Type        DocumentType
	Extension   string
	ContentType string
}

// BlobObject is what gets written to the blob store.
type BlobObject struct {
	CaseID      string
	EventSeq    int
	ExternalRef string
	Name        string
	Extension   string
	ContentType string
	Data        []byte
}

// StoredBlob describes a blob after upload.
type StoredBlob struct {
	Path        string
	URL         string
	ContentHash string
	Size        int64
}
