package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/bborgeswq/eproc-scraper-2.0/common/logging"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/metrics"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/models"
)

// syncEvents stores events newer than the stored maximum, oldest first, with their documents.
// An event that fails stops the case so the stored maximum never skips past it.
func (e *Engine) syncEvents(ctx context.Context, src Source, page CaseSession, caseID string, stats *models.RunStats) error {
	log := e.logger.WithContext(ctx)

	maxSeq, err := e.store.MaxEventSeq(ctx, caseID)
	if err != nil {
		return fmt.Errorf("read max event seq: %w", err)
	}
	records, err := page.Events(ctx)
	if err != nil {
		return fmt.Errorf("extract events: %w", err)
	}

	fresh := make([]models.EventRecord, 0, len(records))
	for _, rec := range records {
		if rec.Seq > maxSeq {
			fresh = append(fresh, rec)
		}
	}
	sort.SliceStable(fresh, func(i, j int) bool { return fresh[i].Seq < fresh[j].Seq })

	if len(fresh) == 0 {
		log.Debug("No new events", logging.CaseID(caseID), "max_seq", maxSeq)
		return nil
	}
	log.Info("New events found", logging.CaseID(caseID), logging.Count(len(fresh)), "max_seq", maxSeq)

	for i := range fresh {
		if err := ctx.Err(); err != nil {
			return err
		}
		rec := &fresh[i]
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("event %d: %w", rec.Seq, err)
		}

		ev := rec.Event
		ev.CaseID = caseID
		if err := e.store.UpsertEvent(ctx, &ev); err != nil {
			return fmt.Errorf("store event %d: %w", rec.Seq, err)
		}
		stats.EventsStored++

		for _, ref := range rec.Documents {
			if err := ctx.Err(); err != nil {
				return err
			}
			e.syncDocument(ctx, src, caseID, rec.Seq, ref, stats)
		}
	}
	return nil
}

// syncDocument downloads one attachment unless it is already stored. Failures are
// counted but never fail the case.
func (e *Engine) syncDocument(ctx context.Context, src Source, caseID string, seq int, ref models.DocumentRef, stats *models.RunStats) {
	log := e.logger.WithContext(ctx).With(logging.CaseID(caseID), logging.EventSeq(seq), logging.Document(ref.Name))

	if err := ref.Validate(); err != nil {
		e.documentFailed(log, stats, "Invalid document reference", err)
		return
	}

	key := models.DocumentKey{CaseID: caseID, EventSeq: seq, ExternalRef: ref.Ref}
	exists, err := e.store.DocumentExists(ctx, key)
	if err != nil {
		e.documentFailed(log, stats, "Failed to check document", err)
		return
	}
	if exists {
		stats.DocumentsSkipped++
		metrics.DocumentsTotal.WithLabelValues(metrics.DocumentSkipped).Inc()
		return
	}

	fetched, err := src.FetchDocument(ctx, ref.Ref)
	if err != nil {
		if errors.Is(err, models.ErrDocumentNotFound) {
			e.documentFailed(log, stats, "Document not available on the portal", err)
		} else {
			e.documentFailed(log, stats, "Failed to download document", err)
		}
		return
	}

	blob, err := e.blobs.Put(ctx, models.BlobObject{
		CaseID:      caseID,
		EventSeq:    seq,
		ExternalRef: ref.Ref,
		Name:        ref.Name,
		Extension:   fetched.Extension,
		ContentType: fetched.ContentType,
		Data:        fetched.Data,
	})
	if err != nil {
		e.documentFailed(log, stats, "Failed to upload document", err)
		return
	}

	doc := &models.Document{
		CaseID:       caseID,
		EventSeq:     seq,
		ExternalRef:  ref.Ref,
		OriginalName: ref.Name,
		Type:         fetched.Type,
		StoragePath:  blob.Path,
		StorageURL:   blob.URL,
		SizeBytes:    blob.Size,
		ContentHash:  blob.ContentHash,
	}
	if err := e.store.UpsertDocument(ctx, doc); err != nil {
		e.documentFailed(log, stats, "Failed to store document metadata", err)
		return
	}

	stats.DocumentsUploaded++
	metrics.DocumentsTotal.WithLabelValues(metrics.DocumentUploaded).Inc()
	log.Info("Document stored", "type", string(fetched.Type), "size", blob.Size, "path", blob.Path)
}

func (e *Engine) documentFailed(log *slog.Logger, stats *models.RunStats, msg string, err error) {
	stats.DocumentErrors++
	metrics.DocumentsTotal.WithLabelValues(metrics.DocumentError).Inc()
	log.Warn(msg, logging.Error(err))
}
