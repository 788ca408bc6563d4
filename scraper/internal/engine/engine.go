// Package engine reconciles the eProc open-deadline listing with the store.
//
// A run fetches the listing, diffs it against the stored case ids, removes
// cases that left the listing, adds new ones, refreshes kept ones and pulls
// any events newer than the stored maximum, with their documents. Failures
// inside one case are counted and do not stop the run; failures reading the
// listing or the stored ids abort it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bborgeswq/eproc-scraper-2.0/common/logging"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/metrics"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/models"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/repository"
)

const (
	DefaultCasePause = time.Second
	runLogTimeout    = 10 * time.Second
)

// Engine runs sync passes. Runs must not overlap.
type Engine struct {
	store    Store
	blobs    BlobStore
	notifier Notifier
	logger   *logging.Logger
	identity Identity

	processLimit int
	casePause    time.Duration

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// Option configures an Engine.
type Option func(*Engine)

// WithProcessLimit caps the add loop and the keep loop at n cases each. 0 means no cap.
func WithProcessLimit(n int) Option {
	return func(e *Engine) {
		if n < 0 {
			n = 0
		}
		e.processLimit = n
	}
}

// WithCasePause sets the pause after each added or kept case.
func WithCasePause(d time.Duration) Option {
	return func(e *Engine) { e.casePause = d }
}

// WithIdentity sets the advocate used to derive the representation side.
func WithIdentity(id Identity) Option {
	return func(e *Engine) { e.identity = id }
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithNotifier sets the receiver of case and run notifications.
func WithNotifier(n Notifier) Option {
	return func(e *Engine) {
		if n != nil {
			e.notifier = n
		}
	}
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSleep replaces the pause implementation. fn must return ctx.Err() when ctx ends.
func WithSleep(fn func(context.Context, time.Duration) error) Option {
	return func(e *Engine) { e.sleep = fn }
}

// New returns an engine writing to store and blobs.
func New(store Store, blobs BlobStore, opts ...Option) *Engine {
	e := &Engine{
		store:     store,
		blobs:     blobs,
		notifier:  nopNotifier{},
		logger:    logging.Default(),
		casePause: DefaultCasePause,
		now:       time.Now,
		sleep:     sleepContext,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ProcessLimit returns the configured per-loop cap.
func (e *Engine) ProcessLimit() int { return e.processLimit }

// Result is the outcome of one run.
type Result struct {
	RunID              string           `json:"run_id" yaml:"run_id"`
	Status             models.RunStatus `json:"status" yaml:"status"`
	Stats              models.RunStats  `json:"stats" yaml:"stats"`
	HasPending         bool             `json:"has_pending" yaml:"has_pending"`
	RemovalsSuppressed bool             `json:"removals_suppressed" yaml:"removals_suppressed"`
	StartedAt          time.Time        `json:"started_at" yaml:"started_at"`
	Duration           time.Duration    `json:"duration" yaml:"duration"`
	Err                error            `json:"-" yaml:"-"`
}

// Fatal reports whether the run aborted.
func (r *Result) Fatal() bool { return r.Status == models.RunError }

// Run executes one sync pass against src. It always returns a Result; a fatal
// failure is reported in Result.Err with status error.
func (e *Engine) Run(ctx context.Context, src Source) *Result {
	start := e.now()
	runID := newRunID()
	ctx = logging.ContextWithRunID(ctx, runID)
	log := e.logger.WithContext(ctx)

	res := &Result{RunID: runID, Status: models.RunRunning, StartedAt: start}
	run := &models.RunLog{ID: runID, StartedAt: start, Status: models.RunRunning}

	e.writeRunLog(ctx, "create", func(ctx context.Context) error { return e.store.CreateRun(ctx, run) })
	log.Info("Sync run started", "process_limit", e.processLimit)

	err := e.sync(ctx, src, res)

	var message string
	switch {
	case err != nil:
		res.Status = models.RunError
		res.Err = err
		message = err.Error()
	case res.Stats.Errors > 0:
		res.Status = models.RunPartial
	default:
		res.Status = models.RunSuccess
	}
	finished := e.now()
	res.Duration = finished.Sub(start)

	run.Finish(res.Status, res.Stats, res.HasPending, message, finished)
	e.writeRunLog(ctx, "finish", func(ctx context.Context) error { return e.store.FinishRun(ctx, run) })

	metrics.RunsTotal.WithLabelValues(string(res.Status)).Inc()
	metrics.RunDuration.Observe(res.Duration.Seconds())
	metrics.LastRunTimestamp.Set(float64(finished.Unix()))
	if res.HasPending {
		metrics.Pending.Set(1)
	} else {
		metrics.Pending.Set(0)
	}
	e.notifier.RunFinished(context.WithoutCancel(ctx), run)

	attrs := []any{
		logging.Status(string(res.Status)),
		"added", res.Stats.Added,
		"removed", res.Stats.Removed,
		"updated", res.Stats.Updated,
		"errors", res.Stats.Errors,
		"events_stored", res.Stats.EventsStored,
		"documents_uploaded", res.Stats.DocumentsUploaded,
		"documents_skipped", res.Stats.DocumentsSkipped,
		"document_errors", res.Stats.DocumentErrors,
		"has_pending", res.HasPending,
		logging.Duration(res.Duration),
	}
	if err != nil {
		log.Error("Sync run failed", append(attrs, logging.Error(err))...)
	} else {
		log.Info("Sync run finished", attrs...)
	}
	return res
}

// writeRunLog performs a run-log write that must survive cancellation and never fails the run.
func (e *Engine) writeRunLog(ctx context.Context, op string, fn func(context.Context) error) {
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), runLogTimeout)
	defer cancel()
	if err := fn(wctx); err != nil {
		e.logger.WithContext(ctx).Warn("Failed to write run log", "op", op, logging.Error(err))
	}
}

func (e *Engine) sync(ctx context.Context, src Source, res *Result) error {
	log := e.logger.WithContext(ctx)

	log.Info("Fetching open deadlines", logging.Phase("listing"))
	listing, err := src.FetchOpenDeadlines(ctx)
	if err != nil {
		return fmt.Errorf("fetch open deadlines: %w", err)
	}
	stored, err := e.store.ListCaseIDs(ctx)
	if err != nil {
		return fmt.Errorf("list stored cases: %w", err)
	}

	diff := ComputeDiff(listing, stored)
	res.RemovalsSuppressed = diff.RemovalsSuppressed
	if diff.RemovalsSuppressed {
		log.Warn("Listing is empty but the store is not; skipping removals",
			logging.Count(len(stored)))
	}
	log.Info("Diff computed",
		logging.Phase("diff"),
		"listed", listing.Len(),
		"stored", len(stored),
		"to_add", len(diff.ToAdd),
		"to_keep", len(diff.ToKeep),
		"to_remove", len(diff.ToRemove))

	for _, id := range diff.ToRemove {
		if err := ctx.Err(); err != nil {
			return err
		}
		e.removeCase(ctx, id, &res.Stats)
	}

	added, err := e.applyLoop(ctx, "add", diff.ToAdd, func(id string) error {
		rec, _ := listing.Get(id)
		return e.addCase(ctx, src, rec, &res.Stats)
	}, &res.Stats)
	if err != nil {
		return err
	}

	kept, err := e.applyLoop(ctx, "keep", diff.ToKeep, func(id string) error {
		rec, _ := listing.Get(id)
		return e.keepCase(ctx, src, rec, &res.Stats)
	}, &res.Stats)
	if err != nil {
		return err
	}

	res.HasPending = e.processLimit > 0 && added+kept < len(diff.ToAdd)+len(diff.ToKeep)
	if res.HasPending {
		log.Info("Process limit reached; cases left for the next run",
			logging.Count(len(diff.ToAdd)+len(diff.ToKeep)-added-kept))
	}
	return nil
}

// applyLoop runs fn over ids up to the process limit, isolating per-case failures.
// It returns how many cases were attempted.
func (e *Engine) applyLoop(ctx context.Context, phase string, ids []string, fn func(id string) error, stats *models.RunStats) (int, error) {
	log := e.logger.WithContext(ctx)
	attempted := 0
	for i, id := range ids {
		if e.processLimit > 0 && attempted >= e.processLimit {
			break
		}
		if err := ctx.Err(); err != nil {
			return attempted, err
		}
		attempted++

		log.Info("Processing case", logging.Phase(phase), logging.CaseID(id), "position", i+1, "total", len(ids))
		if err := fn(id); err != nil {
			stats.Errors++
			metrics.CasesTotal.WithLabelValues(metrics.CaseError).Inc()
			log.Error("Case failed", logging.Phase(phase), logging.CaseID(id), logging.Error(err))
		}

		if err := e.sleep(ctx, e.casePause); err != nil {
			return attempted, err
		}
	}
	return attempted, nil
}

func (e *Engine) removeCase(ctx context.Context, id string, stats *models.RunStats) {
	log := e.logger.WithContext(ctx)

	if err := e.blobs.DeleteAll(ctx, id); err != nil {
		log.Warn("Failed to delete case documents from storage", logging.CaseID(id), logging.Error(err))
	}
	if err := e.store.DeleteCase(ctx, id); err != nil && !isCaseNotFound(err) {
		stats.Errors++
		metrics.CasesTotal.WithLabelValues(metrics.CaseError).Inc()
		log.Error("Failed to delete case", logging.Phase("remove"), logging.CaseID(id), logging.Error(err))
		return
	}

	stats.Removed++
	metrics.CasesTotal.WithLabelValues(metrics.CaseRemoved).Inc()
	log.Info("Case removed", logging.Phase("remove"), logging.CaseID(id))
	e.notifier.CaseRemoved(ctx, id)
}

func (e *Engine) addCase(ctx context.Context, src Source, rec models.DeadlineRecord, stats *models.RunStats) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	page, err := src.OpenCase(ctx, rec.Handle)
	if err != nil {
		return fmt.Errorf("open case page: %w", err)
	}
	defer page.Close()

	header, err := page.Header(ctx)
	if err != nil {
		return fmt.Errorf("extract header: %w", err)
	}
	subjects, err := page.Subjects(ctx)
	if err != nil {
		return fmt.Errorf("extract subjects: %w", err)
	}
	parties, err := page.Parties(ctx)
	if err != nil {
		return fmt.Errorf("extract parties: %w", err)
	}

	c := buildCase(rec, header, subjects, parties, e.now())
	c.Side, c.AdvocateRole = DeriveSide(parties, e.identity)
	if header != nil && header.CaseID != "" && header.CaseID != rec.CaseID {
		e.logger.WithContext(ctx).Warn("Case page number differs from listing",
			logging.CaseID(rec.CaseID), "page_case_id", header.CaseID)
	}

	if err := e.store.UpsertCase(ctx, c); err != nil {
		return fmt.Errorf("upsert case: %w", err)
	}
	if err := e.syncEvents(ctx, src, page, rec.CaseID, stats); err != nil {
		return err
	}

	stats.Added++
	metrics.CasesTotal.WithLabelValues(metrics.CaseAdded).Inc()
	e.logger.WithContext(ctx).Info("Case added",
		logging.CaseID(c.ID), "side", string(c.Side), "parties", len(parties))
	e.notifier.CaseAdded(ctx, c)
	return nil
}

func buildCase(rec models.DeadlineRecord, header *models.Header, subjects []models.Subject, parties []models.Party, now time.Time) *models.Case {
	if header == nil {
		header = &models.Header{}
	}
	c := &models.Case{
		ID:           rec.CaseID,
		Side:         models.SideUnknown,
		Class:        header.Class,
		Jurisdiction: header.Jurisdiction,
		FiledOn:      header.FiledOn,
		Situation:    header.Situation,
		JudgingBody:  header.JudgingBody,
		Judge:        header.Judge,
		Court:        rec.Court,
		RelatedCases: header.RelatedCases,
		Subjects:     subjects,
		Parties:      parties,
		Deadline:     rec.Deadline,
		LastSyncedAt: &now,
	}
	if c.Class == "" {
		c.Class = rec.Class
	}
	if c.RelatedCases == nil {
		c.RelatedCases = []string{}
	}
	if c.Subjects == nil {
		c.Subjects = []models.Subject{}
	}
	if c.Parties == nil {
		c.Parties = []models.Party{}
	}
	return c
}

func (e *Engine) keepCase(ctx context.Context, src Source, rec models.DeadlineRecord, stats *models.RunStats) error {
	log := e.logger.WithContext(ctx)

	if err := rec.Validate(); err != nil {
		return err
	}
	if err := e.store.UpdateCaseDeadline(ctx, rec.CaseID, rec.Deadline); err != nil {
		if !isCaseNotFound(err) {
			return fmt.Errorf("update deadline: %w", err)
		}
		// Removed between diff and update; the next run adds it again.
		log.Warn("Case vanished from the store, skipping", logging.Phase("keep"), logging.CaseID(rec.CaseID))
		stats.Updated++
		metrics.CasesTotal.WithLabelValues(metrics.CaseUpdated).Inc()
		return nil
	}

	page, err := src.OpenCase(ctx, rec.Handle)
	if err != nil {
		return fmt.Errorf("open case page: %w", err)
	}
	defer page.Close()

	if err := e.syncEvents(ctx, src, page, rec.CaseID, stats); err != nil {
		return err
	}

	stats.Updated++
	metrics.CasesTotal.WithLabelValues(metrics.CaseUpdated).Inc()
	log.Info("Case updated", logging.CaseID(rec.CaseID))
	return nil
}

func isCaseNotFound(err error) bool {
	return errors.Is(err, repository.ErrCaseNotFound)
}

func newRunID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type nopNotifier struct{}

func (nopNotifier) CaseAdded(context.Context, *models.Case)     {}
func (nopNotifier) CaseRemoved(context.Context, string)         {}
func (nopNotifier) RunFinished(context.Context, *models.RunLog) {}
