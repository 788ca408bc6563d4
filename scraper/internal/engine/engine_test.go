package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bborgeswq/eproc-scraper-2.0/common/logging"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/blobstore"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/metrics"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/models"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/repository"
)

const (
	caseA = "5000001-11.2025.8.21.0001"
	caseB = "5000002-22.2025.8.21.0001"
	caseC = "5000003-33.2025.8.21.0001"
)

var pdf = []byte("%PDF-1.7 test")

// fakeCase is what the portal shows for one case page.
type fakeCase struct {
	header   models.Header
	parties  []models.Party
	events   []models.EventRecord
	openErr  error
	eventErr error
}

type fakeSource struct {
	mu         sync.Mutex
	listing    *models.Listing
	listingErr error
	cases      map[string]*fakeCase
	docs       map[string][]byte
	fetches    map[string]int
	opened     int
	closed     int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		listing: models.NewListing(),
		cases:   map[string]*fakeCase{},
		docs:    map[string][]byte{},
		fetches: map[string]int{},
	}
}

// list puts id in the listing with a page containing events.
func (s *fakeSource) list(id string, events ...models.EventRecord) *fakeCase {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listing.Add(models.DeadlineRecord{
		CaseID:   id,
		Class:    "PROCEDIMENTO COMUM",
		Court:    "1ª Vara Cível",
		Handle:   "processo_selecionar&num=" + id,
		Deadline: models.Deadline{Description: "Intimação"},
	})
	c := &fakeCase{
		header: models.Header{CaseID: id, Judge: "JUIZ"},
		parties: []models.Party{{Role: "RÉU", Name: "BANCO", Representatives: []models.Representative{
			{Name: "JAIME DARLAN MARTINS", Registration: "RS053253"},
		}}},
		events: events,
	}
	s.cases["processo_selecionar&num="+id] = c
	return c
}

func (s *fakeSource) unlist() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listing = models.NewListing()
}

func (s *fakeSource) fetchCount(ref string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches[ref]
}

func (s *fakeSource) FetchOpenDeadlines(ctx context.Context) (*models.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listingErr != nil {
		return nil, s.listingErr
	}
	return s.listing, nil
}

func (s *fakeSource) OpenCase(ctx context.Context, handle string) (CaseSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.cases[handle]
	if !ok {
		return nil, fmt.Errorf("no page for %s", handle)
	}
	if c.openErr != nil {
		return nil, c.openErr
	}
	s.opened++
	return &fakePage{src: s, c: c}, nil
}

func (s *fakeSource) FetchDocument(ctx context.Context, ref string) (*models.FetchedDocument, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fetches[ref]++
	data, ok := s.docs[ref]
	if !ok {
		return nil, models.ErrDocumentNotFound
	}
	return &models.FetchedDocument{Data: data, Type: models.DocumentPDF, Extension: ".pdf", ContentType: "application/pdf"}, nil
}

type fakePage struct {
	src *fakeSource
	c   *fakeCase
}

func (p *fakePage) Header(ctx context.Context) (*models.Header, error) {
	h := p.c.header
	return &h, nil
}

func (p *fakePage) Subjects(ctx context.Context) ([]models.Subject, error) {
	return []models.Subject{{Code: "10433", Description: "Dano Moral"}}, nil
}

func (p *fakePage) Parties(ctx context.Context) ([]models.Party, error) {
	return p.c.parties, nil
}

func (p *fakePage) Events(ctx context.Context) ([]models.EventRecord, error) {
	if p.c.eventErr != nil {
		return nil, p.c.eventErr
	}
	out := make([]models.EventRecord, len(p.c.events))
	copy(out, p.c.events)
	return out, nil
}

func (p *fakePage) Close() error {
	p.src.mu.Lock()
	defer p.src.mu.Unlock()
	p.src.closed++
	return nil
}

// event builds an event record with one document per name; refs are unique per case and seq.
func event(caseID string, seq int, docs ...string) models.EventRecord {
	rec := models.EventRecord{
		Event: models.Event{
			CaseID:      caseID,
			Seq:         seq,
			OccurredAt:  time.Date(2026, 2, seq, 10, 0, 0, 0, time.UTC),
			Description: fmt.Sprintf("Evento %d", seq),
			Actor:       "SERVIDOR",
		},
		Documents: []models.DocumentRef{},
	}
	for _, name := range docs {
		rec.Documents = append(rec.Documents, models.DocumentRef{
			Name: name,
			Ref:  fmt.Sprintf("acessar_documento&case=%s&seq=%d&doc=%s", caseID, seq, name),
		})
	}
	return rec
}

func docRef(caseID string, seq int, name string) string {
	return fmt.Sprintf("acessar_documento&case=%s&seq=%d&doc=%s", caseID, seq, name)
}

// serve makes every document ref of the listed events downloadable.
func (s *fakeSource) serve(events ...models.EventRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ev := range events {
		for _, d := range ev.Documents {
			s.docs[d.Ref] = pdf
		}
	}
}

type recordingNotifier struct {
	mu      sync.Mutex
	added   []string
	removed []string
	runs    []models.RunStatus
}

func (n *recordingNotifier) CaseAdded(ctx context.Context, c *models.Case) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.added = append(n.added, c.ID)
}

func (n *recordingNotifier) CaseRemoved(ctx context.Context, id string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.removed = append(n.removed, id)
}

func (n *recordingNotifier) RunFinished(ctx context.Context, run *models.RunLog) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.runs = append(n.runs, run.Status)
}

// faultyStore injects failures into the in-memory repository.
type faultyStore struct {
	*repository.InMemoryRepository
	listErr         error
	createRunErr    error
	failUpsert      map[string]error
	updateDeadlines error
}

func (s *faultyStore) ListCaseIDs(ctx context.Context) ([]string, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.InMemoryRepository.ListCaseIDs(ctx)
}

func (s *faultyStore) UpsertCase(ctx context.Context, c *models.Case) error {
	if err, ok := s.failUpsert[c.ID]; ok {
		return err
	}
	return s.InMemoryRepository.UpsertCase(ctx, c)
}

func (s *faultyStore) UpdateCaseDeadline(ctx context.Context, id string, d models.Deadline) error {
	if s.updateDeadlines != nil {
		return s.updateDeadlines
	}
	return s.InMemoryRepository.UpdateCaseDeadline(ctx, id, d)
}

func (s *faultyStore) CreateRun(ctx context.Context, run *models.RunLog) error {
	if s.createRunErr != nil {
		return s.createRunErr
	}
	return s.InMemoryRepository.CreateRun(ctx, run)
}

type harness struct {
	repo     *repository.InMemoryRepository
	store    *faultyStore
	blobs    *blobstore.FilesystemStore
	src      *fakeSource
	notifier *recordingNotifier
	pauses   int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	repo := repository.NewInMemoryRepository()
	blobs, err := blobstore.NewFilesystemStore(afero.NewMemMapFs(), "/blobs", "http://files.local")
	require.NoError(t, err)
	return &harness{
		repo:     repo,
		store:    &faultyStore{InMemoryRepository: repo, failUpsert: map[string]error{}},
		blobs:    blobs,
		src:      newFakeSource(),
		notifier: &recordingNotifier{},
	}
}

func (h *harness) engine(opts ...Option) *Engine {
	base := []Option{
		WithLogger(logging.Discard()),
		WithNotifier(h.notifier),
		WithIdentity(Identity{Name: "JAIME DARLAN MARTINS", Registration: "RS053253"}),
		WithSleep(func(ctx context.Context, d time.Duration) error {
			h.pauses++
			return ctx.Err()
		}),
	}
	return New(h.store, h.blobs, append(base, opts...)...)
}

func (h *harness) run(t *testing.T, opts ...Option) *Result {
	t.Helper()
	return h.engine(opts...).Run(context.Background(), h.src)
}

func (h *harness) storedRun(t *testing.T, id string) *models.RunLog {
	t.Helper()
	run, err := h.repo.GetRun(context.Background(), id)
	require.NoError(t, err)
	return run
}

func (h *harness) eventSeqs(t *testing.T, caseID string) []int {
	t.Helper()
	events, err := h.repo.ListEvents(context.Background(), caseID)
	require.NoError(t, err)
	seqs := []int{}
	for _, e := range events {
		seqs = append(seqs, e.Seq)
	}
	return seqs
}

func TestRun_FirstRunPopulatesStore(t *testing.T) {
	h := newHarness(t)
	evA := []models.EventRecord{event(caseA, 2, "DESP1"), event(caseA, 1, "INIC1", "PROC1")}
	evB := []models.EventRecord{event(caseB, 1)}
	h.src.list(caseA, evA...)
	h.src.list(caseB, evB...)
	h.src.serve(evA...)

	res := h.run(t)

	require.NoError(t, res.Err)
	assert.Equal(t, models.RunSuccess, res.Status)
	assert.Equal(t, 2, res.Stats.Added)
	assert.Equal(t, 0, res.Stats.Removed)
	assert.Equal(t, 0, res.Stats.Updated)
	assert.Equal(t, 3, res.Stats.EventsStored)
	assert.Equal(t, 3, res.Stats.DocumentsUploaded)
	assert.False(t, res.HasPending)
	assert.NotEmpty(t, res.RunID)
	assert.Equal(t, 2, h.pauses)

	c, err := h.repo.GetCase(context.Background(), caseA)
	require.NoError(t, err)
	assert.Equal(t, models.SidePassive, c.Side)
	assert.Equal(t, "RÉU", c.AdvocateRole)
	assert.Equal(t, "PROCEDIMENTO COMUM", c.Class, "class falls back to the listing")
	assert.Equal(t, "1ª Vara Cível", c.Court)
	assert.Equal(t, "Intimação", c.Deadline.Description)
	assert.NotNil(t, c.LastSyncedAt)

	assert.Equal(t, []int{1, 2}, h.eventSeqs(t, caseA))
	docs, err := h.repo.ListDocuments(context.Background(), caseA)
	require.NoError(t, err)
	require.Len(t, docs, 3)
	for _, d := range docs {
		assert.Equal(t, models.DocumentPDF, d.Type)
		assert.Equal(t, int64(len(pdf)), d.SizeBytes)
		assert.Contains(t, d.StorageURL, "http://files.local/"+caseA)
	}
	files, err := h.blobs.List(caseA)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		blobstore.BuildPath(caseA, 1, "INIC1", docRef(caseA, 1, "INIC1"), ".pdf"),
		blobstore.BuildPath(caseA, 1, "PROC1", docRef(caseA, 1, "PROC1"), ".pdf"),
		blobstore.BuildPath(caseA, 2, "DESP1", docRef(caseA, 2, "DESP1"), ".pdf"),
	}, files)
	for _, d := range docs {
		assert.Contains(t, files, d.StoragePath)
	}

	run := h.storedRun(t, res.RunID)
	assert.Equal(t, models.RunSuccess, run.Status)
	assert.Equal(t, 2, run.Added)
	assert.Equal(t, 3, run.DocumentsUploaded)
	assert.NotNil(t, run.FinishedAt)
	assert.Nil(t, run.ErrorMessage)

	assert.Equal(t, []string{caseA, caseB}, h.notifier.added)
	assert.Equal(t, []models.RunStatus{models.RunSuccess}, h.notifier.runs)
}

func TestRun_SecondRunIsIncremental(t *testing.T) {
	h := newHarness(t)
	evA := []models.EventRecord{event(caseA, 2, "DESP1"), event(caseA, 1, "INIC1")}
	h.src.list(caseA, evA...)
	h.src.serve(evA...)

	first := h.run(t)
	require.Equal(t, models.RunSuccess, first.Status)

	second := h.run(t)
	assert.Equal(t, models.RunSuccess, second.Status)
	assert.Equal(t, 0, second.Stats.Added)
	assert.Equal(t, 1, second.Stats.Updated)
	assert.Equal(t, 0, second.Stats.EventsStored)
	assert.Equal(t, 0, second.Stats.DocumentsUploaded)
	assert.Equal(t, 1, h.src.fetchCount(docRef(caseA, 1, "INIC1")), "stored document must not be fetched again")

	// A new event shows up on top of the page.
	newest := event(caseA, 3, "SENT1")
	h.src.serve(newest)
	h.src.cases["processo_selecionar&num="+caseA].events = append([]models.EventRecord{newest}, evA...)

	third := h.run(t)
	assert.Equal(t, models.RunSuccess, third.Status)
	assert.Equal(t, 1, third.Stats.EventsStored)
	assert.Equal(t, 1, third.Stats.DocumentsUploaded)
	assert.Equal(t, []int{1, 2, 3}, h.eventSeqs(t, caseA))
	assert.Equal(t, 1, h.src.fetchCount(docRef(caseA, 2, "DESP1")))
}

func TestRun_DocumentAlreadyStoredIsSkipped(t *testing.T) {
	h := newHarness(t)
	ev := event(caseA, 1, "INIC1")
	h.src.list(caseA, ev)
	h.src.serve(ev)

	ctx := context.Background()
	require.NoError(t, h.repo.UpsertCase(ctx, &models.Case{ID: caseA, Side: models.SideUnknown}))
	require.NoError(t, h.repo.UpsertEvent(ctx, &models.Event{CaseID: caseA, Seq: 1, OccurredAt: time.Now()}))
	require.NoError(t, h.repo.UpsertDocument(ctx, &models.Document{CaseID: caseA, EventSeq: 1, ExternalRef: docRef(caseA, 1, "INIC1")}))

	// MaxEventSeq is 1, so the event is not revisited and no document is looked at.
	res := h.run(t)
	assert.Equal(t, 0, res.Stats.DocumentsSkipped)
	assert.Equal(t, 0, h.src.fetchCount(docRef(caseA, 1, "INIC1")))

	// Drive the document path directly to cover the skip branch.
	e := h.engine()
	var stats models.RunStats
	e.syncDocument(ctx, h.src, caseA, 1, models.DocumentRef{Name: "INIC1", Ref: docRef(caseA, 1, "INIC1")}, &stats)
	assert.Equal(t, 1, stats.DocumentsSkipped)
	assert.Equal(t, 0, stats.DocumentsUploaded)
	assert.Equal(t, 0, h.src.fetchCount(docRef(caseA, 1, "INIC1")))
}

func TestRun_RemovesCasesLeavingTheListing(t *testing.T) {
	h := newHarness(t)
	evA := []models.EventRecord{event(caseA, 1, "INIC1")}
	h.src.list(caseA, evA...)
	h.src.list(caseB)
	h.src.serve(evA...)
	require.Equal(t, models.RunSuccess, h.run(t).Status)

	h.src.unlist()
	h.src.list(caseB)

	res := h.run(t)
	assert.Equal(t, models.RunSuccess, res.Status)
	assert.Equal(t, 1, res.Stats.Removed)
	assert.Equal(t, 1, res.Stats.Updated)

	_, err := h.repo.GetCase(context.Background(), caseA)
	assert.ErrorIs(t, err, repository.ErrCaseNotFound)
	events, err := h.repo.ListEvents(context.Background(), caseA)
	require.NoError(t, err)
	assert.Empty(t, events)
	files, err := h.blobs.List(caseA)
	require.NoError(t, err)
	assert.Empty(t, files)
	assert.Equal(t, []string{caseA}, h.notifier.removed)
}

func TestRun_EmptyListingSuppressesRemovals(t *testing.T) {
	h := newHarness(t)
	h.src.list(caseA)
	h.src.list(caseB)
	require.Equal(t, models.RunSuccess, h.run(t).Status)

	h.src.unlist()
	res := h.run(t)

	assert.Equal(t, models.RunSuccess, res.Status)
	assert.True(t, res.RemovalsSuppressed)
	assert.Equal(t, 0, res.Stats.Removed)
	ids, err := h.repo.ListCaseIDs(context.Background())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{caseA, caseB}, ids)
	assert.Empty(t, h.notifier.removed)
}

func TestRun_CaseFailureIsIsolated(t *testing.T) {
	h := newHarness(t)
	h.src.list(caseA).openErr = errors.New("page timeout")
	h.src.list(caseB, event(caseB, 1))
	h.store.failUpsert[caseC] = errors.New("constraint violation")
	h.src.list(caseC)

	res := h.run(t)

	require.NoError(t, res.Err)
	assert.Equal(t, models.RunPartial, res.Status)
	assert.Equal(t, 2, res.Stats.Errors)
	assert.Equal(t, 1, res.Stats.Added)
	assert.Equal(t, 3, h.pauses, "failed cases still pause")

	ids, err := h.repo.ListCaseIDs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{caseB}, ids)

	run := h.storedRun(t, res.RunID)
	assert.Equal(t, models.RunPartial, run.Status)
	assert.Equal(t, 2, run.Errors)
	assert.Equal(t, []string{caseB}, h.notifier.added)
}

func TestRun_FatalListingFailure(t *testing.T) {
	h := newHarness(t)
	h.src.list(caseA)
	h.src.listingErr = errors.New("session expired")

	res := h.run(t)

	require.Error(t, res.Err)
	assert.True(t, res.Fatal())
	assert.Equal(t, models.RunError, res.Status)
	assert.Equal(t, 0, h.src.opened)

	run := h.storedRun(t, res.RunID)
	assert.Equal(t, models.RunError, run.Status)
	require.NotNil(t, run.ErrorMessage)
	assert.Contains(t, *run.ErrorMessage, "session expired")
	assert.Equal(t, []models.RunStatus{models.RunError}, h.notifier.runs)
}

func TestRun_FatalStoreFailure(t *testing.T) {
	h := newHarness(t)
	h.src.list(caseA)
	h.store.listErr = errors.New("connection refused")

	res := h.run(t)
	assert.Equal(t, models.RunError, res.Status)
	assert.ErrorContains(t, res.Err, "list stored cases")
}

func TestRun_LongErrorMessageIsTruncated(t *testing.T) {
	h := newHarness(t)
	long := make([]rune, 800)
	for i := range long {
		long[i] = 'é'
	}
	h.src.listingErr = errors.New(string(long))

	res := h.run(t)
	run := h.storedRun(t, res.RunID)
	require.NotNil(t, run.ErrorMessage)
	assert.Len(t, []rune(*run.ErrorMessage), models.MaxErrorMessageLength)
}

func TestRun_RunLogCreateFailureIsSwallowed(t *testing.T) {
	h := newHarness(t)
	h.src.list(caseA)
	h.store.createRunErr = errors.New("insert failed")

	res := h.run(t)
	assert.Equal(t, models.RunSuccess, res.Status)
	assert.Equal(t, models.RunSuccess, h.storedRun(t, res.RunID).Status, "finish upserts the missing record")
}

func TestRun_ProcessLimit(t *testing.T) {
	h := newHarness(t)
	h.src.list(caseA)
	h.src.list(caseB)
	h.src.list(caseC)

	first := h.run(t, WithProcessLimit(2))
	assert.Equal(t, models.RunSuccess, first.Status)
	assert.Equal(t, 2, first.Stats.Added)
	assert.True(t, first.HasPending)
	assert.True(t, h.storedRun(t, first.RunID).HasPending)

	// C is added; A and B are kept, each loop capped on its own.
	second := h.run(t, WithProcessLimit(2))
	assert.Equal(t, 1, second.Stats.Added)
	assert.Equal(t, 2, second.Stats.Updated)
	assert.False(t, second.HasPending)

	third := h.run(t, WithProcessLimit(1))
	assert.Equal(t, 1, third.Stats.Updated)
	assert.True(t, third.HasPending)
}

func TestRun_ProcessLimitCountsFailures(t *testing.T) {
	h := newHarness(t)
	h.src.list(caseA).openErr = errors.New("boom")
	h.src.list(caseB)

	res := h.run(t, WithProcessLimit(1))
	assert.Equal(t, models.RunPartial, res.Status)
	assert.Equal(t, 0, res.Stats.Added)
	assert.True(t, res.HasPending)
}

func TestRun_DocumentErrorsDoNotFailTheCase(t *testing.T) {
	h := newHarness(t)
	ev := event(caseA, 1, "INIC1", "GONE1", "PROC1")
	h.src.list(caseA, ev)
	h.src.serve(ev)
	delete(h.src.docs, docRef(caseA, 1, "GONE1"))

	res := h.run(t)

	assert.Equal(t, models.RunSuccess, res.Status)
	assert.Equal(t, 0, res.Stats.Errors)
	assert.Equal(t, 1, res.Stats.DocumentErrors)
	assert.Equal(t, 2, res.Stats.DocumentsUploaded)
	assert.Equal(t, []int{1}, h.eventSeqs(t, caseA))
}

func TestRun_InvalidEventStopsAtResumeBoundary(t *testing.T) {
	h := newHarness(t)
	broken := event(caseA, 3)
	broken.OccurredAt = time.Time{}
	h.src.list(caseA, event(caseA, 4), broken, event(caseA, 2), event(caseA, 1))

	res := h.run(t)

	assert.Equal(t, models.RunPartial, res.Status)
	assert.Equal(t, 1, res.Stats.Errors)
	assert.Equal(t, 2, res.Stats.EventsStored)
	assert.Equal(t, []int{1, 2}, h.eventSeqs(t, caseA))
	seq, err := h.repo.MaxEventSeq(context.Background(), caseA)
	require.NoError(t, err)
	assert.Equal(t, 2, seq)
}

func TestRun_EventExtractionFailure(t *testing.T) {
	h := newHarness(t)
	h.src.list(caseA).eventErr = errors.New("table missing")

	res := h.run(t)
	assert.Equal(t, models.RunPartial, res.Status)
	assert.Equal(t, 1, res.Stats.Errors)
	assert.Equal(t, 1, h.src.closed, "page is closed on failure")
}

func TestRun_VanishedCaseIsSkipped(t *testing.T) {
	h := newHarness(t)
	h.src.list(caseA)
	require.Equal(t, models.RunSuccess, h.run(t).Status)

	h.store.updateDeadlines = repository.ErrCaseNotFound
	before := testutil.ToFloat64(metrics.CasesTotal.WithLabelValues(metrics.CaseUpdated))
	res := h.run(t)

	assert.Equal(t, models.RunSuccess, res.Status)
	assert.Equal(t, 1, res.Stats.Updated)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.CasesTotal.WithLabelValues(metrics.CaseUpdated)),
		"metric agrees with the run log count")
	assert.Equal(t, 1, h.src.opened, "vanished case page is not opened")
}

func TestRun_CancellationIsFatal(t *testing.T) {
	h := newHarness(t)
	h.src.list(caseA)
	h.src.list(caseB)

	ctx, cancel := context.WithCancel(context.Background())
	e := h.engine(WithSleep(func(ctx context.Context, d time.Duration) error {
		cancel()
		return ctx.Err()
	}))

	res := e.Run(ctx, h.src)

	assert.Equal(t, models.RunError, res.Status)
	assert.ErrorIs(t, res.Err, context.Canceled)
	assert.Equal(t, 1, h.src.opened)
	assert.Equal(t, models.RunError, h.storedRun(t, res.RunID).Status, "run log is written after cancellation")
}

func TestRun_RefreshesDeadlineOnKeep(t *testing.T) {
	h := newHarness(t)
	h.src.list(caseA)
	require.Equal(t, models.RunSuccess, h.run(t).Status)

	end := time.Date(2026, 3, 1, 23, 59, 59, 0, time.UTC)
	h.src.unlist()
	h.src.mu.Lock()
	h.src.listing.Add(models.DeadlineRecord{
		CaseID:   caseA,
		Handle:   "processo_selecionar&num=" + caseA,
		Deadline: models.Deadline{Description: "Nova intimação", End: &end},
	})
	h.src.mu.Unlock()

	res := h.run(t)
	require.Equal(t, 1, res.Stats.Updated)

	c, err := h.repo.GetCase(context.Background(), caseA)
	require.NoError(t, err)
	assert.Equal(t, "Nova intimação", c.Deadline.Description)
	require.NotNil(t, c.Deadline.End)
	assert.True(t, end.Equal(*c.Deadline.End))
	assert.Equal(t, models.SidePassive, c.Side, "keep does not touch the case header")
}

func TestRun_DocumentsWithFoldedNamesKeepTheirOwnBlob(t *testing.T) {
	h := newHarness(t)
	ev := event(caseA, 1)
	ev.Documents = []models.DocumentRef{
		{Name: "Petição", Ref: "ref-1"},
		{Name: "Peticao", Ref: "ref-2"},
	}
	h.src.list(caseA, ev)
	h.src.docs["ref-1"] = []byte("%PDF-first document")
	h.src.docs["ref-2"] = []byte("%PDF-second document")

	res := h.run(t)
	require.NoError(t, res.Err)
	assert.Equal(t, models.RunSuccess, res.Status)
	assert.Equal(t, 2, res.Stats.DocumentsUploaded)

	docs, err := h.repo.ListDocuments(context.Background(), caseA)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.NotEqual(t, docs[0].StoragePath, docs[1].StoragePath)

	files, err := h.blobs.List(caseA)
	require.NoError(t, err)
	assert.Len(t, files, 2)
	for _, d := range docs {
		assert.Equal(t, blobstore.ContentHash(h.src.docs[d.ExternalRef]), d.ContentHash, d.ExternalRef)
		assert.Contains(t, files, d.StoragePath)
	}
}

func TestRun_KeptRecordWithoutLinkLeavesDeadlineAlone(t *testing.T) {
	h := newHarness(t)
	h.src.list(caseA)
	require.Equal(t, models.RunSuccess, h.run(t).Status)

	h.src.unlist()
	h.src.mu.Lock()
	h.src.listing.Add(models.DeadlineRecord{
		CaseID:   caseA,
		Deadline: models.Deadline{Description: "Prazo sem link"},
	})
	h.src.mu.Unlock()

	res := h.run(t)
	assert.Equal(t, 1, res.Stats.Errors)
	assert.Equal(t, 0, res.Stats.Updated)

	c, err := h.repo.GetCase(context.Background(), caseA)
	require.NoError(t, err)
	assert.Equal(t, "Intimação", c.Deadline.Description, "invalid record does not touch the stored case")
}
