package repository

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/models"
)

type eventKey struct {
	caseID string
	seq    int
}

// InMemoryRepository mirrors the PostgreSQL semantics in process memory.
type InMemoryRepository struct {
	cases     map[string]*models.Case
	events    map[eventKey]*models.Event
	documents map[models.DocumentKey]*models.Document
	runs      map[string]*models.RunLog
	mu        sync.RWMutex
}

func NewInMemoryRepository() *InMemoryRepository {
	return &InMemoryRepository{
		cases:     make(map[string]*models.Case),
		events:    make(map[eventKey]*models.Event),
		documents: make(map[models.DocumentKey]*models.Document),
		runs:      make(map[string]*models.RunLog),
	}
}

func (r *InMemoryRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

func (r *InMemoryRepository) Close() {}

func (r *InMemoryRepository) ListCaseIDs(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.cases))
	for id := range r.cases {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *InMemoryRepository) GetCase(ctx context.Context, id string) (*models.Case, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.cases[id]
	if !ok {
		return nil, ErrCaseNotFound
	}
	return cloneCase(c), nil
}

func (r *InMemoryRepository) ListCases(ctx context.Context) ([]*models.Case, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cases := make([]*models.Case, 0, len(r.cases))
	for _, c := range r.cases {
		cases = append(cases, cloneCase(c))
	}
	sort.Slice(cases, func(i, j int) bool { return cases[i].ID < cases[j].ID })
	return cases, nil
}

func (r *InMemoryRepository) UpsertCase(ctx context.Context, c *models.Case) error {
	if err := c.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	cp := cloneCase(c)
	if cp.Side == "" {
		cp.Side = models.SideUnknown
	}
	if existing, ok := r.cases[c.ID]; ok {
		cp.CreatedAt = existing.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	r.cases[c.ID] = cp
	return nil
}

func (r *InMemoryRepository) UpdateCaseDeadline(ctx context.Context, id string, deadline models.Deadline) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.cases[id]
	if !ok {
		return ErrCaseNotFound
	}
	now := time.Now().UTC()
	c.Deadline = deadline
	c.LastSyncedAt = &now
	c.UpdatedAt = now
	return nil
}

// DeleteCase removes the case with its events and documents.
func (r *InMemoryRepository) DeleteCase(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.cases[id]; !ok {
		return ErrCaseNotFound
	}
	delete(r.cases, id)
	for k := range r.events {
		if k.caseID == id {
			delete(r.events, k)
		}
	}
	for k := range r.documents {
		if k.CaseID == id {
			delete(r.documents, k)
		}
	}
	return nil
}

func (r *InMemoryRepository) MaxEventSeq(ctx context.Context, caseID string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	max := 0
	for k := range r.events {
		if k.caseID == caseID && k.seq > max {
			max = k.seq
		}
	}
	return max, nil
}

func (r *InMemoryRepository) UpsertEvent(ctx context.Context, e *models.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.cases[e.CaseID]; !ok {
		return ErrCaseNotFound
	}
	key := eventKey{caseID: e.CaseID, seq: e.Seq}
	if _, ok := r.events[key]; ok {
		return nil
	}
	cp := *e
	cp.CreatedAt = time.Now().UTC()
	r.events[key] = &cp
	return nil
}

func (r *InMemoryRepository) ListEvents(ctx context.Context, caseID string) ([]*models.Event, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var events []*models.Event
	for k, e := range r.events {
		if k.caseID == caseID {
			cp := *e
			events = append(events, &cp)
		}
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	return events, nil
}

func (r *InMemoryRepository) DocumentExists(ctx context.Context, key models.DocumentKey) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.documents[key]
	return ok, nil
}

func (r *InMemoryRepository) UpsertDocument(ctx context.Context, d *models.Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.events[eventKey{caseID: d.CaseID, seq: d.EventSeq}]; !ok {
		return ErrCaseNotFound
	}

	key := d.Key()
	cp := *d
	if existing, ok := r.documents[key]; ok {
		cp.ID = existing.ID
		cp.CreatedAt = existing.CreatedAt
	} else {
		if cp.ID == "" {
			id, err := uuid.NewV7()
			if err != nil {
				return err
			}
			cp.ID = id.String()
		}
		cp.CreatedAt = time.Now().UTC()
	}
	r.documents[key] = &cp
	d.ID = cp.ID
	d.CreatedAt = cp.CreatedAt
	return nil
}

func (r *InMemoryRepository) ListDocuments(ctx context.Context, caseID string) ([]*models.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var docs []*models.Document
	for k, d := range r.documents {
		if k.CaseID == caseID {
			cp := *d
			docs = append(docs, &cp)
		}
	}
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].EventSeq != docs[j].EventSeq {
			return docs[i].EventSeq < docs[j].EventSeq
		}
		return docs[i].OriginalName < docs[j].OriginalName
	})
	return docs, nil
}

func (r *InMemoryRepository) CreateRun(ctx context.Context, run *models.RunLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *run
	r.runs[run.ID] = &cp
	return nil
}

func (r *InMemoryRepository) FinishRun(ctx context.Context, run *models.RunLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *run
	r.runs[run.ID] = &cp
	return nil
}

func (r *InMemoryRepository) GetRun(ctx context.Context, id string) (*models.RunLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	cp := *run
	return &cp, nil
}

func (r *InMemoryRepository) ListRuns(ctx context.Context, limit int) ([]*models.RunLog, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runs := make([]*models.RunLog, 0, len(r.runs))
	for _, run := range r.runs {
		cp := *run
		runs = append(runs, &cp)
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

// cloneCase copies c including its slices and time pointers, so callers
// never share memory with the stored case.
func cloneCase(c *models.Case) *models.Case {
	cp := *c
	cp.RelatedCases = slices.Clone(c.RelatedCases)
	cp.Subjects = slices.Clone(c.Subjects)
	if c.Parties != nil {
		cp.Parties = make([]models.Party, len(c.Parties))
		for i, p := range c.Parties {
			p.Representatives = slices.Clone(p.Representatives)
			cp.Parties[i] = p
		}
	}
	cp.FiledOn = cloneTime(c.FiledOn)
	cp.LastSyncedAt = cloneTime(c.LastSyncedAt)
	cp.Deadline.SentAt = cloneTime(c.Deadline.SentAt)
	cp.Deadline.Start = cloneTime(c.Deadline.Start)
	cp.Deadline.End = cloneTime(c.Deadline.End)
	return &cp
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
