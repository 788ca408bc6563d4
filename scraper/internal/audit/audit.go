// Package audit summarizes what the sync has stored, to spot extraction gaps.
package audit

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/models"
)

const briefLength = 60

// Reader is the read side of the store.
type Reader interface {
	ListCases(ctx context.Context) ([]*models.Case, error)
	ListEvents(ctx context.Context, caseID string) ([]*models.Event, error)
	ListDocuments(ctx context.Context, caseID string) ([]*models.Document, error)
	ListRuns(ctx context.Context, limit int) ([]*models.RunLog, error)
}

// Report is the full audit.
type Report struct {
	GeneratedAt time.Time           `json:"generated_at" yaml:"generated_at"`
	Totals      Totals              `json:"totals" yaml:"totals"`
	Sides       map[models.Side]int `json:"sides" yaml:"sides"`
	Cases       []CaseSummary       `json:"cases" yaml:"cases"`
	Runs        []*models.RunLog    `json:"runs" yaml:"runs"`
}

// Totals aggregates every case.
type Totals struct {
	Cases     int   `json:"cases" yaml:"cases"`
	Events    int   `json:"events" yaml:"events"`
	Documents int   `json:"documents" yaml:"documents"`
	Bytes     int64 `json:"bytes" yaml:"bytes"`
}

// CaseSummary is the audit line of one case.
type CaseSummary struct {
	CaseID       string      `json:"case_id" yaml:"case_id"`
	Side         models.Side `json:"side" yaml:"side"`
	AdvocateRole string      `json:"advocate_role,omitempty" yaml:"advocate_role,omitempty"`
	Class        string      `json:"class,omitempty" yaml:"class,omitempty"`
	Court        string      `json:"court,omitempty" yaml:"court,omitempty"`
	Parties      int         `json:"parties" yaml:"parties"`
	Subjects     int         `json:"subjects" yaml:"subjects"`
	// MissingFields lists header fields the extraction left empty.
	MissingFields []string        `json:"missing_fields,omitempty" yaml:"missing_fields,omitempty"`
	DeadlineEnd   *time.Time      `json:"deadline_end,omitempty" yaml:"deadline_end,omitempty"`
	Events        EventSummary    `json:"events" yaml:"events"`
	Documents     DocumentSummary `json:"documents" yaml:"documents"`
}

// EventSummary counts how often optional event fields were filled.
type EventSummary struct {
	Total            int         `json:"total" yaml:"total"`
	WithActor        int         `json:"with_actor" yaml:"with_actor"`
	WithDeadline     int         `json:"with_deadline" yaml:"with_deadline"`
	WithDeadlineDays int         `json:"with_deadline_days" yaml:"with_deadline_days"`
	WithReference    int         `json:"with_reference" yaml:"with_reference"`
	Urgent           int         `json:"urgent" yaml:"urgent"`
	First            *EventBrief `json:"first,omitempty" yaml:"first,omitempty"`
	Last             *EventBrief `json:"last,omitempty" yaml:"last,omitempty"`
}

// EventBrief identifies one event.
type EventBrief struct {
	Seq         int       `json:"seq" yaml:"seq"`
	OccurredAt  time.Time `json:"occurred_at" yaml:"occurred_at"`
	Description string    `json:"description" yaml:"description"`
}

// DocumentSummary aggregates the stored documents of a case.
type DocumentSummary struct {
	Total             int                         `json:"total" yaml:"total"`
	ByType            map[models.DocumentType]int `json:"by_type" yaml:"by_type"`
	Bytes             int64                       `json:"bytes" yaml:"bytes"`
	WithoutStorageURL int                         `json:"without_storage_url" yaml:"without_storage_url"`
}

// Build reads everything from r and summarizes it, with the last runLimit run logs.
func Build(ctx context.Context, r Reader, runLimit int, now time.Time) (*Report, error) {
	cases, err := r.ListCases(ctx)
	if err != nil {
		return nil, fmt.Errorf("list cases: %w", err)
	}

	rep := &Report{
		GeneratedAt: now,
		Sides:       map[models.Side]int{},
		Cases:       make([]CaseSummary, 0, len(cases)),
	}
	for _, c := range cases {
		events, err := r.ListEvents(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("list events of %s: %w", c.ID, err)
		}
		docs, err := r.ListDocuments(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("list documents of %s: %w", c.ID, err)
		}

		sum := summarizeCase(c, events, docs)
		rep.Cases = append(rep.Cases, sum)
		rep.Sides[sum.Side]++
		rep.Totals.Cases++
		rep.Totals.Events += sum.Events.Total
		rep.Totals.Documents += sum.Documents.Total
		rep.Totals.Bytes += sum.Documents.Bytes
	}
	sort.Slice(rep.Cases, func(i, j int) bool { return rep.Cases[i].CaseID < rep.Cases[j].CaseID })

	if runLimit > 0 {
		runs, err := r.ListRuns(ctx, runLimit)
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		rep.Runs = runs
	}
	if rep.Runs == nil {
		rep.Runs = []*models.RunLog{}
	}
	return rep, nil
}

func summarizeCase(c *models.Case, events []*models.Event, docs []*models.Document) CaseSummary {
	side := c.Side
	if side == "" {
		side = models.SideUnknown
	}
	s := CaseSummary{
		CaseID:        c.ID,
		Side:          side,
		AdvocateRole:  c.AdvocateRole,
		Class:         c.Class,
		Court:         c.Court,
		Parties:       len(c.Parties),
		Subjects:      len(c.Subjects),
		MissingFields: missingFields(c),
		DeadlineEnd:   c.Deadline.End,
		Events:        summarizeEvents(events),
		Documents:     summarizeDocuments(docs),
	}
	return s
}

func missingFields(c *models.Case) []string {
	var missing []string
	check := func(name, value string) {
		if value == "" {
			missing = append(missing, name)
		}
	}
	check("class", c.Class)
	check("jurisdiction", c.Jurisdiction)
	if c.FiledOn == nil {
		missing = append(missing, "filed_on")
	}
	check("situation", c.Situation)
	check("judging_body", c.JudgingBody)
	check("judge", c.Judge)
	check("court", c.Court)
	if len(c.Parties) == 0 {
		missing = append(missing, "parties")
	}
	if len(c.Subjects) == 0 {
		missing = append(missing, "subjects")
	}
	return missing
}

func summarizeEvents(events []*models.Event) EventSummary {
	sorted := make([]*models.Event, len(events))
	copy(sorted, events)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Seq < sorted[j].Seq })

	s := EventSummary{Total: len(sorted)}
	for _, e := range sorted {
		if e.Actor != "" {
			s.WithActor++
		}
		if e.HasDeadline {
			s.WithDeadline++
		}
		if e.DeadlineDays != nil {
			s.WithDeadlineDays++
		}
		if e.RefersTo != nil {
			s.WithReference++
		}
		if e.Urgent {
			s.Urgent++
		}
	}
	if len(sorted) > 0 {
		s.First = brief(sorted[0])
		s.Last = brief(sorted[len(sorted)-1])
	}
	return s
}

func brief(e *models.Event) *EventBrief {
	return &EventBrief{
		Seq:         e.Seq,
		OccurredAt:  e.OccurredAt,
		Description: models.TruncateMessage(e.Description, briefLength),
	}
}

func summarizeDocuments(docs []*models.Document) DocumentSummary {
	s := DocumentSummary{Total: len(docs), ByType: map[models.DocumentType]int{}}
	for _, d := range docs {
		t := d.Type
		if t == "" {
			t = models.DocumentOther
		}
		s.ByType[t]++
		s.Bytes += d.SizeBytes
		if d.StorageURL == "" {
			s.WithoutStorageURL++
		}
	}
	return s
}
