package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/models"
)

// runRepositoryContract exercises behaviour shared by every Repository implementation.
func runRepositoryContract(t *testing.T, newRepo func(t *testing.T) Repository) {
	ctx := context.Background()
	ts := func(s string) *time.Time {
		v, err := time.Parse(time.RFC3339, s)
		require.NoError(t, err)
		return &v
	}

	newCase := func(id string) *models.Case {
		return &models.Case{
			ID:           id,
			Side:         models.SideActive,
			AdvocateRole: "AUTOR",
			Class:        "PROCEDIMENTO COMUM CÍVEL",
			Court:        "1ª Vara Cível de Porto Alegre",
			RelatedCases: []string{"5000001-11.2023.8.21.0001"},
			Subjects:     []models.Subject{{Code: "7780", Description: "Indenização por Dano Moral"}},
			Parties: []models.Party{{
				Role: "AUTOR", Name: "MARIA DA SILVA",
				Representatives: []models.Representative{{Name: "JOAO ADVOGADO", Registration: "RS053253", Kind: "Advogado"}},
			}},
			Deadline: models.Deadline{Description: "Intimação - Prazo 15 dias", End: ts("2026-02-19T23:59:59-03:00")},
		}
	}

	event := func(caseID string, seq int) *models.Event {
		return &models.Event{CaseID: caseID, Seq: seq, OccurredAt: time.Date(2026, 1, seq, 10, 0, 0, 0, time.UTC), Description: "evento"}
	}

	t.Run("upsert case is idempotent", func(t *testing.T) {
		repo := newRepo(t)
		c := newCase("5001234-56.2024.8.21.0001")
		require.NoError(t, repo.UpsertCase(ctx, c))
		require.NoError(t, repo.UpsertCase(ctx, c))

		ids, err := repo.ListCaseIDs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{c.ID}, ids)

		got, err := repo.GetCase(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, models.SideActive, got.Side)
		assert.Equal(t, c.Subjects, got.Subjects)
		assert.Equal(t, c.Parties, got.Parties)
		assert.Equal(t, c.RelatedCases, got.RelatedCases)
	})

	t.Run("update deadline of missing case", func(t *testing.T) {
		repo := newRepo(t)
		err := repo.UpdateCaseDeadline(ctx, "missing", models.Deadline{Description: "x"})
		assert.ErrorIs(t, err, ErrCaseNotFound)
	})

	t.Run("update deadline refreshes only deadline fields", func(t *testing.T) {
		repo := newRepo(t)
		c := newCase("5001234-56.2024.8.21.0002")
		require.NoError(t, repo.UpsertCase(ctx, c))

		require.NoError(t, repo.UpdateCaseDeadline(ctx, c.ID, models.Deadline{Description: "novo prazo", End: ts("2026-03-01T23:59:59-03:00")}))

		got, err := repo.GetCase(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "novo prazo", got.Deadline.Description)
		assert.Equal(t, c.Class, got.Class)
		assert.NotNil(t, got.LastSyncedAt)
	})

	t.Run("events are insert-once", func(t *testing.T) {
		repo := newRepo(t)
		c := newCase("5001234-56.2024.8.21.0003")
		require.NoError(t, repo.UpsertCase(ctx, c))

		max, err := repo.MaxEventSeq(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, max)

		first := event(c.ID, 1)
		require.NoError(t, repo.UpsertEvent(ctx, first))
		require.NoError(t, repo.UpsertEvent(ctx, event(c.ID, 2)))

		changed := event(c.ID, 1)
		changed.Description = "changed"
		require.NoError(t, repo.UpsertEvent(ctx, changed))

		events, err := repo.ListEvents(ctx, c.ID)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, "evento", events[0].Description)

		max, err = repo.MaxEventSeq(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, max)
	})

	t.Run("event for unknown case", func(t *testing.T) {
		repo := newRepo(t)
		err := repo.UpsertEvent(ctx, event("nope", 1))
		assert.ErrorIs(t, err, ErrCaseNotFound)
	})

	t.Run("documents keyed by natural key", func(t *testing.T) {
		repo := newRepo(t)
		c := newCase("5001234-56.2024.8.21.0004")
		require.NoError(t, repo.UpsertCase(ctx, c))
		require.NoError(t, repo.UpsertEvent(ctx, event(c.ID, 3)))

		doc := &models.Document{
			CaseID: c.ID, EventSeq: 3, ExternalRef: "controlador.php?acao=acessar_documento&doc=1",
			OriginalName: "INIC1", Type: models.DocumentPDF, StoragePath: c.ID + "/evt_03/INIC1.pdf",
			StorageURL: "https://blob/INIC1.pdf", SizeBytes: 1024, ContentHash: "abc",
		}
		key := doc.Key()

		exists, err := repo.DocumentExists(ctx, key)
		require.NoError(t, err)
		assert.False(t, exists)

		require.NoError(t, repo.UpsertDocument(ctx, doc))
		firstID := doc.ID
		assert.NotEmpty(t, firstID)

		again := *doc
		again.ID = ""
		again.SizeBytes = 2048
		require.NoError(t, repo.UpsertDocument(ctx, &again))
		assert.Equal(t, firstID, again.ID)

		exists, err = repo.DocumentExists(ctx, key)
		require.NoError(t, err)
		assert.True(t, exists)

		docs, err := repo.ListDocuments(ctx, c.ID)
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, int64(2048), docs[0].SizeBytes)
	})

	t.Run("delete case cascades", func(t *testing.T) {
		repo := newRepo(t)
		c := newCase("5001234-56.2024.8.21.0005")
		require.NoError(t, repo.UpsertCase(ctx, c))
		require.NoError(t, repo.UpsertEvent(ctx, event(c.ID, 1)))
		require.NoError(t, repo.UpsertDocument(ctx, &models.Document{
			CaseID: c.ID, EventSeq: 1, ExternalRef: "r", OriginalName: "n", Type: models.DocumentPDF,
			StoragePath: "p", ContentHash: "h",
		}))

		require.NoError(t, repo.DeleteCase(ctx, c.ID))

		ids, err := repo.ListCaseIDs(ctx)
		require.NoError(t, err)
		assert.Empty(t, ids)

		events, err := repo.ListEvents(ctx, c.ID)
		require.NoError(t, err)
		assert.Empty(t, events)

		exists, err := repo.DocumentExists(ctx, models.DocumentKey{CaseID: c.ID, EventSeq: 1, ExternalRef: "r"})
		require.NoError(t, err)
		assert.False(t, exists)

		assert.ErrorIs(t, repo.DeleteCase(ctx, c.ID), ErrCaseNotFound)
	})

	t.Run("run log lifecycle", func(t *testing.T) {
		repo := newRepo(t)
		started := time.Now().UTC().Truncate(time.Millisecond)
		run := &models.RunLog{ID: "0190f5a2-7b1c-7c3d-8e4f-5a6b7c8d9e0f", StartedAt: started, Status: models.RunRunning}
		require.NoError(t, repo.CreateRun(ctx, run))

		run.Finish(models.RunPartial, models.RunStats{Added: 1, Errors: 2}, true, "", started.Add(time.Minute))
		require.NoError(t, repo.FinishRun(ctx, run))

		got, err := repo.GetRun(ctx, run.ID)
		require.NoError(t, err)
		assert.Equal(t, models.RunPartial, got.Status)
		assert.Equal(t, 2, got.Errors)
		assert.True(t, got.HasPending)
		assert.NotNil(t, got.FinishedAt)

		_, err = repo.GetRun(ctx, "0190f5a2-0000-7000-8000-000000000000")
		assert.ErrorIs(t, err, ErrRunNotFound)
	})

	t.Run("finish run without create", func(t *testing.T) {
		repo := newRepo(t)
		run := &models.RunLog{ID: "0190f5a2-7b1c-7c3d-8e4f-000000000001", StartedAt: time.Now().UTC(), Status: models.RunRunning}
		run.Finish(models.RunError, models.RunStats{}, false, "listing failed", time.Now().UTC())
		require.NoError(t, repo.FinishRun(ctx, run))

		runs, err := repo.ListRuns(ctx, 5)
		require.NoError(t, err)
		require.Len(t, runs, 1)
		assert.Equal(t, models.RunError, runs[0].Status)
		require.NotNil(t, runs[0].ErrorMessage)
		assert.Equal(t, "listing failed", *runs[0].ErrorMessage)
	})
}
