package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bborgeswq/eproc-scraper-2.0/common/logging"
	"github.com/bborgeswq/eproc-scraper-2.0/common/messaging"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/models"
)

type mockPublisher struct {
	mu   sync.Mutex
	msgs []*messaging.Message
	err  error
}

func (m *mockPublisher) Publish(ctx context.Context, subject string, data []byte) error {
	return m.PublishMsg(ctx, &messaging.Message{Subject: subject, Data: data})
}

func (m *mockPublisher) PublishMsg(ctx context.Context, msg *messaging.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.msgs = append(m.msgs, msg)
	return nil
}

func (m *mockPublisher) Close() error { return nil }

func TestPublisher_CaseAdded(t *testing.T) {
	mock := &mockPublisher{}
	p := NewPublisher(mock, logging.Discard())
	ctx := logging.ContextWithRunID(context.Background(), "run-42")

	p.CaseAdded(ctx, &models.Case{
		ID:           "5000001-11.2025.8.21.0001",
		Side:         models.SidePassive,
		AdvocateRole: "RÉU",
		Court:        "1ª Vara Cível",
		Parties:      []models.Party{{Role: "RÉU", Name: "BANCO"}},
	})

	require.Len(t, mock.msgs, 1)
	msg := mock.msgs[0]
	assert.Equal(t, messaging.SubjectCasesAdded, msg.Subject)
	assert.Equal(t, "run-42", msg.Metadata[messaging.HeaderRunID])

	var got CaseAddedEvent
	require.NoError(t, json.Unmarshal(msg.Data, &got))
	assert.Equal(t, "5000001-11.2025.8.21.0001", got.CaseID)
	assert.Equal(t, models.SidePassive, got.Side)
	assert.Equal(t, "RÉU", got.AdvocateRole)
	require.Len(t, got.Parties, 1)
}

func TestPublisher_CaseRemovedAndRunFinished(t *testing.T) {
	mock := &mockPublisher{}
	p := NewPublisher(mock, logging.Discard())
	p.now = func() time.Time { return time.Date(2026, 2, 10, 12, 0, 0, 0, time.UTC) }

	p.CaseRemoved(context.Background(), "X")
	p.RunFinished(context.Background(), &models.RunLog{ID: "r1", Status: models.RunPartial, Errors: 2})

	require.Len(t, mock.msgs, 2)
	assert.Equal(t, messaging.SubjectCasesRemoved, mock.msgs[0].Subject)
	assert.JSONEq(t, `{"case_id":"X","removed_at":"2026-02-10T12:00:00Z"}`, string(mock.msgs[0].Data))
	assert.Empty(t, mock.msgs[0].Metadata)

	assert.Equal(t, messaging.SubjectSyncFinished, mock.msgs[1].Subject)
	var run models.RunLog
	require.NoError(t, json.Unmarshal(mock.msgs[1].Data, &run))
	assert.Equal(t, models.RunPartial, run.Status)
	assert.Equal(t, 2, run.Errors)
}

func TestPublisher_FailureIsSwallowed(t *testing.T) {
	mock := &mockPublisher{err: errors.New("nats: connection closed")}
	p := NewPublisher(mock, logging.Discard())

	assert.NotPanics(t, func() {
		p.CaseRemoved(context.Background(), "X")
	})
	assert.Empty(t, mock.msgs)
}

func TestPublisher_PublishesAfterCancellation(t *testing.T) {
	mock := &mockPublisher{}
	p := NewPublisher(mock, logging.Discard())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	p.RunFinished(ctx, &models.RunLog{ID: "r1", Status: models.RunError})
	assert.Len(t, mock.msgs, 1)
}
