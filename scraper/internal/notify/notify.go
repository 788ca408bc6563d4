// Package notify publishes sync outcomes on the message bus.
package notify

import (
	"context"
	"encoding/json"
	"time"

	"github.com/bborgeswq/eproc-scraper-2.0/common/logging"
	"github.com/bborgeswq/eproc-scraper-2.0/common/messaging"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/engine"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/models"
)

const publishTimeout = 5 * time.Second

// CaseAddedEvent is the payload of messaging.SubjectCasesAdded.
type CaseAddedEvent struct {
	CaseID       string           `json:"case_id"`
	Side         models.Side      `json:"side"`
	AdvocateRole string           `json:"advocate_role,omitempty"`
	Class        string           `json:"class,omitempty"`
	Court        string           `json:"court,omitempty"`
	Deadline     models.Deadline  `json:"deadline"`
	Parties      []models.Party   `json:"parties"`
	Subjects     []models.Subject `json:"subjects"`
}

// CaseRemovedEvent is the payload of messaging.SubjectCasesRemoved.
type CaseRemovedEvent struct {
	CaseID    string    `json:"case_id"`
	RemovedAt time.Time `json:"removed_at"`
}

// Publisher sends engine notifications through a messaging.Publisher.
// Failures are logged and never reach the engine.
type Publisher struct {
	pub    messaging.Publisher
	logger *logging.Logger
	now    func() time.Time
}

var _ engine.Notifier = (*Publisher)(nil)

// NewPublisher wraps pub.
func NewPublisher(pub messaging.Publisher, logger *logging.Logger) *Publisher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Publisher{pub: pub, logger: logger, now: time.Now}
}

func (p *Publisher) CaseAdded(ctx context.Context, c *models.Case) {
	p.publish(ctx, messaging.SubjectCasesAdded, CaseAddedEvent{
		CaseID:       c.ID,
		Side:         c.Side,
		AdvocateRole: c.AdvocateRole,
		Class:        c.Class,
		Court:        c.Court,
		Deadline:     c.Deadline,
		Parties:      c.Parties,
		Subjects:     c.Subjects,
	})
}

func (p *Publisher) CaseRemoved(ctx context.Context, caseID string) {
	p.publish(ctx, messaging.SubjectCasesRemoved, CaseRemovedEvent{CaseID: caseID, RemovedAt: p.now().UTC()})
}

func (p *Publisher) RunFinished(ctx context.Context, run *models.RunLog) {
	p.publish(ctx, messaging.SubjectSyncFinished, run)
}

func (p *Publisher) publish(ctx context.Context, subject string, payload any) {
	log := p.logger.WithContext(ctx)

	data, err := json.Marshal(payload)
	if err != nil {
		log.Warn("Failed to encode notification", "subject", subject, logging.Error(err))
		return
	}

	var opts []messaging.PublishOption
	if runID := logging.RunIDFromContext(ctx); runID != "" {
		opts = append(opts, messaging.WithHeader(messaging.HeaderRunID, runID))
	}

	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if err := p.pub.PublishMsg(pctx, messaging.NewMessage(subject, data, opts...)); err != nil {
		log.Warn("Failed to publish notification", "subject", subject, logging.Error(err))
		return
	}
	log.Debug("Notification published", "subject", subject)
}
