package eproc

import (
	"context"

	"github.com/bborgeswq/eproc-scraper-2.0/common/logging"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/engine"
)

var _ engine.Source = (*Session)(nil)

// Session is an authenticated portal client.
type Session struct {
	*Client
}

// SessionFactory opens fresh authenticated sessions.
type SessionFactory struct {
	cfg    Config
	logger *logging.Logger
}

// NewSessionFactory returns a factory for cfg.
func NewSessionFactory(cfg Config, logger *logging.Logger) *SessionFactory {
	if logger == nil {
		logger = logging.Default()
	}
	return &SessionFactory{cfg: cfg, logger: logger}
}

// Open builds a new client with an empty cookie jar and logs in.
func (f *SessionFactory) Open(ctx context.Context) (*Session, error) {
	client, err := NewClient(f.cfg, f.logger)
	if err != nil {
		return nil, err
	}
	if err := client.Login(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return &Session{Client: client}, nil
}
