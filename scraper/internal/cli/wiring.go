package cli

import (
	"context"
	"fmt"

	"github.com/bborgeswq/eproc-scraper-2.0/common/logging"
	"github.com/bborgeswq/eproc-scraper-2.0/common/messaging"
	natsclient "github.com/bborgeswq/eproc-scraper-2.0/common/messaging/nats"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/blobstore"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/config"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/engine"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/eproc"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/lock"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/notify"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/repository"
	"github.com/bborgeswq/eproc-scraper-2.0/scraper/internal/runloop"
)

const serviceName = "eproc-scraper"

func newLogger(cfg *config.Config) *logging.Logger {
	logger := logging.New(logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format).
		With(logging.Service(serviceName))
	logging.SetDefault(logger)
	return logger
}

// openStore connects the configured repository. Postgres schemas are migrated first when migrateUp is set.
func openStore(ctx context.Context, cfg *config.Config, logger *logging.Logger, migrateUp bool) (repository.Repository, error) {
	switch cfg.Database.Type {
	case config.DatabaseMemory:
		logger.Warn("Using the in-memory store; nothing survives a restart")
		return repository.NewInMemoryRepository(), nil
	case config.DatabasePostgres:
	default:
		return nil, fmt.Errorf("unknown database type %q", cfg.Database.Type)
	}

	connString := cfg.Database.ConnString()
	if migrateUp {
		logger.Info("Running database migrations")
		if err := migrateUpTo(connString); err != nil {
			return nil, err
		}
		logger.Info("Database migrations completed")
	}
	repo, err := repository.NewPostgresRepository(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return repo, nil
}

func migrateUpTo(connString string) error {
	mg, err := repository.NewMigrator(connString)
	if err != nil {
		return err
	}
	defer mg.Close()
	return mg.Up()
}

func openBlobs(cfg *config.Config) (engine.BlobStore, error) {
	switch cfg.Storage.Backend {
	case config.StorageSupabase:
		s := cfg.Storage.Supabase
		return blobstore.NewSupabaseStore(blobstore.SupabaseConfig{
			URL:     s.URL,
			Key:     s.Key,
			Bucket:  s.Bucket,
			Timeout: s.Timeout,
		})
	case config.StorageFilesystem:
		return blobstore.NewOSFilesystemStore(cfg.Storage.Filesystem.Root, cfg.Storage.Filesystem.BaseURL)
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

func portalConfig(cfg *config.Config) (eproc.Config, error) {
	pc := eproc.DefaultConfig()
	p := cfg.Portal
	if p.BaseURL != "" {
		pc.BaseURL = p.BaseURL
	}
	if p.LoginPath != "" {
		pc.LoginPath = p.LoginPath
	}
	if p.UserAgent != "" {
		pc.UserAgent = p.UserAgent
	}
	if p.Timeout > 0 {
		pc.Timeout = p.Timeout
	}
	if p.RequestsPerSecond > 0 {
		pc.RequestsPerSecond = p.RequestsPerSecond
	}
	if p.Burst > 0 {
		pc.Burst = p.Burst
	}
	pc.Username = p.Username
	pc.Password = p.Password
	pc.TOTPSecret = p.TOTPSecret

	proxy, err := p.Proxy.URL()
	if err != nil {
		return eproc.Config{}, err
	}
	pc.ProxyURL = proxy
	return pc, nil
}

// openLocker returns the Redis run lock, or a no-op lock when Redis is disabled.
func openLocker(ctx context.Context, cfg *config.Config) (lock.Locker, func(), error) {
	if !cfg.Redis.Enabled {
		return lock.Noop{}, func() {}, nil
	}
	client, err := lock.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, nil, err
	}
	return lock.NewRedisLock(client, cfg.Redis.Key, cfg.Redis.TTL), func() { _ = client.Close() }, nil
}

// openBus connects to NATS when enabled. A broker that cannot be reached only
// disables notifications.
func openBus(cfg *config.Config, logger *logging.Logger) (messaging.Client, engine.Notifier, func()) {
	if !cfg.NATS.Enabled {
		return nil, nil, func() {}
	}
	nc := natsclient.DefaultConfig()
	nc.URL = cfg.NATS.URL
	nc.MaxReconnects = cfg.NATS.MaxReconnects
	if cfg.NATS.ReconnectWait > 0 {
		nc.ReconnectWait = cfg.NATS.ReconnectWait
	}
	client, err := natsclient.NewClient(nc, logger)
	if err != nil {
		logger.Warn("NATS unavailable; notifications disabled", logging.URL(cfg.NATS.URL), logging.Error(err))
		return nil, nil, func() {}
	}
	return client, notify.NewPublisher(client, logger), func() { _ = client.Drain() }
}

// services is everything a sync needs, built from the config.
type services struct {
	cfg    *config.Config
	logger *logging.Logger
	store  repository.Repository
	bus    messaging.Client
	engine *engine.Engine
	loop   *runloop.Loop
	closes []func()
}

func (s *services) Close() {
	for i := len(s.closes) - 1; i >= 0; i-- {
		s.closes[i]()
	}
}

// buildServices wires the store, blob store, portal sessions, lock and
// notifications into an engine and run loop.
func buildServices(ctx context.Context, cfg *config.Config, logger *logging.Logger, migrateUp bool) (*services, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &services{cfg: cfg, logger: logger}

	store, err := openStore(ctx, cfg, logger, migrateUp)
	if err != nil {
		return nil, err
	}
	s.store = store
	s.closes = append(s.closes, store.Close)

	blobs, err := openBlobs(cfg)
	if err != nil {
		s.Close()
		return nil, err
	}

	pc, err := portalConfig(cfg)
	if err != nil {
		s.Close()
		return nil, err
	}

	locker, unlock, err := openLocker(ctx, cfg)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.closes = append(s.closes, unlock)

	bus, notifier, closeBus := openBus(cfg, logger)
	s.bus = bus
	s.closes = append(s.closes, closeBus)

	s.engine = engine.New(store, blobs,
		engine.WithProcessLimit(cfg.Sync.ProcessLimit),
		engine.WithCasePause(cfg.Sync.CasePause),
		engine.WithIdentity(engine.Identity{Name: cfg.Advocate.Name, Registration: cfg.Advocate.Registration}),
		engine.WithLogger(logger),
		engine.WithNotifier(notifier),
	)

	factory := eproc.NewSessionFactory(pc, logger)
	open := func(ctx context.Context) (runloop.Session, error) {
		session, err := factory.Open(ctx)
		if err != nil {
			return nil, err
		}
		return session, nil
	}
	s.loop = runloop.New(s.engine, open,
		runloop.WithLocker(locker),
		runloop.WithLogger(logger),
		runloop.WithPolicy(runloop.Policy{
			ShortInterval:      cfg.Sync.ShortInterval,
			LongInterval:       cfg.Sync.LongInterval,
			RecoveryBackoff:    cfg.Sync.RecoveryBackoff,
			MaxRecoveryBackoff: cfg.Sync.MaxRecoveryBackoff,
		}),
	)
	return s, nil
}
