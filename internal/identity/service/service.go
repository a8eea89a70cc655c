// Package service coordinates identity writes and reads: it batches provider
// results through the merge engine, applies them atomically with retry, keeps
// the audit trail in the same transaction, and classifies records for
// readers.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"walletid/internal/identity/merge"
	"walletid/internal/identity/metrics"
	"walletid/internal/identity/models"
	"walletid/internal/identity/ports"
)

// Type aliases for shared interfaces.
type (
	Store           = ports.Store
	ChangePublisher = ports.ChangePublisher
)

// Config holds the store's write policy.
type Config struct {
	StalenessWindow time.Duration
	// MaxRetries is the default number of storage attempts per batch.
	MaxRetries      int
	RetryBaseDelay  time.Duration
	RetryMultiplier float64
	// ChunkSize bounds the rows written per statement.
	ChunkSize int
}

// DefaultConfig returns the production write policy.
func DefaultConfig() Config {
	return Config{
		StalenessWindow: merge.DefaultStalenessWindow,
		MaxRetries:      3,
		RetryBaseDelay:  time.Second,
		RetryMultiplier: 2,
		ChunkSize:       100,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.StalenessWindow <= 0 {
		c.StalenessWindow = d.StalenessWindow
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RetryBaseDelay <= 0 {
		c.RetryBaseDelay = d.RetryBaseDelay
	}
	if c.RetryMultiplier < 1 {
		c.RetryMultiplier = d.RetryMultiplier
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = d.ChunkSize
	}
	return c
}

type Service struct {
	store     Store
	publisher ChangePublisher
	logger    *slog.Logger
	metrics   *metrics.Metrics
	tracer    trace.Tracer
	cfg       Config
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithChangePublisher enables best-effort publication of committed audit
// entries.
func WithChangePublisher(publisher ChangePublisher) Option {
	return func(s *Service) {
		s.publisher = publisher
	}
}

// WithConfig overrides the write policy. Zero fields keep their defaults.
func WithConfig(cfg Config) Option {
	return func(s *Service) {
		s.cfg = cfg.withDefaults()
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, fmt.Errorf("identity store is required")
	}

	svc := &Service{
		store:  store,
		logger: slog.New(slog.DiscardHandler),
		tracer: otel.Tracer("walletid/identity"),
		cfg:    DefaultConfig(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// publishChanges hands committed audit entries to the change feed. Failures
// are logged and counted; the write they describe is already durable.
func (s *Service) publishChanges(ctx context.Context, entries []models.AuditEntry) {
	if s.publisher == nil || len(entries) == 0 {
		return
	}
	if err := s.publisher.Publish(ctx, entries); err != nil {
		s.metrics.AddChangeFeed("failed", len(entries))
		s.logger.WarnContext(ctx, "identity change feed publish failed",
			"entries", len(entries),
			"error", err,
		)
		return
	}
	s.metrics.AddChangeFeed("published", len(entries))
}
