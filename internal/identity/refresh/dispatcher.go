// Package refresh hands stale, frequently looked up wallets to the
// enrichment pipeline. The dispatcher only fills the queue; the enrichment
// worker drains it with RedisQueue.Pop and watches its depth with Len.
package refresh

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"walletid/internal/identity/metrics"
)

// CandidateSource lists wallets due for re-enrichment.
type CandidateSource interface {
	GetRefreshCandidates(ctx context.Context, limit, minLookupCount int) ([]string, error)
}

// Queue accepts wallets for re-enrichment and returns the ones it took.
type Queue interface {
	Enqueue(ctx context.Context, wallets []string) ([]string, error)
}

// Config controls one dispatcher.
type Config struct {
	Interval       time.Duration
	Limit          int
	MinLookupCount int
}

type Dispatcher struct {
	source  CandidateSource
	queue   Queue
	cfg     Config
	logger  *slog.Logger
	metrics *metrics.Metrics
}

type Option func(*Dispatcher)

func WithLogger(logger *slog.Logger) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.metrics = m
	}
}

func NewDispatcher(source CandidateSource, queue Queue, cfg Config, opts ...Option) (*Dispatcher, error) {
	if source == nil || queue == nil {
		return nil, errors.New("refresh dispatcher needs a candidate source and a queue")
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 100
	}
	d := &Dispatcher{
		source: source,
		queue:  queue,
		cfg:    cfg,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// RunOnce enqueues the current refresh candidates and returns how many were
// newly enqueued.
func (d *Dispatcher) RunOnce(ctx context.Context) (int, error) {
	wallets, err := d.source.GetRefreshCandidates(ctx, d.cfg.Limit, d.cfg.MinLookupCount)
	if err != nil {
		return 0, err
	}
	if len(wallets) == 0 {
		return 0, nil
	}

	enqueued, err := d.queue.Enqueue(ctx, wallets)
	if err != nil {
		return 0, err
	}
	d.metrics.AddRefreshEnqueued(len(enqueued))
	d.logger.InfoContext(ctx, "refresh candidates dispatched",
		"candidates", len(wallets),
		"enqueued", len(enqueued),
	)
	return len(enqueued), nil
}

// Run dispatches on every tick until ctx is cancelled. A failed tick is
// logged and the next one proceeds.
func (d *Dispatcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if _, err := d.RunOnce(ctx); err != nil {
				d.logger.WarnContext(ctx, "refresh dispatch failed", "error", err)
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
