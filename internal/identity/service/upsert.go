package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"walletid/internal/identity/merge"
	"walletid/internal/identity/models"
	"walletid/pkg/platform/sentinel"
	"walletid/pkg/requestcontext"
)

// Final batch outcomes reported to metrics.
const (
	outcomeSucceeded = "succeeded"
	outcomePermanent = "failed_permanent"
	outcomeExhausted = "failed_exhausted"
)

// batchPlan is everything one attempt writes: one record per distinct wallet
// and the audit entries describing how each got there.
type batchPlan struct {
	writes []models.RecordWrite
	audit  []models.AuditEntry
}

// UpsertBatch merges provider results into stored records and applies them
// atomically. Either every accepted result is committed or none is.
//
// Transient storage failures are retried up to maxRetries attempts in total
// with exponential backoff (a non-positive maxRetries uses the configured
// default). Constraint and schema failures stop immediately. Results with an
// invalid wallet or no social field are counted as skipped and never fail the
// batch. Cancelling ctx does not abort a submitted batch.
func (s *Service) UpsertBatch(ctx context.Context, results []models.ProviderResult, maxRetries int) models.UpsertResult {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	ctx, span := s.tracer.Start(ctx, "identity.UpsertBatch",
		trace.WithAttributes(attribute.Int("identity.batch.size", len(results))))
	defer span.End()

	if maxRetries <= 0 {
		maxRetries = s.cfg.MaxRetries
	}

	accepted, skipped := s.prepareBatch(ctx, results)
	s.metrics.AddSkipped(skipped)
	out := models.UpsertResult{Skipped: skipped}
	if len(accepted) == 0 {
		return out
	}

	attempts := 0
	var committed *batchPlan
	operation := func() error {
		attempts++
		plan, err := s.applyBatch(ctx, accepted)
		if err != nil {
			if sentinel.IsPermanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		committed = plan
		return nil
	}
	notify := func(err error, wait time.Duration) {
		s.metrics.IncrementRetries()
		s.logger.WarnContext(ctx, "identity batch upsert failed, retrying",
			"attempt", attempts,
			"max_attempts", maxRetries,
			"retry_in", wait,
			"results", len(accepted),
			"error", err,
		)
	}

	if err := backoff.RetryNotify(operation, s.retryPolicy(maxRetries), notify); err != nil {
		outcome := outcomeExhausted
		if sentinel.IsPermanent(err) {
			outcome = outcomePermanent
		}
		s.metrics.ObserveBatch(outcome, attempts, time.Since(start))
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome)
		s.logger.ErrorContext(ctx, "identity batch upsert failed",
			"outcome", outcome,
			"attempts", attempts,
			"results", len(accepted),
			"error", err,
		)
		out.Failed = len(accepted)
		out.Errors = []string{err.Error()}
		return out
	}

	out.Succeeded = len(accepted)
	s.metrics.ObserveBatch(outcomeSucceeded, attempts, time.Since(start))
	s.metrics.AddWritten(len(committed.writes), len(committed.audit))
	span.SetAttributes(
		attribute.Int("identity.batch.attempts", attempts),
		attribute.Int("identity.batch.records", len(committed.writes)),
	)
	s.logger.DebugContext(ctx, "identity batch upserted",
		"results", len(accepted),
		"records", len(committed.writes),
		"audit_entries", len(committed.audit),
		"skipped", skipped,
		"attempts", attempts,
	)

	s.publishChanges(ctx, committed.audit)
	return out
}

// prepareBatch normalizes results and drops the ones that cannot be merged.
func (s *Service) prepareBatch(ctx context.Context, results []models.ProviderResult) ([]models.ProviderResult, int) {
	accepted := make([]models.ProviderResult, 0, len(results))
	skipped := 0
	for _, r := range results {
		prepared, err := merge.Prepare(r)
		if err != nil {
			skipped++
			if errors.Is(err, merge.ErrNoSocialData) {
				s.logger.DebugContext(ctx, "skipping provider result without social data", "wallet", r.Wallet)
			} else {
				s.logger.WarnContext(ctx, "skipping invalid provider result", "error", err)
			}
			continue
		}
		accepted = append(accepted, prepared)
	}
	return accepted, skipped
}

// applyBatch runs one attempt: read current state, plan, then write every
// chunk and the audit trail in a single transaction.
func (s *Service) applyBatch(ctx context.Context, accepted []models.ProviderResult) (*batchPlan, error) {
	now := requestcontext.Now(ctx)

	existing, err := s.store.FindByWallets(ctx, walletsOf(accepted))
	if err != nil {
		return nil, fmt.Errorf("load existing identities: %w", err)
	}

	plan := s.plan(existing, accepted, now)

	err = s.store.RunInTx(ctx, func(txCtx context.Context) error {
		for chunk := range slices.Chunk(plan.writes, s.cfg.ChunkSize) {
			if _, err := s.store.UpsertRecords(txCtx, chunk); err != nil {
				return fmt.Errorf("upsert identity records: %w", err)
			}
		}
		for chunk := range slices.Chunk(plan.audit, s.cfg.ChunkSize) {
			if err := s.store.AppendAudit(txCtx, chunk); err != nil {
				return fmt.Errorf("append identity audit: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return plan, nil
}

// plan folds results for the same wallet in input order, so a batch holding
// one wallet twice behaves like two sequential upserts.
func (s *Service) plan(existing map[string]*models.IdentityRecord, accepted []models.ProviderResult, now time.Time) *batchPlan {
	current := make(map[string]*models.IdentityRecord, len(accepted))
	folded := make(map[string]int, len(accepted))
	p := &batchPlan{}

	for _, r := range accepted {
		before, seen := current[r.Wallet]
		if !seen {
			before = existing[r.Wallet]
		}
		merged, ok := merge.Merge(before, r, now, s.cfg.StalenessWindow)
		if !ok {
			continue
		}
		p.audit = append(p.audit, merge.Diff(before, merged, merge.PrimarySource(r.Sources), now)...)
		current[r.Wallet] = merged
		folded[r.Wallet]++
	}

	p.writes = make([]models.RecordWrite, 0, len(current))
	for wallet, record := range current {
		p.writes = append(p.writes, models.RecordWrite{Record: record, LookupDelta: folded[wallet]})
	}
	// Same lock order for every batch.
	slices.SortFunc(p.writes, func(a, b models.RecordWrite) int {
		return strings.Compare(a.Record.Wallet, b.Record.Wallet)
	})
	return p
}

// retryPolicy allows maxAttempts attempts in total, waiting base, base*m,
// base*m^2, ... between them.
func (s *Service) retryPolicy(maxAttempts int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.RetryBaseDelay
	b.Multiplier = s.cfg.RetryMultiplier
	b.RandomizationFactor = 0
	b.MaxInterval = time.Duration(float64(s.cfg.RetryBaseDelay) * math.Pow(s.cfg.RetryMultiplier, float64(maxAttempts)))
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(maxAttempts-1))
}

func walletsOf(results []models.ProviderResult) []string {
	seen := make(map[string]struct{}, len(results))
	wallets := make([]string, 0, len(results))
	for _, r := range results {
		if _, ok := seen[r.Wallet]; ok {
			continue
		}
		seen[r.Wallet] = struct{}{}
		wallets = append(wallets, r.Wallet)
	}
	return wallets
}
