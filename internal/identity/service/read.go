package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"walletid/internal/identity/models"
	"walletid/internal/identity/quality"
	dErrors "walletid/pkg/domain-errors"
	"walletid/pkg/requestcontext"
)

// MaxListLimit caps every list read.
const MaxListLimit = 1000

// GetWithQuality returns every requested wallet, keyed by its normalized
// address, with the tier computed at read time. Unknown wallets map to a nil
// record with quality "missing".
func (s *Service) GetWithQuality(ctx context.Context, wallets []string) (map[string]models.RecordWithQuality, error) {
	normalized := make([]string, 0, len(wallets))
	seen := make(map[string]struct{}, len(wallets))
	for _, w := range wallets {
		n, err := models.NormalizeWallet(w)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid wallet address")
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		normalized = append(normalized, n)
	}

	out := make(map[string]models.RecordWithQuality, len(normalized))
	if len(normalized) == 0 {
		return out, nil
	}

	ctx, span := s.tracer.Start(ctx, "identity.GetWithQuality")
	defer span.End()
	if len(normalized) == 1 {
		span.SetAttributes(attribute.String("identity.wallet", normalized[0]))
	}

	found, err := s.store.FindByWallets(ctx, normalized)
	if err != nil {
		return nil, s.readError(ctx, "load identities", err)
	}

	now := requestcontext.Now(ctx)
	for _, w := range normalized {
		record := found[w]
		assessment := quality.Classify(record, now)
		s.metrics.IncrementQuality(assessment.Quality.String())
		out[w] = models.RecordWithQuality{
			Record:       record,
			Quality:      assessment.Quality,
			NeedsRefresh: assessment.NeedsRefresh,
		}
	}
	return out, nil
}

// GetRefreshCandidates lists stale wallets looked up more than
// minLookupCount times, ordered by ascending lookup count.
func (s *Service) GetRefreshCandidates(ctx context.Context, limit, minLookupCount int) ([]string, error) {
	limit, err := checkLimit(limit)
	if err != nil {
		return nil, err
	}
	wallets, err := s.store.ListRefreshCandidates(ctx, requestcontext.Now(ctx), limit, minLookupCount)
	if err != nil {
		return nil, s.readError(ctx, "list refresh candidates", err)
	}
	return wallets, nil
}

// GetRecentManualEdits lists records carrying the manual tag, most recently
// updated first.
func (s *Service) GetRecentManualEdits(ctx context.Context, limit int) ([]*models.IdentityRecord, error) {
	limit, err := checkLimit(limit)
	if err != nil {
		return nil, err
	}
	records, err := s.store.ListRecentManual(ctx, limit)
	if err != nil {
		return nil, s.readError(ctx, "list manual edits", err)
	}
	return records, nil
}

func (s *Service) GetStats(ctx context.Context) (*models.Stats, error) {
	stats, err := s.store.Stats(ctx)
	if err != nil {
		return nil, s.readError(ctx, "load identity stats", err)
	}
	return stats, nil
}

// GetAuditTrail returns a wallet's field changes, newest first.
func (s *Service) GetAuditTrail(ctx context.Context, wallet string, limit int) ([]models.AuditEntry, error) {
	normalized, err := models.NormalizeWallet(wallet)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid wallet address")
	}
	limit, err = checkLimit(limit)
	if err != nil {
		return nil, err
	}
	entries, err := s.store.ListAudit(ctx, normalized, limit)
	if err != nil {
		return nil, s.readError(ctx, "load audit trail", err)
	}
	return entries, nil
}

func (s *Service) readError(ctx context.Context, op string, err error) error {
	s.logger.ErrorContext(ctx, "identity read failed", "op", op, "error", err)
	return dErrors.Wrap(fmt.Errorf("%s: %w", op, err), dErrors.CodeInternal, "failed to read identities")
}

func checkLimit(limit int) (int, error) {
	if limit <= 0 {
		return 0, dErrors.New(dErrors.CodeBadRequest, "limit must be positive")
	}
	return min(limit, MaxListLimit), nil
}
