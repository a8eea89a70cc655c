package service

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"walletid/internal/identity/merge"
	"walletid/internal/identity/models"
	dErrors "walletid/pkg/domain-errors"
	"walletid/pkg/platform/sentinel"
	"walletid/pkg/requestcontext"
)

// UpsertManual applies an administrator edit to one wallet. The edit is
// tagged "manual", which pins the quality score at the maximum and marks both
// social accounts verified. It is a single attempt: storage errors are
// returned to the caller, who owns the retry decision. The committed record is
// returned.
func (s *Service) UpsertManual(ctx context.Context, wallet string, edit models.ManualEdit) (*models.IdentityRecord, error) {
	ctx, span := s.tracer.Start(ctx, "identity.UpsertManual")
	defer span.End()

	normalized, err := models.NormalizeWallet(wallet)
	if err != nil {
		s.metrics.IncrementManualEdit("rejected")
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid wallet address")
	}
	span.SetAttributes(attribute.String("identity.wallet", normalized))

	result, err := merge.Prepare(edit.ToProviderResult(normalized))
	if err != nil {
		s.metrics.IncrementManualEdit("rejected")
		return nil, dErrors.Wrap(err, dErrors.CodeBadRequest, "manual edit sets no identity field")
	}

	saved, audit, err := s.applyManual(ctx, result)
	if err != nil {
		s.metrics.IncrementManualEdit("failed")
		span.RecordError(err)
		span.SetStatus(codes.Error, "manual edit failed")
		s.logger.ErrorContext(ctx, "manual identity edit failed",
			"wallet", normalized,
			"actor", requestcontext.Actor(ctx),
			"error", err,
		)
		code := dErrors.CodeUnavailable
		if sentinel.IsPermanent(err) {
			code = dErrors.CodeInternal
		}
		return nil, dErrors.Wrap(err, code, "failed to save manual edit")
	}

	s.metrics.IncrementManualEdit("applied")
	s.metrics.AddWritten(1, len(audit))
	s.logger.InfoContext(ctx, "manual identity edit applied",
		"wallet", normalized,
		"actor", requestcontext.Actor(ctx),
		"fields_changed", len(audit),
	)

	s.publishChanges(ctx, audit)
	return saved, nil
}

func (s *Service) applyManual(ctx context.Context, result models.ProviderResult) (*models.IdentityRecord, []models.AuditEntry, error) {
	now := requestcontext.Now(ctx)

	existing, err := s.store.FindByWallets(ctx, []string{result.Wallet})
	if err != nil {
		return nil, nil, fmt.Errorf("load identity: %w", err)
	}
	before := existing[result.Wallet]

	merged, ok := merge.Merge(before, result, now, s.cfg.StalenessWindow)
	if !ok {
		return nil, nil, fmt.Errorf("merge manual edit for %s: %w", result.Wallet, merge.ErrNoSocialData)
	}
	audit := merge.Diff(before, merged, models.SourceManual, now)

	var saved *models.IdentityRecord
	err = s.store.RunInTx(ctx, func(txCtx context.Context) error {
		rows, err := s.store.UpsertRecords(txCtx, []models.RecordWrite{{Record: merged, LookupDelta: 1}})
		if err != nil {
			return fmt.Errorf("upsert identity record: %w", err)
		}
		if len(rows) == 0 {
			return fmt.Errorf("upsert identity record %s: %w", result.Wallet, sentinel.ErrNotFound)
		}
		if len(audit) > 0 {
			if err := s.store.AppendAudit(txCtx, audit); err != nil {
				return fmt.Errorf("append identity audit: %w", err)
			}
		}
		saved = rows[0]
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return saved, audit, nil
}
