// Package ports declares the collaborators the identity service depends on.
package ports

import (
	"context"
	"time"

	"walletid/internal/identity/models"
)

// Store is the persistence boundary for identity records and their audit
// trail. Implementations are pure I/O: merge rules, scoring and retry policy
// belong to the service.
//
// UpsertRecords must apply each write as a single conditional upsert that
// merges with the row committed at write time (see merge.Reconcile), and it
// returns the rows as committed. Methods called with the context handed to a
// RunInTx callback participate in that transaction.
type Store interface {
	FindByWallets(ctx context.Context, wallets []string) (map[string]*models.IdentityRecord, error)
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
	UpsertRecords(ctx context.Context, writes []models.RecordWrite) ([]*models.IdentityRecord, error)
	AppendAudit(ctx context.Context, entries []models.AuditEntry) error
	ListRefreshCandidates(ctx context.Context, now time.Time, limit, minLookupCount int) ([]string, error)
	ListRecentManual(ctx context.Context, limit int) ([]*models.IdentityRecord, error)
	ListAudit(ctx context.Context, wallet string, limit int) ([]models.AuditEntry, error)
	Stats(ctx context.Context) (*models.Stats, error)
}

// ChangePublisher fans committed audit entries out to downstream consumers.
// Delivery is best-effort; errors are reported but never undo a write.
type ChangePublisher interface {
	Publish(ctx context.Context, entries []models.AuditEntry) error
}
