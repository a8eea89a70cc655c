package store

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"walletid/internal/identity/merge"
	"walletid/internal/identity/models"
)

// InMemoryStore keeps identity records in process memory. Transactions stage
// their writes and apply them on success under the store lock, so readers
// never observe a partial batch. The write lock is held for the whole
// transaction, so unlike the SQL stores, readers wait behind writers. It is
// meant for tests and local runs.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.IdentityRecord
	audit   []models.AuditEntry
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[string]*models.IdentityRecord),
	}
}

type memTxKey struct{}

// memTx holds writes staged by one RunInTx callback. The store lock is held
// for the whole callback, so staged and committed state are read without
// further locking.
type memTx struct {
	records map[string]*models.IdentityRecord
	audit   []models.AuditEntry
}

func txFrom(ctx context.Context) *memTx {
	tx, _ := ctx.Value(memTxKey{}).(*memTx)
	return tx
}

func (s *InMemoryStore) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{records: make(map[string]*models.IdentityRecord)}
	if err := fn(context.WithValue(ctx, memTxKey{}, tx)); err != nil {
		return err
	}
	maps.Copy(s.records, tx.records)
	s.audit = append(s.audit, tx.audit...)
	return nil
}

// lookup returns the record visible through tx. Callers hold the lock.
func (s *InMemoryStore) lookup(tx *memTx, wallet string) *models.IdentityRecord {
	if tx != nil {
		if r, ok := tx.records[wallet]; ok {
			return r
		}
	}
	return s.records[wallet]
}

func (s *InMemoryStore) FindByWallets(ctx context.Context, wallets []string) (map[string]*models.IdentityRecord, error) {
	tx := txFrom(ctx)
	if tx == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
	}

	found := make(map[string]*models.IdentityRecord, len(wallets))
	for _, w := range wallets {
		if r := s.lookup(tx, w); r != nil {
			found[w] = r.Clone()
		}
	}
	return found, nil
}

func (s *InMemoryStore) UpsertRecords(ctx context.Context, writes []models.RecordWrite) ([]*models.IdentityRecord, error) {
	tx := txFrom(ctx)
	if tx == nil {
		s.mu.Lock()
		defer s.mu.Unlock()
	}

	saved := make([]*models.IdentityRecord, 0, len(writes))
	for _, w := range writes {
		if w.Record == nil {
			continue
		}
		next := merge.Reconcile(s.lookup(tx, w.Record.Wallet), w)
		if tx != nil {
			tx.records[next.Wallet] = next
		} else {
			s.records[next.Wallet] = next
		}
		saved = append(saved, next.Clone())
	}
	return saved, nil
}

func (s *InMemoryStore) AppendAudit(ctx context.Context, entries []models.AuditEntry) error {
	if tx := txFrom(ctx); tx != nil {
		tx.audit = append(tx.audit, entries...)
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, entries...)
	return nil
}

func (s *InMemoryStore) ListRefreshCandidates(_ context.Context, now time.Time, limit, minLookupCount int) ([]string, error) {
	limit = max(limit, 0)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []*models.IdentityRecord
	for _, r := range s.records {
		if r.StaleAt.Before(now) && r.LookupCount > minLookupCount {
			candidates = append(candidates, r)
		}
	}
	slices.SortFunc(candidates, func(a, b *models.IdentityRecord) int {
		return cmp.Or(cmp.Compare(a.LookupCount, b.LookupCount), strings.Compare(a.Wallet, b.Wallet))
	})

	wallets := make([]string, 0, min(limit, len(candidates)))
	for _, r := range candidates[:min(limit, len(candidates))] {
		wallets = append(wallets, r.Wallet)
	}
	return wallets, nil
}

func (s *InMemoryStore) ListRecentManual(_ context.Context, limit int) ([]*models.IdentityRecord, error) {
	limit = max(limit, 0)
	s.mu.RLock()
	defer s.mu.RUnlock()

	var manual []*models.IdentityRecord
	for _, r := range s.records {
		if r.HasSource(models.SourceManual) {
			manual = append(manual, r.Clone())
		}
	}
	slices.SortFunc(manual, func(a, b *models.IdentityRecord) int {
		return cmp.Or(b.LastUpdatedAt.Compare(a.LastUpdatedAt), strings.Compare(a.Wallet, b.Wallet))
	})
	return manual[:min(limit, len(manual))], nil
}

func (s *InMemoryStore) ListAudit(_ context.Context, wallet string, limit int) ([]models.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var entries []models.AuditEntry
	for i := len(s.audit) - 1; i >= 0 && len(entries) < limit; i-- {
		if s.audit[i].Wallet == wallet {
			entries = append(entries, s.audit[i])
		}
	}
	slices.SortStableFunc(entries, func(a, b models.AuditEntry) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	return entries, nil
}

func (s *InMemoryStore) Stats(_ context.Context) (*models.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &models.Stats{TotalWallets: int64(len(s.records))}
	for _, r := range s.records {
		if r.TwitterHandle != nil {
			stats.WithTwitter++
		}
		if r.Farcaster != nil {
			stats.WithFarcaster++
		}
		if r.Lens != nil {
			stats.WithLens++
		}
		if r.GitHub != nil {
			stats.WithGitHub++
		}
	}
	return stats, nil
}
