package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	txcontext "walletid/pkg/platform/tx"
)

// maxRowsPerStatement keeps multi-row statements well under driver
// placeholder limits.
const maxRowsPerStatement = 500

const recordColumns = `wallet, ens_name, twitter_handle, twitter_url, farcaster, farcaster_url,
	fc_followers, fc_fid, lens, github, sources, first_seen_at, last_updated_at, lookup_count,
	twitter_verified, farcaster_verified, data_quality_score, last_verification_at, stale_at`

const recordColumnCount = 19

const auditColumns = `id, wallet, field_changed, old_value, new_value, change_source, changed_at`

const auditColumnCount = 7

// sqlDB is the part shared by the SQL backends: a handle plus transaction
// propagation through the context.
type sqlDB struct {
	db *sql.DB
}

func (s *sqlDB) execer(ctx context.Context) txcontext.Executor {
	return txcontext.ExecutorFrom(ctx, s.db)
}

// RunInTx runs fn in a database transaction carried by the context handed
// to fn. Nested calls join the outer transaction. The transaction is bounded
// only by the caller's context.
func (s *sqlDB) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := txcontext.From(ctx); ok {
		return fn(ctx)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin identity transaction: %w", classify(err))
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit identity transaction: %w", classify(err))
	}
	return nil
}

// placeholders renders rows groups of cols placeholders. mark returns the
// placeholder for the 1-based argument position.
func placeholders(rows, cols int, mark func(int) string) string {
	var b strings.Builder
	for i := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j := range cols {
			if j > 0 {
				b.WriteString(", ")
			}
			b.WriteString(mark(i*cols + j + 1))
		}
		b.WriteByte(')')
	}
	return b.String()
}

type rowScanner interface {
	Scan(dest ...any) error
}

// nullable turns an optional field into a driver value.
func nullable[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}

func nullInt(ni sql.NullInt64) *int64 {
	if !ni.Valid {
		return nil
	}
	return &ni.Int64
}
