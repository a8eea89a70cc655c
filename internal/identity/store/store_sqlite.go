package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"walletid/internal/identity/models"
)

// SQLiteStore persists identity records in an embedded SQLite database for
// single-node deployments. Sources are stored as a JSON array and timestamps
// as unix nanoseconds.
type SQLiteStore struct {
	sqlDB
}

// NewSQLiteStore constructs a SQLite-backed identity store.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{sqlDB: sqlDB{db: db}}
}

// EnsureSchema creates the identity tables when they do not exist.
func (s *SQLiteStore) EnsureSchema(ctx context.Context) error {
	return ensureSchema(ctx, s.db, sqliteSchema)
}

const sqliteUpsertConflict = `
	ON CONFLICT (wallet) DO UPDATE SET
		ens_name = COALESCE(excluded.ens_name, identity_records.ens_name),
		twitter_handle = COALESCE(excluded.twitter_handle, identity_records.twitter_handle),
		twitter_url = COALESCE(excluded.twitter_url, identity_records.twitter_url),
		farcaster = COALESCE(excluded.farcaster, identity_records.farcaster),
		farcaster_url = COALESCE(excluded.farcaster_url, identity_records.farcaster_url),
		fc_followers = COALESCE(excluded.fc_followers, identity_records.fc_followers),
		fc_fid = COALESCE(excluded.fc_fid, identity_records.fc_fid),
		lens = COALESCE(excluded.lens, identity_records.lens),
		github = COALESCE(excluded.github, identity_records.github),
		sources = (
			SELECT json_group_array(tag ORDER BY ord)
			FROM (
				SELECT tag, MIN(ord) AS ord
				FROM (
					SELECT value AS tag, key AS ord FROM json_each(identity_records.sources)
					UNION ALL
					SELECT value AS tag, key + 1000000 AS ord FROM json_each(excluded.sources)
				)
				GROUP BY tag
			)
		),
		last_updated_at = excluded.last_updated_at,
		lookup_count = identity_records.lookup_count + excluded.lookup_count,
		twitter_verified = identity_records.twitter_verified OR excluded.twitter_verified,
		farcaster_verified = identity_records.farcaster_verified OR excluded.farcaster_verified,
		data_quality_score = MAX(identity_records.data_quality_score, excluded.data_quality_score),
		last_verification_at = excluded.last_verification_at,
		stale_at = excluded.stale_at
	RETURNING ` + recordColumns

func sqliteMark(int) string {
	return "?"
}

func (s *SQLiteStore) FindByWallets(ctx context.Context, wallets []string) (map[string]*models.IdentityRecord, error) {
	found := make(map[string]*models.IdentityRecord, len(wallets))
	for chunk := range slices.Chunk(wallets, maxRowsPerStatement) {
		args := make([]any, len(chunk))
		for i, w := range chunk {
			args[i] = w
		}
		query := `SELECT ` + recordColumns + ` FROM identity_records WHERE wallet IN (` +
			strings.TrimSuffix(strings.Repeat("?, ", len(chunk)), ", ") + `)`

		records, err := s.queryRecords(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("find identities: %w", err)
		}
		for _, r := range records {
			found[r.Wallet] = r
		}
	}
	return found, nil
}

// UpsertRecords writes records with one multi-row statement per chunk. Writes
// must carry distinct wallets.
func (s *SQLiteStore) UpsertRecords(ctx context.Context, writes []models.RecordWrite) ([]*models.IdentityRecord, error) {
	saved := make([]*models.IdentityRecord, 0, len(writes))
	// SQLite allows far fewer bound parameters per statement than PostgreSQL.
	for chunk := range slices.Chunk(writes, 50) {
		args := make([]any, 0, len(chunk)*recordColumnCount)
		for _, w := range chunk {
			r := w.Record
			sources, err := encodeSources(r.Sources)
			if err != nil {
				return nil, err
			}
			args = append(args,
				r.Wallet,
				nullable(r.ENSName),
				nullable(r.TwitterHandle),
				nullable(r.TwitterURL),
				nullable(r.Farcaster),
				nullable(r.FarcasterURL),
				nullable(r.FCFollowers),
				nullable(r.FCFID),
				nullable(r.Lens),
				nullable(r.GitHub),
				sources,
				unixNano(r.FirstSeenAt),
				unixNano(r.LastUpdatedAt),
				w.LookupDelta,
				r.TwitterVerified,
				r.FarcasterVerified,
				r.DataQualityScore,
				unixNano(r.LastVerificationAt),
				unixNano(r.StaleAt),
			)
		}
		query := `INSERT INTO identity_records (` + recordColumns + `) VALUES ` +
			placeholders(len(chunk), recordColumnCount, sqliteMark) + sqliteUpsertConflict

		records, err := s.queryRecords(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("upsert identities: %w", err)
		}
		saved = append(saved, records...)
	}
	return saved, nil
}

func (s *SQLiteStore) AppendAudit(ctx context.Context, entries []models.AuditEntry) error {
	for chunk := range slices.Chunk(entries, maxRowsPerStatement/auditColumnCount) {
		args := make([]any, 0, len(chunk)*auditColumnCount)
		for _, e := range chunk {
			args = append(args, e.ID, e.Wallet, e.FieldChanged, e.OldValue, e.NewValue, e.ChangeSource, unixNano(e.Timestamp))
		}
		query := `INSERT INTO identity_audit_log (` + auditColumns + `) VALUES ` +
			placeholders(len(chunk), auditColumnCount, sqliteMark)
		if _, err := s.execer(ctx).ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("append identity audit: %w", classify(err))
		}
	}
	return nil
}

func (s *SQLiteStore) ListRefreshCandidates(ctx context.Context, now time.Time, limit, minLookupCount int) ([]string, error) {
	query := `
		SELECT wallet FROM identity_records
		WHERE stale_at < ? AND lookup_count > ?
		ORDER BY lookup_count ASC, wallet ASC
		LIMIT ?
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, unixNano(now), minLookupCount, limit)
	if err != nil {
		return nil, fmt.Errorf("list refresh candidates: %w", classify(err))
	}
	defer rows.Close()

	var wallets []string
	for rows.Next() {
		var wallet string
		if err := rows.Scan(&wallet); err != nil {
			return nil, fmt.Errorf("scan refresh candidate: %w", classify(err))
		}
		wallets = append(wallets, wallet)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate refresh candidates: %w", classify(err))
	}
	return wallets, nil
}

func (s *SQLiteStore) ListRecentManual(ctx context.Context, limit int) ([]*models.IdentityRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM identity_records
		WHERE EXISTS (SELECT 1 FROM json_each(identity_records.sources) WHERE value = ?)
		ORDER BY last_updated_at DESC, wallet ASC
		LIMIT ?`
	records, err := s.queryRecords(ctx, query, models.SourceManual, limit)
	if err != nil {
		return nil, fmt.Errorf("list manual identities: %w", err)
	}
	return records, nil
}

func (s *SQLiteStore) ListAudit(ctx context.Context, wallet string, limit int) ([]models.AuditEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM identity_audit_log
		WHERE wallet = ?
		ORDER BY changed_at DESC, id ASC
		LIMIT ?`
	rows, err := s.execer(ctx).QueryContext(ctx, query, wallet, limit)
	if err != nil {
		return nil, fmt.Errorf("list identity audit: %w", classify(err))
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		var changedAt int64
		if err := rows.Scan(&e.ID, &e.Wallet, &e.FieldChanged, &e.OldValue, &e.NewValue, &e.ChangeSource, &changedAt); err != nil {
			return nil, fmt.Errorf("scan identity audit: %w", classify(err))
		}
		e.Timestamp = fromUnixNano(changedAt)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identity audit: %w", classify(err))
	}
	return entries, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (*models.Stats, error) {
	query := `
		SELECT COUNT(*), COUNT(twitter_handle), COUNT(farcaster), COUNT(lens), COUNT(github)
		FROM identity_records
	`
	var stats models.Stats
	err := s.execer(ctx).QueryRowContext(ctx, query).Scan(
		&stats.TotalWallets,
		&stats.WithTwitter,
		&stats.WithFarcaster,
		&stats.WithLens,
		&stats.WithGitHub,
	)
	if err != nil {
		return nil, fmt.Errorf("identity stats: %w", classify(err))
	}
	return &stats, nil
}

func (s *SQLiteStore) queryRecords(ctx context.Context, query string, args ...any) ([]*models.IdentityRecord, error) {
	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var records []*models.IdentityRecord
	for rows.Next() {
		record, err := scanSQLiteRecord(rows)
		if err != nil {
			return nil, classify(err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return records, nil
}

func scanSQLiteRecord(row rowScanner) (*models.IdentityRecord, error) {
	var (
		r                                        models.IdentityRecord
		ens, handle, twitterURL, fc, fcURL, lens sql.NullString
		github                                   sql.NullString
		followers, fid                           sql.NullInt64
		sources                                  string
		firstSeen, updated, verified, stale      int64
	)
	err := row.Scan(
		&r.Wallet,
		&ens,
		&handle,
		&twitterURL,
		&fc,
		&fcURL,
		&followers,
		&fid,
		&lens,
		&github,
		&sources,
		&firstSeen,
		&updated,
		&r.LookupCount,
		&r.TwitterVerified,
		&r.FarcasterVerified,
		&r.DataQualityScore,
		&verified,
		&stale,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(sources), &r.Sources); err != nil {
		return nil, fmt.Errorf("decode sources for %s: %w", r.Wallet, err)
	}
	r.ENSName = nullString(ens)
	r.TwitterHandle = nullString(handle)
	r.TwitterURL = nullString(twitterURL)
	r.Farcaster = nullString(fc)
	r.FarcasterURL = nullString(fcURL)
	r.FCFollowers = nullInt(followers)
	r.FCFID = nullInt(fid)
	r.Lens = nullString(lens)
	r.GitHub = nullString(github)
	r.FirstSeenAt = fromUnixNano(firstSeen)
	r.LastUpdatedAt = fromUnixNano(updated)
	r.LastVerificationAt = fromUnixNano(verified)
	r.StaleAt = fromUnixNano(stale)
	return &r, nil
}

func encodeSources(sources []string) (string, error) {
	if sources == nil {
		sources = []string{}
	}
	b, err := json.Marshal(sources)
	if err != nil {
		return "", fmt.Errorf("encode sources: %w", err)
	}
	return string(b), nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
