package store

import (
	"context"
	"database/sql"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/lib/pq"

	"walletid/internal/identity/models"
)

// PostgresStore persists identity records and their audit trail in
// PostgreSQL. Concurrent writers are reconciled by the ON CONFLICT clause
// against whatever row is committed when the statement runs.
type PostgresStore struct {
	sqlDB
}

// NewPostgresStore constructs a PostgreSQL-backed identity store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{sqlDB: sqlDB{db: db}}
}

// EnsureSchema creates the identity tables when they do not exist.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	return ensureSchema(ctx, s.db, postgresSchema)
}

const postgresUpsertConflict = `
	ON CONFLICT (wallet) DO UPDATE SET
		ens_name = COALESCE(EXCLUDED.ens_name, identity_records.ens_name),
		twitter_handle = COALESCE(EXCLUDED.twitter_handle, identity_records.twitter_handle),
		twitter_url = COALESCE(EXCLUDED.twitter_url, identity_records.twitter_url),
		farcaster = COALESCE(EXCLUDED.farcaster, identity_records.farcaster),
		farcaster_url = COALESCE(EXCLUDED.farcaster_url, identity_records.farcaster_url),
		fc_followers = COALESCE(EXCLUDED.fc_followers, identity_records.fc_followers),
		fc_fid = COALESCE(EXCLUDED.fc_fid, identity_records.fc_fid),
		lens = COALESCE(EXCLUDED.lens, identity_records.lens),
		github = COALESCE(EXCLUDED.github, identity_records.github),
		sources = ARRAY(
			SELECT u.tag
			FROM unnest(identity_records.sources || EXCLUDED.sources) WITH ORDINALITY AS u(tag, ord)
			GROUP BY u.tag
			ORDER BY MIN(u.ord)
		),
		last_updated_at = EXCLUDED.last_updated_at,
		lookup_count = identity_records.lookup_count + EXCLUDED.lookup_count,
		twitter_verified = identity_records.twitter_verified OR EXCLUDED.twitter_verified,
		farcaster_verified = identity_records.farcaster_verified OR EXCLUDED.farcaster_verified,
		data_quality_score = GREATEST(identity_records.data_quality_score, EXCLUDED.data_quality_score),
		last_verification_at = EXCLUDED.last_verification_at,
		stale_at = EXCLUDED.stale_at
	RETURNING ` + recordColumns

func postgresMark(n int) string {
	return "$" + strconv.Itoa(n)
}

func (s *PostgresStore) FindByWallets(ctx context.Context, wallets []string) (map[string]*models.IdentityRecord, error) {
	found := make(map[string]*models.IdentityRecord, len(wallets))
	if len(wallets) == 0 {
		return found, nil
	}

	query := `SELECT ` + recordColumns + ` FROM identity_records WHERE wallet = ANY($1)`
	rows, err := s.execer(ctx).QueryContext(ctx, query, pq.Array(wallets))
	if err != nil {
		return nil, fmt.Errorf("find identities: %w", classify(err))
	}
	defer rows.Close()

	for rows.Next() {
		record, err := scanPostgresRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", classify(err))
		}
		found[record.Wallet] = record
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identities: %w", classify(err))
	}
	return found, nil
}

// UpsertRecords writes records with one multi-row statement per chunk. Writes
// must carry distinct wallets.
func (s *PostgresStore) UpsertRecords(ctx context.Context, writes []models.RecordWrite) ([]*models.IdentityRecord, error) {
	saved := make([]*models.IdentityRecord, 0, len(writes))
	for chunk := range slices.Chunk(writes, maxRowsPerStatement) {
		rows, err := s.upsertChunk(ctx, chunk)
		if err != nil {
			return nil, err
		}
		saved = append(saved, rows...)
	}
	return saved, nil
}

func (s *PostgresStore) upsertChunk(ctx context.Context, writes []models.RecordWrite) ([]*models.IdentityRecord, error) {
	args := make([]any, 0, len(writes)*recordColumnCount)
	for _, w := range writes {
		r := w.Record
		sources := r.Sources
		if sources == nil {
			sources = []string{}
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
			pq.Array(sources),
			r.FirstSeenAt,
			r.LastUpdatedAt,
			w.LookupDelta,
			r.TwitterVerified,
			r.FarcasterVerified,
			r.DataQualityScore,
			r.LastVerificationAt,
			r.StaleAt,
		)
	}

	query := `INSERT INTO identity_records (` + recordColumns + `) VALUES ` +
		placeholders(len(writes), recordColumnCount, postgresMark) + postgresUpsertConflict

	rows, err := s.execer(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("upsert identities: %w", classify(err))
	}
	defer rows.Close()

	saved := make([]*models.IdentityRecord, 0, len(writes))
	for rows.Next() {
		record, err := scanPostgresRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan upserted identity: %w", classify(err))
		}
		saved = append(saved, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("upsert identities: %w", classify(err))
	}
	return saved, nil
}

func (s *PostgresStore) AppendAudit(ctx context.Context, entries []models.AuditEntry) error {
	for chunk := range slices.Chunk(entries, maxRowsPerStatement) {
		args := make([]any, 0, len(chunk)*auditColumnCount)
		for _, e := range chunk {
			args = append(args, e.ID, e.Wallet, e.FieldChanged, e.OldValue, e.NewValue, e.ChangeSource, e.Timestamp)
		}
		query := `INSERT INTO identity_audit_log (` + auditColumns + `) VALUES ` +
			placeholders(len(chunk), auditColumnCount, postgresMark)
		if _, err := s.execer(ctx).ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("append identity audit: %w", classify(err))
		}
	}
	return nil
}

func (s *PostgresStore) ListRefreshCandidates(ctx context.Context, now time.Time, limit, minLookupCount int) ([]string, error) {
	query := `
		SELECT wallet FROM identity_records
		WHERE stale_at < $1 AND lookup_count > $2
		ORDER BY lookup_count ASC, wallet ASC
		LIMIT $3
	`
	rows, err := s.execer(ctx).QueryContext(ctx, query, now, minLookupCount, limit)
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

func (s *PostgresStore) ListRecentManual(ctx context.Context, limit int) ([]*models.IdentityRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM identity_records
		WHERE sources @> $1
		ORDER BY last_updated_at DESC, wallet ASC
		LIMIT $2`
	rows, err := s.execer(ctx).QueryContext(ctx, query, pq.Array([]string{models.SourceManual}), limit)
	if err != nil {
		return nil, fmt.Errorf("list manual identities: %w", classify(err))
	}
	defer rows.Close()

	var records []*models.IdentityRecord
	for rows.Next() {
		record, err := scanPostgresRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan manual identity: %w", classify(err))
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate manual identities: %w", classify(err))
	}
	return records, nil
}

func (s *PostgresStore) ListAudit(ctx context.Context, wallet string, limit int) ([]models.AuditEntry, error) {
	query := `SELECT ` + auditColumns + ` FROM identity_audit_log
		WHERE wallet = $1
		ORDER BY changed_at DESC, id ASC
		LIMIT $2`
	rows, err := s.execer(ctx).QueryContext(ctx, query, wallet, limit)
	if err != nil {
		return nil, fmt.Errorf("list identity audit: %w", classify(err))
	}
	defer rows.Close()

	var entries []models.AuditEntry
	for rows.Next() {
		var e models.AuditEntry
		if err := rows.Scan(&e.ID, &e.Wallet, &e.FieldChanged, &e.OldValue, &e.NewValue, &e.ChangeSource, &e.Timestamp); err != nil {
			return nil, fmt.Errorf("scan identity audit: %w", classify(err))
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate identity audit: %w", classify(err))
	}
	return entries, nil
}

func (s *PostgresStore) Stats(ctx context.Context) (*models.Stats, error) {
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

func scanPostgresRecord(row rowScanner) (*models.IdentityRecord, error) {
	var (
		r                                        models.IdentityRecord
		ens, handle, twitterURL, fc, fcURL, lens sql.NullString
		github                                   sql.NullString
		followers, fid                           sql.NullInt64
		sources                                  pq.StringArray
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
		&r.FirstSeenAt,
		&r.LastUpdatedAt,
		&r.LookupCount,
		&r.TwitterVerified,
		&r.FarcasterVerified,
		&r.DataQualityScore,
		&r.LastVerificationAt,
		&r.StaleAt,
	)
	if err != nil {
		return nil, err
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
	r.Sources = []string(sources)
	return &r, nil
}
