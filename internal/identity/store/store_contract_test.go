package store_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"walletid/internal/identity/models"
	"walletid/internal/identity/ports"
)

// StoreContractSuite runs the same behaviors against every backend. Each
// backend test constructs the suite with its own factory.
type StoreContractSuite struct {
	suite.Suite
	newStore func(t *testing.T) ports.Store
	store    ports.Store
	now      time.Time
}

func (s *StoreContractSuite) SetupTest() {
	s.store = s.newStore(s.T())
	s.now = time.Date(2026, 5, 10, 9, 30, 0, 0, time.UTC)
}

func wallet(i int) string {
	return fmt.Sprintf("0x%040x", i)
}

func ptr[T any](v T) *T {
	return &v
}

func (s *StoreContractSuite) record(i int) *models.IdentityRecord {
	return &models.IdentityRecord{
		Wallet:             wallet(i),
		TwitterHandle:      ptr(fmt.Sprintf("user%d", i)),
		Sources:            []string{models.SourceWeb3Bio},
		FirstSeenAt:        s.now,
		LastUpdatedAt:      s.now,
		LookupCount:        1,
		DataQualityScore:   35,
		LastVerificationAt: s.now,
		StaleAt:            s.now.Add(30 * 24 * time.Hour),
	}
}

func (s *StoreContractSuite) upsert(writes ...models.RecordWrite) []*models.IdentityRecord {
	var saved []*models.IdentityRecord
	err := s.store.RunInTx(context.Background(), func(ctx context.Context) error {
		var err error
		saved, err = s.store.UpsertRecords(ctx, writes)
		return err
	})
	s.Require().NoError(err)
	return saved
}

func (s *StoreContractSuite) find(w string) *models.IdentityRecord {
	found, err := s.store.FindByWallets(context.Background(), []string{w})
	s.Require().NoError(err)
	return found[w]
}

func (s *StoreContractSuite) TestUpsertRecords() {
	s.Run("new record round-trips every field", func() {
		r := &models.IdentityRecord{
			Wallet:             wallet(1),
			ENSName:            ptr("alice.eth"),
			TwitterHandle:      ptr("alice"),
			TwitterURL:         ptr("https://x.com/alice"),
			Farcaster:          ptr("alice"),
			FarcasterURL:       ptr("https://warpcast.com/alice"),
			FCFollowers:        ptr(int64(1200)),
			FCFID:              ptr(int64(42)),
			Lens:               ptr("alice.lens"),
			GitHub:             ptr("alice-gh"),
			Sources:            []string{models.SourceENS, models.SourceNeynar},
			FirstSeenAt:        s.now,
			LastUpdatedAt:      s.now,
			TwitterVerified:    true,
			FarcasterVerified:  true,
			DataQualityScore:   95,
			LastVerificationAt: s.now,
			StaleAt:            s.now.Add(time.Hour),
		}

		saved := s.upsert(models.RecordWrite{Record: r, LookupDelta: 2})
		s.Require().Len(saved, 1)

		got := s.find(wallet(1))
		s.Require().NotNil(got)
		s.Equal(2, got.LookupCount)
		s.Equal("alice.eth", *got.ENSName)
		s.Equal("https://warpcast.com/alice", *got.FarcasterURL)
		s.Equal(int64(1200), *got.FCFollowers)
		s.Equal(int64(42), *got.FCFID)
		s.Equal("alice-gh", *got.GitHub)
		s.Equal([]string{models.SourceENS, models.SourceNeynar}, got.Sources)
		s.True(got.TwitterVerified)
		s.True(got.FarcasterVerified)
		s.Equal(95, got.DataQualityScore)
		s.True(s.now.Equal(got.FirstSeenAt))
		s.True(s.now.Add(time.Hour).Equal(got.StaleAt))
	})

	s.Run("write merges with the committed row", func() {
		committed := s.record(2)
		committed.Lens = ptr("bob.lens")
		committed.Sources = []string{models.SourceENS, models.SourceNeynar}
		committed.TwitterVerified = true
		committed.DataQualityScore = 70
		s.upsert(models.RecordWrite{Record: committed, LookupDelta: 3})

		// A writer that read before the commit above.
		later := s.now.Add(time.Hour)
		stale := s.record(2)
		stale.TwitterHandle = nil
		stale.GitHub = ptr("bob-gh")
		stale.Sources = []string{models.SourceNeynar, models.SourceManual}
		stale.FirstSeenAt = later
		stale.LastUpdatedAt = later
		stale.DataQualityScore = 40
		stale.StaleAt = later.Add(24 * time.Hour)

		saved := s.upsert(models.RecordWrite{Record: stale, LookupDelta: 1})
		s.Require().Len(saved, 1)

		got := saved[0]
		s.Equal("user2", *got.TwitterHandle)
		s.Equal("bob.lens", *got.Lens)
		s.Equal("bob-gh", *got.GitHub)
		s.Equal([]string{models.SourceENS, models.SourceNeynar, models.SourceManual}, got.Sources)
		s.Equal(4, got.LookupCount)
		s.Equal(70, got.DataQualityScore)
		s.True(got.TwitterVerified)
		s.True(s.now.Equal(got.FirstSeenAt))
		s.True(later.Equal(got.LastUpdatedAt))
		s.True(later.Add(24 * time.Hour).Equal(got.StaleAt))

		s.Equal(got, s.find(wallet(2)))
	})

	s.Run("unknown wallets are absent from lookups", func() {
		found, err := s.store.FindByWallets(context.Background(), []string{wallet(99)})
		s.Require().NoError(err)
		s.Empty(found)
	})
}

func (s *StoreContractSuite) TestRunInTx() {
	s.Run("callback error rolls back records and audit", func() {
		boom := errors.New("boom")
		err := s.store.RunInTx(context.Background(), func(ctx context.Context) error {
			if _, err := s.store.UpsertRecords(ctx, []models.RecordWrite{{Record: s.record(3), LookupDelta: 1}}); err != nil {
				return err
			}
			if err := s.store.AppendAudit(ctx, []models.AuditEntry{s.audit(3, "twitter_handle", s.now)}); err != nil {
				return err
			}
			return boom
		})
		s.ErrorIs(err, boom)

		s.Nil(s.find(wallet(3)))
		entries, err := s.store.ListAudit(context.Background(), wallet(3), 10)
		s.Require().NoError(err)
		s.Empty(entries)
	})

	s.Run("writes are visible inside the transaction", func() {
		err := s.store.RunInTx(context.Background(), func(ctx context.Context) error {
			if _, err := s.store.UpsertRecords(ctx, []models.RecordWrite{{Record: s.record(4), LookupDelta: 1}}); err != nil {
				return err
			}
			found, err := s.store.FindByWallets(ctx, []string{wallet(4)})
			if err != nil {
				return err
			}
			s.Contains(found, wallet(4))
			return nil
		})
		s.Require().NoError(err)
	})

	s.Run("transaction adds no deadline of its own", func() {
		ctx := context.WithoutCancel(context.Background())
		err := s.store.RunInTx(ctx, func(ctx context.Context) error {
			_, hasDeadline := ctx.Deadline()
			s.False(hasDeadline)
			_, err := s.store.UpsertRecords(ctx, []models.RecordWrite{{Record: s.record(5), LookupDelta: 1}})
			return err
		})
		s.Require().NoError(err)
		s.NotNil(s.find(wallet(5)))
	})

	s.Run("caller deadline is kept", func() {
		want := time.Now().Add(time.Minute)
		ctx, cancel := context.WithDeadline(context.Background(), want)
		defer cancel()
		err := s.store.RunInTx(ctx, func(ctx context.Context) error {
			got, ok := ctx.Deadline()
			s.True(ok)
			s.True(want.Equal(got))
			return nil
		})
		s.Require().NoError(err)
	})
}

func (s *StoreContractSuite) audit(i int, field string, at time.Time) models.AuditEntry {
	return models.AuditEntry{
		ID:           uuid.NewString(),
		Wallet:       wallet(i),
		FieldChanged: field,
		NewValue:     "v",
		ChangeSource: models.SourceENS,
		Timestamp:    at,
	}
}

func (s *StoreContractSuite) TestAudit() {
	s.Run("entries list newest first up to the limit", func() {
		entries := []models.AuditEntry{
			s.audit(5, "ens_name", s.now),
			s.audit(5, "lens", s.now.Add(time.Minute)),
			s.audit(5, "github", s.now.Add(2*time.Minute)),
			s.audit(6, "github", s.now.Add(3*time.Minute)),
		}
		err := s.store.RunInTx(context.Background(), func(ctx context.Context) error {
			return s.store.AppendAudit(ctx, entries)
		})
		s.Require().NoError(err)

		got, err := s.store.ListAudit(context.Background(), wallet(5), 2)
		s.Require().NoError(err)
		s.Require().Len(got, 2)
		s.Equal("github", got[0].FieldChanged)
		s.Equal("lens", got[1].FieldChanged)
		s.Equal(models.SourceENS, got[0].ChangeSource)
		s.True(s.now.Add(2 * time.Minute).Equal(got[0].Timestamp))
	})
}

func (s *StoreContractSuite) TestListRefreshCandidates() {
	s.Run("stale wallets above the lookup floor, least looked up first", func() {
		past := s.now.Add(-time.Hour)
		writes := []models.RecordWrite{}
		for i, lookups := range map[int]int{10: 5, 11: 2, 12: 2, 13: 1} {
			r := s.record(i)
			r.StaleAt = past
			writes = append(writes, models.RecordWrite{Record: r, LookupDelta: lookups})
		}
		fresh := s.record(14)
		writes = append(writes, models.RecordWrite{Record: fresh, LookupDelta: 9})
		for _, w := range writes {
			s.upsert(w)
		}

		got, err := s.store.ListRefreshCandidates(context.Background(), s.now, 10, 1)
		s.Require().NoError(err)
		s.Equal([]string{wallet(11), wallet(12), wallet(10)}, got)

		limited, err := s.store.ListRefreshCandidates(context.Background(), s.now, 1, 1)
		s.Require().NoError(err)
		s.Equal([]string{wallet(11)}, limited)
	})
}

func (s *StoreContractSuite) TestListRecentManual() {
	s.Run("only manual records, most recently updated first", func() {
		older := s.record(20)
		older.Sources = []string{models.SourceENS, models.SourceManual}
		newer := s.record(21)
		newer.Sources = []string{models.SourceManual}
		newer.LastUpdatedAt = s.now.Add(time.Hour)
		s.upsert(
			models.RecordWrite{Record: older, LookupDelta: 1},
			models.RecordWrite{Record: newer, LookupDelta: 1},
			models.RecordWrite{Record: s.record(22), LookupDelta: 1},
		)

		got, err := s.store.ListRecentManual(context.Background(), 10)
		s.Require().NoError(err)
		s.Require().Len(got, 2)
		s.Equal(wallet(21), got[0].Wallet)
		s.Equal(wallet(20), got[1].Wallet)
	})
}

func (s *StoreContractSuite) TestStats() {
	s.Run("counts wallets per populated field", func() {
		withLens := s.record(30)
		withLens.Lens = ptr("x.lens")
		noTwitter := s.record(31)
		noTwitter.TwitterHandle = nil
		noTwitter.GitHub = ptr("gh")
		noTwitter.Farcaster = ptr("fc")
		s.upsert(
			models.RecordWrite{Record: withLens, LookupDelta: 1},
			models.RecordWrite{Record: noTwitter, LookupDelta: 1},
		)

		stats, err := s.store.Stats(context.Background())
		s.Require().NoError(err)
		s.Equal(&models.Stats{
			TotalWallets:  2,
			WithTwitter:   1,
			WithFarcaster: 1,
			WithLens:      1,
			WithGitHub:    1,
		}, stats)
	})
}
