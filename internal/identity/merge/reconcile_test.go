package merge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"walletid/internal/identity/models"
)

func TestReconcile_NewRowTakesDelta(t *testing.T) {
	write := models.RecordWrite{
		Record: &models.IdentityRecord{
			Wallet:        walletLower,
			TwitterHandle: str("alice"),
			LookupCount:   7,
			FirstSeenAt:   t0,
		},
		LookupDelta: 2,
	}

	got := Reconcile(nil, write)
	assert.Equal(t, 2, got.LookupCount)
	assert.Equal(t, t0, got.FirstSeenAt)
	assert.Equal(t, 7, write.Record.LookupCount, "input is not mutated")
}

func TestReconcile_MergesWithConcurrentCommit(t *testing.T) {
	// Another writer committed a Farcaster profile after our read.
	committed := &models.IdentityRecord{
		Wallet:            walletLower,
		Farcaster:         str("alice.fc"),
		Sources:           []string{"neynar"},
		FirstSeenAt:       t0,
		LookupCount:       3,
		FarcasterVerified: true,
		DataQualityScore:  45,
	}
	later := t0.Add(time.Hour)
	write := models.RecordWrite{
		Record: &models.IdentityRecord{
			Wallet:           walletLower,
			TwitterHandle:    str("alice"),
			Sources:          []string{"web3bio"},
			FirstSeenAt:      later,
			LastUpdatedAt:    later,
			StaleAt:          later.Add(DefaultStalenessWindow),
			LookupCount:      1,
			DataQualityScore: 35,
		},
		LookupDelta: 1,
	}

	got := Reconcile(committed, write)
	assert.Equal(t, "alice.fc", *got.Farcaster)
	assert.Equal(t, "alice", *got.TwitterHandle)
	assert.Equal(t, []string{"neynar", "web3bio"}, got.Sources)
	assert.Equal(t, t0, got.FirstSeenAt)
	assert.Equal(t, 4, got.LookupCount)
	assert.True(t, got.FarcasterVerified)
	assert.Equal(t, 45, got.DataQualityScore)
	assert.Equal(t, later.Add(DefaultStalenessWindow), got.StaleAt)
}
