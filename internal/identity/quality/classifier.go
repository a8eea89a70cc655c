// Package quality maps stored identity records to read-time confidence tiers.
package quality

import (
	"time"

	"walletid/internal/identity/models"
)

const (
	// HighScoreThreshold is the minimum data quality score for the high tier.
	HighScoreThreshold = 70
	// MediumLookupThreshold is the lookup count above which an unverified
	// record still counts as medium.
	MediumLookupThreshold = 3
)

// Assessment is the classification of one record at one instant.
type Assessment struct {
	Quality      models.Quality
	NeedsRefresh bool
}

// Classify evaluates the tiers in order; staleness overrides every other
// tier.
func Classify(record *models.IdentityRecord, now time.Time) Assessment {
	q := tier(record, now)
	return Assessment{Quality: q, NeedsRefresh: q.NeedsRefresh()}
}

func tier(record *models.IdentityRecord, now time.Time) models.Quality {
	switch {
	case record == nil:
		return models.QualityMissing
	case record.StaleAt.Before(now):
		return models.QualityStale
	case record.DataQualityScore >= HighScoreThreshold:
		return models.QualityHigh
	case record.TwitterVerified || record.FarcasterVerified || record.LookupCount > MediumLookupThreshold:
		return models.QualityMedium
	default:
		return models.QualityLow
	}
}
