// Package merge implements the identity merge engine: a pure function from an
// existing record and one provider result to the next record version.
//
// Merges only ever grow a record. A field changes only when the incoming
// result supplies a value for it, the quality score never decreases and
// verification flags never reset.
package merge

import (
	"errors"
	"slices"
	"strings"
	"time"

	"walletid/internal/identity/models"
	pkgstrings "walletid/pkg/platform/strings"
)

// DefaultStalenessWindow is how long a record stays fresh after a write.
const DefaultStalenessWindow = 30 * 24 * time.Hour

// ErrNoSocialData marks results that carry nothing worth persisting.
var ErrNoSocialData = errors.New("provider result has no usable social field")

// Prepare normalizes a provider result: the wallet is lowercased and
// validated, blank strings become nil, Twitter handles lose a leading "@" and
// source tags are lowercased and de-duplicated. It returns ErrNoSocialData
// when no social field survives.
func Prepare(r models.ProviderResult) (models.ProviderResult, error) {
	wallet, err := models.NormalizeWallet(r.Wallet)
	if err != nil {
		return models.ProviderResult{}, err
	}

	out := models.ProviderResult{
		Wallet:        wallet,
		ENSName:       cleanString(r.ENSName),
		TwitterHandle: cleanHandle(r.TwitterHandle),
		TwitterURL:    cleanString(r.TwitterURL),
		Farcaster:     cleanString(r.Farcaster),
		FarcasterURL:  cleanString(r.FarcasterURL),
		FCFollowers:   cloneInt(r.FCFollowers),
		FCFID:         cloneInt(r.FCFID),
		Lens:          cleanString(r.Lens),
		GitHub:        cleanString(r.GitHub),
		Sources:       pkgstrings.DedupeAndTrimLower(r.Sources),
	}
	if !hasSocialData(out) {
		return models.ProviderResult{}, ErrNoSocialData
	}
	return out, nil
}

// Merge computes the record that results from applying incoming on top of
// existing (nil for a wallet never seen). It returns false, and no record,
// when incoming is rejected by Prepare.
func Merge(existing *models.IdentityRecord, incoming models.ProviderResult, now time.Time, window time.Duration) (*models.IdentityRecord, bool) {
	in, err := Prepare(incoming)
	if err != nil {
		return nil, false
	}

	prior := existing
	if prior == nil {
		prior = &models.IdentityRecord{}
	}

	merged := &models.IdentityRecord{
		Wallet:             in.Wallet,
		ENSName:            coalesceString(in.ENSName, prior.ENSName),
		TwitterHandle:      coalesceString(in.TwitterHandle, prior.TwitterHandle),
		TwitterURL:         coalesceString(in.TwitterURL, prior.TwitterURL),
		Farcaster:          coalesceString(in.Farcaster, prior.Farcaster),
		FarcasterURL:       coalesceString(in.FarcasterURL, prior.FarcasterURL),
		FCFollowers:        coalesceInt(in.FCFollowers, prior.FCFollowers),
		FCFID:              coalesceInt(in.FCFID, prior.FCFID),
		Lens:               coalesceString(in.Lens, prior.Lens),
		GitHub:             coalesceString(in.GitHub, prior.GitHub),
		Sources:            UnionSources(prior.Sources, in.Sources),
		FirstSeenAt:        now,
		LastUpdatedAt:      now,
		LookupCount:        prior.LookupCount + 1,
		LastVerificationAt: now,
		StaleAt:            now.Add(window),
	}
	if !prior.FirstSeenAt.IsZero() {
		merged.FirstSeenAt = prior.FirstSeenAt
	}

	score := ComputeScore(merged.Sources, merged.TwitterHandle != nil, merged.Farcaster != nil)
	merged.DataQualityScore = max(prior.DataQualityScore, score)
	merged.TwitterVerified = prior.TwitterVerified || slices.ContainsFunc(merged.Sources, models.VerifiesTwitter)
	merged.FarcasterVerified = prior.FarcasterVerified || slices.ContainsFunc(merged.Sources, models.VerifiesFarcaster)

	// A human confirmed the data.
	if slices.Contains(in.Sources, models.SourceManual) {
		merged.DataQualityScore = MaxScore
		merged.TwitterVerified = true
		merged.FarcasterVerified = true
	}

	return merged, true
}

// UnionSources returns the ordered union of two tag lists without transient
// tags.
func UnionSources(existing, incoming []string) []string {
	return pkgstrings.UnionLower(existing, incoming, models.IsTransientSource)
}

// PrimarySource picks the tag recorded as the change source in the audit
// trail: the first persisted tag, else the first tag, else "unknown".
func PrimarySource(tags []string) string {
	for _, t := range tags {
		if t != "" && !models.IsTransientSource(t) {
			return t
		}
	}
	if len(tags) > 0 && tags[0] != "" {
		return tags[0]
	}
	return models.SourceUnknown
}

func hasSocialData(r models.ProviderResult) bool {
	return r.ENSName != nil ||
		r.TwitterHandle != nil ||
		r.Farcaster != nil ||
		r.Lens != nil ||
		r.GitHub != nil
}

func cleanString(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

func cleanHandle(s *string) *string {
	v := cleanString(s)
	if v == nil {
		return nil
	}
	trimmed := strings.TrimPrefix(*v, "@")
	return cleanString(&trimmed)
}

func coalesceString(values ...*string) *string {
	for _, v := range values {
		if v != nil {
			c := *v
			return &c
		}
	}
	return nil
}

func coalesceInt(values ...*int64) *int64 {
	for _, v := range values {
		if v != nil {
			c := *v
			return &c
		}
	}
	return nil
}

func cloneInt(i *int64) *int64 {
	return coalesceInt(i)
}
