package handler

import (
	"time"

	"walletid/internal/identity/models"
)

// IdentityResponse is the wire form of an IdentityRecord.
type IdentityResponse struct {
	Wallet             string    `json:"wallet"`
	ENSName            *string   `json:"ens_name"`
	TwitterHandle      *string   `json:"twitter_handle"`
	TwitterURL         *string   `json:"twitter_url"`
	Farcaster          *string   `json:"farcaster"`
	FarcasterURL       *string   `json:"farcaster_url"`
	FCFollowers        *int64    `json:"fc_followers"`
	FCFID              *int64    `json:"fc_fid"`
	Lens               *string   `json:"lens"`
	GitHub             *string   `json:"github"`
	Sources            []string  `json:"sources"`
	FirstSeenAt        time.Time `json:"first_seen_at"`
	LastUpdatedAt      time.Time `json:"last_updated_at"`
	LookupCount        int       `json:"lookup_count"`
	TwitterVerified    bool      `json:"twitter_verified"`
	FarcasterVerified  bool      `json:"farcaster_verified"`
	DataQualityScore   int       `json:"data_quality_score"`
	LastVerificationAt time.Time `json:"last_verification_at"`
	StaleAt            time.Time `json:"stale_at"`
}

type IdentityWithQualityResponse struct {
	Wallet       string            `json:"wallet"`
	Record       *IdentityResponse `json:"record"`
	Quality      string            `json:"quality"`
	NeedsRefresh bool              `json:"needs_refresh"`
}

type IdentitiesResponse struct {
	Identities []IdentityWithQualityResponse `json:"identities"`
}

type AuditEntryResponse struct {
	ID           string    `json:"id"`
	Wallet       string    `json:"wallet"`
	FieldChanged string    `json:"field_changed"`
	OldValue     string    `json:"old_value"`
	NewValue     string    `json:"new_value"`
	ChangeSource string    `json:"change_source"`
	ChangedAt    time.Time `json:"changed_at"`
}

type AuditTrailResponse struct {
	Wallet  string               `json:"wallet"`
	Entries []AuditEntryResponse `json:"entries"`
}

type StatsResponse struct {
	TotalWallets  int64 `json:"total_wallets"`
	WithTwitter   int64 `json:"with_twitter"`
	WithFarcaster int64 `json:"with_farcaster"`
	WithLens      int64 `json:"with_lens"`
	WithGitHub    int64 `json:"with_github"`
}

type UpsertResultResponse struct {
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors"`
}

type ManualEditsResponse struct {
	Records []IdentityResponse `json:"records"`
}

type RefreshCandidatesResponse struct {
	Wallets []string `json:"wallets"`
}

func FromRecord(r *models.IdentityRecord) *IdentityResponse {
	if r == nil {
		return nil
	}
	sources := r.Sources
	if sources == nil {
		sources = []string{}
	}
	return &IdentityResponse{
		Wallet:             r.Wallet,
		ENSName:            r.ENSName,
		TwitterHandle:      r.TwitterHandle,
		TwitterURL:         r.TwitterURL,
		Farcaster:          r.Farcaster,
		FarcasterURL:       r.FarcasterURL,
		FCFollowers:        r.FCFollowers,
		FCFID:              r.FCFID,
		Lens:               r.Lens,
		GitHub:             r.GitHub,
		Sources:            sources,
		FirstSeenAt:        r.FirstSeenAt,
		LastUpdatedAt:      r.LastUpdatedAt,
		LookupCount:        r.LookupCount,
		TwitterVerified:    r.TwitterVerified,
		FarcasterVerified:  r.FarcasterVerified,
		DataQualityScore:   r.DataQualityScore,
		LastVerificationAt: r.LastVerificationAt,
		StaleAt:            r.StaleAt,
	}
}

func fromRecordWithQuality(wallet string, rq models.RecordWithQuality) IdentityWithQualityResponse {
	return IdentityWithQualityResponse{
		Wallet:       wallet,
		Record:       FromRecord(rq.Record),
		Quality:      rq.Quality.String(),
		NeedsRefresh: rq.NeedsRefresh,
	}
}

func fromAudit(entries []models.AuditEntry) []AuditEntryResponse {
	out := make([]AuditEntryResponse, len(entries))
	for i, e := range entries {
		out[i] = AuditEntryResponse{
			ID:           e.ID,
			Wallet:       e.Wallet,
			FieldChanged: e.FieldChanged,
			OldValue:     e.OldValue,
			NewValue:     e.NewValue,
			ChangeSource: e.ChangeSource,
			ChangedAt:    e.Timestamp,
		}
	}
	return out
}

func fromUpsertResult(r models.UpsertResult) UpsertResultResponse {
	errs := r.Errors
	if errs == nil {
		errs = []string{}
	}
	return UpsertResultResponse{
		Succeeded: r.Succeeded,
		Failed:    r.Failed,
		Skipped:   r.Skipped,
		Errors:    errs,
	}
}
