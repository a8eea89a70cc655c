package models

import (
	"slices"
	"time"
)

// IdentityRecord is the durable per-wallet identity aggregate. Optional
// identity fields are nil when no provider has supplied a value yet.
type IdentityRecord struct {
	Wallet string

	ENSName       *string
	TwitterHandle *string
	TwitterURL    *string
	Farcaster     *string
	FarcasterURL  *string
	FCFollowers   *int64
	FCFID         *int64
	Lens          *string
	GitHub        *string

	// Sources lists provider tags that contributed current data. Transient
	// tags (cache, graph) are never stored.
	Sources []string

	FirstSeenAt        time.Time
	LastUpdatedAt      time.Time
	LookupCount        int
	TwitterVerified    bool
	FarcasterVerified  bool
	DataQualityScore   int
	LastVerificationAt time.Time
	StaleAt            time.Time
}

// HasSource reports whether tag contributed to the record.
func (r *IdentityRecord) HasSource(tag string) bool {
	if r == nil {
		return false
	}
	return slices.Contains(r.Sources, tag)
}

// Clone returns a deep copy so stores never hand out aliased state.
func (r *IdentityRecord) Clone() *IdentityRecord {
	if r == nil {
		return nil
	}
	c := *r
	c.ENSName = cloneString(r.ENSName)
	c.TwitterHandle = cloneString(r.TwitterHandle)
	c.TwitterURL = cloneString(r.TwitterURL)
	c.Farcaster = cloneString(r.Farcaster)
	c.FarcasterURL = cloneString(r.FarcasterURL)
	c.FCFollowers = cloneInt(r.FCFollowers)
	c.FCFID = cloneInt(r.FCFID)
	c.Lens = cloneString(r.Lens)
	c.GitHub = cloneString(r.GitHub)
	c.Sources = slices.Clone(r.Sources)
	return &c
}

// ProviderResult is one provider's answer for one wallet. It is input only;
// its effect on an IdentityRecord is what gets persisted.
type ProviderResult struct {
	Wallet string

	ENSName       *string
	TwitterHandle *string
	TwitterURL    *string
	Farcaster     *string
	FarcasterURL  *string
	FCFollowers   *int64
	FCFID         *int64
	Lens          *string
	GitHub        *string

	Sources []string
}

// ManualEdit carries the fields an administrator may set by hand.
type ManualEdit struct {
	TwitterHandle *string
	Farcaster     *string
	ENSName       *string
	Lens          *string
	GitHub        *string
}

// ToProviderResult tags the edit as a manual provider result for wallet.
func (e ManualEdit) ToProviderResult(wallet string) ProviderResult {
	return ProviderResult{
		Wallet:        wallet,
		TwitterHandle: e.TwitterHandle,
		Farcaster:     e.Farcaster,
		ENSName:       e.ENSName,
		Lens:          e.Lens,
		GitHub:        e.GitHub,
		Sources:       []string{SourceManual},
	}
}

// RecordWrite is a merged record ready for persistence. LookupDelta is the
// number of provider results folded into Record by this write; backends add
// it to whatever lookup count is committed at write time.
type RecordWrite struct {
	Record      *IdentityRecord
	LookupDelta int
}

// AuditEntry is one append-only field-level change.
type AuditEntry struct {
	ID           string
	Wallet       string
	FieldChanged string
	OldValue     string
	NewValue     string
	ChangeSource string
	Timestamp    time.Time
}

// UpsertResult summarizes a batch upsert. Skipped counts results dropped
// before merging (invalid wallet or no usable social field).
type UpsertResult struct {
	Succeeded int
	Failed    int
	Skipped   int
	Errors    []string
}

// RecordWithQuality pairs a stored record (nil when missing) with its
// read-time classification.
type RecordWithQuality struct {
	Record       *IdentityRecord
	Quality      Quality
	NeedsRefresh bool
}

// Stats are aggregate counts over the identity table.
type Stats struct {
	TotalWallets  int64
	WithTwitter   int64
	WithFarcaster int64
	WithLens      int64
	WithGitHub    int64
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneInt(i *int64) *int64 {
	if i == nil {
		return nil
	}
	v := *i
	return &v
}
