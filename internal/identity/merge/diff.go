package merge

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"walletid/internal/identity/models"
)

// Audited field names as stored in the audit trail.
const (
	FieldENSName       = "ens_name"
	FieldTwitterHandle = "twitter_handle"
	FieldTwitterURL    = "twitter_url"
	FieldFarcaster     = "farcaster"
	FieldFarcasterURL  = "farcaster_url"
	FieldFCFollowers   = "fc_followers"
	FieldFCFID         = "fc_fid"
	FieldLens          = "lens"
	FieldGitHub        = "github"
)

type trackedField struct {
	name  string
	value func(*models.IdentityRecord) string
}

var trackedFields = []trackedField{
	{FieldENSName, func(r *models.IdentityRecord) string { return deref(r.ENSName) }},
	{FieldTwitterHandle, func(r *models.IdentityRecord) string { return deref(r.TwitterHandle) }},
	{FieldTwitterURL, func(r *models.IdentityRecord) string { return deref(r.TwitterURL) }},
	{FieldFarcaster, func(r *models.IdentityRecord) string { return deref(r.Farcaster) }},
	{FieldFarcasterURL, func(r *models.IdentityRecord) string { return deref(r.FarcasterURL) }},
	{FieldFCFollowers, func(r *models.IdentityRecord) string { return derefInt(r.FCFollowers) }},
	{FieldFCFID, func(r *models.IdentityRecord) string { return derefInt(r.FCFID) }},
	{FieldLens, func(r *models.IdentityRecord) string { return deref(r.Lens) }},
	{FieldGitHub, func(r *models.IdentityRecord) string { return deref(r.GitHub) }},
}

// Diff returns one audit entry per tracked field whose value differs between
// before (nil for a new record) and after. Unchanged fields and fields empty
// on both sides produce nothing.
func Diff(before, after *models.IdentityRecord, source string, at time.Time) []models.AuditEntry {
	if after == nil {
		return nil
	}

	var entries []models.AuditEntry
	for _, f := range trackedFields {
		oldValue := ""
		if before != nil {
			oldValue = f.value(before)
		}
		newValue := f.value(after)
		if oldValue == newValue {
			continue
		}
		entries = append(entries, models.AuditEntry{
			ID:           uuid.NewString(),
			Wallet:       after.Wallet,
			FieldChanged: f.name,
			OldValue:     oldValue,
			NewValue:     newValue,
			ChangeSource: source,
			Timestamp:    at,
		})
	}
	return entries
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func derefInt(i *int64) string {
	if i == nil {
		return ""
	}
	return strconv.FormatInt(*i, 10)
}
