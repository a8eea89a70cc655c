package merge

import "walletid/internal/identity/models"

// Reconcile applies a write against the row committed at write time. It is
// the in-process form of the per-column upsert expression the SQL backends
// run on conflict, so a concurrent writer that committed after our read is
// merged with rather than overwritten.
func Reconcile(committed *models.IdentityRecord, w models.RecordWrite) *models.IdentityRecord {
	next := w.Record.Clone()
	if committed == nil {
		next.LookupCount = w.LookupDelta
		return next
	}

	next.ENSName = coalesceString(next.ENSName, committed.ENSName)
	next.TwitterHandle = coalesceString(next.TwitterHandle, committed.TwitterHandle)
	next.TwitterURL = coalesceString(next.TwitterURL, committed.TwitterURL)
	next.Farcaster = coalesceString(next.Farcaster, committed.Farcaster)
	next.FarcasterURL = coalesceString(next.FarcasterURL, committed.FarcasterURL)
	next.FCFollowers = coalesceInt(next.FCFollowers, committed.FCFollowers)
	next.FCFID = coalesceInt(next.FCFID, committed.FCFID)
	next.Lens = coalesceString(next.Lens, committed.Lens)
	next.GitHub = coalesceString(next.GitHub, committed.GitHub)
	next.Sources = UnionSources(committed.Sources, next.Sources)
	next.FirstSeenAt = committed.FirstSeenAt
	next.LookupCount = committed.LookupCount + w.LookupDelta
	next.TwitterVerified = committed.TwitterVerified || next.TwitterVerified
	next.FarcasterVerified = committed.FarcasterVerified || next.FarcasterVerified
	next.DataQualityScore = max(committed.DataQualityScore, next.DataQualityScore)
	return next
}
