package models

// Provider tags.
const (
	SourceENS        = "ens"
	SourceENSOnchain = "ens_onchain"
	SourceNeynar     = "neynar"
	SourceWeb3Bio    = "web3bio"
	SourceManual     = "manual"

	// SourceCache and SourceGraph mark data served from intermediate layers
	// rather than a provider. They are stripped before persistence.
	SourceCache = "cache"
	SourceGraph = "graph"

	SourceUnknown = "unknown"
)

// IsTransientSource reports whether tag is never persisted.
func IsTransientSource(tag string) bool {
	return tag == SourceCache || tag == SourceGraph
}

// VerifiesTwitter reports whether tag is authoritative for Twitter handles.
func VerifiesTwitter(tag string) bool {
	switch tag {
	case SourceENS, SourceENSOnchain, SourceManual:
		return true
	}
	return false
}

// VerifiesFarcaster reports whether tag is authoritative for Farcaster.
func VerifiesFarcaster(tag string) bool {
	return tag == SourceNeynar || tag == SourceManual
}
