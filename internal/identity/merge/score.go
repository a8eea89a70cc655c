package merge

import "walletid/internal/identity/models"

// MaxScore caps the data quality score.
const MaxScore = 100

const (
	twitterPresentBonus   = 20
	farcasterPresentBonus = 20
	otherSourceBonus      = 5
)

var sourceBonus = map[string]int{
	models.SourceENS:        30,
	models.SourceENSOnchain: 30,
	models.SourceNeynar:     25,
	models.SourceWeb3Bio:    15,
	models.SourceManual:     35,
}

// ComputeScore is the additive confidence heuristic for a set of sources.
func ComputeScore(sources []string, hasTwitter, hasFarcaster bool) int {
	score := 0
	if hasTwitter {
		score += twitterPresentBonus
	}
	if hasFarcaster {
		score += farcasterPresentBonus
	}
	for _, s := range sources {
		if bonus, ok := sourceBonus[s]; ok {
			score += bonus
			continue
		}
		score += otherSourceBonus
	}
	return min(score, MaxScore)
}
