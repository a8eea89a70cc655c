// Package strings provides string slice helpers shared by domain packages.
package strings

import (
	"strings"
)

// DedupeAndTrimLower trims, lowercases and de-duplicates values, dropping
// empty entries. Order of first occurrence is preserved.
//
// Example:
//
//	DedupeAndTrimLower([]string{"  ENS ", "web3bio", "ens"})
//	// Returns: []string{"ens", "web3bio"}
func DedupeAndTrimLower(values []string) []string {
	if len(values) == 0 {
		return values
	}
	return UnionLower(values, nil, nil)
}

// UnionLower returns the ordered, case-insensitive union of a and b. Entries
// for which drop returns true are omitted; a nil drop keeps everything.
//
// Example:
//
//	UnionLower([]string{"web3bio"}, []string{"ENS", "cache"}, isTransient)
//	// Returns: []string{"web3bio", "ens"}
func UnionLower(a, b []string, drop func(string) bool) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	result := make([]string, 0, len(a)+len(b))

	for _, list := range [][]string{a, b} {
		for _, v := range list {
			normalized := strings.ToLower(strings.TrimSpace(v))
			if normalized == "" {
				continue
			}
			if drop != nil && drop(normalized) {
				continue
			}
			if _, ok := seen[normalized]; ok {
				continue
			}
			seen[normalized] = struct{}{}
			result = append(result, normalized)
		}
	}

	return result
}
