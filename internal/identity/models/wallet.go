package models

import (
	"fmt"
	"strings"
)

// walletLength is "0x" followed by 40 hex digits.
const walletLength = 42

// NormalizeWallet lowercases and validates an EVM address. Two inputs that
// differ only in case normalize to the same key.
func NormalizeWallet(raw string) (string, error) {
	w := strings.ToLower(strings.TrimSpace(raw))
	if len(w) != walletLength || !strings.HasPrefix(w, "0x") {
		return "", fmt.Errorf("invalid wallet address %q", raw)
	}
	for _, c := range w[2:] {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return "", fmt.Errorf("invalid wallet address %q", raw)
		}
	}
	return w, nil
}
