package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jwttoken "walletid/internal/jwt_token"
)

func TestMintToken(t *testing.T) {
	token, err := mintToken("s3cret", "ops@example.com", time.Minute)
	require.NoError(t, err)

	claims, err := jwttoken.NewJWTService("s3cret", jwttoken.AdminIssuer, jwttoken.AdminAudience).ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@example.com", claims.Subject)

	_, err = mintToken("", "ops@example.com", time.Minute)
	assert.Error(t, err)
	_, err = mintToken("s3cret", "ops@example.com", 0)
	assert.Error(t, err)
}

func TestStatsCommandMemoryStore(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")

	cmd := statsCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs(nil)
	require.NoError(t, cmd.Execute())
	assert.JSONEq(t, `{"total_wallets":0,"with_twitter":0,"with_farcaster":0,"with_lens":0,"with_github":0}`, out.String())
}
