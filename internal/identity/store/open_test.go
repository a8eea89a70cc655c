package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"walletid/internal/platform/config"
)

func TestOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("memory", func(t *testing.T) {
		s, db, err := Open(ctx, config.StoreConfig{Driver: config.DriverMemory})
		require.NoError(t, err)
		assert.Nil(t, db)
		assert.IsType(t, &InMemoryStore{}, s)
	})

	t.Run("sqlite creates schema", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "nested", "walletid.db")
		s, db, err := Open(ctx, config.StoreConfig{Driver: config.DriverSQLite, SQLitePath: path})
		require.NoError(t, err)
		t.Cleanup(func() { _ = db.Close() })

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Zero(t, stats.TotalWallets)
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, _, err := Open(ctx, config.StoreConfig{Driver: "mysql"})
		assert.Error(t, err)
	})
}
