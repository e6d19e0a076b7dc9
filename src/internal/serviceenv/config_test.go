package serviceenv

import (
	"testing"

	"github.com/vizierdb/vizier/src/internal/cmdutil"
	"github.com/vizierdb/vizier/src/internal/require"
)

func TestConfigFromOptions(t *testing.T) {
	c := ConfigFromOptions(WithStorageURL("mem://"), WithWorkers(2))
	require.Equal(t, "mem://", c.StorageURL)
	require.Equal(t, 2, c.Workers)
	require.Equal(t, StoreObject, c.Store)
	require.Equal(t, map[string][]string{"vizual": {"*"}, "markdown": {"*"}}, c.SyncWhitelist())
	require.NoError(t, c.Validate())
}

func TestValidate(t *testing.T) {
	t.Run("invalid/postgres-without-dsn", func(t *testing.T) {
		c := ConfigFromOptions(WithPostgres(""))
		require.Error(t, c.Validate())
	})
	t.Run("invalid/sync-command", func(t *testing.T) {
		c := ConfigFromOptions(WithSyncCommands("vizual"))
		require.Error(t, c.Validate())
	})
	t.Run("invalid/workers", func(t *testing.T) {
		c := ConfigFromOptions(WithWorkers(0))
		require.Error(t, c.Validate())
	})
}

func TestNewConfiguration(t *testing.T) {
	t.Setenv("VIZIER_WORKERS", "8")
	c, err := NewConfiguration(cmdutil.YAMLDecoder{Data: []byte("VIZIER_STORAGE_URL: mem://\nVIZIER_WORKERS: 2\n")})
	require.NoError(t, err)
	require.Equal(t, 8, c.Workers)
	require.Equal(t, "mem://", c.StorageURL)
}
