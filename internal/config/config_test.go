package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.NoError(t, err)
	require.Equal(t, DefaultHTTPAddr, cfg.Server.Addr)
	require.Equal(t, DefaultPGDatabase, cfg.Postgres.Database)
	require.Equal(t, DefaultMenuDebounce, cfg.Engine.MenuDebounceMs)
	require.Equal(t, DefaultAckDelay, cfg.Engine.AckDelayMs)
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	content := `
[log]
level = "debug"
format = "json"

[engine]
menu_debounce_ms = 1500

[postgres]
database = "chatdesk_test"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "json", cfg.Log.Format)
	require.Equal(t, 1500, cfg.Engine.MenuDebounceMs)
	// untouched sections keep defaults
	require.Equal(t, DefaultAckDelay, cfg.Engine.AckDelayMs)
	require.Equal(t, "chatdesk_test", cfg.Postgres.Database)
}
