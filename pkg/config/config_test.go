package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	require.Equal(t, "8080", cfg.Port)
	require.Equal(t, "sqlite", cfg.StoreDriver)
	require.Equal(t, "data/ledger.db", cfg.SQLitePath)
	require.Equal(t, 5*time.Minute, cfg.DuplicateWindow)
	require.Equal(t, 50, cfg.RateLimitRPS)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("GRAINTRACE_STORE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://trace@localhost/trace")
	t.Setenv("GRAINTRACE_DUPLICATE_WINDOW", "90s")
	t.Setenv("GRAINTRACE_RATE_LIMIT_RPS", "10")

	cfg := Load()
	require.Equal(t, "9090", cfg.Port)
	require.Equal(t, "postgres", cfg.StoreDriver)
	require.Equal(t, "postgres://trace@localhost/trace", cfg.DatabaseURL)
	require.Equal(t, 90*time.Second, cfg.DuplicateWindow)
	require.Equal(t, 10, cfg.RateLimitRPS)
}

func TestLoadIgnoresInvalidValues(t *testing.T) {
	t.Setenv("GRAINTRACE_DUPLICATE_WINDOW", "not-a-duration")
	t.Setenv("GRAINTRACE_RATE_LIMIT_RPS", "-3")

	cfg := Load()
	require.Equal(t, 5*time.Minute, cfg.DuplicateWindow)
	require.Equal(t, 50, cfg.RateLimitRPS)
}

func TestProfileOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: staging
store_driver: postgres
database_url: postgres://trace@db/trace
anchor_endpoint: https://anchor.example.com/v1/attest
duplicate_window: 2m
rate_limit_rps: 20
`), 0o644))

	profile, err := LoadProfile(path)
	require.NoError(t, err)
	require.Equal(t, "staging", profile.Name)

	cfg := Load()
	require.NoError(t, profile.Apply(cfg))
	require.Equal(t, "postgres", cfg.StoreDriver)
	require.Equal(t, "https://anchor.example.com/v1/attest", cfg.AnchorEndpoint)
	require.Equal(t, 2*time.Minute, cfg.DuplicateWindow)
	require.Equal(t, 20, cfg.RateLimitRPS)
	// Fields absent from the profile keep their environment defaults.
	require.Equal(t, "data/ledger.db", cfg.SQLitePath)
}

func TestProfileRejectsBadDuration(t *testing.T) {
	p := &Profile{DuplicateWindow: "soon"}
	require.Error(t, p.Apply(Load()))
}

func TestLoadProfileMissingFile(t *testing.T) {
	_, err := LoadProfile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
