package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"paychledger/config"
)

func TestLoadCreatesDefaultWhenMissing(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "paychledgerd.toml")

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NotEmpty(t, cfg.ListenAddress)
	require.NotEmpty(t, cfg.DatabaseDSN)
	require.FileExists(t, path)
}

func TestLoadFillsDefaultsForOmittedFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "paychledgerd.toml")
	require.NoError(t, os.WriteFile(path, []byte(`DatabaseDSN = "postgres://x/y"`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.Equal(t, "postgres://x/y", cfg.DatabaseDSN)
	require.Equal(t, ":8080", cfg.ListenAddress)
	require.Equal(t, ":9090", cfg.MetricsAddr)
	require.Equal(t, "info", cfg.LogLevel)
	require.Equal(t, config.VerifierModeECDSA, cfg.VerifierMode)
	require.Empty(t, cfg.ChainAllowlist)
}

func TestLoadAcceptsAlwaysTrueVerifierModeAndChainAllowlist(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "paychledgerd.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
DatabaseDSN = "postgres://x/y"
LogLevel = "debug"
VerifierMode = "always-true"
ChainAllowlist = [1, 5]
`), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.True(t, cfg.Debug())
	require.Equal(t, config.VerifierModeAlwaysTrue, cfg.VerifierMode)
	require.Equal(t, []int64{1, 5}, cfg.ChainAllowlist)
}

func TestLoadRejectsUnknownVerifierMode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "paychledgerd.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
DatabaseDSN = "postgres://x/y"
VerifierMode = "bogus"
`), 0o644))

	_, err := config.Load(path)
	require.Error(t, err)
}

func TestLoadRejectsMissingDSN(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "paychledgerd.toml")
	require.NoError(t, os.WriteFile(path, []byte(`ListenAddress = ":9999"`), 0o644))

	_, err := config.Load(path)
	require.Error(t, err)
}
