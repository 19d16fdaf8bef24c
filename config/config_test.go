package config

import (
	"os"
	"os/user"
	"path/filepath"
	"testing"
	"time"

	"github.com/carbocation/herring"
	"github.com/stretchr/testify/require"
)

func env(vars map[string]string) func(string) string {
	return func(k string) string { return vars[k] }
}

func TestDefaults(t *testing.T) {
	cfg, err := LoadFrom(env(nil))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)

	cc := cfg.Client("herring/test")
	require.Equal(t, "https://www.ebi.ac.uk/ena/portal/api", cc.BaseURL)
	require.Equal(t, "OXFORD_NANOPORE", cc.Platform)
	require.Equal(t, 30*time.Second, cc.Timeout)
	require.Equal(t, 5, cc.Retry.MaxAttempts)
	require.Equal(t, 400*time.Millisecond, cc.Retry.BaseDelay)
	require.Equal(t, 30*time.Second, cc.Retry.MaxDelay)
	require.Equal(t, []int{408}, cc.Retry.ExtraStatus)
	require.Equal(t, "herring/test", cc.UserAgent)

	fo := cfg.FetchOptions(nil)
	require.Equal(t, 14, fo.MaxChunkDays)
	require.Equal(t, 1, fo.Concurrency)
}

func TestEnvOverrides(t *testing.T) {
	cfg, err := LoadFrom(env(map[string]string{
		EnvInsecureTLS: "1",
		EnvCABundle:    "/etc/ssl/extra.pem",
		EnvTimeoutSecs: "7",
		EnvBaseURL:     "http://localhost:8080/api",
	}))
	require.NoError(t, err)
	require.True(t, cfg.Portal.InsecureTLS)
	require.Equal(t, "/etc/ssl/extra.pem", cfg.Portal.CABundle)
	require.Equal(t, 7*time.Second, cfg.Timeout())
	require.Equal(t, "http://localhost:8080/api", cfg.Portal.BaseURL)
}

func TestCABundleHomeExpansion(t *testing.T) {
	usr, err := user.Current()
	require.NoError(t, err)

	cfg, err := LoadFrom(env(map[string]string{EnvCABundle: "~/certs/ca.pem"}))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(usr.HomeDir, "certs", "ca.pem"), cfg.Portal.CABundle)
}

func TestBadEnv(t *testing.T) {
	for name, vars := range map[string]map[string]string{
		"timeout not a number": {EnvTimeoutSecs: "soon"},
		"timeout zero":         {EnvTimeoutSecs: "0"},
		"insecure not a bool":  {EnvInsecureTLS: "maybe"},
		"relative base url":    {EnvBaseURL: "ebi.ac.uk"},
		"missing config file":  {EnvConfigPath: "/does/not/exist.yaml"},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFrom(env(vars))
			require.ErrorIs(t, err, herring.ErrInvalidArgument)
		})
	}
}

func TestYAMLFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "herring.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
portal:
  timeout_secs: 12
  platform: PACBIO_SMRT
retry:
  max_attempts: 3
fetch:
  max_chunk_days: 30
  concurrency: 4
`), 0o644))

	cfg, err := LoadFrom(env(map[string]string{EnvConfigPath: path, EnvTimeoutSecs: "9"}))
	require.NoError(t, err)
	require.Equal(t, 9*time.Second, cfg.Timeout())
	require.Equal(t, "PACBIO_SMRT", cfg.Portal.Platform)
	require.Equal(t, 3, cfg.Retry.MaxAttempts)
	require.Equal(t, 400, cfg.Retry.BaseDelayMS)
	require.Equal(t, 30, cfg.Fetch.MaxChunkDays)
	require.Equal(t, 4, cfg.Fetch.Concurrency)
}

func TestYAMLRejectsUnknownAndInvalid(t *testing.T) {
	for name, body := range map[string]string{
		"unknown key":   "portal:\n  timeout: 3\n",
		"no attempts":   "retry:\n  max_attempts: 0\n",
		"no delay cap":  "retry:\n  max_delay_ms: 0\n",
		"no workers":    "fetch:\n  concurrency: 0\n",
		"negative span": "fetch:\n  max_chunk_days: -1\n",
		"bad port":      "serve:\n  port: 70000\n",
		"not yaml":      "portal: [",
	} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "herring.yaml")
			require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

			_, err := LoadFrom(env(map[string]string{EnvConfigPath: path}))
			require.ErrorIs(t, err, herring.ErrInvalidArgument)
		})
	}
}

func TestEmptyYAMLFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "herring.yaml")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	cfg, err := LoadFrom(env(map[string]string{EnvConfigPath: path}))
	require.NoError(t, err)
	require.Equal(t, Default(), cfg)
}
