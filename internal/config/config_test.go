package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.properties")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfigFile(t, `
inference_address=https://0.0.0.0:8443
job_queue_size=250
keystore_pass=secret
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "https://0.0.0.0:8443", cfg.InferenceAddress())
	require.Equal(t, 250, cfg.JobQueueSize())
	require.Equal(t, "secret", cfg.Property(KeyKeystorePass, "changeit"))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.properties"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unable to read configuration file")
}

func TestLoadNoFileUsesDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	require.Equal(t, "https://127.0.0.1:8080", cfg.InferenceAddress())
	require.Equal(t, "https://127.0.0.1:8081", cfg.ManagementAddress())
	require.Equal(t, 1000, cfg.JobQueueSize())
	require.Equal(t, 1, cfg.BatchSize())
	require.Equal(t, 100*time.Millisecond, cfg.MaxBatchDelay())
	require.Equal(t, 60*time.Second, cfg.MaxIdleTime())
	require.Equal(t, 64*1024*1024, cfg.MaxRequestSize())
	require.Equal(t, 120*time.Second, cfg.ChunkedReadTimeout())
	require.Equal(t, 400, cfg.BadRequestErrorHTTPCode())
	require.Equal(t, 503, cfg.WlmErrorHTTPCode())
	require.Equal(t, 503, cfg.ThrottleErrorHTTPCode())
	require.Equal(t, 400, cfg.TimeoutErrorHTTPCode())
	require.Equal(t, 500, cfg.ServerErrorHTTPCode())
	require.Equal(t, "x-request-id", cfg.RequestIDHeaderKey())
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfigFile(t, "job_queue_size=250\n")
	t.Setenv("SERVING_JOB_QUEUE_SIZE", "500")
	t.Setenv("SERVING_ERROR_RATE_MODEL", "10/1m")

	cfg, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, 500, cfg.JobQueueSize())
	require.Equal(t, "10/1m", cfg.Property("error_rate_model", ""))
}

func TestSetOverridesEverything(t *testing.T) {
	path := writeConfigFile(t, "job_queue_size=250\n")
	t.Setenv("SERVING_JOB_QUEUE_SIZE", "500")

	cfg, err := Load(path)
	require.NoError(t, err)

	cfg.Set(KeyJobQueueSize, "750")
	require.Equal(t, 750, cfg.JobQueueSize())
}

func TestIntPropertyUnparsableFallsBack(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Set(KeyJobQueueSize, "not-a-number")
	require.Equal(t, 1000, cfg.JobQueueSize())
}

func TestDumpMasksKeystorePassword(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Set(KeyKeystorePass, "hunter2")
	cfg.Set(KeyKeystore, "/etc/serving/keystore.p12")

	dump := cfg.Dump()
	require.NotContains(t, dump, "hunter2")
	require.Contains(t, dump, "keystore_pass: ***")
	require.Contains(t, dump, "/etc/serving/keystore.p12")
}
