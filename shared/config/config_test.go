package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCSV(t *testing.T) {
	got := parseCSV("a, b, ,c,,")
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestParseAnyCSV(t *testing.T) {
	got := parseAnyCSV([]any{"x", " ", "y", 3})
	assert.Equal(t, []string{"x", "y"}, got)
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileThenEnvOverrides(t *testing.T) {
	path := writeConfig(t, `{
		"ENV": "test",
		"ASYNQ_QUEUE": "fanout",
		"ASYNQ_CONCURRENCY": 4,
		"JOB_MAX_RETRY": 3,
		"KAFKA_BROKERS": ["k1:9092", "k2:9092"],
		"OTEL_ENABLED": true
	}`)
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("ENV", "")
	t.Setenv("ASYNQ_CONCURRENCY", "8")
	t.Setenv("UNREAD_CACHE_TTL_SECONDS", "15")

	cfg, problems := Load("worker", 8081)

	assert.Empty(t, problems)
	assert.Equal(t, "test", cfg.Env)
	assert.Equal(t, "worker", cfg.ServiceName)
	assert.Equal(t, "fanout", cfg.AsynqQueue)
	assert.Equal(t, 8, cfg.AsynqConcurrency)
	assert.Equal(t, 3, cfg.JobMaxRetry)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.True(t, cfg.OtelEnabled)
	assert.Equal(t, 15*time.Second, cfg.UnreadCacheTTL())
	assert.Equal(t, 30*time.Second, cfg.JobTimeout())
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
}

func TestLoadReportsProblems(t *testing.T) {
	path := writeConfig(t, `{"ENV": "test", "ASYNQ_CONCURRENCY": "many"}`)
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("ENV", "")
	t.Setenv("JOB_TIMEOUT_SECONDS", "0")
	t.Setenv("OTEL_SAMPLE_RATIO", "2")

	cfg, problems := Load("worker", 8081)

	fields := map[string]bool{}
	for _, p := range problems {
		fields[p.Field] = true
	}
	assert.True(t, fields["ASYNQ_CONCURRENCY"])
	assert.True(t, fields["JOB_TIMEOUT_SECONDS"])
	assert.True(t, fields["OTEL_SAMPLE_RATIO"])
	assert.Equal(t, 30, cfg.JobTimeoutSec)
	assert.Equal(t, 1.0, cfg.OtelSampleRatio)
}

func TestLoadRequiresEnv(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Setenv("ENV", "")

	cfg, problems := Load("api", 8080)

	assert.Equal(t, "dev", cfg.Env)
	require.NotEmpty(t, problems)
	assert.Contains(t, problems, Problem{Field: "ENV", Message: "ENV is required"})
}
