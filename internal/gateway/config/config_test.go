package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inTempDir isolates Load from any .env or deepbuild.yaml in the package dir.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	inTempDir(t)
	cfg, err := Load(nil)
	require.NoError(t, err)

	assert.Equal(t, "deepseek", cfg.Provider)
	assert.Equal(t, ":8081", cfg.Port)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "deepbuild.db", cfg.Store.DSN)
	assert.True(t, cfg.CacheEnabled)
	assert.Equal(t, 3, cfg.MaxContinuations)
	assert.Equal(t, 500*time.Millisecond, cfg.Retry.BaseDelay)

	gen := cfg.Generation()
	assert.Equal(t, "deepseek-chat", gen.Model)
	assert.Equal(t, 8000, gen.MaxTokens)
	assert.InDelta(t, 0.7, gen.Temperature, 1e-9)
	assert.InDelta(t, 0.9, gen.TopP, 1e-9)
	assert.Equal(t, time.Minute, gen.Timeout)
	assert.False(t, cfg.S3().Enabled())
}

func TestLoadEnvironment(t *testing.T) {
	inTempDir(t)
	t.Setenv("API_PROVIDER", "Hyperbolic")
	t.Setenv("MODEL_VERSION", "custom-model")
	t.Setenv("REQUEST_TIMEOUT", "1500")
	t.Setenv("LLM_RETRY_BASE_DELAY", "2s")
	t.Setenv("PORT", "9090")
	t.Setenv("ARTIFACT_S3_ENDPOINT", "minio:9000")
	t.Setenv("MINIO_ROOT_USER", "user")

	cfg, err := Load(nil)
	require.NoError(t, err)
	assert.Equal(t, "hyperbolic", cfg.Provider)
	assert.Equal(t, ":9090", cfg.Port)
	assert.Equal(t, 2*time.Second, cfg.Retry.BaseDelay)
	assert.Equal(t, "HYPERBOLIC_API_KEY", cfg.APIKeyEnv())

	gen := cfg.Generation()
	assert.Equal(t, "custom-model", gen.Model)
	assert.Equal(t, 512, gen.MaxTokens)
	assert.Equal(t, 1500*time.Millisecond, gen.Timeout)

	s3 := cfg.S3()
	assert.True(t, s3.Enabled())
	assert.Equal(t, "user", s3.AccessKey)
}

func TestLoadFileAndFlags(t *testing.T) {
	dir := inTempDir(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("provider: gemini\nstore:\n  driver: memory\nport: \":7000\"\n"), 0o644))

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", path, "--port", ":7100"}))

	cfg, err := Load(fs)
	require.NoError(t, err)
	assert.Equal(t, "gemini", cfg.Provider)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, ":7100", cfg.Port)
	assert.Equal(t, "gemini-2.0-flash", cfg.Generation().Model)
}

func TestValidateRejectsUnknownValues(t *testing.T) {
	inTempDir(t)
	t.Setenv("API_PROVIDER", "openai")
	_, err := Load(nil)
	require.Error(t, err)

	t.Setenv("API_PROVIDER", "deepseek")
	t.Setenv("PROJECT_STORE_DRIVER", "mongo")
	_, err = Load(nil)
	require.Error(t, err)
}
