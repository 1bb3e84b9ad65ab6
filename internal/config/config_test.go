package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inTempDir runs the test from an empty directory so no .env is picked up.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	return dir
}

func TestLoadRelay_Defaults(t *testing.T) {
	inTempDir(t)
	t.Setenv("CARTA_NODE_NAME", "relay-test")

	c, err := LoadRelay()
	require.NoError(t, err)
	assert.Equal(t, "relay-test", c.NodeName)
	assert.Equal(t, ":50051", c.GRPCAddr)
	assert.Equal(t, ":3002", c.WSAddr)
	assert.Equal(t, 30*time.Second, c.ActionTimeout)
	assert.Equal(t, 256, c.WorkerPoolSize)
	assert.Equal(t, "json", c.Format)
	assert.Equal(t, slog.LevelInfo, c.SlogLevel())
	assert.Empty(t, c.RedisAddr)
}

func TestLoadRelay_Overrides(t *testing.T) {
	inTempDir(t)
	t.Setenv("CARTA_NODE_NAME", "relay-test")
	t.Setenv("CARTA_ACTION_TIMEOUT", "5s")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	c, err := LoadRelay()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, c.ActionTimeout)
	assert.Equal(t, slog.LevelDebug, c.SlogLevel())
	assert.Equal(t, "localhost:6379", c.RedisAddr)
}

func TestLoadRelay_NATSNeedsRedis(t *testing.T) {
	inTempDir(t)
	t.Setenv("CARTA_NODE_NAME", "relay-test")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("REDIS_ADDR", "")

	_, err := LoadRelay()
	assert.Error(t, err)
}

func TestLoadRelay_InvalidDuration(t *testing.T) {
	inTempDir(t)
	t.Setenv("CARTA_ACTION_TIMEOUT", "soon")

	_, err := LoadRelay()
	assert.Error(t, err)
}

func TestLoadFrontendSim_DotEnv(t *testing.T) {
	dir := inTempDir(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"),
		[]byte("CARTA_ROOT_DIR=/srv/images\nCARTA_SIM_SESSIONS=3\n"), 0o600))
	t.Setenv("CARTA_SIM_SESSIONS", "2")

	c, err := LoadFrontendSim()
	require.NoError(t, err)
	assert.Equal(t, "/srv/images", c.RootDir)
	assert.Equal(t, 2, c.Sessions, "environment wins over .env")
	assert.Equal(t, "ws://localhost:3002/ws", c.RelayURL)
	assert.Equal(t, 20*time.Second, c.PingInterval)

	// godotenv sets variables for the whole process.
	t.Cleanup(func() { os.Unsetenv("CARTA_ROOT_DIR") })
}

func TestLoadFrontendSim_InvalidSessions(t *testing.T) {
	inTempDir(t)
	t.Setenv("CARTA_SIM_SESSIONS", "0")

	_, err := LoadFrontendSim()
	assert.Error(t, err)
}

func TestLogLevels(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
		"bogus": slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, Log{Level: in}.SlogLevel(), in)
	}
}
