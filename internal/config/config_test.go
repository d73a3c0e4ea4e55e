package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/opentalk/internal/testutil"
)

const sample = `
mode: debug
log:
  level: debug
signaling:
  ticket_ttl: 45s
directory:
  users:
    - id: alice
      token: Secret-Token
      display_name: Alice
      groups: [staff]
  rooms:
    - id: weekly
      title: Weekly
      created_by: alice
      waiting_room: true
modules:
  disabled: [whiteboard]
  recording:
    enabled: true
    livestreams:
      - id: yt
        name: YouTube
        public_url: https://youtube.example/live
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.test.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFileAndDefaults(t *testing.T) {
	path := writeConfig(t, sample)
	l, err := NewLoader([]string{"--config", path})
	require.NoError(t, err)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, zerolog.DebugLevel, cfg.Log.ZerologLevel())
	assert.Equal(t, 45*time.Second, cfg.Signaling.TicketTTL)
	assert.Equal(t, 120*time.Second, cfg.Signaling.ResumptionTTL)
	assert.Equal(t, 54*time.Second, cfg.Signaling.PingPeriod)

	require.Len(t, cfg.Directory.Users, 1)
	assert.Equal(t, "Secret-Token", cfg.Directory.Users[0].Token)
	assert.Equal(t, []string{"staff"}, cfg.Directory.Users[0].Groups)
	require.Len(t, cfg.Directory.Rooms, 1)
	assert.True(t, cfg.Directory.Rooms[0].WaitingRoom)

	assert.Equal(t, []string{"whiteboard"}, cfg.Modules.Disabled)
	assert.True(t, cfg.Modules.Recording.Enabled)
	assert.Equal(t, "opentalk-recorder", cfg.Modules.Recording.Queue)
	require.Len(t, cfg.Modules.Recording.Livestreams, 1)
	assert.Equal(t, "YouTube", cfg.Modules.Recording.Livestreams[0].Name)
	assert.Equal(t, 6*time.Hour, cfg.Modules.LiveKit.TokenTTL)
	assert.EqualValues(t, 900, cfg.Modules.TrainingReport.IntervalAfter)
}

func TestFlagsAndEnvironmentOverride(t *testing.T) {
	path := writeConfig(t, sample)
	t.Setenv("OPENTALK_REDIS_URL", "redis://cache:6379/0")
	t.Setenv("OPENTALK_SIGNALING_SEND_BUFFER", "8")

	l, err := NewLoader([]string{"--config", path, "--port", "9090", "--log-level", "warn"})
	require.NoError(t, err)
	cfg, err := l.Load()
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, zerolog.WarnLevel, cfg.Log.ZerologLevel())
	assert.Equal(t, "redis://cache:6379/0", cfg.Redis.URL)
	assert.Equal(t, 8, cfg.Signaling.SendBuffer)
}

func TestMissingFileUsesDefaults(t *testing.T) {
	l, err := NewLoader([]string{"--config", filepath.Join(t.TempDir(), "absent.yaml")})
	require.NoError(t, err)
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, zerolog.InfoLevel, cfg.Log.ZerologLevel())
	assert.Empty(t, cfg.Redis.URL)
}

func TestUnknownLevelFallsBackToInfo(t *testing.T) {
	assert.Equal(t, zerolog.InfoLevel, LogConfig{Level: "loud"}.ZerologLevel())
	assert.Equal(t, zerolog.InfoLevel, LogConfig{}.ZerologLevel())
	assert.Equal(t, zerolog.ErrorLevel, LogConfig{Level: "error"}.ZerologLevel())
}

func TestWatchReloadsLogLevel(t *testing.T) {
	path := writeConfig(t, "log:\n  level: info\n")
	l, err := NewLoader([]string{"--config", path})
	require.NoError(t, err)
	_, err = l.Load()
	require.NoError(t, err)

	levels := make(chan zerolog.Level, 4)
	l.Watch(func(cfg *Config) { levels <- cfg.Log.ZerologLevel() })

	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: error\n"), 0o600))
	deadline := time.After(testutil.Timeout)
	for {
		select {
		case lvl := <-levels:
			if lvl == zerolog.ErrorLevel {
				return
			}
		case <-deadline:
			t.Fatal("config change not observed")
		}
	}
}
