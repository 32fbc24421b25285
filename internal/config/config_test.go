package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)

	var c Config
	require.NoError(t, v.Unmarshal(&c))

	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, "0.0.0.0:8080", c.Server.Addr())
	assert.Equal(t, "sqlite", c.Database.Driver)

	assert.Equal(t, time.Second, c.Game.MinDuration)
	assert.Equal(t, 10*time.Minute, c.Game.MaxDuration)
	assert.Equal(t, 50.0, c.Game.MaxSpeed)
	assert.Equal(t, 1.2, c.Game.ScoreTolerance)
	assert.Equal(t, 5*time.Second, c.Game.ServerTimeTolerance)
	assert.Equal(t, 10*time.Minute, c.Game.ActiveLookback)
	assert.Equal(t, int64(100), c.Game.MinRewardScore)

	assert.True(t, c.Reaper.Enabled)
	assert.Equal(t, time.Minute, c.Reaper.Interval)

	assert.Equal(t, "memory", c.Security.RateLimit.Backend)
	require.Contains(t, c.Security.RateLimit.Actions, "claim")
	assert.Equal(t, 5, c.Security.RateLimit.Actions["claim"].Max)
	assert.Equal(t, time.Minute, c.Security.RateLimit.Actions["claim"].Window)
	assert.Equal(t, 10, c.Security.RateLimit.Actions["start"].Max)
	assert.Equal(t, 20, c.Security.RateLimit.Actions["finish"].Max)
}

func TestInitFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
game:
  max_speed: 40
  min_reward_score: 200
security:
  rate_limit:
    backend: redis
log:
  level: debug
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	require.NoError(t, Init(path))
	c := Get()
	require.NotNil(t, c)

	assert.Equal(t, 9090, c.Server.Port)
	assert.Equal(t, 40.0, c.Game.MaxSpeed)
	assert.Equal(t, int64(200), c.Game.MinRewardScore)
	assert.Equal(t, "redis", c.Security.RateLimit.Backend)
	assert.Equal(t, "debug", c.Log.Level)

	// 未覆盖的字段保持默认值
	assert.Equal(t, 1.2, c.Game.ScoreTolerance)
	assert.Equal(t, "redis", GetString("security.rate_limit.backend"))
	assert.Equal(t, 10*time.Minute, GetDuration("game.max_duration"))
}
