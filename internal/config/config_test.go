package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	cfg, err := decode(v)
	require.NoError(t, err)

	assert.Equal(t, "release", cfg.Mode)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 54*time.Second, cfg.PingPeriod)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, []string{"stun:stun.l.google.com:19302"}, cfg.ICEServers)
	assert.Equal(t, 5, cfg.ChatRateLimit)
	assert.False(t, cfg.AllowInsecureScreenShare)
}

func TestYAMLOverrides(t *testing.T) {
	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)
	require.NoError(t, v.ReadConfig(strings.NewReader(`
mode: debug
join_url: https://tokens.example/api/v1/livekit/join
request_timeout: 3s
allow_insecure_screen_share: true
`)))
	cfg, err := decode(v)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Mode)
	assert.Equal(t, "https://tokens.example/api/v1/livekit/join", cfg.JoinURL)
	assert.Equal(t, 3*time.Second, cfg.RequestTimeout)
	assert.True(t, cfg.AllowInsecureScreenShare)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("CLASSROOM_PORT", "9090")
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("CLASSROOM")
	v.AutomaticEnv()
	cfg, err := decode(v)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Port)
}

func TestJoinURLRequired(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("join_url", "")
	_, err := decode(v)
	assert.Error(t, err)
}
