package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
server:
  port: "9090"
log:
  level: debug
provider:
  base_url: http://localhost:5000
  timeout: 30s
  num_questions: 5
redis:
  addr: localhost:6379
  ttl: 30m
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, "http://localhost:5000", cfg.Provider.BaseURL)
	assert.Equal(t, 5, cfg.Provider.NumQuestions)
	assert.Equal(t, 30*time.Minute, TTLDuration(cfg.Redis.TTL, time.Minute))
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"bad level":    "log:\n  level: loud\n",
		"bad url":      "provider:\n  base_url: not a url\n",
		"bad duration": "redis:\n  ttl: soon\n",
		"bad count":    "provider:\n  num_questions: -1\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestTTLDurationFallback(t *testing.T) {
	assert.Equal(t, time.Minute, TTLDuration("", time.Minute))
	assert.Equal(t, time.Minute, TTLDuration("garbage", time.Minute))
	assert.Equal(t, 5*time.Second, TTLDuration("5s", time.Minute))
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}
