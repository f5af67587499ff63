package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefault_Validates(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestLoad_FullFile(t *testing.T) {
	path := writeConfig(t, `
server:
  base_url: https://orders.example.com
  timeout_seconds: 15
retry:
  max_retries: 3
  backoff_base_ms: 250
polling:
  order_refresh_seconds: 20
  payment_poll_seconds: 5
  expiry_floor_seconds: 12
storage:
  path: /var/lib/pronto/client.db
  reprobe_blocked: true
table_id: 14
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://orders.example.com", cfg.Server.BaseURL)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.True(t, cfg.Storage.ReprobeBlocked)
	assert.Equal(t, 14, cfg.TableID)
	assert.Equal(t, 5, cfg.Polling.PaymentPollSeconds)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfig(t, `
server:
  base_url: https://orders.example.com
  timeout_seconds: 10
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Retry, cfg.Retry, "unset sections keep defaults")
	assert.Equal(t, "https://orders.example.com", cfg.Server.BaseURL)
}

func TestLoad_SchemaRejectsBadValues(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"empty base url", "server:\n  base_url: \"\"\n"},
		{"zero payment poll", "polling:\n  payment_poll_seconds: 0\n"},
		{"negative retries", "retry:\n  max_retries: -1\n"},
		{"empty storage path", "storage:\n  path: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid config")
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_MalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "server: [unclosed"))
	assert.Error(t, err)
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "30s", cfg.Timeout().String())
	assert.Equal(t, "500ms", cfg.BackoffBase().String())
	assert.Equal(t, "10s", cfg.OrderRefresh().String())
	assert.Equal(t, "3s", cfg.PaymentPoll().String())
	assert.Equal(t, "10s", cfg.ExpiryFloor().String())
}
