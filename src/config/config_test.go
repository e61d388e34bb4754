package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// -----------------------------------------------------------------------------

const minimalYAML = `
name: riskwatch-test
host: 127.0.0.1
port: 8090
log_level: DEBUG
storage:
  db_type: sqlite
  db_path: ":memory:"
provider:
  rest_url: https://api.example.com
  stream_url: wss://ws.example.com/v1/quotes
  api_key_env: MARKET_DATA_API_KEY
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// -----------------------------------------------------------------------------

func TestNewConfigAppliesDefaults(t *testing.T) {
	cfg, err := NewConfig(writeConfig(t, minimalYAML))
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.Provider.RequestsPerWindow)
	assert.Equal(t, 61, cfg.Provider.WindowSeconds)
	assert.Equal(t, 8, cfg.Subscription.Quota)
	assert.Equal(t, 0.25, cfg.Margin.MaintenanceRate)

	assert.Equal(t, 61*time.Second, cfg.PacingDelay())
	assert.Equal(t, 2*time.Minute, cfg.RotationInterval())
	assert.Equal(t, 5*time.Second, cfg.ReconnectDelay())
	assert.Equal(t, 10*time.Second, cfg.KeepaliveInterval())
}

func TestNewConfigExplicitValuesSurviveDefaults(t *testing.T) {
	cfg, err := NewConfig(writeConfig(t, minimalYAML+`
subscription:
  quota: 4
  rotation_interval_seconds: 30
margin:
  maintenance_rate: 0.5
`))
	require.NoError(t, err)

	assert.Equal(t, 4, cfg.Subscription.Quota)
	assert.Equal(t, 30*time.Second, cfg.RotationInterval())
	assert.Equal(t, 0.5, cfg.Margin.MaintenanceRate)
}

func TestNewConfigMissingFile(t *testing.T) {
	_, err := NewConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

// -----------------------------------------------------------------------------

func TestValidateRejectsBrokenConfigs(t *testing.T) {
	cases := map[string]string{
		"missing name": `
host: 127.0.0.1
port: 8090
storage: {db_type: sqlite, db_path: ":memory:"}
provider: {rest_url: "https://a", stream_url: "wss://b", api_key_env: K}
`,
		"privileged port": `
name: t
host: 127.0.0.1
port: 80
storage: {db_type: sqlite, db_path: ":memory:"}
provider: {rest_url: "https://a", stream_url: "wss://b", api_key_env: K}
`,
		"missing stream url": `
name: t
host: 127.0.0.1
port: 8090
storage: {db_type: sqlite, db_path: ":memory:"}
provider: {rest_url: "https://a", api_key_env: K}
`,
		"postgres without connection string": `
name: t
host: 127.0.0.1
port: 8090
storage: {db_type: postgres}
provider: {rest_url: "https://a", stream_url: "wss://b", api_key_env: K}
`,
		"maintenance rate too large": `
name: t
host: 127.0.0.1
port: 8090
storage: {db_type: sqlite, db_path: ":memory:"}
provider: {rest_url: "https://a", stream_url: "wss://b", api_key_env: K}
margin: {maintenance_rate: 1.5}
`,
	}

	for label, content := range cases {
		t.Run(label, func(t *testing.T) {
			_, err := NewConfig(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

// -----------------------------------------------------------------------------

func TestAPIKeyReadsConfiguredEnvVar(t *testing.T) {
	t.Setenv("MARKET_DATA_API_KEY", "secret-key")

	cfg, err := NewConfig(writeConfig(t, minimalYAML))
	require.NoError(t, err)
	assert.Equal(t, "secret-key", cfg.APIKey())
}
