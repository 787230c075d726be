package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/arzzra/web_phone/pkg/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "softphone.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.True(t, cfg.History.Persist)
	assert.Equal(t, history.DefaultKey, cfg.History.Key)
	assert.Equal(t, history.DefaultMaxItems, cfg.History.MaxItems)
	assert.Equal(t, "file", cfg.History.Backend)
	assert.Equal(t, 600*time.Second, cfg.SIPUA.RegisterExpiry)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Empty(t, cfg.SIP.TransportAddress)
}

func TestLoadConfigFile(t *testing.T) {
	path := writeConfig(t, `
sip:
  transport_address: wss://pbx.example.com:7443/ws
  identity_uri: sip:100@example.com
  password: secret
  display_name: Reception
history:
  backend: sqlite
  path: /tmp/webphone
  max_items: 20
sipua:
  register_expiry: 2m
log:
  format: json
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "wss://pbx.example.com:7443/ws", cfg.SIP.TransportAddress)
	assert.Equal(t, "sip:100@example.com", cfg.SIP.IdentityURI)
	assert.Equal(t, "secret", cfg.SIP.CredentialSecret)
	assert.Equal(t, "Reception", cfg.SIP.DisplayName)
	assert.Equal(t, "sqlite", cfg.History.Backend)
	assert.Equal(t, 20, cfg.History.MaxItems)
	assert.Equal(t, 2*time.Minute, cfg.SIPUA.RegisterExpiry)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadConfigEnvOverride(t *testing.T) {
	t.Setenv("WEBPHONE_SIP_PASSWORD", "from-env")
	t.Setenv("WEBPHONE_HISTORY_BACKEND", "memory")

	path := writeConfig(t, "sip:\n  password: from-file\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.SIP.CredentialSecret)
	assert.Equal(t, "memory", cfg.History.Backend)
}

func TestLoadConfigValidation(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "history:\n  backend: redis\n"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "log:\n  format: xml\n"))
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestOpenStorage(t *testing.T) {
	dir := t.TempDir()
	for _, backend := range []string{"memory", "file", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			kv, closeKV, err := openStorage(HistoryConfig{Backend: backend, Path: filepath.Join(dir, backend)})
			require.NoError(t, err)
			defer closeKV()

			require.NoError(t, kv.Set("k", "v"))
			v, ok, err := kv.Get("k")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "v", v)
		})
	}

	_, _, err := openStorage(HistoryConfig{Backend: "redis"})
	assert.Error(t, err)
}
