package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, BackendLocal, cfg.StoreBackend)
	assert.Equal(t, KVFile, cfg.KVDriver)
	assert.Equal(t, 500*time.Millisecond, cfg.ExportSettleDelay)
	assert.Equal(t, 51200, cfg.AttachmentBudgetBytes)
	assert.Equal(t, "IMPRESOS URIBE", cfg.CompanyName)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://localhost/cotizaciones")
	t.Setenv("EXPORT_SETTLE_DELAY", "1s")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example,https://b.example")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendPostgres, cfg.StoreBackend)
	assert.Equal(t, time.Second, cfg.ExportSettleDelay)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_DecodesAPIKey(t *testing.T) {
	t.Setenv("FIREBASE_API_KEY_ENC", EncodeKey("AIzaSyExample"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "AIzaSyExample", cfg.FirebaseAPIKey)
	assert.NotContains(t, cfg.FirebaseAPIKeyEnc, "AIza")
}

func TestLoad_BuildAPIKey(t *testing.T) {
	prev := BuildAPIKey
	BuildAPIKey = EncodeKey("from-ldflags")
	t.Cleanup(func() { BuildAPIKey = prev })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "from-ldflags", cfg.FirebaseAPIKey)
}

func TestLoad_BadKey(t *testing.T) {
	t.Setenv("FIREBASE_API_KEY_ENC", "%%%")

	_, err := Load()
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"firestore needs project", func(c *Config) { c.StoreBackend = BackendFirestore }, "FIRESTORE_PROJECT_ID"},
		{"postgres needs dsn", func(c *Config) { c.StoreBackend = BackendPostgres }, "DATABASE_URL"},
		{"unknown backend", func(c *Config) { c.StoreBackend = "mongo" }, "STORE_BACKEND"},
		{"unknown kv", func(c *Config) { c.KVDriver = "etcd" }, "KV_DRIVER"},
		{"unknown channel", func(c *Config) { c.NotifyChannel = "fax" }, "NOTIFY_CHANNEL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{StoreBackend: BackendLocal, KVDriver: KVFile, NotifyChannel: ChannelEmailJS, AttachmentBudgetBytes: 1}
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestKeyRoundTrip(t *testing.T) {
	enc := EncodeKey("secret-ish")
	assert.NotEqual(t, "secret-ish", enc)

	dec, err := DecodeKey(enc)
	require.NoError(t, err)
	assert.Equal(t, "secret-ish", dec)
}
