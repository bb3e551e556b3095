package spartanbot

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func DefaultTestConfig(t testing.TB) *Config {
	tmpdir := t.TempDir()
	cfg := DefaultConfig()

	cfg.DatabaseType = dbTypeSQLite
	cfg.Database = filepath.Join(tmpdir, fmt.Sprintf("%s.sqlite3", t.Name()))
	cfg.StartupTimeout = 5 * time.Second
	cfg.ShutdownTimeout = 10 * time.Second
	cfg.Development = true
	cfg.GuildConfigCacheTTL = 0
	cfg.Discord.Token = "test-discord-token"
	cfg.Discord.ApplicationID = "test-application-id"
	cfg.API.CORS.AllowOrigins = []string{"*"}

	certfile := filepath.Join(tmpdir, "cert.pem")
	keyfile := filepath.Join(tmpdir, "key.pem")
	_, err := generateSelfSignedCert(certfile, keyfile)
	require.NoError(t, err)

	cfg.API.SSL = SSLConfig{
		Cert: certfile,
		Key:  keyfile,
	}

	logLevel := slog.LevelWarn
	cfg.LogLevel.Set(logLevel)
	cfg.Discord.LogLevel.Set(logLevel)
	cfg.Discord.DiscordGoLogLevel.Set(logLevel)
	cfg.DatabaseLogLevel.Set(logLevel)
	cfg.Panel.LogLevel.Set(logLevel)
	cfg.API.LogLevel.Set(logLevel)

	return cfg
}

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultConfig()
	assert.Equal(t, DefaultDatabaseType, cfg.DatabaseType)
	assert.Equal(t, DefaultDatabase, cfg.Database)
	assert.Equal(t, DefaultStartupTimeout, cfg.StartupTimeout)
	assert.Equal(t, DefaultShutdownTimeout, cfg.ShutdownTimeout)
	assert.Equal(t, DefaultGuildConfigCacheTTL, cfg.GuildConfigCacheTTL)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel.Level())
	assert.Equal(t, DefaultPanelLogLevel, cfg.Panel.LogLevel.Level())
	assert.Equal(t, DefaultAPIListen, cfg.API.Listen)
	assert.False(t, cfg.API.Enabled)
	assert.Equal(t, DefaultDiscordCustomStatus, cfg.Discord.CustomStatus)
}

func TestPanelRequestTimeoutClamped(t *testing.T) {
	t.Parallel()

	for _, tc := range []struct {
		configured time.Duration
		expected   time.Duration
	}{
		{0, DefaultPanelRequestTimeout},
		{5 * time.Second, MinPanelRequestTimeout},
		{20 * time.Second, 20 * time.Second},
		{5 * time.Minute, MaxPanelRequestTimeout},
	} {
		cfg := PanelConfig{RequestTimeout: tc.configured}
		assert.Equal(t, tc.expected, cfg.panelRequestTimeout())
	}
}

func TestGenerateSelfSignedCert(t *testing.T) {
	t.Parallel()

	tmpdir := t.TempDir()
	certfile := filepath.Join(tmpdir, "cert.pem")
	keyfile := filepath.Join(tmpdir, "key.pem")

	cert, err := generateSelfSignedCert(certfile, keyfile)
	require.NoError(t, err)
	assert.NotEmpty(t, cert.Certificate)

	tlsCfg, err := tlsConfig(certfile, keyfile, 0)
	require.NoError(t, err)
	assert.Len(t, tlsCfg.Certificates, 1)
}
