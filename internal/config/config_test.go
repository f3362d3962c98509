package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nao1215/rdsds/pkg/globus"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

// TestLoad は設定の読み込みを検証する。
// 環境変数を変更するため並列実行しない。
func TestLoad(t *testing.T) {
	t.Run("既定値を使うこと", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
		assert.Equal(t, "dev-secret-key", cfg.Server.Secret)
		assert.Equal(t, 24*time.Hour, cfg.Server.SessionTTL)
		assert.False(t, cfg.Server.SecureCookies)
		assert.Equal(t, []string{"http://localhost:3000"}, cfg.Server.AllowedOrigins)
		assert.Equal(t, "https://auth.globus.org", cfg.Globus.Issuer)
		assert.Equal(t, "http://localhost:8080/globus/auth", cfg.Globus.RedirectURL)
		assert.Contains(t, cfg.Globus.Scopes, globus.TransferScope)
		assert.Equal(t, globus.DefaultTransferURL, cfg.Globus.TransferURL)
		assert.Zero(t, cfg.Globus.Timeout)
		assert.Equal(t, "rdsds.db", cfg.Database.Path)
		assert.Equal(t, "info", cfg.Logging.Level)
	})

	t.Run("設定ファイルの値で上書きすること", func(t *testing.T) {
		path := writeConfig(t, `
server:
  port: 9090
  session_ttl: 2h
  allowed_origins:
    - https://portal.example.org
globus:
  client_id: file-client
  timeout: 30s
database:
  path: /var/lib/rdsds/rdsds.db
logging:
  format: json
`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, 9090, cfg.Server.Port)
		assert.Equal(t, 2*time.Hour, cfg.Server.SessionTTL)
		assert.Equal(t, []string{"https://portal.example.org"}, cfg.Server.AllowedOrigins)
		assert.Equal(t, "file-client", cfg.Globus.ClientID)
		assert.Equal(t, 30*time.Second, cfg.Globus.Timeout)
		assert.Equal(t, "/var/lib/rdsds/rdsds.db", cfg.Database.Path)
		assert.Equal(t, "json", cfg.Logging.Format)
	})

	t.Run("環境変数が設定ファイルより優先されること", func(t *testing.T) {
		path := writeConfig(t, "globus:\n  client_id: file-client\n")
		t.Setenv("RDSDS_GLOBUS_CLIENT_ID", "env-client")
		t.Setenv("RDSDS_GLOBUS_CLIENT_SECRET", "env-secret")
		t.Setenv("RDSDS_SERVER_SECURE_COOKIES", "true")

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "env-client", cfg.Globus.ClientID)
		assert.Equal(t, "env-secret", cfg.Globus.ClientSecret)
		assert.True(t, cfg.Server.SecureCookies)
	})

	t.Run("指定した設定ファイルがない場合はエラー", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
		assert.Error(t, err)
	})

	t.Run("不正なログレベルはエラー", func(t *testing.T) {
		t.Setenv("RDSDS_LOGGING_LEVEL", "loud")

		_, err := Load("")
		assert.Error(t, err)
	})
}

// TestConfigValidate は設定値の検証を検証する。
func TestConfigValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			Server: ServerConfig{Port: 8080, Secret: "s", SessionTTL: time.Hour},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "正常な設定", mutate: func(*Config) {}},
		{name: "ポートが0", mutate: func(c *Config) { c.Server.Port = 0 }, wantErr: true},
		{name: "ポートが範囲外", mutate: func(c *Config) { c.Server.Port = 70000 }, wantErr: true},
		{name: "署名鍵が空", mutate: func(c *Config) { c.Server.Secret = "" }, wantErr: true},
		{name: "セッション有効期間が0", mutate: func(c *Config) { c.Server.SessionTTL = 0 }, wantErr: true},
		{name: "タイムアウトが負", mutate: func(c *Config) { c.Globus.Timeout = -time.Second }, wantErr: true},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}
