// Package config は転送サービスの設定を読み込む。
//
// 設定は既定値、設定ファイル（config.yaml）、.envファイル、RDSDS_で始まる
// 環境変数の順に上書きされる。
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"

	"github.com/nao1215/rdsds/pkg/globus"
)

// envPrefix は環境変数の接頭辞。
const envPrefix = "RDSDS"

// Config は転送サービスの設定。
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Globus   GlobusConfig   `mapstructure:"globus"`
	Database DatabaseConfig `mapstructure:"database"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// ServerConfig はHTTPサーバーの設定。
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// Secret はCookieセッションとBearerトークンの署名鍵。
	Secret string `mapstructure:"secret"`
	// SessionTTL はCookieとBearerトークンの有効期間。
	SessionTTL     time.Duration `mapstructure:"session_ttl"`
	SecureCookies  bool          `mapstructure:"secure_cookies"`
	AllowedOrigins []string      `mapstructure:"allowed_origins"`
}

// Addr はリッスンするアドレスを返す。
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// GlobusConfig はGlobus AuthとTransfer APIの設定。
type GlobusConfig struct {
	ClientID     string   `mapstructure:"client_id"`
	ClientSecret string   `mapstructure:"client_secret"`
	Issuer       string   `mapstructure:"issuer"`
	RedirectURL  string   `mapstructure:"redirect_url"`
	Scopes       []string `mapstructure:"scopes"`
	TransferURL  string   `mapstructure:"transfer_url"`
	// Timeout はTransfer API呼び出しのタイムアウト。0の場合は設定しない。
	Timeout time.Duration `mapstructure:"timeout"`
}

// DatabaseConfig はSQLiteデータベースの設定。
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// LoggingConfig はログ出力の設定。
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load は設定を読み込み、ログの出力設定を適用する。
// configFileが空の場合は既定の検索パスからconfig.yamlを探す。
func Load(configFile string) (*Config, error) {
	if err := gotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		logrus.WithError(err).Warnln(".envファイルの読み込みに失敗")
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/rdsds")
	if configFile != "" {
		v.SetConfigFile(configFile)
	}

	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("設定のデコードに失敗: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := setupLogging(cfg.Logging); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate は設定値の整合性を検証する。
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.portが不正です: %d", c.Server.Port)
	}
	if c.Server.Secret == "" {
		return errors.New("server.secretが設定されていません")
	}
	if c.Server.SessionTTL <= 0 {
		return fmt.Errorf("server.session_ttlは正の値である必要があります: %s", c.Server.SessionTTL)
	}
	if c.Globus.Timeout < 0 {
		return fmt.Errorf("globus.timeoutは0以上である必要があります: %s", c.Globus.Timeout)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.secret", "dev-secret-key")
	v.SetDefault("server.session_ttl", 24*time.Hour)
	v.SetDefault("server.secure_cookies", false)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("globus.client_id", "")
	v.SetDefault("globus.client_secret", "")
	v.SetDefault("globus.issuer", "https://auth.globus.org")
	v.SetDefault("globus.redirect_url", "http://localhost:8080/globus/auth")
	v.SetDefault("globus.scopes", []string{"openid", "profile", "email", globus.TransferScope})
	v.SetDefault("globus.transfer_url", globus.DefaultTransferURL)
	v.SetDefault("globus.timeout", time.Duration(0))

	v.SetDefault("database.path", "rdsds.db")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

// setupLogging はlogrusのレベルとフォーマットを設定する。
func setupLogging(cfg LoggingConfig) error {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return fmt.Errorf("ログレベルが不正です: %w", err)
	}
	logrus.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	default:
		logrus.WithField("format", cfg.Format).Warnln("不明なログフォーマット")
	}
	return nil
}
