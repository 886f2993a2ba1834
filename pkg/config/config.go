// Package config は各サービスの設定を読み込む。
//
// YAMLファイル（RETROUVAFRIK_CONFIG で指定、任意）を読み込んだ後、
// 環境変数で個別の値を上書きする。環境変数が空でない場合は常に環境変数が優先される。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// サービス名。
const (
	ServiceGateway      = "gateway"
	ServiceListing      = "listing"
	ServiceNotification = "notification"
)

// defaultPorts はサービスごとのデフォルトポート。
var defaultPorts = map[string]string{
	ServiceGateway:      "8080",
	ServiceListing:      "8081",
	ServiceNotification: "8086",
}

// Config はサービス共通の設定。
type Config struct {
	// Service は設定を読み込んだサービス名。
	Service string `yaml:"-"`
	// Servers はサービスごとのポートとDSN。
	Servers map[string]ServerConfig `yaml:"servers"`
	// LogLevel はzapのログレベル（debug, info, warn, error）。
	LogLevel string `yaml:"log_level"`
	// FrontendURL はCORSで許可するフロントエンドのオリジン。
	FrontendURL string `yaml:"frontend_url"`
	// OTelEndpoint はOTLP/gRPCコレクタのアドレス。空の場合トレースは無効。
	OTelEndpoint string `yaml:"otel_endpoint"`
	// Auth は認証関連の設定。
	Auth AuthConfig `yaml:"auth"`
	// Services は内部サービスのURL。
	Services ServiceURLs `yaml:"services"`
	// Storage は写真ストレージの設定。
	Storage StorageConfig `yaml:"storage"`
	// Mail はメールリレーの設定。
	Mail MailConfig `yaml:"mail"`
	// Dispatcher はメール配信ループの設定。
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	// Moderation はモデレーションの設定。
	Moderation ModerationConfig `yaml:"moderation"`
	// AdminEmails は管理者通知の宛先。
	AdminEmails []string `yaml:"admin_emails"`
}

// ServerConfig はサービス単位のリッスン設定。
type ServerConfig struct {
	Port        string `yaml:"port"`
	DatabaseDSN string `yaml:"database_dsn"`
}

// AuthConfig は認証の設定。
type AuthConfig struct {
	// JWTSecret はJWT署名用の秘密鍵。
	JWTSecret string `yaml:"jwt_secret"`
	// TokenTTL はJWTの有効期間。
	TokenTTL time.Duration `yaml:"token_ttl"`
	// InternalToken はサービス間の内部APIで使用する共有トークン。
	InternalToken string `yaml:"internal_token"`
	// DevTokens は開発用トークン発行エンドポイントを有効にする。
	DevTokens bool `yaml:"dev_tokens"`
}

// ServiceURLs は内部サービスのベースURL。
type ServiceURLs struct {
	Listing      string `yaml:"listing"`
	Notification string `yaml:"notification"`
}

// StorageConfig は写真ストレージの設定。
type StorageConfig struct {
	// Driver は local または gcs。
	Driver string `yaml:"driver"`
	// Dir はlocalドライバの保存先ディレクトリ。
	Dir string `yaml:"dir"`
	// Bucket はgcsドライバのバケット名。
	Bucket string `yaml:"bucket"`
}

// MailConfig はメールリレーの設定。
type MailConfig struct {
	// RelayURL はメールリレーのエンドポイント。空の場合はログ出力のみ。
	RelayURL string `yaml:"relay_url"`
	// APIKey はリレーに送るBearerトークン。
	APIKey string `yaml:"api_key"`
	// From は送信元アドレス。
	From string `yaml:"from"`
	// SiteURL はメール本文に埋め込む公開サイトのURL。
	SiteURL string `yaml:"site_url"`
}

// DispatcherConfig はメール配信ループの設定。
type DispatcherConfig struct {
	Interval      time.Duration `yaml:"interval"`
	BatchSize     int           `yaml:"batch_size"`
	MaxAttempts   int           `yaml:"max_attempts"`
	BaseBackoff   time.Duration `yaml:"base_backoff"`
	Concurrency   int           `yaml:"concurrency"`
	RatePerSecond float64       `yaml:"rate_per_second"`
	Lease         time.Duration `yaml:"lease"`
}

// ModerationConfig はモデレーションの設定。
type ModerationConfig struct {
	// Required がtrueの場合、新規投稿は承認されるまで公開されない。
	Required bool `yaml:"required"`
}

// Server は読み込んだサービスのリッスン設定を返す。
func (c *Config) Server() ServerConfig {
	return c.Servers[c.Service]
}

// 開発用の秘密値。Defaultが設定するが、サービスの起動時はauth.dev_tokensが有効な場合しか受け付けない。
const (
	DevJWTSecret     = "dev-secret-key"
	DevInternalToken = "dev-internal-token"
)

// ErrDevSecret は開発用の秘密値のままサービスを起動しようとした場合に返される。
var ErrDevSecret = errors.New("開発用の秘密値が設定されています")

// Default はデフォルト値を持つ設定を返す。
func Default(service string) *Config {
	servers := make(map[string]ServerConfig, len(defaultPorts))
	for name, port := range defaultPorts {
		servers[name] = ServerConfig{
			Port:        port,
			DatabaseDSN: fmt.Sprintf("/data/%s.db", name),
		}
	}
	return &Config{
		Service:     service,
		Servers:     servers,
		LogLevel:    "info",
		FrontendURL: "http://localhost:3000",
		Auth: AuthConfig{
			JWTSecret:     DevJWTSecret,
			TokenTTL:      24 * time.Hour,
			InternalToken: DevInternalToken,
		},
		Services: ServiceURLs{
			Listing:      "http://localhost:8081",
			Notification: "http://localhost:8086",
		},
		Storage: StorageConfig{
			Driver: "local",
			Dir:    "/data/photos",
		},
		Mail: MailConfig{
			From:    "RetrouvAfrik <no-reply@retrouvafrik.org>",
			SiteURL: "http://localhost:3000",
		},
		Dispatcher: DispatcherConfig{
			Interval:      5 * time.Second,
			BatchSize:     50,
			MaxAttempts:   5,
			BaseBackoff:   30 * time.Second,
			Concurrency:   4,
			RatePerSecond: 5,
			Lease:         2 * time.Minute,
		},
		Moderation: ModerationConfig{Required: true},
	}
}

// Load はサービスの起動用に設定を読み込む。
// Validateに加えてValidateSecretsも行う。
func Load(service string) (*Config, error) {
	cfg, err := load(service, os.Getenv("RETROUVAFRIK_CONFIG"), os.Getenv)
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateSecrets(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile は設定ファイルのパスを明示して読み込む。CLIから使用する。
// CLIはトークンを発行も検証もしないため、ValidateSecretsは行わない。
func LoadFile(service, path string) (*Config, error) {
	return load(service, path, os.Getenv)
}

// load はデフォルト値、YAMLファイル、環境変数の順に設定を重ねる。
func load(service, path string, getenv func(string) string) (*Config, error) {
	if _, ok := defaultPorts[service]; !ok {
		return nil, fmt.Errorf("未知のサービス名です: %s", service)
	}

	cfg := Default(service)
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("設定ファイルの読み込みに失敗: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("設定ファイルのパースに失敗: %w", err)
		}
		// YAMLで一部の項目だけ指定されたサービスの欠けた値を補う
		if cfg.Servers == nil {
			cfg.Servers = make(map[string]ServerConfig)
		}
		for name, def := range Default(service).Servers {
			sc := cfg.Servers[name]
			setString(&def.Port, sc.Port)
			setString(&def.DatabaseDSN, sc.DatabaseDSN)
			cfg.Servers[name] = def
		}
	}

	if err := applyEnv(cfg, getenv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv は環境変数で設定値を上書きする。
func applyEnv(cfg *Config, getenv func(string) string) error {
	server := cfg.Servers[cfg.Service]
	setString(&server.Port, getenv("PORT"))
	setString(&server.DatabaseDSN, getenv("DATABASE_DSN"))
	cfg.Servers[cfg.Service] = server

	setString(&cfg.LogLevel, getenv("LOG_LEVEL"))
	setString(&cfg.FrontendURL, getenv("FRONTEND_URL"))
	setString(&cfg.OTelEndpoint, getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	setString(&cfg.Auth.JWTSecret, getenv("JWT_SECRET"))
	setString(&cfg.Auth.InternalToken, getenv("INTERNAL_TOKEN"))
	setString(&cfg.Services.Listing, getenv("LISTING_URL"))
	setString(&cfg.Services.Notification, getenv("NOTIFICATION_URL"))
	setString(&cfg.Storage.Driver, getenv("STORAGE_DRIVER"))
	setString(&cfg.Storage.Dir, getenv("STORAGE_DIR"))
	setString(&cfg.Storage.Bucket, getenv("GCS_BUCKET"))
	setString(&cfg.Mail.RelayURL, getenv("MAIL_RELAY_URL"))
	setString(&cfg.Mail.APIKey, getenv("MAIL_API_KEY"))
	setString(&cfg.Mail.From, getenv("MAIL_FROM"))
	setString(&cfg.Mail.SiteURL, getenv("SITE_URL"))

	if v := getenv("ADMIN_EMAILS"); v != "" {
		cfg.AdminEmails = splitList(v)
	}

	var errs []error
	errs = append(errs,
		setDuration(&cfg.Auth.TokenTTL, "TOKEN_TTL", getenv),
		setBool(&cfg.Auth.DevTokens, "DEV_TOKENS", getenv),
		setBool(&cfg.Moderation.Required, "MODERATION_REQUIRED", getenv),
		setDuration(&cfg.Dispatcher.Interval, "DISPATCH_INTERVAL", getenv),
		setInt(&cfg.Dispatcher.BatchSize, "DISPATCH_BATCH_SIZE", getenv),
		setInt(&cfg.Dispatcher.MaxAttempts, "DISPATCH_MAX_ATTEMPTS", getenv),
		setDuration(&cfg.Dispatcher.BaseBackoff, "DISPATCH_BASE_BACKOFF", getenv),
		setInt(&cfg.Dispatcher.Concurrency, "DISPATCH_CONCURRENCY", getenv),
		setFloat(&cfg.Dispatcher.RatePerSecond, "DISPATCH_RATE", getenv),
		setDuration(&cfg.Dispatcher.Lease, "DISPATCH_LEASE", getenv),
	)
	return errors.Join(errs...)
}

// Validate は設定値の整合性を検証する。
func (c *Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("auth.jwt_secret が空です"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl は正の値が必要です"))
	}
	if c.Server().Port == "" {
		errs = append(errs, fmt.Errorf("servers.%s.port が空です", c.Service))
	}
	d := c.Dispatcher
	if d.Interval <= 0 || d.BatchSize <= 0 || d.MaxAttempts <= 0 || d.Concurrency <= 0 || d.RatePerSecond <= 0 || d.Lease <= 0 || d.BaseBackoff <= 0 {
		errs = append(errs, errors.New("dispatcher の各値は正の値が必要です"))
	}
	switch c.Storage.Driver {
	case "local":
		if c.Storage.Dir == "" {
			errs = append(errs, errors.New("storage.dir が空です"))
		}
	case "gcs":
		if c.Storage.Bucket == "" {
			errs = append(errs, errors.New("storage.bucket が空です"))
		}
	default:
		errs = append(errs, fmt.Errorf("未知のストレージドライバです: %s", c.Storage.Driver))
	}
	return errors.Join(errs...)
}

// ValidateSecrets はJWTの署名鍵と内部トークンが開発用の値のままでないことを検証する。
// auth.dev_tokens が有効な場合は開発環境とみなして許可する。
func (c *Config) ValidateSecrets() error {
	if c.Auth.DevTokens {
		return nil
	}
	var errs []error
	if c.Auth.JWTSecret == DevJWTSecret {
		errs = append(errs, fmt.Errorf("%w: auth.jwt_secret (JWT_SECRET)", ErrDevSecret))
	}
	if c.Auth.InternalToken == DevInternalToken {
		errs = append(errs, fmt.Errorf("%w: auth.internal_token (INTERNAL_TOKEN)", ErrDevSecret))
	}
	return errors.Join(errs...)
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, key string, getenv func(string) string) error {
	v := getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s の値が不正です: %w", key, err)
	}
	*dst = d
	return nil
}

func setInt(dst *int, key string, getenv func(string) string) error {
	v := getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s の値が不正です: %w", key, err)
	}
	*dst = n
	return nil
}

func setFloat(dst *float64, key string, getenv func(string) string) error {
	v := getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s の値が不正です: %w", key, err)
	}
	*dst = f
	return nil
}

func setBool(dst *bool, key string, getenv func(string) string) error {
	v := getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s の値が不正です: %w", key, err)
	}
	*dst = b
	return nil
}

// splitList はカンマ区切りの文字列を空要素を除いて分割する。
func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
