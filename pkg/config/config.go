// Package config resolves the service configuration from .env, an optional
// config.yaml and the environment, and builds the global zap logger.
package config

import (
	"errors"
	"io/fs"
	"runtime"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"

	"facturas/pkg/ai"
)

// Config holds the full application configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server"`
	DB     DBConfig     `mapstructure:"db"`
	Auth   AuthConfig   `mapstructure:"auth"`
	OCR    OCRConfig    `mapstructure:"ocr"`
	AI     AIConfig     `mapstructure:"ai"`
	Log    LogConfig    `mapstructure:"log"`
	Watch  WatchConfig  `mapstructure:"watch"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Addr        string `mapstructure:"addr"`
	MaxUploadMB int64  `mapstructure:"max_upload_mb"`
}

// MaxUploadBytes converts the upload limit to bytes.
func (s ServerConfig) MaxUploadBytes() int64 { return s.MaxUploadMB << 20 }

// DBConfig configures postgres. An empty DSN disables history and auth.
type DBConfig struct {
	DSN         string `mapstructure:"dsn"`
	AutoMigrate bool   `mapstructure:"auto_migrate"`
}

// AuthConfig configures JWT access and refresh tokens.
type AuthConfig struct {
	Required   bool          `mapstructure:"required"`
	JWTSecret  string        `mapstructure:"jwt_secret"`
	AccessTTL  time.Duration `mapstructure:"access_ttl"`
	RefreshTTL time.Duration `mapstructure:"refresh_ttl"`
	// AdminPassword seeds the "admin" account when it does not exist yet.
	AdminPassword string `mapstructure:"admin_password"`
}

// OCRConfig configures Tesseract.
type OCRConfig struct {
	Language  string `mapstructure:"language"`
	MinHeight int    `mapstructure:"min_height"`
}

// AIConfig is ai.Config plus the question asked about each invoice.
type AIConfig struct {
	ai.Config   `mapstructure:",squash"`
	Instruction string `mapstructure:"instruction"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// WatchConfig configures the inbox watcher.
type WatchConfig struct {
	Workers int `mapstructure:"workers"`
}

// Load reads configuration from file and environment. envFiles default to
// ".env"; missing files are skipped and existing variables win.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, eris.Wrapf(err, "config: load %s", f)
		}
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range map[string][]string{
		"auth.jwt_secret":     {"AUTH_JWT_SECRET", "JWT_SECRET"},
		"ai.api_key":          {"AI_API_KEY", "GEMINI_API_KEY"},
		"auth.admin_password": {"AUTH_ADMIN_PASSWORD", "ADMIN_PASSWORD"},
	} {
		if err := v.BindEnv(append([]string{key}, names...)...); err != nil {
			return nil, eris.Wrapf(err, "config: bind %s", key)
		}
	}

	v.SetDefault("server.addr", ":8081")
	v.SetDefault("server.max_upload_mb", 10)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.auto_migrate", true)
	v.SetDefault("auth.required", false)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.access_ttl", 15*time.Minute)
	v.SetDefault("auth.refresh_ttl", 720*time.Hour)
	v.SetDefault("auth.admin_password", "admin123")
	v.SetDefault("ocr.language", "spa")
	v.SetDefault("ocr.min_height", 1300)
	v.SetDefault("ai.provider", "")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", "")
	v.SetDefault("ai.base_url", "")
	v.SetDefault("ai.timeout", 60*time.Second)
	v.SetDefault("ai.instruction", ai.DefaultInstruction)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("watch.workers", runtime.NumCPU())

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	// A bare GEMINI_API_KEY is how the web app was configured.
	if cfg.AI.Provider == "" && cfg.AI.APIKey != "" {
		cfg.AI.Provider = "gemini"
	}
	if cfg.Watch.Workers < 1 {
		cfg.Watch.Workers = 1
	}
	if cfg.Server.MaxUploadMB < 1 {
		cfg.Server.MaxUploadMB = 10
	}
	return &cfg, nil
}
