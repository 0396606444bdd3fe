package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Port          string `mapstructure:"PORT"`
	Env           string `mapstructure:"APP_ENV"`
	AllowedOrigin string `mapstructure:"ALLOWED_ORIGIN"`
	LogLevel      string `mapstructure:"LOG_LEVEL"`
	Timezone      string `mapstructure:"TIMEZONE"`

	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	DBMaxOpenConns int    `mapstructure:"DB_MAX_OPEN_CONNS"`

	RedisAddr           string `mapstructure:"REDIS_ADDR"`
	RedisPassword       string `mapstructure:"REDIS_PASSWORD"`
	RedisDB             int    `mapstructure:"REDIS_DB"`
	DashboardTTLSeconds int    `mapstructure:"DASHBOARD_TTL_SECONDS"`

	AuthSecret            string `mapstructure:"AUTH_SECRET"`
	AccessTokenTTLMinutes int    `mapstructure:"ACCESS_TOKEN_TTL_MINUTES"`
	AllowSignUp           bool   `mapstructure:"ALLOW_SIGN_UP"`
	SeedAdminEmail        string `mapstructure:"SEED_ADMIN_EMAIL"`
	SeedAdminPassword     string `mapstructure:"SEED_ADMIN_PASSWORD"`
	SeedManagerPassword   string `mapstructure:"SEED_MANAGER_PASSWORD"`
	SeedSellerPassword    string `mapstructure:"SEED_SELLER_PASSWORD"`

	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	ServiceName  string `mapstructure:"SERVICE_NAME"`

	MediaDriver     string `mapstructure:"MEDIA_DRIVER"`
	MediaLocalDir   string `mapstructure:"MEDIA_LOCAL_DIR"`
	MediaPublicURL  string `mapstructure:"MEDIA_PUBLIC_URL"`
	MediaBucketURL  string `mapstructure:"MEDIA_BUCKET_URL"`
	MediaBucketName string `mapstructure:"MEDIA_BUCKET_NAME"`
	MediaBucketKey  string `mapstructure:"MEDIA_BUCKET_TOKEN"`
}

var defaults = map[string]any{
	"PORT":                        "8080",
	"APP_ENV":                     "development",
	"ALLOWED_ORIGIN":              "http://127.0.0.1:3000",
	"LOG_LEVEL":                   "info",
	"TIMEZONE":                    "America/Bogota",
	"DATABASE_URL":                "",
	"DB_MAX_OPEN_CONNS":           30,
	"REDIS_ADDR":                  "",
	"REDIS_PASSWORD":              "",
	"REDIS_DB":                    0,
	"DASHBOARD_TTL_SECONDS":       30,
	"AUTH_SECRET":                 "",
	"ACCESS_TOKEN_TTL_MINUTES":    480,
	"ALLOW_SIGN_UP":               true,
	"SEED_ADMIN_EMAIL":            "",
	"SEED_ADMIN_PASSWORD":         "",
	"SEED_MANAGER_PASSWORD":       "",
	"SEED_SELLER_PASSWORD":        "",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "",
	"SERVICE_NAME":                "dbella-pos",
	"MEDIA_DRIVER":                "local",
	"MEDIA_LOCAL_DIR":             "./data/media",
	"MEDIA_PUBLIC_URL":            "/media",
	"MEDIA_BUCKET_URL":            "",
	"MEDIA_BUCKET_NAME":           "",
	"MEDIA_BUCKET_TOKEN":          "",
}

// Load reads the environment and an optional .env file in the working directory.
func Load() (Config, error) {
	v := viper.New()
	v.SetConfigName(".env")
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}

	cfg.AuthSecret = strings.TrimSpace(cfg.AuthSecret)
	cfg.Env = strings.ToLower(strings.TrimSpace(cfg.Env))
	if cfg.DashboardTTLSeconds < 1 {
		cfg.DashboardTTLSeconds = 30
	}
	if cfg.AccessTokenTTLMinutes < 1 {
		cfg.AccessTokenTTLMinutes = 480
	}
	if cfg.DBMaxOpenConns < 1 {
		cfg.DBMaxOpenConns = 30
	}
	return cfg, nil
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) IsDevelopment() bool {
	return c.Env == "" || c.Env == "development"
}
