package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	Server struct {
		Port               int      `mapstructure:"port"`
		CorsAllowedOrigins []string `mapstructure:"cors_allowed_origins"`
		CorsAllowedMethods []string `mapstructure:"cors_allowed_methods"`
		CorsAllowedHeaders []string `mapstructure:"cors_allowed_headers"`
		Timezone           string   `mapstructure:"timezone"`
	} `mapstructure:"server"`

	Database struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		Name     string `mapstructure:"name"`
		SSLMode  string `mapstructure:"sslmode"`
		MaxConns int32  `mapstructure:"max_conns"`
	} `mapstructure:"database"`

	JWT struct {
		Secret string `mapstructure:"secret"`
		Issuer string `mapstructure:"issuer"`
	} `mapstructure:"jwt"`

	Log struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"`
	} `mapstructure:"log"`

	Storage struct {
		// Driver is "s3" (AWS S3 or Cloudflare R2) or "local"
		Driver    string `mapstructure:"driver"`
		LocalDir  string `mapstructure:"local_dir"`
		Bucket    string `mapstructure:"bucket"`
		Endpoint  string `mapstructure:"endpoint"`
		Region    string `mapstructure:"region"`
		AccessKey string `mapstructure:"access_key"`
		SecretKey string `mapstructure:"secret_key"`
	} `mapstructure:"storage"`

	Redis struct {
		Enabled  bool   `mapstructure:"enabled"`
		Addr     string `mapstructure:"addr"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Render struct {
		Enabled      bool          `mapstructure:"enabled"`
		Timeout      time.Duration `mapstructure:"timeout"`
		WarmOnWrite  bool          `mapstructure:"warm_on_write"`
		WarmWorkers  int           `mapstructure:"warm_workers"`
		CurrencySign string        `mapstructure:"currency_sign"`
	} `mapstructure:"render"`

	Payments struct {
		// Provider is "stripe", "razorpay" or empty to disable checkout
		Provider string `mapstructure:"provider"`
		Currency string `mapstructure:"currency"`
		Stripe   struct {
			SecretKey     string `mapstructure:"secret_key"`
			WebhookSecret string `mapstructure:"webhook_secret"`
			SuccessURL    string `mapstructure:"success_url"`
			CancelURL     string `mapstructure:"cancel_url"`
		} `mapstructure:"stripe"`
		Razorpay struct {
			KeyID         string `mapstructure:"key_id"`
			KeySecret     string `mapstructure:"key_secret"`
			WebhookSecret string `mapstructure:"webhook_secret"`
		} `mapstructure:"razorpay"`
	} `mapstructure:"payments"`

	Mail struct {
		Enabled  bool   `mapstructure:"enabled"`
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		From     string `mapstructure:"from"`
	} `mapstructure:"mail"`

	// Business is the fallback profile used when a user has none stored
	Business struct {
		Name          string `mapstructure:"name"`
		Address       string `mapstructure:"address"`
		Phone         string `mapstructure:"phone"`
		Email         string `mapstructure:"email"`
		LicenseNumber string `mapstructure:"license_number"`
	} `mapstructure:"business"`

	Invoice struct {
		PaymentTermsDays int `mapstructure:"payment_terms_days"`
	} `mapstructure:"invoice"`

	// Jobs run inside the server process; zero disables the loop
	Jobs struct {
		MetricsInterval      time.Duration `mapstructure:"metrics_interval"`
		OverdueSweepInterval time.Duration `mapstructure:"overdue_sweep_interval"`
	} `mapstructure:"jobs"`
}

// DSN builds the Postgres connection string
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Name,
		c.Database.SSLMode,
	)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_allowed_origins", []string{"*"})
	v.SetDefault("server.cors_allowed_methods", []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"})
	v.SetDefault("server.cors_allowed_headers", []string{"Authorization", "Content-Type", "X-Request-ID"})
	v.SetDefault("server.timezone", "UTC")
	v.SetDefault("jwt.issuer", "contractor-backend")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "contractor_db")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("storage.driver", "local")
	v.SetDefault("storage.local_dir", "data/artifacts")
	v.SetDefault("storage.region", "auto")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("render.enabled", true)
	v.SetDefault("render.timeout", 20*time.Second)
	v.SetDefault("render.warm_on_write", true)
	v.SetDefault("render.warm_workers", 2)
	v.SetDefault("render.currency_sign", "$")
	v.SetDefault("payments.currency", "usd")
	v.SetDefault("mail.port", 587)
	v.SetDefault("business.name", "Your Electrical Co.")
	v.SetDefault("invoice.payment_terms_days", 30)
	v.SetDefault("jobs.metrics_interval", time.Minute)
	v.SetDefault("jobs.overdue_sweep_interval", time.Hour)
}

// Load reads configs/config.yaml (optional), then .env and environment overrides.
func Load() (*Config, error) {
	return LoadFile("configs/config.yaml")
}

func LoadFile(path string) (*Config, error) {
	// .env is optional in production
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(path)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Info().Str("component", "config").Str("path", path).Msg("No config file found, using defaults")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config unmarshal: %w", err)
	}

	applyEnvOverrides(&cfg)

	if cfg.Invoice.PaymentTermsDays < 0 {
		return nil, fmt.Errorf("invoice.payment_terms_days must not be negative")
	}
	if cfg.Render.Timeout <= 0 {
		cfg.Render.Timeout = 20 * time.Second
	}
	return &cfg, nil
}

// applyEnvOverrides maps the short env names used by deployments onto the config
func applyEnvOverrides(cfg *Config) {
	setString(&cfg.Database.Host, "DB_HOST")
	setInt(&cfg.Database.Port, "DB_PORT")
	setString(&cfg.Database.User, "DB_USER")
	setString(&cfg.Database.Password, "DB_PASSWORD")
	setString(&cfg.Database.Name, "DB_NAME")
	setString(&cfg.JWT.Secret, "JWT_SECRET")

	setString(&cfg.Storage.Bucket, "R2_BUCKET")
	setString(&cfg.Storage.Endpoint, "R2_ENDPOINT")
	setString(&cfg.Storage.AccessKey, "R2_ACCESS_KEY")
	setString(&cfg.Storage.SecretKey, "R2_SECRET_KEY")

	setString(&cfg.Redis.Addr, "REDIS_ADDR")
	setString(&cfg.Redis.Password, "REDIS_PASSWORD")

	setString(&cfg.Payments.Stripe.SecretKey, "STRIPE_SECRET_KEY")
	setString(&cfg.Payments.Stripe.WebhookSecret, "STRIPE_WEBHOOK_SECRET")
	setString(&cfg.Payments.Razorpay.KeyID, "RAZORPAY_KEY_ID")
	setString(&cfg.Payments.Razorpay.KeySecret, "RAZORPAY_KEY_SECRET")
	setString(&cfg.Payments.Razorpay.WebhookSecret, "RAZORPAY_WEBHOOK_SECRET")

	setString(&cfg.Mail.Host, "SMTP_HOST")
	setInt(&cfg.Mail.Port, "SMTP_PORT")
	setString(&cfg.Mail.Username, "SMTP_USERNAME")
	setString(&cfg.Mail.Password, "SMTP_PASSWORD")
	setString(&cfg.Mail.From, "SMTP_FROM")
}

func setString(dst *string, env string) {
	if val := os.Getenv(env); val != "" {
		*dst = val
	}
}

func setInt(dst *int, env string) {
	if val := os.Getenv(env); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n > 0 {
			*dst = n
		}
	}
}
