package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Storage  StorageConfig  `mapstructure:"storage"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Intake   IntakeConfig   `mapstructure:"intake"`
	Outbox   OutboxConfig   `mapstructure:"outbox"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"ssl_mode"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	FeedChannel  string        `mapstructure:"feed_channel"`
}

type StorageConfig struct {
	Endpoint       string        `mapstructure:"endpoint"`
	Region         string        `mapstructure:"region"`
	Bucket         string        `mapstructure:"bucket"`
	AccessKey      string        `mapstructure:"access_key"`
	SecretKey      string        `mapstructure:"secret_key"`
	UsePathStyle   bool          `mapstructure:"use_path_style"`
	SignedURLTTL   time.Duration `mapstructure:"signed_url_ttl"`
	PublicBaseURL  string        `mapstructure:"public_base_url"`
	LogoPrefix     string        `mapstructure:"logo_prefix"`
	DocumentPrefix string        `mapstructure:"document_prefix"`
}

type JWTConfig struct {
	Secret          string        `mapstructure:"secret"`
	AccessTokenTTL  time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTL time.Duration `mapstructure:"refresh_token_ttl"`
}

type IntakeConfig struct {
	Token           string        `mapstructure:"token"`
	RateLimitWindow time.Duration `mapstructure:"rate_limit_window"`
	RateLimitMax    int           `mapstructure:"rate_limit_max"`
	MaxPDFSizeBytes int64         `mapstructure:"max_pdf_size_bytes"`
	SignedURLExpiry time.Duration `mapstructure:"signed_url_expiry"`
}

type OutboxConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	BatchSize    int           `mapstructure:"batch_size"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Pretty bool   `mapstructure:"pretty"`
}

// Load reads configuration from config.yaml (path optional) with environment
// overrides, e.g. BOARD_DATABASE_HOST overrides database.host.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if path != "" {
		v.AddConfigPath(path)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("BOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", []string{"*"})

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.name", "board")
	v.SetDefault("database.ssl_mode", "disable")

	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.feed_channel", "patients")

	v.SetDefault("storage.region", "eu-central-1")
	v.SetDefault("storage.bucket", "patient-pdfs")
	v.SetDefault("storage.use_path_style", false)
	v.SetDefault("storage.signed_url_ttl", time.Hour)
	v.SetDefault("storage.logo_prefix", "logos")
	v.SetDefault("storage.document_prefix", "dsgvo")

	v.SetDefault("jwt.access_token_ttl", 15*time.Minute)
	v.SetDefault("jwt.refresh_token_ttl", 7*24*time.Hour)

	v.SetDefault("intake.rate_limit_window", time.Minute)
	v.SetDefault("intake.rate_limit_max", 10)
	v.SetDefault("intake.max_pdf_size_bytes", int64(10*1024*1024))
	v.SetDefault("intake.signed_url_expiry", time.Hour)

	v.SetDefault("outbox.poll_interval", time.Second)
	v.SetDefault("outbox.batch_size", 100)

	v.SetDefault("smtp.port", 587)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

func (c *Config) validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt.secret is required")
	}
	if c.Intake.Token == "" {
		return fmt.Errorf("intake.token is required")
	}
	return nil
}
