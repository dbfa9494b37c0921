package config

import (
	"io/ioutil"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Config top-level struct
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Redis     RedisConfig     `yaml:"redis"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	RateLimit RateLimitConfig `yaml:"ratelimit"`
	Auth      AuthConfig      `yaml:"auth"`
	Wallet    WalletConfig    `yaml:"wallet"`
}

type ServerConfig struct {
	Port int `yaml:"port"`
}

type PostgresConfig struct {
	DSN string `yaml:"dsn"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

type RateLimitConfig struct {
	RPS   int `yaml:"rps"`
	Burst int `yaml:"burst"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

type WalletConfig struct {
	// MinWithdrawal is the smallest amount (in đ) a user may request.
	MinWithdrawal int64 `yaml:"min_withdrawal"`
}

// DefaultMinWithdrawal applies when wallet.min_withdrawal is absent.
const DefaultMinWithdrawal = 50000

// MinWithdrawalAmount returns the configured threshold as a decimal.
func (w WalletConfig) MinWithdrawalAmount() decimal.Decimal {
	if w.MinWithdrawal <= 0 {
		return decimal.NewFromInt(DefaultMinWithdrawal)
	}
	return decimal.NewFromInt(w.MinWithdrawal)
}

// Load reads yaml file
func Load(path string) (*Config, error) {
	data, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	// override DSN password and JWT secret from env if present
	if pw := os.Getenv("POSTGRES_PASSWORD"); pw != "" {
		cfg.Postgres.DSN = cfg.Postgres.DSN + " password=" + pw
	}
	if sec := os.Getenv("JWT_SECRET"); sec != "" {
		cfg.Auth.JWTSecret = sec
	}
	return &cfg, nil
}
