package config

import (
	"fmt"
	"strings"
	"time"

	"custody-vault/pkg/fixedpoint"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Log      LogConfig      `mapstructure:"log"`
	Vault    VaultConfig    `mapstructure:"vault"`
	Oracle   OracleConfig   `mapstructure:"oracle"`
	Custody  CustodyConfig  `mapstructure:"custody"`
	Events   EventsConfig   `mapstructure:"events"`
	Secrets  SecretsConfig  `mapstructure:"secrets"`
}

type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"` // postgres, memory
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Addr returns the Redis address string.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	Expiry time.Duration `mapstructure:"expiry"`
	Issuer string        `mapstructure:"issuer"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Pretty bool   `mapstructure:"pretty"` // human-readable output (dev only)
}

// VaultConfig is the immutable construction input of the vault.
type VaultConfig struct {
	BankCapUSD               string   `mapstructure:"bank_cap_usd"`                // human USD, e.g. "1000"
	WithdrawLimitPerTxNative string   `mapstructure:"withdraw_limit_per_tx_native"` // raw wei
	NativeOracle             string   `mapstructure:"native_oracle"`
	Admins                   []string `mapstructure:"admins"`
}

// VaultParams is VaultConfig after validation.
type VaultParams struct {
	BankCapUSD               *uint256.Int
	WithdrawLimitPerTxNative *uint256.Int
	NativeOracle             common.Address
	Admins                   []common.Address
}

// Parse validates the vault settings and converts them to typed values.
func (v VaultConfig) Parse() (*VaultParams, error) {
	bankCap, err := fixedpoint.ParseUnits(v.BankCapUSD, fixedpoint.USDDecimals)
	if err != nil {
		return nil, fmt.Errorf("vault.bank_cap_usd: %w", err)
	}
	limit, err := fixedpoint.Parse(v.WithdrawLimitPerTxNative)
	if err != nil {
		return nil, fmt.Errorf("vault.withdraw_limit_per_tx_native: %w", err)
	}
	if !common.IsHexAddress(v.NativeOracle) {
		return nil, fmt.Errorf("vault.native_oracle: invalid address %q", v.NativeOracle)
	}

	admins := make([]common.Address, 0, len(v.Admins))
	for _, a := range v.Admins {
		if !common.IsHexAddress(a) {
			return nil, fmt.Errorf("vault.admins: invalid address %q", a)
		}
		admins = append(admins, common.HexToAddress(a))
	}

	return &VaultParams{
		BankCapUSD:               bankCap,
		WithdrawLimitPerTxNative: limit,
		NativeOracle:             common.HexToAddress(v.NativeOracle),
		Admins:                   admins,
	}, nil
}

// StaticPrice is a fixed quote served by the static oracle driver.
type StaticPrice struct {
	Oracle   string `mapstructure:"oracle"`
	Answer   string `mapstructure:"answer"`
	Decimals uint8  `mapstructure:"decimals"`
}

type OracleConfig struct {
	Driver       string        `mapstructure:"driver"` // http, static
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxStaleness time.Duration `mapstructure:"max_staleness"` // 0 disables the freshness check
	StaticPrices []StaticPrice `mapstructure:"static_prices"`
}

// TokenDecimals declares token precision for the memory custody driver.
type TokenDecimals struct {
	Token    string `mapstructure:"token"`
	Decimals uint8  `mapstructure:"decimals"`
}

type CustodyConfig struct {
	Driver    string          `mapstructure:"driver"` // http, memory
	BaseURL   string          `mapstructure:"base_url"`
	APIKey    string          `mapstructure:"api_key"`
	APISecret string          `mapstructure:"api_secret"`
	Timeout   time.Duration   `mapstructure:"timeout"`
	Tokens    []TokenDecimals `mapstructure:"tokens"`
}

type EventsConfig struct {
	RedisChannel  string   `mapstructure:"redis_channel"`
	KafkaBrokers  []string `mapstructure:"kafka_brokers"`
	KafkaTopic    string   `mapstructure:"kafka_topic"`
	WebhookURL    string   `mapstructure:"webhook_url"`
	WebhookSecret string   `mapstructure:"webhook_secret"`
}

// SecretsConfig holds the AES-256 key (64 hex chars) that opens "enc:"
// sealed values elsewhere in the config. Normally set via VAULT_SECRETS_KEY.
type SecretsConfig struct {
	Key string `mapstructure:"key"`
}

// Load reads configuration from file and environment variables.
// Environment variables override file values. Prefix: VAULT_.
// Nested keys use underscore: VAULT_DATABASE_HOST, VAULT_VAULT_BANK_CAP_USD, etc.
func Load(path string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("storage.driver", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "custody_vault")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.conn_max_lifetime", "30m")
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.expiry", "24h")
	v.SetDefault("jwt.issuer", "custody-vault")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
	v.SetDefault("vault.bank_cap_usd", "1000000")
	v.SetDefault("vault.withdraw_limit_per_tx_native", "100000000000000000")
	v.SetDefault("vault.native_oracle", "")
	v.SetDefault("oracle.driver", "http")
	v.SetDefault("oracle.timeout", "5s")
	v.SetDefault("oracle.max_staleness", "1h")
	v.SetDefault("custody.driver", "http")
	v.SetDefault("custody.timeout", "15s")
	v.SetDefault("events.redis_channel", "vault_events")
	v.SetDefault("events.kafka_topic", "vault.events")
	v.SetDefault("secrets.key", "")

	// File config
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	// Environment variables: VAULT_DATABASE_HOST -> database.host
	v.SetEnvPrefix("VAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (not required, env vars can suffice)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}
