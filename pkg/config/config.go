package config

import (
	"errors"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Ledger     LedgerConfig
	Wallet     WalletConfig
	Reconciler ReconcilerConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// LedgerConfig describes how to reach the Besu node and the deployed
// class/score contracts.
type LedgerConfig struct {
	RPCURL              string
	ChainID             int64
	AdminPrivateKey     string
	ClassManagerAddress string
	ScoreManagerAddress string
	ConfirmTimeout      time.Duration
	PollInterval        time.Duration
	GasLimit            uint64
	ScoreCacheTTL       time.Duration
}

// WalletConfig tunes the scrypt KDF used for custodial key encryption.
type WalletConfig struct {
	ScryptN int
	ScryptR int
	ScryptP int
}

// ReconcilerConfig controls the whitelist reconciliation sweep.
type ReconcilerConfig struct {
	Enabled  bool
	Interval time.Duration
	Workers  int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Ledger = LedgerConfig{
		RPCURL:              v.GetString("BESU_RPC_URL"),
		ChainID:             v.GetInt64("BESU_CHAIN_ID"),
		AdminPrivateKey:     v.GetString("ADMIN_PRIVATE_KEY"),
		ClassManagerAddress: v.GetString("CLASS_MANAGER_ADDRESS"),
		ScoreManagerAddress: v.GetString("SCORE_MANAGER_ADDRESS"),
		ConfirmTimeout:      parseDuration(v.GetString("LEDGER_CONFIRM_TIMEOUT"), 30*time.Second),
		PollInterval:        parseDuration(v.GetString("LEDGER_POLL_INTERVAL"), time.Second),
		GasLimit:            v.GetUint64("LEDGER_GAS_LIMIT"),
		ScoreCacheTTL:       parseDuration(v.GetString("LEDGER_SCORE_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Wallet = WalletConfig{
		ScryptN: v.GetInt("WALLET_SCRYPT_N"),
		ScryptR: v.GetInt("WALLET_SCRYPT_R"),
		ScryptP: v.GetInt("WALLET_SCRYPT_P"),
	}

	cfg.Reconciler = ReconcilerConfig{
		Enabled:  v.GetBool("ENABLE_RECONCILER"),
		Interval: parseDuration(v.GetString("RECONCILER_INTERVAL"), 10*time.Minute),
		Workers:  v.GetInt("RECONCILER_WORKERS"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "ebn_besu")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("BESU_RPC_URL", "http://localhost:8545")
	v.SetDefault("BESU_CHAIN_ID", 1337)
	v.SetDefault("ADMIN_PRIVATE_KEY", "")
	v.SetDefault("CLASS_MANAGER_ADDRESS", "")
	v.SetDefault("SCORE_MANAGER_ADDRESS", "")
	v.SetDefault("LEDGER_CONFIRM_TIMEOUT", "30s")
	v.SetDefault("LEDGER_POLL_INTERVAL", "1s")
	v.SetDefault("LEDGER_GAS_LIMIT", 3_000_000)
	v.SetDefault("LEDGER_SCORE_CACHE_TTL", "5m")

	v.SetDefault("WALLET_SCRYPT_N", 32768)
	v.SetDefault("WALLET_SCRYPT_R", 8)
	v.SetDefault("WALLET_SCRYPT_P", 1)

	v.SetDefault("ENABLE_RECONCILER", false)
	v.SetDefault("RECONCILER_INTERVAL", "10m")
	v.SetDefault("RECONCILER_WORKERS", 1)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
