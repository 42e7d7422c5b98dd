// Package config provides configuration management for the algorand tracker.
// It loads configuration from environment variables and .env files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Cache     CacheConfig
	Indexer   IndexerConfig
	Price     PriceConfig
	DeFi      DeFiConfig
	RateLimit RateLimitConfig
	History   HistoryConfig
	Logging   LoggingConfig
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	ClickHouse ClickHouseConfig
	Redis      RedisConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// URL returns a postgres:// connection URL for golang-migrate
func (c *PostgresConfig) URL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", c.User, c.Password, c.Host, c.Port, c.Database)
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// CacheConfig holds cache TTLs
type CacheConfig struct {
	SpotPriceTTL time.Duration
	AssetInfoTTL time.Duration
	SnapshotTTL  time.Duration
}

// IndexerConfig holds Algorand indexer configuration
type IndexerConfig struct {
	URL               string
	Token             string
	TxLimit           int
	PageSize          int
	RequestsPerSecond int
	Timeout           time.Duration
}

// PriceConfig holds price provider configuration
type PriceConfig struct {
	APIURL      string
	APIKey      string
	AsaPriceMap map[string]string // asa id -> coingecko id
	Timeout     time.Duration
}

// DeFiConfig holds protocol application ids used for placeholder detection
type DeFiConfig struct {
	TinymanAppIDs []uint64
	FolksAppIDs   []uint64
	RetiAppIDs    []uint64
}

// RateLimitConfig holds public API rate limiting configuration
type RateLimitConfig struct {
	Window time.Duration
	Max    int
}

// HistoryConfig holds history endpoint configuration
type HistoryConfig struct {
	MaxSnapshots int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "algorand_tracker"),
				User:           getEnv("POSTGRES_USER", "tracker"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 20),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "algorand_tracker"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
		},
		Cache: CacheConfig{
			SpotPriceTTL: getEnvAsDuration("CACHE_SPOT_PRICE_TTL", 60*time.Second),
			AssetInfoTTL: getEnvAsDuration("CACHE_ASSET_INFO_TTL", 24*time.Hour),
			SnapshotTTL:  getEnvAsDuration("CACHE_SNAPSHOT_TTL", 10*time.Minute),
		},
		Indexer: IndexerConfig{
			URL:               strings.TrimRight(getEnv("ALGORAND_INDEXER_URL", "https://mainnet-idx.algonode.cloud"), "/"),
			Token:             getEnv("ALGORAND_INDEXER_TOKEN", ""),
			TxLimit:           getEnvAsInt("INDEXER_TX_LIMIT", 5000),
			PageSize:          getEnvAsInt("INDEXER_PAGE_SIZE", 1000),
			RequestsPerSecond: getEnvAsInt("INDEXER_RPS", 20),
			Timeout:           getEnvAsDuration("INDEXER_TIMEOUT", 15*time.Second),
		},
		Price: PriceConfig{
			APIURL:      getEnv("PRICE_API_URL", "https://api.coingecko.com/api/v3/simple/price"),
			APIKey:      getEnv("PRICE_API_KEY", ""),
			AsaPriceMap: ParseAsaPriceMap(getEnv("ASA_PRICE_MAP_JSON", "{}")),
			Timeout:     getEnvAsDuration("PRICE_API_TIMEOUT", 10*time.Second),
		},
		DeFi: DeFiConfig{
			TinymanAppIDs: ParseAppIDs(getEnv("TINYMAN_APP_IDS", "")),
			FolksAppIDs:   ParseAppIDs(getEnv("FOLKS_APP_IDS", "")),
			RetiAppIDs:    ParseAppIDs(getEnv("RETI_APP_IDS", "")),
		},
		RateLimit: RateLimitConfig{
			Window: time.Duration(getEnvAsInt("PUBLIC_RATE_LIMIT_WINDOW_MS", 60000)) * time.Millisecond,
			Max:    getEnvAsInt("PUBLIC_RATE_LIMIT_MAX", 30),
		},
		History: HistoryConfig{
			MaxSnapshots: getEnvAsInt("HISTORY_MAX_SNAPSHOTS", 365),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// ParseAppIDs parses a comma-separated list of application ids, skipping invalid entries
func ParseAppIDs(raw string) []uint64 {
	var ids []uint64
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseUint(part, 10, 64)
		if err != nil || id == 0 {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// ParseAsaPriceMap parses a JSON object of asa id to price-provider id.
// Malformed JSON yields an empty map; non-integer keys and empty ids are dropped.
func ParseAsaPriceMap(raw string) map[string]string {
	parsed := map[string]string{}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return map[string]string{}
	}

	out := make(map[string]string, len(parsed))
	for assetID, providerID := range parsed {
		if _, err := strconv.ParseUint(assetID, 10, 64); err != nil || providerID == "" {
			continue
		}
		out[assetID] = providerID
	}
	return out
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
