// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Chain   ChainConfig   `mapstructure:"chain"`
	Storage StorageConfig `mapstructure:"storage"`
	Indexer IndexerConfig `mapstructure:"indexer"`
	Oracle  OracleConfig  `mapstructure:"oracle"`
	Keeper  KeeperConfig  `mapstructure:"keeper"`
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Debug       bool   `mapstructure:"debug"`
}

// ChainConfig contains blockchain connection configuration
type ChainConfig struct {
	RPCURL            string        `mapstructure:"rpc_url"`
	NetworkID         uint64        `mapstructure:"network_id"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	RetryAttempts     int           `mapstructure:"retry_attempts"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
	VaultAddress      string        `mapstructure:"vault_address"`
	OracleHubAddress  string        `mapstructure:"oracle_hub_address"`
	TwapOracleAddress string        `mapstructure:"twap_oracle_address"`
	TokenAddress      string        `mapstructure:"stb_token_address"`
	KeeperPrivateKey  string        `mapstructure:"keeper_private_key"`
}

// StorageConfig contains database configuration
type StorageConfig struct {
	Type             string        `mapstructure:"type"` // sqlite, postgres
	ConnectionString string        `mapstructure:"connection_string"`
	MaxConnections   int           `mapstructure:"max_connections"`
	MaxIdleTime      time.Duration `mapstructure:"max_idle_time"`
}

// IndexerConfig contains event indexing configuration
type IndexerConfig struct {
	StartBlock         uint64 `mapstructure:"start_block"`
	ChunkSize          uint64 `mapstructure:"chunk_size"`
	ChunkRetryAttempts int    `mapstructure:"chunk_retry_attempts"`
}

// OracleConfig contains TWAP aggregator configuration
type OracleConfig struct {
	TickInterval time.Duration `mapstructure:"tick_interval"`
	TwapWindow   time.Duration `mapstructure:"twap_window"`
	SampleLimit  int           `mapstructure:"sample_limit"`
}

// AutoFundConfig contains keeper self-funding configuration
type AutoFundConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Cooldown   time.Duration `mapstructure:"cooldown"`
	DepositEth string        `mapstructure:"deposit_eth"`
	MintStb    string        `mapstructure:"mint_stb"`
}

// KeeperConfig contains liquidation keeper configuration
type KeeperConfig struct {
	TickInterval   time.Duration  `mapstructure:"tick_interval"`
	MaxAttempts    int            `mapstructure:"max_attempts"`
	BaseBackoff    time.Duration  `mapstructure:"base_backoff"`
	MaxRepayStb    string         `mapstructure:"max_repay_stb"`
	WatchAddresses []string       `mapstructure:"watch_addresses"`
	AutoFund       AutoFundConfig `mapstructure:"autofund"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Port          int           `mapstructure:"port"`
	Host          string        `mapstructure:"host"`
	ReadTimeout   time.Duration `mapstructure:"read_timeout"`
	WriteTimeout  time.Duration `mapstructure:"write_timeout"`
	EnableMetrics bool          `mapstructure:"enable_metrics"`
	EnableHealth  bool          `mapstructure:"enable_health"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // json, text
	Output     string `mapstructure:"output"` // stdout, file
	File       string `mapstructure:"file"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.SetConfigName("config")
		viper.AddConfigPath(".")
		viper.AddConfigPath("./config")
	}

	// Set environment variable prefix
	viper.SetEnvPrefix("STABLEVAULT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			fmt.Println("Config file not found, using defaults and environment variables")
		} else {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Override with environment variables if present
	if rpcURL := os.Getenv("STABLEVAULT_RPC_URL"); rpcURL != "" {
		config.Chain.RPCURL = rpcURL
	}
	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		config.Storage.ConnectionString = dbURL
	}
	if key := os.Getenv("STABLEVAULT_CHAIN_KEEPER_PRIVATE_KEY"); key != "" {
		config.Chain.KeeperPrivateKey = key
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	// App defaults
	viper.SetDefault("app.name", "stablevault-keeper")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.environment", "development")
	viper.SetDefault("app.debug", false)

	// Chain defaults
	viper.SetDefault("chain.rpc_url", "ws://127.0.0.1:8545")
	viper.SetDefault("chain.network_id", 31337)
	viper.SetDefault("chain.request_timeout", "30s")
	viper.SetDefault("chain.retry_attempts", 3)
	viper.SetDefault("chain.retry_delay", "5s")

	// Storage defaults
	viper.SetDefault("storage.type", "sqlite")
	viper.SetDefault("storage.connection_string", "./data/keeper.db")
	viper.SetDefault("storage.max_connections", 25)
	viper.SetDefault("storage.max_idle_time", "15m")

	// Indexer defaults
	viper.SetDefault("indexer.start_block", 0)
	viper.SetDefault("indexer.chunk_size", 2000)
	viper.SetDefault("indexer.chunk_retry_attempts", 3)

	// Oracle defaults
	viper.SetDefault("oracle.tick_interval", "1m")
	viper.SetDefault("oracle.twap_window", "30m")
	viper.SetDefault("oracle.sample_limit", 120)

	// Keeper defaults
	viper.SetDefault("keeper.tick_interval", "30s")
	viper.SetDefault("keeper.max_attempts", 3)
	viper.SetDefault("keeper.base_backoff", "2s")
	viper.SetDefault("keeper.max_repay_stb", "1000000000000000000000")
	viper.SetDefault("keeper.watch_addresses", []string{})
	viper.SetDefault("keeper.autofund.enabled", false)
	viper.SetDefault("keeper.autofund.cooldown", "10m")
	viper.SetDefault("keeper.autofund.deposit_eth", "5000000000000000000")
	viper.SetDefault("keeper.autofund.mint_stb", "2000000000000000000000")

	// Server defaults
	viper.SetDefault("server.port", 8081)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "10s")
	viper.SetDefault("server.enable_metrics", true)
	viper.SetDefault("server.enable_health", true)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")
	viper.SetDefault("logging.max_size", 100)
	viper.SetDefault("logging.max_backups", 3)
	viper.SetDefault("logging.max_age", 28)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Chain.RPCURL == "" {
		return fmt.Errorf("chain RPC URL is required")
	}
	if c.Chain.VaultAddress == "" {
		return fmt.Errorf("vault address is required")
	}
	if c.Chain.OracleHubAddress == "" {
		return fmt.Errorf("oracle hub address is required")
	}
	if c.Chain.TwapOracleAddress == "" {
		return fmt.Errorf("twap oracle address is required")
	}
	if c.Chain.TokenAddress == "" {
		return fmt.Errorf("stb token address is required")
	}
	if c.Storage.ConnectionString == "" {
		return fmt.Errorf("storage connection string is required")
	}
	if c.Keeper.TickInterval <= 0 {
		return fmt.Errorf("keeper tick interval must be positive")
	}
	if c.Oracle.TickInterval <= 0 {
		return fmt.Errorf("oracle tick interval must be positive")
	}
	if c.Oracle.TwapWindow <= 0 {
		return fmt.Errorf("oracle twap window must be positive")
	}
	return nil
}
