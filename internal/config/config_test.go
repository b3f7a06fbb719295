package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Chain: ChainConfig{
			RPCURL:            "ws://127.0.0.1:8545",
			VaultAddress:      "0x1111111111111111111111111111111111111111",
			OracleHubAddress:  "0x2222222222222222222222222222222222222222",
			TwapOracleAddress: "0x3333333333333333333333333333333333333333",
			TokenAddress:      "0x4444444444444444444444444444444444444444",
		},
		Storage: StorageConfig{ConnectionString: "./data/keeper.db"},
		Keeper:  KeeperConfig{TickInterval: 30 * time.Second},
		Oracle:  OracleConfig{TickInterval: time.Minute, TwapWindow: 30 * time.Minute},
	}
}

func TestValidateAcceptsCompleteConfig(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidateRejectsMissingFields(t *testing.T) {
	mutations := map[string]func(*Config){
		"rpc url":       func(c *Config) { c.Chain.RPCURL = "" },
		"vault address": func(c *Config) { c.Chain.VaultAddress = "" },
		"token address": func(c *Config) { c.Chain.TokenAddress = "" },
		"storage":       func(c *Config) { c.Storage.ConnectionString = "" },
		"keeper tick":   func(c *Config) { c.Keeper.TickInterval = 0 },
		"oracle window": func(c *Config) { c.Oracle.TwapWindow = 0 },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			cfg := validConfig()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "stablevault-keeper", cfg.App.Name)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	assert.Equal(t, uint64(2000), cfg.Indexer.ChunkSize)
	assert.Equal(t, 30*time.Second, cfg.Keeper.TickInterval)
	assert.Equal(t, 30*time.Minute, cfg.Oracle.TwapWindow)
	assert.False(t, cfg.Keeper.AutoFund.Enabled)
}
