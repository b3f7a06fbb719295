// File: cmd/keeper/main.go
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/smartdevs17/stablevault-keeper/internal/chain"
	"github.com/smartdevs17/stablevault-keeper/internal/config"
	"github.com/smartdevs17/stablevault-keeper/internal/indexer"
	"github.com/smartdevs17/stablevault-keeper/internal/keeper"
	"github.com/smartdevs17/stablevault-keeper/internal/metrics"
	"github.com/smartdevs17/stablevault-keeper/internal/oracle"
	"github.com/smartdevs17/stablevault-keeper/internal/server"
	"github.com/smartdevs17/stablevault-keeper/internal/storage"
	"github.com/smartdevs17/stablevault-keeper/pkg/utils"
)

// AppVersion contains the application version
const AppVersion = "1.0.0"

// Application represents the main application
type Application struct {
	config  *config.Config
	logger  *logrus.Logger
	client  chain.Client
	storage storage.Storage
	metrics *metrics.Manager
	indexer *indexer.Indexer
	oracle  *oracle.Aggregator
	keeper  *keeper.Keeper
	server  *server.HTTPServer
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config) (*Application, error) {
	ctx, cancel := context.WithCancel(context.Background())

	app := &Application{
		config: cfg,
		ctx:    ctx,
		cancel: cancel,
	}

	if err := app.initializeLogger(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	if err := app.initializeComponents(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize components: %w", err)
	}

	return app, nil
}

// initializeLogger initializes the application logger
func (app *Application) initializeLogger() error {
	logCfg := app.config.Logging

	if err := utils.InitLogger(logCfg.Level, logCfg.Format, logCfg.Output, logCfg.File); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	app.logger = utils.GetLogger()
	app.logger.WithFields(logrus.Fields{
		"level":  logCfg.Level,
		"format": logCfg.Format,
		"output": logCfg.Output,
	}).Info("Logger initialized")

	return nil
}

// initializeComponents initializes all application components
func (app *Application) initializeComponents() error {
	app.logger.Info("Initializing application components")

	if err := app.initializeChain(); err != nil {
		return fmt.Errorf("failed to initialize chain client: %w", err)
	}

	app.metrics = metrics.NewManager()

	if err := app.initializeStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	app.indexer = indexer.NewIndexer(&indexer.Config{
		StartBlock:         app.config.Indexer.StartBlock,
		ChunkSize:          app.config.Indexer.ChunkSize,
		ChunkRetryAttempts: app.config.Indexer.ChunkRetryAttempts,
	}, app.client, app.storage, app.metrics)

	app.oracle = oracle.NewAggregator(&oracle.Config{
		TickInterval: app.config.Oracle.TickInterval,
		TwapWindow:   app.config.Oracle.TwapWindow,
		SampleLimit:  app.config.Oracle.SampleLimit,
	}, app.client, app.storage, app.metrics)

	kpr, err := keeper.NewKeeper(&keeper.Config{
		TickInterval:   app.config.Keeper.TickInterval,
		MaxAttempts:    app.config.Keeper.MaxAttempts,
		BaseBackoff:    app.config.Keeper.BaseBackoff,
		MaxRepayStb:    app.config.Keeper.MaxRepayStb,
		WatchAddresses: app.config.Keeper.WatchAddresses,
		AutoFund: keeper.AutoFundConfig{
			Enabled:    app.config.Keeper.AutoFund.Enabled,
			Cooldown:   app.config.Keeper.AutoFund.Cooldown,
			DepositEth: app.config.Keeper.AutoFund.DepositEth,
			MintStb:    app.config.Keeper.AutoFund.MintStb,
		},
	}, app.client, app.storage, app.metrics)
	if err != nil {
		return fmt.Errorf("failed to create keeper: %w", err)
	}
	app.keeper = kpr

	if err := app.initializeServer(); err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}

	app.logger.Info("All components initialized successfully")
	return nil
}

// initializeChain initializes the chain client
func (app *Application) initializeChain() error {
	app.logger.Info("Initializing chain client")

	chainCfg := &chain.Config{
		RPCURL:            app.config.Chain.RPCURL,
		NetworkID:         app.config.Chain.NetworkID,
		RequestTimeout:    app.config.Chain.RequestTimeout,
		RetryAttempts:     app.config.Chain.RetryAttempts,
		RetryDelay:        app.config.Chain.RetryDelay,
		VaultAddress:      app.config.Chain.VaultAddress,
		OracleHubAddress:  app.config.Chain.OracleHubAddress,
		TwapOracleAddress: app.config.Chain.TwapOracleAddress,
		TokenAddress:      app.config.Chain.TokenAddress,
		KeeperPrivateKey:  app.config.Chain.KeeperPrivateKey,
	}

	client, err := chain.NewEthClient(app.ctx, chainCfg)
	if err != nil {
		return fmt.Errorf("failed to create chain client: %w", err)
	}
	app.client = client

	app.logger.Info("Chain client initialized successfully")
	return nil
}

// initializeStorage initializes the storage layer
func (app *Application) initializeStorage() error {
	app.logger.Info("Initializing storage layer")

	store, err := storage.NewStorage(&storage.StorageConfig{
		Type:             app.config.Storage.Type,
		ConnectionString: app.config.Storage.ConnectionString,
		MaxConnections:   app.config.Storage.MaxConnections,
		MaxIdleTime:      app.config.Storage.MaxIdleTime,
	})
	if err != nil {
		return fmt.Errorf("failed to create storage: %w", err)
	}

	if err := store.Connect(); err != nil {
		return fmt.Errorf("failed to connect to storage: %w", err)
	}

	if err := store.Migrate(); err != nil {
		return fmt.Errorf("failed to run storage migrations: %w", err)
	}

	app.storage = storage.NewStorageWithMetrics(store, app.metrics)
	app.logger.Info("Storage layer initialized successfully")
	return nil
}

// initializeServer initializes the HTTP server
func (app *Application) initializeServer() error {
	app.logger.Info("Initializing HTTP server")

	serverCfg := &server.ServerConfig{
		Port:          app.config.Server.Port,
		Host:          app.config.Server.Host,
		ReadTimeout:   app.config.Server.ReadTimeout,
		WriteTimeout:  app.config.Server.WriteTimeout,
		EnableMetrics: app.config.Server.EnableMetrics,
		EnableHealth:  app.config.Server.EnableHealth,
	}

	srv, err := server.NewHTTPServer(serverCfg, app.storage, app.client, app.indexer, app.keeper, app.metrics)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}
	app.server = srv

	app.logger.Info("HTTP server initialized successfully")
	return nil
}

// Start starts the application. The backfill completes before the live
// subscription and the loops start, so the candidate set is warm.
func (app *Application) Start() error {
	app.logger.WithFields(logrus.Fields{
		"version":     AppVersion,
		"environment": app.config.App.Environment,
	}).Info("Starting StableVault keeper")

	if err := app.server.Start(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if err := app.indexer.Backfill(app.ctx); err != nil {
		return fmt.Errorf("backfill failed: %w", err)
	}

	if err := app.indexer.Subscribe(app.ctx); err != nil {
		app.logger.WithField("error", err).Warn("Live subscription unavailable, continuing with backfilled data")
	}

	go app.oracle.Run(app.ctx)
	go app.keeper.Run(app.ctx)

	app.logger.WithFields(logrus.Fields{
		"server_address": fmt.Sprintf("%s:%d", app.config.Server.Host, app.config.Server.Port),
		"rpc_endpoint":   app.config.Chain.RPCURL,
		"signer":         app.client.HasSigner(),
	}).Info("StableVault keeper started successfully")

	return nil
}

// Stop stops the application gracefully
func (app *Application) Stop() error {
	app.logger.Info("Stopping StableVault keeper")

	// Cancel context to stop all loops
	app.cancel()

	// Stop components in reverse order
	if app.server != nil {
		if err := app.server.Stop(); err != nil {
			app.logger.WithField("error", err).Error("Failed to stop HTTP server")
		}
	}

	if app.indexer != nil {
		app.indexer.Stop()
	}

	if app.storage != nil {
		if err := app.storage.Close(); err != nil {
			app.logger.WithField("error", err).Error("Failed to close storage")
		}
	}

	if app.client != nil {
		if err := app.client.Close(); err != nil {
			app.logger.WithField("error", err).Error("Failed to close chain client")
		}
	}

	app.logger.Info("StableVault keeper stopped successfully")
	return nil
}

// CLI Commands

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "stablevault-keeper",
	Short:   "StableVault liquidation keeper",
	Long:    `An automated liquidation keeper, event indexer and TWAP aggregator for the StableVault lending protocol.`,
	Version: AppVersion,
	RunE:    runKeeper,
}

// runKeeper is the main command to run the keeper service
func runKeeper(cmd *cobra.Command, args []string) error {
	// Load configuration
	configPath := viper.GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// Create application
	app, err := NewApplication(cfg)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}

	// Set up signal handling for graceful shutdown
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)

	// Start application
	if err := app.Start(); err != nil {
		return fmt.Errorf("failed to start application: %w", err)
	}

	// Wait for shutdown signal
	<-signalChan
	fmt.Println("\nReceived shutdown signal, stopping application...")

	// Stop application
	if err := app.Stop(); err != nil {
		return fmt.Errorf("failed to stop application: %w", err)
	}

	return nil
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("StableVault Keeper %s\n", AppVersion)
	},
}

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

// validateConfigCmd validates the configuration
var validateConfigCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("configuration validation failed: %w", err)
		}

		fmt.Printf("Configuration is valid!\n")
		fmt.Printf("Environment: %s\n", cfg.App.Environment)
		fmt.Printf("RPC endpoint: %s\n", cfg.Chain.RPCURL)
		fmt.Printf("Database: %s\n", cfg.Storage.Type)
		fmt.Printf("Watch addresses: %d\n", len(cfg.Keeper.WatchAddresses))

		return nil
	},
}

// testCmd represents the test command
var testCmd = &cobra.Command{
	Use:   "test",
	Short: "Test connectivity and configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath := viper.GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		fmt.Println("Testing StableVault keeper connectivity...")

		// Test chain connection
		fmt.Printf("Testing RPC connection to %s...\n", cfg.Chain.RPCURL)
		client, err := chain.NewEthClient(context.Background(), &chain.Config{
			RPCURL:            cfg.Chain.RPCURL,
			NetworkID:         cfg.Chain.NetworkID,
			RequestTimeout:    cfg.Chain.RequestTimeout,
			RetryAttempts:     cfg.Chain.RetryAttempts,
			RetryDelay:        cfg.Chain.RetryDelay,
			VaultAddress:      cfg.Chain.VaultAddress,
			OracleHubAddress:  cfg.Chain.OracleHubAddress,
			TwapOracleAddress: cfg.Chain.TwapOracleAddress,
			TokenAddress:      cfg.Chain.TokenAddress,
		})
		if err != nil {
			return fmt.Errorf("failed to connect to RPC node: %w", err)
		}
		defer client.Close()
		fmt.Println("✓ RPC connection successful")

		// Test storage
		fmt.Printf("Testing storage connection (%s)...\n", cfg.Storage.Type)
		store, err := storage.NewStorage(&storage.StorageConfig{
			Type:             cfg.Storage.Type,
			ConnectionString: cfg.Storage.ConnectionString,
			MaxConnections:   cfg.Storage.MaxConnections,
			MaxIdleTime:      cfg.Storage.MaxIdleTime,
		})
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		if err := store.Connect(); err != nil {
			return fmt.Errorf("failed to connect to storage: %w", err)
		}
		defer store.Close()
		fmt.Println("✓ Storage connection successful")

		fmt.Println("\nAll connectivity tests passed! ✓")
		return nil
	},
}

// init initializes the CLI commands
func init() {
	// Add persistent flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path")
	rootCmd.PersistentFlags().StringP("log-level", "l", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug mode")

	// Bind flags to viper
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
	viper.BindPFlag("log-level", rootCmd.PersistentFlags().Lookup("log-level"))
	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))

	// Add subcommands
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(testCmd)
	configCmd.AddCommand(validateConfigCmd)
}

// main is the entry point
func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
