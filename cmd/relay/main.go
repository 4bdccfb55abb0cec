package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/airchainpay/relay/pkg/api"
	"github.com/airchainpay/relay/pkg/config"
	"github.com/airchainpay/relay/pkg/log"
	"github.com/airchainpay/relay/pkg/relay"
	"github.com/airchainpay/relay/pkg/types"
)

// Exit codes
const (
	exitOK              = 0
	exitConfigInvalid   = 1
	exitDataDirUnusable = 2
	exitIntegrity       = 3
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "AirChainPay relay - transaction relay for resource-constrained wallets",
	Long: `The AirChainPay relay accepts signed blockchain transactions from
mobile wallets and offline payment channels, buffers and deduplicates
them, and broadcasts them to the configured EVM-compatible networks
with retry, circuit breaking and confirmation tracking.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"AirChainPay relay version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Config file path (JSON or YAML, overrides CONFIG_FILE)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")

	cobra.OnInitialize(initLogging)

	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(fsckCmd)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      logLevel,
		JSONOutput: logJSON,
	})
}

func configPath() string {
	if path, _ := rootCmd.PersistentFlags().GetString("config"); path != "" {
		return path
	}
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		return path
	}
	return "config.json"
}

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the relay server",
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := log.For(log.CLI)

		cfgMgr, err := config.NewManager(configPath())
		if err != nil {
			logger.Error().Err(err).Msg("Configuration rejected")
			os.Exit(exitConfigInvalid)
		}

		r, err := relay.New(cfgMgr)
		if err != nil {
			logger.Error().Err(err).Msg("Relay initialization failed")
			if types.IsKind(err, types.KindConfigInvalid) {
				os.Exit(exitConfigInvalid)
			}
			os.Exit(exitDataDirUnusable)
		}

		// Startup fsck: refuse to serve from tampered state
		violations, err := r.VerifyIntegrity()
		if err != nil {
			logger.Error().Err(err).Msg("Integrity check failed")
			os.Exit(exitIntegrity)
		}
		if len(violations) > 0 {
			for _, v := range violations {
				logger.Error().Str("file", v.Name).Str("expected", v.Expected).Str("actual", v.Actual).Msg("Integrity violation")
			}
			os.Exit(exitIntegrity)
		}

		if err := r.Start(); err != nil {
			logger.Error().Err(err).Msg("Relay start failed")
			os.Exit(exitConfigInvalid)
		}

		server := api.NewServer(r)
		serverErr := make(chan error, 1)
		go func() {
			serverErr <- server.Start(cfgMgr.Get().Port)
		}()

		// Wait for shutdown signal
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigCh:
			logger.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
		case err := <-serverErr:
			if err != nil {
				logger.Error().Err(err).Msg("API server failed")
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Stop(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("API server shutdown failed")
		}
		r.Stop()

		os.Exit(exitOK)
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration utilities",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the config file and print the effective settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
			os.Exit(exitConfigInvalid)
		}
		fmt.Printf("Configuration valid: environment=%s port=%d chains=%d\n",
			cfg.Environment, cfg.Port, len(cfg.SupportedChains))
		for id, chain := range cfg.SupportedChains {
			fmt.Printf("  chain %d (%s): %s\n", id, chain.Name, chain.RPCURL)
		}
		return nil
	},
}

var fsckCmd = &cobra.Command{
	Use:   "fsck",
	Short: "Verify the integrity of the data directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfgMgr, err := config.NewManager(configPath())
		if err != nil {
			os.Exit(exitConfigInvalid)
		}
		r, err := relay.New(cfgMgr)
		if err != nil {
			os.Exit(exitDataDirUnusable)
		}
		defer r.Stop()

		violations, err := r.VerifyIntegrity()
		if err != nil {
			return err
		}
		if len(violations) > 0 {
			for _, v := range violations {
				fmt.Fprintf(os.Stderr, "integrity violation: %s (expected %s, got %s)\n", v.Name, v.Expected, v.Actual)
			}
			os.Exit(exitIntegrity)
		}
		fmt.Println("Data directory integrity verified")
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}
