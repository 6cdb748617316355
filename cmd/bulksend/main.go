package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/cuongbtq/bulksend/internal/config"
	"github.com/cuongbtq/bulksend/internal/recipient"
	"github.com/cuongbtq/bulksend/shared/logger"
)

const defaultConfigPath = "configs/bulksend.yaml"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "bulksend",
		Short: "Send a WhatsApp message to a list of numbers",
		Long: `bulksend links to a WhatsApp account by QR code and sends one text or
media message to many recipients, one at a time, with a delay between sends.

Running without a subcommand is the same as "bulksend serve".`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// Load .env file if it exists
			if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
				log.Printf("Failed to load .env file: %v", err)
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), configPath, cmd.Flags().Changed("config"))
		},
	}

	envPath := os.Getenv("BULKSEND_CONFIG_PATH")
	if envPath == "" {
		envPath = defaultConfigPath
	}
	root.PersistentFlags().StringVar(&configPath, "config", envPath, "Path to configuration file")

	root.AddCommand(newServeCmd(&configPath), newResolveCmd(&configPath))
	return root
}

// loadConfig reads the config file, falling back to defaults when the file
// is missing and was not named explicitly. Environment overrides apply last.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if explicit || !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load config: %w", err)
		}
		cfg = config.Default()
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, fmt.Errorf("failed to apply environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// initLogger initializes and configures the application logger
func initLogger(cfg *config.LoggingConfig) (*logger.Logger, error) {
	loggerCfg := &logger.Config{
		Level:        cfg.Level,
		Format:       cfg.Format,
		Output:       cfg.Output,
		EnableSource: cfg.EnableCaller,
		TimeFormat:   time.RFC3339,
		NoColor:      cfg.NoColor,
	}

	return logger.New(loggerCfg)
}

func recipientRules(cfg *config.RecipientsConfig) recipient.Rules {
	return recipient.Rules{
		CountryCode:      cfg.CountryCode,
		MinDigits:        cfg.MinDigits,
		SheetColumn:      cfg.SheetColumn,
		SheetNumericOnly: cfg.SheetNumericOnly,
	}
}
