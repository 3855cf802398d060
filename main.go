package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"dolphinpod/internal/config"
	"dolphinpod/internal/logging"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "dolphinpod",
	Short: "Digital wellbeing backend",
	Long: `dolphinpod stores per-app usage sessions reported by mobile devices,
classifies late-night use and serves the reports, challenges and social
features built on top of them.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd, args)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to an optional YAML configuration file")
}

// loadConfig reads .env (if present) into the environment before the
// config layer looks at APP_* variables.
func loadConfig() (*config.Config, zerolog.Logger, error) {
	_ = godotenv.Load()
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logging.New(cfg.Logging.Level, cfg.Logging.Format), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
