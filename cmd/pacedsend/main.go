package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/LeventeLantos/pacedsend/internal/config"
	"github.com/LeventeLantos/pacedsend/internal/logging"
)

var (
	version = "dev"
	commit  = "unknown"

	envFile string
	cfg     *config.Config
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "pacedsend",
	Short:        "Paced bulk messaging with resumable progress",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd == versionCmd {
			return nil
		}
		if envFile != "" {
			if err := godotenv.Load(envFile); err != nil {
				return fmt.Errorf("load %s: %w", envFile, err)
			}
		} else {
			_ = godotenv.Load()
		}

		loaded, err := config.LoadAll()
		if err != nil {
			return fmt.Errorf("configuration is invalid: %w", err)
		}
		if err := logging.Setup(loaded.Log); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the environment configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		p := cfg.Pacing
		fmt.Fprintf(out, "Configuration is valid\n")
		fmt.Fprintf(out, "  Recipients: %s (%s)\n", cfg.Recipients.File, cfg.Recipients.Normalize)
		fmt.Fprintf(out, "  Messages:   %s\n", cfg.Messages.File)
		fmt.Fprintf(out, "  Progress:   %s\n", cfg.Progress.Backend)
		fmt.Fprintf(out, "  Messenger:  %s\n", cfg.Messenger.Kind)
		fmt.Fprintf(out, "  Hours:      %02d-%02d %s\n", p.HourStart, p.HourEnd, p.Location)
		fmt.Fprintf(out, "  Cap:        %d per session\n", p.MaxPerSession)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "pacedsend version %s\n", version)
		if commit != "unknown" {
			fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", commit)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to load before reading the environment")

	configCmd.AddCommand(configValidateCmd)
	rootCmd.AddCommand(runCmd, serveCmd, recipientsCmd, progressCmd, configCmd, versionCmd)
}
