package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"rollcall/internal/app"
	"rollcall/internal/config"
)

var (
	cfg     config.App
	envFile string
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	rootCmd := newRootCmd()
	rootCmd.SetContext(ctx)

	err := rootCmd.Execute()
	stop()
	if err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "rollcall",
		Short: "rollcall: attendance rosters over the school backend",
		Long:  "rollcall normalizes school backend records, reconciles course rosters against attendance and manages the entity lookup cache.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(envFile); err != nil {
				return err
			}
			cfg = config.Load()
			if err := cfg.Validate(); err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			return nil
		},
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file to read before the environment (default .env)")

	rootCmd.AddCommand(
		normalizeCmd(),
		rosterCmd(),
		entityCmd(),
		cacheCmd(),
		tokenCmd(),
	)
	return rootCmd
}

func newLogger() *slog.Logger {
	return cfg.Logger(os.Stderr)
}

func wire(ctx context.Context) (*app.Deps, error) {
	deps, err := app.Wire(ctx, cfg, newLogger())
	if err != nil {
		return nil, fmt.Errorf("wiring: %w", err)
	}
	return deps, nil
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling JSON: %w", err)
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
