package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/andresmejia3/voxclip/internal/config"
	"github.com/andresmejia3/voxclip/internal/logging"
	"github.com/andresmejia3/voxclip/internal/store"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	// Ledger is the clip ledger shared by subcommands that record or read outcomes.
	Ledger store.Ledger
	// cfg is the effective configuration, built in PersistentPreRunE.
	cfg config.Config
	// flagCfg receives flag values. Only flags the user set are copied into cfg.
	flagCfg = config.Default()
	// cfgPath is the optional YAML or TOML config file.
	cfgPath string
)

// Version is the application version.
const Version = "0.1.0"

// needsLedger marks commands that open the clip ledger.
var needsLedger = map[string]string{"ledger": "true"}

var rootCmd = &cobra.Command{
	Use:     "voxclip",
	Short:   "Face-track clip extraction for audio-visual speech datasets",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		config.LoadEnv()

		c, warnings, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		applyFlags(cmd, &c)
		if err := c.Validate(); err != nil {
			return err
		}
		if err := logging.Init(c.LogLevel, c.LogFormat); err != nil {
			return err
		}
		for _, w := range warnings {
			log.Warn().Str("config", cfgPath).Msg(w)
		}
		cfg = c

		if cmd.Annotations["ledger"] != "true" {
			return nil
		}
		dsn := config.ResolveDB(cfg.DB)
		// Use the command's context (which will be cancellable) for the connection
		Ledger, err = store.Open(cmd.Context(), dsn)
		if err != nil {
			return fmt.Errorf("failed to open ledger: %w", err)
		}
		log.Debug().Bool("postgres", store.IsPostgres(dsn)).Msg("ledger opened")
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if Ledger != nil {
			Ledger.Close()
			Ledger = nil
		}
	},
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgPath, "config", "c", "", "YAML or TOML config file")
	pf.StringVar(&flagCfg.DB, "db", "", "Ledger DSN: a SQLite path or postgres:// URL (default: $VOXCLIP_DB, POSTGRES_* or "+config.DefaultDB+")")
	pf.StringVar(&flagCfg.LogLevel, "log-level", flagCfg.LogLevel, "Log level (trace, debug, info, warn, error)")
	pf.StringVar(&flagCfg.LogFormat, "log-format", flagCfg.LogFormat, "Log format (auto, console, json)")
}
