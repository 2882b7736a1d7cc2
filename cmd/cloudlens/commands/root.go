// Package commands implements the cloudlens CLI: offline inspection of
// cloud tenancy exports.
package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/catherinevee/cloudlens/internal/app"
	"github.com/catherinevee/cloudlens/internal/config"
	"github.com/catherinevee/cloudlens/internal/logger"
	"github.com/catherinevee/cloudlens/internal/store"
)

var (
	configPath string
	jsonOutput bool

	cfg      *config.Config
	appState *app.App
)

var rootCmd = &cobra.Command{
	Use:   "cloudlens",
	Short: "Offline cloud tenancy inspector",
	Long: `cloudlens ingests point-in-time JSON exports of a cloud tenancy and
answers three questions about the snapshot: what is the topology, what is
reachable from where, and what is insecure.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
		logger.Initialize(cfg.Log)

		s, err := store.NewSQLiteStore(&store.SQLiteConfig{Path: cfg.Store.Path})
		if err != nil {
			return fmt.Errorf("failed to open snapshot store: %w", err)
		}
		appState = app.New(s, cfg.Ingest.Ceiling)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if appState != nil {
			_ = appState.Store.Close()
		}
	},
}

// Execute runs the CLI.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a cloudlens config file")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "emit results as JSON")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(tagsCmd)
	rootCmd.AddCommand(topologyCmd)
	rootCmd.AddCommand(reachabilityCmd)
}

// printJSON renders any result record as indented JSON on stdout.
func printJSON(value interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
