package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/macrolens/productcheck/config"
	"github.com/macrolens/productcheck/internal/app"
)

var (
	configPath string
	outputJSON bool
	logLevel   string

	core *app.App
)

var rootCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Query product suggestions and verify products",
	Long: `lookup runs the product suggestion and verification core against the
configured catalog and external product databases.`,
	SilenceUsage:      true,
	PersistentPreRunE: openCore,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a config file (default: search ., ./config, /etc/productcheck)")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output results as JSON")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level written to stderr")
}

func openCore(cmd *cobra.Command, _ []string) error {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	cfg.Log.Level = logLevel
	cfg.Log.Format = "console"

	core, err = app.New(context.Background(), cfg, app.Options{LogWriter: cmd.ErrOrStderr()})
	return err
}

// closeCore releases the core opened for the last command
func closeCore() {
	if core != nil {
		core.Close()
		core = nil
	}
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	cmd.Println(string(data))
	return nil
}
