package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/astromechza/screen-inu-history/pkg/config"
	"github.com/astromechza/screen-inu-history/pkg/replica"
)

// app is shared by all subcommands. It is filled in by the root PersistentPreRunE.
type app struct {
	configPath string
	path       string
	format     string

	cfg     config.Config
	manager *replica.Manager
}

var validFormats = []string{"text", "json"}

func newRootCommand() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "historyctl",
		Short:         "Inspect and merge replicated screen-inu history",
		Long:          "Manage the local captured-text history replica: add, delete, list, and exchange snapshots with other replicas.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
	}

	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "optional YAML config file")
	cmd.PersistentFlags().StringVar(&a.path, "path", "", "history snapshot file (overrides config)")
	cmd.PersistentFlags().StringVar(&a.format, "format", "text", "output format (text|json)")

	cmd.AddCommand(
		newInitCommand(a),
		newAddCommand(a),
		newDeleteCommand(a),
		newListCommand(a),
		newImportCommand(a),
		newExportCommand(a),
		newInspectCommand(a),
		newGraphCommand(a),
	)
	return cmd
}

func (a *app) setup() error {
	valid := false
	for _, f := range validFormats {
		valid = valid || f == a.format
	}
	if !valid {
		return fmt.Errorf("invalid format %q: must be one of %v", a.format, validFormats)
	}

	overrides := map[string]any{}
	if a.path != "" {
		overrides["history.path"] = a.path
	}
	cfg, err := config.Load(a.configPath, overrides)
	if err != nil {
		return err
	}
	a.cfg = cfg

	logger := cfg.Log.NewLogger(os.Stderr)
	slog.SetDefault(logger)
	a.manager = replica.New(
		replica.WithOverrideDir(cfg.Test.Dir),
		replica.WithLogger(logger),
	)
	if _, err := a.manager.Init(cfg.History.Path); err != nil {
		return fmt.Errorf("failed to initialize history: %w", err)
	}
	return nil
}
