package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"screening-pipeline/internal/config"
	"screening-pipeline/internal/logging"
	"screening-pipeline/internal/queue"
)

const app = "pipelinectl"

var (
	// Used for flags.
	cfgFile    string
	jsonOutput bool

	cfg *config.Config

	rootCmd = &cobra.Command{
		Use:          app,
		Short:        "pipelinectl triggers and inspects candidate screening runs",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			// version needs no configuration
			if cmd == versionCmd {
				return nil
			}
			return initConfig()
		},
	}
)

// Execute executes the root command.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "configs/config.yaml", "path to the configuration file")
	rootCmd.PersistentFlags().BoolVarP(&jsonOutput, "json", "j", false, "print results as json")
}

func initConfig() error {
	loaded, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := logging.InitializeLogging(loaded); err != nil {
		return fmt.Errorf("initializing logging: %w", err)
	}
	cfg = loaded
	return nil
}

// openAdapter connects to the shared task store. The in-memory backend lives inside the
// server process, so the CLI refuses it.
func openAdapter(ctx context.Context) (*queue.Adapter, error) {
	if cfg.Queue.Backend == "memory" {
		return nil, fmt.Errorf("queue backend %q is process-local, use the HTTP API instead", cfg.Queue.Backend)
	}
	store, err := queue.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("opening task store: %w", err)
	}
	logger := logging.GetGlobalLogger()
	return queue.NewAdapter(store, queue.OptionsFromConfig(cfg), queue.NewTaskEventLogger(logger), logger), nil
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
