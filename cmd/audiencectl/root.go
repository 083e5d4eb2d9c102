package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/liamcoop/audiences/audience"
	"github.com/liamcoop/audiences/dataset"
	"github.com/liamcoop/audiences/internal/logger"
)

var (
	dataDir  string
	nowFlag  string
	logLevel string
	workers  int
)

var rootCmd = &cobra.Command{
	Use:   "audiencectl",
	Short: "Build and size customer audiences from a dataset directory",
	Long: `audiencectl loads a schema, a customer population and optional saved
sections and audiences from a directory, then sizes, lists and explains
audiences against them. Relative time windows resolve against --now.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := logger.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		logger.SetLevel(level)
		return nil
	},
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data", "d", ".", "dataset directory")
	rootCmd.PersistentFlags().StringVar(&nowFlag, "now", "", "evaluation time (RFC3339), defaults to the current time")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (trace, debug, info, warn, error)")
	rootCmd.PersistentFlags().IntVar(&workers, "workers", audience.DefaultOptions().Workers, "goroutines used for large scans")
}

func evaluationTime() (time.Time, error) {
	if nowFlag == "" {
		return time.Now().UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, nowFlag)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --now %q: %w", nowFlag, err)
	}
	return t, nil
}

func engineOptions() audience.Options {
	opts := audience.DefaultOptions()
	opts.Workers = workers
	return opts
}

// loadEngine loads the dataset and starts an in-memory engine over it.
func loadEngine(cmd *cobra.Command) (*dataset.Dataset, *audience.Engine, error) {
	now, err := evaluationTime()
	if err != nil {
		return nil, nil, err
	}
	ds, err := dataset.Load(dataDir)
	if err != nil {
		return nil, nil, err
	}
	en, err := ds.Engine(cmd.Context(), engineOptions(), now)
	if err != nil {
		return nil, nil, fmt.Errorf("creating engine: %w", err)
	}
	return ds, en, nil
}
