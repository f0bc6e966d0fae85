package main

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/quailyquaily/morphcore/abtest"
	"github.com/quailyquaily/morphcore/internal/logutil"
)

func newABTestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "abtest",
		Short: "Manage morphing A/B experiments",
	}
	cmd.AddCommand(newABTestCreateCmd())
	cmd.AddCommand(newABTestResultsCmd())
	return cmd
}

func newABTestCreateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "create <confidence-threshold|sensitivity|anti-loop>",
		Short: "Create one of the predefined experiments",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(log)

			var cfg abtest.TestConfig
			switch args[0] {
			case "confidence-threshold":
				cfg = abtest.ConfidenceThresholdTest()
			case "sensitivity":
				cfg = abtest.SensitivityTest()
			case "anti-loop":
				cfg = abtest.AntiLoopTest()
			default:
				return fmt.Errorf("unknown predefined test %q", args[0])
			}

			store := openStore(log)
			defer func() { _ = store.Close() }()

			controller := abtest.NewController(store, abtest.WithLogger(log))
			if err := controller.CreateTest(cmd.Context(), cfg); err != nil {
				return err
			}
			cmd.Printf("created test %s with %d variants\n", cfg.TestID, len(cfg.Variants))
			return nil
		},
	}
}

func newABTestResultsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "results <test-id>",
		Short: "Show the results of an experiment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(log)

			store := openStore(log)
			defer func() { _ = store.Close() }()

			controller := abtest.NewController(store, abtest.WithLogger(log))
			if err := controller.Hydrate(cmd.Context()); err != nil {
				log.Warn("abtest_hydrate_failed", "error", err)
			}

			results, err := controller.Results(args[0])
			if err != nil {
				return err
			}
			data, err := json.MarshalIndent(results, "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(data))
			return nil
		},
	}
}
