package main

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quailyquaily/morphcore/internal/logutil"
	"github.com/quailyquaily/morphcore/metrics"
)

func newMetricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Show the persisted transformation history",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(log)

			store := openStore(log)
			defer func() { _ = store.Close() }()

			limit := viper.GetInt64("limit")
			if limit <= 0 {
				limit = 20
			}
			entries, err := store.LRange(cmd.Context(), "morphing:metrics:history", 0, limit-1)
			if err != nil {
				return fmt.Errorf("read metrics history: %w", err)
			}
			if len(entries) == 0 {
				cmd.Println("no transformations recorded")
				return nil
			}

			for _, entry := range entries {
				var rec metrics.Transformation
				if err := json.Unmarshal([]byte(entry), &rec); err != nil {
					log.Warn("metrics_entry_skipped", "error", err)
					continue
				}
				cmd.Printf("%s  %s -> %s  trigger=%s confidence=%.2f time=%.1fms\n",
					rec.Timestamp.Format("2006-01-02 15:04:05"),
					rec.FromMorph, rec.ToMorph, rec.TriggerType, rec.Confidence, rec.TimeMs)
			}
			return nil
		},
	}

	cmd.Flags().Int64("limit", 20, "Number of history entries to show.")
	_ = viper.BindPFlag("limit", cmd.Flags().Lookup("limit"))
	return cmd
}
