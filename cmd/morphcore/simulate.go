package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quailyquaily/morphcore/catalog"
	"github.com/quailyquaily/morphcore/feedback"
	"github.com/quailyquaily/morphcore/internal/logutil"
	"github.com/quailyquaily/morphcore/kvstore"
	"github.com/quailyquaily/morphcore/metrics"
	"github.com/quailyquaily/morphcore/morph"
)

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate [messages...]",
		Short: "Run messages through the morphing pipeline against a catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			log, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			slog.SetDefault(log)

			catalogPath := strings.TrimSpace(viper.GetString("catalog"))
			if catalogPath == "" {
				return fmt.Errorf("no catalog file configured (--catalog)")
			}
			cat, err := catalog.Load(catalogPath)
			if err != nil {
				return err
			}

			messages := args
			if script := strings.TrimSpace(viper.GetString("script")); script != "" {
				messages, err = readScript(script)
				if err != nil {
					return err
				}
			}
			if len(messages) == 0 {
				return fmt.Errorf("no messages to simulate")
			}

			store := openStore(log)
			defer func() { _ = store.Close() }()

			ledger := feedback.NewLedger(store, feedback.WithLogger(log))
			if err := ledger.Hydrate(cmd.Context()); err != nil {
				log.Warn("ledger_hydrate_failed", "error", err)
			}
			recorder := metrics.NewRecorder(metrics.WithLogger(log), metrics.WithStore(store))

			engine := morph.NewEngine(cat,
				morph.WithLogger(log),
				morph.WithLedger(ledger),
				morph.WithMetrics(recorder),
			)

			userID := viper.GetString("user")
			if userID == "" {
				userID = "simulated-user"
			}

			var conversation []morph.Message
			for i, text := range messages {
				result := engine.ProcessMessage(cmd.Context(), userID, text, conversation)
				conversation = append(conversation, morph.Message{Role: "user", Content: text})

				line := fmt.Sprintf("[%d] %-30q morph=%s", i+1, text, result.CurrentMorph)
				if result.ShouldSwitch {
					line += fmt.Sprintf(" (switched from %s, %.2f: %s)",
						result.PreviousMorph, result.Decision.Confidence, result.Decision.Reason)
				} else if result.Analysis.BlockedByAntiLoop {
					line += fmt.Sprintf(" (anti-loop blocked switch to %s)", result.Analysis.BlockedTargetMorph)
				}
				cmd.Println(line)
			}

			summary, err := json.MarshalIndent(engine.MetricsSummary(), "", "  ")
			if err != nil {
				return err
			}
			cmd.Println(string(summary))
			return nil
		},
	}

	cmd.Flags().String("catalog", "", "Catalog YAML file.")
	cmd.Flags().String("script", "", "File with one message per line.")
	cmd.Flags().String("user", "", "User id for session state and A/B assignment.")
	_ = viper.BindPFlag("catalog", cmd.Flags().Lookup("catalog"))
	_ = viper.BindPFlag("script", cmd.Flags().Lookup("script"))
	_ = viper.BindPFlag("user", cmd.Flags().Lookup("user"))

	return cmd
}

// openStore connects to Redis when configured and falls back to the
// in-process store otherwise.
func openStore(log *slog.Logger) kvstore.Store {
	address := strings.TrimSpace(viper.GetString("redis.address"))
	if address == "" {
		return kvstore.NewMemory()
	}
	log.Info("using_redis_store", "address", address)
	return kvstore.NewRedis(address, viper.GetString("redis.password"), viper.GetInt("redis.db"))
}

func readScript(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open script: %w", err)
	}
	defer func() { _ = f.Close() }()

	var out []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read script: %w", err)
	}
	return out, nil
}
