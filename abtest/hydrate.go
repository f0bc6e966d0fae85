package abtest

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Hydrate reloads persisted tests and their per-variant aggregates. User
// assignments are not preloaded; they are re-derived deterministically (and
// reconciled against the store) on the next Variant call.
func (c *Controller) Hydrate(ctx context.Context) error {
	if c.store == nil {
		return nil
	}

	raw, err := c.store.HGetAll(ctx, testsKey)
	if err != nil {
		return fmt.Errorf("abtest: hydrate tests: %w", err)
	}

	for testID, data := range raw {
		var cfg TestConfig
		if err := json.Unmarshal([]byte(data), &cfg); err != nil {
			c.log.Warn("abtest_hydrate_skip", "test_id", testID, "error", err)
			continue
		}

		endsAt := time.Unix(int64(cfg.CreatedAt), 0).Add(time.Duration(cfg.DurationDays) * 24 * time.Hour)
		if score, ok, err := c.store.ZScore(ctx, activeKey, testID); err == nil && ok {
			endsAt = time.Unix(int64(score), 0)
		}

		state := &testState{
			config:      cfg,
			endsAt:      endsAt,
			assignments: make(map[string]string),
			variants:    make([]*variantState, len(cfg.Variants)),
		}
		for i := range state.variants {
			variant := &variantState{custom: make(map[string]float64)}
			fields, err := c.store.HGetAll(ctx, resultsKey(testID, variantID(i)))
			if err != nil {
				return fmt.Errorf("abtest: hydrate results for %s/%s: %w", testID, variantID(i), err)
			}
			for field, value := range fields {
				switch field {
				case "total_users":
					variant.users, _ = strconv.ParseInt(value, 10, 64)
				case "total_interactions":
					variant.interactions, _ = strconv.ParseInt(value, 10, 64)
				case "success_count":
					variant.success, _ = strconv.ParseInt(value, 10, 64)
				case "avg_confidence":
					variant.avgConf, _ = strconv.ParseFloat(value, 64)
				case "avg_time_ms":
					variant.avgTimeMs, _ = strconv.ParseFloat(value, 64)
				default:
					if v, err := strconv.ParseFloat(value, 64); err == nil {
						variant.custom[field] = v
					}
				}
			}
			state.variants[i] = variant
		}

		c.mu.Lock()
		c.tests[testID] = state
		c.mu.Unlock()
	}
	return nil
}
