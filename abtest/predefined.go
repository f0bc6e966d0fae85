package abtest

// Predefined experiment configurations for the tunables that most often need
// field validation.

// ConfidenceThresholdTest compares gradual-layer acceptance thresholds.
func ConfidenceThresholdTest() TestConfig {
	return TestConfig{
		TestID:      "confidence_threshold_test",
		Name:        "Gradual confidence threshold",
		Description: "Compare acceptance thresholds for the gradual layer",
		Variants: []map[string]any{
			{"gradual_layer": map[string]any{"confidence_threshold": 0.4}},
			{"gradual_layer": map[string]any{"confidence_threshold": 0.6}},
			{"gradual_layer": map[string]any{"confidence_threshold": 0.8}},
		},
		Metrics:         []string{"transformation_success", "user_satisfaction", "precision"},
		DurationDays:    7,
		MinSamples:      100,
		ConfidenceLevel: 0.95,
	}
}

// SensitivityTest compares overall trigger sensitivity settings.
func SensitivityTest() TestConfig {
	return TestConfig{
		TestID:      "sensitivity_test",
		Name:        "Trigger sensitivity",
		Description: "Compare trigger sensitivity levels",
		Variants: []map[string]any{
			{"settings": map[string]any{"sensitivity": "low"}},
			{"settings": map[string]any{"sensitivity": "medium"}},
			{"settings": map[string]any{"sensitivity": "high"}},
		},
		Metrics:         []string{"transformation_frequency", "accuracy", "user_experience"},
		DurationDays:    5,
		MinSamples:      75,
		ConfidenceLevel: 0.95,
	}
}

// AntiLoopTest compares anti-loop guard configurations.
func AntiLoopTest() TestConfig {
	return TestConfig{
		TestID:      "anti_loop_test",
		Name:        "Anti-loop protection",
		Description: "Compare anti-loop guard configurations",
		Variants: []map[string]any{
			{"transitions": map[string]any{"prevent_morphing_loops": true, "loop_threshold": 3}},
			{"transitions": map[string]any{"prevent_morphing_loops": true, "loop_threshold": 5}},
			{"transitions": map[string]any{"prevent_morphing_loops": false}},
		},
		Metrics:         []string{"loop_incidents", "user_frustration", "conversation_flow"},
		DurationDays:    10,
		MinSamples:      150,
		ConfidenceLevel: 0.95,
	}
}
