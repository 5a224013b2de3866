package engine

import (
	"encoding/json"
	"time"

	"github.com/pkg/errors"

	"github.com/Dijital-Vizyon/flowforge-nexus/pkg/models"
)

// Step configs are generic key-value mappings with a caller-defined schema
// per step type, validated at the boundary. The helpers below decode the
// handful of keys the orchestration layer itself interprets.

// configDuration reads "duration_ms" for delay steps.
func configDuration(config map[string]any) time.Duration {
	return time.Duration(configInt(config, "duration_ms", 0)) * time.Millisecond
}

// configInt reads an integer key, tolerating the float64 JSON decoding
// produces.
func configInt(config map[string]any, key string, fallback int) int {
	v, ok := config[key]
	if !ok {
		return fallback
	}
	if f, ok := asFloat(v); ok {
		return int(f)
	}
	return fallback
}

// parallelBranches reads the "steps" list of a parallel step.
func parallelBranches(step models.Step) []string {
	v, ok := step.Config["steps"]
	if !ok {
		return nil
	}
	switch list := v.(type) {
	case []string:
		return list
	case []any:
		out := make([]string, 0, len(list))
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// configConditions reads the "conditions" list of a condition step. The
// list survives either as typed conditions or as decoded JSON maps.
func configConditions(config map[string]any) ([]models.Condition, error) {
	v, ok := config["conditions"]
	if !ok {
		return nil, nil
	}
	if conds, ok := v.([]models.Condition); ok {
		return conds, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "invalid conditions config")
	}
	var conds []models.Condition
	if err := json.Unmarshal(raw, &conds); err != nil {
		return nil, errors.Wrap(err, "invalid conditions config")
	}
	return conds, nil
}
