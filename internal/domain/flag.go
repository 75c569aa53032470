// Package domain holds the flag, event and aggregate types shared by the
// decision, recording and aggregation paths.
package domain

import (
	"time"

	"rollout.io/rollout/internal/constraint"
)

// FlagType selects how an enabled flag is decided.
type FlagType string

const (
	FlagTypeBoolean    FlagType = "BOOLEAN"
	FlagTypePercentage FlagType = "PERCENTAGE"
	FlagTypeVariant    FlagType = "VARIANT"
)

// Valid reports whether t is a known flag type.
func (t FlagType) Valid() bool {
	switch t {
	case FlagTypeBoolean, FlagTypePercentage, FlagTypeVariant:
		return true
	}
	return false
}

// DefaultPercentage applies when no target overrides the rollout.
const DefaultPercentage = 100

// FeatureFlag is the persisted flag definition.
type FeatureFlag struct {
	ID          string   `json:"id"`
	Key         string   `json:"key"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Type        FlagType `json:"type"`
	Enabled     bool     `json:"enabled"`
}

// FlagVariant is one weighted arm of a VARIANT flag.
type FlagVariant struct {
	ID     string `json:"id"`
	Key    string `json:"key"`
	Weight int    `json:"weight"`
}

// Environment names a deployment environment such as "production".
type Environment struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// FlagTarget overrides rollout and constraints for one environment.
type FlagTarget struct {
	ID          string              `json:"id"`
	Percentage  int                 `json:"percentage"`
	Constraints *constraint.RuleSet `json:"constraints,omitempty"`
	Environment *Environment        `json:"environment,omitempty"`
}

// EnvironmentName returns the target's environment name, or "" when unset.
func (t FlagTarget) EnvironmentName() string {
	if t.Environment == nil {
		return ""
	}
	return t.Environment.Name
}

// FlagSnapshot is a flag with its variants and targets. It is what the cache
// stores and what the decision engine evaluates.
type FlagSnapshot struct {
	FeatureFlag
	Variants []FlagVariant `json:"variants"`
	Targets  []FlagTarget  `json:"targets"`
}

// TargetFor picks the target for a requested environment: an exact name match,
// else the first target when no environment was requested. It returns nil when
// nothing applies.
func (s *FlagSnapshot) TargetFor(environment string) *FlagTarget {
	if environment != "" {
		for i := range s.Targets {
			if s.Targets[i].EnvironmentName() == environment {
				return &s.Targets[i]
			}
		}
		return nil
	}
	if len(s.Targets) > 0 {
		return &s.Targets[0]
	}
	return nil
}

// Experiment ties conversions to the flag under test.
type Experiment struct {
	ID     string `json:"id"`
	FlagID string `json:"flag_id"`
	Name   string `json:"name"`
}

// Exposure records that a subject saw a flag decision.
type Exposure struct {
	ID         string         `json:"id"`
	FlagID     string         `json:"flag_id"`
	UserID     *string        `json:"user_id,omitempty"`
	VariantKey *string        `json:"variant_key,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// Conversion records a metric event attributed to an experiment.
type Conversion struct {
	ID           string    `json:"id"`
	ExperimentID string    `json:"experiment_id"`
	ExposureID   *string   `json:"exposure_id,omitempty"`
	MetricKey    string    `json:"metric_key"`
	Value        float64   `json:"value"`
	Timestamp    time.Time `json:"timestamp"`
}

// Aggregate is one daily rollup row keyed by (Date, FlagID, VariantKey).
// VariantKey is "" for flags without variants.
type Aggregate struct {
	Date        time.Time `json:"date"`
	FlagID      string    `json:"flag_id"`
	VariantKey  string    `json:"variant_key"`
	Impressions int64     `json:"impressions"`
	Conversions int64     `json:"conversions"`
}
