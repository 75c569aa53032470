package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rollout.io/rollout/internal/constraint"
	"rollout.io/rollout/internal/domain"
)

func TestLoadFixtures_Bundled(t *testing.T) {
	t.Parallel()

	data, err := loadFixtures(defaultFixtures)
	require.NoError(t, err)
	require.Len(t, data.Environments, 2)
	require.Len(t, data.Flags, 3)
	require.Len(t, data.Experiments, 1)

	byKey := make(map[string]*domain.FlagSnapshot)
	for _, f := range data.Flags {
		byKey[f.Key] = f
	}

	checkout := byKey["new-checkout"]
	require.NotNil(t, checkout)
	assert.Equal(t, domain.FlagTypePercentage, checkout.Type)
	require.Len(t, checkout.Targets, 2)
	prod := checkout.TargetFor("production")
	require.NotNil(t, prod)
	assert.Equal(t, 25, prod.Percentage)
	require.NotNil(t, prod.Constraints)
	assert.Equal(t, constraint.And, prod.Constraints.Combinator)
	assert.True(t, constraint.Evaluate(prod.Constraints, constraint.Context{"country": "CA"}))
	assert.False(t, constraint.Evaluate(prod.Constraints, constraint.Context{"country": "DE"}))

	search := byKey["search-ranking"]
	require.NotNil(t, search)
	require.Len(t, search.Variants, 2)
	assert.Equal(t, "control", search.Variants[0].Key)
	assert.Equal(t, search.ID, data.Experiments[0].FlagID)
}

func TestLoadFixtures_StableIDs(t *testing.T) {
	t.Parallel()

	a, err := loadFixtures(defaultFixtures)
	require.NoError(t, err)
	b, err := loadFixtures(defaultFixtures)
	require.NoError(t, err)

	for i := range a.Flags {
		assert.Equal(t, a.Flags[i].ID, b.Flags[i].ID)
	}
	assert.Equal(t, a.Experiments[0].ID, b.Experiments[0].ID)
	assert.NotEqual(t, a.Flags[0].ID, a.Flags[1].ID)
}

func TestLoadFixtures_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		doc  string
	}{
		{"unknown type", "flags:\n  - key: a\n    type: MULTI\n"},
		{"missing key", "flags:\n  - type: BOOLEAN\n"},
		{"duplicate flag", "flags:\n  - key: a\n    type: BOOLEAN\n  - key: a\n    type: BOOLEAN\n"},
		{"unknown environment", "flags:\n  - key: a\n    type: BOOLEAN\n    targets:\n      - environment: staging\n"},
		{"percentage out of range", "flags:\n  - key: a\n    type: PERCENTAGE\n    targets:\n      - percentage: 120\n"},
		{"negative weight", "flags:\n  - key: a\n    type: VARIANT\n    variants:\n      - key: x\n        weight: -1\n"},
		{"experiment on unknown flag", "experiments:\n  - flag: ghost\n    name: e\n"},
		{"not yaml", "flags: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := loadFixtures([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadFixtures_TargetDefaults(t *testing.T) {
	t.Parallel()

	data, err := loadFixtures([]byte("flags:\n  - key: a\n    type: PERCENTAGE\n    targets:\n      - {}\n"))
	require.NoError(t, err)
	require.Len(t, data.Flags[0].Targets, 1)
	tgt := data.Flags[0].Targets[0]
	assert.Equal(t, domain.DefaultPercentage, tgt.Percentage)
	assert.Nil(t, tgt.Environment)
	assert.Nil(t, tgt.Constraints)
	assert.Equal(t, "a", data.Flags[0].Name)
}
