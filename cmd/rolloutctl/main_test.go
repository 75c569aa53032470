package main

import (
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCmd_Subcommands(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	names := make([]string, 0, len(root.Commands()))
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	assert.ElementsMatch(t, []string{"migrate", "aggregate", "backfill", "status", "warm-cache"}, names)
}

func TestBackfillCmd_RequiresRange(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	cmd, _, err := root.Find([]string{"backfill"})
	require.NoError(t, err)

	for _, name := range []string{"start", "end"} {
		f := cmd.Flags().Lookup(name)
		require.NotNil(t, f, name)
		assert.Equal(t, []string{"true"}, f.Annotations[cobra.BashCompOneRequiredFlag], name)
	}
	assert.NotNil(t, cmd.Flags().Lookup("enqueue"))
}

func TestAggregateCmd_Flags(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	cmd, _, err := root.Find([]string{"aggregate"})
	require.NoError(t, err)

	date := cmd.Flags().Lookup("date")
	require.NotNil(t, date)
	assert.Equal(t, "", date.DefValue)
	enqueue := cmd.Flags().Lookup("enqueue")
	require.NotNil(t, enqueue)
	assert.Equal(t, "false", enqueue.DefValue)
}
