package cli

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestWindowFlags(t *testing.T) {
	w := windowFlags{source: "Meta", days: 14, from: "2025-10-01", to: "2025-10-15"}
	got, err := w.window()
	require.NoError(t, err)
	require.Equal(t, "Meta", got.Source)
	require.Equal(t, 14, got.Days)
	require.True(t, got.From.Equal(time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)))
	require.True(t, got.To.Equal(time.Date(2025, 10, 15, 0, 0, 0, 0, time.UTC)))

	empty, err := (&windowFlags{}).window()
	require.NoError(t, err)
	require.Nil(t, empty.From)
	require.Nil(t, empty.To)
}

func TestWindowFlagsRejects(t *testing.T) {
	for name, w := range map[string]windowFlags{
		"negative days": {days: -1},
		"bad from":      {from: "10/01/2025"},
		"bad to":        {to: "2025-13-01"},
		"reversed":      {from: "2025-10-15", to: "2025-10-01"},
	} {
		_, err := w.window()
		require.Error(t, err, name)
	}
}

func TestCommandsRegistered(t *testing.T) {
	want := []string{"backfill", "export", "migrate", "report", "run", "scenarios", "serve", "simulate", "version"}
	for _, name := range want {
		cmd, _, err := rootCmd.Find([]string{name})
		require.NoError(t, err, name)
		require.Equal(t, name, cmd.Name())
	}

	forecast, _, err := rootCmd.Find([]string{"simulate", "forecast"})
	require.NoError(t, err)
	require.Equal(t, "forecast", forecast.Name())
	require.NotNil(t, simulateCmd.Flags().Lookup("set"))
}
