package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	// Collect subcommand names.
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	// Verify expected subcommands are registered.
	expected := []string{"quakes", "summary", "threat", "legend", "sync", "runs", "serve", "export", "migrate", "monitor"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "quakemap", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestRootCommand_ConfigFlag(t *testing.T) {
	flag := rootCmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag, "root command should have --config flag")
	assert.Equal(t, "", flag.DefValue)
}

func TestQuakesCommand_Flags(t *testing.T) {
	for _, name := range []string{"limit", "country", "ocean", "recent", "min-mag", "stored", "format"} {
		assert.NotNil(t, quakesCmd.Flags().Lookup(name), "quakes should have --%s flag", name)
	}
	assert.Equal(t, "table", quakesCmd.Flags().Lookup("format").DefValue)
}

func TestSummaryCommand_Flags(t *testing.T) {
	flag := summaryCmd.Flags().Lookup("format")
	require.NotNil(t, flag)
	assert.Equal(t, "table", flag.DefValue)
	assert.NotNil(t, summaryCmd.Flags().Lookup("top"))
}

func TestThreatCommand_Flags(t *testing.T) {
	assert.NotNil(t, threatCmd.Flags().Lookup("city"))
	assert.NotNil(t, threatCmd.Flags().Lookup("country"))
}

func TestSyncCommand_Flags(t *testing.T) {
	flag := syncCmd.Flags().Lookup("interval")
	require.NotNil(t, flag, "sync command should have --interval flag")
	assert.Equal(t, "0s", flag.DefValue)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestExportCommand_Flags(t *testing.T) {
	flag := exportCmd.Flags().Lookup("format")
	require.NotNil(t, flag)
	assert.Equal(t, "xlsx", flag.DefValue)
	assert.NotNil(t, exportCmd.Flags().Lookup("out"))
}

func TestLegendCommand_Flags(t *testing.T) {
	assert.NotNil(t, legendCmd.Flags().Lookup("scheme"))
}

func TestMonitorCommand_Flags(t *testing.T) {
	flag := monitorCmd.Flags().Lookup("watch")
	require.NotNil(t, flag)
	assert.Equal(t, "false", flag.DefValue)
	assert.NotNil(t, monitorCmd.Flags().Lookup("format"))
}
