package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"serve", "migrate", "scan", "watch", "create-user", "reset-password", "report", "reextract", "debug-ocr"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestCommandFlags(t *testing.T) {
	require.NotNil(t, serveCmd.Flags().Lookup("addr"))
	require.NotNil(t, rootCmd.Flags().Lookup("addr"), "serve is the default command")

	for _, c := range []string{"scan", "watch"} {
		cmd, _, err := rootCmd.Find([]string{c})
		require.NoError(t, err)
		for _, f := range []string{"workers", "save", "user"} {
			assert.NotNil(t, cmd.Flags().Lookup(f), "%s --%s", c, f)
		}
	}
	assert.Equal(t, "false", createUserCmd.Flags().Lookup("admin").DefValue)
}
