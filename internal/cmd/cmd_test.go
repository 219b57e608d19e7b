package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/palaver-dev/palaver/internal/scheduler"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// executeCommand runs a cobra command with args and returns captured output
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err = root.Execute()
	return buf.String(), err
}

func TestRootCommand(t *testing.T) {
	require.NotNil(t, rootCmd)
	require.Equal(t, "palaver", rootCmd.Use)

	// Check for expected subcommands (compare by Name(), not Use which includes args)
	expectedCmds := []string{"simulate", "serve", "config"}
	cmdMap := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}

	for _, expected := range expectedCmds {
		require.True(t, cmdMap[expected], "expected subcommand %q not found", expected)
	}
}

func TestConfigPathCommand(t *testing.T) {
	output, err := executeCommand(rootCmd, "config", "path")
	require.NoError(t, err)
	_ = output
}

func TestSimulateCommand(t *testing.T) {
	_, err := executeCommand(rootCmd, "simulate", "--prompt", "Quick round for testing")
	require.NoError(t, err)
}

func TestCastSpeaksOnce(t *testing.T) {
	script := &cast{personas: map[string]*persona{
		"a": {priority: 2, urgency: scheduler.UrgencyHigh, line: "first"},
	}}
	msg := scheduler.Message{Sender: "user", Content: "hello"}

	interest, err := script.AssessInterest(t.Context(), "a", msg)
	require.NoError(t, err)
	require.True(t, interest.WantsToSpeak)
	require.Equal(t, scheduler.UrgencyHigh, interest.Urgency)

	line, err := script.Generate(t.Context(), "a", msg)
	require.NoError(t, err)
	require.Equal(t, "first", line)

	// Once spoken the persona declines further turns
	interest, err = script.AssessInterest(t.Context(), "a", msg)
	require.NoError(t, err)
	require.False(t, interest.WantsToSpeak)

	// Unknown participants never speak
	interest, err = script.AssessInterest(t.Context(), "ghost", msg)
	require.NoError(t, err)
	require.False(t, interest.WantsToSpeak)

	_, err = script.Generate(t.Context(), "ghost", msg)
	require.Error(t, err)
	require.True(t, strings.Contains(err.Error(), "ghost"))
}
