package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// execute runs the root command with args and returns what it wrote.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	require.NotNil(t, cmd)
	assert.Equal(t, "ddnsq", cmd.Use)
	assert.Contains(t, cmd.Long, "quorum")
}

func TestCommandPresence(t *testing.T) {
	cmd := NewRootCommand()
	commands := []string{"serve", "keygen", "config", "verifiers", "snapshot", "aggregate", "authority", "finalize", "route", "epoch", "test"}

	for _, cmdName := range commands {
		t.Run(cmdName, func(t *testing.T) {
			subCmd, _, err := cmd.Find([]string{cmdName})
			require.NoError(t, err, "Command %s should exist", cmdName)
			require.NotNil(t, subCmd)
			assert.Equal(t, cmdName, subCmd.Name())
		})
	}
}

func TestGlobalFlags(t *testing.T) {
	cmd := NewRootCommand()

	verboseFlag := cmd.PersistentFlags().Lookup("verbose")
	require.NotNil(t, verboseFlag)
	assert.Equal(t, "v", verboseFlag.Shorthand)
	assert.Equal(t, "false", verboseFlag.DefValue)

	formatFlag := cmd.PersistentFlags().Lookup("format")
	require.NotNil(t, formatFlag)
	assert.Equal(t, "text", formatFlag.DefValue)

	require.NotNil(t, cmd.PersistentFlags().Lookup("config"))
}

func TestOfflineFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, path := range [][]string{
		{"config", "init"},
		{"verifiers", "show"},
		{"snapshot", "submit"},
		{"aggregate", "list"},
		{"authority", "init"},
		{"finalize"},
		{"route", "list"},
		{"epoch"},
	} {
		sub, _, err := cmd.Find(path)
		require.NoError(t, err, "%v", path)
		for _, name := range []string{"db", "key", "gate-key", "tick"} {
			assert.NotNil(t, sub.Flag(name), "%v should have --%s", path, name)
		}
	}
}

func TestFinalizeRequiredFlags(t *testing.T) {
	_, err := execute(t, "finalize", "--db", t.TempDir()+"/x.db", "--tick", "1", "--epoch", "0")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
}

func TestConfigUpdateDefaults(t *testing.T) {
	cmd := NewRootCommand()
	update, _, err := cmd.Find([]string{"config", "update"})
	require.NoError(t, err)

	epochLen := update.Flags().Lookup("epoch-len")
	require.NotNil(t, epochLen)
	assert.Equal(t, "100", epochLen.DefValue)
	assert.Equal(t, "86400", update.Flags().Lookup("ttl-max").DefValue)
}

func TestServeFlags(t *testing.T) {
	cmd := NewRootCommand()
	serve, _, err := cmd.Find([]string{"serve"})
	require.NoError(t, err)
	assert.NotNil(t, serve.Flags().Lookup("addr"))
}

func TestInvalidFormat(t *testing.T) {
	_, err := execute(t, "--format", "xml", "epoch", "--tick", "1")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, err.Error(), "invalid format")
}
