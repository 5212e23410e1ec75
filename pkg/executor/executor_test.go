package executor

import (
	"bytes"
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()

	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestNewCommand(t *testing.T) {
	t.Parallel()

	cmd, err := NewCommand("virtualenv", "--quiet", "/tmp/env")
	require.NoError(t, err)

	assert.Equal(t, "virtualenv", cmd.Program)
	assert.Equal(t, []string{"--quiet", "/tmp/env"}, cmd.Args)
	assert.Equal(t, "virtualenv --quiet /tmp/env", cmd.String())
}

func TestNewCommand_Empty(t *testing.T) {
	t.Parallel()

	_, err := NewCommand()
	require.ErrorIs(t, err, ErrEmptyCommand)

	_, err = NewCommand("")
	require.ErrorIs(t, err, ErrEmptyCommand)
}

func TestExecRunner_CapturesOutput(t *testing.T) {
	t.Parallel()
	requireShell(t)

	var live bytes.Buffer

	res, err := NewExecRunner().Run(context.Background(), Command{
		Program: "sh",
		Args:    []string{"-c", "echo out; echo err 1>&2"},
		Stdout:  &live,
	})
	require.NoError(t, err)

	assert.Equal(t, "out\n", res.Stdout)
	assert.Equal(t, "err\n", res.Stderr)
	assert.Equal(t, 0, res.ExitCode)
	assert.Equal(t, "out\n", live.String())
}

func TestExecRunner_NonZeroExit(t *testing.T) {
	t.Parallel()
	requireShell(t)

	res, err := NewExecRunner().Run(context.Background(), Command{
		Program: "sh",
		Args:    []string{"-c", "exit 3"},
	})
	require.Error(t, err)
	require.NotNil(t, res)

	assert.Equal(t, 3, res.ExitCode)
}

func TestExecRunner_EnvAndDir(t *testing.T) {
	t.Parallel()
	requireShell(t)

	dir := t.TempDir()

	res, err := NewExecRunner().Run(context.Background(), Command{
		Program: "sh",
		Args:    []string{"-c", "echo $VENVIFY_TEST; pwd"},
		Dir:     dir,
		Env:     map[string]string{"VENVIFY_TEST": "hello"},
	})
	require.NoError(t, err)

	assert.Contains(t, res.Stdout, "hello\n")
	assert.Contains(t, res.Stdout, dir)
}

func TestExecRunner_MissingProgram(t *testing.T) {
	t.Parallel()

	res, err := NewExecRunner().Run(context.Background(), Command{Program: "definitely-not-a-real-binary-xyz"})
	require.Error(t, err)
	assert.Equal(t, exitCodeUnknown, res.ExitCode)
}

func TestExecRunner_EmptyProgram(t *testing.T) {
	t.Parallel()

	_, err := NewExecRunner().Run(context.Background(), Command{})
	require.ErrorIs(t, err, ErrEmptyCommand)
}
