package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecuteCapturesStdout(t *testing.T) {
	res, err := New("sh", "-c", "echo hello").Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "hello\n", res.Stdout)
	assert.Equal(t, 0, res.ExitCode)
}

func TestExecuteNonZeroExit(t *testing.T) {
	res, err := New("sh", "-c", "echo oops >&2; exit 3").Execute(context.Background())
	require.Error(t, err)
	require.NotNil(t, res)
	assert.Equal(t, 3, res.ExitCode)
	assert.Contains(t, res.Stderr, "oops")
	assert.Contains(t, err.Error(), "exited 3")
}

func TestExecuteWorkingDir(t *testing.T) {
	dir := t.TempDir()
	res, err := New("pwd").Execute(context.Background(), WithWorkingDir(dir))
	require.NoError(t, err)
	assert.Contains(t, res.Stdout, dir)
}

func TestExecuteEnv(t *testing.T) {
	res, err := New("sh", "-c", "echo $INCUBATOR_TEST_VAR").Execute(
		context.Background(), WithEnv(map[string]string{"INCUBATOR_TEST_VAR": "wired"}))
	require.NoError(t, err)
	assert.Equal(t, "wired\n", res.Stdout)
}

func TestExecuteStdin(t *testing.T) {
	res, err := New("cat").Execute(context.Background(), WithStdin("piped"))
	require.NoError(t, err)
	assert.Equal(t, "piped", res.Stdout)
}

func TestExecuteContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := New("sleep", "5").Execute(ctx)
	require.Error(t, err)
}

func TestExecuteMissingBinary(t *testing.T) {
	res, err := New("definitely-not-a-binary-xyz").Execute(context.Background())
	require.Error(t, err)
	assert.Equal(t, -1, res.ExitCode)
}
