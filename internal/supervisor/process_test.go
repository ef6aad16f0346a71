package supervisor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danmuck/codetango/internal/testutil/testlog"
)

func TestExecLauncherReportsExitCode(t *testing.T) {
	testlog.Start(t)
	p, err := ExecLauncher{}.Launch("program1", []string{"sh", "-c", "exit 3"}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	code, err := p.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.False(t, p.Alive())
}

func TestExecLauncherPassesEnvironment(t *testing.T) {
	testlog.Start(t)
	p, err := ExecLauncher{}.Launch("program1",
		[]string{"sh", "-c", `test "$CODETANGO_SOCKET" = /tmp/x.sock`},
		[]string{"CODETANGO_SOCKET=/tmp/x.sock"})
	require.NoError(t, err)

	code, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, code)
}

func TestExecLauncherRejectsBadCommands(t *testing.T) {
	testlog.Start(t)
	_, err := ExecLauncher{}.Launch("program1", nil, nil)
	require.ErrorIs(t, err, ErrEmptyCommand)

	_, err = ExecLauncher{}.Launch("program2", []string{"/nonexistent/codetango-participant"}, nil)
	require.Error(t, err)
}

func TestTerminateStopsRunningProcess(t *testing.T) {
	testlog.Start(t)
	p, err := ExecLauncher{}.Launch("program1", []string{"sleep", "30"}, nil)
	require.NoError(t, err)
	require.True(t, p.Alive())

	require.NoError(t, p.Terminate(200*time.Millisecond))
	assert.False(t, p.Alive())
	code, err := p.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 128+15, code)

	require.NoError(t, p.Terminate(200*time.Millisecond))
}

func TestTerminateKillsAfterGrace(t *testing.T) {
	testlog.Start(t)
	p, err := ExecLauncher{}.Launch("program1", []string{"sh", "-c", `trap "" TERM; while :; do sleep 1; done`}, nil)
	require.NoError(t, err)
	time.Sleep(100 * time.Millisecond)

	start := time.Now()
	require.NoError(t, p.Terminate(150*time.Millisecond))
	assert.False(t, p.Alive())
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond)
}

func TestWaitHonorsContext(t *testing.T) {
	testlog.Start(t)
	p, err := ExecLauncher{}.Launch("program1", []string{"sleep", "30"}, nil)
	require.NoError(t, err)
	defer p.Terminate(100 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = p.Wait(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, p.Alive())
}
