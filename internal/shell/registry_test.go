package shell_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/go-rtos/microkernel/internal/kiface"
	"github.com/go-rtos/microkernel/internal/platform"
	"github.com/go-rtos/microkernel/internal/sched"
	"github.com/go-rtos/microkernel/internal/shell"
)

func newTestScheduler(t *testing.T) *sched.Scheduler {
	t.Helper()
	bridge := platform.New(nil)
	return sched.New(bridge, nil, kiface.NoOpObserver{})
}

func newRegistry(t *testing.T) *shell.Registry {
	t.Helper()
	return shell.NewRegistry(newTestScheduler(t))
}

func noopFn(shell.IO, []string) {}

func TestRegisterRejectsInvalidName(t *testing.T) {
	r := newRegistry(t)
	require.ErrorIs(t, r.Register(shell.NewCommand("bad name", noopFn, "", "", "")), shell.ErrInval)
	require.ErrorIs(t, r.Register(shell.NewCommand("", noopFn, "", "", "")), shell.ErrInval)
}

func TestRegisterRejectsDuplicateName(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.Register(shell.NewCommand("foo", noopFn, "", "", "")))
	require.ErrorIs(t, r.Register(shell.NewCommand("foo", noopFn, "", "", "")), shell.ErrExist)
}

func TestLookupFindsRegisteredCommand(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.Register(shell.NewCommand("echo", noopFn, "", "", "")))
	require.Nil(t, r.Lookup("missing"))
	require.NotNil(t, r.Lookup("echo"))
	require.Equal(t, "echo", r.Lookup("echo").Name())
}

func TestCompleteSingleMatch(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.Register(shell.NewCommand("echo", noopFn, "", "", "")))
	require.NoError(t, r.Register(shell.NewCommand("help", noopFn, "", "", "")))

	cmd, size, single, ok := r.Complete("ec")
	require.True(t, ok)
	require.True(t, single)
	require.Equal(t, "echo", cmd.Name())
	require.Equal(t, len("echo"), size)
}

func TestCompleteMultipleMatchesReturnsCommonPrefix(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.Register(shell.NewCommand("list", noopFn, "", "", "")))
	require.NoError(t, r.Register(shell.NewCommand("listen", noopFn, "", "", "")))

	cmd, size, single, ok := r.Complete("li")
	require.True(t, ok)
	require.False(t, single)
	require.Equal(t, "list", cmd.Name())
	require.Equal(t, len("list"), size)

	require.ElementsMatch(t, []string{"list", "listen"}, r.Matches("li"))
}

func TestCompleteNoMatch(t *testing.T) {
	r := newRegistry(t)
	require.NoError(t, r.Register(shell.NewCommand("echo", noopFn, "", "", "")))
	_, _, _, ok := r.Complete("zz")
	require.False(t, ok)
}
