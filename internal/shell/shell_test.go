package shell_test

import (
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-rtos/microkernel/internal/shell"
)

// fakeIO feeds a fixed byte sequence to Getc and records everything
// written via Printf, for driving Shell.Run deterministically in tests.
type fakeIO struct {
	mu      sync.Mutex
	in      []byte
	pos     int
	out     strings.Builder
	blocked chan struct{}
}

func newFakeIO(input string) *fakeIO {
	return &fakeIO{in: []byte(input), blocked: make(chan struct{})}
}

func (f *fakeIO) Getc() (byte, error) {
	f.mu.Lock()
	if f.pos < len(f.in) {
		b := f.in[f.pos]
		f.pos++
		f.mu.Unlock()
		return b, nil
	}
	f.mu.Unlock()

	select {}
}

func (f *fakeIO) Printf(format string, args ...any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fmt.Fprintf(&f.out, format, args...)
}

func (f *fakeIO) output() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.out.String()
}

func (f *fakeIO) drained() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pos >= len(f.in)
}

func runShell(t *testing.T, input string) (*shell.Registry, *fakeIO) {
	t.Helper()
	reg := shell.NewRegistry(newTestScheduler(t))
	io := newFakeIO(input)
	sh := shell.New(reg, io)
	go sh.Run()

	deadline := time.Now().Add(2 * time.Second)
	for !io.drained() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	return reg, io
}

func TestShellDispatchesRegisteredCommand(t *testing.T) {
	reg := shell.NewRegistry(newTestScheduler(t))
	var gotArgs []string
	require.NoError(t, reg.Register(shell.NewCommand("echo", func(io shell.IO, args []string) {
		gotArgs = args
		io.Printf("ok")
	}, "echo [args]", "echo arguments", "")))

	io := newFakeIO("echo hi there\n")
	sh := shell.New(reg, io)
	go sh.Run()

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(io.output(), "ok") && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	require.Equal(t, []string{"echo", "hi", "there"}, gotArgs)
}

func TestShellUnknownCommandReportsNotFound(t *testing.T) {
	_, io := runShell(t, "bogus\n")
	require.Contains(t, io.output(), "bogus: command not found")
}

func TestShellHelpListsCommands(t *testing.T) {
	reg := shell.NewRegistry(newTestScheduler(t))
	require.NoError(t, reg.Register(shell.NewCommand("ping", func(shell.IO, []string) {},
		"ping", "replies pong", "")))

	io := newFakeIO("help\n")
	sh := shell.New(reg, io)
	go sh.Run()

	deadline := time.Now().Add(2 * time.Second)
	for !strings.Contains(io.output(), "ping") && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.Contains(t, io.output(), "replies pong")
	require.Contains(t, io.output(), "help")
	require.Contains(t, io.output(), "history")
}

func TestShellBackspaceErasesLastChar(t *testing.T) {
	reg := shell.NewRegistry(newTestScheduler(t))
	var got []string
	require.NoError(t, reg.Register(shell.NewCommand("echo", func(_ shell.IO, args []string) {
		got = args
	}, "", "", "")))

	// "echoz" then backspace removes the 'z', then enter.
	runShellWithRegistry(t, reg, "echoz\x7f\n")
	require.Equal(t, []string{"echo"}, got)
}

func TestShellHistoryRecallsPreviousLine(t *testing.T) {
	reg := shell.NewRegistry(newTestScheduler(t))
	var calls []string
	require.NoError(t, reg.Register(shell.NewCommand("one", func(_ shell.IO, _ []string) {
		calls = append(calls, "one")
	}, "", "", "")))
	require.NoError(t, reg.Register(shell.NewCommand("two", func(_ shell.IO, _ []string) {
		calls = append(calls, "two")
	}, "", "", "")))

	// Run "one", then recall it with up-arrow and hit enter again.
	runShellWithRegistry(t, reg, "one\n\x1b[A\n")
	require.Equal(t, []string{"one", "one"}, calls)
}

func runShellWithRegistry(t *testing.T, reg *shell.Registry, input string) *fakeIO {
	t.Helper()
	io := newFakeIO(input)
	sh := shell.New(reg, io)
	go sh.Run()

	deadline := time.Now().Add(2 * time.Second)
	for !io.drained() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(20 * time.Millisecond)
	return io
}
