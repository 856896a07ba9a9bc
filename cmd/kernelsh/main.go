// Command kernelsh boots the kernel against the real terminal and hands
// control to its interactive shell until the process receives SIGINT or
// SIGTERM.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-rtos/microkernel"
	"github.com/go-rtos/microkernel/internal/logging"
	"github.com/go-rtos/microkernel/internal/shell"
	"github.com/go-rtos/microkernel/ioport"
)

func main() {
	var (
		verbose   = flag.Bool("v", false, "verbose logging")
		tickHz    = flag.Int("tick-hz", microkernel.TickHz, "scheduler/timer tick frequency")
		arenaSize = flag.Int("arena", microkernel.DefaultArenaSize, "heap arena size in bytes")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	port, err := ioport.NewTerminal(os.Stdin, os.Stdout)
	if err != nil {
		log.Fatalf("failed to put terminal in raw mode: %v", err)
	}

	opts := microkernel.DefaultOptions(port)
	opts.Logger = logger
	opts.TickHz = *tickHz
	opts.ArenaSize = *arenaSize

	metrics := microkernel.NewMetrics()
	opts.Observer = microkernel.NewMetricsObserver(metrics)

	k, err := microkernel.Boot(opts)
	if err != nil {
		port.Close()
		logger.Error("failed to boot kernel", "error", err)
		os.Exit(1)
	}

	registerDemoCommands(k, metrics)

	logger.Info("kernel booted", "tick_hz", *tickHz, "arena_bytes", *arenaSize)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	shutdownDone := make(chan struct{})
	go func() {
		if err := k.Shutdown(); err != nil {
			logger.Error("error shutting down kernel", "error", err)
		}
		close(shutdownDone)
	}()

	select {
	case <-shutdownDone:
	case <-time.After(1 * time.Second):
		logger.Info("shutdown timeout, forcing exit")
	}
}

// registerDemoCommands adds a couple of kernel-introspection commands to
// the shell beyond the built-in help/history, exercising the timer
// manager and heap allocator through the shell the way a real board's
// diagnostic shell would.
func registerDemoCommands(k *microkernel.Kernel, m *microkernel.Metrics) {
	reg := k.Registry()

	must(reg.Register(shell.NewCommand("uptime", func(io shell.IO, _ []string) {
		io.Printf("ticks=%d\n", k.Timers().Now())
	}, "uptime", "print the current tick count", "")))

	must(reg.Register(shell.NewCommand("meminfo", func(io shell.IO, _ []string) {
		snap := m.Snapshot()
		io.Printf("alloc=%d free=%d high_water=%d\n",
			snap.HeapAllocBytes, snap.HeapFreeBytes, snap.HeapHighWaterBytes)
	}, "meminfo", "print heap allocator statistics", "")))

	must(reg.Register(shell.NewCommand("stats", func(io shell.IO, _ []string) {
		snap := m.Snapshot()
		io.Printf("switches=%d voluntary_yields=%d involuntary_yields=%d timers_fired=%d uart_rx=%d uart_dropped=%d\n",
			snap.ThreadSwitches, snap.VoluntaryYields, snap.InvoluntaryYields,
			snap.TimerCallbacksFired, snap.UARTBytesReceived, snap.UARTBytesDropped)
	}, "stats", "print scheduler and I/O metrics", "")))
}

func must(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
