// Package fmtio provides the kernel's formatted I/O: Snprintf/Sscanf
// wrap Go's fmt package directly (the idiomatic replacement for the
// black-box snprintf/sscanf named in the ported contract), and Printf
// formats into a process-wide scratch buffer before writing the result
// through an ioport.Port one byte at a time, under the same
// preempt-disable + interrupt-disable discipline the original reserves
// for console output.
package fmtio

import (
	"fmt"
	"sync"

	"github.com/go-rtos/microkernel/internal/platform"
	"github.com/go-rtos/microkernel/internal/sched"
	"github.com/go-rtos/microkernel/ioport"
)

// ScratchSize bounds a single Printf call's formatted output.
const ScratchSize = 256

// Snprintf formats into a string, truncated to n bytes. It wraps
// fmt.Sprintf and cuts the result to at most n bytes itself.
func Snprintf(n int, format string, args ...any) string {
	s := fmt.Sprintf(format, args...)
	if len(s) > n {
		s = s[:n]
	}
	return s
}

// Sscanf wraps fmt.Sscanf directly; unlike the C original, a parse that
// overflows its destination type returns an error from Go's fmt package
// instead of silently truncating.
func Sscanf(str, format string, args ...any) (int, error) {
	return fmt.Sscanf(str, format, args...)
}

// Writer serializes formatted output to a single ioport.Port. A kernel
// thread calling Printf disables preemption and interrupts first,
// mirroring the original's console-output discipline; that alone only
// keeps other kernel threads from interleaving, since — like
// internal/timer's tick source and internal/uart's RX producer — a
// simulated-interrupt goroutine calling Printf (e.g. a panic handler
// logging from outside any kernel thread) runs genuinely concurrently
// with whichever thread holds the CPU token. mu is the real exclusion
// that also covers that case.
type Writer struct {
	s      *sched.Scheduler
	bridge *platform.Bridge
	port   ioport.Port

	mu      sync.Mutex
	scratch [ScratchSize]byte
}

// NewWriter binds formatted output to port.
func NewWriter(s *sched.Scheduler, bridge *platform.Bridge, port ioport.Port) *Writer {
	return &Writer{s: s, bridge: bridge, port: port}
}

// Printf formats into the scratch buffer and writes the result through
// the bound port a byte at a time.
func (w *Writer) Printf(format string, args ...any) {
	w.s.PreemptDisable()
	im := w.bridge.IntrSave()
	w.mu.Lock()

	n := copy(w.scratch[:], fmt.Sprintf(format, args...))
	for i := 0; i < n; i++ {
		_ = w.port.Write(w.scratch[i])
	}

	w.mu.Unlock()
	w.bridge.IntrRestore(im)
	w.s.PreemptEnable()
}
