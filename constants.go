package microkernel

import (
	"github.com/go-rtos/microkernel/internal/sched"
	"github.com/go-rtos/microkernel/internal/shell"
)

// Re-exported fixed resource budgets, unchanged from distilled spec
// section 6: the scheduler's priority range and minimum stack, and the
// shell engine's history depth, line length, escape buffer, command-name
// hash table, and argument-count limits. These are compile-time array
// sizes in their owning packages, not runtime-configurable; they are
// re-exported here so callers can read the kernel's build-time budgets
// without importing internal packages.
const (
	NumPriorities = sched.NumPriorities
	IdlePriority  = sched.IdlePriority
	MinPriority   = sched.MinPriority
	MaxPriority   = sched.MaxPriority
	MinStackSize  = sched.MinStackSize

	HistorySize   = shell.HistorySize
	LineMaxSize   = shell.LineMaxSize
	EscSeqMaxSize = shell.EscSeqMaxSize
	HashTableSize = shell.HashTableSize
	MaxArgs       = shell.MaxArgs

	// TickHz is the default tick source frequency (THREAD_SCHED_FREQ in
	// the distilled spec).
	TickHz = 100

	// DefaultUARTBufferSize is the default capacity of the UART reader's
	// circular buffer, a power of two as internal/cbuf requires.
	DefaultUARTBufferSize = 256

	// DefaultArenaSize is the default heap arena size handed to
	// internal/alloc.
	DefaultArenaSize = 64 * 1024
)
