// Package platform models the CPU bridge a bare-metal kernel port would
// otherwise implement against board registers: interrupt mask save/restore,
// IRQ registration, an idle wait, and the single-processor affinity pin
// this kernel's scheduling discipline assumes.
package platform

import (
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/sys/unix"

	"github.com/go-rtos/microkernel/internal/logging"
)

// Mask is an opaque snapshot of the interrupt-enabled flag, returned by
// IntrSave and consumed by IntrRestore.
type Mask bool

// irqHandler pairs a registered vector with its callback and argument.
type irqHandler struct {
	fn  func(arg any)
	arg any
}

// Bridge is the kernel's single CPU bridge. There is exactly one per
// booted kernel; it is not meant to be copied.
type Bridge struct {
	mu          sync.Mutex
	intrEnabled bool
	handlers    map[string]irqHandler
	logger      *logging.Logger
}

// New returns a Bridge with interrupts initially enabled, matching the
// state a real core is in once the boot sequence hands control to the
// scheduler.
func New(logger *logging.Logger) *Bridge {
	if logger == nil {
		logger = logging.Default()
	}
	return &Bridge{
		intrEnabled: true,
		handlers:    make(map[string]irqHandler),
		logger:      logger,
	}
}

// IntrSave disables interrupts and returns the previous state so it can be
// restored later. Nests correctly: disabling an already-disabled bridge is
// harmless and simply returns false again.
func (b *Bridge) IntrSave() Mask {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.intrEnabled
	b.intrEnabled = false
	return Mask(prev)
}

// IntrRestore restores a previously saved interrupt state.
func (b *Bridge) IntrRestore(m Mask) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.intrEnabled = bool(m)
}

// IntrEnabled reports whether interrupts are currently enabled.
func (b *Bridge) IntrEnabled() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.intrEnabled
}

// IntrEnable unconditionally enables interrupts.
func (b *Bridge) IntrEnable() {
	b.mu.Lock()
	b.intrEnabled = true
	b.mu.Unlock()
}

// IntrDisable unconditionally disables interrupts, discarding the previous
// state. Callers that need to nest must use IntrSave/IntrRestore instead.
func (b *Bridge) IntrDisable() {
	b.mu.Lock()
	b.intrEnabled = false
	b.mu.Unlock()
}

// RegisterIRQ associates a vector name with a handler. Vectors in this
// port are logical names ("tick", "uart-rx") rather than NVIC numbers.
func (b *Bridge) RegisterIRQ(vector string, fn func(arg any), arg any) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, exists := b.handlers[vector]; exists {
		return fmt.Errorf("platform: vector %q already registered", vector)
	}
	b.handlers[vector] = irqHandler{fn: fn, arg: arg}
	return nil
}

// Raise invokes the handler registered for vector, if any, in place of a
// real exception entry. The kernel's own simulated interrupt sources (the
// tick goroutine, the UART RX loop) do not go through it: they call
// Scheduler.Tick, Manager.Tick and Reader.Push directly.
func (b *Bridge) Raise(vector string) {
	b.mu.Lock()
	h, ok := b.handlers[vector]
	b.mu.Unlock()
	if !ok {
		return
	}
	h.fn(h.arg)
}

// Idle blocks until wake is signaled, the port's equivalent of executing a
// low-power wait-for-interrupt instruction with interrupts enabled.
func (b *Bridge) Idle(wake <-chan struct{}) {
	<-wake
}

// PinCurrentGoroutine locks the calling goroutine to its OS thread and
// pins that thread to CPU 0, so the whole kernel behaves as a true
// single-processor system regardless of how many cores the host has. It
// must be called once, from the scheduler's dispatch loop, before any
// thread is allowed to run.
func (b *Bridge) PinCurrentGoroutine() error {
	runtime.LockOSThread()

	var set unix.CPUSet
	set.Zero()
	set.Set(0)

	if err := unix.SchedSetaffinity(0, &set); err != nil {
		if b.logger != nil {
			b.logger.Warnf("platform: failed to pin to CPU 0: %v", err)
		}
		return err
	}

	if b.logger != nil {
		b.logger.Debug("platform: dispatch loop pinned to CPU 0")
	}
	return nil
}
