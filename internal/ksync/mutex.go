// Package ksync provides the kernel's own mutex and condition variable,
// built directly on internal/sched's preempt-disable/sleep/wake
// primitives rather than on sync.Mutex/sync.Cond. The rest of the
// kernel — including internal/alloc's heap lock and internal/shell's
// command registry lock — is built on these so every blocking operation
// in the system goes through the one scheduler, keeping thread state
// and the ready queues consistent.
package ksync

import (
	"errors"

	"github.com/go-rtos/microkernel/internal/sched"
)

// ErrBusy is returned by Mutex.TryLock when the mutex is already held.
var ErrBusy = errors.New("ksync: mutex busy")

// waiter binds a blocked thread to a mutex's wait list. It
// is heap-allocated per call (the original stack-allocates it; Go has
// no equivalent of "allocated from the stack and attached for the
// duration of the wait", so a short-lived struct is the direct
// translation) and only ever touched with the scheduler's
// preemption disabled.
type waiter struct {
	thread *sched.Thread
}

// Mutex is a single-owner, non-reentrant lock with FIFO wakeup order.
// Acquiring a contended mutex sleeps the calling thread; the scheduler
// decides which thread runs next, so lock/unlock never busy-wait.
type Mutex struct {
	s        *sched.Scheduler
	locked   bool
	owner    *sched.Thread
	waiters  []*waiter
}

// NewMutex creates an unlocked mutex driven by the given scheduler.
func NewMutex(s *sched.Scheduler) *Mutex {
	return &Mutex{s: s}
}

func (m *Mutex) setOwner(t *sched.Thread) {
	if m.locked || m.owner != nil {
		panic("ksync: mutex: setOwner on an already-owned mutex")
	}
	m.owner = t
	m.locked = true
}

func (m *Mutex) clearOwner(self *sched.Thread) {
	if m.owner != self {
		panic("ksync: mutex: unlock called by non-owner")
	}
	m.owner = nil
	m.locked = false
}

// Lock blocks until the mutex is acquired by the calling thread.
func (m *Mutex) Lock() {
	self := m.s.Self()

	m.s.PreemptDisable()

	if m.locked {
		w := &waiter{thread: self}
		m.waiters = append(m.waiters, w)

		for m.locked {
			m.s.Sleep()
		}

		for i, ww := range m.waiters {
			if ww == w {
				m.waiters = append(m.waiters[:i], m.waiters[i+1:]...)
				break
			}
		}
	}

	m.setOwner(self)
	m.s.PreemptEnable()
}

// TryLock attempts to acquire the mutex without blocking. Returns
// ErrBusy if it is already held.
func (m *Mutex) TryLock() error {
	m.s.PreemptDisable()
	defer m.s.PreemptEnable()

	if m.locked {
		return ErrBusy
	}
	m.setOwner(m.s.Self())
	return nil
}

// Unlock releases the mutex and wakes the longest-waiting blocked
// thread, if any. It is a programming error to unlock a mutex the
// calling thread does not own.
func (m *Mutex) Unlock() {
	self := m.s.Self()

	m.s.PreemptDisable()
	m.clearOwner(self)

	if len(m.waiters) > 0 {
		m.s.Wake(m.waiters[0].thread)
	}

	m.s.PreemptEnable()
}
