// Package timer implements software timers driven by a periodic tick:
// a monotonic, wraparound-aware tick counter, a list of pending timers
// sorted by scheduled time, and a dedicated thread that runs expired
// callbacks. Ticks are reported by whatever simulated interrupt source
// the kernel wires up (see the root package's Boot), exactly as the
// original's timer_report_tick is called from a hardware timer ISR.
package timer

import (
	"sync"
	"time"

	"github.com/go-rtos/microkernel/internal/kiface"
	"github.com/go-rtos/microkernel/internal/ksync"
	"github.com/go-rtos/microkernel/internal/platform"
	"github.com/go-rtos/microkernel/internal/sched"
)

// ThreadStackSize is the stack size used for the timer thread.
const ThreadStackSize = 4096

// A timer may only be safely scheduled when not already scheduled;
// once its callback runs it is no longer considered scheduled and may
// be rescheduled from within that very callback, which is how
// periodic timers are built on top of this package. Scheduling an
// already-scheduled timer is a programming error and panics (see
// Schedule) rather than returning an error, matching the original's
// assert(!timer_scheduled(timer)).

// timerThreshold splits tick-delta space between "future" and "past".
// Ticks are a 64-bit wraparound counter; any delta past this threshold
// is treated as having wrapped around to the past instead of genuinely
// being that far in the future.
const timerThreshold = ^uint64(0) / 2

// TicksExpired reports whether ticks is strictly in the past relative
// to ref, accounting for wraparound.
func TicksExpired(ticks, ref uint64) bool {
	return (ticks - ref) > timerThreshold
}

// TicksOccurred reports whether ticks is at or before ref.
func TicksOccurred(ticks, ref uint64) bool {
	return ticks == ref || TicksExpired(ticks, ref)
}

// Timer is a single software timer. The zero value, after Init, is
// ready to be scheduled.
type Timer struct {
	ticks     uint64
	fn        func(arg any)
	arg       any
	scheduled bool
}

// Init prepares a timer to be scheduled, binding the callback that
// will run (in the timer thread's context) once it expires.
func Init(fn func(arg any), arg any) *Timer {
	return &Timer{fn: fn, arg: arg}
}

// Manager owns the tick counter, the pending-timer list, and the
// dedicated thread that runs expired callbacks.
type Manager struct {
	s      *sched.Scheduler
	bridge *platform.Bridge
	obs    kiface.Observer

	listMu  *ksync.Mutex
	pending []*Timer

	// tickMu guards ticks/listEmpty/wakeupTicks, which are written by
	// whatever goroutine reports ticks — genuinely concurrent with
	// whichever thread currently holds the scheduler's CPU token, since
	// tick reporting plays the role of a hardware interrupt here. It is
	// a plain sync.Mutex rather than ksync.Mutex deliberately: the tick
	// source has no kernel thread identity to block on, so it cannot use
	// a lock built on Scheduler.Self()/Sleep/Wake. The platform bridge's
	// interrupt mask is a logical flag a kernel thread can check ("are
	// interrupts masked right now"), not a real exclusion mechanism, so
	// it cannot serialize this the way disabling interrupts does on
	// real hardware.
	tickMu      sync.Mutex
	ticks       uint64
	listEmpty   bool
	wakeupTicks uint64

	// tickPeriodNs converts a tick delta to nanoseconds for
	// kiface.Observer.ObserveTimerFired, whose contract is nanoseconds
	// regardless of how coarse the kernel's own tick rate is.
	tickPeriodNs uint64

	thread *sched.Thread
}

// New creates a timer manager and spawns its dedicated thread at the
// lowest application priority (above idle; threads spawned at
// MinPriority share its band):
// per original_source/src/timer.c, the surviving thread_create call
// uses THREAD_MIN_PRIORITY, with THREAD_MAX_PRIORITY kept only as a
// commented-out alternative — read as a deliberate, settled choice. A
// timer callback that must run ahead of ordinary application threads
// should wake a dedicated worker of its own rather than rely on the
// timer thread's priority.
func New(s *sched.Scheduler, bridge *platform.Bridge, tickHz int, obs kiface.Observer) (*Manager, error) {
	if obs == nil {
		obs = kiface.NoOpObserver{}
	}
	if tickHz <= 0 {
		tickHz = 1
	}
	m := &Manager{
		s:            s,
		bridge:       bridge,
		obs:          obs,
		listMu:       ksync.NewMutex(s),
		listEmpty:    true,
		tickPeriodNs: uint64(time.Second / time.Duration(tickHz)),
	}
	th, err := s.Spawn("timer", sched.MinPriority, ThreadStackSize, m.run, nil)
	if err != nil {
		return nil, err
	}
	m.thread = th
	return m, nil
}

// Now returns the current tick count.
func (m *Manager) Now() uint64 {
	m.tickMu.Lock()
	defer m.tickMu.Unlock()
	return m.ticks
}

// Tick advances the tick counter by one and wakes the timer thread if
// a pending timer has just become due. Called by the kernel's tick
// source, which plays the role the hardware timer ISR plays in the
// original — never by application code directly.
func (m *Manager) Tick() {
	m.tickMu.Lock()
	m.ticks++
	now := m.ticks
	pending := !m.listEmpty && TicksOccurred(m.wakeupTicks, now)
	m.tickMu.Unlock()

	if pending {
		m.s.Wake(m.thread)
	}
}

// GetTime returns a timer's scheduled time, in ticks.
func (m *Manager) GetTime(t *Timer) uint64 {
	m.listMu.Lock()
	defer m.listMu.Unlock()
	return t.ticks
}

// Schedule arranges for t's callback to run at or after the given
// absolute tick. If ticks denotes the past, the callback runs at the
// next opportunity the timer thread gets the CPU. Scheduling an
// already-scheduled timer is a programming error and panics, mirroring
// the original's assert(!timer_scheduled(timer)).
func (m *Manager) Schedule(t *Timer, ticks uint64) {
	m.listMu.Lock()

	if t.scheduled {
		m.listMu.Unlock()
		panic("timer: Schedule called on an already-scheduled timer")
	}

	t.ticks = ticks
	t.scheduled = true

	idx := 0
	for idx < len(m.pending) {
		if !TicksExpired(m.pending[idx].ticks, ticks) {
			break
		}
		idx++
	}
	m.pending = append(m.pending, nil)
	copy(m.pending[idx+1:], m.pending[idx:])
	m.pending[idx] = t

	first := m.pending[0]

	m.tickMu.Lock()
	m.listEmpty = false
	m.wakeupTicks = first.ticks
	m.tickMu.Unlock()

	m.listMu.Unlock()
}

// run is the timer thread's body: wait for the earliest pending timer
// to become due, then run every timer that has since expired.
func (m *Manager) run(any) {
	for {
		m.s.PreemptDisable()

		var now uint64
		for {
			m.tickMu.Lock()
			now = m.ticks
			due := !m.listEmpty && TicksOccurred(m.wakeupTicks, now)
			m.tickMu.Unlock()

			if due {
				break
			}
			m.s.Sleep()
		}

		m.s.PreemptEnable()

		m.processList(now)
	}
}

func (m *Manager) processList(now uint64) {
	m.listMu.Lock()

	for len(m.pending) > 0 {
		t := m.pending[0]
		if !TicksOccurred(t.ticks, now) {
			break
		}

		m.pending = m.pending[1:]
		t.scheduled = false
		m.listMu.Unlock()

		latencyTicks := now - t.ticks
		t.fn(t.arg)
		m.obs.ObserveTimerFired(latencyTicks * m.tickPeriodNs)

		m.listMu.Lock()
	}

	m.tickMu.Lock()
	m.listEmpty = len(m.pending) == 0
	if !m.listEmpty {
		m.wakeupTicks = m.pending[0].ticks
	}
	m.tickMu.Unlock()

	m.listMu.Unlock()
}
