// Package sched implements the kernel's fixed-priority preemptive
// scheduler: thread creation, per-priority ready queues, voluntary and
// involuntary yields, sleep/wake, and the preemption-disable discipline
// the rest of the kernel (timers, mutexes, condition variables) is built
// on.
//
// Go provides no access to raw stacks or a real interrupt controller, so
// "context switch" here means handing a single CPU token between
// goroutines, one per thread, each gated on its own channel. At most one
// thread's code is ever executing at a time; the scheduler's internal
// mutex plays the role the original's "interrupts disabled" critical
// section plays on a real core. See SPEC_FULL.md section 1.1 for the
// full translation note.
package sched

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-rtos/microkernel/internal/kiface"
	"github.com/go-rtos/microkernel/internal/platform"
)

const (
	// NumPriorities is the number of distinct priority levels, 0..19.
	NumPriorities = 20

	// IdlePriority is reserved for the scheduler's own idle thread.
	IdlePriority = 0

	// MinPriority is the lowest priority an application thread may run at.
	MinPriority = 1

	// MaxPriority is the highest priority an application thread may run at.
	MaxPriority = NumPriorities - 1

	// MinStackSize is the smallest stack an application thread may
	// request. The port does not allocate a real stack for it (Go manages
	// goroutine stacks itself) but still enforces the limit so a thread
	// configured with too small a value fails the way it would on real
	// hardware.
	MinStackSize = 512

	// MaxThreads bounds the number of live threads, standing in for the
	// original's fixed-size static thread table.
	MaxThreads = 256
)

// ErrNoMem is returned by Spawn when the thread table is exhausted.
var ErrNoMem = errors.New("sched: no more thread slots")

// ErrInval is returned by Spawn for an out-of-range priority or an
// undersized stack.
var ErrInval = errors.New("sched: invalid thread parameters")

// Mask is an opaque interrupt-state snapshot, re-exported from platform
// so callers only need to import this package.
type Mask = platform.Mask

// Scheduler is the kernel's single run-queue singleton.
type Scheduler struct {
	mu sync.Mutex

	bridge *platform.Bridge
	logger kiface.Logger
	obs    kiface.Observer

	current      *Thread
	threadCount  int
	preemptLevel int
	yieldFlag    bool

	runq [NumPriorities][]*Thread

	idle       *Thread
	idleWaiter chan struct{}

	started bool
}

// New creates a Scheduler bound to the given CPU bridge. The idle thread
// is created but not yet running; call Start to pin the dispatch loop and
// begin executing threads.
func New(bridge *platform.Bridge, logger kiface.Logger, obs kiface.Observer) *Scheduler {
	if obs == nil {
		obs = kiface.NoOpObserver{}
	}
	s := &Scheduler{bridge: bridge, logger: logger, obs: obs}
	s.mu.Lock()
	idle, err := s.newThreadLocked("idle", IdlePriority, MinStackSize, func(any) {
		for {
			s.idleWait()
		}
	}, nil)
	s.mu.Unlock()
	if err != nil {
		panic(fmt.Sprintf("sched: failed to create idle thread: %v", err))
	}
	s.idle = idle
	return s
}

// Start pins the calling goroutine to CPU 0 and begins dispatching
// threads by handing the CPU token to the first ready thread (or idle).
// It returns as soon as that handoff is made; from then on the threads
// run in their own goroutines (see the root Kernel facade).
func (s *Scheduler) Start() error {
	if err := s.bridge.PinCurrentGoroutine(); err != nil {
		// Not fatal: the kernel still behaves correctly, it just no
		// longer has an enforced single-processor guarantee.
		s.logf("sched: continuing without CPU pinning: %v", err)
	}

	s.mu.Lock()
	s.started = true
	first := s.pickNextLocked()
	s.current = first
	first.cont <- struct{}{}
	s.mu.Unlock()
	return nil
}

func (s *Scheduler) logf(format string, args ...any) {
	if s.logger != nil {
		s.logger.Warnf(format, args...)
	}
}

// Self returns the thread currently holding the CPU. Valid to call only
// from within a thread's own body, never from outside the scheduler's
// goroutines.
func (s *Scheduler) Self() *Thread {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current
}

// Spawn creates a new thread and inserts it into the ready queue at its
// priority. If the new thread outranks the caller, Spawn switches to it
// before returning when preemption is enabled; inside a preempt-disabled
// section the switch happens at the PreemptEnable that brings the level
// back to zero. IdlePriority is reserved for the idle thread and is
// rejected with ErrInval.
func (s *Scheduler) Spawn(name string, priority, stackSize int, fn func(arg any), arg any) (*Thread, error) {
	if priority == IdlePriority {
		return nil, ErrInval
	}
	s.mu.Lock()
	s.preemptDisableLocked()
	t, err := s.newThreadLocked(name, priority, stackSize, fn, arg)
	if err != nil {
		s.preemptEnableLocked()
		s.mu.Unlock()
		return nil, err
	}
	// A freshly spawned thread that outranks the caller sets the yield
	// flag; dropping preemption back to zero here is the checkpoint where
	// that deferred switch actually happens.
	s.preemptEnableLocked()
	s.mu.Unlock()
	return t, nil
}

// newThreadLocked allocates a thread and its ready-queue slot. Must be
// called with mu held. Priority IdlePriority is reserved for the
// scheduler's own idle thread and is never enqueued — pickNextLocked
// falls back to it directly when every other band is empty.
func (s *Scheduler) newThreadLocked(name string, priority, stackSize int, fn func(arg any), arg any) (*Thread, error) {
	if priority < 0 || priority >= NumPriorities {
		return nil, ErrInval
	}
	if stackSize < MinStackSize {
		return nil, ErrInval
	}
	if s.threadCount >= MaxThreads {
		return nil, ErrNoMem
	}

	t := &Thread{
		name:      name,
		priority:  priority,
		stackSize: stackSize,
		state:     StateRunning,
		fn:        fn,
		arg:       arg,
		cont:      make(chan struct{}, 1),
		joined:    make(chan struct{}),
		sched:     s,
	}
	s.threadCount++

	if priority == IdlePriority {
		go s.runThread(t)
		return t, nil
	}

	s.enqueueHeadLocked(t)
	go s.runThread(t)

	return t, nil
}

// runThread is the trampoline: it waits to be handed the CPU for the
// first time, then runs the thread body, then exits. This is the direct
// translation of "forging a stack" for a brand-new thread.
func (s *Scheduler) runThread(t *Thread) {
	<-t.cont
	t.fn(t.arg)
	s.Exit()
}

// pickNextLocked selects the next thread to run: highest non-empty
// priority band, FIFO within the band, falling back to idle.
func (s *Scheduler) pickNextLocked() *Thread {
	for p := NumPriorities - 1; p >= MinPriority; p-- {
		q := s.runq[p]
		if len(q) > 0 {
			next := q[0]
			s.runq[p] = q[1:]
			return next
		}
	}
	return s.idle
}

// requeueCurrentLocked puts the current thread back on the ready queue
// before switching away from it. The idle thread is never queued: it has
// no priority band of its own and pickNextLocked falls back to it
// directly whenever every other band is empty. A preempted or yielding
// thread goes to the tail of its band, behind any already-ready peers,
// matching thread_runq_put_prev in the original.
func (s *Scheduler) requeueCurrentLocked(cur *Thread) {
	if cur == s.idle {
		return
	}
	s.enqueueTailLocked(cur)
}

// enqueueHeadLocked places t at the head of its priority band, so it is
// picked next among same-priority peers. Used whenever a thread becomes
// ready rather than merely continuing to run: a freshly spawned thread
// (newThreadLocked) or one just woken from sleep (Wake), matching
// thread_runq_add in the original.
func (s *Scheduler) enqueueHeadLocked(t *Thread) {
	s.runq[t.priority] = append([]*Thread{t}, s.runq[t.priority]...)
	s.afterEnqueueLocked(t)
}

// enqueueTailLocked places t at the tail of its priority band. Used only
// to put a thread that was already running back on the queue, matching
// thread_runq_put_prev in the original.
func (s *Scheduler) enqueueTailLocked(t *Thread) {
	s.runq[t.priority] = append(s.runq[t.priority], t)
	s.afterEnqueueLocked(t)
}

// afterEnqueueLocked applies the bookkeeping common to both insertion
// ends: flagging a pending preemption if t outranks the current thread,
// and waking anything parked waiting for the ready queue to go non-idle.
func (s *Scheduler) afterEnqueueLocked(t *Thread) {
	if s.current != nil && t.priority > s.current.priority {
		s.yieldFlag = true
	}
	if s.idleWaiter != nil {
		close(s.idleWaiter)
		s.idleWaiter = nil
	}
}

// switchToLocked hands the CPU to next, parking the outgoing thread (if
// any, and if it is not exiting) until it is scheduled again. Must be
// called with mu held; unlocks and relocks internally while the outgoing
// thread waits.
func (s *Scheduler) switchToLocked(next *Thread, outgoingParks bool) {
	prev := s.current
	s.current = next

	if prev != nil && next != prev {
		s.obs.ObserveSwitch(prev.name, next.name)
	}

	next.cont <- struct{}{}

	if prev == nil || next == prev || !outgoingParks {
		return
	}

	s.mu.Unlock()
	<-prev.cont
	s.mu.Lock()
}

// scheduleLocked re-evaluates the ready queue and switches to whatever it
// picks, parking the caller until it runs again. Must be called with mu
// held and the caller's state already updated (Running/re-enqueued, or
// Sleeping, or Dead).
func (s *Scheduler) scheduleLocked() {
	next := s.pickNextLocked()
	s.switchToLocked(next, true)
}

// Yield voluntarily gives up the CPU if preemption is currently enabled.
// It is a no-op inside a preempt-disabled section.
func (s *Scheduler) Yield() {
	s.mu.Lock()
	if s.preemptLevel != 0 {
		s.mu.Unlock()
		return
	}
	cur := s.current
	s.yieldFlag = false
	s.requeueCurrentLocked(cur)
	s.obs.ObserveYield(true)
	s.scheduleLocked()
	s.mu.Unlock()
}

// Sleep marks the calling thread sleeping and switches away. The caller
// must hold preemption disabled at exactly level 1 (mirroring the
// original's assert(runq->preempt_level == 1) in thread_runq_schedule);
// unlike the original, Sleep does not also require interrupts disabled
// first, since the scheduler's own mutex already serializes the state
// transition — the platform interrupt mask is orthogonal here and only
// matters to simulated-interrupt producers like internal/timer and
// internal/uart. Violating the level-1 precondition panics. The thread
// must be woken by another thread or simulated interrupt calling Wake
// before it runs again. While it is parked the preemption level is 0, so
// the thread switched to runs with preemption enabled; the level is back
// at 1 when Sleep returns.
func (s *Scheduler) Sleep() {
	s.mu.Lock()
	if s.preemptLevel != 1 {
		s.mu.Unlock()
		panic("sched: Sleep called outside a preempt-disabled(1) section")
	}
	cur := s.current
	cur.state = StateSleeping
	s.preemptLevel--
	s.scheduleLocked()
	s.preemptLevel++
	s.mu.Unlock()
}

// Wake makes a sleeping thread runnable again. Idempotent: waking an
// already-running thread has no effect. Safe to call from simulated
// interrupt context.
func (s *Scheduler) Wake(t *Thread) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.state != StateSleeping {
		return
	}
	t.state = StateRunning
	s.enqueueHeadLocked(t)
}

// Exit terminates the calling thread. It does not return: the goroutine
// backing the thread unwinds after this call returns control to the
// scheduler's trampoline.
func (s *Scheduler) Exit() {
	s.mu.Lock()
	cur := s.current
	cur.state = StateDead
	s.threadCount--
	if cur.joiner != nil {
		s.enqueueHeadLocked(cur.joiner)
		cur.joiner.state = StateRunning
	}
	next := s.pickNextLocked()
	s.switchToLocked(next, false)
	close(cur.joined)
	s.mu.Unlock()
}

// Join blocks the calling thread until t has exited, then releases t's
// resources. A thread may only be joined once.
func (s *Scheduler) Join(t *Thread) error {
	s.mu.Lock()
	if t.state == StateDead {
		s.mu.Unlock()
		<-t.joined
		return nil
	}
	if t.joiner != nil {
		s.mu.Unlock()
		return fmt.Errorf("sched: thread %q already has a joiner", t.name)
	}
	t.joiner = s.current
	cur := s.current
	cur.state = StateSleeping
	s.scheduleLocked()
	s.mu.Unlock()
	<-t.joined
	return nil
}

// PreemptDisable increments the preemption nesting level. While non-zero,
// Yield is a no-op and involuntary preemption at Tick is suppressed.
func (s *Scheduler) PreemptDisable() {
	s.mu.Lock()
	s.preemptDisableLocked()
	s.mu.Unlock()
}

func (s *Scheduler) preemptDisableLocked() {
	s.preemptLevel++
}

// PreemptEnable decrements the nesting level. When it reaches zero and a
// switch was deferred while preemption was disabled, this call performs
// that switch before returning — the single checkpoint where deferred
// preemption actually happens.
func (s *Scheduler) PreemptEnable() {
	s.mu.Lock()
	s.preemptEnableLocked()
	s.mu.Unlock()
}

func (s *Scheduler) preemptEnableLocked() {
	if s.preemptLevel == 0 {
		panic("sched: PreemptEnable without matching PreemptDisable")
	}
	s.preemptLevel--
	if s.preemptLevel == 0 && s.yieldFlag {
		s.yieldFlag = false
		cur := s.current
		s.requeueCurrentLocked(cur)
		s.obs.ObserveYield(false)
		s.scheduleLocked()
	}
}

// PreemptDisableIntrSave disables preemption and then interrupts,
// returning the previous interrupt state for PreemptEnableIntrRestore.
func (s *Scheduler) PreemptDisableIntrSave() Mask {
	s.PreemptDisable()
	return s.bridge.IntrSave()
}

// PreemptEnableIntrRestore restores interrupts first, then re-enables
// preemption (reverse order of PreemptDisableIntrSave), possibly
// triggering a deferred yield.
func (s *Scheduler) PreemptEnableIntrRestore(m Mask) {
	s.bridge.IntrRestore(m)
	s.PreemptEnable()
}

// Tick is invoked by the periodic tick source. If a peer at the current
// thread's priority is ready, or the current thread is idle, it sets the
// yield flag so the next preemption checkpoint switches away.
func (s *Scheduler) Tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur := s.current
	if cur == nil {
		return
	}
	if cur == s.idle {
		for p := NumPriorities - 1; p >= MinPriority; p-- {
			if len(s.runq[p]) > 0 {
				s.yieldFlag = true
				break
			}
		}
		return
	}
	if len(s.runq[cur.priority]) > 0 {
		s.yieldFlag = true
	}
}

// idleWait blocks the idle thread until some other thread becomes ready,
// then yields to it. Called only from the idle thread's own body.
func (s *Scheduler) idleWait() {
	wake := make(chan struct{})
	s.mu.Lock()
	anyReady := false
	for p := NumPriorities - 1; p >= MinPriority; p-- {
		if len(s.runq[p]) > 0 {
			anyReady = true
			break
		}
	}
	if !anyReady {
		s.idleWaiter = wake
	}
	s.mu.Unlock()

	if !anyReady {
		s.bridge.Idle(wake)
	}
	s.Yield()
}
