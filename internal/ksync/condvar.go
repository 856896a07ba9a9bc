package ksync

import "github.com/go-rtos/microkernel/internal/sched"

// condWaiter tracks whether a condvar waiter has actually been woken by
// Signal/Broadcast, to guard against spurious wakeups from Sleep.
type condWaiter struct {
	thread *sched.Thread
	awoken bool
}

// CondVar is a condition variable always used together with a Mutex: a
// waiter must hold the mutex before calling Wait, which atomically
// (with respect to concurrent Signal/Broadcast) releases it and sleeps.
//
// Broadcast here has the same "thundering herd" characteristic as the
// original: every waiter wakes, but since they all then contend for the
// same associated mutex, all but one immediately go back to sleep. A
// more elaborate implementation could hand waiters directly to the
// mutex's wait list instead.
type CondVar struct {
	s       *sched.Scheduler
	waiters []*condWaiter
}

// NewCondVar creates a condition variable driven by the given scheduler.
func NewCondVar(s *sched.Scheduler) *CondVar {
	return &CondVar{s: s}
}

// Signal wakes at most one waiting thread, the longest-waiting one that
// has not already been woken.
func (c *CondVar) Signal() {
	c.s.PreemptDisable()
	defer c.s.PreemptEnable()

	for _, w := range c.waiters {
		if w.awoken {
			continue
		}
		w.awoken = true
		c.s.Wake(w.thread)
		break
	}
}

// Broadcast wakes every waiting thread.
func (c *CondVar) Broadcast() {
	c.s.PreemptDisable()
	defer c.s.PreemptEnable()

	for _, w := range c.waiters {
		if w.awoken {
			continue
		}
		w.awoken = true
		c.s.Wake(w.thread)
	}
}

// Wait atomically releases mutex and sleeps the calling thread until a
// Signal or Broadcast wakes it, then reacquires mutex before returning.
// The caller must hold mutex locked.
func (c *CondVar) Wait(mutex *Mutex) {
	self := c.s.Self()
	w := &condWaiter{thread: self}

	c.s.PreemptDisable()

	// Unlocking here, with preemption already disabled, is what makes
	// the release-and-sleep atomic with respect to concurrent signals:
	// no other thread can observe "unlocked but not yet waiting".
	mutex.Unlock()

	c.waiters = append(c.waiters, w)

	for !w.awoken {
		c.s.Sleep()
	}

	for i, ww := range c.waiters {
		if ww == w {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			break
		}
	}

	c.s.PreemptEnable()

	// Relocking happens outside the critical section above: acquiring
	// the condvar's own ordering only needs preemption disabled, but
	// relocking the mutex may itself sleep, which requires preemption
	// to be fully re-enabled first.
	mutex.Lock()
}
