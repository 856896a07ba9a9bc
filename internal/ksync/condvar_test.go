package ksync_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/go-rtos/microkernel/internal/ksync"
	"github.com/go-rtos/microkernel/internal/sched"
)

func TestCondVarWaitBlocksUntilSignal(t *testing.T) {
	s := newTestScheduler(t)
	m := ksync.NewMutex(s)
	cv := ksync.NewCondVar(s)
	ready := false
	events := make(chan string, 8)
	result := make(chan []string, 1)

	// Spawn inserts at the head of the band, so the thread spawned last
	// runs first: "signaler" is spawned before "waiter".
	_, err := s.Spawn("signaler", sched.MinPriority, sched.MinStackSize, func(any) {
		m.Lock()
		events <- "signaler-locked"
		ready = true
		cv.Signal()
		events <- "signaler-signaled"
		m.Unlock()
	}, nil)
	require.NoError(t, err)

	waiter, err := s.Spawn("waiter", sched.MinPriority, sched.MinStackSize, func(any) {
		m.Lock()
		events <- "waiter-start"
		for !ready {
			events <- "waiter-waiting"
			cv.Wait(m)
		}
		events <- "waiter-woken"
		m.Unlock()
	}, nil)
	require.NoError(t, err)

	_, err = s.Spawn("joiner", sched.MinPriority, sched.MinStackSize, func(any) {
		_ = s.Join(waiter)
		close(events)
		var got []string
		for e := range events {
			got = append(got, e)
		}
		result <- got
	}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Start())

	select {
	case got := <-result:
		require.Equal(t, []string{
			"waiter-start",
			"waiter-waiting",
			"signaler-locked",
			"signaler-signaled",
			"waiter-woken",
		}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}

func TestCondVarBroadcastWakesAllWaiters(t *testing.T) {
	s := newTestScheduler(t)
	m := ksync.NewMutex(s)
	cv := ksync.NewCondVar(s)
	ready := false
	woken := make(chan string, 3)
	result := make(chan []string, 1)

	// Spawn inserts at the head of the band, so the signaler is spawned
	// first and runs only after both waiters are blocked in Wait.
	_, err := s.Spawn("signaler", sched.MinPriority, sched.MinStackSize, func(any) {
		m.Lock()
		ready = true
		cv.Broadcast()
		m.Unlock()
	}, nil)
	require.NoError(t, err)

	var waiters []*sched.Thread
	for i := 0; i < 2; i++ {
		name := []string{"waiter-a", "waiter-b"}[i]
		th, err := s.Spawn(name, sched.MinPriority, sched.MinStackSize, func(any) {
			m.Lock()
			for !ready {
				cv.Wait(m)
			}
			woken <- name
			m.Unlock()
		}, nil)
		require.NoError(t, err)
		waiters = append(waiters, th)
	}

	_, err = s.Spawn("joiner", sched.MinPriority, sched.MinStackSize, func(any) {
		for _, w := range waiters {
			_ = s.Join(w)
		}
		close(woken)
		var got []string
		for w := range woken {
			got = append(got, w)
		}
		result <- got
	}, nil)
	require.NoError(t, err)

	require.NoError(t, s.Start())

	select {
	case got := <-result:
		require.ElementsMatch(t, []string{"waiter-a", "waiter-b"}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
	}
}
