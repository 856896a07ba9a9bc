package alloc_test

import (
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/go-rtos/microkernel/internal/alloc"
	"github.com/go-rtos/microkernel/internal/kiface"
	"github.com/go-rtos/microkernel/internal/ksync"
	"github.com/go-rtos/microkernel/internal/platform"
	"github.com/go-rtos/microkernel/internal/sched"
)

// runInThread runs fn to completion on a dedicated thread of a fresh
// scheduler. The allocator's mutex calls into internal/sched, which
// requires a real current thread, so every test below must run its
// assertions from inside a spawned thread's body rather than the bare
// test goroutine.
func runInThread(t *testing.T, fn func(s *sched.Scheduler)) {
	t.Helper()
	bridge := platform.New(nil)
	s := sched.New(bridge, nil, kiface.NoOpObserver{})
	done := make(chan struct{})

	_, err := s.Spawn("worker", sched.MinPriority, sched.MinStackSize, func(any) {
		defer close(done)
		fn(s)
	}, nil)
	require.NoError(t, err)
	require.NoError(t, s.Start())

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
}

func TestAllocReturnsAlignedUsablePayload(t *testing.T) {
	runInThread(t, func(s *sched.Scheduler) {
		a, err := alloc.New(4096, ksync.NewMutex(s))
		require.NoError(t, err)

		p, err := a.Alloc(100)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(p), 100)
		require.Zero(t, uintptr(unsafe.Pointer(&p[0]))%alloc.Align)
		for i := range p {
			p[i] = byte(i)
		}
		for i := range p {
			require.Equal(t, byte(i), p[i])
		}
	})
}

func TestAllocZeroReturnsNilNoError(t *testing.T) {
	runInThread(t, func(s *sched.Scheduler) {
		a, err := alloc.New(4096, ksync.NewMutex(s))
		require.NoError(t, err)

		p, err := a.Alloc(0)
		require.NoError(t, err)
		require.Nil(t, p)
	})
}

func TestAllocExhaustionReturnsErrNoMem(t *testing.T) {
	runInThread(t, func(s *sched.Scheduler) {
		a, err := alloc.New(128, ksync.NewMutex(s))
		require.NoError(t, err)

		_, err = a.Alloc(1000)
		require.ErrorIs(t, err, alloc.ErrNoMem)
	})
}

func TestFreeThenReallocReusesSpace(t *testing.T) {
	runInThread(t, func(s *sched.Scheduler) {
		a, err := alloc.New(4096, ksync.NewMutex(s))
		require.NoError(t, err)

		p1, err := a.Alloc(200)
		require.NoError(t, err)
		require.NoError(t, a.Free(p1))

		p2, err := a.Alloc(200)
		require.NoError(t, err)
		require.GreaterOrEqual(t, len(p2), 200)

		stats := a.Stats()
		require.Equal(t, uint64(len(p2)+16), stats.Allocated)
	})
}

func TestFreeMergesAdjacentFreeBlocks(t *testing.T) {
	runInThread(t, func(s *sched.Scheduler) {
		a, err := alloc.New(4096, ksync.NewMutex(s))
		require.NoError(t, err)

		p1, err := a.Alloc(64)
		require.NoError(t, err)
		p2, err := a.Alloc(64)
		require.NoError(t, err)
		p3, err := a.Alloc(64)
		require.NoError(t, err)

		require.NoError(t, a.Free(p1))
		require.NoError(t, a.Free(p3))
		require.NoError(t, a.Free(p2))

		// All three neighbors freed: the whole arena should have
		// collapsed back into a single free block large enough to
		// satisfy an allocation bigger than any individual piece.
		big, err := a.Alloc(4096 - 64)
		require.NoError(t, err)
		require.NotNil(t, big)
	})
}

func TestFreeNilIsNoop(t *testing.T) {
	runInThread(t, func(s *sched.Scheduler) {
		a, err := alloc.New(4096, ksync.NewMutex(s))
		require.NoError(t, err)
		require.NoError(t, a.Free(nil))
	})
}

func TestFreeRejectsForeignPointer(t *testing.T) {
	runInThread(t, func(s *sched.Scheduler) {
		a, err := alloc.New(4096, ksync.NewMutex(s))
		require.NoError(t, err)
		foreign := make([]byte, 16)
		require.ErrorIs(t, a.Free(foreign), alloc.ErrInval)
	})
}

func TestNewRejectsArenaSmallerThanMinBlock(t *testing.T) {
	bridge := platform.New(nil)
	s := sched.New(bridge, nil, kiface.NoOpObserver{})
	_, err := alloc.New(4, ksync.NewMutex(s))
	require.ErrorIs(t, err, alloc.ErrInval)
}
