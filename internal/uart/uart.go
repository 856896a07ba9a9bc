// Package uart implements a bounded UART reader: an interrupt-context
// producer (the simulated RX interrupt, or any code driving a real
// ioport.Port) drains incoming bytes into a circular buffer, and a
// single thread-context consumer blocks on it. Only one reader may be
// blocked at a time — a second concurrent Read is a programming error
// and returns ErrBusy rather than queueing.
package uart

import (
	"errors"
	"sync"

	"github.com/go-rtos/microkernel/internal/cbuf"
	"github.com/go-rtos/microkernel/internal/kiface"
	"github.com/go-rtos/microkernel/internal/platform"
	"github.com/go-rtos/microkernel/internal/sched"
)

// ErrBusy is returned by Read when another thread is already blocked
// reading.
var ErrBusy = errors.New("uart: read already pending")

// Reader connects a byte source to at most one blocked consumer
// thread.
type Reader struct {
	s      *sched.Scheduler
	bridge *platform.Bridge
	obs    kiface.Observer
	logger kiface.Logger

	// mu guards buf and waiter. It is a plain sync.Mutex, not
	// internal/ksync.Mutex: Push is called by the simulated RX
	// interrupt source, which (like internal/timer's tick source) has
	// no kernel thread identity to block on.
	mu     sync.Mutex
	buf    *cbuf.Buffer
	waiter *sched.Thread
}

// New creates a reader backed by a power-of-two circular buffer of the
// given capacity.
func New(s *sched.Scheduler, bridge *platform.Bridge, capacity int, logger kiface.Logger, obs kiface.Observer) *Reader {
	if obs == nil {
		obs = kiface.NoOpObserver{}
	}
	return &Reader{
		s:      s,
		bridge: bridge,
		obs:    obs,
		logger: logger,
		buf:    cbuf.New(capacity),
	}
}

// Push drains data into the circular buffer, as the RX interrupt
// handler would drain a hardware FIFO. Bytes that don't fit because
// the buffer is full are logged and dropped — the reader is expected
// to keep up; this is not a flow-controlled transport. If at least one
// byte was accepted, the blocked reader (if any) is woken.
func (r *Reader) Push(data []byte) {
	r.mu.Lock()
	accepted := false
	dropped := 0
	for _, b := range data {
		if err := r.buf.PushByte(b, false); err != nil {
			dropped++
			continue
		}
		accepted = true
	}
	w := r.waiter
	r.mu.Unlock()

	for i := 0; i < dropped; i++ {
		r.obs.ObserveUARTByte(true)
	}
	for i := 0; i < len(data)-dropped; i++ {
		r.obs.ObserveUARTByte(false)
	}
	if dropped > 0 && r.logger != nil {
		r.logger.Warnf("uart: dropped %d byte(s), buffer full", dropped)
	}

	if accepted && w != nil {
		r.s.Wake(w)
	}
}

// Read blocks the calling thread until a byte is available and
// returns it. Only one thread may have a Read in flight at a time;
// calling Read while another is already blocked returns ErrBusy
// immediately rather than queueing the second caller.
func (r *Reader) Read() (byte, error) {
	self := r.s.Self()

	r.s.PreemptDisable()
	im := r.bridge.IntrSave()

	r.mu.Lock()
	if r.waiter != nil {
		r.mu.Unlock()
		r.bridge.IntrRestore(im)
		r.s.PreemptEnable()
		return 0, ErrBusy
	}

	for {
		b, err := r.buf.PopByte()
		if err == nil {
			r.mu.Unlock()
			r.bridge.IntrRestore(im)
			r.s.PreemptEnable()
			return b, nil
		}

		r.waiter = self
		r.mu.Unlock()
		r.s.Sleep()
		r.mu.Lock()
		r.waiter = nil
	}
}
