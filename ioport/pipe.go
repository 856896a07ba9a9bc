package ioport

import (
	"io"
	"sync"

	"github.com/go-rtos/microkernel/internal/cbuf"
)

// Pipe is an in-memory, single-reader/single-writer byte transport
// backed by a power-of-two ring buffer, guarded by a mutex the way
// backend.Memory guards its shards — sized down from sharded locking to
// a single lock, since a Pipe has only one reader and one writer and
// never needs the parallelism sharding buys a block device.
type Pipe struct {
	mu     sync.Mutex
	cond   *sync.Cond
	buf    *cbuf.Buffer
	closed bool
}

// NewPipe creates a pipe with the given power-of-two buffer capacity.
func NewPipe(capacity int) *Pipe {
	p := &Pipe{buf: cbuf.New(capacity)}
	p.cond = sync.NewCond(&p.mu)
	return p
}

// Write blocks until there is room in the ring buffer for b.
func (p *Pipe) Write(b byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		if p.closed {
			return io.ErrClosedPipe
		}
		if err := p.buf.PushByte(b, false); err == nil {
			p.cond.Broadcast()
			return nil
		}
		p.cond.Wait()
	}
}

// Read blocks until a byte is available and stores it in p.
func (p *Pipe) Read(out *byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for {
		b, err := p.buf.PopByte()
		if err == nil {
			*out = b
			p.cond.Broadcast()
			return nil
		}
		if p.closed {
			return io.EOF
		}
		p.cond.Wait()
	}
}

// Close unblocks any pending Read/Write with io.EOF/io.ErrClosedPipe.
func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.cond.Broadcast()
	return nil
}

var _ Port = (*Pipe)(nil)
