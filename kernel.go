package microkernel

import (
	"io"
	"time"

	"github.com/go-rtos/microkernel/internal/alloc"
	"github.com/go-rtos/microkernel/internal/fmtio"
	"github.com/go-rtos/microkernel/internal/ksync"
	"github.com/go-rtos/microkernel/internal/platform"
	"github.com/go-rtos/microkernel/internal/sched"
	"github.com/go-rtos/microkernel/internal/shell"
	"github.com/go-rtos/microkernel/internal/timer"
	"github.com/go-rtos/microkernel/internal/uart"
	"github.com/go-rtos/microkernel/ioport"
)

// Kernel is a booted instance of every subsystem wired together: the
// scheduler, timer manager, heap allocator, UART reader, formatted
// output writer, and the shell thread driving them from Options.Port.
// The zero Kernel is not usable; create one with Boot.
type Kernel struct {
	opts Options

	bridge  *platform.Bridge
	sched   *sched.Scheduler
	timers  *timer.Manager
	heap    *alloc.Allocator
	reader  *uart.Reader
	writer  *fmtio.Writer
	reg     *shell.Registry
	shell   *shell.Shell
	metrics *Metrics

	ticker  *time.Ticker
	tickEnd chan struct{}
}

// shellIO adapts a *uart.Reader and a *fmtio.Writer to shell.IO, the way
// a board support package would wire a concrete UART driver into the
// shell engine.
type shellIO struct {
	reader *uart.Reader
	writer *fmtio.Writer
}

func (io *shellIO) Getc() (byte, error)               { return io.reader.Read() }
func (io *shellIO) Printf(format string, args ...any) { io.writer.Printf(format, args...) }

// Boot creates every kernel subsystem, starts the tick source and the
// UART RX source, spawns the idle and shell threads, and starts the
// scheduler. It returns as soon as the scheduler has been started, without
// waiting for the shell thread to run; it does not block for the kernel's
// lifetime (see the teacher's
// CreateAndServe, which likewise returns once the device is live and
// leaves serving I/O to already-started goroutines).
func Boot(opts Options) (*Kernel, error) {
	opts = opts.fillDefaults()
	if opts.Port == nil {
		return nil, NewError("kernel", "Boot", Inval, "Options.Port is required")
	}
	if opts.TickHz <= 0 {
		return nil, NewError("kernel", "Boot", Inval, "Options.TickHz must be positive")
	}

	bridge := platform.New(opts.Logger)
	s := sched.New(bridge, opts.Logger, opts.Observer)

	timers, err := timer.New(s, bridge, opts.TickHz, opts.Observer)
	if err != nil {
		return nil, WrapError("timer", "Boot", NoMem, err)
	}

	heap, err := alloc.New(opts.ArenaSize, ksync.NewMutex(s), alloc.WithObserver(opts.Observer))
	if err != nil {
		return nil, WrapError("alloc", "Boot", Inval, err)
	}

	reader := uart.New(s, bridge, opts.UARTBufferSize, opts.Logger, opts.Observer)
	writer := fmtio.NewWriter(s, bridge, opts.Port)
	reg := shell.NewRegistry(s)

	sh, err := shell.Spawn(s, reg, &shellIO{reader: reader, writer: writer})
	if err != nil {
		return nil, WrapError("shell", "Boot", NoMem, err)
	}

	metrics := NewMetrics()
	if mo, ok := opts.Observer.(*MetricsObserver); ok {
		metrics = mo.metrics
	}

	k := &Kernel{
		opts:    opts,
		bridge:  bridge,
		sched:   s,
		timers:  timers,
		heap:    heap,
		reader:  reader,
		writer:  writer,
		reg:     reg,
		shell:   sh,
		metrics: metrics,
		tickEnd: make(chan struct{}),
	}

	k.ticker = time.NewTicker(time.Second / time.Duration(opts.TickHz))
	go k.tickLoop()
	go k.rxLoop()

	if err := s.Start(); err != nil {
		k.Shutdown()
		return nil, WrapError("sched", "Boot", Io, err)
	}

	return k, nil
}

// tickLoop is the Go analogue of the periodic hardware tick interrupt:
// every period it calls into the scheduler and timer manager exactly as
// a real ISR would, serialized by their own internal locks.
func (k *Kernel) tickLoop() {
	for {
		select {
		case <-k.ticker.C:
			k.sched.Tick()
			k.timers.Tick()
		case <-k.tickEnd:
			return
		}
	}
}

// rxLoop is the Go analogue of the UART RX interrupt: it blocks on the
// port for the next byte and hands it to the reader's circular buffer.
// It exits once Shutdown closes the port and Read starts failing.
func (k *Kernel) rxLoop() {
	var b byte
	for {
		if err := k.opts.Port.Read(&b); err != nil {
			if err == io.EOF || err == io.ErrClosedPipe {
				return
			}
			// A non-blocking port (ioport.MockPort) returns immediately
			// when no input is queued; a blocking one (ioport.Terminal,
			// ioport.Pipe) never reaches this branch in practice. Back
			// off briefly rather than spinning.
			time.Sleep(time.Millisecond)
			continue
		}
		k.reader.Push([]byte{b})
	}
}

// Shutdown stops the tick source and closes the bound port, which in
// turn unblocks the UART RX goroutine's pending Read. The shell and
// idle threads, like the teacher's queue runners, are not individually
// joined: they block forever on I/O that Shutdown makes fail, the
// kernel's equivalent of a board reset.
func (k *Kernel) Shutdown() error {
	k.ticker.Stop()
	close(k.tickEnd)
	k.metrics.Stop()
	return k.opts.Port.Close()
}

// Registry returns the shell command registry, for callers that want to
// register additional commands before or after Boot.
func (k *Kernel) Registry() *shell.Registry { return k.reg }

// Heap returns the kernel's heap allocator.
func (k *Kernel) Heap() *alloc.Allocator { return k.heap }

// Writer returns the kernel's formatted-output writer.
func (k *Kernel) Writer() *fmtio.Writer { return k.writer }

// Timers returns the kernel's software timer manager.
func (k *Kernel) Timers() *timer.Manager { return k.timers }

// Scheduler returns the kernel's thread scheduler.
func (k *Kernel) Scheduler() *sched.Scheduler { return k.sched }

// Metrics returns the kernel's metrics instance. When Options.Observer is
// a *MetricsObserver (see NewMetricsObserver), this is the Metrics it
// records into; otherwise no observer records into it and its counters
// stay zero.
func (k *Kernel) Metrics() *Metrics { return k.metrics }
