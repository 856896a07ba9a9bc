package microkernel

import (
	"github.com/go-rtos/microkernel/internal/logging"
	"github.com/go-rtos/microkernel/ioport"
)

// Options carries configuration for Boot, ported from the teacher's
// Options/DeviceParams pair. Port is the only required field; every
// other field falls back to its DefaultOptions value when zero.
type Options struct {
	// Logger receives debug/info/warn/error messages from every
	// subsystem. Concrete, not an interface, because internal/platform's
	// Bridge binds to it directly the way the teacher's bridge-level
	// code binds to a concrete logger. Defaults to logging.Default().
	Logger *logging.Logger

	// Observer receives metrics events. Defaults to a NoOpObserver; pass
	// NewMetricsObserver(NewMetrics()) to collect Metrics.
	Observer Observer

	// Port is the transport the UART reader and shell bind to: an
	// ioport.Terminal for an interactive session, or an ioport.Pipe /
	// ioport.MockPort in tests.
	Port ioport.Port

	// TickHz is the tick source frequency driving the scheduler and
	// timer manager. Defaults to TickHz (100).
	TickHz int

	// ArenaSize is the heap arena size handed to internal/alloc.
	// Defaults to DefaultArenaSize.
	ArenaSize int

	// UARTBufferSize is the UART reader's circular buffer capacity, must
	// be a power of two. Defaults to DefaultUARTBufferSize.
	UARTBufferSize int
}

// DefaultOptions returns the default configuration bound to port,
// mirroring the teacher's DefaultParams.
func DefaultOptions(port ioport.Port) Options {
	return Options{
		Logger:         logging.Default(),
		Observer:       NoOpObserver{},
		Port:           port,
		TickHz:         TickHz,
		ArenaSize:      DefaultArenaSize,
		UARTBufferSize: DefaultUARTBufferSize,
	}
}

// fillDefaults returns a copy of o with every zero-valued field replaced
// by its default, as Boot applies before validating.
func (o Options) fillDefaults() Options {
	if o.Logger == nil {
		o.Logger = logging.Default()
	}
	if o.Observer == nil {
		o.Observer = NoOpObserver{}
	}
	if o.TickHz == 0 {
		o.TickHz = TickHz
	}
	if o.ArenaSize == 0 {
		o.ArenaSize = DefaultArenaSize
	}
	if o.UARTBufferSize == 0 {
		o.UARTBufferSize = DefaultUARTBufferSize
	}
	return o
}
