// Package kiface holds small interfaces shared between internal kernel
// packages. Keeping them here, separate from both the root package and
// their implementers, avoids import cycles between internal/sched,
// internal/timer, internal/uart and the root facade.
package kiface

// Logger is satisfied by *internal/logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Observer receives kernel events for metrics collection. Implementations
// must be safe to call from simulated interrupt context.
type Observer interface {
	ObserveSwitch(fromName, toName string)
	ObserveYield(voluntary bool)
	ObserveTimerFired(latencyNs uint64)
	ObserveUARTByte(dropped bool)
	ObserveHeap(allocBytes, freeBytes uint64, highWaterBytes uint64)
}

// NoOpObserver discards every event.
type NoOpObserver struct{}

func (NoOpObserver) ObserveSwitch(string, string)        {}
func (NoOpObserver) ObserveYield(bool)                   {}
func (NoOpObserver) ObserveTimerFired(uint64)            {}
func (NoOpObserver) ObserveUARTByte(bool)                {}
func (NoOpObserver) ObserveHeap(uint64, uint64, uint64) {}

var _ Observer = NoOpObserver{}
