package microkernel

import "github.com/go-rtos/microkernel/ioport"

// NewTestKernel boots a Kernel backed by an ioport.MockPort, grounded on
// the teacher's MockBackend: it gives tests a live kernel (scheduler,
// timers, shell, allocator) without a real terminal. Unlike
// ioport.Pipe — a single-direction ring buffer meant for feeding one
// side of a transport under test — MockPort keeps queued input and
// recorded output in independent slices, which is what a full Kernel
// needs: shell output must not loop back as UART input. Use
// port.QueueRead to feed shell input and port.Written to inspect
// output. The caller is responsible for calling Shutdown on the
// returned Kernel.
func NewTestKernel(opts ...func(*Options)) (*Kernel, *ioport.MockPort, error) {
	port := ioport.NewMockPort()
	o := DefaultOptions(port)
	for _, fn := range opts {
		fn(&o)
	}
	k, err := Boot(o)
	if err != nil {
		return nil, nil, err
	}
	return k, port, nil
}
