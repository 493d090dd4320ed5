package objmem

import (
	"runtime"

	"github.com/talkvm/core/internal/runtime/concurrency"
)

// SpinAsyncProtect is the default AsyncProtect: a CAS spinlock guarding any
// traversal of the OT an asynchronous signal-handling goroutine might
// otherwise interleave with (timer interrupts, I/O completions wanting to
// mark roots or touch the OT).
type SpinAsyncProtect struct {
	held uint32
}

// NewSpinAsyncProtect constructs an unheld spinlock.
func NewSpinAsyncProtect() *SpinAsyncProtect {
	return &SpinAsyncProtect{}
}

// Grab blocks until the critical section is acquired.
func (p *SpinAsyncProtect) Grab() {
	for !concurrency.CASUint32(&p.held, 0, 1) {
		runtime.Gosched()
	}
}

// Relinquish releases the critical section.
func (p *SpinAsyncProtect) Relinquish() {
	concurrency.CASUint32(&p.held, 1, 0)
}
