package objmem

import "github.com/talkvm/core/internal/runtime/concurrency"

// finalizationEntry and bereavementEntry are the payloads pushed through
// the lock-free queues below. A basicQueueForFinalization-style callback
// can run concurrently with a signal-driven async poll, so the handoff
// between sweep and whatever drains these queues must not take a mutex.

type finalizationEntry struct {
	ote OTEIndex
}

type bereavementEntry struct {
	weak   OTEIndex
	losses int
}

// QueuedFinalizer is the default Finalizer collaborator: a bounded
// lock-free ring buffer a scheduler drains from a different goroutine than
// the one running the GC cycle that filled it.
type QueuedFinalizer struct {
	q *concurrency.MPMCQueue[finalizationEntry]
}

// NewQueuedFinalizer creates a finalization queue holding up to capacity
// pending entries. Once it is full, QueueForFinalization drops further
// entries rather than blocking the collector; a dropped entry is not
// counted or reported anywhere, and Drain's result counts only the entries
// it ran.
func NewQueuedFinalizer(capacity uint64) *QueuedFinalizer {
	return &QueuedFinalizer{q: concurrency.NewMPMCQueue[finalizationEntry](capacity)}
}

func (f *QueuedFinalizer) QueueForFinalization(ote OTEIndex) {
	f.q.Enqueue(finalizationEntry{ote: ote})
}

// Drain pops every currently queued entry and invokes run for each,
// stopping at the first empty read. Meant to be called from the host's
// finalization-scheduling goroutine after a Scheduler.ScheduleFinalization
// notification.
func (f *QueuedFinalizer) Drain(run func(ote OTEIndex)) int {
	n := 0

	var e finalizationEntry
	for f.q.Dequeue(&e) {
		run(e.ote)
		n++
	}

	return n
}

// QueuedMourner is the default Mourner collaborator, mirroring
// QueuedFinalizer's handoff shape for bereavement notifications.
type QueuedMourner struct {
	q *concurrency.MPMCQueue[bereavementEntry]
}

func NewQueuedMourner(capacity uint64) *QueuedMourner {
	return &QueuedMourner{q: concurrency.NewMPMCQueue[bereavementEntry](capacity)}
}

func (m *QueuedMourner) QueueForBereavement(weak OTEIndex, losses int) {
	m.q.Enqueue(bereavementEntry{weak: weak, losses: losses})
}

func (m *QueuedMourner) Drain(run func(weak OTEIndex, losses int)) int {
	n := 0

	var e bereavementEntry
	for m.q.Dequeue(&e) {
		run(e.weak, e.losses)
		n++
	}

	return n
}

// SignalScheduler is the default Scheduler collaborator: a single-slot
// dirty flag a polling or signal-driven host checks and clears, rather
// than a channel send that could block the collector if nobody's
// listening.
type SignalScheduler struct {
	pending chan struct{}
}

func NewSignalScheduler() *SignalScheduler {
	return &SignalScheduler{pending: make(chan struct{}, 1)}
}

func (s *SignalScheduler) ScheduleFinalization() {
	select {
	case s.pending <- struct{}{}:
	default:
	}
}

// Wait blocks until ScheduleFinalization has fired at least once since the
// last Wait.
func (s *SignalScheduler) Wait() {
	<-s.pending
}
