package objmem

// The interfaces below are the Go-native shape of every collaborator the
// object memory core consumes from a hosting VM. None of the interpreter,
// scheduler, method cache, or primitives is implemented here — the core
// only ever calls out through these seams.

// RootMarker surfaces interpreter-owned roots (registers, method cache,
// anything beyond the permanent OTE prefix and the active stack) to a mark
// pass.
type RootMarker interface {
	MarkRoots(mark func(OTEIndex))
}

// ActiveStack gives read-only access to the active process's stack, used
// both as a mark root and for the ZCT reconciliation protocol.
type ActiveStack interface {
	Walk(visit func(OTEIndex))
}

// Finalizer receives objects whose Finalize flag survived to a sweep.
type Finalizer interface {
	QueueForFinalization(ote OTEIndex)
}

// Mourner receives bereavement notifications for weak mourner objects that
// lost one or more referents during a sweep.
type Mourner interface {
	QueueForBereavement(weak OTEIndex, losses int)
}

// CompactionObserver is notified once compaction has finished rewriting
// every field, before the new free list is threaded, so it can invalidate
// any cached OTE pointers.
type CompactionObserver interface {
	OnCompact()
}

// AsyncProtect brackets any non-atomic traversal of the OT against
// concurrent mutation from an asynchronous signal handler thread.
type AsyncProtect interface {
	Grab()
	Relinquish()
}

// Scheduler signals the mutator that queued finalizers or bereavements are
// ready to run.
type Scheduler interface {
	ScheduleFinalization()
}

// Collaborators bundles every external seam a Heap is constructed with. A
// field left nil degrades gracefully: MarkRoots/Walk are simply skipped,
// Finalizer/Mourner objects are treated as ordinary garbage instead of
// being rescued or notified (the Open Question decision for the
// weak/finalization-disabled build variant — see DESIGN.md).
type Collaborators struct {
	Roots      RootMarker
	Stack      ActiveStack
	Finalizer  Finalizer
	Mourner    Mourner
	Compaction CompactionObserver
	Async      AsyncProtect
	Scheduler  Scheduler
}
