package objmem

import (
	"sync"

	"github.com/talkvm/core/internal/allocator"
	objerrors "github.com/talkvm/core/internal/errors"
)

// Well-known VM pointer slots, reserved in the permanent prefix.
const (
	VMNil OTEIndex = iota
	VMTrue
	VMFalse
	VMScheduler
	VMCorpse
	numWellKnownPointers
)

// Statistics accumulates counters across GC cycles. Stats() returns it,
// TakeSnapshot packages it for the telemetry exporter, and the harness CLI
// prints it after each cycle.
type Statistics struct {
	Cycles      uint64
	Marked      uint64
	Swept       uint64
	Finalized   uint64
	Bereaved    uint64
	Compactions uint64
	Moved       uint64
	ZCTSize     int
}

// Heap is the object memory: one value per VM instance, replacing what the
// source kept as a handful of process-wide globals (current mark bit,
// WeaknessMask, the ZCT) per the re-architecture design note.
type Heap struct {
	mu sync.RWMutex

	ot      *ObjectTable
	classes *classTable
	zct     *zct

	Collaborators Collaborators

	// ConstSpace guards the permanent/const OTE prefix's backing pages
	// during compaction's rewrite phase. NewHeap leaves it nil; a host that
	// maps const space read-only sets it (for example to an
	// MprotectConstSpace), and compaction skips the guard while it is nil.
	ConstSpace ConstSpaceGuard

	config *Config
	trace  *TraceStream

	currentMark      bool
	gcNoWeakness     bool
	IsReconcilingZct bool
	AsyncGCDisabled  bool

	corpseRegistered bool

	stats Statistics
}

// NewHeap constructs a Heap with its own Object Table, reserving
// max(config.NumPermanent, numWellKnownPointers) slots for VM pointers.
func NewHeap(config *Config, collab Collaborators) (*Heap, error) {
	if config == nil {
		config = DefaultConfig()
	}

	if err := allocator.EnsureInitialized(); err != nil {
		return nil, err
	}

	if collab.Async == nil {
		collab.Async = NewSpinAsyncProtect()
	}

	numPermanent := config.NumPermanent
	if numPermanent < int(numWellKnownPointers) {
		numPermanent = int(numWellKnownPointers)
	}

	h := &Heap{
		ot:            NewObjectTable(numPermanent),
		classes:       newClassTable(),
		zct:           newZCT(),
		Collaborators: collab,
		config:        config,
		trace:         NewTraceStream(nil),
		gcNoWeakness:  config.GCNoWeakness,
	}

	return h, nil
}

// SetClassSpec registers the instance specification the collector should
// use for instances of class. Hosts call this as classes are defined.
func (h *Heap) SetClassSpec(class OTEIndex, spec InstanceSpec) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.classes.set(class, spec)
}

// RegisterCorpse installs the distinguished weak-slot substitution object.
// GC before this is called is a refused, fatal precondition violation.
func (h *Heap) RegisterCorpse(ote OTEIndex) {
	h.mu.Lock()
	defer h.mu.Unlock()
	corpseClass := h.ot.At(ote).class
	if corpseClass != NoIndex && int(corpseClass) < h.ot.Capacity() {
		h.incRefLocked(corpseClass)
	}

	h.ot.At(VMCorpse).class = corpseClass
	h.corpseRegistered = true
}

// CorpseIndex returns the well-known Corpse slot's OTE index.
func (h *Heap) CorpseIndex() OTEIndex { return VMCorpse }

// AddVMRefs marks every VM-Pointer slot sticky, per spec.md's exposed
// addVMRefs() operation. Called once at image boot.
func (h *Heap) AddVMRefs() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := OTEIndex(0); i < numWellKnownPointers; i++ {
		e := h.ot.At(i)
		e.flags = e.flags.Set(FlagSticky).WithSpace(SpacePermanent)
	}
}

// NewObject allocates a fresh pointer or byte object of the given class and
// element count, with refcount zero (the caller is expected to IncRef it
// immediately from whatever field will hold the first reference).
func (h *Heap) NewObject(class OTEIndex, count uintptr, pointers bool) (OTEIndex, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	idx, err := h.ot.allocate(class, count, pointers)
	if err != nil {
		return NoIndex, err
	}

	// The class pointer is a counted reference, and the new entry starts on
	// the current mark so the next cycle's flip reads it as unmarked.
	if class != NoIndex && int(class) < h.ot.Capacity() {
		h.incRefLocked(class)
	}

	e := h.ot.At(idx)
	e.flags = setMarkTo(e.flags, h.currentMark)

	return idx, nil
}

// SetWeak marks idx's object as weak (only its fixed fields participate in
// strong reachability; the indexable tail holds weak slots).
func (h *Heap) SetWeak(idx OTEIndex, weak bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e := h.ot.At(idx)
	if weak {
		e.flags = e.flags.Set(FlagWeak)
	} else {
		e.flags = e.flags.Clear(FlagWeak)
	}
}

// SetFinalize marks idx's object as a finalization candidate.
func (h *Heap) SetFinalize(idx OTEIndex, finalize bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	e := h.ot.At(idx)
	if finalize {
		e.flags = e.flags.Set(FlagFinalize)
	} else {
		e.flags = e.flags.Clear(FlagFinalize)
	}
}

// Fields returns idx's pointer-object fields for direct mutation by the
// host. The caller must pair any write with IncRef(new)/DecRef(old).
func (h *Heap) Fields(idx OTEIndex) []Oop {
	return h.ot.At(idx).fields()
}

// Bytes returns idx's byte-object payload.
func (h *Heap) Bytes(idx OTEIndex) []byte {
	return h.ot.At(idx).bytesPayload()
}

// Stats returns a snapshot of the heap's running counters.
func (h *Heap) Stats() Statistics {
	h.mu.RLock()
	defer h.mu.RUnlock()

	s := h.stats
	s.ZCTSize = h.zct.size()

	return s
}

func (h *Heap) applyConfigPatch(patch *Config) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.config.DebugAudit = patch.DebugAudit
	h.config.GCNoWeakness = patch.GCNoWeakness
	h.gcNoWeakness = patch.GCNoWeakness

	if patch.ZCTHighWater > 0 {
		h.config.ZCTHighWater = patch.ZCTHighWater
	}

	h.trace.Printf("objmem: config reloaded (debugAudit=%v gcNoWeakness=%v zctHighWater=%d)",
		h.config.DebugAudit, h.config.GCNoWeakness, h.config.ZCTHighWater)
}

func (h *Heap) requireCorpse() error {
	if !h.corpseRegistered {
		return objerrors.CorpseNotRegistered()
	}

	return nil
}
