package objmem

// GCFlags modifies a single asyncGC cycle.
type GCFlags uint8

const (
	// GCNoWeakness forces the mark traversal to treat every weak object as
	// fully strong, a diagnostic switch for debug consistency checks (see
	// spec.md §9's open question: no other intended use is specified).
	GCNoWeakness GCFlags = 1 << iota
)

// AsyncGC runs a full collection cycle: EmptyZct, mark, weak-scan,
// finalizer-enqueue, deallocate, PopulateZct, in that order. EmptyZct must
// run first so refcount invariants hold during marking and the debug
// audit; PopulateZct must run last so the ZCT only ever holds objects
// proven live going into the next mutation window.
//
// GC before the Corpse object is registered is a refused precondition
// violation — the mutator is expected to install it at image boot.
func (h *Heap) AsyncGC(flags GCFlags) error {
	if err := h.requireCorpse(); err != nil {
		h.trace.Printf("objmem: %v", err)
		return err
	}

	if h.Collaborators.Async != nil {
		h.Collaborators.Async.Grab()
		defer h.Collaborators.Async.Relinquish()
	}

	prevNoWeakness := h.gcNoWeakness
	if flags&GCNoWeakness != 0 {
		h.gcNoWeakness = true
	}

	h.EmptyZct()

	h.mu.Lock()
	h.mark()
	h.sweep()
	h.stats.Cycles++
	h.mu.Unlock()

	h.gcNoWeakness = prevNoWeakness

	h.PopulateZct()

	if h.config.DebugAudit && !h.AsyncGCDisabled {
		if report := h.Audit(); len(report.Mismatches) > 0 {
			h.trace.Printf("objmem: audit found %d mismatch(es) after cycle %d", len(report.Mismatches), h.stats.Cycles)
		}
	}

	return nil
}
