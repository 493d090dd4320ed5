package objmem

import objerrors "github.com/talkvm/core/internal/errors"

// Mismatch records one OTE whose stored refcount disagreed with a fresh
// recomputation.
type Mismatch struct {
	Index    OTEIndex
	Stored   uint8
	Computed uint8
	TooSmall bool
}

// AuditReport is a point-in-time consistency snapshot, the debug
// counterpart of Statistics. The collector never acts on it: AsyncGC only
// traces its mismatch count when DebugAudit is set. The harness CLI and the
// telemetry exporter are its other readers.
type AuditReport struct {
	Scanned    int
	Mismatches []Mismatch
	Errors     []error
}

// Audit recomputes every OTE's refcount from scratch by walking the full
// graph of fields and class pointers, and compares the recomputed value
// against what's stored. It never mutates counts or stats — only the
// returned report reflects what it found. Sticky entries are skipped:
// they are permanently exempt from refcounting by design.
//
// This is the snapshot/zero/recompute/compare pattern: take the universe of
// live OTEs, zero a parallel tally, walk every reference once incrementing
// the tally, then diff tally against stored count.
func (h *Heap) Audit() AuditReport {
	h.mu.RLock()
	defer h.mu.RUnlock()

	otCap := OTEIndex(h.ot.Capacity())
	tally := make([]uint8, otCap)

	for i := OTEIndex(0); i < otCap; i++ {
		e := h.ot.At(i)
		if e.Free() {
			continue
		}

		if e.class != NoIndex && int(e.class) < int(otCap) {
			bumpTally(tally, e.class)
		}

		if !e.Pointers() {
			continue
		}

		for _, f := range e.fields() {
			if f.IsImmediate() {
				continue
			}

			fi := f.Index()
			if fi == NoIndex || fi < 0 || int(fi) >= int(otCap) {
				continue
			}

			bumpTally(tally, fi)
		}
	}

	// spec.md §4.6 steps 1 and 6: the active stack (and any VM-level roots)
	// hold real references the mutator never reflects in the stored count,
	// by design (see EmptyZct's comment on this same accounting trick).
	// Credit the recount and the baseline it's compared against equally,
	// rather than mutating real counts the way EmptyZct/PopulateZct do, so
	// a purely stack-held object doesn't surface as a spurious mismatch.
	baseline := make([]uint8, otCap)
	for i := OTEIndex(0); i < otCap; i++ {
		baseline[i] = h.ot.At(i).count
	}

	addRootCredit := func(idx OTEIndex) {
		if idx < 0 || idx >= otCap {
			return
		}

		bumpTally(tally, idx)
		if baseline[idx] < MaxCount {
			baseline[idx]++
		}
	}

	if h.Collaborators.Stack != nil {
		h.Collaborators.Stack.Walk(addRootCredit)
	}

	if h.Collaborators.Roots != nil {
		h.Collaborators.Roots.MarkRoots(addRootCredit)
	}

	report := AuditReport{Scanned: int(otCap)}

	for i := OTEIndex(0); i < otCap; i++ {
		e := h.ot.At(i)
		if e.Free() || e.Sticky() {
			continue
		}

		computed := tally[i]
		stored := baseline[i]
		if computed == stored {
			continue
		}

		mismatch := Mismatch{
			Index:    i,
			Stored:   e.count,
			Computed: computed,
			TooSmall: stored < computed,
		}
		report.Mismatches = append(report.Mismatches, mismatch)
		report.Errors = append(report.Errors, objerrors.AuditMismatch(int(i), e.count, computed, mismatch.TooSmall))
	}

	return report
}

func bumpTally(tally []uint8, idx OTEIndex) {
	if tally[idx] < MaxCount {
		tally[idx]++
	}
}
