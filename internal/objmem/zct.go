package objmem

// zct is the Zero-Count Table: a set-like container of OTEs whose refcount
// has dropped to zero but which may still be live via the active process
// stack. Membership, not order, is what matters — a map, not a queue.
type zct struct {
	members map[OTEIndex]struct{}
}

func newZCT() *zct {
	return &zct{members: make(map[OTEIndex]struct{})}
}

func (z *zct) add(idx OTEIndex)    { z.members[idx] = struct{}{} }
func (z *zct) remove(idx OTEIndex) { delete(z.members, idx) }
func (z *zct) size() int           { return len(z.members) }

func (z *zct) snapshot() []OTEIndex {
	out := make([]OTEIndex, 0, len(z.members))
	for idx := range z.members {
		out = append(out, idx)
	}

	return out
}

// EmptyZct reconciles the ZCT with the active stack: every OTE the stack
// mentions is incref'd (accounting for the reference the stack itself
// holds but never counts during normal execution), then every ZCT member
// still at zero is genuinely garbage and is recursively freed; members
// that survived are simply dropped from the table. IsReconcilingZct is set
// for the whole operation so nothing else feeds the ZCT meanwhile.
func (h *Heap) EmptyZct() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.IsReconcilingZct = true
	defer func() { h.IsReconcilingZct = false }()

	if h.Collaborators.Stack != nil {
		h.Collaborators.Stack.Walk(func(idx OTEIndex) {
			h.incRefLocked(idx)
		})
	}

	for _, idx := range h.zct.snapshot() {
		e := h.ot.At(idx)
		if e.Free() {
			h.zct.remove(idx)
			continue
		}

		if e.count == 0 {
			h.reconcileFreeLocked(idx)
		}

		h.zct.remove(idx)
	}
}

// reconcileFreeLocked reclaims a ZCT member proven garbage by EmptyZct.
// Unlike the sweep dealloc pass (which decrements fields only one level,
// relying on the mark phase to have already identified the whole dying
// set), this cascades: a field decrement landing on zero during
// reconciliation is deallocated immediately rather than deferred, since
// the ZCT accepts no new members while IsReconcilingZct holds.
func (h *Heap) reconcileFreeLocked(idx OTEIndex) {
	e := h.ot.At(idx)
	if e.Free() {
		return
	}

	if e.class != NoIndex && int(e.class) < h.ot.Capacity() {
		h.decRefCascadeLocked(e.class)
	}

	if e.Pointers() {
		for _, f := range e.fields() {
			if f.IsImmediate() {
				continue
			}

			fi := f.Index()
			if fi == NoIndex || fi < 0 || int(fi) >= h.ot.Capacity() || h.ot.At(fi).Free() {
				continue
			}

			h.decRefCascadeLocked(fi)
		}
	}

	e.count = 0
	h.ot.release(idx)
	h.stats.Swept++
}

// decRefCascadeLocked is decRefLocked's counterpart for reconciliation: a
// count landing on zero is freed immediately instead of deferred to the
// ZCT.
func (h *Heap) decRefCascadeLocked(idx OTEIndex) {
	e := h.ot.At(idx)
	if e.Sticky() || e.count == MaxCount || e.count == 0 {
		return
	}

	e.count--
	if e.count == 0 {
		h.reconcileFreeLocked(idx)
	}
}

// PopulateZct walks the active stack again, decrementing each referenced
// OTE to undo EmptyZct's provisional increments and re-establish the
// deferred-counting state for the next mutation window. A decrement
// landing on zero pushes back onto the ZCT.
func (h *Heap) PopulateZct() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.Collaborators.Stack != nil {
		h.Collaborators.Stack.Walk(func(idx OTEIndex) {
			h.decRefLocked(idx)
		})
	}
}
