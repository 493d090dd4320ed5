package objmem

// IncRef bumps idx's refcount, saturating at MaxCount. Sticky entries
// (the VM pointers) are ignored entirely — they are never refcounted.
func (h *Heap) IncRef(idx OTEIndex) {
	if idx == NoIndex {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.incRefLocked(idx)
}

func (h *Heap) incRefLocked(idx OTEIndex) {
	e := h.ot.At(idx)
	if e.Sticky() || e.count == MaxCount {
		return
	}

	e.count++
}

// DecRef drops idx's refcount. A non-saturated entry reaching zero is not
// freed immediately — the active process stack is not refcounted during
// normal execution, so a zero count does not yet prove unreachability. It
// is instead pushed onto the ZCT for the next GC cycle to reconcile.
func (h *Heap) DecRef(idx OTEIndex) {
	if idx == NoIndex {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.decRefLocked(idx)
}

func (h *Heap) decRefLocked(idx OTEIndex) {
	e := h.ot.At(idx)
	if e.Sticky() || e.count == MaxCount {
		return
	}

	if e.count == 0 {
		return
	}

	e.count--
	if e.count == 0 {
		h.zct.add(idx)
	}
}

// decRefFieldLocked decrements a field's refcount only if it is a non-immediate,
// non-free reference — the shape every deallocation-pass field walk needs.
func (h *Heap) decRefFieldLocked(field Oop) {
	if field.IsImmediate() {
		return
	}

	idx := field.Index()
	if idx == NoIndex || idx < 0 || int(idx) >= h.ot.Capacity() {
		return
	}

	if h.ot.At(idx).Free() {
		return
	}

	h.decRefLocked(idx)
}
