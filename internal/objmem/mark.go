package objmem

// nextMark flips the heap's toggling mark bit. Every previously marked OTE
// now reads as unmarked without any separate clearing pass.
func (h *Heap) nextMark() {
	h.currentMark = !h.currentMark
}

// weaknessMask returns the flag mask the mark traversal treats as "weak".
// Under GCNoWeakness the mask is set to match no real object (the Free
// bit, which a live OTE never carries), forcing weak objects to be traced
// as strong — used for debug consistency checks.
func (h *Heap) weaknessMask() Flags {
	if h.gcNoWeakness {
		return FlagFree
	}

	return FlagWeak
}

// markFrom performs a depth-first traversal from root, toggling each
// visited OTE's Mark bit to the current value and recursing into its class
// and strong fields. An explicit work-stack of indices is used instead of
// recursion so auxiliary memory is bounded by heap size rather than graph
// depth.
func (h *Heap) markFrom(root OTEIndex) {
	if root == NoIndex {
		return
	}

	weakMask := h.weaknessMask()
	stack := []OTEIndex{root}

	for len(stack) > 0 {
		idx := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if idx == NoIndex || idx < 0 || int(idx) >= h.ot.Capacity() {
			continue
		}

		e := h.ot.At(idx)
		if e.Free() || e.Marked(h.currentMark) {
			continue
		}

		e.flags = setMarkTo(e.flags, h.currentMark)

		if e.class != NoIndex {
			stack = append(stack, e.class)
		}

		if !e.Pointers() {
			continue
		}

		fields := e.fields()

		// Strong field range: non-weak objects expose every field; weak
		// objects expose only the fixed-field prefix.
		limit := len(fields)
		if e.flags.Has(weakMask) {
			limit = int(h.classes.get(e.class).FixedFields)
			if limit > len(fields) {
				limit = len(fields)
			}
		}

		for i := 0; i < limit; i++ {
			f := fields[i]
			if f.IsImmediate() {
				continue
			}

			stack = append(stack, f.Index())
		}
	}
}

func setMarkTo(f Flags, mark bool) Flags {
	if mark {
		return f.Set(FlagMark)
	}

	return f.Clear(FlagMark)
}

// mark runs a full mark pass: nextMark(), then traversal from the
// permanent/roots prefix and every interpreter root the MarkRoots
// callback supplies.
func (h *Heap) mark() {
	h.nextMark()

	for i := OTEIndex(0); i < h.ot.NumPermanent(); i++ {
		h.markFrom(i)
	}

	if h.Collaborators.Roots != nil {
		h.Collaborators.Roots.MarkRoots(func(idx OTEIndex) {
			h.markFrom(idx)
		})
	}

	if h.Collaborators.Stack != nil {
		h.Collaborators.Stack.Walk(func(idx OTEIndex) {
			h.markFrom(idx)
		})
	}
}

// MarkObjectsAccessibleFromRoot is the externally exposed ad-hoc root
// marking entry point.
func (h *Heap) MarkObjectsAccessibleFromRoot(root OTEIndex) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.markFrom(root)
}
