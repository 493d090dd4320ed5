package objmem

// sweep scans the OT once to build the dying set (unmarked, non-free
// entries) and runs the three passes in the required order: finalizer
// rescue, weak bereavement, deallocation. Finalizer rescue must precede
// weak bereavement (weak refs to rescued objects must not be nilled);
// both must precede deallocation.
func (h *Heap) sweep() {
	dying := h.rescueFinalizables()
	h.bereaveWeaklings()
	h.deallocateDying(dying)
}

// rescueFinalizables builds the dying list with a single OT scan. Any
// dying entry with Finalize set has its transitive closure marked reachable
// with the current mark (rescuing it for one more cycle so the finalizer
// runs against a valid object graph), while the candidate itself is forced
// back to the old mark so it still reads as dying — the deallocation pass
// below is what actually enqueues it and marks it live going forward.
func (h *Heap) rescueFinalizables() []OTEIndex {
	var dying []OTEIndex

	otCap := OTEIndex(h.ot.Capacity())
	for i := h.ot.NumPermanent(); i < otCap; i++ {
		e := h.ot.At(i)
		if e.Free() || e.Marked(h.currentMark) {
			continue
		}

		dying = append(dying, i)

		if e.Finalize() && h.Collaborators.Finalizer != nil {
			h.markFrom(i)
			e.flags = setMarkTo(e.flags, !h.currentMark)
		}
	}

	h.stats.Marked += uint64(len(dying))

	return dying
}

// bereaveWeaklings performs the second OT scan: every non-free weak object,
// whether or not it is itself dying, has its indexable slots checked for
// references to free or dying referents. Such slots are replaced with the
// Corpse and counted as a loss; mourner classes with losses are notified
// and rescued so they can observe the bereavement.
func (h *Heap) bereaveWeaklings() {
	otCap := OTEIndex(h.ot.Capacity())

	for i := OTEIndex(0); i < otCap; i++ {
		e := h.ot.At(i)
		if e.Free() || !e.Weak() || !e.Pointers() {
			continue
		}

		spec := h.classes.get(e.class)
		fields := e.fields()
		losses := 0

		for j := int(spec.FixedFields); j < len(fields); j++ {
			field := fields[j]
			if field.IsImmediate() {
				continue
			}

			fi := field.Index()
			if fi == NoIndex || fi < 0 || int(fi) >= h.ot.Capacity() {
				continue
			}

			target := h.ot.At(fi)
			if target.Free() {
				fields[j] = OopRef(VMCorpse)
				losses++

				continue
			}

			if !target.Marked(h.currentMark) {
				h.decRefLocked(fi)
				fields[j] = OopRef(VMCorpse)
				losses++
			}
		}

		if losses > 0 {
			if spec.Mourner && h.Collaborators.Mourner != nil {
				h.stats.Bereaved++

				if h.Collaborators.Mourner != nil {
					h.Collaborators.Mourner.QueueForBereavement(i, losses)
				}

				h.markFrom(i)
			}
		}
	}
}

// deallocateDying walks the frozen dying list from rescueFinalizables.
// Entries rescued since (by finalizer rescue forcing back to old mark and
// then immediately being re-marked here, or by bereavement's mourner
// rescue) are skipped; everything still unmarked is a true corpse.
func (h *Heap) deallocateDying(dying []OTEIndex) {
	for _, idx := range dying {
		e := h.ot.At(idx)
		if e.Free() || e.Marked(h.currentMark) {
			continue
		}

		if e.Finalize() && h.Collaborators.Finalizer != nil {
			if h.Collaborators.Finalizer != nil {
				h.Collaborators.Finalizer.QueueForFinalization(idx)
			}

			e.flags = e.flags.Clear(FlagFinalize)
			e.flags = setMarkTo(e.flags, h.currentMark)
			h.stats.Finalized++

			continue
		}

		h.deallocateLocked(idx)
	}

	if h.Collaborators.Scheduler != nil && h.stats.Finalized > 0 {
		h.Collaborators.Scheduler.ScheduleFinalization()
	}
}

// deallocateLocked is the true-corpse path: decrement the class and, for a
// pointer object, every non-immediate non-free field one level only —
// marking has already identified the whole dying set, so a deeper
// recursion here would double-count. Then release the body and free the
// OTE.
func (h *Heap) deallocateLocked(idx OTEIndex) {
	e := h.ot.At(idx)
	if e.Free() {
		return
	}

	if e.class != NoIndex && int(e.class) < h.ot.Capacity() {
		h.decRefLocked(e.class)
	}

	if e.Pointers() {
		for _, f := range e.fields() {
			h.decRefFieldLocked(f)
		}
	}

	e.count = 0
	h.ot.release(idx)
	h.stats.Swept++
}
