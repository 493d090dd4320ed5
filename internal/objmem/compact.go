package objmem

// ConstSpaceGuard brackets the pointer-rewrite phase of compaction, during
// which the permanent/const prefix's backing pages are briefly made
// writable so forwarding can patch any const-space field that happened to
// reference a moved object, then restored read-only. The default Heap
// construction leaves this nil, which skips the protection toggle
// entirely — a host not mapping const space into protected pages (or not
// running on a platform this module guards) simply gets no-op compaction
// safety here.
type ConstSpaceGuard interface {
	Unprotect() error
	Protect() error
}

// Compact runs a full stop-the-world collection followed by a compacting
// pass: EmptyZct, mark, sweep, then the two-finger slide that squeezes
// every surviving OTE into a single contiguous prefix starting after the
// permanent region, and rethreads the free list through the resulting
// tail. Object identity (the OTE index mutators hold as an Oop) is
// preserved for everything that doesn't move; anything that does move
// leaves a forwarding pointer behind so every other live field naming it
// gets rewritten in place.
func (h *Heap) Compact() (int, error) {
	if err := h.requireCorpse(); err != nil {
		return 0, err
	}

	if h.Collaborators.Async != nil {
		h.Collaborators.Async.Grab()
		defer h.Collaborators.Async.Relinquish()
	}

	h.EmptyZct()

	h.mu.Lock()
	h.mark()
	h.sweep()
	moved, newFreeHead := h.slideLive()

	if h.ConstSpace != nil {
		_ = h.ConstSpace.Unprotect()
	}

	h.rewriteForwarded(newFreeHead)

	if h.ConstSpace != nil {
		_ = h.ConstSpace.Protect()
	}

	if h.Collaborators.Compaction != nil {
		h.Collaborators.Compaction.OnCompact()
	}

	h.ot.rethreadFreeListFrom(newFreeHead)
	h.stats.Compactions++
	h.stats.Moved += uint64(moved)
	h.mu.Unlock()

	h.PopulateZct()

	return moved, nil
}

// slideLive performs the two-finger walk: last scans down for a live
// (non-free) tail entry, first scans up for a free slot to receive it. Each
// move leaves a forwarding pointer — the tail entry's vacated slot is
// marked free with next set to the slot it was copied into — so the
// subsequent rewrite phase can resolve any stale reference. The walk
// terminates when the two fingers meet; everything from NumPermanent up to
// that meeting point is now a single contiguous live run.
func (h *Heap) slideLive() (moved int, newFreeHead OTEIndex) {
	otCap := OTEIndex(h.ot.Capacity())
	first := h.ot.NumPermanent()
	last := otCap - 1

	for {
		for last > first && h.ot.At(last).Free() {
			last--
		}

		for first < last && !h.ot.At(first).Free() {
			first++
		}

		if first == last {
			// The fingers met on the slot itself: if it's free (e.g. no
			// live non-permanent entries at all), it must not be counted
			// as part of the live prefix, or it leaks out of the free
			// list entirely once rethreadFreeListFrom starts past it.
			if h.ot.At(last).Free() {
				return moved, last
			}

			return moved, last + 1
		}

		*h.ot.At(first) = *h.ot.At(last)

		tail := h.ot.At(last)
		*tail = OTE{flags: FlagFree, next: first, count: 0}
		moved++
		last--
	}
}

// rewriteForwarded walks the now-contiguous live prefix and patches every
// class pointer and pointer-object field that names a slot which moved,
// following the forwarding pointer left behind in slideLive. Byte objects
// have no fields to patch.
func (h *Heap) rewriteForwarded(liveEnd OTEIndex) {
	for i := OTEIndex(0); i < liveEnd; i++ {
		e := h.ot.At(i)
		if e.Free() {
			continue
		}

		e.class = h.resolveForward(e.class)

		if !e.Pointers() {
			continue
		}

		fields := e.fields()
		for j := range fields {
			f := fields[j]
			if f.IsImmediate() {
				continue
			}

			resolved := h.resolveForward(f.Index())
			if resolved != f.Index() {
				fields[j] = OopRef(resolved)
			}
		}
	}
}

// ResolveForward is the collaborator-facing counterpart of resolveForward,
// valid only from inside a CompactionObserver.OnCompact callback: the
// window after the rewrite phase has patched every live field but before
// the free list is rethreaded and the forwarding pointers it relied on are
// overwritten. A host holding its own cached Oops (a register file, a
// method cache) uses this to follow them to their post-compaction home.
func (h *Heap) ResolveForward(idx OTEIndex) OTEIndex {
	return h.resolveForward(idx)
}

// resolveForward follows a single forwarding hop: idx unchanged if its slot
// is still live (never moved), or the slot it moved to if slideLive freed
// it as part of the slide. A dead (truly garbage) free entry is never
// referenced by a live field — mark/sweep already guarantees that — so
// there's no case where this needs to chase more than one hop.
func (h *Heap) resolveForward(idx OTEIndex) OTEIndex {
	if idx == NoIndex {
		return idx
	}

	e := h.ot.At(idx)
	if e.Free() {
		return e.next
	}

	return idx
}

// rethreadFreeListFrom rebuilds the free list as a single run from
// liveEnd to the table's tail, now that compaction has made every free
// slot contiguous.
func (ot *ObjectTable) rethreadFreeListFrom(liveEnd OTEIndex) {
	otCap := OTEIndex(len(ot.entries))

	if liveEnd >= otCap {
		ot.freeHead = NoIndex
		return
	}

	ot.freeHead = liveEnd

	for i := liveEnd; i < otCap; i++ {
		ot.entries[i].flags = FlagFree
		ot.entries[i].count = 0

		if i+1 < otCap {
			ot.entries[i].next = i + 1
		} else {
			ot.entries[i].next = NoIndex
		}
	}
}
