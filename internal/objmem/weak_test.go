package objmem

import "testing"

func TestWeakBereavementSubstitutesCorpseAndNotifiesMourner(t *testing.T) {
	mourn := &fakeMourner{}
	h := newTestHeap(t, &fakeStack{}, nil, mourn)

	weakClass := mustNewObject(t, h, NoIndex, 0, false)
	h.SetClassSpec(weakClass, InstanceSpec{FixedFields: 0, Mourner: true, Pointers: true})

	target := mustNewObject(t, h, NoIndex, 0, false)
	weak := mustNewObject(t, h, weakClass, 1, true)
	h.Fields(weak)[0] = OopRef(target)
	h.SetWeak(weak, true)

	h.mu.Lock()
	h.mark()
	h.sweep()
	h.mu.Unlock()

	if !h.ot.At(target).Free() {
		t.Fatalf("the unreachable weak referent should still be collected")
	}

	if h.ot.At(weak).Free() {
		t.Fatalf("a mourner class instance should be rescued for the cycle it loses a referent in")
	}

	if got := h.Fields(weak)[0]; got.Index() != VMCorpse {
		t.Fatalf("bereaved slot should be substituted with the Corpse, got index %d", got.Index())
	}

	if len(mourn.queued) != 1 || mourn.queued[0].weak != weak || mourn.queued[0].losses != 1 {
		t.Fatalf("mourner should be notified once with 1 loss, got %v", mourn.queued)
	}
}

// TestAsyncGCWeakMournerIdempotentAcrossCycles guards against the
// permanent-prefix FlagFree bug's knock-on effect: a weak slot already
// holding the Corpse must not be treated as freshly bereaved again on a
// later cycle with no intervening mutation, or the mourner would be
// renotified and losses recounted every cycle forever.
func TestAsyncGCWeakMournerIdempotentAcrossCycles(t *testing.T) {
	mourn := &fakeMourner{}
	stack := &fakeStack{}
	h := newTestHeap(t, stack, nil, mourn)

	weakClass := mustNewObject(t, h, NoIndex, 0, false)
	h.SetClassSpec(weakClass, InstanceSpec{FixedFields: 0, Mourner: true, Pointers: true})

	target := mustNewObject(t, h, NoIndex, 0, false)
	weak := mustNewObject(t, h, weakClass, 1, true)
	h.Fields(weak)[0] = OopRef(target)
	h.SetWeak(weak, true)
	stack.roots = []OTEIndex{weak}

	if err := h.AsyncGC(0); err != nil {
		t.Fatalf("first AsyncGC: %v", err)
	}

	if !h.ot.At(target).Free() {
		t.Fatalf("the unreachable weak referent should be collected on the first cycle")
	}

	if h.ot.At(weak).Free() {
		t.Fatalf("weak should survive via its stack root")
	}

	if got := h.Fields(weak)[0]; got.Index() != VMCorpse {
		t.Fatalf("bereaved slot should be substituted with the Corpse, got index %d", got.Index())
	}

	if len(mourn.queued) != 1 || mourn.queued[0].weak != weak || mourn.queued[0].losses != 1 {
		t.Fatalf("mourner should be notified once with 1 loss after the first cycle, got %v", mourn.queued)
	}

	if err := h.AsyncGC(0); err != nil {
		t.Fatalf("second AsyncGC: %v", err)
	}

	if h.ot.At(weak).Free() {
		t.Fatalf("weak should still survive via its stack root on the second cycle")
	}

	if got := h.Fields(weak)[0]; got.Index() != VMCorpse {
		t.Fatalf("bereaved slot should remain the Corpse, got index %d", got.Index())
	}

	if len(mourn.queued) != 1 {
		t.Fatalf("a second GC cycle with no mutation must not renotify the mourner, got %v", mourn.queued)
	}
}

func TestWeakWithoutMournerIsNotRescued(t *testing.T) {
	h := newTestHeap(t, &fakeStack{}, nil, nil)

	weakClass := mustNewObject(t, h, NoIndex, 0, false)
	h.SetClassSpec(weakClass, InstanceSpec{FixedFields: 0, Mourner: false, Pointers: true})

	target := mustNewObject(t, h, NoIndex, 0, false)
	weak := mustNewObject(t, h, weakClass, 1, true)
	h.Fields(weak)[0] = OopRef(target)
	h.SetWeak(weak, true)

	h.mu.Lock()
	h.mark()
	h.sweep()
	h.mu.Unlock()

	if !h.ot.At(target).Free() {
		t.Fatalf("unreachable weak referent should be collected")
	}

	if !h.ot.At(weak).Free() {
		t.Fatalf("a non-mourner weak holder with no other roots should be collected like any other garbage")
	}
}
