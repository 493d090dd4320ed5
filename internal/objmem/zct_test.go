package objmem

import "testing"

func TestEmptyZctReclaimsUnreferencedMember(t *testing.T) {
	stack := &fakeStack{}
	h := newTestHeap(t, stack, nil, nil)

	idx := mustNewObject(t, h, NoIndex, 0, false)
	h.IncRef(idx)
	h.DecRef(idx) // lands on the ZCT, not reachable from the stack

	h.EmptyZct()

	if !h.ot.At(idx).Free() {
		t.Fatalf("ZCT member unreachable from the active stack should be reclaimed")
	}
}

func TestEmptyZctSparesStackReferencedMember(t *testing.T) {
	stack := &fakeStack{}
	h := newTestHeap(t, stack, nil, nil)

	idx := mustNewObject(t, h, NoIndex, 0, false)
	h.IncRef(idx)
	h.DecRef(idx)

	stack.roots = []OTEIndex{idx}

	h.EmptyZct()

	if h.ot.At(idx).Free() {
		t.Fatalf("ZCT member still referenced from the active stack must survive")
	}

	if h.ot.At(idx).Count() != 1 {
		t.Fatalf("EmptyZct's provisional incref from the stack walk should leave count=1, got %d", h.ot.At(idx).Count())
	}

	h.PopulateZct()

	if h.ot.At(idx).Count() != 0 {
		t.Fatalf("PopulateZct should undo the provisional incref, got count=%d", h.ot.At(idx).Count())
	}

	if _, inZct := h.zct.members[idx]; !inZct {
		t.Fatalf("decrementing back to zero during PopulateZct should re-enter the ZCT for the next cycle")
	}
}

func TestEmptyZctCascadesThroughFields(t *testing.T) {
	stack := &fakeStack{}
	h := newTestHeap(t, stack, nil, nil)

	child := mustNewObject(t, h, NoIndex, 0, false)
	parent := mustNewObject(t, h, NoIndex, 1, true)

	h.Fields(parent)[0] = OopRef(child)
	h.IncRef(child)
	h.IncRef(parent)
	h.DecRef(parent)

	h.EmptyZct()

	if !h.ot.At(parent).Free() {
		t.Fatalf("unreferenced parent should be reclaimed")
	}

	if !h.ot.At(child).Free() {
		t.Fatalf("reclaiming the parent should cascade the decref into its field and free the child too")
	}
}
