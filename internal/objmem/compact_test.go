package objmem

import "testing"

type fakeCompactionObserver struct {
	onCompact func()
}

func (f *fakeCompactionObserver) OnCompact() {
	if f.onCompact != nil {
		f.onCompact()
	}
}

// TestCompactPreservesIdentityAndForwardsMovedReferences builds a small
// live graph with one unreachable gap between live entries, runs Compact,
// and verifies: an object never touched by the slide keeps its index: a
// moved object's old slot becomes a forwarding pointer any live field
// naming it gets rewritten through.
func TestCompactPreservesIdentityAndForwardsMovedReferences(t *testing.T) {
	stack := &fakeStack{}
	h := newTestHeap(t, stack, nil, nil)

	a := mustNewObject(t, h, NoIndex, 0, false)
	_ = mustNewObject(t, h, NoIndex, 0, false) // b: left unreferenced, becomes the gap
	c := mustNewObject(t, h, NoIndex, 1, true)
	d := mustNewObject(t, h, NoIndex, 0, false)

	h.Fields(c)[0] = OopRef(d)
	stack.roots = []OTEIndex{a, c}

	var newC, newD OTEIndex
	h.Collaborators.Compaction = &fakeCompactionObserver{onCompact: func() {
		newC = h.ResolveForward(c)
		newD = h.ResolveForward(d)
	}}

	moved, err := h.Compact()
	if err != nil {
		t.Fatalf("Compact: %v", err)
	}

	if moved == 0 {
		t.Fatalf("expected at least one OTE to move into the gap left by the collected object")
	}

	if h.ot.At(a).Free() {
		t.Fatalf("a was never a candidate to move and should keep its original slot live")
	}

	if h.Fields(newC)[0].Index() != newD {
		t.Fatalf("c's field referencing d should have been rewritten to d's post-compaction slot")
	}
}

func TestCompactRefusedBeforeCorpseRegistered(t *testing.T) {
	h, err := NewHeap(DefaultConfig(), Collaborators{Stack: &fakeStack{}})
	if err != nil {
		t.Fatalf("NewHeap: %v", err)
	}

	if _, err := h.Compact(); err == nil {
		t.Fatalf("Compact before RegisterCorpse should be refused")
	}
}
