package objmem

import "testing"

func TestIncRefSaturates(t *testing.T) {
	h := newTestHeap(t, &fakeStack{}, nil, nil)
	idx := mustNewObject(t, h, NoIndex, 0, false)

	for i := 0; i < int(MaxCount)+10; i++ {
		h.IncRef(idx)
	}

	if got := h.ot.At(idx).Count(); got != MaxCount {
		t.Fatalf("count = %d, want saturated at %d", got, MaxCount)
	}
}

func TestDecRefToZeroEntersZct(t *testing.T) {
	h := newTestHeap(t, &fakeStack{}, nil, nil)
	idx := mustNewObject(t, h, NoIndex, 0, false)

	h.IncRef(idx)
	h.DecRef(idx)

	if h.ot.At(idx).Count() != 0 {
		t.Fatalf("count should be 0 after matching inc/dec")
	}

	if _, inZct := h.zct.members[idx]; !inZct {
		t.Fatalf("object reaching zero refcount should be pushed to the ZCT")
	}
}

func TestStickyEntryIgnoresRefcountOps(t *testing.T) {
	h := newTestHeap(t, &fakeStack{}, nil, nil)

	nilEntry := h.ot.At(VMNil)
	if !nilEntry.Sticky() {
		t.Fatalf("VMNil should be marked sticky by AddVMRefs")
	}

	h.DecRef(VMNil)
	h.DecRef(VMNil)

	if _, inZct := h.zct.members[VMNil]; inZct {
		t.Fatalf("sticky entries must never land in the ZCT")
	}
}
