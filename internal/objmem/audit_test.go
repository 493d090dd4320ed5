package objmem

import "testing"

func TestAuditFindsNoMismatchOnConsistentGraph(t *testing.T) {
	h := newTestHeap(t, &fakeStack{}, nil, nil)

	child := mustNewObject(t, h, NoIndex, 0, false)
	parent := mustNewObject(t, h, NoIndex, 1, true)
	h.Fields(parent)[0] = OopRef(child)
	h.IncRef(child)

	report := h.Audit()
	if len(report.Mismatches) != 0 {
		t.Fatalf("expected no mismatches on a correctly ref-counted graph, got %v", report.Mismatches)
	}
}

func TestAuditDetectsUndercount(t *testing.T) {
	h := newTestHeap(t, &fakeStack{}, nil, nil)

	child := mustNewObject(t, h, NoIndex, 0, false)
	parent := mustNewObject(t, h, NoIndex, 1, true)
	h.Fields(parent)[0] = OopRef(child)
	// Deliberately skip the IncRef a correct store would have performed.

	report := h.Audit()
	if len(report.Mismatches) != 1 {
		t.Fatalf("expected exactly one mismatch, got %v", report.Mismatches)
	}

	m := report.Mismatches[0]
	if m.Index != child || !m.TooSmall {
		t.Fatalf("expected child's stored count to read too small, got %+v", m)
	}
}

func TestAuditReconcilesStackReferences(t *testing.T) {
	stack := &fakeStack{}
	h := newTestHeap(t, stack, nil, nil)

	onlyStackHeld := mustNewObject(t, h, NoIndex, 0, false)
	stack.roots = []OTEIndex{onlyStackHeld}

	report := h.Audit()
	for _, m := range report.Mismatches {
		if m.Index == onlyStackHeld {
			t.Fatalf("an object held alive only by a stack reference should not surface a mismatch, got %+v", m)
		}
	}
}

func TestSnapshotRoundTripsFormatVersion(t *testing.T) {
	h := newTestHeap(t, &fakeStack{}, nil, nil)

	snap := h.TakeSnapshot(fixedTestTime())
	if snap.FormatVersion != SnapshotFormatVersion {
		t.Fatalf("snapshot format version = %q, want %q", snap.FormatVersion, SnapshotFormatVersion)
	}

	ok, err := CompatibleWith(snap)
	if err != nil {
		t.Fatalf("CompatibleWith: %v", err)
	}

	if !ok {
		t.Fatalf("a snapshot taken with this build's own format version should be compatible with itself")
	}
}

func TestSnapshotIncompatibleAcrossMajorVersion(t *testing.T) {
	snap := Snapshot{FormatVersion: "2.0.0"}

	ok, err := CompatibleWith(snap)
	if err != nil {
		t.Fatalf("CompatibleWith: %v", err)
	}

	if ok {
		t.Fatalf("a snapshot from a later major format version should not be reported compatible")
	}
}
