package objmem

import (
	"testing"
	"time"

	"github.com/talkvm/core/internal/allocator"
)

// fixedTestTime gives tests a reproducible timestamp instead of time.Now().
func fixedTestTime() time.Time {
	return time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
}

// fakeStack is a hand-written ActiveStack fake: a plain slice of roots the
// test controls directly, standing in for the interpreter's real process
// stack.
type fakeStack struct {
	roots []OTEIndex
}

func (s *fakeStack) Walk(visit func(OTEIndex)) {
	for _, r := range s.roots {
		visit(r)
	}
}

// fakeFinalizer and fakeMourner record what the collector queued, for
// assertions, rather than draining through a real queue.
type fakeFinalizer struct {
	queued []OTEIndex
}

func (f *fakeFinalizer) QueueForFinalization(ote OTEIndex) {
	f.queued = append(f.queued, ote)
}

type fakeMourner struct {
	queued []bereavementEntry
}

func (m *fakeMourner) QueueForBereavement(weak OTEIndex, losses int) {
	m.queued = append(m.queued, bereavementEntry{weak: weak, losses: losses})
}

func newTestHeap(t *testing.T, stack *fakeStack, fin Finalizer, mourn Mourner) *Heap {
	t.Helper()

	if err := allocator.EnsureInitialized(); err != nil {
		t.Fatalf("allocator init: %v", err)
	}

	h, err := NewHeap(DefaultConfig(), Collaborators{
		Stack:     stack,
		Finalizer: fin,
		Mourner:   mourn,
	})
	if err != nil {
		t.Fatalf("NewHeap: %v", err)
	}

	h.AddVMRefs()

	corpseClass, err := h.NewObject(NoIndex, 0, false)
	if err != nil {
		t.Fatalf("allocate corpse class placeholder: %v", err)
	}

	corpse, err := h.NewObject(corpseClass, 0, false)
	if err != nil {
		t.Fatalf("allocate corpse: %v", err)
	}

	h.RegisterCorpse(corpse)

	return h
}

// mustNewObject allocates and fails the test on error.
func mustNewObject(t *testing.T, h *Heap, class OTEIndex, count uintptr, pointers bool) OTEIndex {
	t.Helper()

	idx, err := h.NewObject(class, count, pointers)
	if err != nil {
		t.Fatalf("NewObject: %v", err)
	}

	return idx
}
