package objmem

import (
	"unsafe"

	"github.com/talkvm/core/internal/allocator"
	objerrors "github.com/talkvm/core/internal/errors"
)

// otPageEntries is the growth increment: the table is grown a page of
// entries at a time rather than one slot at a time.
const otPageEntries = 1024

// MaxCount is the saturating refcount ceiling. An entry at MaxCount is
// "sticky-by-saturation": decref never lowers it further, and it is
// reclaimed only by tracing.
const MaxCount uint8 = 255

// OTE is an Object Table Entry: the heap's handle to an object.
//
// body and next share a role the way the source's single body-pointer
// field does double duty: when the entry is free (or, during compaction,
// forwarding), next is the only valid link and body is stale. Go's pointer
// rules make reusing one field for both a pointer and an index awkward, so
// the two are kept as separate fields instead of reinterpreting one.
type OTE struct {
	body  unsafe.Pointer // object body address; valid only when !Free
	next  OTEIndex       // free-list link, or forwarding target once reused by compaction; valid only when Free
	class OTEIndex
	size  uintptr // element count: words for pointer objects, bytes for byte objects
	flags Flags
	count uint8
}

func (e *OTE) Free() bool      { return e.flags.Has(FlagFree) }
func (e *OTE) Pointers() bool  { return e.flags.Has(FlagPointers) }
func (e *OTE) Weak() bool      { return e.flags.Has(FlagWeak) }
func (e *OTE) Finalize() bool  { return e.flags.Has(FlagFinalize) }
func (e *OTE) Marked(cur bool) bool { return e.flags.Has(FlagMark) == cur }
func (e *OTE) Sticky() bool    { return e.flags.Has(FlagSticky) }
func (e *OTE) Class() OTEIndex { return e.class }
func (e *OTE) Count() uint8    { return e.count }

// fields returns the pointer object's tagged words. Behavior is undefined
// if the entry is not a pointer object.
func (e *OTE) fields() []Oop {
	if e.body == nil || e.size == 0 {
		return nil
	}

	return unsafe.Slice((*Oop)(e.body), int(e.size))
}

// bytesPayload returns the byte object's payload. Behavior is undefined if the
// entry is a pointer object.
func (e *OTE) bytesPayload() []byte {
	if e.body == nil || e.size == 0 {
		return nil
	}

	return unsafe.Slice((*byte)(e.body), int(e.size))
}

// ObjectTable is a growable array of OTEs with a singly linked free list
// threaded through the free entries themselves.
type ObjectTable struct {
	entries      []OTE
	freeHead     OTEIndex
	numPermanent OTEIndex
}

// NewObjectTable creates a table with numPermanent reserved, sticky
// entries occupying the prefix [0, numPermanent).
func NewObjectTable(numPermanent int) *ObjectTable {
	ot := &ObjectTable{freeHead: NoIndex, numPermanent: OTEIndex(numPermanent)}
	ot.grow(otPageEntries)

	for i := 0; i < numPermanent; i++ {
		ot.entries[i].flags = ot.entries[i].flags.Clear(FlagFree).Set(FlagSticky).WithSpace(SpacePermanent)
		ot.entries[i].next = NoIndex
	}
	// Thread the remaining fresh entries into the free list, skipping the
	// reserved permanent prefix: those entries are live (not free), so they
	// must never appear on the free list.
	ot.freeHead = NoIndex
	for i := len(ot.entries) - 1; i >= numPermanent; i-- {
		ot.entries[i].flags = ot.entries[i].flags.Set(FlagFree)
		ot.entries[i].next = ot.freeHead
		ot.freeHead = OTEIndex(i)
	}

	return ot
}

func (ot *ObjectTable) grow(n int) {
	base := len(ot.entries)
	ot.entries = append(ot.entries, make([]OTE, n)...)

	for i := len(ot.entries) - 1; i >= base; i-- {
		ot.entries[i].flags = FlagFree
		ot.entries[i].next = ot.freeHead
		ot.freeHead = OTEIndex(i)
	}
}

// Capacity returns the table's current slot count.
func (ot *ObjectTable) Capacity() int { return len(ot.entries) }

// At returns a pointer to the entry at i for direct field inspection. The
// caller must not retain it across a compaction.
func (ot *ObjectTable) At(i OTEIndex) *OTE { return &ot.entries[i] }

// NumPermanent returns the size of the reserved, sticky prefix.
func (ot *ObjectTable) NumPermanent() OTEIndex { return ot.numPermanent }

// allocate pops a free entry (growing the table if necessary), wires up its
// body/class/size/flags, and returns its index with refcount zero.
func (ot *ObjectTable) allocate(class OTEIndex, count uintptr, pointers bool) (OTEIndex, error) {
	if ot.freeHead == NoIndex {
		ot.grow(otPageEntries)
	}

	idx := ot.freeHead
	e := &ot.entries[idx]
	ot.freeHead = e.next

	body := allocator.AllocBody(count, pointers)
	if count > 0 && body == nil {
		// Entry stays free; relink it at the head since we never committed it.
		e.next = ot.freeHead
		ot.freeHead = idx

		return NoIndex, objerrors.InvalidSize(count, "objmem.ObjectTable.allocate")
	}

	flags := Flags(0)
	if pointers {
		flags = flags.Set(FlagPointers)
	}

	*e = OTE{body: body, next: NoIndex, class: class, size: count, flags: flags, count: 0}

	return idx, nil
}

// release returns idx's body to the allocator and threads it onto the free
// list. The caller is responsible for having already driven its refcount
// bookkeeping to zero.
func (ot *ObjectTable) release(idx OTEIndex) {
	e := &ot.entries[idx]
	allocator.FreeBody(e.body)
	*e = OTE{flags: FlagFree, next: ot.freeHead}
	ot.freeHead = idx
}

// freeCount walks the free list; used by tests asserting the
// free-list-length + live-count = capacity invariant.
func (ot *ObjectTable) freeCount() int {
	n := 0
	for i := ot.freeHead; i != NoIndex; i = ot.entries[i].next {
		n++
	}

	return n
}
