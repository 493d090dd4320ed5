package objmem

// Oop is a tagged word stored in a pointer object's fields: either an
// immediate small integer (low bit set) or an OTE reference (low bit
// clear).
type Oop uintptr

// OTEIndex identifies an entry in the Object Table. It is the object's
// identity: bodies never move, only the OTE they occupy can be relocated
// during compaction.
type OTEIndex int32

// NoIndex is the sentinel terminating the free list and marking an absent
// class/field reference.
const NoIndex OTEIndex = -1

// MakeSmallInteger packs v as an immediate Oop.
func MakeSmallInteger(v int64) Oop {
	return Oop(uint64(v)<<1 | 1)
}

// IsImmediate reports whether o is a small integer rather than an OTE
// reference.
func (o Oop) IsImmediate() bool { return o&1 == 1 }

// SmallInteger unpacks an immediate Oop's value. Behavior is undefined if o
// is not immediate.
func (o Oop) SmallInteger() int64 { return int64(o) >> 1 }

// OopRef packs idx as a non-immediate Oop. idx must be non-negative.
func OopRef(idx OTEIndex) Oop { return Oop(idx) << 1 }

// Index unpacks a non-immediate Oop's OTE index. Behavior is undefined if o
// is immediate.
func (o Oop) Index() OTEIndex { return OTEIndex(o >> 1) }
