package objmem

// Flags packs an object table entry's state into a single byte: free/live,
// pointer/byte shape, weakness, finalization, the toggling mark bit,
// stickiness, and a 2-bit space tag.
type Flags uint8

const (
	FlagFree     Flags = 1 << iota // entry is on the free list; body pointer is invalid
	FlagPointers                   // body holds tagged Oop words rather than opaque bytes
	FlagWeak                       // indexable slots [F..N) are weak, not strong
	FlagFinalize                   // object must be queued for finalization before reclaim
	FlagMark                       // current value must equal the Heap's toggling mark bit to count as reached
	FlagSticky                     // ignored by refcount decrements; reclaimed only by tracing
)

// Space occupies the top two bits of the flags byte.
type Space uint8

const (
	SpaceNormal Space = iota
	SpacePool
	SpacePermanent
	SpaceReserved
)

const (
	spaceShift = 6
	spaceMask  = Flags(0x3) << spaceShift
)

func (f Flags) Space() Space {
	return Space((f & spaceMask) >> spaceShift)
}

func (f Flags) WithSpace(s Space) Flags {
	return (f &^ spaceMask) | (Flags(s) << spaceShift)
}

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

func (f Flags) Set(bit Flags) Flags   { return f | bit }
func (f Flags) Clear(bit Flags) Flags { return f &^ bit }
