package objmem

// InstanceSpec is the bit-packed instance specification a class (Behavior)
// carries. The collector reads only this record and, for weak mourner
// classes, the Mourner bit — it never inspects method dictionaries or
// superclass chains.
type InstanceSpec struct {
	FixedFields    uint8 // F: number of named instance variables
	Mourner        bool  // weak class instances are notified on bereavement
	Indirect       bool  // instance variables are stored behind an indirection (unused by the GC directly, carried for parity with the source layout)
	Indexable      bool  // instances have a variable-length tail beyond FixedFields
	Pointers       bool  // body holds Oop words; false means a byte object
	NullTerminated bool  // byte bodies are conventionally nul-terminated (strings)
	ExtraSpec      uint8
}

// classTable maps a class OTE index to its instance specification. A real
// VM stores this inline in the Behavior object; here it is a side table the
// host populates as classes are defined, keeping the GC core free of any
// notion of method dictionaries or class hierarchies.
type classTable struct {
	specs map[OTEIndex]InstanceSpec
}

func newClassTable() *classTable {
	return &classTable{specs: make(map[OTEIndex]InstanceSpec)}
}

func (t *classTable) set(class OTEIndex, spec InstanceSpec) {
	t.specs[class] = spec
}

func (t *classTable) get(class OTEIndex) InstanceSpec {
	return t.specs[class]
}
