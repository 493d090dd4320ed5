package allocator

import "unsafe"

// WordSize is the size in bytes of a single tagged pointer-object field.
const WordSize = unsafe.Sizeof(uintptr(0))

// AllocBody acquires memory for an object body through the active global
// allocator. count is an element count: words for a pointer object, bytes
// for a byte object. Initialize must have been called first.
func AllocBody(count uintptr, pointers bool) unsafe.Pointer {
	if GlobalAllocator == nil {
		panic("allocator: global allocator not initialized")
	}

	if count == 0 {
		return nil
	}

	size := count
	if pointers {
		size = count * WordSize
	}

	return GlobalAllocator.Alloc(size)
}

// FreeBody releases an object body previously obtained from AllocBody.
func FreeBody(ptr unsafe.Pointer) {
	if ptr == nil || GlobalAllocator == nil {
		return
	}

	GlobalAllocator.Free(ptr)
}

// EnsureInitialized sets up the global allocator with the optimized,
// size-classed pools if no allocator has been installed yet.
func EnsureInitialized() error {
	if GlobalAllocator != nil {
		return nil
	}

	return Initialize(OptimizedAllocatorKind)
}
