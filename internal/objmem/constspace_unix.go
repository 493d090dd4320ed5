//go:build unix

package objmem

import (
	"syscall"
	"unsafe"

	"golang.org/x/sys/unix"
)

// MprotectConstSpace guards a page-aligned memory region (the permanent
// prefix's backing pages, once a host maps them with their own mmap rather
// than going through the general allocator) by toggling PROT_READ|PROT_WRITE
// against PROT_READ during compaction's brief rewrite window.
type MprotectConstSpace struct {
	addr unsafe.Pointer
	size int
}

// NewMprotectConstSpace wraps a region beginning at addr, size bytes long.
// The caller is responsible for addr being page-aligned and size a multiple
// of the system page size — mmap-backed regions satisfy both automatically.
func NewMprotectConstSpace(addr unsafe.Pointer, size int) *MprotectConstSpace {
	return &MprotectConstSpace{addr: addr, size: size}
}

func (c *MprotectConstSpace) region() []byte {
	return unsafe.Slice((*byte)(c.addr), c.size)
}

func (c *MprotectConstSpace) Unprotect() error {
	if c == nil || c.addr == nil {
		return nil
	}

	return mprotectRetry(c.region(), unix.PROT_READ|unix.PROT_WRITE)
}

func (c *MprotectConstSpace) Protect() error {
	if c == nil || c.addr == nil {
		return nil
	}

	return mprotectRetry(c.region(), unix.PROT_READ)
}

// mprotectRetry retries once on EINTR, the only transient failure
// mprotect(2) defines.
func mprotectRetry(b []byte, prot int) error {
	err := unix.Mprotect(b, prot)
	if err == syscall.EINTR {
		err = unix.Mprotect(b, prot)
	}

	return err
}
