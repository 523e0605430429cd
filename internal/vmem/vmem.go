// Package vmem provides partial-failure-safe reads of the tracee's virtual
// address space: fixed-size blobs, little-endian primitives, and the
// target's length-prefixed string representation.
//
// Every read here can fail (the tracee may be mid-mutation, or the address
// may simply be garbage read from an uninitialized register); callers must
// treat a returned error as "this hit produced nothing", never as fatal.
package vmem

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"

	"golang.org/x/sys/unix"
)

// ErrReadFailed is wrapped by every error this package returns, so callers
// can test with errors.Is(err, vmem.ErrReadFailed) without caring which step
// failed.
var ErrReadFailed = errors.New("target memory read failed")

// maxStringLen bounds the length field ReadString trusts before
// allocating; it exists only to stop a garbage header from driving an
// unbounded allocation, not because the ABI imposes this limit.
const maxStringLen = 1 << 20

// Vec3 is three little-endian float32 values as laid out in the target's
// address space.
type Vec3 struct {
	X, Y, Z float32
}

// Reader reads from one tracee's address space via the kernel's
// cross-process vector read facility (process_vm_readv).
type Reader struct {
	pid int
}

// New returns a Reader bound to pid. The tracee need not be stopped for
// process_vm_readv to succeed, but the tracer only ever calls this while the
// tracee is stopped at a breakpoint.
func New(pid int) *Reader {
	return &Reader{pid: pid}
}

// ReadBytes copies length bytes from addr in the tracee into a fresh slice.
// It fails if the kernel returns fewer bytes than requested; a partial read
// is treated the same as no read at all.
func (r *Reader) ReadBytes(addr uint64, length int) ([]byte, error) {
	if length == 0 {
		return nil, nil
	}
	buf := make([]byte, length)
	local := []unix.Iovec{{Base: &buf[0]}}
	local[0].SetLen(length)
	remote := []unix.RemoteIovec{{Base: uintptr(addr), Len: length}}

	n, err := unix.ProcessVMReadv(r.pid, local, remote, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: process_vm_readv at %#x: %v", ErrReadFailed, addr, err)
	}
	if n != length {
		return nil, fmt.Errorf("%w: short read at %#x: got %d bytes, want %d", ErrReadFailed, addr, n, length)
	}
	return buf, nil
}

// ReadVec3 reads a 12-byte blob at addr and reinterprets it as three
// little-endian float32 values.
func (r *Reader) ReadVec3(addr uint64) (Vec3, error) {
	buf, err := r.ReadBytes(addr, 12)
	if err != nil {
		return Vec3{}, err
	}
	return Vec3{
		X: math.Float32frombits(binary.LittleEndian.Uint32(buf[0:4])),
		Y: math.Float32frombits(binary.LittleEndian.Uint32(buf[4:8])),
		Z: math.Float32frombits(binary.LittleEndian.Uint32(buf[8:12])),
	}, nil
}

// ReadString reads the target's small-string-optimized string object at
// addr: a two-field header, (data pointer uint64, length uint64), followed
// by `length` bytes of character data at the pointed-to address. This
// mirrors the standard long-string representation used by the target's
// build and is an ABI assumption specific to it, not a general-purpose
// string reader.
//
// Invalid UTF-8 in the character data is replaced rather than rejected, so a
// cosmetic mojibake never turns into a dropped update.
func (r *Reader) ReadString(addr uint64) (string, error) {
	header, err := r.ReadBytes(addr, 16)
	if err != nil {
		return "", err
	}
	dataPtr := binary.LittleEndian.Uint64(header[0:8])
	length := binary.LittleEndian.Uint64(header[8:16])
	if length == 0 {
		return "", nil
	}
	if length > maxStringLen {
		return "", fmt.Errorf("%w: implausible string length %d at %#x", ErrReadFailed, length, addr)
	}
	data, err := r.ReadBytes(dataPtr, int(length))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(data) {
		return strings.ToValidUTF8(string(data), "�"), nil
	}
	return string(data), nil
}
