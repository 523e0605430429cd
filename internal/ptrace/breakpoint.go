//go:build linux

package ptrace

import (
	"encoding/binary"
	"fmt"
	"syscall"
)

// int3Opcode is the one-byte software breakpoint trap on x86-64.
const int3Opcode = 0xCC

// HandlerFunc is invoked when the thread identified by pid traps at the
// breakpoint it is registered against; regs is that thread's register
// snapshot at the moment of the trap (rip already points one byte past the
// trap). A HandlerFunc normally closes over whatever shadow state it
// updates; see internal/dispatch for the concrete handlers.
type HandlerFunc func(pid int, regs *syscall.PtraceRegs)

// HookSpec is one (address, handler) pair as supplied by the compiled-in
// hook table.
type HookSpec struct {
	Address uint64
	Handler HandlerFunc
}

// entry is a single tracked breakpoint: its address, its handler, and the
// machine word that was at that address before any patching.
type entry struct {
	address   uint64
	handler   HandlerFunc
	savedWord int64
	captured  bool // savedWord has been read from the target at least once
	armed     bool
}

// Table owns every breakpoint the tracer has installed, keyed by address,
// and is the sole authority on what byte currently sits at each address.
type Table struct {
	entries map[uint64]*entry
}

// NewTable builds an (unarmed) table from the given hook specs. Duplicate
// addresses keep the last spec, matching a map's natural semantics.
func NewTable(specs []HookSpec) *Table {
	t := &Table{entries: make(map[uint64]*entry, len(specs))}
	for _, s := range specs {
		t.entries[s.Address] = &entry{address: s.Address, handler: s.Handler}
	}
	return t
}

// ArmAll installs every breakpoint in the table against pid's text. A
// failure to peek or poke one address is reported but does not stop the
// rest of the table from installing (PatchFailed is per-hook, not fatal).
func (t *Table) ArmAll(pid int) []error {
	var errs []error
	for _, e := range t.entries {
		if err := t.arm(pid, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// Lookup finds the breakpoint matching a trapped thread's rip. INT3 is a
// one-byte instruction, so the address that was patched is rip-1.
func (t *Table) Lookup(rip uint64) (address uint64, handler HandlerFunc, ok bool) {
	addr := rip - 1
	e, found := t.entries[addr]
	if !found {
		return 0, nil, false
	}
	return e.address, e.handler, true
}

// Restore writes the original, unpatched word back at addr.
func (t *Table) Restore(pid int, addr uint64) error {
	e, ok := t.entries[addr]
	if !ok {
		return fmt.Errorf("%w: restore: no breakpoint at %#x", ErrPatchFailed, addr)
	}
	if err := pokeWord(pid, addr, e.savedWord); err != nil {
		return fmt.Errorf("%w: restore at %#x: %v", ErrPatchFailed, addr, err)
	}
	e.armed = false
	return nil
}

// Rearm reinstalls the trap byte at addr, using the saved word captured
// when the breakpoint was first armed.
func (t *Table) Rearm(pid int, addr uint64) error {
	e, ok := t.entries[addr]
	if !ok {
		return fmt.Errorf("%w: rearm: no breakpoint at %#x", ErrPatchFailed, addr)
	}
	return t.arm(pid, e)
}

func (t *Table) arm(pid int, e *entry) error {
	if !e.captured {
		word, err := peekWord(pid, e.address)
		if err != nil {
			return fmt.Errorf("%w: peek at %#x: %v", ErrPatchFailed, e.address, err)
		}
		e.savedWord = word
		e.captured = true
	}
	patched := (e.savedWord &^ 0xFF) | int3Opcode
	if err := pokeWord(pid, e.address, patched); err != nil {
		return fmt.Errorf("%w: poke at %#x: %v", ErrPatchFailed, e.address, err)
	}
	e.armed = true
	return nil
}

func peekWord(pid int, addr uint64) (int64, error) {
	var buf [8]byte
	n, err := syscall.PtracePeekText(pid, uintptr(addr), buf[:])
	if err != nil {
		return 0, err
	}
	if n != len(buf) {
		return 0, fmt.Errorf("short peek: got %d bytes, want %d", n, len(buf))
	}
	return int64(binary.LittleEndian.Uint64(buf[:])), nil
}

func pokeWord(pid int, addr uint64, word int64) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(word))
	n, err := syscall.PtracePokeText(pid, uintptr(addr), buf[:])
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("short poke: got %d bytes, want %d", n, len(buf))
	}
	return nil
}
