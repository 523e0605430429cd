// Package dispatch maps each breakpoint hit to the semantic handler that
// reads its arguments from registers and target memory and mutates the
// shadow model. It is the glue between the mechanism (internal/ptrace,
// internal/vmem) and the domain (internal/shadow); neither of those
// packages knows about the other.
package dispatch

import (
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/brightfern/bdswatch/internal/ptrace"
	"github.com/brightfern/bdswatch/internal/shadow"
	"github.com/brightfern/bdswatch/internal/vmem"
)

// MemoryReader is the subset of *vmem.Reader the handlers need; accepting it
// as an interface lets tests substitute a fake target.
type MemoryReader interface {
	ReadVec3(addr uint64) (vmem.Vec3, error)
	ReadString(addr uint64) (string, error)
}

// Handlers closes each breakpoint callback over a shared Level and memory
// reader. A failed memory read or an out-of-range dimension makes the
// handler a no-op for that hit; it never panics and never touches the
// registry beyond what the hook is documented to do.
type Handlers struct {
	Level *shadow.Level
	Mem   MemoryReader
	Log   logrus.FieldLogger
}

// New returns Handlers ready to build a HookSpec table from.
func New(level *shadow.Level, mem MemoryReader, log logrus.FieldLogger) *Handlers {
	return &Handlers{Level: level, Mem: mem, Log: log}
}

// ActorSetPos implements Actor::setPos(Vec3 const&): rdi is the player
// address, rsi a pointer to the new position. Deliberately non-creating:
// an address with no known player is ignored rather than fabricating one.
func (h *Handlers) ActorSetPos(pid int, regs *syscall.PtraceRegs) {
	player := h.Level.Players.GetByAddress(regs.Rdi)
	if player == nil {
		return
	}
	pos, err := h.Mem.ReadVec3(regs.Rsi)
	if err != nil {
		h.Log.WithError(err).Debug("setPos: read position failed")
		return
	}
	player.SetPos(shadow.Vec3{X: pos.X, Y: pos.Y, Z: pos.Z})
}

// PlayerMove implements Player::move(Vec3 const&): rdi the player address,
// rsi a pointer to the position delta.
func (h *Handlers) PlayerMove(pid int, regs *syscall.PtraceRegs) {
	player := h.Level.Players.GetByAddress(regs.Rdi)
	if player == nil {
		return
	}
	delta, err := h.Mem.ReadVec3(regs.Rsi)
	if err != nil {
		h.Log.WithError(err).Debug("move: read delta failed")
		return
	}
	player.Move(shadow.Vec3{X: delta.X, Y: delta.Y, Z: delta.Z})
}

// PlayerSetName implements Player::setName(string const&): rdi the player
// address, rsi a pointer to the target's string object. Rekeys the registry
// by name rather than by address.
func (h *Handlers) PlayerSetName(pid int, regs *syscall.PtraceRegs) {
	name, err := h.Mem.ReadString(regs.Rsi)
	if err != nil {
		h.Log.WithError(err).Debug("setName: read name failed")
		return
	}
	h.Level.Players.GetByName(name, regs.Rdi)
}

// ChangeDimension implements ServerPlayer::changeDimension,
// ...changeDimensionWithCredits, and ...is2DPositionRelevant: all three pass
// the player address in rdi and a dimension id in rsi.
func (h *Handlers) ChangeDimension(pid int, regs *syscall.PtraceRegs) {
	player := h.Level.Players.GetByAddress(regs.Rdi)
	if player == nil {
		return
	}
	player.SetDimension(int(int32(regs.Rsi)))
}

// Destruct implements ServerPlayer::~ServerPlayer(): rdi the player address.
func (h *Handlers) Destruct(pid int, regs *syscall.PtraceRegs) {
	player := h.Level.Players.GetByAddress(regs.Rdi)
	h.Level.Players.Forget(player)
}

// WeatherChanged implements
// LevelEventCoordinator::sendLevelWeatherChanged(string const&, bool, bool):
// rsi a pointer to the dimension name, rdx rain, rcx thunder. Only the
// overworld's weather is tracked.
func (h *Handlers) WeatherChanged(pid int, regs *syscall.PtraceRegs) {
	dimension, err := h.Mem.ReadString(regs.Rsi)
	if err != nil {
		h.Log.WithError(err).Debug("weatherChanged: read dimension name failed")
		return
	}
	if dimension != "Overworld" && dimension != "overworld" {
		return
	}
	h.Level.Weather.Rain = regs.Rdx != 0
	h.Level.Weather.Thunder = regs.Rcx != 0
}

// SetTime implements SetTimePacket::SetTimePacket(int): rsi the new time.
func (h *Handlers) SetTime(pid int, regs *syscall.PtraceRegs) {
	h.Level.Time = int(int32(regs.Rsi))
}

// BuildVersion is the specific game server build these hook addresses were
// captured against. A mismatched build silently yields no hits; resolving
// addresses for other builds is out of scope (see spec's hook-table
// Non-goal).
const BuildVersion = "1.16.220.02"

// HookSpecs returns the compiled-in (address, handler) table for
// BuildVersion, ready to hand to ptrace.NewTable.
func (h *Handlers) HookSpecs() []ptrace.HookSpec {
	return []ptrace.HookSpec{
		{Address: 0x0000000001f9fbd0, Handler: h.ActorSetPos},
		{Address: 0x0000000001b172b0, Handler: h.PlayerMove},
		{Address: 0x0000000001b14270, Handler: h.PlayerSetName},
		{Address: 0x00000000016ac180, Handler: h.ChangeDimension},
		{Address: 0x00000000016ac290, Handler: h.ChangeDimension},
		{Address: 0x00000000016ac970, Handler: h.ChangeDimension},
		{Address: 0x00000000016a46c0, Handler: h.Destruct},
		{Address: 0x00000000016a4530, Handler: h.Destruct},
		{Address: 0x00000000022cb030, Handler: h.WeatherChanged},
		{Address: 0x00000000011e0b00, Handler: h.SetTime},
	}
}
