package dispatch

import (
	"errors"
	"io"
	"syscall"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightfern/bdswatch/internal/shadow"
	"github.com/brightfern/bdswatch/internal/vmem"
)

// fakeMem is an in-process stand-in for a traced process's address space,
// keyed by the same addresses a real ReadVec3/ReadString call would use.
type fakeMem struct {
	vecs map[uint64]vmem.Vec3
	strs map[uint64]string
}

func newFakeMem() *fakeMem {
	return &fakeMem{vecs: map[uint64]vmem.Vec3{}, strs: map[uint64]string{}}
}

func (f *fakeMem) ReadVec3(addr uint64) (vmem.Vec3, error) {
	v, ok := f.vecs[addr]
	if !ok {
		return vmem.Vec3{}, errors.New("fakeMem: no vec3 at address")
	}
	return v, nil
}

func (f *fakeMem) ReadString(addr uint64) (string, error) {
	s, ok := f.strs[addr]
	if !ok {
		return "", errors.New("fakeMem: no string at address")
	}
	return s, nil
}

func discardLog() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return logrus.NewEntry(log)
}

const (
	nameAddr  = 0xA000
	posAddr   = 0xB000
	deltaAddr = 0xB100
	dimAddr   = 0xC000
)

func newScenario() (*Handlers, *shadow.Level, *fakeMem) {
	level := shadow.NewLevel()
	mem := newFakeMem()
	return New(level, mem, discardLog()), level, mem
}

func reportableByName(level *shadow.Level, name string) (shadow.ReportableEntry, bool) {
	var found shadow.ReportableEntry
	ok := false
	level.Players.ForEachReportable(func(e shadow.ReportableEntry) {
		if e.Name == name {
			found = e
			ok = true
		}
	})
	return found, ok
}

// TestScenarioS1 through TestScenarioS6 mirror spec.md's end-to-end scenarios.

func TestScenarioS1(t *testing.T) {
	h, level, mem := newScenario()
	mem.strs[nameAddr] = "alice"
	mem.vecs[posAddr] = vmem.Vec3{X: 1, Y: 64, Z: 2}

	h.PlayerSetName(0, &syscall.PtraceRegs{Rdi: 0x1000, Rsi: nameAddr})
	h.ActorSetPos(0, &syscall.PtraceRegs{Rdi: 0x1000, Rsi: posAddr})
	h.ChangeDimension(0, &syscall.PtraceRegs{Rdi: 0x1000, Rsi: 0})

	require.Equal(t, 1, level.Players.Len())
	entry, ok := reportableByName(level, "alice")
	require.True(t, ok)
	assert.Equal(t, shadow.Vec3{X: 1, Y: 64, Z: 2}, entry.Pos)
	assert.Equal(t, shadow.DimensionNormal, entry.Dimension)
}

func TestScenarioS2(t *testing.T) {
	h, level, mem := newScenario()
	mem.strs[nameAddr] = "alice"
	mem.vecs[posAddr] = vmem.Vec3{X: 1, Y: 64, Z: 2}
	mem.vecs[deltaAddr] = vmem.Vec3{X: 3, Y: 9, Z: 4}

	h.PlayerSetName(0, &syscall.PtraceRegs{Rdi: 0x1000, Rsi: nameAddr})
	h.ActorSetPos(0, &syscall.PtraceRegs{Rdi: 0x1000, Rsi: posAddr})
	h.ChangeDimension(0, &syscall.PtraceRegs{Rdi: 0x1000, Rsi: 0})
	h.PlayerMove(0, &syscall.PtraceRegs{Rdi: 0x1000, Rsi: deltaAddr})

	entry, ok := reportableByName(level, "alice")
	require.True(t, ok)
	assert.Equal(t, shadow.Vec3{X: 4, Y: 64, Z: 6}, entry.Pos, "y must be unchanged by move")
}

func TestScenarioS3Rekey(t *testing.T) {
	h, level, mem := newScenario()
	mem.strs[nameAddr] = "alice"
	mem.vecs[posAddr] = vmem.Vec3{X: 1, Y: 64, Z: 2}
	mem.vecs[deltaAddr] = vmem.Vec3{X: 3, Y: 9, Z: 4}

	h.PlayerSetName(0, &syscall.PtraceRegs{Rdi: 0x1000, Rsi: nameAddr})
	h.ActorSetPos(0, &syscall.PtraceRegs{Rdi: 0x1000, Rsi: posAddr})
	h.ChangeDimension(0, &syscall.PtraceRegs{Rdi: 0x1000, Rsi: 0})
	h.PlayerMove(0, &syscall.PtraceRegs{Rdi: 0x1000, Rsi: deltaAddr})

	h.PlayerSetName(0, &syscall.PtraceRegs{Rdi: 0x2000, Rsi: nameAddr})

	require.Equal(t, 1, level.Players.Len())
	entry, ok := reportableByName(level, "alice")
	require.True(t, ok)
	assert.Equal(t, shadow.Vec3{X: 4, Y: 64, Z: 6}, entry.Pos)
	assert.Equal(t, uint64(0x2000), entry.Address)

	// the old address is now a stale no-op.
	mem.vecs[0x5000] = vmem.Vec3{X: 99, Y: 99, Z: 99}
	h.ActorSetPos(0, &syscall.PtraceRegs{Rdi: 0x1000, Rsi: 0x5000})
	entry, _ = reportableByName(level, "alice")
	assert.Equal(t, shadow.Vec3{X: 4, Y: 64, Z: 6}, entry.Pos, "stale address must not update the rekeyed player")

	// the new address does update it.
	h.ActorSetPos(0, &syscall.PtraceRegs{Rdi: 0x2000, Rsi: 0x5000})
	entry, _ = reportableByName(level, "alice")
	assert.Equal(t, shadow.Vec3{X: 99, Y: 99, Z: 99}, entry.Pos)
}

func TestScenarioS4Destruct(t *testing.T) {
	h, level, mem := newScenario()
	mem.strs[nameAddr] = "alice"
	mem.vecs[posAddr] = vmem.Vec3{X: 1, Y: 64, Z: 2}
	h.PlayerSetName(0, &syscall.PtraceRegs{Rdi: 0x2000, Rsi: nameAddr})
	h.ActorSetPos(0, &syscall.PtraceRegs{Rdi: 0x2000, Rsi: posAddr})
	h.ChangeDimension(0, &syscall.PtraceRegs{Rdi: 0x2000, Rsi: 0})
	require.Equal(t, 1, level.Players.Len())

	h.Destruct(0, &syscall.PtraceRegs{Rdi: 0x2000})

	assert.Equal(t, 0, level.Players.Len())
}

func TestScenarioS5Weather(t *testing.T) {
	h, level, mem := newScenario()
	mem.strs[dimAddr] = "Overworld"

	h.WeatherChanged(0, &syscall.PtraceRegs{Rsi: dimAddr, Rdx: 1, Rcx: 0})
	assert.True(t, level.Weather.Rain)
	assert.False(t, level.Weather.Thunder)

	mem.strs[dimAddr] = "Nether"
	h.WeatherChanged(0, &syscall.PtraceRegs{Rsi: dimAddr, Rdx: 0, Rcx: 1})
	assert.True(t, level.Weather.Rain, "non-overworld dimension must be ignored")
	assert.False(t, level.Weather.Thunder)
}

func TestScenarioS6SetTime(t *testing.T) {
	h, level, _ := newScenario()
	h.SetTime(0, &syscall.PtraceRegs{Rsi: 25001})
	assert.Equal(t, 25001, level.Time)
}

func TestActorSetPosIgnoresUnknownAddress(t *testing.T) {
	h, level, mem := newScenario()
	mem.vecs[posAddr] = vmem.Vec3{X: 1, Y: 1, Z: 1}

	h.ActorSetPos(0, &syscall.PtraceRegs{Rdi: 0xdead, Rsi: posAddr})

	assert.Equal(t, 0, level.Players.Len())
}

func TestChangeDimensionClampsOutOfRange(t *testing.T) {
	h, level, mem := newScenario()
	mem.strs[nameAddr] = "alice"
	h.PlayerSetName(0, &syscall.PtraceRegs{Rdi: 0x1, Rsi: nameAddr})

	h.ChangeDimension(0, &syscall.PtraceRegs{Rdi: 0x1, Rsi: 7})

	_, ok := level.Players.GetByAddress(0x1).Dimension()
	assert.False(t, ok)
}
