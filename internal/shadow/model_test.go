package shadow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRekeyByName(t *testing.T) {
	r := NewPlayerRegistry()

	r.GetByName("alice", 0x1000)
	r.GetByName("alice", 0x2000)

	require.Nil(t, r.GetByAddress(0x1000), "old address must no longer resolve")
	p := r.GetByAddress(0x2000)
	require.NotNil(t, p)
	assert.Equal(t, "alice", p.Name())
	assert.Equal(t, 1, r.Len())
}

func TestNonCreatingAddressHandlers(t *testing.T) {
	r := NewPlayerRegistry()

	p := r.GetByAddress(0xdead)
	assert.Nil(t, p)
	assert.Equal(t, 0, r.Len())
}

func TestMoveSemantics(t *testing.T) {
	p := newPlayer(0x1)
	p.SetPos(Vec3{X: 1, Y: 64, Z: 2})

	p.Move(Vec3{X: 3, Y: 9, Z: 4})

	pos, ok := p.Pos()
	require.True(t, ok)
	assert.Equal(t, Vec3{X: 4, Y: 64, Z: 6}, pos)
}

func TestMoveWithoutPosIsNoop(t *testing.T) {
	p := newPlayer(0x1)
	p.Move(Vec3{X: 1, Y: 1, Z: 1})
	_, ok := p.Pos()
	assert.False(t, ok)
}

func TestDimensionClamp(t *testing.T) {
	p := newPlayer(0x1)
	p.SetDimension(1)
	p.SetDimension(99)

	d, ok := p.Dimension()
	require.True(t, ok)
	assert.Equal(t, DimensionNether, d)
}

func TestDimensionClampNegative(t *testing.T) {
	p := newPlayer(0x1)
	p.SetDimension(-1)
	_, ok := p.Dimension()
	assert.False(t, ok)
}

func TestReportablePredicate(t *testing.T) {
	r := NewPlayerRegistry()
	p := r.GetByName("alice", 0x1000)
	p.SetPos(Vec3{X: 1, Y: 2, Z: 3})

	var seen []ReportableEntry
	r.ForEachReportable(func(e ReportableEntry) { seen = append(seen, e) })
	assert.Empty(t, seen, "missing dimension must exclude the player")

	p.SetDimension(0)
	r.ForEachReportable(func(e ReportableEntry) { seen = append(seen, e) })
	require.Len(t, seen, 1)
	assert.Equal(t, "alice", seen[0].Name)
}

func TestForEachReportableStableOrder(t *testing.T) {
	r := NewPlayerRegistry()
	for _, n := range []struct {
		name string
		addr uint64
	}{{"carol", 0x300}, {"alice", 0x100}, {"bob", 0x200}} {
		p := r.GetByName(n.name, n.addr)
		p.SetPos(Vec3{})
		p.SetDimension(0)
	}

	var names []string
	r.ForEachReportable(func(e ReportableEntry) { names = append(names, e.Name) })
	assert.Equal(t, []string{"alice", "bob", "carol"}, names)
}

func TestForgetNilIsNoop(t *testing.T) {
	r := NewPlayerRegistry()
	r.GetByName("alice", 0x1)
	r.Forget(nil)
	assert.Equal(t, 1, r.Len())
}

func TestForget(t *testing.T) {
	r := NewPlayerRegistry()
	p := r.GetByName("alice", 0x1)
	r.Forget(p)
	assert.Equal(t, 0, r.Len())
	assert.Nil(t, r.GetByAddress(0x1))
}

func TestDimensionString(t *testing.T) {
	assert.Equal(t, "world", DimensionNormal.String())
	assert.Equal(t, "world_nether", DimensionNether.String())
	assert.Equal(t, "world_the_end", DimensionEnd.String())
}
