// Package shadow holds the tracer's read-only reconstruction of the target's
// world state: players, weather, and time of day. It is touched only by the
// tracer goroutine (see internal/ptrace), so none of its types do their own
// locking.
package shadow

import "sort"

// Vec3 is a position or delta in the target's native little-endian float32
// layout.
type Vec3 struct {
	X, Y, Z float32
}

// add returns v with dx and dz of delta applied; the y axis is left alone,
// matching Player.move in the traced game code.
func (v Vec3) add(delta Vec3) Vec3 {
	v.X += delta.X
	v.Z += delta.Z
	return v
}

// Dimension is one of the three worlds the target models.
type Dimension int

const (
	DimensionNormal Dimension = 0
	DimensionNether Dimension = 1
	DimensionEnd    Dimension = 2
)

// String returns the dashboard-facing world name used in the JSON feed.
func (d Dimension) String() string {
	switch d {
	case DimensionNormal:
		return "world"
	case DimensionNether:
		return "world_nether"
	case DimensionEnd:
		return "world_the_end"
	default:
		return ""
	}
}

// DimensionFromInt converts a raw integer argument read from the target's
// registers into a Dimension. Values outside {0,1,2} are rejected rather than
// silently clamped, per the observer's "ignore unknown input" policy.
func DimensionFromInt(v int) (Dimension, bool) {
	if v < 0 || v > 2 {
		return 0, false
	}
	return Dimension(v), true
}

// Player is the shadow of one game entity, keyed in the registry by the
// in-target address it was last observed at.
type Player struct {
	address   uint64
	name      string
	pos       *Vec3
	dimension *Dimension
}

func newPlayer(address uint64) *Player {
	return &Player{address: address}
}

// Address returns the in-target pointer currently identifying this player.
func (p *Player) Address() uint64 { return p.address }

// Name returns the player's name, or "" if not yet observed.
func (p *Player) Name() string { return p.name }

// Pos returns the player's last known position and whether one is known.
func (p *Player) Pos() (Vec3, bool) {
	if p.pos == nil {
		return Vec3{}, false
	}
	return *p.pos, true
}

// Dimension returns the player's last known dimension and whether one is
// known.
func (p *Player) Dimension() (Dimension, bool) {
	if p.dimension == nil {
		return 0, false
	}
	return *p.dimension, true
}

// SetPos overwrites the player's position outright (Actor::setPos).
func (p *Player) SetPos(pos Vec3) {
	pos0 := pos
	p.pos = &pos0
}

// Move applies a delta to an already-known position (Player::move). A player
// with no position yet ignores the delta: there is nothing to move from.
func (p *Player) Move(delta Vec3) {
	if p.pos == nil {
		return
	}
	next := p.pos.add(delta)
	p.pos = &next
}

// SetDimension sets the dimension from a raw integer argument, ignoring any
// value outside {0,1,2} (ServerPlayer::changeDimension and friends).
func (p *Player) SetDimension(raw int) {
	d, ok := DimensionFromInt(raw)
	if !ok {
		return
	}
	p.dimension = &d
}

// reportable returns the player's position and dimension if the player has a
// non-empty name and both fields set.
func (p *Player) reportable() (Vec3, Dimension, bool) {
	if p.name == "" || p.pos == nil || p.dimension == nil {
		return Vec3{}, 0, false
	}
	return *p.pos, *p.dimension, true
}

// PlayerRegistry maps in-target address to Player, with at most one entry per
// address and at most one per non-empty name.
type PlayerRegistry struct {
	byAddress map[uint64]*Player
}

// NewPlayerRegistry returns an empty registry.
func NewPlayerRegistry() *PlayerRegistry {
	return &PlayerRegistry{byAddress: make(map[uint64]*Player)}
}

// GetByAddress returns the Player at addr, or nil if none is known yet. It
// never creates an entry: handlers that update position or dimension must
// not fabricate a player that hasn't been named.
func (r *PlayerRegistry) GetByAddress(addr uint64) *Player {
	return r.byAddress[addr]
}

// GetOrCreateByAddress returns the Player at addr, creating an unnamed one if
// none exists.
func (r *PlayerRegistry) GetOrCreateByAddress(addr uint64) *Player {
	if p, ok := r.byAddress[addr]; ok {
		return p
	}
	p := newPlayer(addr)
	r.byAddress[addr] = p
	return p
}

// GetByName looks up a player by name. If found at a different address than
// newAddr, the player is rekeyed: its old entry is removed and it is
// reinserted at newAddr. If not found, a new player named name is created at
// newAddr.
func (r *PlayerRegistry) GetByName(name string, newAddr uint64) *Player {
	for addr, p := range r.byAddress {
		if p.name != name {
			continue
		}
		if addr != newAddr {
			delete(r.byAddress, addr)
			p.address = newAddr
			r.byAddress[newAddr] = p
		}
		return p
	}
	p := newPlayer(newAddr)
	p.name = name
	r.byAddress[newAddr] = p
	return p
}

// Forget removes player from the registry. A nil player is a no-op, matching
// the destructor hook firing for an address we never registered.
func (r *PlayerRegistry) Forget(p *Player) {
	if p == nil {
		return
	}
	delete(r.byAddress, p.address)
}

// Len returns the number of players currently tracked, named or not.
func (r *PlayerRegistry) Len() int {
	return len(r.byAddress)
}

// ReportableEntry is one player's data as needed by the Reporter, in stable
// emission order.
type ReportableEntry struct {
	Address   uint64
	Name      string
	Pos       Vec3
	Dimension Dimension
}

// ForEachReportable invokes fn for every player with a name, position, and
// dimension, ordered by address so that repeated calls against an unchanged
// registry produce an identical sequence (map iteration order is otherwise
// unspecified in Go).
func (r *PlayerRegistry) ForEachReportable(fn func(ReportableEntry)) {
	addrs := make([]uint64, 0, len(r.byAddress))
	for addr := range r.byAddress {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return addrs[i] < addrs[j] })
	for _, addr := range addrs {
		p := r.byAddress[addr]
		pos, dim, ok := p.reportable()
		if !ok {
			continue
		}
		fn(ReportableEntry{Address: addr, Name: p.name, Pos: pos, Dimension: dim})
	}
}

// Weather holds the overworld's rain/thunder flags.
type Weather struct {
	Rain    bool
	Thunder bool
}

// Level aggregates everything the Reporter serializes: players, weather, and
// the in-game clock.
type Level struct {
	Players *PlayerRegistry
	Weather Weather
	Time    int
}

// NewLevel returns an empty Level ready for the tracer to mutate.
func NewLevel() *Level {
	return &Level{Players: NewPlayerRegistry()}
}
