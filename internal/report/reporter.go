// Package report serializes the shadow model into the fixed JSON schema the
// dashboard consumes, and only when that schema's content has actually
// changed since the last emission.
package report

import (
	"encoding/json"
	"time"

	"github.com/brightfern/bdswatch/internal/shadow"
)

type playerJSON struct {
	Account string `json:"account"`
	Name    string `json:"name"`
	Armor   int    `json:"armor"`
	Health  int    `json:"health"`
	Sort    int    `json:"sort"`
	Type    string `json:"type"`
	World   string `json:"world"`
	X       int    `json:"x"`
	Y       int    `json:"y"`
	Z       int    `json:"z"`
}

// snapshot is everything the schema carries except the emission timestamp,
// which is excluded from change detection on purpose (spec.md §4.6): two
// otherwise-identical snapshots a second apart must not be treated as a
// change.
type snapshot struct {
	CurrentCount int          `json:"currentcount"`
	Players      []playerJSON `json:"players"`
	HasStorm     bool         `json:"hasStorm"`
	IsThundering bool         `json:"isThundering"`
	ConfigHash   int          `json:"confighash"`
	ServerTime   int          `json:"servertime"`
	Updates      []any        `json:"updates"`
}

type timestamped struct {
	snapshot
	Timestamp int64 `json:"timestamp"`
}

// Reporter holds the last emitted stable payload so it can detect when the
// shadow model has genuinely changed.
type Reporter struct {
	lastStable string
	// Now is overridable in tests; defaults to time.Now.
	Now func() time.Time
}

// New returns a Reporter with no prior emission recorded.
func New() *Reporter {
	return &Reporter{Now: time.Now}
}

// Render serializes level's current state. changed reports whether this
// differs from the last call to Render (excluding the timestamp); the
// caller should only publish payload when changed is true.
func (r *Reporter) Render(level *shadow.Level) (payload string, changed bool) {
	snap := buildSnapshot(level)

	stableBytes, err := json.Marshal(snap)
	if err != nil {
		// snapshot is built entirely from marshalable primitives; a failure
		// here would mean a programming error, not a runtime condition.
		panic("report: snapshot failed to marshal: " + err.Error())
	}
	stable := string(stableBytes)
	changed = stable != r.lastStable
	r.lastStable = stable

	full := timestamped{snapshot: snap, Timestamp: r.Now().UnixMilli()}
	fullBytes, err := json.Marshal(full)
	if err != nil {
		panic("report: payload failed to marshal: " + err.Error())
	}
	return string(fullBytes), changed
}

func buildSnapshot(level *shadow.Level) snapshot {
	players := make([]playerJSON, 0)
	sort := 0
	level.Players.ForEachReportable(func(e shadow.ReportableEntry) {
		players = append(players, playerJSON{
			Account: e.Name,
			Name:    e.Name,
			Armor:   0,
			Health:  20,
			Sort:    sort,
			Type:    "player",
			World:   e.Dimension.String(),
			X:       int(int32(e.Pos.X)),
			Y:       int(int32(e.Pos.Y)),
			Z:       int(int32(e.Pos.Z)),
		})
		sort++
	})

	serverTime := level.Time % 24000
	if serverTime < 0 {
		serverTime += 24000
	}

	return snapshot{
		CurrentCount: level.Players.Len(),
		Players:      players,
		HasStorm:     level.Weather.Rain,
		IsThundering: level.Weather.Thunder,
		ConfigHash:   0,
		ServerTime:   serverTime,
		Updates:      []any{},
	}
}
