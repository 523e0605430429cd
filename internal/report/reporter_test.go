package report

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brightfern/bdswatch/internal/shadow"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestRenderScenarioS1(t *testing.T) {
	level := shadow.NewLevel()
	p := level.Players.GetByName("alice", 0x1000)
	p.SetPos(shadow.Vec3{X: 1, Y: 64, Z: 2})
	p.SetDimension(0)

	r := New()
	r.Now = fixedClock(time.UnixMilli(1234))
	payload, changed := r.Render(level)
	require.True(t, changed)

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(payload), &got))
	assert.Equal(t, float64(1), got["currentcount"])
	players := got["players"].([]any)
	require.Len(t, players, 1)
	player := players[0].(map[string]any)
	assert.Equal(t, "alice", player["name"])
	assert.Equal(t, "world", player["world"])
	assert.Equal(t, float64(1), player["x"])
	assert.Equal(t, float64(64), player["y"])
	assert.Equal(t, float64(2), player["z"])
	assert.Equal(t, float64(1234), got["timestamp"])
}

func TestRenderCoordinatesTruncateTowardZero(t *testing.T) {
	level := shadow.NewLevel()
	p := level.Players.GetByName("alice", 0x1000)
	p.SetPos(shadow.Vec3{X: 1.9, Y: -1.9, Z: 0.1})
	p.SetDimension(0)

	r := New()
	payload, _ := r.Render(level)
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(payload), &got))
	player := got["players"].([]any)[0].(map[string]any)
	assert.Equal(t, float64(1), player["x"])
	assert.Equal(t, float64(-1), player["y"])
	assert.Equal(t, float64(0), player["z"])
}

func TestRenderWeatherScenarioS5(t *testing.T) {
	level := shadow.NewLevel()
	level.Weather.Rain = true
	level.Weather.Thunder = false

	r := New()
	payload, _ := r.Render(level)
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(payload), &got))
	assert.Equal(t, true, got["hasStorm"])
	assert.Equal(t, false, got["isThundering"])
}

func TestRenderTimeScenarioS6(t *testing.T) {
	level := shadow.NewLevel()
	level.Time = 25001

	r := New()
	payload, _ := r.Render(level)
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(payload), &got))
	assert.Equal(t, float64(1001), got["servertime"])
}

func TestEmissionIdempotence(t *testing.T) {
	level := shadow.NewLevel()
	level.Time = 100

	r := New()
	_, changedFirst := r.Render(level)
	_, changedSecond := r.Render(level)

	assert.True(t, changedFirst)
	assert.False(t, changedSecond, "an unchanged model must not report a second change")
}

func TestEmissionIgnoresTimestampDrift(t *testing.T) {
	level := shadow.NewLevel()
	r := New()
	r.Now = fixedClock(time.UnixMilli(1))
	_, changed1 := r.Render(level)
	r.Now = fixedClock(time.UnixMilli(999999))
	_, changed2 := r.Render(level)

	assert.True(t, changed1)
	assert.False(t, changed2, "timestamp-only drift must not count as a change")
}

func TestRenderEmptyRegistryHasEmptyPlayersArray(t *testing.T) {
	level := shadow.NewLevel()
	r := New()
	payload, _ := r.Render(level)
	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(payload), &got))
	assert.Equal(t, []any{}, got["players"])
	assert.Equal(t, []any{}, got["updates"])
}
