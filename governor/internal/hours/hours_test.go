package hours

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func at(utc string) func() time.Time {
	t, err := time.Parse(time.RFC3339, utc)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return t }
}

func TestIsOpen_Singapore(t *testing.T) {
	reg := NewRegistry(nil)

	// 02:00 UTC = 10:00 SGT.
	g := NewGate(reg, at("2026-03-02T02:00:00Z"))
	assert.True(t, g.IsOpen("Singapore"))
	assert.NoError(t, g.AssertOpen("Singapore"))

	// 10:00 UTC = 18:00 SGT, end is exclusive.
	g = NewGate(reg, at("2026-03-02T10:00:00Z"))
	assert.False(t, g.IsOpen("Singapore"))

	// 01:00 UTC = 09:00 SGT, start is inclusive.
	g = NewGate(reg, at("2026-03-02T01:00:00Z"))
	assert.True(t, g.IsOpen("Singapore"))
}

func TestAssertOpen_Riyadh(t *testing.T) {
	// 20:00 UTC = 23:00 AST.
	g := NewGate(NewRegistry(nil), at("2026-03-02T20:00:00Z"))
	err := g.AssertOpen("Riyadh")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrOutOfWindow))

	var oow *OutOfWindowError
	require.True(t, errors.As(err, &oow))
	assert.Equal(t, "Riyadh", oow.Hub)
	assert.Equal(t, "Asia/Riyadh", oow.Timezone)
	assert.Equal(t, 23, oow.LocalHour)
}

func TestUnknownHub_UTCFallback(t *testing.T) {
	reg := NewRegistry(nil)
	p := reg.Profile("Lagos")
	assert.Equal(t, "UTC", p.Timezone)
	assert.Equal(t, DefaultStartHour, p.StartHour)

	g := NewGate(reg, at("2026-03-02T12:00:00Z"))
	assert.True(t, g.IsOpen("Lagos"))
}

func TestOpenHubs(t *testing.T) {
	// 05:00 UTC: SGT/HKT 13, GST 09, AST 08, IST 10:30, ICT 12.
	g := NewGate(NewRegistry(nil), at("2026-03-02T05:00:00Z"))
	open := g.OpenHubs()
	assert.Contains(t, open, "Singapore")
	assert.Contains(t, open, "Dubai")
	assert.Contains(t, open, "Mumbai")
	assert.NotContains(t, open, "Riyadh")
}

func TestInWindow_Boundaries(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		h := rapid.IntRange(0, 23).Draw(rt, "hour")
		start := rapid.IntRange(0, 23).Draw(rt, "start")
		end := rapid.IntRange(start+1, 24).Draw(rt, "end")
		want := h >= start && h < end
		if got := inWindow(h, start, end); got != want {
			rt.Fatalf("inWindow(%d,%d,%d) = %v, want %v", h, start, end, got, want)
		}
	})
	assert.True(t, inWindow(23, 22, 6))
	assert.True(t, inWindow(5, 22, 6))
	assert.False(t, inWindow(6, 22, 6))
	assert.False(t, inWindow(9, 9, 9))
}

func TestRegistry_LoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hubs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
hubs:
  - hub_id: Singapore
    timezone: Asia/Singapore
    business_start_hour: 10
    business_end_hour: 16
  - hub_id: Jakarta
    timezone: Asia/Jakarta
`), 0o644))

	reg := NewRegistry(nil)
	require.NoError(t, reg.Load(path))

	assert.Equal(t, 10, reg.Profile("Singapore").StartHour)
	j := reg.Profile("Jakarta")
	assert.Equal(t, DefaultStartHour, j.StartHour)
	assert.Equal(t, DefaultEndHour, j.EndHour)
	assert.Contains(t, reg.Hubs(), "Jakarta")
	assert.Contains(t, reg.Hubs(), "Dubai")
}

func TestRegistry_LoadKeepsConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hubs.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
hubs:
  - hub_id: Singapore
    timezone: Asia/Singapore
    business_start_hour: 10
    business_end_hour: 16
`), 0o644))

	reg := NewRegistry(nil,
		Profile{HubID: "Riyadh", Timezone: "Asia/Riyadh", StartHour: 8, EndHour: 15},
		Profile{HubID: "Singapore", Timezone: "Asia/Singapore", StartHour: 7, EndHour: 19},
	)
	require.NoError(t, reg.Load(path))
	assert.Equal(t, 8, reg.Profile("Riyadh").StartHour, "config override survives a file load")
	assert.Equal(t, 10, reg.Profile("Singapore").StartHour, "file wins over config")

	require.NoError(t, os.WriteFile(path, []byte("hubs: []\n"), 0o644))
	require.NoError(t, reg.Load(path))
	assert.Equal(t, 7, reg.Profile("Singapore").StartHour, "emptied file falls back to config")
	assert.Equal(t, 15, reg.Profile("Riyadh").EndHour)
}

func TestRegistry_BadTimezone(t *testing.T) {
	reg := NewRegistry(nil, Profile{HubID: "Atlantis", Timezone: "Ocean/Atlantis"})
	assert.Equal(t, time.UTC, reg.Location("Atlantis"))
}

func TestRegistry_Watch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "hubs.yaml")
	require.NoError(t, os.WriteFile(path, []byte("hubs: []\n"), 0o644))

	reg := NewRegistry(nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- reg.Watch(ctx, path) }()

	// Give the watcher time to register before writing.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(path, []byte("hubs:\n  - hub_id: Doha\n    timezone: Asia/Qatar\n"), 0o644))

	require.Eventually(t, func() bool {
		return reg.Profile("Doha").Timezone == "Asia/Qatar"
	}, 3*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
}
