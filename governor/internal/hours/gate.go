package hours

import (
	"errors"
	"fmt"
	"time"
)

// ErrOutOfWindow matches every *OutOfWindowError.
var ErrOutOfWindow = errors.New("hours: outside business window")

// OutOfWindowError reports a scrape attempted outside the hub's window.
type OutOfWindowError struct {
	Hub       string
	Timezone  string
	LocalHour int
	Start     int
	End       int
}

func (e *OutOfWindowError) Error() string {
	return fmt.Sprintf("hours: %s (%s) is outside business hours %02d:00-%02d:00 (local hour %d)",
		e.Hub, e.Timezone, e.Start, e.End, e.LocalHour)
}

func (e *OutOfWindowError) Is(target error) bool { return target == ErrOutOfWindow }

// Gate answers business-window questions against a Registry.
type Gate struct {
	reg *Registry
	now func() time.Time
}

// NewGate creates a gate. A nil now uses time.Now.
func NewGate(reg *Registry, now func() time.Time) *Gate {
	if now == nil {
		now = time.Now
	}
	return &Gate{reg: reg, now: now}
}

// LocalHour is the current hour (0-23) in the hub's timezone.
func (g *Gate) LocalHour(hub string) int {
	return g.now().In(g.reg.Location(hub)).Hour()
}

// IsOpen reports whether the hub's local hour is inside [start, end). A
// window with start > end wraps past midnight; start == end is never open.
func (g *Gate) IsOpen(hub string) bool {
	p := g.reg.Profile(hub)
	return inWindow(g.LocalHour(hub), p.StartHour, p.EndHour)
}

func inWindow(h, start, end int) bool {
	switch {
	case start < end:
		return h >= start && h < end
	case start > end:
		return h >= start || h < end
	default:
		return false
	}
}

// OpenHubs lists the known hubs currently inside their window, sorted.
func (g *Gate) OpenHubs() []string {
	var out []string
	for _, hub := range g.reg.Hubs() {
		if g.IsOpen(hub) {
			out = append(out, hub)
		}
	}
	return out
}

// AssertOpen returns *OutOfWindowError when the hub is closed.
func (g *Gate) AssertOpen(hub string) error {
	if g.IsOpen(hub) {
		return nil
	}
	p := g.reg.Profile(hub)
	return &OutOfWindowError{
		Hub:       hub,
		Timezone:  p.Timezone,
		LocalHour: g.LocalHour(hub),
		Start:     p.StartHour,
		End:       p.EndHour,
	}
}

// HubStatus is a snapshot of one hub for the status feed.
type HubStatus struct {
	Profile
	LocalHour int  `json:"local_hour"`
	Open      bool `json:"open"`
}

// Status lists every known hub with its local hour and open state.
func (g *Gate) Status() []HubStatus {
	hubs := g.reg.Hubs()
	out := make([]HubStatus, 0, len(hubs))
	for _, hub := range hubs {
		out = append(out, HubStatus{Profile: g.reg.Profile(hub), LocalHour: g.LocalHour(hub), Open: g.IsOpen(hub)})
	}
	return out
}
