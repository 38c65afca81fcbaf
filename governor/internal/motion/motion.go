// Package motion generates curved pointer trajectories: a cubic Bézier from
// start to end with randomised control points, sampled in fixed steps with
// slower timing near both ends.
package motion

import (
	"context"
	"math"
	"time"
)

// Steps is the number of samples per trajectory (endpoints included as
// step 0 and step Steps).
const Steps = 60

// DefaultPadding keeps random targets away from element edges.
const DefaultPadding = 8.0

// Point is a viewport coordinate.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Box is an element bounding box.
type Box struct {
	X, Y, Width, Height float64
}

// Step is one trajectory sample and the pause that follows it.
type Step struct {
	Point
	Delay time.Duration
}

// Source is the randomness the simulator needs.
type Source interface {
	Float64() float64
}

// Mover moves the pointer. Implemented by the browser page.
type Mover interface {
	PointerMove(ctx context.Context, x, y float64) error
}

// Path samples a Bézier trajectory from start to end. The first and last
// points equal start and end exactly. Steps within 10 of either end wait
// 10-25ms; the middle steps wait 0-5ms.
func Path(src Source, start, end Point) []Step {
	dx := end.X - start.X
	dy := end.Y - start.Y
	cp1 := Point{X: start.X + dx*src.Float64(), Y: start.Y + dy*src.Float64() - 100}
	cp2 := Point{X: start.X + dx*src.Float64(), Y: start.Y + dy*src.Float64() + 100}

	out := make([]Step, 0, Steps+1)
	for i := 0; i <= Steps; i++ {
		t := float64(i) / Steps
		p := bezier(t, start, cp1, cp2, end)
		var delay float64
		if i < 10 || i > Steps-10 {
			delay = 10 + src.Float64()*15
		} else {
			delay = src.Float64() * 5
		}
		out = append(out, Step{Point: p, Delay: time.Duration(delay * float64(time.Millisecond))})
	}
	out[0].Point = start
	out[Steps].Point = end
	return out
}

func bezier(t float64, p0, p1, p2, p3 Point) Point {
	u := 1 - t
	a := u * u * u
	b := 3 * u * u * t
	c := 3 * u * t * t
	d := t * t * t
	return Point{
		X: a*p0.X + b*p1.X + c*p2.X + d*p3.X,
		Y: a*p0.Y + b*p1.Y + c*p2.Y + d*p3.Y,
	}
}

// Move walks the pointer along Path, pausing between samples via sleep.
func Move(ctx context.Context, m Mover, src Source, sleep func(context.Context, time.Duration) error, start, end Point) error {
	for _, s := range Path(src, start, end) {
		if err := m.PointerMove(ctx, s.X, s.Y); err != nil {
			return err
		}
		if err := sleep(ctx, s.Delay); err != nil {
			return err
		}
	}
	return nil
}

// RandomPointInBox picks a uniform point inside box shrunk by padding on
// every side. A box smaller than twice the padding yields its centre.
func RandomPointInBox(src Source, box Box, padding float64) Point {
	w := box.Width - 2*padding
	h := box.Height - 2*padding
	if w <= 0 || h <= 0 {
		return Point{X: box.X + box.Width/2, Y: box.Y + box.Height/2}
	}
	return Point{
		X: box.X + padding + src.Float64()*w,
		Y: box.Y + padding + src.Float64()*h,
	}
}

// Distance is the Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return math.Hypot(b.X-a.X, b.Y-a.Y)
}
