package device

import (
	"math"
	"math/rand/v2"
)

// SignalWindow is the number of points kept for the live chart.
const SignalWindow = 60

type Point struct {
	Timestamp int     `json:"timestamp"`
	Value     float64 `json:"value"`
}

// Generator produces the fake scan waveform.
type Generator struct {
	t      int
	points []Point
	noise  func() float64
}

func NewGenerator() *Generator {
	return &Generator{noise: rand.Float64}
}

// Next appends one point and returns it.
func (g *Generator) Next() Point {
	t := float64(g.t)
	p := Point{
		Timestamp: g.t,
		Value:     math.Sin(t/2)*math.Cos(t/5) + (g.noise()-0.5)*0.2,
	}
	g.t++
	g.points = append(g.points, p)
	if len(g.points) > SignalWindow {
		g.points = append(g.points[:0], g.points[1:]...)
	}
	return p
}

// Points returns a copy of the current window.
func (g *Generator) Points() []Point {
	return append([]Point(nil), g.points...)
}

// Reset clears the window and restarts the timestamp at zero.
func (g *Generator) Reset() {
	g.t = 0
	g.points = nil
}
