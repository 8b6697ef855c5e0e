package optics

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Medium is a region of space with a refraction index bounded by surfaces a
// ray can hit.
type Medium interface {
	// Intersect returns the distance along the ray to the nearest surface
	// in front of its origin.
	Intersect(r *Ray) (float64, bool)
	// Normal returns the surface normal at p.
	Normal(p r3.Vec) r3.Vec
	// Contains reports whether p lies inside the medium.
	Contains(p r3.Vec) bool
	// Terminal media stop the trace at the hit point.
	Terminal() bool
	// Particle media count for footprint overlap tests.
	Particle() bool
	RefractionIndex() float64
}

// Sphere is a particle. Its center moves while heights are optimized.
type Sphere struct {
	Center r3.Vec
	Radius float64
	Index  float64
}

func NewSphere(center r3.Vec, radius, index float64) *Sphere {
	return &Sphere{Center: center, Radius: radius, Index: index}
}

func (s *Sphere) SetCenter(c r3.Vec) { s.Center = c }

func (s *Sphere) Intersect(r *Ray) (float64, bool) {
	oc := r3.Sub(r.Origin, s.Center)
	a := r3.Dot(r.Direction, r.Direction)
	b := 2 * r3.Dot(r.Direction, oc)
	c := r3.Dot(oc, oc) - s.Radius*s.Radius

	disc := b*b - 4*a*c
	if disc < 0 || a == 0 {
		return 0, false
	}
	sq := math.Sqrt(disc)
	far := (-b + sq) / (2 * a)
	near := (-b - sq) / (2 * a)
	if far < 0 {
		return 0, false
	}
	if near > 0 {
		return near, true
	}
	// origin inside the sphere
	return far, true
}

func (s *Sphere) Normal(p r3.Vec) r3.Vec {
	return r3.Unit(r3.Sub(p, s.Center))
}

func (s *Sphere) Contains(p r3.Vec) bool {
	return r3.Norm(r3.Sub(p, s.Center)) < s.Radius
}

// OverlapsPoint reports whether (x, y) falls inside the sphere's circular
// footprint in the plane through its center.
func (s *Sphere) OverlapsPoint(x, y float64) bool {
	return r3.Norm(r3.Sub(r3.Vec{X: x, Y: y, Z: s.Center.Z}, s.Center)) < s.Radius
}

func (s *Sphere) Terminal() bool           { return false }
func (s *Sphere) Particle() bool           { return true }
func (s *Sphere) RefractionIndex() float64 { return s.Index }

// Layer is a slab between two parallel planes through P1 and P2 sharing
// the normal N, e.g. the glass channel wall.
type Layer struct {
	P1, P2 r3.Vec
	N      r3.Vec
	Index  float64
}

func NewLayer(p1, p2, normal r3.Vec, index float64) *Layer {
	return &Layer{P1: p1, P2: p2, N: normal, Index: index}
}

func (l *Layer) Intersect(r *Ray) (float64, bool) {
	a := r3.Dot(r.Direction, l.N)
	if a == 0 {
		return 0, false
	}
	d1 := r3.Dot(l.N, r3.Sub(l.P1, r.Origin)) / a
	d2 := r3.Dot(l.N, r3.Sub(l.P2, r.Origin)) / a

	switch {
	case d1 < 0 && d2 < 0:
		return 0, false
	case d1 < 0:
		return d2, true
	case d2 < 0:
		return d1, true
	}
	return math.Min(d1, d2), true
}

func (l *Layer) Normal(r3.Vec) r3.Vec { return l.N }

// Contains compares the side of each bounding plane p lies on.
func (l *Layer) Contains(p r3.Vec) bool {
	s1 := r3.Dot(l.N, r3.Sub(p, l.P1))
	s2 := r3.Dot(l.N, r3.Sub(p, l.P2))
	return math.Signbit(s1) != math.Signbit(s2)
}

func (l *Layer) Terminal() bool           { return false }
func (l *Layer) Particle() bool           { return false }
func (l *Layer) RefractionIndex() float64 { return l.Index }

// Pattern is the terminal plane holding the imaged reference pattern.
type Pattern struct {
	P r3.Vec
	N r3.Vec
}

func NewPattern(p, normal r3.Vec) *Pattern {
	return &Pattern{P: p, N: normal}
}

func (pt *Pattern) Intersect(r *Ray) (float64, bool) {
	a := r3.Dot(r.Direction, pt.N)
	if a == 0 {
		return 0, false
	}
	d := r3.Dot(pt.N, r3.Sub(pt.P, r.Origin)) / a
	if d < 0 {
		return 0, false
	}
	return d, true
}

func (pt *Pattern) Normal(r3.Vec) r3.Vec     { return pt.N }
func (pt *Pattern) Contains(r3.Vec) bool     { return false }
func (pt *Pattern) Terminal() bool           { return true }
func (pt *Pattern) Particle() bool           { return false }
func (pt *Pattern) RefractionIndex() float64 { return 1 }
