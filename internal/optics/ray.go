// Package optics traces rays through nested refractive media: particles
// (spheres), the channel wall (a slab) and the reference pattern plane.
package optics

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"
)

// Bias is how far a refracted ray is pushed along its new direction so the
// next intersection test does not hit the surface it just crossed.
const Bias = 1e-4

// Ray is an origin, a direction and the refraction index of the medium the
// ray currently travels in. It is mutated in place while it is traced.
type Ray struct {
	Origin    r3.Vec
	Direction r3.Vec
	Index     float64
}

// NewRay creates a ray travelling in vacuum. The direction does not need to
// be normalized.
func NewRay(origin, direction r3.Vec) *Ray {
	return &Ray{Origin: origin, Direction: direction, Index: 1}
}

// Propagate moves the origin by distance times the direction.
func (r *Ray) Propagate(distance float64) {
	r.Origin = r3.Add(r.Origin, r3.Scale(distance, r.Direction))
}

// At returns the point at distance along the ray without moving it.
func (r *Ray) At(distance float64) r3.Vec {
	return r3.Add(r.Origin, r3.Scale(distance, r.Direction))
}

// Refract bends the ray through a surface with the given normal into a
// medium of index newIndex. It returns false on total internal reflection
// and leaves the ray unchanged in that case.
func (r *Ray) Refract(normal r3.Vec, newIndex float64) bool {
	incident := r3.Unit(r.Direction)
	n := r3.Unit(normal)

	ratio := r.Index / newIndex
	c := -r3.Dot(n, incident)
	if c < 0 {
		n = r3.Scale(-1, n)
		c = -c
	}

	disc := 1 - ratio*ratio*(1-c*c)
	if disc < 0 {
		return false
	}

	dir := r3.Add(r3.Scale(ratio, incident), r3.Scale(ratio*c-math.Sqrt(disc), n))
	r.Direction = r3.Unit(dir)
	r.Index = newIndex
	r.Propagate(Bias)
	return true
}

// CriticalAngle is the incidence angle (radians) above which light going
// from index n1 into index n2 is totally reflected. It is NaN when n1 <= n2.
func CriticalAngle(n1, n2 float64) float64 {
	if n1 <= n2 {
		return math.NaN()
	}
	return math.Asin(n2 / n1)
}
