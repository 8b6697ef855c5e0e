package optics

import (
	"math"

	"gonum.org/v1/gonum/spatial/r3"

	"particle-height/internal/config"
)

// MaxDepth is the default number of surface interactions a trace follows.
const MaxDepth = 10

// Scene is an ordered set of media in an ambient medium. Media are shared
// references; a particle moved through its *Sphere moves in every scene
// holding it.
type Scene struct {
	Index float64
	media []Medium
}

func NewScene(index float64) *Scene {
	return &Scene{Index: index}
}

// ChannelScene builds the scene common to every fit: the pattern plane at
// z=0, the bottom glass wall between z=0 and the wall thickness, and the
// liquid as ambient medium. Particles are added by the caller.
func ChannelScene(cfg *config.Settings) *Scene {
	up := r3.Vec{Z: 1}
	s := NewScene(cfg.EtaLiquid)
	s.Add(NewPattern(r3.Vec{}, up))
	s.Add(NewLayer(r3.Vec{}, r3.Vec{Z: cfg.ChannelWallThickness}, up, cfg.EtaGlass))
	return s
}

func (s *Scene) Add(m Medium) {
	s.media = append(s.media, m)
}

func (s *Scene) Media() []Medium {
	return s.media
}

// Particles returns the spheres of the scene in insertion order.
func (s *Scene) Particles() []*Sphere {
	var out []*Sphere
	for _, m := range s.media {
		if sp, ok := m.(*Sphere); ok && m.Particle() {
			out = append(out, sp)
		}
	}
	return out
}

// Trace follows the ray through the scene and returns where it ends.
func (s *Scene) Trace(r *Ray) r3.Vec {
	return s.TraceDepth(r, MaxDepth)
}

// TraceDepth is Trace with an explicit interaction budget. The ray ends at
// a terminal medium, on total internal reflection, when it escapes the
// scene, or when the budget is exhausted.
func (s *Scene) TraceDepth(r *Ray, depth int) r3.Vec {
	for ; depth > 0; depth-- {
		r.Index = s.indexAt(r.Origin)
		hit, dist := s.nearest(r)
		if hit == nil {
			return r.Origin
		}

		next := hit.RefractionIndex()
		if hit.Contains(r.Origin) {
			next = s.Index
		}

		r.Propagate(dist)
		if hit.Terminal() {
			return r.Origin
		}
		if !r.Refract(hit.Normal(r.Origin), next) {
			return r.Origin
		}
	}
	return r.Origin
}

// OverlapsSeveralParticles reports whether more than one particle
// footprint covers (x, y).
func (s *Scene) OverlapsSeveralParticles(x, y float64) bool {
	n := 0
	for _, m := range s.media {
		sp, ok := m.(*Sphere)
		if !ok || !m.Particle() {
			continue
		}
		if sp.OverlapsPoint(x, y) {
			n++
			if n > 1 {
				return true
			}
		}
	}
	return false
}

func (s *Scene) indexAt(p r3.Vec) float64 {
	for _, m := range s.media {
		if m.Contains(p) {
			return m.RefractionIndex()
		}
	}
	return s.Index
}

func (s *Scene) nearest(r *Ray) (Medium, float64) {
	var hit Medium
	best := math.Inf(1)
	for _, m := range s.media {
		d, ok := m.Intersect(r)
		if !ok || d <= 0 {
			continue
		}
		if d < best {
			best, hit = d, m
		}
	}
	return hit, best
}
