package transform

import (
	"gonum.org/v1/gonum/spatial/r3"

	"particle-height/internal/config"
	"particle-height/internal/optics"
	"particle-height/internal/particle"
)

// rayStartZ is the height (mm) vertical rays are cast from, above any
// channel the settings describe.
const rayStartZ = 5.0

// Multiple maps window pixels through a scene of several particles. Pixels
// covered by one particle use the closed form of the primary particle; the
// rest are ray traced.
type Multiple struct {
	p      *particle.Particle
	cfg    *config.Settings
	scene  *optics.Scene
	single *Single
}

// NewMultiple prepares the hybrid transform for the window of p. The scene
// must already hold p and its neighbours at their current positions.
func NewMultiple(p *particle.Particle, cfg *config.Settings, scene *optics.Scene) *Multiple {
	return &Multiple{
		p:      p,
		cfg:    cfg,
		scene:  scene,
		single: NewSingle(p, cfg, false),
	}
}

// Apply is a Func. It always reports success; a pixel the closed form
// cannot map is returned unchanged.
func (m *Multiple) Apply(x, y int) (int, int, bool) {
	mid := float64(m.p.DICSize >> 1)
	cx := m.cfg.PxToReal(float64(x) + m.p.PxX - mid)
	cy := m.cfg.PxToReal(float64(y) + m.p.PxY - mid)

	if !m.scene.OverlapsSeveralParticles(cx, cy) {
		if nx, ny, ok := m.single.Apply(x, y); ok {
			return nx, ny, true
		}
		return x, y, true
	}

	end := m.scene.Trace(optics.NewRay(r3.Vec{X: cx, Y: cy, Z: rayStartZ}, r3.Vec{Z: -1}))
	nx := int(m.cfg.RealToPx(end.X) - m.p.PxX + mid)
	ny := int(m.cfg.RealToPx(end.Y) - m.p.PxY + mid)
	return nx, ny, true
}
