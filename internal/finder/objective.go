package finder

import (
	"image"

	"gonum.org/v1/gonum/spatial/r3"

	"particle-height/internal/config"
	"particle-height/internal/dic"
	"particle-height/internal/optics"
	"particle-height/internal/particle"
	"particle-height/internal/transform"
)

// penalty is the quadratic cost of an overlap of depth d (mm).
func penalty(cfg *config.Settings, d float64) float64 {
	return 0.01 * float64(cfg.OverlapPenalty) * d * d
}

// wallPenalty charges a particle whose surface crosses the bottom or top
// channel wall.
func wallPenalty(cfg *config.Settings, z, radius float64) float64 {
	bottom := cfg.ChannelWallThickness + radius
	top := cfg.ChannelWallThickness + cfg.ChannelHeight - radius
	var p float64
	if z < bottom {
		p += penalty(cfg, z-bottom)
	}
	if z > top {
		p += penalty(cfg, z-top)
	}
	return p
}

// trial is a throwaway particle at a position proposed by the optimizer.
func trial(cfg *config.Settings, x []float64) *particle.Particle {
	p := particle.New(cfg, cfg.ParticleRadiusPx, 0, 0)
	p.SetPosition(r3.Vec{X: x[0], Y: x[1], Z: x[2]})
	return p
}

// singleObjective scores an isolated particle at (x, y, z) mm with the
// closed-form transform.
func singleObjective(cfg *config.Settings, frame, ref *image.Gray) func(x []float64) float64 {
	fast := cfg.FastTransform != 0
	return func(x []float64) float64 {
		p := trial(cfg, x)
		rect := dic.Region(p.PxX, p.PxY, cfg.DICRegionSize)
		c := dic.Correlate(frame, ref, rect, transform.NewSingle(p, cfg, fast).Apply)
		return c - wallPenalty(cfg, p.Position.Z, p.RadiusMM())
	}
}

// groupObjective scores n particles packed as [x0 y0 z0 x1 y1 z1 ...]
// through scene. spheres[i] is moved to particle i before scoring, so the
// scene must not be shared with another running objective.
func groupObjective(cfg *config.Settings, frame, ref *image.Gray, scene *optics.Scene, spheres []*optics.Sphere) func(x []float64) float64 {
	return func(x []float64) float64 {
		ps := make([]*particle.Particle, len(spheres))
		for i := range spheres {
			ps[i] = trial(cfg, x[3*i:3*i+3])
			spheres[i].SetCenter(ps[i].Position)
		}

		var sum float64
		for i, p := range ps {
			rect := dic.Region(p.PxX, p.PxY, cfg.DICRegionSize)
			sum += dic.Correlate(frame, ref, rect, transform.NewMultiple(p, cfg, scene).Apply)
			sum -= wallPenalty(cfg, p.Position.Z, p.RadiusMM())

			for _, o := range ps[i+1:] {
				contact := p.RadiusMM() + o.RadiusMM()
				if d := p.CenterDist(o); d < contact {
					sum -= penalty(cfg, d-contact)
				}
			}
		}
		return sum
	}
}
