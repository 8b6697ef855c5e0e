// Package transform maps pixels of a particle's correlation window to the
// reference pattern pixels seen through the particle.
package transform

import (
	"math"

	"particle-height/internal/config"
	"particle-height/internal/particle"
)

// Func maps a position in a correlation window to the position in the
// reference window that appears there. ok is false when the position
// cannot be mapped.
type Func func(x, y int) (int, int, bool)

// lutSpan is sqrt(2)/2: the corner of a square window seen from its center
// lies at this fraction of the window size.
const lutSpan = 0.707107

// Single is the closed-form distortion of one isolated particle above the
// channel wall.
type Single struct {
	mid      int
	radiusPx float64

	// optical chain, lengths in mm
	radius    float64
	height    float64
	etaLiquid float64
	etaPart   float64
	etaGlass  float64
	wall      float64
	pxPerMM   float64

	lut []float64
}

// NewSingle captures the current state of p. With fast set, transformed
// radii are tabulated over the window and interpolated.
func NewSingle(p *particle.Particle, cfg *config.Settings, fast bool) *Single {
	s := &Single{
		mid:       p.DICSize >> 1,
		radiusPx:  p.RadiusPx,
		radius:    p.RadiusMM(),
		height:    p.Position.Z,
		etaLiquid: cfg.EtaLiquid,
		etaPart:   cfg.EtaParticle,
		etaGlass:  cfg.EtaGlass,
		wall:      cfg.ChannelWallThickness,
		pxPerMM:   cfg.PxPerMM,
	}
	if fast {
		for i := 0; float64(i) < lutSpan*float64(p.DICSize)+1; i++ {
			r, ok := s.TransformedRadius(float64(i) / s.pxPerMM)
			if !ok {
				r = math.NaN()
			}
			s.lut = append(s.lut, r*s.pxPerMM)
		}
	}
	return s
}

// Apply is a Func. The window center maps to itself; points outside the
// particle silhouette do not map.
func (s *Single) Apply(x, y int) (int, int, bool) {
	dx, dy := float64(x-s.mid), float64(y-s.mid)
	radius := math.Hypot(dx, dy)
	if radius == 0 {
		return x, y, true
	}
	if radius > s.radiusPx {
		return x, y, false
	}

	r, ok := s.mapRadius(radius)
	if !ok {
		return x, y, false
	}

	mid := float64(s.mid)
	theta := math.Atan2(mid-float64(y), float64(x)-mid)
	return int(r*math.Cos(theta) + mid), int(mid - r*math.Sin(theta)), true
}

// mapRadius maps a window radius in pixels to a reference radius in pixels.
func (s *Single) mapRadius(radius float64) (float64, bool) {
	if s.lut != nil {
		i := int(radius)
		if i+1 < len(s.lut) {
			lo, hi := s.lut[i], s.lut[i+1]
			if !math.IsNaN(lo) && !math.IsNaN(hi) {
				return lo + (radius-float64(i))*(hi-lo), true
			}
		}
	}
	r, ok := s.TransformedRadius(radius / s.pxPerMM)
	return r * s.pxPerMM, ok
}

// TransformedRadius follows a vertical ray entering the particle at
// distance rho (mm) from its axis down to the pattern plane and returns
// its distance from the axis there. ok is false when the ray has no
// solution, e.g. total internal reflection.
func (s *Single) TransformedRadius(rho float64) (float64, bool) {
	R, h, t := s.radius, s.height, s.wall

	// entry into the sphere
	theta1 := math.Asin(rho / R)
	theta2 := math.Asin(s.etaLiquid * rho / (s.etaPart * R))
	theta2p := theta1 - theta2
	z := math.Sqrt(R*R-rho*rho) + h

	// exit through the lower surface
	t1 := math.Tan(theta2p)
	t2 := t1 * t1
	sq := math.Sqrt(R*R*t2 - h*h*t2 - z*z*t2 - rho*rho + R*R -
		2*h*rho*t1 + 2*rho*z*t1 + 2*h*z*t2)
	r1 := (rho - t1*sq + h*t1 - z*t1) / (t2 + 1)
	z1 := (h - sq + z*t2 - rho*t1) / (t2 + 1)

	theta3p := math.Asin(r1 / R)
	theta3 := theta2p + theta3p

	// liquid between particle and wall
	theta4 := math.Asin(s.etaPart / s.etaLiquid * math.Sin(theta3))
	theta4p := theta4 - theta3p
	r2 := r1 - (z1-t)*math.Tan(theta4p)

	// glass wall
	theta5 := math.Asin(s.etaLiquid / s.etaGlass * math.Sin(theta4p))
	out := r2 - t*math.Tan(theta5)

	if math.IsNaN(out) || math.IsInf(out, 0) {
		return 0, false
	}
	return out, true
}
