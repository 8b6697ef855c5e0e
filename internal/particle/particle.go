// Package particle holds detected particles of one frame, their pixel and
// real-world positions, and the overlap graph used to group them.
package particle

import (
	"gonum.org/v1/gonum/spatial/r3"

	"particle-height/internal/config"
)

// Particle is one detected sphere. PxX/PxY and Position.X/Y always describe
// the same point through the settings' pixel scale; Position.Z is the
// height above the pattern plane in mm.
type Particle struct {
	RadiusPx    float64
	PxX, PxY    float64
	Position    r3.Vec
	HeightKnown bool
	Confidence  float64
	DICSize     int

	// LocalCorrelation scores the particle against itself and its direct
	// neighbours only. It equals Confidence for isolated particles.
	LocalCorrelation float64

	// Neighbors are indices into the owning Set.
	Neighbors []int

	cfg *config.Settings
}

// New creates a particle at a pixel position with the default mid-channel
// height.
func New(cfg *config.Settings, radiusPx, pxX, pxY float64) *Particle {
	p := &Particle{
		RadiusPx: radiusPx,
		DICSize:  cfg.DICRegionSize,
		cfg:      cfg,
	}
	p.Position.Z = cfg.DefaultHeight()
	p.SetPixel(pxX, pxY)
	return p
}

// SetPixel moves the particle in the image plane keeping its height.
func (p *Particle) SetPixel(x, y float64) {
	p.PxX, p.PxY = x, y
	p.Position.X = p.cfg.PxToReal(x)
	p.Position.Y = p.cfg.PxToReal(y)
}

// SetPosition moves the particle in mm and updates its pixel position.
func (p *Particle) SetPosition(v r3.Vec) {
	p.Position = v
	p.PxX = p.cfg.RealToPx(v.X)
	p.PxY = p.cfg.RealToPx(v.Y)
}

func (p *Particle) RadiusMM() float64 {
	return p.cfg.PxToReal(p.RadiusPx)
}

// Height is z measured from the inner face of the bottom wall.
func (p *Particle) Height() float64 {
	return p.Position.Z - p.cfg.ChannelWallThickness
}

// Overlaps reports whether the silhouettes of p and o intersect.
func (p *Particle) Overlaps(o *Particle) bool {
	dx, dy := p.PxX-o.PxX, p.PxY-o.PxY
	r := p.RadiusPx + o.RadiusPx
	return dx*dx+dy*dy < r*r
}

// CenterDist is the 3D distance between centers in mm.
func (p *Particle) CenterDist(o *Particle) float64 {
	return r3.Norm(r3.Sub(p.Position, o.Position))
}

func (p *Particle) HasNeighbors() bool {
	return len(p.Neighbors) > 0
}
