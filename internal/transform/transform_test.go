package transform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"particle-height/internal/config"
	"particle-height/internal/optics"
	"particle-height/internal/particle"
)

var heights = []float64{1.8, 2.0, 2.2, 2.45, 2.7, 3.1}

func particleAt(cfg *config.Settings, pxX, pxY, z float64) *particle.Particle {
	p := particle.New(cfg, cfg.ParticleRadiusPx, pxX, pxY)
	p.Position.Z = z
	return p
}

func TestTransformedRadiusMatchesTrace(t *testing.T) {
	cfg := config.Default()
	for _, h := range heights {
		p := particleAt(cfg, 0, 0, h)
		s := NewSingle(p, cfg, false)

		scene := optics.ChannelScene(cfg)
		scene.Add(optics.NewSphere(p.Position, p.RadiusMM(), cfg.EtaParticle))

		R := p.RadiusMM()
		for k := 1; k <= 14; k++ {
			rho := float64(k) * 0.05 * R
			want, ok := s.TransformedRadius(rho)
			require.True(t, ok, "h=%g rho=%g", h, rho)

			end := scene.Trace(optics.NewRay(r3.Vec{X: rho, Z: 5}, r3.Vec{Z: -1}))
			assert.InDelta(t, 0, end.Z, 1e-9)
			assert.InDelta(t, want, end.X, 1e-6, "h=%g rho=%g", h, rho)
			assert.InDelta(t, 0, end.Y, 1e-12)
		}
	}
}

func TestTransformedRadiusMonotonic(t *testing.T) {
	cfg := config.Default()
	for _, h := range heights {
		s := NewSingle(particleAt(cfg, 0, 0, h), cfg, false)
		R := s.radius

		prev, ok := s.TransformedRadius(0)
		require.True(t, ok)
		assert.InDelta(t, 0, prev, 1e-12)
		for k := 1; k <= 200; k++ {
			r, ok := s.TransformedRadius(0.7 * R * float64(k) / 200)
			require.True(t, ok)
			assert.GreaterOrEqual(t, r, prev, "h=%g step %d", h, k)
			prev = r
		}
	}
}

func TestTransformedRadiusNoSolution(t *testing.T) {
	cfg := config.Default()
	s := NewSingle(particleAt(cfg, 0, 0, 2.2), cfg, false)
	_, ok := s.TransformedRadius(1.01 * s.radius)
	assert.False(t, ok)
}

func TestFastMatchesExact(t *testing.T) {
	cfg := config.Default()
	for _, h := range heights {
		p := particleAt(cfg, 100, 100, h)
		exact := NewSingle(p, cfg, false)
		fast := NewSingle(p, cfg, true)
		require.Len(t, fast.lut, 45)

		for k := 1; k <= 424; k++ {
			radius := float64(k) * 0.1
			want, ok := exact.mapRadius(radius)
			if !ok {
				continue
			}
			got, ok := fast.mapRadius(radius)
			require.True(t, ok)
			assert.InDelta(t, want, got, 0.5, "h=%g radius=%g", h, radius)
		}
	}
}

func TestSingleApply(t *testing.T) {
	cfg := config.Default()
	p := particleAt(cfg, 100, 100, 2.2)
	s := NewSingle(p, cfg, false)

	x, y, ok := s.Apply(30, 30)
	assert.True(t, ok)
	assert.Equal(t, 30, x)
	assert.Equal(t, 30, y)

	// right of center stays on the same row, pulled inwards
	x, y, ok = s.Apply(40, 30)
	require.True(t, ok)
	assert.Equal(t, 30, y)
	assert.GreaterOrEqual(t, x, 30)
	assert.LessOrEqual(t, x, 40)

	// above center stays in the same column
	x, y, ok = s.Apply(30, 20)
	require.True(t, ok)
	assert.Equal(t, 30, x)
	assert.GreaterOrEqual(t, y, 20)
	assert.LessOrEqual(t, y, 30)

	small := particle.New(cfg, 10, 100, 100)
	_, _, ok = NewSingle(small, cfg, false).Apply(30+11, 30)
	assert.False(t, ok, "outside the silhouette")
}

func TestMultipleIsolatedMatchesSingle(t *testing.T) {
	cfg := config.Default()
	p := particleAt(cfg, 100, 100, 2.2)
	far := particleAt(cfg, 400, 400, 2.2)

	scene := optics.ChannelScene(cfg)
	scene.Add(optics.NewSphere(p.Position, p.RadiusMM(), cfg.EtaParticle))
	scene.Add(optics.NewSphere(far.Position, far.RadiusMM(), cfg.EtaParticle))

	m := NewMultiple(p, cfg, scene)
	s := NewSingle(p, cfg, false)
	for y := 0; y < p.DICSize; y += 3 {
		for x := 0; x < p.DICSize; x += 3 {
			mx, my, ok := m.Apply(x, y)
			require.True(t, ok)
			sx, sy, _ := s.Apply(x, y)
			assert.Equal(t, sx, mx)
			assert.Equal(t, sy, my)
		}
	}
}

func TestMultipleTracesOverlap(t *testing.T) {
	cfg := config.Default()
	p := particleAt(cfg, 100, 100, 1.8)
	n := particleAt(cfg, 140, 100, 3.3)

	scene := optics.ChannelScene(cfg)
	scene.Add(optics.NewSphere(p.Position, p.RadiusMM(), cfg.EtaParticle))
	scene.Add(optics.NewSphere(n.Position, n.RadiusMM(), cfg.EtaParticle))

	m := NewMultiple(p, cfg, scene)
	mid := float64(p.DICSize >> 1)

	// window pixel (50, 30) lies at image (120, 100), under both particles
	cx, cy := cfg.PxToReal(120), cfg.PxToReal(100)
	require.True(t, scene.OverlapsSeveralParticles(cx, cy))

	end := scene.Trace(optics.NewRay(r3.Vec{X: cx, Y: cy, Z: 5}, r3.Vec{Z: -1}))
	x, y, ok := m.Apply(50, 30)
	require.True(t, ok)
	assert.Equal(t, int(cfg.RealToPx(end.X)-p.PxX+mid), x)
	assert.Equal(t, int(cfg.RealToPx(end.Y)-p.PxY+mid), y)
	assert.InDelta(t, 30, y, 1, "no lateral deflection on the axis of both particles")
}
