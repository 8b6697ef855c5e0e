package particle

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/spatial/r3"

	"particle-height/internal/config"
	"particle-height/pkg/geometry"
)

func TestPixelRealConsistency(t *testing.T) {
	cfg := config.Default()
	p := New(cfg, 50, 125, 250)

	assert.InDelta(t, 2.0, p.Position.X, 1e-12)
	assert.InDelta(t, 4.0, p.Position.Y, 1e-12)
	assert.InDelta(t, cfg.DefaultHeight(), p.Position.Z, 1e-12)
	assert.InDelta(t, 0.8, p.RadiusMM(), 1e-12)
	assert.Equal(t, cfg.DICRegionSize, p.DICSize)
	assert.False(t, p.HeightKnown)

	p.SetPosition(r3.Vec{X: 1, Y: 0.5, Z: 2})
	assert.InDelta(t, 62.5, p.PxX, 1e-12)
	assert.InDelta(t, 31.25, p.PxY, 1e-12)
	assert.InDelta(t, 2-cfg.ChannelWallThickness, p.Height(), 1e-12)

	p.SetPixel(10, 20)
	assert.InDelta(t, 0.16, p.Position.X, 1e-12)
	assert.InDelta(t, 0.32, p.Position.Y, 1e-12)
	assert.Equal(t, 2.0, p.Position.Z, "height untouched")
}

func TestOverlapsSymmetric(t *testing.T) {
	cfg := config.Default()
	rng := rand.New(rand.NewSource(5))
	for i := 0; i < 200; i++ {
		a := New(cfg, 20+rng.Float64()*40, rng.Float64()*300, rng.Float64()*300)
		b := New(cfg, 20+rng.Float64()*40, rng.Float64()*300, rng.Float64()*300)
		require.Equal(t, a.Overlaps(b), b.Overlaps(a))
	}

	a := New(cfg, 50, 0, 0)
	assert.True(t, a.Overlaps(New(cfg, 50, 99, 0)))
	assert.False(t, a.Overlaps(New(cfg, 50, 100, 0)), "touching is not overlapping")
}

func TestCenterDist(t *testing.T) {
	cfg := config.Default()
	a := New(cfg, 50, 0, 0)
	b := New(cfg, 50, 0, 0)
	b.SetPosition(r3.Vec{X: 3, Y: 4, Z: a.Position.Z})
	assert.InDelta(t, 5, a.CenterDist(b), 1e-12)
}

func chain(cfg *config.Settings) *Set {
	// 0-1-2 chained, 3 alone, 4-5 pair
	return NewSet(cfg, []geometry.Circle{
		geometry.NewCircle(100, 100, 10),
		geometry.NewCircle(180, 100, 10),
		geometry.NewCircle(260, 100, 10),
		geometry.NewCircle(600, 600, 10),
		geometry.NewCircle(100, 400, 10),
		geometry.NewCircle(100, 470, 10),
	})
}

func TestLinkAndGroups(t *testing.T) {
	s := chain(config.Default())
	s.Link()

	assert.Equal(t, 50.0, s.Particles[0].RadiusPx, "configured radius wins over the circle radius")
	assert.Equal(t, []int{1}, s.Particles[0].Neighbors)
	assert.ElementsMatch(t, []int{0, 2}, s.Particles[1].Neighbors)
	assert.False(t, s.Particles[3].HasNeighbors())

	assert.Equal(t, []int{0, 1, 2}, s.Group(0))
	assert.Equal(t, []int{2, 1, 0}, s.Group(2))
	assert.Equal(t, []int{3}, s.Group(3))

	groups := s.Groups()
	assert.Equal(t, [][]int{{0, 1, 2}, {3}, {4, 5}}, groups)

	// relinking does not duplicate edges
	s.Link()
	assert.ElementsMatch(t, []int{0, 2}, s.Particles[1].Neighbors)
}

func TestGroupsPartitionRandom(t *testing.T) {
	cfg := config.Default()
	rng := rand.New(rand.NewSource(9))
	var circles []geometry.Circle
	for i := 0; i < 60; i++ {
		circles = append(circles, geometry.NewCircle(rng.Float64()*1000, rng.Float64()*1000, 50))
	}
	s := NewSet(cfg, circles)
	s.Link()

	groupOf := make(map[int]int)
	var all []int
	for gi, g := range s.Groups() {
		for _, n := range g {
			_, dup := groupOf[n]
			require.False(t, dup, "particle %d in two groups", n)
			groupOf[n] = gi
			all = append(all, n)
		}
	}
	sort.Ints(all)
	require.Len(t, all, s.Len())
	for i := range all {
		assert.Equal(t, i, all[i])
	}

	// every edge stays inside a group, so groups are connected components
	for i, p := range s.Particles {
		for _, n := range p.Neighbors {
			assert.Equal(t, groupOf[i], groupOf[n])
			assert.Contains(t, s.Particles[n].Neighbors, i, "edges are symmetric")
		}
	}
}
