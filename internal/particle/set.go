package particle

import (
	"particle-height/internal/config"
	"particle-height/pkg/geometry"
)

// Set owns the particles of one frame. Neighbor links are indices into
// Particles.
type Set struct {
	Particles []*Particle
}

// NewSet creates one particle per circle. Circle radii from segmentation
// are not trusted; every particle gets the configured radius.
func NewSet(cfg *config.Settings, circles []geometry.Circle) *Set {
	s := &Set{Particles: make([]*Particle, 0, len(circles))}
	for _, c := range circles {
		s.Particles = append(s.Particles, New(cfg, cfg.ParticleRadiusPx, c.Center.X, c.Center.Y))
	}
	return s
}

func (s *Set) Len() int { return len(s.Particles) }

// Link rebuilds the overlap graph by testing every pair.
func (s *Set) Link() {
	for _, p := range s.Particles {
		p.Neighbors = p.Neighbors[:0]
	}
	for i := 0; i < len(s.Particles); i++ {
		for j := i + 1; j < len(s.Particles); j++ {
			if s.Particles[i].Overlaps(s.Particles[j]) {
				s.Particles[i].Neighbors = append(s.Particles[i].Neighbors, j)
				s.Particles[j].Neighbors = append(s.Particles[j].Neighbors, i)
			}
		}
	}
}

// Group returns the connected overlap group containing particle i, in
// depth-first order starting with i.
func (s *Set) Group(i int) []int {
	seen := map[int]bool{i: true}
	group := []int{}
	stack := []int{i}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		group = append(group, n)

		nb := s.Particles[n].Neighbors
		for k := len(nb) - 1; k >= 0; k-- {
			if !seen[nb[k]] {
				seen[nb[k]] = true
				stack = append(stack, nb[k])
			}
		}
	}
	return group
}

// Groups partitions the set into connected overlap groups. Singles form
// groups of one.
func (s *Set) Groups() [][]int {
	assigned := make([]bool, len(s.Particles))
	var groups [][]int
	for i := range s.Particles {
		if assigned[i] {
			continue
		}
		g := s.Group(i)
		for _, n := range g {
			assigned[n] = true
		}
		groups = append(groups, g)
	}
	return groups
}
