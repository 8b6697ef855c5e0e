// Package finder recovers the 3D positions of the particles in a frame by
// fitting simulated refraction of the reference pattern to the observed
// image, one overlap group at a time.
package finder

import (
	"errors"
	"fmt"
	"image"
	"time"

	"gonum.org/v1/gonum/spatial/r3"

	"particle-height/internal/config"
	"particle-height/internal/dic"
	"particle-height/internal/logger"
	"particle-height/internal/optics"
	"particle-height/internal/particle"
	"particle-height/internal/transform"
	"particle-height/pkg/geometry"
)

const component = "finder"

// Segmenter finds particle candidates in a frame aligned to the reference.
type Segmenter interface {
	Segment(frame *image.Gray, hough bool) ([]geometry.Circle, error)
}

// Result holds the particles of one frame and fitting statistics.
type Result struct {
	Set *particle.Set

	Singles int
	Groups  int
	Failed  int

	// average objective evaluations per successful fit
	SingleEvals int
	GroupEvals  int

	Elapsed time.Duration
}

// Particles is a shortcut for Set.Particles.
func (r *Result) Particles() []*particle.Particle {
	return r.Set.Particles
}

// Finder fits particle heights against one reference pattern.
type Finder struct {
	cfg *config.Settings
	ref *image.Gray
	seg Segmenter
	log logger.Logger
}

// New creates a finder. seg may be nil when circles are always supplied
// through FindParticles.
func New(cfg *config.Settings, ref *image.Gray, seg Segmenter, log logger.Logger) *Finder {
	if log == nil {
		log = logger.Nop
	}
	return &Finder{cfg: cfg, ref: ref, seg: seg, log: log}
}

// Find segments frame and fits every candidate.
func (f *Finder) Find(frame *image.Gray, hough bool) (*Result, error) {
	if f.seg == nil {
		return nil, errors.New("finder has no segmenter")
	}
	circles, err := f.seg.Segment(frame, hough)
	if err != nil {
		return nil, fmt.Errorf("segmentation failed: %w", err)
	}
	return f.FindParticles(frame, circles), nil
}

// FindParticles fits the particles seeded at circles. A failed fit leaves
// the particles involved with an unknown height and never aborts the frame.
func (f *Finder) FindParticles(frame *image.Gray, circles []geometry.Circle) *Result {
	start := time.Now()

	set := particle.NewSet(f.cfg, circles)
	set.Link()

	res := &Result{Set: set}
	var singleEvals, groupEvals int
	// failed fits leave HeightKnown false, so track visits separately
	processed := make([]bool, set.Len())
	for i, p := range set.Particles {
		if processed[i] {
			continue
		}

		if !p.HasNeighbors() {
			processed[i] = true
			res.Singles++
			score, evals, err := f.fitSingle(frame, p)
			if err != nil {
				res.Failed++
				f.log.Warning(component, "single fit failed", map[string]interface{}{
					"particle": i, "error": err.Error(),
				})
				continue
			}
			singleEvals += evals
			p.HeightKnown = true
			p.Confidence = score
			p.LocalCorrelation = score
			continue
		}

		res.Groups++
		group := set.Group(i)
		for _, n := range group {
			processed[n] = true
		}
		score, evals, err := f.fitGroup(frame, set, group)
		if err != nil {
			res.Failed += len(group)
			f.log.Warning(component, "group fit failed", map[string]interface{}{
				"particle": i, "size": len(group), "error": err.Error(),
			})
			continue
		}
		groupEvals += evals
		for _, n := range group {
			m := set.Particles[n]
			m.HeightKnown = true
			m.Confidence = score / float64(len(group))
			m.LocalCorrelation = f.rescore(frame, set, n)
		}
	}

	if res.Singles > 0 {
		res.SingleEvals = singleEvals / res.Singles
	}
	if res.Groups > 0 {
		res.GroupEvals = groupEvals / res.Groups
	}
	res.Elapsed = time.Since(start)

	f.log.Info(component, "found particles", map[string]interface{}{
		"particles":    set.Len(),
		"singles":      res.Singles,
		"single_evals": res.SingleEvals,
		"groups":       res.Groups,
		"group_evals":  res.GroupEvals,
		"failed":       res.Failed,
		"elapsed_ms":   res.Elapsed.Milliseconds(),
	})
	return res
}

func (f *Finder) fitSingle(frame *image.Gray, p *particle.Particle) (float64, int, error) {
	opt := Optimizer{
		InitialStep: f.cfg.InitStepSingle,
		XTol:        f.cfg.XtolAbsSingle,
		MaxEvals:    f.cfg.MaxEvals,
	}
	x0 := []float64{p.Position.X, p.Position.Y, p.Position.Z}
	best, err := opt.Maximize(singleObjective(f.cfg, frame, f.ref), x0)
	if err != nil {
		return 0, 0, err
	}
	p.SetPosition(r3.Vec{X: best.X[0], Y: best.X[1], Z: best.X[2]})
	return best.F, best.Evals, nil
}

// fitGroup seeds every member with a single fit, then fits the whole group
// through a ray traced scene. It returns the summed objective.
func (f *Finder) fitGroup(frame *image.Gray, set *particle.Set, group []int) (float64, int, error) {
	members := make([]*particle.Particle, len(group))
	for k, n := range group {
		members[k] = set.Particles[n]
		if _, _, err := f.fitSingle(frame, members[k]); err != nil {
			f.log.Debug(component, "seed fit failed", map[string]interface{}{"particle": n, "error": err.Error()})
		}
	}

	// particles first so their index matches the trial vector
	scene := optics.NewScene(f.cfg.EtaLiquid)
	spheres := make([]*optics.Sphere, len(members))
	x0 := make([]float64, 0, 3*len(members))
	for k, m := range members {
		spheres[k] = optics.NewSphere(m.Position, m.RadiusMM(), f.cfg.EtaParticle)
		scene.Add(spheres[k])
		x0 = append(x0, m.Position.X, m.Position.Y, m.Position.Z)
	}
	up := r3.Vec{Z: 1}
	scene.Add(optics.NewPattern(r3.Vec{}, up))
	scene.Add(optics.NewLayer(r3.Vec{}, r3.Vec{Z: f.cfg.ChannelWallThickness}, up, f.cfg.EtaGlass))

	opt := Optimizer{
		InitialStep: f.cfg.InitStepGroup,
		XTol:        f.cfg.XtolAbsGroup,
		MaxEvals:    f.cfg.MaxEvals,
	}
	best, err := opt.Maximize(groupObjective(f.cfg, frame, f.ref, scene, spheres), x0)
	if err != nil {
		return 0, 0, err
	}
	for k, m := range members {
		m.SetPosition(r3.Vec{X: best.X[3*k], Y: best.X[3*k+1], Z: best.X[3*k+2]})
	}
	return best.F, best.Evals, nil
}

// rescore correlates particle n alone against a scene of itself and its
// direct neighbours at their fitted positions.
func (f *Finder) rescore(frame *image.Gray, set *particle.Set, n int) float64 {
	p := set.Particles[n]
	rect := dic.Region(p.PxX, p.PxY, f.cfg.DICRegionSize)
	return dic.Correlate(frame, f.ref, rect, f.neighbourhood(set, n).Apply)
}

func (f *Finder) neighbourhood(set *particle.Set, n int) *transform.Multiple {
	p := set.Particles[n]
	scene := optics.ChannelScene(f.cfg)
	scene.Add(optics.NewSphere(p.Position, p.RadiusMM(), f.cfg.EtaParticle))
	for _, k := range p.Neighbors {
		o := set.Particles[k]
		scene.Add(optics.NewSphere(o.Position, o.RadiusMM(), f.cfg.EtaParticle))
	}
	return transform.NewMultiple(p, f.cfg, scene)
}

// Transform renders the reference pattern inside the correlation window of
// particle n as the model sees it. Particles with neighbours are always ray
// traced; isolated ones use the closed form unless withRay is set.
func (f *Finder) Transform(set *particle.Set, n int, withRay bool) (*image.Gray, image.Rectangle) {
	p := set.Particles[n]
	rect := dic.Region(p.PxX, p.PxY, f.cfg.DICRegionSize)

	var fn transform.Func
	if p.HasNeighbors() || withRay {
		fn = f.neighbourhood(set, n).Apply
	} else {
		fn = transform.NewSingle(p, f.cfg, f.cfg.FastTransform != 0).Apply
	}
	return dic.TransformRef(f.ref, rect, fn), rect
}
