// Package calibrate fits the optical parameters of the channel to frames of
// particles resting at known heights.
package calibrate

import (
	"errors"
	"fmt"
	"image"

	"particle-height/internal/config"
	"particle-height/internal/finder"
	"particle-height/internal/logger"
)

const component = "calibrate"

const (
	defaultStep = 0.03
	defaultFTol = 1e-4
)

// Trial is one calibration run: a reference pattern and one frame per
// known height, in the same order.
type Trial struct {
	Ref     *image.Gray
	Frames  []*image.Gray
	Heights []float64
}

// GroupFrames splits frames laid out as [ref, h1, ..., hn] per trial.
func GroupFrames(frames []*image.Gray, heights []float64) ([]Trial, error) {
	if len(heights) == 0 {
		return nil, errors.New("no calibration heights")
	}
	span := len(heights) + 1
	if len(frames) == 0 || len(frames)%span != 0 {
		return nil, fmt.Errorf("%d frames do not split into trials of %d", len(frames), span)
	}

	trials := make([]Trial, 0, len(frames)/span)
	for i := 0; i < len(frames); i += span {
		trials = append(trials, Trial{
			Ref:     frames[i],
			Frames:  frames[i+1 : i+span],
			Heights: heights,
		})
	}
	return trials, nil
}

// HeightFunc measures the z of the first particle found in frame, from the
// pattern plane and so including the bottom wall, in the units of the
// known heights. ok is false when no particle was fitted.
type HeightFunc func(cfg *config.Settings, ref, frame *image.Gray) (height float64, ok bool)

// Calibrator minimizes the squared height residuals over EtaGlass,
// EtaLiquid, EtaParticle and ChannelWallThickness.
type Calibrator struct {
	Measure HeightFunc
	Log     logger.Logger

	// Step is the initial simplex size, FTol the absolute function
	// tolerance. Zero values select 0.03 and 1e-4.
	Step     float64
	FTol     float64
	MaxEvals int
}

// Outcome is the calibrated settings and the residual they achieve.
type Outcome struct {
	Settings *config.Settings
	SSR      float64
	Evals    int
	// Skipped counts frames without a fitted particle at the optimum.
	Skipped int
}

// Run calibrates a copy of cfg against trials.
func (c *Calibrator) Run(cfg *config.Settings, trials []Trial) (*Outcome, error) {
	if c.Measure == nil {
		return nil, errors.New("calibrator has no height function")
	}
	if len(trials) == 0 {
		return nil, errors.New("no calibration trials")
	}
	log := c.Log
	if log == nil {
		log = logger.Nop
	}

	opt := finder.Optimizer{
		InitialStep: c.Step,
		FTol:        c.FTol,
		MaxEvals:    c.MaxEvals,
	}
	if opt.InitialStep == 0 {
		opt.InitialStep = defaultStep
	}
	if opt.FTol == 0 {
		opt.FTol = defaultFTol
	}

	iteration := 0
	objective := func(x []float64) float64 {
		trialCfg := apply(cfg, x)
		ssr, skipped := c.residual(trialCfg, trials)
		iteration++
		log.Debug(component, "evaluated", map[string]interface{}{
			"eval":      iteration,
			"eta_glass": x[0], "eta_liquid": x[1], "eta_particle": x[2], "wall": x[3],
			"ssr": ssr, "skipped": skipped,
		})
		return ssr
	}

	best, err := opt.Minimize(objective, vector(cfg))
	if err != nil {
		return nil, fmt.Errorf("calibration failed: %w", err)
	}

	out := &Outcome{Settings: apply(cfg, best.X), SSR: best.F, Evals: best.Evals}
	_, out.Skipped = c.residual(out.Settings, trials)
	log.Info(component, "calibrated", map[string]interface{}{
		"eta_glass":    out.Settings.EtaGlass,
		"eta_liquid":   out.Settings.EtaLiquid,
		"eta_particle": out.Settings.EtaParticle,
		"wall":         out.Settings.ChannelWallThickness,
		"ssr":          out.SSR,
		"evals":        out.Evals,
	})
	return out, nil
}

// residual sums squared height errors over every frame with a particle.
func (c *Calibrator) residual(cfg *config.Settings, trials []Trial) (float64, int) {
	var ssr float64
	var skipped int
	for _, t := range trials {
		for i, frame := range t.Frames {
			h, ok := c.Measure(cfg, t.Ref, frame)
			if !ok {
				skipped++
				continue
			}
			d := h - t.Heights[i]
			ssr += d * d
		}
	}
	return ssr, skipped
}

func vector(cfg *config.Settings) []float64 {
	return []float64{cfg.EtaGlass, cfg.EtaLiquid, cfg.EtaParticle, cfg.ChannelWallThickness}
}

func apply(cfg *config.Settings, x []float64) *config.Settings {
	out := cfg.Clone()
	out.EtaGlass = x[0]
	out.EtaLiquid = x[1]
	out.EtaParticle = x[2]
	out.ChannelWallThickness = x[3]
	return out
}
