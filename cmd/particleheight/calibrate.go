package main

import (
	"fmt"
	"image"

	"particle-height/internal/calibrate"
	"particle-height/internal/config"
	"particle-height/internal/finder"
	"particle-height/internal/imaging"
	"particle-height/internal/logger"
)

// runCalibration fits the optical settings and writes them to savePath,
// or only prints them when savePath is empty.
func runCalibration(cfg *config.Settings, video string, heights []float64, savePath string, log logger.Logger) error {
	var frames []*image.Gray
	err := readFrames(video, func(_ int, frame *image.Gray) (bool, error) {
		frames = append(frames, frame)
		return true, nil
	})
	if err != nil {
		return err
	}

	trials, err := calibrate.GroupFrames(frames, heights)
	if err != nil {
		return err
	}

	// one processor per trial reference; the segmentation settings are not
	// calibrated so the frames can be aligned once up front
	procs := make(map[*image.Gray]*imaging.Processor, len(trials))
	defer func() {
		for _, p := range procs {
			p.Close()
		}
	}()
	for i := range trials {
		t := &trials[i]
		proc, err := imaging.NewProcessor(t.Ref, cfg)
		if err != nil {
			return err
		}
		procs[t.Ref] = proc

		aligned := make([]*image.Gray, len(t.Frames))
		for k, f := range t.Frames {
			if aligned[k], _, err = proc.Align(f); err != nil {
				return fmt.Errorf("trial %d frame %d: %w", i, k, err)
			}
		}
		t.Frames = aligned
	}

	measure := func(trialCfg *config.Settings, ref, frame *image.Gray) (float64, bool) {
		res, err := finder.New(trialCfg, ref, procs[ref], nil).Find(frame, true)
		if err != nil {
			return 0, false
		}
		return firstParticleZ(res)
	}

	c := &calibrate.Calibrator{Measure: measure, Log: log}
	out, err := c.Run(cfg, trials)
	if err != nil {
		return err
	}

	fmt.Printf("%-22s %v\n", "EtaGlass", out.Settings.EtaGlass)
	fmt.Printf("%-22s %v\n", "EtaLiquid", out.Settings.EtaLiquid)
	fmt.Printf("%-22s %v\n", "EtaParticle", out.Settings.EtaParticle)
	fmt.Printf("%-22s %v\n", "ChannelWallThickness", out.Settings.ChannelWallThickness)
	fmt.Printf("%-22s %g (%d evaluations, %d frames skipped)\n", "SSR", out.SSR, out.Evals, out.Skipped)

	if savePath == "" {
		log.Info("calibrate", "settings not saved, pass -settings to write them", nil)
		return nil
	}
	if err := out.Settings.Save(savePath); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	log.Info("calibrate", "saved settings", map[string]interface{}{"path": savePath})
	return nil
}

// firstParticleZ is the fitted z of the first particle, measured from the
// pattern plane so that it includes the bottom wall.
func firstParticleZ(res *finder.Result) (float64, bool) {
	if len(res.Particles()) == 0 {
		return 0, false
	}
	p := res.Particles()[0]
	if !p.HeightKnown {
		return 0, false
	}
	return p.Position.Z, true
}
