package main

import (
	"encoding/csv"
	"fmt"
	"image"
	"os"
	"strconv"

	"particle-height/internal/config"
	"particle-height/internal/finder"
	"particle-height/internal/imaging"
	"particle-height/internal/logger"
)

type processJob struct {
	cfg      *config.Settings
	video    string
	ref      string
	out      string
	videoOut string
	hough    bool
	log      logger.Logger
}

// run fits every frame after the reference and writes one CSV row per
// particle. When the reference comes from the video itself it is frame 0
// and is not processed.
func (j *processJob) run() error {
	var ref *image.Gray
	if j.ref != "" {
		var err error
		if ref, err = loadReference(j.ref); err != nil {
			return err
		}
	}

	file, err := os.Create(j.out)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", j.out, err)
	}
	defer file.Close()
	w := csv.NewWriter(file)
	if err := w.Write([]string{"frame", "x", "y", "z", "confidence"}); err != nil {
		return err
	}

	var (
		proc   *imaging.Processor
		find   *finder.Finder
		masks  *maskWriter
		frames int
	)
	defer func() {
		if proc != nil {
			proc.Close()
		}
		if masks != nil {
			masks.Close()
		}
	}()

	start := func(r *image.Gray) error {
		ref = r
		if proc, err = imaging.NewProcessor(ref, j.cfg); err != nil {
			return err
		}
		find = finder.New(j.cfg, ref, proc, j.log)
		if j.videoOut != "" {
			b := ref.Bounds()
			if masks, err = newMaskWriter(j.videoOut, b.Dx(), b.Dy()); err != nil {
				return err
			}
		}
		return nil
	}
	if ref != nil {
		if err := start(ref); err != nil {
			return err
		}
	}

	err = readFrames(j.video, func(n int, frame *image.Gray) (bool, error) {
		if proc == nil {
			return true, start(frame)
		}
		frames++

		aligned, al, err := proc.Align(frame)
		if err != nil {
			return false, fmt.Errorf("frame %d: %w", frames, err)
		}
		j.log.Debug("process", "aligned", map[string]interface{}{
			"frame": frames, "cc": al.CC,
			"tx": al.Warp.TX, "ty": al.Warp.TY,
			"a": al.Warp.A, "b": al.Warp.B, "c": al.Warp.C, "d": al.Warp.D,
		})

		res, err := find.Find(aligned, j.hough)
		if err != nil {
			return false, fmt.Errorf("frame %d: %w", frames, err)
		}
		for _, p := range res.Particles() {
			if err := w.Write(row(frames, j.cfg, p.Position.X, p.Position.Y, p.Position.Z, p.Confidence)); err != nil {
				return false, err
			}
		}
		w.Flush()

		if masks != nil {
			mask, err := proc.Binarize(aligned)
			if err != nil {
				return false, err
			}
			if err := masks.Write(mask); err != nil {
				return false, err
			}
		}

		j.log.Info("process", "frame done", map[string]interface{}{
			"frame": frames, "particles": len(res.Particles()), "failed": res.Failed,
		})
		return true, nil
	})
	if err != nil {
		return err
	}
	if proc == nil {
		return fmt.Errorf("no frames in %s", j.video)
	}

	w.Flush()
	j.log.Info("process", "done", map[string]interface{}{"frames": frames, "out": j.out})
	return w.Error()
}

// row maps channel coordinates to the output frame: x along the channel
// width, y the height above the wall, z along the channel length.
func row(frame int, cfg *config.Settings, x, y, z, confidence float64) []string {
	f := func(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }
	return []string{strconv.Itoa(frame), f(y), f(z - cfg.ChannelWallThickness), f(x), f(confidence)}
}
