// Command particleheight recovers the 3D positions of spherical particles
// in a microfluidic channel from video of a pattern seen through them.
package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"particle-height/internal/config"
	"particle-height/internal/logger"
	"particle-height/internal/version"
)

func main() {
	calibrateMode := flag.Bool("calibrate", false, "Calibrate optical parameters from frames at known heights")
	showVersion := flag.Bool("version", false, "Print version and exit")
	videoPath := flag.String("video", "", "Input video")
	refPath := flag.String("ref", "", "Reference pattern image or video (default: first video frame)")
	settingsPath := flag.String("settings", "settings", "Settings file (flat, .yaml or .ini)")
	outPath := flag.String("out", "particles.csv", "Output CSV")
	videoOut := flag.String("video-out", "", "Write the binarised frames to this video")
	hough := flag.Bool("hough", false, "Segment with Hough circles instead of the distance transform")
	heightList := flag.String("heights", "", "Calibration heights in mm, comma separated")
	logLevel := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	level, err := logger.ParseLevel(*logLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid log level: %v\n", err)
		os.Exit(2)
	}
	log := logger.NewConsoleLogger(level)
	log.Info("main", version.String(), nil)

	if *videoPath == "" {
		fmt.Println("Usage: particleheight -video <path> [-ref <path>] [-settings <path>] [-out particles.csv] [-video-out <path>] [-hough]")
		fmt.Println("       particleheight -calibrate -video <path> -heights 0.5,1.0,1.5 [-settings <path>]")
		os.Exit(1)
	}

	cfg := config.Default()
	if n, err := cfg.Load(*settingsPath); err != nil {
		log.Warning("main", "using default settings", map[string]interface{}{"path": *settingsPath, "error": err.Error()})
	} else {
		log.Info("main", "loaded settings", map[string]interface{}{"path": *settingsPath, "keys": n})
	}
	if err := cfg.Validate(); err != nil {
		log.Error("main", err, nil)
		os.Exit(1)
	}

	if *calibrateMode {
		heights, err := parseHeights(*heightList)
		if err != nil {
			log.Error("main", err, nil)
			os.Exit(2)
		}
		savePath := ""
		if flagGiven(flag.CommandLine, "settings") {
			savePath = *settingsPath
		}
		if err := runCalibration(cfg, *videoPath, heights, savePath, log); err != nil {
			log.Error("main", err, nil)
			os.Exit(1)
		}
		return
	}

	job := processJob{
		cfg:      cfg,
		video:    *videoPath,
		ref:      *refPath,
		out:      *outPath,
		videoOut: *videoOut,
		hough:    *hough,
		log:      log,
	}
	if err := job.run(); err != nil {
		log.Error("main", err, nil)
		os.Exit(1)
	}
}

// flagGiven reports whether name was set on the command line rather than
// left at its default.
func flagGiven(fs *flag.FlagSet, name string) bool {
	given := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			given = true
		}
	})
	return given
}

func parseHeights(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, fmt.Errorf("-heights is required with -calibrate")
	}
	var out []float64
	for _, f := range strings.Split(s, ",") {
		h, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid height %q: %w", f, err)
		}
		out = append(out, h)
	}
	return out, nil
}
