package main

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"particle-height/internal/imaging"
)

const (
	videoCodec = "MJPG"
	videoFPS   = 30
)

// readFrames calls fn with every frame of a video converted to gray.
// Returning false from fn stops the read.
func readFrames(path string, fn func(n int, frame *image.Gray) (bool, error)) error {
	vc, err := gocv.VideoCaptureFile(path)
	if err != nil {
		return fmt.Errorf("failed to open video %s: %w", path, err)
	}
	defer vc.Close()

	m := gocv.NewMat()
	defer m.Close()
	gray := gocv.NewMat()
	defer gray.Close()

	for n := 0; vc.Read(&m); n++ {
		if m.Empty() {
			continue
		}
		src := m
		if m.Channels() == 3 {
			gocv.CvtColor(m, &gray, gocv.ColorBGRToGray)
			src = gray
		}
		img, err := imaging.MatToGray(src)
		if err != nil {
			return fmt.Errorf("frame %d: %w", n, err)
		}
		more, err := fn(n, img)
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return nil
}

// loadReference reads a still reference image, or the first frame of a
// reference video.
func loadReference(path string) (*image.Gray, error) {
	if imaging.IsSupportedFormat(path) {
		return imaging.LoadGray(path)
	}
	var ref *image.Gray
	err := readFrames(path, func(_ int, frame *image.Gray) (bool, error) {
		ref = frame
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	if ref == nil {
		return nil, fmt.Errorf("no frame in %s", path)
	}
	return ref, nil
}

// maskWriter writes binary masks as a color video.
type maskWriter struct {
	w   *gocv.VideoWriter
	bgr gocv.Mat
}

func newMaskWriter(path string, width, height int) (*maskWriter, error) {
	w, err := gocv.VideoWriterFile(path, videoCodec, videoFPS, width, height, true)
	if err != nil {
		return nil, fmt.Errorf("failed to open video writer %s: %w", path, err)
	}
	return &maskWriter{w: w, bgr: gocv.NewMat()}, nil
}

func (mw *maskWriter) Write(mask *image.Gray) error {
	m, err := imaging.GrayToMat(mask)
	if err != nil {
		return err
	}
	defer m.Close()
	gocv.CvtColor(m, &mw.bgr, gocv.ColorGrayToBGR)
	return mw.w.Write(mw.bgr)
}

func (mw *maskWriter) Close() error {
	mw.bgr.Close()
	return mw.w.Close()
}
