// Package imaging prepares video frames for height fitting: alignment to
// the reference pattern, foreground extraction, and particle segmentation
// by Hough circles or by distance transform peaks.
package imaging

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"particle-height/internal/config"
	"particle-height/internal/morph"
	"particle-height/pkg/geometry"
)

const (
	eccIterations = 50
	eccEpsilon    = 1e-3
	eccGaussSize  = 5

	houghDP = 1.5

	// EDT peak extraction on the distance map normalized to [0, 1]
	hmaxScale   = 0.0001
	maximaDepth = 0.001
)

// Processor segments frames against one reference image.
type Processor struct {
	ref gocv.Mat
	cfg *config.Settings
}

// NewProcessor keeps a Mat copy of ref. Close releases it.
func NewProcessor(ref *image.Gray, cfg *config.Settings) (*Processor, error) {
	m, err := GrayToMat(ref)
	if err != nil {
		return nil, fmt.Errorf("failed to convert reference: %w", err)
	}
	return &Processor{ref: m, cfg: cfg}, nil
}

func (p *Processor) Close() error {
	return p.ref.Close()
}

// AlignToRef warps frame in place onto the reference with an affine ECC
// fit and returns the final correlation coefficient and the warp.
func (p *Processor) AlignToRef(frame *gocv.Mat) (float64, geometry.AffineTransform) {
	warp := gocv.Eye(2, 3, gocv.MatTypeCV32F)
	defer warp.Close()

	criteria := gocv.NewTermCriteria(gocv.Count+gocv.EPS, eccIterations, eccEpsilon)
	mask := gocv.NewMat()
	defer mask.Close()
	cc := gocv.FindTransformECC(p.ref, *frame, &warp, gocv.MotionAffine, criteria, mask, eccGaussSize)

	aligned := gocv.NewMat()
	defer aligned.Close()
	gocv.WarpAffineWithParams(*frame, &aligned, warp, image.Pt(p.ref.Cols(), p.ref.Rows()),
		gocv.InterpolationLinear+gocv.WarpInverseMap, gocv.BorderConstant, color.RGBA{})
	aligned.CopyTo(frame)

	var m [2][3]float64
	for r := 0; r < 2; r++ {
		for c := 0; c < 3; c++ {
			m[r][c] = float64(warp.GetFloatAt(r, c))
		}
	}
	return cc, geometry.FromMatrix(m)
}

// Alignment describes how a frame was registered onto the reference.
type Alignment struct {
	CC   float64
	Warp geometry.AffineTransform
}

// Align returns a copy of frame aligned to the reference.
func (p *Processor) Align(frame *image.Gray) (*image.Gray, Alignment, error) {
	m, err := GrayToMat(frame)
	if err != nil {
		return nil, Alignment{}, err
	}
	defer m.Close()

	var a Alignment
	a.CC, a.Warp = p.AlignToRef(&m)
	out, err := MatToGray(m)
	return out, a, err
}

// SubtractBackground returns the foreground mask of frame: a single
// frame mixture model learnt on the reference, without shadows.
func (p *Processor) SubtractBackground(frame gocv.Mat) gocv.Mat {
	mog := gocv.NewBackgroundSubtractorMOG2WithParams(1, float64(p.cfg.BackgroundThreshold), false)
	defer mog.Close()

	learn := gocv.NewMat()
	defer learn.Close()
	mog.Apply(p.ref, &learn)

	mask := gocv.NewMat()
	mog.Apply(frame, &mask)
	return mask
}

// MorphOpen erodes then dilates mask in place, OpenIter times each.
func (p *Processor) MorphOpen(mask *gocv.Mat) {
	kernel := ellipse(p.cfg.OpenSize)
	defer kernel.Close()
	for i := 0; i < p.cfg.OpenIter; i++ {
		gocv.Erode(*mask, mask, kernel)
	}
	for i := 0; i < p.cfg.OpenIter; i++ {
		gocv.Dilate(*mask, mask, kernel)
	}
}

// MorphClose dilates then erodes mask in place, CloseIter times each.
func (p *Processor) MorphClose(mask *gocv.Mat) {
	kernel := ellipse(p.cfg.CloseSize)
	defer kernel.Close()
	for i := 0; i < p.cfg.CloseIter; i++ {
		gocv.Dilate(*mask, mask, kernel)
	}
	for i := 0; i < p.cfg.CloseIter; i++ {
		gocv.Erode(*mask, mask, kernel)
	}
}

func ellipse(size int) gocv.Mat {
	return gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(2*size+1, 2*size+1))
}

// Preprocess turns an aligned frame into the binary particle mask.
func (p *Processor) Preprocess(frame gocv.Mat) gocv.Mat {
	mask := p.SubtractBackground(frame)
	p.MorphClose(&mask)
	p.MorphOpen(&mask)
	return mask
}

// Binarize returns the preprocessed mask of frame as an image.
func (p *Processor) Binarize(frame *image.Gray) (*image.Gray, error) {
	m, err := GrayToMat(frame)
	if err != nil {
		return nil, err
	}
	defer m.Close()

	mask := p.Preprocess(m)
	defer mask.Close()
	return MatToGray(mask)
}

// FindCirclesHough detects particle outlines in mask with the gradient
// Hough transform, radii within CircleSize +- CircleSizeRange/2.
func (p *Processor) FindCirclesHough(mask gocv.Mat) []geometry.Circle {
	circles := gocv.NewMat()
	defer circles.Close()

	half := p.cfg.CircleSizeRange / 2
	gocv.HoughCirclesWithParams(mask, &circles, gocv.HoughGradient,
		houghDP, float64(p.cfg.CircleMinDist),
		float64(p.cfg.CircleParam1), float64(p.cfg.CircleThreshold),
		p.cfg.CircleSize-half, p.cfg.CircleSize+half)

	if circles.Empty() || circles.Cols() == 0 {
		return nil
	}

	out := make([]geometry.Circle, circles.Cols())
	for i := range out {
		out[i] = geometry.NewCircle(
			float64(circles.GetFloatAt(0, i*3)),
			float64(circles.GetFloatAt(0, i*3+1)),
			float64(circles.GetFloatAt(0, i*3+2)),
		)
	}
	return out
}

// FindCirclesEDT finds one center per h-dome of the Euclidean distance
// map of mask. Touching particles separate where the distance map dips
// deeper than the h-maxima height. Radii are set from the settings.
func (p *Processor) FindCirclesEDT(mask gocv.Mat) []geometry.Circle {
	padded := gocv.NewMat()
	defer padded.Close()
	gocv.CopyMakeBorder(mask, &padded, 1, 1, 1, 1, gocv.BorderConstant, color.RGBA{})

	dist := gocv.NewMat()
	defer dist.Close()
	labels := gocv.NewMat()
	defer labels.Close()
	gocv.DistanceTransform(padded, &dist, &labels, gocv.DistL2, gocv.DistanceMask3, gocv.DistanceLabelCComp)
	gocv.Normalize(dist, &dist, 0, 1, gocv.NormMinMax)

	d := MatToDense(dist)
	domes := morph.HMaxima(d, hmaxScale*float64(p.cfg.HMaxParam))
	peaks := morph.Unpad(morph.RegionalMaxima(domes, maximaDepth), 1)

	peakMask := DenseToMask(peaks)
	defer peakMask.Close()

	compLabels := gocv.NewMat()
	defer compLabels.Close()
	stats := gocv.NewMat()
	defer stats.Close()
	centroids := gocv.NewMat()
	defer centroids.Close()
	n := gocv.ConnectedComponentsWithStats(peakMask, &compLabels, &stats, &centroids)

	r := p.cfg.ParticleRadiusPx + 1
	var out []geometry.Circle
	for i := 1; i < n; i++ { // label 0 is background
		out = append(out, geometry.NewCircle(centroids.GetDoubleAt(i, 0), centroids.GetDoubleAt(i, 1), r))
	}
	return out
}

// FilterCircles drops candidates that touch the image border or whose
// mean mask intensity is below CircleIntensity.
func (p *Processor) FilterCircles(mask gocv.Mat, circles []geometry.Circle) []geometry.Circle {
	kept := circles[:0:0]
	for _, c := range circles {
		if c.Radius <= 0 || !c.InsideImage(mask.Cols(), mask.Rows()) {
			continue
		}
		if meanIntensity(mask, c) < float64(p.cfg.CircleIntensity) {
			continue
		}
		kept = append(kept, c)
	}
	return kept
}

// meanIntensity averages the pixels whose centers lie inside c.
func meanIntensity(m gocv.Mat, c geometry.Circle) float64 {
	b := c.Bounds().Intersect(image.Rect(0, 0, m.Cols(), m.Rows()))
	r2 := c.Radius * c.Radius

	var sum float64
	var n int
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			dx, dy := float64(x)-c.Center.X, float64(y)-c.Center.Y
			if dx*dx+dy*dy > r2 {
				continue
			}
			sum += float64(m.GetUCharAt(y, x))
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

// Segment finds the particles of an aligned frame.
func (p *Processor) Segment(frame *image.Gray, hough bool) ([]geometry.Circle, error) {
	m, err := GrayToMat(frame)
	if err != nil {
		return nil, fmt.Errorf("failed to convert frame: %w", err)
	}
	defer m.Close()
	if m.Rows() != p.ref.Rows() || m.Cols() != p.ref.Cols() {
		return nil, fmt.Errorf("frame is %dx%d, reference is %dx%d", m.Cols(), m.Rows(), p.ref.Cols(), p.ref.Rows())
	}

	mask := p.Preprocess(m)
	defer mask.Close()

	var circles []geometry.Circle
	if hough {
		circles = p.FindCirclesHough(mask)
	} else {
		circles = p.FindCirclesEDT(mask)
	}
	return p.FilterCircles(mask, circles), nil
}
