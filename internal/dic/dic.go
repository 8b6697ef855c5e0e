// Package dic synthesizes the reference pattern as seen through particles
// and scores it against observed frames by normalized cross-correlation.
package dic

import (
	"image"
	"math"

	"gonum.org/v1/gonum/stat"

	"particle-height/internal/transform"
)

// Region is the size x size correlation window around a pixel position.
func Region(x, y float64, size int) image.Rectangle {
	x0 := int(x) - size>>1
	y0 := int(y) - size>>1
	return image.Rect(x0, y0, x0+size, y0+size)
}

// TransformRef builds the window rect of the reference pattern as the
// transform f sees it. Pixels f cannot map, or that map outside ref, are 0.
func TransformRef(ref *image.Gray, rect image.Rectangle, f transform.Func) *image.Gray {
	out := image.NewGray(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	b := ref.Bounds()
	for y := 0; y < rect.Dy(); y++ {
		for x := 0; x < rect.Dx(); x++ {
			tx, ty, ok := f(x, y)
			if !ok {
				continue
			}
			p := image.Pt(tx+rect.Min.X, ty+rect.Min.Y)
			if !p.In(b) {
				continue
			}
			out.Pix[y*out.Stride+x] = ref.GrayAt(p.X, p.Y).Y
		}
	}
	return out
}

// Correlate scores the observed window rect against the reference pattern
// transformed by f. The result lies in [-1, 1]; windows reaching outside
// the observed frame, or without contrast, score 0.
func Correlate(observed, ref *image.Gray, rect image.Rectangle, f transform.Func) float64 {
	if !rect.In(observed.Bounds()) {
		return 0
	}
	synth := TransformRef(ref, rect, f)

	n := rect.Dx() * rect.Dy()
	a := make([]float64, 0, n)
	b := make([]float64, 0, n)
	for y := 0; y < rect.Dy(); y++ {
		for x := 0; x < rect.Dx(); x++ {
			a = append(a, float64(observed.GrayAt(x+rect.Min.X, y+rect.Min.Y).Y))
			b = append(b, float64(synth.Pix[y*synth.Stride+x]))
		}
	}

	c := stat.Correlation(a, b, nil)
	if math.IsNaN(c) || math.IsInf(c, 0) {
		return 0
	}
	return c
}
