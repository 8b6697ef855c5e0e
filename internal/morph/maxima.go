package morph

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// HMaxima suppresses every maximum of img whose height is below h.
func HMaxima(img *mat.Dense, h float64) *mat.Dense {
	return Reconstruct(lower(img, h), img)
}

// RegionalMaxima marks with 1 the pixels of img left standing above the
// reconstruction of img lowered by eps, which are its regional maxima.
func RegionalMaxima(img *mat.Dense, eps float64) *mat.Dense {
	rec := Reconstruct(lower(img, eps), img)

	rows, cols := img.Dims()
	out := mat.NewDense(rows, cols, nil)
	out.Apply(func(i, j int, _ float64) float64 {
		if img.At(i, j)-rec.At(i, j) > 0 {
			return 1
		}
		return 0
	}, out)
	return out
}

// Pad returns img surrounded by n pixels of value.
func Pad(img *mat.Dense, n int, value float64) *mat.Dense {
	rows, cols := img.Dims()
	out := mat.NewDense(rows+2*n, cols+2*n, nil)
	out.Apply(func(i, j int, _ float64) float64 {
		if i < n || j < n || i >= rows+n || j >= cols+n {
			return value
		}
		return img.At(i-n, j-n)
	}, out)
	return out
}

// Unpad removes n pixels from every side. The result shares storage with img.
func Unpad(img *mat.Dense, n int) *mat.Dense {
	rows, cols := img.Dims()
	return img.Slice(n, rows-n, n, cols-n).(*mat.Dense)
}

func lower(img *mat.Dense, h float64) *mat.Dense {
	var out mat.Dense
	out.Apply(func(_, _ int, v float64) float64 {
		return math.Max(0, v-h)
	}, img)
	return &out
}
