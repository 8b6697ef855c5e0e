// Package morph implements grayscale morphological reconstruction by
// dilation (Vincent 1993, fast hybrid algorithm) and the regional maxima
// extraction built on it.
package morph

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// Reconstruct returns the reconstruction of marker under mask. Only
// interior pixels are processed; callers pad by one pixel (see Pad). The
// marker is expected to be <= mask everywhere and is not modified.
func Reconstruct(marker, mask *mat.Dense) *mat.Dense {
	rows, cols := marker.Dims()
	if mr, mc := mask.Dims(); mr != rows || mc != cols {
		panic(mat.ErrShape)
	}

	m := mat.DenseCopyOf(marker)
	if rows < 3 || cols < 3 {
		return m
	}
	// Fresh copies are packed, so both strides equal cols.
	mv := m.RawMatrix().Data
	kv := mat.DenseCopyOf(mask).RawMatrix().Data
	w := cols

	before := [4]int{-1, -w - 1, -w, -w + 1}
	after := [4]int{1, w + 1, w, w - 1}

	for y := 1; y < rows-1; y++ {
		for x := 1; x < cols-1; x++ {
			i := y*w + x
			v := mv[i]
			for _, o := range before {
				v = math.Max(v, mv[i+o])
			}
			mv[i] = math.Min(v, kv[i])
		}
	}

	var queue []int
	for y := rows - 2; y > 0; y-- {
		for x := cols - 2; x > 0; x-- {
			i := y*w + x
			v := mv[i]
			for _, o := range after {
				v = math.Max(v, mv[i+o])
			}
			mv[i] = math.Min(v, kv[i])

			for _, o := range after {
				q := i + o
				if mv[q] < mv[i] && mv[q] < kv[q] {
					queue = append(queue, i)
					break
				}
			}
		}
	}

	neighbours := [8]int{-w - 1, -w, -w + 1, -1, 1, w - 1, w, w + 1}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		for _, o := range neighbours {
			q := p + o
			if qy, qx := q/w, q%w; qy < 1 || qy > rows-2 || qx < 1 || qx > cols-2 {
				continue
			}
			if mv[q] < mv[p] && kv[q] != mv[q] {
				mv[q] = math.Min(mv[p], kv[q])
				queue = append(queue, q)
			}
		}
	}
	return m
}
