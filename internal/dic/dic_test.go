package dic

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func identity(x, y int) (int, int, bool) { return x, y, true }

func ramp(w, h int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Pix[y*img.Stride+x] = uint8((x*7 + y*13) % 256)
		}
	}
	return img
}

func TestRegion(t *testing.T) {
	r := Region(100.7, 50.2, 61)
	assert.Equal(t, image.Rect(70, 20, 131, 81), r)
	assert.Equal(t, 61, r.Dx())
}

func TestTransformRefIdentityCrops(t *testing.T) {
	ref := ramp(80, 60)
	rect := image.Rect(10, 5, 31, 26)
	out := TransformRef(ref, rect, identity)

	require.Equal(t, image.Rect(0, 0, 21, 21), out.Bounds())
	for y := 0; y < 21; y++ {
		for x := 0; x < 21; x++ {
			assert.Equal(t, ref.GrayAt(x+10, y+5), out.GrayAt(x, y))
		}
	}
}

func TestTransformRefSkipsUnmapped(t *testing.T) {
	ref := ramp(40, 40)
	ref.Pix[0] = 255

	reject := func(x, y int) (int, int, bool) { return x, y, x != 3 }
	out := TransformRef(ref, image.Rect(0, 0, 10, 10), reject)
	assert.Equal(t, uint8(0), out.GrayAt(3, 4).Y, "unmapped pixel stays 0")

	outside := func(x, y int) (int, int, bool) { return x - 100, y, true }
	out = TransformRef(ref, image.Rect(0, 0, 10, 10), outside)
	assert.Equal(t, uint8(0), out.GrayAt(5, 5).Y, "mapped outside the pattern stays 0")
}

func TestCorrelate(t *testing.T) {
	ref := ramp(80, 80)
	rect := image.Rect(20, 20, 41, 41)

	assert.InDelta(t, 1, Correlate(ref, ref, rect, identity), 1e-12)

	inverted := image.NewGray(ref.Bounds())
	for i, v := range ref.Pix {
		inverted.Pix[i] = 255 - v
	}
	assert.InDelta(t, -1, Correlate(inverted, ref, rect, identity), 1e-12)

	assert.Equal(t, 0.0, Correlate(ref, ref, image.Rect(70, 70, 91, 91), identity), "window leaves the frame")

	flat := image.NewGray(ref.Bounds())
	assert.Equal(t, 0.0, Correlate(flat, ref, rect, identity), "no contrast")
}
