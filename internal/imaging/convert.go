package imaging

import (
	"fmt"
	"image"
	"image/draw"

	"gocv.io/x/gocv"
	"gonum.org/v1/gonum/mat"
)

// GrayToMat copies img into a single channel 8 bit Mat.
func GrayToMat(img *image.Gray) (gocv.Mat, error) {
	if img.Rect.Min != (image.Point{}) {
		// ImageGrayToMatGray expects a zero origin
		shifted := image.NewGray(image.Rect(0, 0, img.Rect.Dx(), img.Rect.Dy()))
		draw.Draw(shifted, shifted.Rect, img, img.Rect.Min, draw.Src)
		img = shifted
	}
	return gocv.ImageGrayToMatGray(img)
}

// MatToGray copies a single channel 8 bit Mat into an image.
func MatToGray(m gocv.Mat) (*image.Gray, error) {
	if m.Empty() {
		return nil, fmt.Errorf("empty image")
	}
	if m.Type() != gocv.MatTypeCV8U {
		return nil, fmt.Errorf("expected 8 bit single channel image, got %v", m.Type())
	}

	rows, cols := m.Rows(), m.Cols()
	out := image.NewGray(image.Rect(0, 0, cols, rows))
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			out.Pix[y*out.Stride+x] = m.GetUCharAt(y, x)
		}
	}
	return out, nil
}

// ToGray converts any decoded image to 8 bit gray.
func ToGray(img image.Image) *image.Gray {
	if g, ok := img.(*image.Gray); ok && g.Rect.Min == (image.Point{}) {
		return g
	}
	b := img.Bounds()
	out := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Rect, img, b.Min, draw.Src)
	return out
}

// MatToDense reads a 32 bit float Mat.
func MatToDense(m gocv.Mat) *mat.Dense {
	rows, cols := m.Rows(), m.Cols()
	out := mat.NewDense(rows, cols, nil)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			out.Set(y, x, float64(m.GetFloatAt(y, x)))
		}
	}
	return out
}

// DenseToMask writes the non-zero pixels of d as 255 into an 8 bit Mat.
func DenseToMask(d *mat.Dense) gocv.Mat {
	rows, cols := d.Dims()
	out := gocv.NewMatWithSize(rows, cols, gocv.MatTypeCV8U)
	for y := 0; y < rows; y++ {
		for x := 0; x < cols; x++ {
			var v uint8
			if d.At(y, x) > 0 {
				v = 255
			}
			out.SetUCharAt(y, x, v)
		}
	}
	return out
}
