// Package geometry provides the pixel-space types shared by segmentation,
// the particle model and the command line tools.
package geometry

import "image"

// Point2D represents a 2D point with floating-point pixel coordinates.
type Point2D struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Circle is a segmented particle candidate: center and radius in pixels.
type Circle struct {
	Center Point2D `json:"center"`
	Radius float64 `json:"radius"`
}

// NewCircle creates a new Circle.
func NewCircle(x, y, r float64) Circle {
	return Circle{Center: Point2D{X: x, Y: y}, Radius: r}
}

// InsideImage reports whether the whole circle, plus one pixel, lies within
// a width x height image.
func (c Circle) InsideImage(width, height int) bool {
	if c.Center.X < c.Radius || c.Center.Y < c.Radius {
		return false
	}
	return c.Center.X+c.Radius+1 <= float64(width) && c.Center.Y+c.Radius+1 <= float64(height)
}

// Bounds returns the square bounding box of the circle, 2r+1 pixels wide.
func (c Circle) Bounds() image.Rectangle {
	x0 := int(c.Center.X - c.Radius)
	y0 := int(c.Center.Y - c.Radius)
	side := int(2*c.Radius) + 1
	return image.Rect(x0, y0, x0+side, y0+side)
}

// AffineTransform represents a 2x3 affine transformation matrix, as
// estimated when aligning a frame to the reference.
// [a b tx]
// [c d ty]
type AffineTransform struct {
	A, B, TX float64
	C, D, TY float64
}

// FromMatrix creates an AffineTransform from a [2][3]float64 array.
func FromMatrix(m [2][3]float64) AffineTransform {
	return AffineTransform{
		A: m[0][0], B: m[0][1], TX: m[0][2],
		C: m[1][0], D: m[1][1], TY: m[1][2],
	}
}
