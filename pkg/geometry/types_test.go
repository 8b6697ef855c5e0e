package geometry

import (
	"image"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCircleInsideImage(t *testing.T) {
	tests := []struct {
		name string
		c    Circle
		want bool
	}{
		{"centered", NewCircle(50, 50, 20), true},
		{"left edge", NewCircle(19, 50, 20), false},
		{"top edge", NewCircle(50, 19.5, 20), false},
		{"right margin", NewCircle(79, 50, 20), true},
		{"right edge", NewCircle(79.5, 50, 20), false},
		{"bottom edge", NewCircle(50, 80, 20), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.c.InsideImage(100, 100))
		})
	}
}

func TestCircleBounds(t *testing.T) {
	assert.Equal(t, image.Rect(40, 30, 61, 51), NewCircle(50, 40, 10).Bounds())
}

func TestFromMatrix(t *testing.T) {
	tr := FromMatrix([2][3]float64{{1, 2, 3}, {4, 5, 6}})
	assert.Equal(t, AffineTransform{A: 1, B: 2, TX: 3, C: 4, D: 5, TY: 6}, tr)
}
