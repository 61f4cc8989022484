package imageset

import (
	"image"
)

// DefaultSize is the spatial extent the preprocessed dataset images are
// stored at, and the input size the feature extractor was trained for.
const DefaultSize = 160

// Channels is the number of color channels per pixel
const Channels = 3

// Shape is the dimensions of an image
type Shape struct {
	W, H, C int
}

// Image is a fixed-size image held as float32 intensities in row-major HWC
// order. Values are in [0, 255] as loaded from disk; normalization to the
// network input range happens downstream.
type Image struct {
	W, H, C int
	Pix     []float32
}

// NewImage allocates a zeroed image of the given dimensions
func NewImage(w, h, c int) Image {
	return Image{W: w, H: h, C: c, Pix: make([]float32, w*h*c)}
}

// Shape returns the image's dimensions
func (im Image) Shape() Shape {
	return Shape{W: im.W, H: im.H, C: im.C}
}

// At returns the intensity of channel ch at (x, y)
func (im Image) At(x, y, ch int) float32 {
	return im.Pix[(y*im.W+x)*im.C+ch]
}

// Set assigns the intensity of channel ch at (x, y)
func (im Image) Set(x, y, ch int, v float32) {
	im.Pix[(y*im.W+x)*im.C+ch] = v
}

// Clone returns a deep copy of the image
func (im Image) Clone() Image {
	out := Image{W: im.W, H: im.H, C: im.C, Pix: make([]float32, len(im.Pix))}
	copy(out.Pix, im.Pix)
	return out
}

// FromImage converts a decoded image to the float32 representation, dropping
// any alpha channel.
func FromImage(src image.Image) Image {
	bounds := src.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	out := NewImage(w, h, Channels)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, b, _ := src.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			// RGBA returns 16-bit channels
			out.Set(x, y, 0, float32(r>>8))
			out.Set(x, y, 1, float32(g>>8))
			out.Set(x, y, 2, float32(b>>8))
		}
	}
	return out
}
