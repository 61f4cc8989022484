package augment

import (
	"math"
	"math/rand"

	"github.com/signetml/signet/signet-go/imageset"
)

// Normalize maps pixel intensities from [0, 255] to [-1, 1], the input range
// the feature extractor was trained with. The input image is not mutated.
func Normalize(im imageset.Image) imageset.Image {
	out := im.Clone()
	for i, v := range out.Pix {
		out.Pix[i] = v/127.5 - 1
	}
	return out
}

// Options control the randomized training-time distortions
type Options struct {
	// FlipHorizontal mirrors the image left-right with probability 0.5
	FlipHorizontal bool
	// Rotation is the maximum rotation angle as a fraction of a full turn;
	// each application draws uniformly from [-Rotation, +Rotation] turns
	Rotation float64
}

// DefaultOptions match the distortions used when the classifier head was
// originally trained: horizontal flips and rotations up to 0.2 turns.
var DefaultOptions = Options{
	FlipHorizontal: true,
	Rotation:       0.2,
}

// Augmenter applies randomized distortions to training images. It is seeded
// for reproducibility and never mutates its inputs. Augmenters are applied
// to training batches only; evaluation and harvesting see undistorted
// images. An Augmenter is not safe for concurrent use.
type Augmenter struct {
	opts Options
	rng  *rand.Rand
}

// New creates a seeded Augmenter
func New(opts Options, seed int64) *Augmenter {
	return &Augmenter{
		opts: opts,
		rng:  rand.New(rand.NewSource(seed)),
	}
}

// Apply returns a randomly distorted copy of the image
func (a *Augmenter) Apply(im imageset.Image) imageset.Image {
	out := im.Clone()
	if a.opts.FlipHorizontal && a.rng.Float64() < 0.5 {
		out = FlipHorizontal(out)
	}
	if a.opts.Rotation > 0 {
		turns := a.opts.Rotation * (2*a.rng.Float64() - 1)
		out = Rotate(out, turns*2*math.Pi)
	}
	return out
}

// FlipHorizontal returns a left-right mirrored copy of the image
func FlipHorizontal(im imageset.Image) imageset.Image {
	out := imageset.NewImage(im.W, im.H, im.C)
	for y := 0; y < im.H; y++ {
		for x := 0; x < im.W; x++ {
			for c := 0; c < im.C; c++ {
				out.Set(im.W-1-x, y, c, im.At(x, y, c))
			}
		}
	}
	return out
}

// Rotate returns a copy of the image rotated by angle radians about its
// center, sampling bilinearly with edge clamping.
func Rotate(im imageset.Image, angle float64) imageset.Image {
	out := imageset.NewImage(im.W, im.H, im.C)
	sin, cos := math.Sin(-angle), math.Cos(-angle)
	cx := float64(im.W-1) / 2
	cy := float64(im.H-1) / 2
	for y := 0; y < im.H; y++ {
		for x := 0; x < im.W; x++ {
			dx := float64(x) - cx
			dy := float64(y) - cy
			sx := cx + dx*cos - dy*sin
			sy := cy + dx*sin + dy*cos
			for c := 0; c < im.C; c++ {
				out.Set(x, y, c, bilinear(im, sx, sy, c))
			}
		}
	}
	return out
}

func bilinear(im imageset.Image, x, y float64, c int) float32 {
	x0 := int(math.Floor(x))
	y0 := int(math.Floor(y))
	fx := float32(x - float64(x0))
	fy := float32(y - float64(y0))

	v00 := im.At(clampInt(x0, im.W), clampInt(y0, im.H), c)
	v10 := im.At(clampInt(x0+1, im.W), clampInt(y0, im.H), c)
	v01 := im.At(clampInt(x0, im.W), clampInt(y0+1, im.H), c)
	v11 := im.At(clampInt(x0+1, im.W), clampInt(y0+1, im.H), c)

	top := v00 + (v10-v00)*fx
	bottom := v01 + (v11-v01)*fx
	return top + (bottom-top)*fy
}

func clampInt(v, n int) int {
	if v < 0 {
		return 0
	}
	if v >= n {
		return n - 1
	}
	return v
}
