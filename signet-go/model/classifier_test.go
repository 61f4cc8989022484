package model

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/signetml/signet/signet-go/asl"
	"github.com/signetml/signet/signet-go/imageset"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pixelExtractor treats the (normalized) pixel buffer itself as the feature
// vector, which makes the classifier's preprocessing observable.
type pixelExtractor struct {
	dim  int
	last [][]float32
}

func (p *pixelExtractor) Dim() int { return p.dim }

func (p *pixelExtractor) Features(images []imageset.Image) ([][]float32, error) {
	out := make([][]float32, len(images))
	for i, im := range images {
		f := make([]float32, p.dim)
		copy(f, im.Pix)
		out[i] = f
	}
	p.last = out
	return out, nil
}

type failingExtractor struct{ dim int }

func (f failingExtractor) Dim() int { return f.dim }

func (f failingExtractor) Features([]imageset.Image) ([][]float32, error) {
	return nil, fmt.Errorf("backend unavailable")
}

func constImage(shape imageset.Shape, v float32) imageset.Image {
	im := imageset.NewImage(shape.W, shape.H, shape.C)
	for i := range im.Pix {
		im.Pix[i] = v
	}
	return im
}

func randImage(rng *rand.Rand, shape imageset.Shape) imageset.Image {
	im := imageset.NewImage(shape.W, shape.H, shape.C)
	for i := range im.Pix {
		im.Pix[i] = float32(rng.Intn(256))
	}
	return im
}

func TestNewClassifierDimMismatch(t *testing.T) {
	ext := &pixelExtractor{dim: 8}
	head := NewHead(4, 3, DefaultHeadOptions, 1)
	_, err := NewClassifier(ext, head, imageset.Shape{W: 2, H: 2, C: 2})
	require.Error(t, err)
}

func TestPredictNormalizesInput(t *testing.T) {
	shape := imageset.Shape{W: 2, H: 2, C: 3}
	ext := &pixelExtractor{dim: 12}
	head := NewHead(12, 4, DefaultHeadOptions, 1)
	clf, err := NewClassifier(ext, head, shape)
	require.NoError(t, err)

	_, err = clf.Predict([]imageset.Image{constImage(shape, 255), constImage(shape, 0)})
	require.NoError(t, err)

	require.Len(t, ext.last, 2)
	for _, v := range ext.last[0] {
		assert.InDelta(t, 1.0, float64(v), 1e-5)
	}
	for _, v := range ext.last[1] {
		assert.InDelta(t, -1.0, float64(v), 1e-5)
	}
}

func TestPredictShapeMismatch(t *testing.T) {
	ext := &pixelExtractor{dim: 48}
	head := NewHead(48, 4, DefaultHeadOptions, 1)
	clf, err := NewClassifier(ext, head, imageset.Shape{W: 4, H: 4, C: 3})
	require.NoError(t, err)

	_, err = clf.Predict([]imageset.Image{imageset.NewImage(2, 2, 3)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "shape")

	_, err = clf.Predict(nil)
	require.Error(t, err)
}

func TestPredictExtractorError(t *testing.T) {
	shape := imageset.Shape{W: 2, H: 2, C: 3}
	head := NewHead(12, 4, DefaultHeadOptions, 1)
	clf, err := NewClassifier(failingExtractor{dim: 12}, head, shape)
	require.NoError(t, err)

	_, err = clf.Predict([]imageset.Image{constImage(shape, 128)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend unavailable")
}

func TestTrainStepRejectsBadSamples(t *testing.T) {
	shape := imageset.Shape{W: 2, H: 2, C: 3}
	ext := &pixelExtractor{dim: 12}
	head := NewHead(12, 4, DefaultHeadOptions, 1)
	clf, err := NewClassifier(ext, head, shape)
	require.NoError(t, err)

	_, _, err = clf.TrainStep(nil)
	require.Error(t, err)

	good := imageset.WeightedSample{
		Sample: imageset.Sample{Image: constImage(shape, 100), Label: 0, Path: "a.png"},
		Weight: 1,
	}

	bad := good
	bad.Label = asl.Class(4)
	_, _, err = clf.TrainStep([]imageset.WeightedSample{bad})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "label")

	bad = good
	bad.Weight = 0
	_, _, err = clf.TrainStep([]imageset.WeightedSample{bad})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "weight")
}

func TestEvaluate(t *testing.T) {
	// identity-scaled weights turn the head into arg-max over the three
	// pixel channels, so predictions are fully controlled by the images
	ext := &pixelExtractor{dim: 3}
	head := NewHead(3, 3, HeadOptions{}, 1)
	require.NoError(t, head.SetWeights(Weights{
		W: [][]float32{{10, 0, 0}, {0, 10, 0}, {0, 0, 10}},
		B: []float32{0, 0, 0},
	}))

	shape := imageset.Shape{W: 1, H: 1, C: 3}
	clf, err := NewClassifier(ext, head, shape)
	require.NoError(t, err)

	mk := func(hot int, label asl.Class) imageset.Sample {
		im := imageset.NewImage(1, 1, 3)
		im.Pix[hot] = 255
		return imageset.Sample{Image: im, Label: label}
	}
	samples := []imageset.Sample{
		mk(0, 0),
		mk(1, 1),
		mk(0, 2), // mispredicted
		mk(0, 0),
	}

	m, err := clf.Evaluate(samples, 3)
	require.NoError(t, err)
	assert.Equal(t, 4, m.Count)
	assert.InDelta(t, 0.75, m.Accuracy, 1e-9)
	assert.Greater(t, m.Loss, 1.0)

	_, err = clf.Evaluate(nil, 3)
	require.Error(t, err)
	_, err = clf.Evaluate(samples, 0)
	require.Error(t, err)

	bad := append([]imageset.Sample(nil), samples...)
	bad[1].Label = 7
	_, err = clf.Evaluate(bad, 3)
	require.Error(t, err)
}

func TestPredictDeterministicUnderDropout(t *testing.T) {
	shape := imageset.Shape{W: 2, H: 2, C: 3}
	ext := &pixelExtractor{dim: 12}
	head := NewHead(12, 4, HeadOptions{LearningRate: 0.01, DropRate: 0.5}, 9)
	clf, err := NewClassifier(ext, head, shape)
	require.NoError(t, err)

	rng := rand.New(rand.NewSource(10))
	var batch []imageset.WeightedSample
	var samples []imageset.Sample
	for i := 0; i < 8; i++ {
		s := imageset.Sample{Image: randImage(rng, shape), Label: asl.Class(i % 4)}
		samples = append(samples, s)
		batch = append(batch, imageset.WeightedSample{Sample: s, Weight: 1})
	}

	// dropout is live during training steps
	for i := 0; i < 3; i++ {
		_, _, err := clf.TrainStep(batch)
		require.NoError(t, err)
	}

	// but inference and evaluation must be repeatable
	p1, err := clf.Predict([]imageset.Image{samples[0].Image})
	require.NoError(t, err)
	p2, err := clf.Predict([]imageset.Image{samples[0].Image})
	require.NoError(t, err)
	assert.Equal(t, p1, p2)

	m1, err := clf.Evaluate(samples, 4)
	require.NoError(t, err)
	m2, err := clf.Evaluate(samples, 4)
	require.NoError(t, err)
	assert.Equal(t, m1, m2)
}
