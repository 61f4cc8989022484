package model

import (
	"math"

	"github.com/signetml/signet/signet-go/augment"
	"github.com/signetml/signet/signet-go/imageset"
	"github.com/signetml/signet/signet-golib/errors"
)

// FeatureExtractor is the frozen stage of the classifier: it maps a batch of
// images to fixed-length feature vectors and is never updated by training.
// Images arrive normalized to [-1, 1].
type FeatureExtractor interface {
	// Dim is the length of the feature vectors Features returns
	Dim() int
	// Features computes one feature vector per image in the batch
	Features(images []imageset.Image) ([][]float32, error)
}

// Metrics are evaluation results averaged over a set of samples
type Metrics struct {
	Loss     float64
	Accuracy float64
	Count    int
}

// Classifier composes a frozen feature extractor with a trainable softmax
// head. The head holds the only parameters training mutates; the two stages
// are independently swappable. Raw [0, 255] images are normalized internally,
// so every entry point sees the same preprocessing.
type Classifier struct {
	base  FeatureExtractor
	head  *Head
	shape imageset.Shape
}

// NewClassifier wires a frozen base to a trainable head expecting images of
// the given input shape.
func NewClassifier(base FeatureExtractor, head *Head, input imageset.Shape) (*Classifier, error) {
	if base.Dim() != head.In {
		return nil, errors.Errorf("feature extractor emits %d-dim vectors but head expects %d", base.Dim(), head.In)
	}
	if input.W <= 0 || input.H <= 0 || input.C <= 0 {
		return nil, errors.Errorf("invalid input shape %dx%dx%d", input.W, input.H, input.C)
	}
	return &Classifier{base: base, head: head, shape: input}, nil
}

// Head returns the trainable head
func (c *Classifier) Head() *Head {
	return c.head
}

// InputShape returns the image dimensions the classifier expects
func (c *Classifier) InputShape() imageset.Shape {
	return c.shape
}

// NumClasses returns the size of the output distribution
func (c *Classifier) NumClasses() int {
	return c.head.Out
}

// Predict returns the classifier's probability distribution over classes for
// each image in the batch. Inference is deterministic: dropout is inactive.
func (c *Classifier) Predict(images []imageset.Image) ([][]float32, error) {
	feats, err := c.features(images)
	if err != nil {
		return nil, err
	}
	return c.head.Forward(feats)
}

// TrainStep applies one gradient update for the weighted batch. It returns
// the weighted cross-entropy loss and the number of correct arg-max
// predictions, both computed before the update. A malformed batch (shape
// mismatch, unknown label, non-positive weight) is fatal: no update is
// applied and the error surfaces immediately.
func (c *Classifier) TrainStep(batch []imageset.WeightedSample) (float64, int, error) {
	if len(batch) == 0 {
		return 0, 0, errors.Errorf("empty training batch")
	}

	images := make([]imageset.Image, len(batch))
	labels := make([]int, len(batch))
	weights := make([]float64, len(batch))
	for i, ws := range batch {
		if int(ws.Label) < 0 || int(ws.Label) >= c.head.Out {
			return 0, 0, errors.Errorf("sample %s has label %d outside [0, %d)", ws.Path, ws.Label, c.head.Out)
		}
		if ws.Weight <= 0 {
			return 0, 0, errors.Errorf("sample %s has non-positive weight %f", ws.Path, ws.Weight)
		}
		images[i] = ws.Image
		labels[i] = int(ws.Label)
		weights[i] = ws.Weight
	}

	feats, err := c.features(images)
	if err != nil {
		return 0, 0, err
	}
	return c.head.TrainStep(feats, labels, weights)
}

// Evaluate computes mean unweighted cross-entropy loss and arg-max accuracy
// over the samples, in batches of batchSize. Dropout is inactive.
func (c *Classifier) Evaluate(samples []imageset.Sample, batchSize int) (Metrics, error) {
	if len(samples) == 0 {
		return Metrics{}, errors.Errorf("no samples to evaluate")
	}
	if batchSize <= 0 {
		return Metrics{}, errors.Errorf("batch size must be positive, got %d", batchSize)
	}

	var lossSum float64
	var correct int
	for lo := 0; lo < len(samples); lo += batchSize {
		hi := lo + batchSize
		if hi > len(samples) {
			hi = len(samples)
		}

		images := make([]imageset.Image, 0, hi-lo)
		for _, s := range samples[lo:hi] {
			if int(s.Label) < 0 || int(s.Label) >= c.head.Out {
				return Metrics{}, errors.Errorf("sample %s has label %d outside [0, %d)", s.Path, s.Label, c.head.Out)
			}
			images = append(images, s.Image)
		}

		probs, err := c.Predict(images)
		if err != nil {
			return Metrics{}, err
		}
		for i, p := range probs {
			label := int(samples[lo+i].Label)
			lossSum += crossEntropy(p, label)
			if argmax(p) == label {
				correct++
			}
		}
	}

	n := len(samples)
	return Metrics{
		Loss:     lossSum / float64(n),
		Accuracy: float64(correct) / float64(n),
		Count:    n,
	}, nil
}

// features validates the batch, normalizes it, and runs the frozen base
func (c *Classifier) features(images []imageset.Image) ([][]float32, error) {
	if len(images) == 0 {
		return nil, errors.Errorf("empty batch")
	}
	for i, im := range images {
		if im.Shape() != c.shape {
			return nil, errors.Errorf("image %d has shape %dx%dx%d, expected %dx%dx%d",
				i, im.W, im.H, im.C, c.shape.W, c.shape.H, c.shape.C)
		}
	}

	normalized := make([]imageset.Image, len(images))
	for i, im := range images {
		normalized[i] = augment.Normalize(im)
	}

	feats, err := c.base.Features(normalized)
	if err != nil {
		return nil, errors.Wrapf(err, "error extracting features")
	}
	if len(feats) != len(images) {
		return nil, errors.Errorf("extractor returned %d feature vectors for %d images", len(feats), len(images))
	}
	return feats, nil
}

func argmax(p []float32) int {
	best := 0
	for i, v := range p {
		if v > p[best] {
			best = i
		}
	}
	return best
}

func crossEntropy(p []float32, label int) float64 {
	v := float64(p[label])
	if v < 1e-12 {
		v = 1e-12
	}
	return -math.Log(v)
}
