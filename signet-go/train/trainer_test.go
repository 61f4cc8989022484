package train

import (
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"github.com/signetml/signet/signet-go/asl"
	"github.com/signetml/signet/signet-go/harvest"
	"github.com/signetml/signet/signet-go/imageset"
	"github.com/signetml/signet/signet-go/model"
	"github.com/signetml/signet/signet-go/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// pixelExtractor stands in for the frozen base: features are the image's own
// (normalized) pixels.
type pixelExtractor struct{ dim int }

func (p pixelExtractor) Dim() int { return p.dim }

func (p pixelExtractor) Features(images []imageset.Image) ([][]float32, error) {
	out := make([][]float32, len(images))
	for i, im := range images {
		f := make([]float32, p.dim)
		copy(f, im.Pix)
		out[i] = f
	}
	return out, nil
}

var testShape = imageset.Shape{W: 2, H: 2, C: 3}

func newTestClassifier(t *testing.T, classes int, lr float64) *model.Classifier {
	head := model.NewHead(12, classes, model.HeadOptions{LearningRate: lr}, 1)
	clf, err := model.NewClassifier(pixelExtractor{dim: 12}, head, testShape)
	require.NoError(t, err)
	return clf
}

// twoClassData builds a trivially separable set: class 0 images are dark,
// class 1 images are bright.
func twoClassData(rng *rand.Rand, n int) []imageset.Sample {
	samples := make([]imageset.Sample, n)
	for i := range samples {
		label := i % 2
		im := imageset.NewImage(testShape.W, testShape.H, testShape.C)
		base := float32(20)
		if label == 1 {
			base = 235
		}
		for j := range im.Pix {
			im.Pix[j] = base + float32(rng.NormFloat64()*5)
		}
		samples[i] = imageset.Sample{
			Image: im,
			Label: asl.Class(label),
			Path:  fmt.Sprintf("s-%03d.png", i),
		}
	}
	return samples
}

func TestFitConverges(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	training := twoClassData(rng, 16)
	validation := twoClassData(rng, 8)

	clf := newTestClassifier(t, 2, 0.05)
	trainer := New(clf, Config{MaxEpochs: 12, BatchSize: 4, Seed: 1})

	history, err := trainer.Fit(training, validation)
	require.NoError(t, err)
	require.NotEmpty(t, history.Epochs)

	best, ok := history.Best()
	require.True(t, ok)
	assert.Equal(t, 1.0, best.ValAcc)

	// the head must hold the best epoch's weights on return
	m, err := clf.Evaluate(validation, 4)
	require.NoError(t, err)
	assert.Equal(t, best.ValLoss, m.Loss)
	assert.Equal(t, 1.0, m.Accuracy)

	first := history.Epochs[0]
	last := history.Epochs[len(history.Epochs)-1]
	assert.Less(t, last.TrainLoss, first.TrainLoss)
}

func TestFitStopsOnStalledValidation(t *testing.T) {
	rng := rand.New(rand.NewSource(2))
	training := twoClassData(rng, 8)
	validation := twoClassData(rng, 4)

	// zero learning rate freezes the head, so validation loss never moves
	// after the first epoch's observation
	clf := newTestClassifier(t, 2, 0)
	trainer := New(clf, Config{MaxEpochs: 30, Patience: 3, BatchSize: 4, Seed: 2})

	history, err := trainer.Fit(training, validation)
	require.NoError(t, err)
	assert.Len(t, history.Epochs, 4) // best at epoch 1, three stalls

	for _, e := range history.Epochs[1:] {
		assert.Equal(t, history.Epochs[0].ValLoss, e.ValLoss)
	}
}

func TestFitStopsOnEpochBudget(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	training := twoClassData(rng, 8)
	validation := twoClassData(rng, 4)

	clf := newTestClassifier(t, 2, 0)
	trainer := New(clf, Config{MaxEpochs: 3, Patience: 10, BatchSize: 4, Seed: 3})

	history, err := trainer.Fit(training, validation)
	require.NoError(t, err)
	assert.Len(t, history.Epochs, 3)
}

func TestFitShortFinalBatch(t *testing.T) {
	rng := rand.New(rand.NewSource(4))
	training := twoClassData(rng, 5)
	validation := twoClassData(rng, 3)

	clf := newTestClassifier(t, 2, 0.01)
	trainer := New(clf, Config{MaxEpochs: 1, BatchSize: 4, Seed: 4})

	history, err := trainer.Fit(training, validation)
	require.NoError(t, err)
	require.Len(t, history.Epochs, 1)
	assert.True(t, history.Epochs[0].TrainAcc >= 0 && history.Epochs[0].TrainAcc <= 1)
}

func TestFitWithAugmentation(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	training := twoClassData(rng, 8)
	validation := twoClassData(rng, 4)

	clf := newTestClassifier(t, 2, 0.01)
	trainer := New(clf, Config{MaxEpochs: 2, BatchSize: 4, Seed: 5, Augment: true})

	history, err := trainer.Fit(training, validation)
	require.NoError(t, err)
	assert.Len(t, history.Epochs, 2)
}

func TestFitEmptyPartitions(t *testing.T) {
	rng := rand.New(rand.NewSource(6))
	data := twoClassData(rng, 4)

	clf := newTestClassifier(t, 2, 0.01)
	trainer := New(clf, Config{})

	_, err := trainer.Fit(nil, data)
	require.Error(t, err)
	_, err = trainer.Fit(data, nil)
	require.Error(t, err)
}

type countingSource struct {
	batch []imageset.WeightedSample
	calls int
}

func (c *countingSource) Next() []imageset.WeightedSample {
	c.calls++
	return c.batch
}

func TestFineTuneConsumesExactBudget(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	samples := twoClassData(rng, 4)
	validation := twoClassData(rng, 4)

	batch := make([]imageset.WeightedSample, len(samples))
	for i, s := range samples {
		batch[i] = imageset.WeightedSample{Sample: s, Weight: 1}
	}
	source := &countingSource{batch: batch}

	clf := newTestClassifier(t, 2, 0.01)
	trainer := New(clf, Config{FineTuneEpochs: 3, BatchSize: 4, Seed: 7})

	history, err := trainer.FineTune(source, 7, validation)
	require.NoError(t, err)
	assert.Equal(t, 21, source.calls)
	require.Len(t, history.Epochs, 3)
	for i, e := range history.Epochs {
		assert.Equal(t, i+1, e.Epoch)
	}
}

func TestFineTuneValidatesArguments(t *testing.T) {
	rng := rand.New(rand.NewSource(8))
	validation := twoClassData(rng, 4)

	clf := newTestClassifier(t, 2, 0.01)
	trainer := New(clf, Config{})

	_, err := trainer.FineTune(&countingSource{}, 0, validation)
	require.Error(t, err)
	_, err = trainer.FineTune(&countingSource{}, 2, nil)
	require.Error(t, err)
}

func TestFineTunePropagatesStepErrors(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	validation := twoClassData(rng, 4)

	bad := twoClassData(rng, 4)
	batch := make([]imageset.WeightedSample, len(bad))
	for i, s := range bad {
		batch[i] = imageset.WeightedSample{Sample: s, Weight: 1}
	}
	batch[2].Label = 17 // outside the two-class head

	clf := newTestClassifier(t, 2, 0.01)
	trainer := New(clf, Config{FineTuneEpochs: 2, BatchSize: 4, Seed: 9})

	_, err := trainer.FineTune(&countingSource{batch: batch}, 3, validation)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "label")
}

func TestStepsPerEpoch(t *testing.T) {
	assert.Equal(t, 12, StepsPerEpoch(360, 32))
	assert.Equal(t, 1, StepsPerEpoch(5, 5))
	assert.Equal(t, 2, StepsPerEpoch(6, 5))
	assert.Equal(t, 0, StepsPerEpoch(0, 4))
	assert.Equal(t, 0, StepsPerEpoch(10, 0))
}

// The full pipeline over a small corpus: one initial pass, harvest the
// misclassified validation samples, rebuild the weighted stream, and check
// the union and weight laws before fine-tuning resumes.
func TestPipelineStreamCount(t *testing.T) {
	rng := rand.New(rand.NewSource(10))

	classImage := func(c int) imageset.Image {
		im := imageset.NewImage(testShape.W, testShape.H, testShape.C)
		for j := range im.Pix {
			im.Pix[j] = float32(c*7) + float32(rng.NormFloat64()*3)
		}
		return im
	}

	var training, validation []imageset.Sample
	for c := 0; c < asl.NumClasses; c++ {
		for i := 0; i < 10; i++ {
			training = append(training, imageset.Sample{
				Image: classImage(c),
				Label: asl.Class(c),
				Path:  fmt.Sprintf("train-%02d-%02d.png", c, i),
			})
		}
		for i := 0; i < 2; i++ {
			validation = append(validation, imageset.Sample{
				Image: classImage(c),
				Label: asl.Class(c),
				Path:  fmt.Sprintf("val-%02d-%02d.png", c, i),
			})
		}
	}
	require.Len(t, training, 360)
	require.Len(t, validation, 72)

	head := model.NewHead(12, asl.NumClasses, model.HeadOptions{LearningRate: 0.01}, 10)
	clf, err := model.NewClassifier(pixelExtractor{dim: 12}, head, testShape)
	require.NoError(t, err)

	trainer := New(clf, Config{MaxEpochs: 1, FineTuneEpochs: 2, BatchSize: 4, Seed: 10})
	fitHistory, err := trainer.Fit(training, validation)
	require.NoError(t, err)
	require.Len(t, fitHistory.Epochs, 1)

	hard, err := harvest.Harvest(clf, validation, 4)
	require.NoError(t, err)

	s, err := stream.Build(training, harvest.Samples(hard), stream.Config{BatchSize: 4, Seed: 11})
	require.NoError(t, err)
	assert.Equal(t, 360+len(hard), s.SourceCount())

	for _, ws := range s.Source() {
		if strings.HasPrefix(ws.Path, "train-") {
			assert.Equal(t, 1.0, ws.Weight)
		} else {
			assert.Equal(t, 2.0, ws.Weight)
		}
	}

	ftHistory, err := trainer.FineTune(s, StepsPerEpoch(len(training), 4), validation)
	require.NoError(t, err)
	require.Len(t, ftHistory.Epochs, 2)

	merged := fitHistory.Extend(ftHistory)
	require.Len(t, merged.Epochs, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{merged.Epochs[0].Epoch, merged.Epochs[1].Epoch, merged.Epochs[2].Epoch})
}
