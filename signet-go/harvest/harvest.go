package harvest

import (
	"github.com/sbwhitecap/tqdm"
	"github.com/sbwhitecap/tqdm/iterators"
	"github.com/signetml/signet/signet-go/asl"
	"github.com/signetml/signet/signet-go/imageset"
	"github.com/signetml/signet/signet-golib/errors"
)

// Predictor is the slice of the classifier the harvester needs. Predictions
// must be deterministic: any stochastic inference behavior (dropout) has to
// be disabled, or repeated harvests of the same model disagree.
type Predictor interface {
	Predict(images []imageset.Image) ([][]float32, error)
}

// Example is a validation sample the classifier got wrong, together with the
// wrong prediction. The sample keeps its ground truth label; the prediction
// is diagnostic metadata and is dropped when the example re-enters training.
type Example struct {
	imageset.Sample
	Predicted asl.Class
}

// Harvest scans the validation partition through the classifier in batches
// and collects every sample whose arg-max prediction disagrees with its
// label. Traversal is in partition order, so the result is reproducible for
// a frozen classifier. An empty partition yields an empty set, not an error.
func Harvest(p Predictor, validation []imageset.Sample, batchSize int) ([]Example, error) {
	if batchSize <= 0 {
		return nil, errors.Errorf("batch size must be positive, got %d", batchSize)
	}
	if len(validation) == 0 {
		return nil, nil
	}

	numBatches := (len(validation) + batchSize - 1) / batchSize

	var hard []Example
	var scanErr error
	err := tqdm.With(iterators.Interval(0, numBatches), "scanning validation", func(c interface{}) (brk bool) {
		lo := c.(int) * batchSize
		hi := lo + batchSize
		if hi > len(validation) {
			hi = len(validation)
		}

		images := make([]imageset.Image, 0, hi-lo)
		for _, s := range validation[lo:hi] {
			images = append(images, s.Image)
		}

		probs, err := p.Predict(images)
		if err != nil {
			scanErr = errors.Wrapf(err, "error predicting validation batch at offset %d", lo)
			return true
		}
		if len(probs) != len(images) {
			scanErr = errors.Errorf("classifier returned %d predictions for %d images", len(probs), len(images))
			return true
		}

		for i, dist := range probs {
			s := validation[lo+i]
			predicted := asl.Class(argmax(dist))
			if predicted != s.Label {
				hard = append(hard, Example{Sample: s, Predicted: predicted})
			}
		}
		return false
	})
	if err != nil {
		return nil, errors.Wrapf(err, "error scanning validation partition")
	}
	if scanErr != nil {
		return nil, scanErr
	}
	return hard, nil
}

// Samples strips the predictions, returning just the harvested samples with
// their ground truth labels for retraining.
func Samples(hard []Example) []imageset.Sample {
	samples := make([]imageset.Sample, len(hard))
	for i, e := range hard {
		samples[i] = e.Sample
	}
	return samples
}

// ByClass counts harvested examples by their true class
func ByClass(hard []Example) map[asl.Class]int {
	counts := make(map[asl.Class]int)
	for _, e := range hard {
		counts[e.Label]++
	}
	return counts
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
