package model

import (
	"github.com/signetml/signet/signet-go/imageset"
	"github.com/signetml/signet/signet-golib/errors"
	"github.com/signetml/signet/signet-golib/serialization"
)

// Weights are a deep copy of a head's trainable parameters, row-major over
// classes.
type Weights struct {
	W [][]float32 `json:"w"`
	B []float32   `json:"b"`
}

// Checkpoint is the serialized form of a trained classifier: the head's
// parameters plus enough metadata to rebuild it around the same frozen base.
// The base itself is referenced by name, never serialized.
type Checkpoint struct {
	Classes      []string `json:"classes"`
	InputW       int      `json:"input_w"`
	InputH       int      `json:"input_h"`
	InputC       int      `json:"input_c"`
	FeatureDim   int      `json:"feature_dim"`
	Extractor    string   `json:"extractor"`
	DropRate     float64  `json:"drop_rate"`
	LearningRate float64  `json:"learning_rate"`
	Weights      Weights  `json:"weights"`
}

// SaveCheckpoint writes the classifier's trainable state to path; the
// extension picks the encoding, typically .json.gz.
func SaveCheckpoint(path string, c *Classifier, classes []string, extractor string) error {
	if len(classes) != c.head.Out {
		return errors.Errorf("%d class names for a %d-way head", len(classes), c.head.Out)
	}
	cp := Checkpoint{
		Classes:      classes,
		InputW:       c.shape.W,
		InputH:       c.shape.H,
		InputC:       c.shape.C,
		FeatureDim:   c.head.In,
		Extractor:    extractor,
		DropRate:     c.head.opts.DropRate,
		LearningRate: c.head.opts.LearningRate,
		Weights:      c.head.Weights(),
	}
	if err := serialization.Encode(path, cp); err != nil {
		return errors.Wrapf(err, "error writing checkpoint to %s", path)
	}
	return nil
}

// LoadCheckpoint rebuilds a classifier from a checkpoint and the frozen base
// it was trained with. Returns the classifier and the class names in output
// order.
func LoadCheckpoint(path string, base FeatureExtractor) (*Classifier, []string, error) {
	var cp Checkpoint
	if err := serialization.Decode(path, &cp); err != nil {
		return nil, nil, errors.Wrapf(err, "error reading checkpoint from %s", path)
	}
	if len(cp.Classes) == 0 {
		return nil, nil, errors.Errorf("checkpoint %s has no classes", path)
	}
	if base.Dim() != cp.FeatureDim {
		return nil, nil, errors.Errorf("checkpoint %s was trained on %d-dim features, extractor emits %d", path, cp.FeatureDim, base.Dim())
	}

	head := NewHead(cp.FeatureDim, len(cp.Classes), HeadOptions{
		LearningRate: cp.LearningRate,
		DropRate:     cp.DropRate,
	}, 0)
	if err := head.SetWeights(cp.Weights); err != nil {
		return nil, nil, errors.Wrapf(err, "error restoring weights from %s", path)
	}

	clf, err := NewClassifier(base, head, imageset.Shape{W: cp.InputW, H: cp.InputH, C: cp.InputC})
	if err != nil {
		return nil, nil, errors.Wrapf(err, "error rebuilding classifier from %s", path)
	}
	return clf, cp.Classes, nil
}
