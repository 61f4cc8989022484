package mobilenet

import (
	"github.com/signetml/signet/signet-go/imageset"
	"github.com/signetml/signet/signet-golib/errors"
	"github.com/signetml/signet/signet-golib/tensorflow"
)

const (
	// Name identifies the extractor in checkpoints
	Name = "mobilenet_v2"

	// DefaultInputOp is the placeholder op of a frozen MobileNetV2 graph
	DefaultInputOp = "input"
	// DefaultOutputOp is the global-average-pooled bottleneck, upstream of
	// the original classification logits
	DefaultOutputOp = "MobilenetV2/Logits/AvgPool"
	// FeatureDim is the width of the pooled bottleneck
	FeatureDim = 1280
)

// Options override the graph's op names and feature width, for frozen graphs
// exported with nonstandard naming.
type Options struct {
	InputOp  string
	OutputOp string
	Dim      int
}

func (o Options) withDefaults() Options {
	if o.InputOp == "" {
		o.InputOp = DefaultInputOp
	}
	if o.OutputOp == "" {
		o.OutputOp = DefaultOutputOp
	}
	if o.Dim == 0 {
		o.Dim = FeatureDim
	}
	return o
}

// Extractor computes image feature vectors with a frozen MobileNetV2 graph.
// The graph's weights are constants, so extraction never changes them.
// Inputs must already be normalized to [-1, 1].
type Extractor struct {
	model    *tensorflow.Model
	inputOp  string
	outputOp string
	dim      int
}

// NewExtractor wraps the frozen graph at path, which loads lazily on first
// use. A .gz suffix causes decompression while reading.
func NewExtractor(path string, opts Options) (*Extractor, error) {
	opts = opts.withDefaults()
	model, err := tensorflow.NewModel(path)
	if err != nil {
		return nil, errors.Wrapf(err, "error opening frozen graph %s", path)
	}
	return &Extractor{
		model:    model,
		inputOp:  opts.InputOp,
		outputOp: opts.OutputOp,
		dim:      opts.Dim,
	}, nil
}

// Dim is the length of the feature vectors Features returns
func (e *Extractor) Dim() int {
	return e.dim
}

// Validate forces a load and checks that the graph exposes the configured ops
func (e *Extractor) Validate() error {
	for _, op := range []string{e.inputOp, e.outputOp} {
		ok, err := e.model.OpExists(op)
		if err != nil {
			return err
		}
		if !ok {
			return errors.Errorf("frozen graph has no op %q", op)
		}
	}
	return nil
}

// Unload releases the graph and session; the next call reloads them
func (e *Extractor) Unload() {
	e.model.Unload()
}

// Features runs the batch through the frozen graph and returns one feature
// vector per image.
func (e *Extractor) Features(images []imageset.Image) ([][]float32, error) {
	if len(images) == 0 {
		return nil, errors.Errorf("empty batch")
	}
	batch, err := packBatch(images)
	if err != nil {
		return nil, err
	}

	res, err := e.model.Run(map[string]interface{}{e.inputOp: batch}, []string{e.outputOp})
	if err != nil {
		return nil, errors.Wrapf(err, "error running frozen graph")
	}
	return featureMatrix(res[e.outputOp], len(images), e.dim)
}

// packBatch lays the images out as an NHWC volume for the graph's input
// placeholder. All images must share one shape.
func packBatch(images []imageset.Image) ([][][][]float32, error) {
	shape := images[0].Shape()
	batch := make([][][][]float32, len(images))
	for i, im := range images {
		if im.Shape() != shape {
			return nil, errors.Errorf("image %d has shape %dx%dx%d, expected %dx%dx%d",
				i, im.W, im.H, im.C, shape.W, shape.H, shape.C)
		}
		rows := make([][][]float32, im.H)
		for y := 0; y < im.H; y++ {
			cols := make([][]float32, im.W)
			for x := 0; x < im.W; x++ {
				off := (y*im.W + x) * im.C
				cols[x] = im.Pix[off : off+im.C]
			}
			rows[y] = cols
		}
		batch[i] = rows
	}
	return batch, nil
}

// featureMatrix normalizes the graph's output to an n x dim matrix. Pooled
// graphs emit [n, 1, 1, dim]; graphs frozen with a squeeze emit [n, dim].
func featureMatrix(v interface{}, n, dim int) ([][]float32, error) {
	var feats [][]float32
	switch t := v.(type) {
	case [][]float32:
		feats = t
	case [][][][]float32:
		feats = make([][]float32, len(t))
		for i, rows := range t {
			if len(rows) != 1 {
				return nil, errors.Errorf("expected 1x1 spatial output, got %d rows", len(rows))
			}
			if len(rows[0]) != 1 {
				return nil, errors.Errorf("expected 1x1 spatial output, got %d cols", len(rows[0]))
			}
			feats[i] = rows[0][0]
		}
	default:
		return nil, errors.Errorf("unexpected graph output type %T", v)
	}

	if len(feats) != n {
		return nil, errors.Errorf("graph returned %d feature vectors for %d images", len(feats), n)
	}
	for i, f := range feats {
		if len(f) != dim {
			return nil, errors.Errorf("feature vector %d has %d dims, expected %d", i, len(f), dim)
		}
	}
	return feats, nil
}
