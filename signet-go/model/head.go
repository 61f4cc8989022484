package model

import (
	"math"
	"math/rand"

	"github.com/signetml/signet/signet-golib/errors"
)

// HeadOptions configure the trainable head
type HeadOptions struct {
	// LearningRate is the Adam step size
	LearningRate float64
	// DropRate is the fraction of feature components dropped during training
	DropRate float64
}

// DefaultHeadOptions match the fine-tuning recipe the pipeline was tuned with
var DefaultHeadOptions = HeadOptions{
	LearningRate: 1e-4,
	DropRate:     0.2,
}

const (
	adamBeta1   = 0.9
	adamBeta2   = 0.999
	adamEpsilon = 1e-7
)

// Head is the trainable part of the classifier: inverted dropout on the
// feature vector followed by a dense softmax layer, optimized with Adam on a
// weighted cross-entropy loss. All state lives here, so snapshotting the head
// snapshots everything training can change.
type Head struct {
	In  int
	Out int

	opts HeadOptions

	w [][]float32
	b []float32

	step   int
	mw, vw [][]float64
	mb, vb []float64

	rng *rand.Rand
}

// NewHead creates a dense softmax head mapping in-dim features to out
// classes. Weights start Glorot-uniform, biases at zero; the seed fixes both
// the init and the dropout masks.
func NewHead(in, out int, opts HeadOptions, seed int64) *Head {
	rng := rand.New(rand.NewSource(seed))

	limit := math.Sqrt(6 / float64(in+out))
	w := make([][]float32, out)
	mw := make([][]float64, out)
	vw := make([][]float64, out)
	for k := range w {
		w[k] = make([]float32, in)
		mw[k] = make([]float64, in)
		vw[k] = make([]float64, in)
		for j := range w[k] {
			w[k][j] = float32((rng.Float64()*2 - 1) * limit)
		}
	}

	return &Head{
		In:   in,
		Out:  out,
		opts: opts,
		w:    w,
		b:    make([]float32, out),
		mw:   mw,
		vw:   vw,
		mb:   make([]float64, out),
		vb:   make([]float64, out),
		rng:  rng,
	}
}

// Forward computes the softmax distribution for each feature vector with
// dropout inactive.
func (h *Head) Forward(feats [][]float32) ([][]float32, error) {
	probs := make([][]float32, len(feats))
	for i, f := range feats {
		if len(f) != h.In {
			return nil, errors.Errorf("feature vector %d has %d dims, expected %d", i, len(f), h.In)
		}
		probs[i] = h.softmax(h.logits(f))
	}
	return probs, nil
}

// TrainStep runs one forward/backward pass over the batch and applies a
// single Adam update. The loss is the weight-scaled mean cross-entropy
// sum(w_i * ce_i) / n; each sample's gradient is scaled by its weight, so
// heavier samples pull the parameters harder. Returns the loss and the
// number of correct arg-max predictions before the update.
func (h *Head) TrainStep(feats [][]float32, labels []int, weights []float64) (float64, int, error) {
	n := len(feats)
	if n == 0 {
		return 0, 0, errors.Errorf("empty training batch")
	}
	if len(labels) != n || len(weights) != n {
		return 0, 0, errors.Errorf("batch size mismatch: %d features, %d labels, %d weights", n, len(labels), len(weights))
	}

	gw := make([][]float64, h.Out)
	for k := range gw {
		gw[k] = make([]float64, h.In)
	}
	gb := make([]float64, h.Out)

	var loss float64
	var correct int
	for i, f := range feats {
		if len(f) != h.In {
			return 0, 0, errors.Errorf("feature vector %d has %d dims, expected %d", i, len(f), h.In)
		}
		label := labels[i]
		if label < 0 || label >= h.Out {
			return 0, 0, errors.Errorf("label %d outside [0, %d)", label, h.Out)
		}

		x := h.dropout(f)
		probs := h.softmax(h.logits(x))

		loss += weights[i] * crossEntropy(probs, label)
		if argmax(probs) == label {
			correct++
		}

		// d(loss_i)/d(logit_k) = w_i * (p_k - onehot_k) / n
		scale := weights[i] / float64(n)
		for k := 0; k < h.Out; k++ {
			dz := float64(probs[k]) * scale
			if k == label {
				dz -= scale
			}
			gb[k] += dz
			for j, xj := range x {
				gw[k][j] += dz * float64(xj)
			}
		}
	}
	loss /= float64(n)

	h.adamUpdate(gw, gb)
	return loss, correct, nil
}

// Weights returns a deep copy of the trainable parameters
func (h *Head) Weights() Weights {
	w := make([][]float32, h.Out)
	for k := range w {
		w[k] = append([]float32(nil), h.w[k]...)
	}
	return Weights{
		W: w,
		B: append([]float32(nil), h.b...),
	}
}

// SetWeights restores previously captured parameters. Optimizer moments are
// left untouched.
func (h *Head) SetWeights(w Weights) error {
	if len(w.W) != h.Out || len(w.B) != h.Out {
		return errors.Errorf("weights are for %d classes, head has %d", len(w.W), h.Out)
	}
	for k := range w.W {
		if len(w.W[k]) != h.In {
			return errors.Errorf("weight row %d has %d dims, head expects %d", k, len(w.W[k]), h.In)
		}
	}
	for k := range w.W {
		copy(h.w[k], w.W[k])
	}
	copy(h.b, w.B)
	return nil
}

func (h *Head) logits(x []float32) []float64 {
	z := make([]float64, h.Out)
	for k := 0; k < h.Out; k++ {
		sum := float64(h.b[k])
		row := h.w[k]
		for j, xj := range x {
			sum += float64(row[j]) * float64(xj)
		}
		z[k] = sum
	}
	return z
}

func (h *Head) softmax(z []float64) []float32 {
	max := z[0]
	for _, v := range z[1:] {
		if v > max {
			max = v
		}
	}
	var sum float64
	exps := make([]float64, len(z))
	for k, v := range z {
		exps[k] = math.Exp(v - max)
		sum += exps[k]
	}
	probs := make([]float32, len(z))
	for k := range exps {
		probs[k] = float32(exps[k] / sum)
	}
	return probs
}

// dropout applies an inverted dropout mask: dropped components go to zero,
// survivors are scaled by 1/(1-rate) so the expected activation is unchanged
// and inference needs no rescaling.
func (h *Head) dropout(f []float32) []float32 {
	rate := h.opts.DropRate
	if rate <= 0 {
		return f
	}
	keep := float32(1 / (1 - rate))
	x := make([]float32, len(f))
	for j, v := range f {
		if h.rng.Float64() >= rate {
			x[j] = v * keep
		}
	}
	return x
}

func (h *Head) adamUpdate(gw [][]float64, gb []float64) {
	h.step++
	c1 := 1 - math.Pow(adamBeta1, float64(h.step))
	c2 := 1 - math.Pow(adamBeta2, float64(h.step))
	lr := h.opts.LearningRate

	for k := 0; k < h.Out; k++ {
		for j := 0; j < h.In; j++ {
			g := gw[k][j]
			h.mw[k][j] = adamBeta1*h.mw[k][j] + (1-adamBeta1)*g
			h.vw[k][j] = adamBeta2*h.vw[k][j] + (1-adamBeta2)*g*g
			mHat := h.mw[k][j] / c1
			vHat := h.vw[k][j] / c2
			h.w[k][j] -= float32(lr * mHat / (math.Sqrt(vHat) + adamEpsilon))
		}

		g := gb[k]
		h.mb[k] = adamBeta1*h.mb[k] + (1-adamBeta1)*g
		h.vb[k] = adamBeta2*h.vb[k] + (1-adamBeta2)*g*g
		mHat := h.mb[k] / c1
		vHat := h.vb[k] / c2
		h.b[k] -= float32(lr * mHat / (math.Sqrt(vHat) + adamEpsilon))
	}
}
