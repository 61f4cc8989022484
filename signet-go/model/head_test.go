package model

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// blobs builds a linearly separable toy set: each sample is mostly noise
// with a bump on the component matching its label.
func blobs(rng *rand.Rand, n, dim, classes int) ([][]float32, []int) {
	feats := make([][]float32, n)
	labels := make([]int, n)
	for i := range feats {
		label := i % classes
		f := make([]float32, dim)
		for j := range f {
			f[j] = float32(rng.NormFloat64() * 0.05)
		}
		f[label]++
		feats[i] = f
		labels[i] = label
	}
	return feats, labels
}

func ones(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 1
	}
	return w
}

func TestForwardDistribution(t *testing.T) {
	h := NewHead(4, 3, DefaultHeadOptions, 1)

	rng := rand.New(rand.NewSource(2))
	feats := make([][]float32, 5)
	for i := range feats {
		feats[i] = []float32{
			float32(rng.NormFloat64()),
			float32(rng.NormFloat64()),
			float32(rng.NormFloat64()),
			float32(rng.NormFloat64()),
		}
	}

	probs, err := h.Forward(feats)
	require.NoError(t, err)
	require.Len(t, probs, 5)
	for _, p := range probs {
		require.Len(t, p, 3)
		var sum float64
		for _, v := range p {
			assert.True(t, v >= 0 && v <= 1)
			sum += float64(v)
		}
		assert.InDelta(t, 1.0, sum, 1e-5)
	}
}

func TestForwardDimMismatch(t *testing.T) {
	h := NewHead(4, 3, DefaultHeadOptions, 1)
	_, err := h.Forward([][]float32{{1, 2}})
	require.Error(t, err)
}

func TestTrainStepConverges(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	feats, labels := blobs(rng, 30, 8, 3)
	weights := ones(len(feats))

	h := NewHead(8, 3, HeadOptions{LearningRate: 0.05}, 4)

	first, _, err := h.TrainStep(feats, labels, weights)
	require.NoError(t, err)

	var last float64
	var correct int
	for i := 0; i < 300; i++ {
		last, correct, err = h.TrainStep(feats, labels, weights)
		require.NoError(t, err)
	}

	assert.Less(t, last, first)
	assert.Equal(t, len(feats), correct)
}

func TestTrainStepWeightScalesLoss(t *testing.T) {
	feat := [][]float32{{1, -0.5, 0.25, 0}}
	label := []int{1}

	a := NewHead(4, 2, HeadOptions{LearningRate: 1e-4}, 7)
	b := NewHead(4, 2, HeadOptions{LearningRate: 1e-4}, 7)

	lossA, _, err := a.TrainStep(feat, label, []float64{1})
	require.NoError(t, err)
	lossB, _, err := b.TrainStep(feat, label, []float64{2})
	require.NoError(t, err)

	assert.InDelta(t, 2*lossA, lossB, 1e-9)
}

func TestTrainStepRejectsBadBatch(t *testing.T) {
	h := NewHead(4, 3, DefaultHeadOptions, 1)

	_, _, err := h.TrainStep(nil, nil, nil)
	require.Error(t, err)

	_, _, err = h.TrainStep([][]float32{{1, 2, 3, 4}}, []int{3}, []float64{1})
	require.Error(t, err)

	_, _, err = h.TrainStep([][]float32{{1, 2, 3, 4}}, []int{0, 1}, []float64{1})
	require.Error(t, err)
}

func TestWeightsSnapshotRestore(t *testing.T) {
	rng := rand.New(rand.NewSource(5))
	feats, labels := blobs(rng, 12, 6, 4)
	weights := ones(len(feats))

	h := NewHead(6, 4, HeadOptions{LearningRate: 0.01}, 6)
	for i := 0; i < 5; i++ {
		_, _, err := h.TrainStep(feats, labels, weights)
		require.NoError(t, err)
	}

	snap := h.Weights()
	for i := 0; i < 5; i++ {
		_, _, err := h.TrainStep(feats, labels, weights)
		require.NoError(t, err)
	}
	require.NotEqual(t, snap, h.Weights())

	require.NoError(t, h.SetWeights(snap))
	require.Equal(t, snap, h.Weights())

	// the snapshot is a deep copy, mutating it must not touch the head
	before := h.Weights()
	snap.W[0][0] = 123
	snap.B[1] = -42
	require.Equal(t, before, h.Weights())
}

func TestSetWeightsDimMismatch(t *testing.T) {
	h := NewHead(4, 3, DefaultHeadOptions, 1)

	err := h.SetWeights(Weights{W: make([][]float32, 2), B: make([]float32, 2)})
	require.Error(t, err)

	bad := h.Weights()
	bad.W[1] = []float32{1, 2}
	err = h.SetWeights(bad)
	require.Error(t, err)
}
