package train

import (
	"github.com/signetml/signet/signet-go/model"
	"github.com/signetml/signet/signet-golib/errors"
)

// EarlyStopping watches validation loss across epochs and remembers the best
// head weights seen so far. Improvement means strictly lower loss; matching
// the best is a stall.
type EarlyStopping struct {
	Patience int

	best      model.Weights
	bestLoss  float64
	bestEpoch int
	stall     int
}

// NewEarlyStopping stops training after patience consecutive non-improving
// epochs.
func NewEarlyStopping(patience int) *EarlyStopping {
	return &EarlyStopping{Patience: patience}
}

// Observe records the validation loss of a completed epoch (1-based). On
// improvement it snapshots the head's weights and resets the stall counter;
// otherwise the counter grows. Returns true once the counter reaches the
// patience, at which point the caller should stop and Restore.
func (es *EarlyStopping) Observe(epoch int, valLoss float64, head *model.Head) bool {
	if es.bestEpoch == 0 || valLoss < es.bestLoss {
		es.best = head.Weights()
		es.bestLoss = valLoss
		es.bestEpoch = epoch
		es.stall = 0
		return false
	}
	es.stall++
	return es.stall >= es.Patience
}

// BestEpoch returns the epoch whose weights are currently snapshotted, or
// zero if none has been observed.
func (es *EarlyStopping) BestEpoch() int {
	return es.bestEpoch
}

// Restore rolls the head back to the best observed weights and returns the
// epoch they came from.
func (es *EarlyStopping) Restore(head *model.Head) (int, error) {
	if es.bestEpoch == 0 {
		return 0, errors.Errorf("no epochs observed")
	}
	if err := head.SetWeights(es.best); err != nil {
		return 0, errors.Wrapf(err, "error restoring weights from epoch %d", es.bestEpoch)
	}
	return es.bestEpoch, nil
}
