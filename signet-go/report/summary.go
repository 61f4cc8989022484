package report

import (
	"fmt"

	"github.com/montanaflynn/stats"
	"github.com/signetml/signet/signet-go/train"
	"github.com/signetml/signet/signet-golib/errors"
	"github.com/signetml/signet/signet-golib/serialization"
)

// WriteHistory dumps the per-epoch record to path, typically history.json
func WriteHistory(h train.History, path string) error {
	if err := serialization.Encode(path, h); err != nil {
		return errors.Wrapf(err, "error writing history to %s", path)
	}
	return nil
}

// LoadHistory reads a record written by WriteHistory
func LoadHistory(path string) (train.History, error) {
	var h train.History
	if err := serialization.Decode(path, &h); err != nil {
		return train.History{}, errors.Wrapf(err, "error reading history from %s", path)
	}
	return h, nil
}

// Summarize renders a one-line summary of the run's validation metrics
func Summarize(h train.History) string {
	if len(h.Epochs) == 0 {
		return "no epochs recorded"
	}

	valLoss := make([]float64, len(h.Epochs))
	valAcc := make([]float64, len(h.Epochs))
	for i, e := range h.Epochs {
		valLoss[i] = e.ValLoss
		valAcc[i] = e.ValAcc
	}

	minLoss, _ := stats.Min(valLoss)
	meanLoss, _ := stats.Mean(valLoss)
	maxAcc, _ := stats.Max(valAcc)
	meanAcc, _ := stats.Mean(valAcc)

	best, _ := h.Best()
	return fmt.Sprintf("%d epochs: val loss min %.4f (epoch %d) mean %.4f, val acc max %.4f mean %.4f",
		len(h.Epochs), minLoss, best.Epoch, meanLoss, maxAcc, meanAcc)
}
