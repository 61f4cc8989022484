package train

// EpochStats records one epoch's training and validation metrics
type EpochStats struct {
	Epoch     int     `json:"epoch"`
	TrainLoss float64 `json:"train_loss"`
	TrainAcc  float64 `json:"train_acc"`
	ValLoss   float64 `json:"val_loss"`
	ValAcc    float64 `json:"val_acc"`
}

// History is the per-epoch record of a training run
type History struct {
	Epochs []EpochStats `json:"epochs"`
}

// Append adds one epoch's stats to the record
func (h *History) Append(s EpochStats) {
	h.Epochs = append(h.Epochs, s)
}

// Best returns the epoch with the lowest validation loss, or false for an
// empty history.
func (h History) Best() (EpochStats, bool) {
	if len(h.Epochs) == 0 {
		return EpochStats{}, false
	}
	best := h.Epochs[0]
	for _, e := range h.Epochs[1:] {
		if e.ValLoss < best.ValLoss {
			best = e
		}
	}
	return best, true
}

// Extend appends a continuation run, renumbering its epochs to follow on
// from this one.
func (h History) Extend(next History) History {
	out := History{Epochs: append([]EpochStats(nil), h.Epochs...)}
	var offset int
	if n := len(out.Epochs); n > 0 {
		offset = out.Epochs[n-1].Epoch
	}
	for _, e := range next.Epochs {
		e.Epoch += offset
		out.Epochs = append(out.Epochs, e)
	}
	return out
}
