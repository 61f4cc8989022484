package train

import (
	"log"
	"math/rand"

	humanize "github.com/dustin/go-humanize"
	"github.com/signetml/signet/signet-go/augment"
	"github.com/signetml/signet/signet-go/imageset"
	"github.com/signetml/signet/signet-go/model"
	"github.com/signetml/signet/signet-golib/errors"
)

const (
	// DefaultMaxEpochs bounds the initial training phase
	DefaultMaxEpochs = 30
	// DefaultPatience is the early stopping window on validation loss
	DefaultPatience = 5
	// DefaultBatchSize is used for both training and validation passes
	DefaultBatchSize = 32
	// DefaultFineTuneEpochs bounds the weighted fine-tuning phase
	DefaultFineTuneEpochs = 10
)

// Config controls both training phases; zero numeric fields take the
// defaults above.
type Config struct {
	MaxEpochs      int
	Patience       int
	BatchSize      int
	FineTuneEpochs int
	Seed           int64
	Augment        bool
}

func (c Config) withDefaults() Config {
	if c.MaxEpochs <= 0 {
		c.MaxEpochs = DefaultMaxEpochs
	}
	if c.Patience <= 0 {
		c.Patience = DefaultPatience
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.FineTuneEpochs <= 0 {
		c.FineTuneEpochs = DefaultFineTuneEpochs
	}
	return c
}

// BatchSource yields full batches of weighted samples indefinitely; the
// trainer decides how many to consume.
type BatchSource interface {
	Next() []imageset.WeightedSample
}

// Trainer owns the classifier's parameter updates. Batches are presented
// synchronously, one update per batch, so no other writer ever touches the
// head mid-run.
type Trainer struct {
	clf *model.Classifier
	cfg Config
	rng *rand.Rand
	aug *augment.Augmenter
}

// New creates a trainer for the classifier. With cfg.Augment set, training
// batches pass through random flips and rotations; validation never does.
func New(clf *model.Classifier, cfg Config) *Trainer {
	cfg = cfg.withDefaults()
	t := &Trainer{
		clf: clf,
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}
	if cfg.Augment {
		t.aug = augment.New(augment.DefaultOptions, cfg.Seed)
	}
	return t
}

// StepsPerEpoch is the number of batches covering n samples at the given
// batch size, counting a final short batch.
func StepsPerEpoch(n, batchSize int) int {
	if batchSize <= 0 {
		return 0
	}
	return (n + batchSize - 1) / batchSize
}

// Fit trains the head on the training partition for up to MaxEpochs,
// evaluating on the validation partition at every epoch boundary. Training
// stops early once validation loss stalls for Patience consecutive epochs.
// On return the head holds the best observed weights, whether the loop
// stopped early or ran out its budget.
func (t *Trainer) Fit(train, validation []imageset.Sample) (History, error) {
	if len(train) == 0 {
		return History{}, errors.Errorf("empty training partition")
	}
	if len(validation) == 0 {
		return History{}, errors.Errorf("empty validation partition")
	}

	log.Printf("training on %s samples, validating on %s",
		humanize.Comma(int64(len(train))), humanize.Comma(int64(len(validation))))

	stopper := NewEarlyStopping(t.cfg.Patience)
	order := make([]int, len(train))
	for i := range order {
		order[i] = i
	}

	var history History
	for epoch := 1; epoch <= t.cfg.MaxEpochs; epoch++ {
		t.rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

		var lossSum float64
		var correct, count int
		for lo := 0; lo < len(order); lo += t.cfg.BatchSize {
			hi := lo + t.cfg.BatchSize
			if hi > len(order) {
				hi = len(order)
			}

			batch := make([]imageset.WeightedSample, 0, hi-lo)
			for _, idx := range order[lo:hi] {
				batch = append(batch, imageset.WeightedSample{Sample: train[idx], Weight: 1})
			}

			loss, c, err := t.clf.TrainStep(t.visit(batch))
			if err != nil {
				return History{}, errors.Wrapf(err, "error in training step at epoch %d", epoch)
			}
			lossSum += loss * float64(len(batch))
			correct += c
			count += len(batch)
		}

		val, err := t.clf.Evaluate(validation, t.cfg.BatchSize)
		if err != nil {
			return History{}, errors.Wrapf(err, "error evaluating at epoch %d", epoch)
		}

		stats := EpochStats{
			Epoch:     epoch,
			TrainLoss: lossSum / float64(count),
			TrainAcc:  float64(correct) / float64(count),
			ValLoss:   val.Loss,
			ValAcc:    val.Accuracy,
		}
		history.Append(stats)
		log.Printf("epoch %d/%d: train loss %.4f acc %.4f, val loss %.4f acc %.4f",
			epoch, t.cfg.MaxEpochs, stats.TrainLoss, stats.TrainAcc, stats.ValLoss, stats.ValAcc)

		if stopper.Observe(epoch, val.Loss, t.clf.Head()) {
			best, err := stopper.Restore(t.clf.Head())
			if err != nil {
				return History{}, err
			}
			log.Printf("validation loss stalled for %d epochs, stopping; restored weights from epoch %d",
				t.cfg.Patience, best)
			return history, nil
		}
	}

	best, err := stopper.Restore(t.clf.Head())
	if err != nil {
		return History{}, err
	}
	log.Printf("epoch budget exhausted; restored weights from epoch %d", best)
	return history, nil
}

// FineTune resumes training from an indefinitely repeating weighted source
// for exactly FineTuneEpochs epochs of stepsPerEpoch batches each, with no
// early stopping. Sample weights flow into the loss from the source; the
// validation partition is evaluated each epoch for the record only.
func (t *Trainer) FineTune(source BatchSource, stepsPerEpoch int, validation []imageset.Sample) (History, error) {
	if stepsPerEpoch <= 0 {
		return History{}, errors.Errorf("steps per epoch must be positive, got %d", stepsPerEpoch)
	}
	if len(validation) == 0 {
		return History{}, errors.Errorf("empty validation partition")
	}

	var history History
	for epoch := 1; epoch <= t.cfg.FineTuneEpochs; epoch++ {
		var lossSum float64
		var correct, count int
		for step := 0; step < stepsPerEpoch; step++ {
			batch := source.Next()
			if len(batch) == 0 {
				return History{}, errors.Errorf("batch source returned an empty batch")
			}

			loss, c, err := t.clf.TrainStep(t.visit(batch))
			if err != nil {
				return History{}, errors.Wrapf(err, "error in fine-tuning step at epoch %d", epoch)
			}
			lossSum += loss * float64(len(batch))
			correct += c
			count += len(batch)
		}

		val, err := t.clf.Evaluate(validation, t.cfg.BatchSize)
		if err != nil {
			return History{}, errors.Wrapf(err, "error evaluating at fine-tuning epoch %d", epoch)
		}

		stats := EpochStats{
			Epoch:     epoch,
			TrainLoss: lossSum / float64(count),
			TrainAcc:  float64(correct) / float64(count),
			ValLoss:   val.Loss,
			ValAcc:    val.Accuracy,
		}
		history.Append(stats)
		log.Printf("fine-tune epoch %d/%d: train loss %.4f acc %.4f, val loss %.4f acc %.4f",
			epoch, t.cfg.FineTuneEpochs, stats.TrainLoss, stats.TrainAcc, stats.ValLoss, stats.ValAcc)
	}
	return history, nil
}

// visit applies training-time augmentation to a batch's images
func (t *Trainer) visit(batch []imageset.WeightedSample) []imageset.WeightedSample {
	if t.aug == nil {
		return batch
	}
	out := make([]imageset.WeightedSample, len(batch))
	for i, ws := range batch {
		ws.Image = t.aug.Apply(ws.Image)
		out[i] = ws
	}
	return out
}
