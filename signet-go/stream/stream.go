package stream

import (
	"math/rand"

	"github.com/signetml/signet/signet-go/imageset"
	"github.com/signetml/signet/signet-golib/errors"
)

const (
	// DefaultTrainWeight is attached to samples from the training partition
	DefaultTrainWeight = 1.0
	// DefaultHardWeight is attached to harvested hard examples
	DefaultHardWeight = 2.0
	// DefaultBufferSize bounds the shuffle window
	DefaultBufferSize = 1000
	// DefaultBatchSize is the fine-tuning batch size
	DefaultBatchSize = 32
)

// Config controls stream construction; zero fields take the defaults above
type Config struct {
	TrainWeight float64
	HardWeight  float64
	BufferSize  int
	BatchSize   int
	Seed        int64
}

func (c Config) withDefaults() Config {
	if c.TrainWeight == 0 {
		c.TrainWeight = DefaultTrainWeight
	}
	if c.HardWeight == 0 {
		c.HardWeight = DefaultHardWeight
	}
	if c.BufferSize <= 0 {
		c.BufferSize = DefaultBufferSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	return c
}

// Stream yields an indefinitely repeating, window-shuffled sequence of
// weighted samples in fixed-size batches. It never terminates on its own:
// the consumer decides how many batches one epoch is. The shuffle holds at
// most BufferSize samples at a time, drawing a random slot and refilling it
// from the cycling source, so the full union never needs to sit in a second
// in-memory copy.
type Stream struct {
	source []imageset.WeightedSample
	cfg    Config
	rng    *rand.Rand
	buffer []imageset.WeightedSample
	next   int
}

// Build forms the union of the training partition (weighted TrainWeight) and
// the harvested hard examples (weighted HardWeight, carrying their ground
// truth labels) and wraps it in a repeating shuffled stream. An empty hard
// set is a valid degenerate case; an empty union is an error.
func Build(train, hard []imageset.Sample, cfg Config) (*Stream, error) {
	cfg = cfg.withDefaults()
	if cfg.TrainWeight < 0 || cfg.HardWeight < 0 {
		return nil, errors.Errorf("sample weights must be positive, got %f and %f", cfg.TrainWeight, cfg.HardWeight)
	}
	if len(train)+len(hard) == 0 {
		return nil, errors.Errorf("no samples to stream")
	}

	source := make([]imageset.WeightedSample, 0, len(train)+len(hard))
	for _, s := range train {
		source = append(source, imageset.WeightedSample{Sample: s, Weight: cfg.TrainWeight})
	}
	for _, s := range hard {
		source = append(source, imageset.WeightedSample{Sample: s, Weight: cfg.HardWeight})
	}

	s := &Stream{
		source: source,
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
	}

	window := cfg.BufferSize
	if window > len(source) {
		window = len(source)
	}
	s.buffer = make([]imageset.WeightedSample, 0, window)
	for len(s.buffer) < window {
		s.buffer = append(s.buffer, s.pull())
	}
	return s, nil
}

// Next returns the next batch. Batches are always full: the stream repeats
// its source indefinitely.
func (s *Stream) Next() []imageset.WeightedSample {
	batch := make([]imageset.WeightedSample, s.cfg.BatchSize)
	for i := range batch {
		slot := s.rng.Intn(len(s.buffer))
		batch[i] = s.buffer[slot]
		s.buffer[slot] = s.pull()
	}
	return batch
}

// BatchSize returns the size of every batch Next yields
func (s *Stream) BatchSize() int {
	return s.cfg.BatchSize
}

// SourceCount returns the size of the union the stream repeats over
func (s *Stream) SourceCount() int {
	return len(s.source)
}

// Source returns a copy of the unioned weighted samples in construction order
func (s *Stream) Source() []imageset.WeightedSample {
	return append([]imageset.WeightedSample(nil), s.source...)
}

// pull returns the next source element, cycling forever
func (s *Stream) pull() imageset.WeightedSample {
	ws := s.source[s.next]
	s.next = (s.next + 1) % len(s.source)
	return ws
}
