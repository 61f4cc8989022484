package imageset

import (
	"math/rand"

	"github.com/signetml/signet/signet-golib/errors"
)

// SplitFiles are the disjoint train/validate partitions of a dataset listing
type SplitFiles struct {
	Train    []File
	Validate []File
}

// Split deterministically partitions files into train and validate sets.
// The listing is shuffled with the seed and the first validateRatio fraction
// becomes the validation partition; the same inputs always produce the same
// partitions. The shuffled order is retained so it doubles as the initial
// traversal order for each partition.
func Split(files []File, seed int64, validateRatio float64) (SplitFiles, error) {
	if len(files) == 0 {
		return SplitFiles{}, errors.Errorf("no files to split")
	}
	if validateRatio < 0 || validateRatio >= 1 {
		return SplitFiles{}, errors.Errorf("validate ratio %f outside [0, 1)", validateRatio)
	}

	shuffled := append([]File(nil), files...)
	r := rand.New(rand.NewSource(seed))
	r.Shuffle(len(shuffled), func(i, j int) {
		shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
	})

	numValidate := int(float64(len(shuffled)) * validateRatio)
	if numValidate == 0 && validateRatio > 0 && len(shuffled) > 1 {
		// tiny corpus: keep at least one validation sample rather than none
		numValidate = 1
	}

	split := SplitFiles{
		Validate: shuffled[:numValidate],
		Train:    shuffled[numValidate:],
	}
	if len(split.Train) == 0 {
		return SplitFiles{}, errors.Errorf("training partition is empty after split (%d files, ratio %f)", len(files), validateRatio)
	}
	return split, nil
}
