package imageset

import (
	"github.com/signetml/signet/signet-go/asl"
)

// Sample pairs a loaded image with its ground-truth class. Samples are
// immutable once loaded.
type Sample struct {
	Image Image
	Label asl.Class
	Path  string
}

// WeightedSample scales a sample's contribution to the training loss.
// Weights are attached during fine-tuning stream construction and never
// mutated afterward.
type WeightedSample struct {
	Sample
	Weight float64
}

// File locates a labeled image on disk before it is decoded
type File struct {
	Path  string
	Label asl.Class
}

// CountByClass tallies samples by label
func CountByClass(samples []Sample) map[asl.Class]int {
	counts := make(map[asl.Class]int)
	for _, s := range samples {
		counts[s.Label]++
	}
	return counts
}
