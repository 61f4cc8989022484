package main

import (
	"log"

	"github.com/alexflint/go-arg"

	"github.com/signetml/signet/signet-go/asl"
	"github.com/signetml/signet/signet-go/harvest"
	"github.com/signetml/signet/signet-go/imageset"
	"github.com/signetml/signet/signet-go/mobilenet"
	"github.com/signetml/signet/signet-go/model"
)

func fail(err error) {
	if err != nil {
		log.Fatal(err)
	}
}

func main() {
	args := struct {
		Checkpoint string `arg:"required"`
		Graph      string `arg:"required"`
		DataDir    string `arg:"required"`
		Out        string
		BatchSize  int
		Workers    int
	}{
		Out:       "hard_examples.json",
		BatchSize: 32,
	}
	arg.MustParse(&args)

	extractor, err := mobilenet.NewExtractor(args.Graph, mobilenet.Options{})
	fail(err)

	clf, _, err := model.LoadCheckpoint(args.Checkpoint, extractor)
	fail(err)

	files, err := imageset.ListDir(args.DataDir)
	fail(err)
	samples, err := imageset.Load(files, imageset.Options{Workers: args.Workers})
	fail(err)

	hard, err := harvest.Harvest(clf, samples, args.BatchSize)
	fail(err)
	log.Printf("harvested %d hard examples from %d samples", len(hard), len(samples))

	counts := harvest.ByClass(hard)
	for c := 0; c < asl.NumClasses; c++ {
		if n := counts[asl.Class(c)]; n > 0 {
			log.Printf("  %s: %d misclassified", asl.Class(c).Name(), n)
		}
	}

	fail(harvest.Save(args.Out, hard))
	log.Printf("wrote %s", args.Out)
}
