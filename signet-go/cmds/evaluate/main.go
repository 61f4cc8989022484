package main

import (
	"fmt"
	"log"

	"github.com/alexflint/go-arg"
	"github.com/montanaflynn/stats"

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
		BatchSize  int
		Workers    int
	}{
		BatchSize: 32,
	}
	arg.MustParse(&args)

	extractor, err := mobilenet.NewExtractor(args.Graph, mobilenet.Options{})
	fail(err)

	clf, classes, err := model.LoadCheckpoint(args.Checkpoint, extractor)
	fail(err)
	log.Printf("loaded %d-way classifier from %s", len(classes), args.Checkpoint)

	files, err := imageset.ListDir(args.DataDir)
	fail(err)
	samples, err := imageset.Load(files, imageset.Options{Workers: args.Workers})
	fail(err)

	metrics, err := clf.Evaluate(samples, args.BatchSize)
	fail(err)
	log.Printf("%d samples: loss %.4f, accuracy %.4f", metrics.Count, metrics.Loss, metrics.Accuracy)

	hard, err := harvest.Harvest(clf, samples, args.BatchSize)
	fail(err)

	totals := imageset.CountByClass(samples)
	wrong := harvest.ByClass(hard)

	fmt.Println("class  accuracy  wrong/total")
	var accs []float64
	for c := 0; c < asl.NumClasses; c++ {
		class := asl.Class(c)
		total := totals[class]
		if total == 0 {
			continue
		}
		w := wrong[class]
		acc := 1 - float64(w)/float64(total)
		accs = append(accs, acc)
		fmt.Printf("%5s  %.4f    %d/%d\n", class.Name(), acc, w, total)
	}

	min, _ := stats.Min(accs)
	mean, _ := stats.Mean(accs)
	max, _ := stats.Max(accs)
	log.Printf("per-class accuracy: min %.4f mean %.4f max %.4f", min, mean, max)
}
