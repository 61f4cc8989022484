package report

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/signetml/signet/signet-go/train"
	"github.com/signetml/signet/signet-golib/errors"
	chart "github.com/wcharczuk/go-chart"
)

// RenderCurves writes loss.png and accuracy.png under dir, plotting training
// and validation metrics by epoch with the best validation-loss epoch
// annotated. Needs at least two epochs to draw a line.
func RenderCurves(h train.History, dir string) error {
	if len(h.Epochs) < 2 {
		return errors.Errorf("need at least two epochs to plot, got %d", len(h.Epochs))
	}

	epochs := make([]float64, len(h.Epochs))
	trainLoss := make([]float64, len(h.Epochs))
	valLoss := make([]float64, len(h.Epochs))
	trainAcc := make([]float64, len(h.Epochs))
	valAcc := make([]float64, len(h.Epochs))
	for i, e := range h.Epochs {
		epochs[i] = float64(e.Epoch)
		trainLoss[i] = e.TrainLoss
		valLoss[i] = e.ValLoss
		trainAcc[i] = e.TrainAcc
		valAcc[i] = e.ValAcc
	}

	best, _ := h.Best()

	if err := renderCurve(filepath.Join(dir, "loss.png"), "Loss", epochs, trainLoss, valLoss, best.Epoch, best.ValLoss); err != nil {
		return err
	}
	return renderCurve(filepath.Join(dir, "accuracy.png"), "Accuracy", epochs, trainAcc, valAcc, best.Epoch, best.ValAcc)
}

func renderCurve(path, name string, epochs, trainVals, valVals []float64, bestEpoch int, bestVal float64) (err error) {
	graph := chart.Chart{
		Title:      name + " by Epoch",
		TitleStyle: chart.StyleShow(),
		XAxis: chart.XAxis{
			Name:      "Epoch",
			NameStyle: chart.StyleShow(),
			Style:     chart.StyleShow(),
		},
		YAxis: chart.YAxis{
			Name:      name,
			NameStyle: chart.StyleShow(),
			Style:     chart.StyleShow(),
		},
		Series: []chart.Series{
			chart.ContinuousSeries{
				Name:    "train",
				XValues: epochs,
				YValues: trainVals,
				Style: chart.Style{
					Show:        true,
					StrokeColor: chart.ColorBlue,
				},
			},
			chart.ContinuousSeries{
				Name:    "validation",
				XValues: epochs,
				YValues: valVals,
				Style: chart.Style{
					Show:        true,
					StrokeColor: chart.ColorRed,
				},
			},
			chart.AnnotationSeries{
				Annotations: []chart.Value2{
					{XValue: float64(bestEpoch), YValue: bestVal, Label: fmt.Sprintf("best (epoch %d)", bestEpoch)},
				},
				Style: chart.Style{
					Show:        true,
					StrokeColor: chart.ColorAlternateGray,
				},
			},
		},
	}

	graph.Elements = []chart.Renderable{
		chart.LegendLeft(&graph),
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "error creating %s", path)
	}
	defer errors.Defer(&err, f.Close)

	if err := graph.Render(chart.PNG, f); err != nil {
		return errors.Wrapf(err, "error rendering %s", path)
	}
	return nil
}
