package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/signetml/signet/signet-go/asl"
	"github.com/signetml/signet/signet-go/harvest"
	"github.com/signetml/signet/signet-go/imageset"
	"github.com/signetml/signet/signet-go/mobilenet"
	"github.com/signetml/signet/signet-go/model"
	"github.com/signetml/signet/signet-go/report"
	"github.com/signetml/signet/signet-go/stream"
	"github.com/signetml/signet/signet-go/train"
	"github.com/signetml/signet/signet-golib/serialization"
)

// runConfig holds everything the pipeline needs. A YAML file can set any
// field; command line flags override whatever the file says.
type runConfig struct {
	Graph          string  `yaml:"graph"`
	Split          float64 `yaml:"split"`
	Seed           int64   `yaml:"seed"`
	BatchSize      int     `yaml:"batch_size"`
	MaxEpochs      int     `yaml:"max_epochs"`
	Patience       int     `yaml:"patience"`
	FineTuneEpochs int     `yaml:"fine_tune_epochs"`
	HardWeight     float64 `yaml:"hard_weight"`
	BufferSize     int     `yaml:"buffer_size"`
	LearningRate   float64 `yaml:"learning_rate"`
	DropRate       float64 `yaml:"drop_rate"`
	Workers        int     `yaml:"workers"`
	NoAugment      bool    `yaml:"no_augment"`
}

var defaultConfig = runConfig{
	Graph:          "mobilenet_v2.pb.gz",
	Split:          0.2,
	Seed:           42,
	BatchSize:      train.DefaultBatchSize,
	MaxEpochs:      train.DefaultMaxEpochs,
	Patience:       train.DefaultPatience,
	FineTuneEpochs: train.DefaultFineTuneEpochs,
	HardWeight:     stream.DefaultHardWeight,
	BufferSize:     stream.DefaultBufferSize,
	LearningRate:   model.DefaultHeadOptions.LearningRate,
	DropRate:       model.DefaultHeadOptions.DropRate,
}

var (
	configPath     string
	graphPath      string
	seed           int64
	batchSize      int
	maxEpochs      int
	patience       int
	fineTuneEpochs int
	workers        int
)

var runCmd = &cobra.Command{
	Use:   "run DATA_DIR OUT_DIR",
	Short: "train the hand sign classifier end to end",
	Args:  cobra.ExactArgs(2),
	Run:   run,
}

func maybeQuit(err error) {
	if err != nil {
		panic(err)
	}
}

func init() {
	runCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML config file; flags override its fields")
	runCmd.PersistentFlags().StringVar(&graphPath, "graph", defaultConfig.Graph, "frozen MobileNetV2 GraphDef")
	runCmd.PersistentFlags().Int64Var(&seed, "seed", defaultConfig.Seed, "seed for the split, shuffles, and head init")
	runCmd.PersistentFlags().IntVar(&batchSize, "batch_size", defaultConfig.BatchSize, "training and evaluation batch size")
	runCmd.PersistentFlags().IntVar(&maxEpochs, "max_epochs", defaultConfig.MaxEpochs, "epoch budget for the initial phase")
	runCmd.PersistentFlags().IntVar(&patience, "patience", defaultConfig.Patience, "early stopping patience in epochs")
	runCmd.PersistentFlags().IntVar(&fineTuneEpochs, "fine_tune_epochs", defaultConfig.FineTuneEpochs, "epoch budget for the weighted fine-tuning phase")
	runCmd.PersistentFlags().IntVar(&workers, "workers", 0, "parallel image decoders, 0 for NumCPU")
}

func loadConfig(cmd *cobra.Command) runConfig {
	cfg := defaultConfig
	if configPath != "" {
		maybeQuit(serialization.Decode(configPath, &cfg))
	}
	if cmd.Flags().Changed("graph") {
		cfg.Graph = graphPath
	}
	if cmd.Flags().Changed("seed") {
		cfg.Seed = seed
	}
	if cmd.Flags().Changed("batch_size") {
		cfg.BatchSize = batchSize
	}
	if cmd.Flags().Changed("max_epochs") {
		cfg.MaxEpochs = maxEpochs
	}
	if cmd.Flags().Changed("patience") {
		cfg.Patience = patience
	}
	if cmd.Flags().Changed("fine_tune_epochs") {
		cfg.FineTuneEpochs = fineTuneEpochs
	}
	if cmd.Flags().Changed("workers") {
		cfg.Workers = workers
	}
	return cfg
}

func run(cmd *cobra.Command, args []string) {
	dataDir, outDir := args[0], args[1]
	cfg := loadConfig(cmd)

	maybeQuit(os.MkdirAll(outDir, 0755))

	extractor, err := mobilenet.NewExtractor(cfg.Graph, mobilenet.Options{})
	maybeQuit(err)
	maybeQuit(extractor.Validate())

	training, validation, err := imageset.LoadSplit(dataDir, cfg.Seed, cfg.Split, imageset.Options{Workers: cfg.Workers})
	maybeQuit(err)

	head := model.NewHead(extractor.Dim(), asl.NumClasses, model.HeadOptions{
		LearningRate: cfg.LearningRate,
		DropRate:     cfg.DropRate,
	}, cfg.Seed)
	clf, err := model.NewClassifier(extractor, head, imageset.Shape{
		W: imageset.DefaultSize,
		H: imageset.DefaultSize,
		C: imageset.Channels,
	})
	maybeQuit(err)

	trainer := train.New(clf, train.Config{
		MaxEpochs:      cfg.MaxEpochs,
		Patience:       cfg.Patience,
		BatchSize:      cfg.BatchSize,
		FineTuneEpochs: cfg.FineTuneEpochs,
		Seed:           cfg.Seed,
		Augment:        !cfg.NoAugment,
	})

	history, err := trainer.Fit(training, validation)
	maybeQuit(err)

	hard, err := harvest.Harvest(clf, validation, cfg.BatchSize)
	maybeQuit(err)
	log.Printf("harvested %d hard examples from %d validation samples", len(hard), len(validation))
	counts := harvest.ByClass(hard)
	for c := 0; c < asl.NumClasses; c++ {
		if n := counts[asl.Class(c)]; n > 0 {
			log.Printf("  %s: %d misclassified", asl.Class(c).Name(), n)
		}
	}
	maybeQuit(harvest.Save(filepath.Join(outDir, "hard_examples.json"), hard))

	s, err := stream.Build(training, harvest.Samples(hard), stream.Config{
		HardWeight: cfg.HardWeight,
		BufferSize: cfg.BufferSize,
		BatchSize:  cfg.BatchSize,
		Seed:       cfg.Seed,
	})
	maybeQuit(err)

	ftHistory, err := trainer.FineTune(s, train.StepsPerEpoch(len(training), cfg.BatchSize), validation)
	maybeQuit(err)
	history = history.Extend(ftHistory)

	maybeQuit(model.SaveCheckpoint(filepath.Join(outDir, "classifier.json.gz"), clf, asl.Names(), mobilenet.Name))
	maybeQuit(report.WriteHistory(history, filepath.Join(outDir, "history.json")))
	maybeQuit(report.RenderCurves(history, outDir))

	log.Println(report.Summarize(history))
}
