package cli

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mchmarny/chimera/pkg/config"
	"github.com/mchmarny/chimera/pkg/data"
	"github.com/mchmarny/chimera/pkg/model"
	"github.com/urfave/cli/v3"
)

const (
	testRatio = 0.2

	samplesFlagName = "samples"
	seedFlagName    = "seed"
	treesFlagName   = "trees"
	depthFlagName   = "depth"
	etaFlagName     = "eta"
	foldsFlagName   = "folds"
	outFlagName     = "out"
)

func newTrainCmd() *cli.Command {
	return &cli.Command{
		Name:   "train",
		Usage:  "Generate synthetic samples, train the success model and save it",
		Action: cmdTrain,
		Flags: []cli.Flag{
			&cli.IntFlag{Name: samplesFlagName, Usage: "Number of synthetic samples (default from config: 2000)"},
			&cli.Uint64Flag{Name: seedFlagName, Usage: "Random seed (default from config: 42)"},
			&cli.IntFlag{Name: treesFlagName, Usage: "Number of boosting rounds (default from config: 100)"},
			&cli.IntFlag{Name: depthFlagName, Usage: "Maximum tree depth (default from config: 4)"},
			&cli.FloatFlag{Name: etaFlagName, Usage: "Learning rate (default from config: 0.1)"},
			&cli.IntFlag{Name: foldsFlagName, Usage: "Cross validation folds (default from config: 5)"},
			&cli.StringFlag{Name: outFlagName, Usage: "Model artifact path (default from config)"},
		},
	}
}

// TrainReport is printed at the end of a training run.
type TrainReport struct {
	Run        *data.TrainingRun     `json:"run" yaml:"run"`
	Test       model.Metrics         `json:"test" yaml:"test"`
	CV         *model.CVResult       `json:"cv" yaml:"cv"`
	Importance []model.FeatureWeight `json:"importance" yaml:"importance"`
}

func trainSettings(cmd *cli.Command, cfg *config.Config) (config.TrainConfig, string) {
	t := cfg.Train
	out := cfg.Model.Path
	if cmd.IsSet(samplesFlagName) {
		t.Samples = cmd.Int(samplesFlagName)
	}
	if cmd.IsSet(seedFlagName) {
		t.Seed = cmd.Uint64(seedFlagName)
	}
	if cmd.IsSet(treesFlagName) {
		t.Trees = cmd.Int(treesFlagName)
	}
	if cmd.IsSet(depthFlagName) {
		t.MaxDepth = cmd.Int(depthFlagName)
	}
	if cmd.IsSet(etaFlagName) {
		t.LearningRate = cmd.Float(etaFlagName)
	}
	if cmd.IsSet(foldsFlagName) {
		t.Folds = cmd.Int(foldsFlagName)
	}
	if cmd.IsSet(outFlagName) {
		out = cmd.String(outFlagName)
	}
	return t, out
}

func cmdTrain(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)
	tc, out := trainSettings(cmd, cfg.Config)

	params := model.DefaultParams()
	params.Trees = tc.Trees
	params.MaxDepth = tc.MaxDepth
	params.LearningRate = tc.LearningRate

	report, err := train(ctx, cfg, tc, params, out)
	if err != nil {
		return err
	}
	return encode(cmd, report)
}

func train(ctx context.Context, cfg *appConfig, tc config.TrainConfig, params model.Params, out string) (*TrainReport, error) {
	batch := fmt.Sprintf("synthetic-n%d-s%d", tc.Samples, tc.Seed)
	if err := data.SaveSamples(cfg.DB, batch, model.GenerateSynthetic(tc.Samples, tc.Seed)); err != nil {
		return nil, fmt.Errorf("saving samples: %w", err)
	}

	samples, err := data.GetSamples(cfg.DB, batch)
	if err != nil {
		return nil, fmt.Errorf("loading samples: %w", err)
	}
	slog.Info("samples ready",
		"batch", batch,
		"count", len(samples),
		"positive_rate", model.PositiveRate(samples))

	trainSet, testSet := model.SplitTrainTest(samples, testRatio, tc.Seed)

	ens, err := model.Fit(trainSet, params)
	if err != nil {
		return nil, fmt.Errorf("training model: %w", err)
	}
	metrics := model.Evaluate(ens, testSet)
	slog.Info("model trained", "trees", len(ens.Trees), "roc_auc", metrics.AUC, "accuracy", metrics.Accuracy)

	cv, err := model.CrossValidate(ctx, samples, tc.Folds, params, tc.Seed)
	if err != nil {
		return nil, fmt.Errorf("cross validating: %w", err)
	}
	slog.Info("cross validation done", "folds", tc.Folds, "mean", cv.Mean, "std", cv.Std)

	if err := model.Save(out, ens); err != nil {
		return nil, fmt.Errorf("saving model: %w", err)
	}

	run := &data.TrainingRun{
		CreatedAt: ens.CreatedAt,
		Batch:     batch,
		Samples:   len(samples),
		Seed:      tc.Seed,
		Params:    params,
		AUC:       metrics.AUC,
		Accuracy:  metrics.Accuracy,
		Precision: metrics.Precision,
		Recall:    metrics.Recall,
		F1:        metrics.F1,
		CVMean:    cv.Mean,
		CVStd:     cv.Std,
		ModelPath: out,
	}
	if err := data.SaveRun(cfg.DB, run); err != nil {
		return nil, fmt.Errorf("recording training run: %w", err)
	}
	slog.Info("model saved", "path", out, "run", run.ID)

	return &TrainReport{
		Run:        run,
		Test:       metrics,
		CV:         cv,
		Importance: model.FeatureImportance(ens),
	}, nil
}
