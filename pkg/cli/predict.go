package cli

import (
	"context"
	"fmt"

	"github.com/mchmarny/chimera/pkg/explain"
	"github.com/mchmarny/chimera/pkg/net"
	"github.com/mchmarny/chimera/pkg/predict"
	"github.com/mchmarny/chimera/pkg/score"
	"github.com/urfave/cli/v3"
)

const (
	pitchFlagName    = "pitch"
	identityFlagName = "identity"
	momentumFlagName = "momentum"
	remoteFlagName   = "remote"
)

func newPredictCmd() *cli.Command {
	return &cli.Command{
		Name:   "predict",
		Usage:  "Predict fundraising success for one set of agent scores",
		Action: cmdPredict,
		Flags: []cli.Flag{
			&cli.FloatFlag{Name: pitchFlagName, Usage: "Pitch strength score [0-10]", Required: true},
			&cli.FloatFlag{Name: identityFlagName, Usage: "Founder identity/trust score [0-10]", Required: true},
			&cli.FloatFlag{Name: momentumFlagName, Usage: "Momentum tracker score [0-10]", Required: true},
			modelPathFlag(),
			&cli.StringFlag{Name: remoteFlagName, Usage: "Base URL of a running server, e.g. http://127.0.0.1:8080"},
		},
	}
}

// PredictOutput is what the predict command prints. Key drivers rank the
// raw scores; AttributionDrivers phrase the TreeSHAP values.
type PredictOutput struct {
	predict.Result     `yaml:",inline"`
	Strategy           predict.Strategy     `json:"strategy,omitempty" yaml:"strategy,omitempty"`
	Attribution        *explain.Attribution `json:"attribution,omitempty" yaml:"attribution,omitempty"`
	AttributionDrivers []string             `json:"attribution_drivers,omitempty" yaml:"attribution_drivers,omitempty"`
}

func cmdPredict(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)
	in := score.Input{
		Pitch:    cmd.Float(pitchFlagName),
		Identity: cmd.Float(identityFlagName),
		Momentum: cmd.Float(momentumFlagName),
	}
	if err := score.NewRequest(in).Validate(); err != nil {
		return err
	}

	if remote := cmd.String(remoteFlagName); remote != "" {
		c, err := net.NewClient(remote, nil)
		if err != nil {
			return err
		}
		res, err := c.Predict(ctx, in)
		if err != nil {
			return fmt.Errorf("remote prediction: %w", err)
		}
		return encode(cmd, &PredictOutput{Result: *res})
	}

	mc := modelSettings(cmd, cfg.Config)
	out, err := predictLocal(ctx, mc.Path, mc.AllowFallback, in)
	if err != nil {
		return err
	}
	return encode(cmd, out)
}

func predictLocal(ctx context.Context, path string, allowFallback bool, in score.Input) (*PredictOutput, error) {
	p, err := predict.Select(path, allowFallback)
	if err != nil {
		return nil, fmt.Errorf("loading model: %w", err)
	}
	pipeline, err := predict.NewPipeline(p)
	if err != nil {
		return nil, err
	}

	res, err := pipeline.Process(ctx, in)
	if err != nil {
		return nil, err
	}

	out := &PredictOutput{Result: *res, Strategy: p.Strategy()}
	if mp, ok := p.(*predict.ModelPredictor); ok {
		a := mp.Attribution(in)
		drivers, err := predict.AttributionDrivers(a)
		if err != nil {
			return nil, fmt.Errorf("phrasing attribution: %w", err)
		}
		out.Attribution = &a
		out.AttributionDrivers = drivers
	}
	return out, nil
}
