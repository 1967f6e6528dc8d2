package cli

import (
	"context"
	"fmt"

	"github.com/mchmarny/chimera/pkg/data"
	"github.com/urfave/cli/v3"
)

const (
	limitFlagName = "limit"
	idFlagName    = "id"
	runsLimit     = 10
)

func newRunsCmd() *cli.Command {
	return &cli.Command{
		Name:   "runs",
		Usage:  "List recorded training runs, newest first",
		Action: cmdListRuns,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  limitFlagName,
				Usage: "Maximum number of runs to list",
				Value: runsLimit,
			},
			&cli.StringFlag{
				Name:  idFlagName,
				Usage: "Show a single run with the number of samples still stored for it",
			},
		},
	}
}

// RunDetail is one training run and its stored sample count.
type RunDetail struct {
	data.TrainingRun `yaml:",inline"`
	StoredSamples    int `json:"stored_samples" yaml:"stored_samples"`
}

func cmdListRuns(_ context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)

	if id := cmd.String(idFlagName); id != "" {
		r, err := data.GetRun(cfg.DB, id)
		if err != nil {
			return fmt.Errorf("getting training run %s: %w", id, err)
		}
		n, err := data.CountSamples(cfg.DB, r.Batch)
		if err != nil {
			return err
		}
		return encode(cmd, &RunDetail{TrainingRun: *r, StoredSamples: n})
	}

	list, err := data.ListRuns(cfg.DB, cmd.Int(limitFlagName))
	if err != nil {
		return fmt.Errorf("listing training runs: %w", err)
	}
	return encode(cmd, list)
}
