package cli

import (
	"context"
	"fmt"

	"github.com/mchmarny/chimera/pkg/net"
	"github.com/mchmarny/chimera/pkg/predict"
	"github.com/urfave/cli/v3"
)

func newStatusCmd() *cli.Command {
	return &cli.Command{
		Name:   "status",
		Usage:  "Check a running server and describe the predictor it serves",
		Action: cmdStatus,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     remoteFlagName,
				Usage:    "Base URL of a running server, e.g. http://127.0.0.1:8080",
				Required: true,
			},
		},
	}
}

// StatusOutput is what the status command prints.
type StatusOutput struct {
	Message string        `json:"message" yaml:"message"`
	Model   *predict.Info `json:"model" yaml:"model"`
}

func cmdStatus(ctx context.Context, cmd *cli.Command) error {
	c, err := net.NewClient(cmd.String(remoteFlagName), nil)
	if err != nil {
		return err
	}

	msg, err := c.Health(ctx)
	if err != nil {
		return fmt.Errorf("checking server: %w", err)
	}
	info, err := c.Model(ctx)
	if err != nil {
		return fmt.Errorf("describing model: %w", err)
	}
	return encode(cmd, &StatusOutput{Message: msg, Model: info})
}
