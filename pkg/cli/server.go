package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/mchmarny/chimera/pkg/config"
	"github.com/mchmarny/chimera/pkg/predict"
	"github.com/urfave/cli/v3"
)

const (
	serverMaxHeaderBytes = 20
	maxBodyBytes         = 1 << 20

	hostFlagName     = "host"
	portFlagName     = "port"
	modelFlagName    = "model"
	fallbackFlagName = "fallback"
)

func newServerCmd() *cli.Command {
	return &cli.Command{
		Name:    "server",
		Aliases: []string{"serve"},
		Usage:   "Start the prediction HTTP server",
		Action:  cmdStartServer,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  hostFlagName,
				Usage: "Address on which the server will listen (overrides config)",
			},
			&cli.IntFlag{
				Name:  portFlagName,
				Usage: "Port on which the server will listen (overrides config)",
			},
			modelPathFlag(),
			&cli.BoolFlag{
				Name:  fallbackFlagName,
				Usage: "Serve heuristic predictions when the model cannot be loaded (overrides config)",
			},
		},
	}
}

func modelPathFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:  modelFlagName,
		Usage: "Path to the model artifact (overrides config)",
	}
}

// serverSettings resolves flags over the loaded config.
func serverSettings(cmd *cli.Command, cfg *config.Config) (config.ServerConfig, config.ModelConfig) {
	s := cfg.Server
	if cmd.IsSet(hostFlagName) {
		s.Host = cmd.String(hostFlagName)
	}
	if cmd.IsSet(portFlagName) {
		s.Port = cmd.Int(portFlagName)
	}
	return s, modelSettings(cmd, cfg)
}

// modelSettings resolves the model flags over the loaded config.
func modelSettings(cmd *cli.Command, cfg *config.Config) config.ModelConfig {
	m := cfg.Model
	if cmd.IsSet(modelFlagName) {
		m.Path = cmd.String(modelFlagName)
	}
	if cmd.IsSet(fallbackFlagName) {
		m.AllowFallback = cmd.Bool(fallbackFlagName)
	}
	return m
}

func cmdStartServer(ctx context.Context, cmd *cli.Command) error {
	cfg := getConfig(cmd)
	sc, mc := serverSettings(cmd, cfg.Config)

	p, err := predict.Select(mc.Path, mc.AllowFallback)
	if err != nil {
		return fmt.Errorf("loading model: %w", err)
	}
	pipeline, err := predict.NewPipeline(p)
	if err != nil {
		return err
	}

	address := net.JoinHostPort(sc.Host, strconv.Itoa(sc.Port))
	s := &http.Server{
		Addr:           address,
		Handler:        makeRouter(pipeline),
		ReadTimeout:    sc.ReadTimeout,
		WriteTimeout:   sc.WriteTimeout,
		MaxHeaderBytes: 1 << serverMaxHeaderBytes,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(done)

	errCh := make(chan error, 1)
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.Info("server started",
		"address", fmt.Sprintf("http://%s", address),
		"strategy", pipeline.Strategy(),
		"model", mc.Path)

	select {
	case <-done:
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("starting server: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), sc.ShutdownWait)
	defer cancel()

	if err := s.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("error shutting down server", "error", err)
	}
	slog.Info("server stopped")
	return nil
}

func makeRouter(p *predict.Pipeline) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", rootHandler)
	mux.HandleFunc("POST /predict", predictHandler(p))
	mux.HandleFunc("GET /model", modelHandler(p))

	return chain(mux, requestID, accessLog, recoverer)
}
