package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/maaquib/djl-serving/internal/config"
	"github.com/maaquib/djl-serving/internal/identity"
	"github.com/maaquib/djl-serving/internal/logger"
	"github.com/maaquib/djl-serving/internal/ratelimit"
	"github.com/maaquib/djl-serving/internal/server"
)

type Globals struct {
	Debug   bool
	Version string
}

type ServeCmd struct {
	ConfigFile        string `short:"f" help:"path to key=value configuration file" env:"SERVING_CONFIG_FILE"`
	InferenceAddress  string `help:"override the inference endpoint binding" default:""`
	ManagementAddress string `help:"override the management endpoint binding" default:""`
}

func (c *ServeCmd) Run(ctx context.Context, globals *Globals) error {
	log := logger.Setup(globals.Debug)

	log.Info().Str("version", globals.Version).Bool("debug", globals.Debug).Msg("Starting model server")

	cfg, err := config.Load(c.ConfigFile)
	if err != nil {
		return err
	}
	if c.InferenceAddress != "" {
		cfg.Set(config.KeyInferenceAddress, c.InferenceAddress)
	}
	if c.ManagementAddress != "" {
		cfg.Set(config.KeyManagementAddress, c.ManagementAddress)
	}

	log.Debug().Msg(cfg.Dump())

	// Resolve the full serving policy before any listener opens; a broken
	// transport identity or limiter spec aborts startup.
	snap := cfg.Snapshot()

	ident, err := identity.Resolve(snap)
	if err != nil {
		return err
	}
	if ident.Source == config.TLSSourceSelfSigned {
		log.Warn().Msg("Using generated self-signed certificate, not intended for production use")
	}
	log.Info().Stringer("source", ident.Source).Msg("Resolved TLS identity")

	gate, err := ratelimit.NewGate(snap.LimiterSpecs)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return server.New(cfg, gate, ident, log).Run(ctx)
}
