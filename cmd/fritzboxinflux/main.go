package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/collector"
	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/config"
	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/errors"
	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/gateway"
	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/logger"
	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/pid"
	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/poller"
	"github.com/spf13/pflag"
)

const connectTimeout = 30 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.Load()
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		return 1
	}

	logger.Init(cfg.LogLevel, logger.IsService())
	logger.Debug().Strs("sinks", cfg.Sinks).Int("interval", cfg.Interval).Msg("Config loaded")

	if err := pid.Write(cfg.PIDFile); err != nil {
		logErr(err, "Failed to write PID file")
		return 1
	}
	defer func() {
		if err := pid.Remove(cfg.PIDFile); err != nil {
			logger.Error().Err(err).Msg("Failed to remove PID file")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	gw, err := gateway.New(gateway.Config{
		Address:  cfg.FritzBox.Address,
		Port:     cfg.FritzBox.Port,
		User:     cfg.FritzBox.User,
		Password: cfg.FritzBox.Password,
		Timeout:  seconds(cfg.FritzBox.Timeout),
	}, logger.Default())
	if err != nil {
		logErr(err, "Failed to create FRITZ!Box client")
		return 1
	}

	connectCtx, connectCancel := context.WithTimeout(ctx, connectTimeout)
	if err := gw.Connect(connectCtx); err != nil {
		logger.Warn().Err(err).Str("address", cfg.FritzBox.Address).
			Msg("FRITZ!Box not reachable yet, will retry every cycle")
	}
	connectCancel()

	sinks, err := openSinks(ctx, cfg)
	if err != nil {
		logErr(err, "Failed to initialize metrics sinks")
		return 1
	}

	col := collector.New(gw, collector.Config{DSL: cfg.FritzBox.DSL})

	p, err := poller.New(col, sinks, cfg.IntervalDuration(), logger.Default())
	if err != nil {
		closeSinks(sinks)
		logErr(err, "Failed to create poller")
		return 1
	}

	code := 0
	if err := p.Run(ctx); err != nil {
		logErr(errors.New().Wrap(errors.ErrMainLoop, err), "Error in main loop")
		code = 1
	}

	if err := p.Close(); err != nil {
		logger.Error().Err(err).Msg("Failed to close metrics sinks")
	}
	logger.Info().Msg("Exiting...")

	return code
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigs
	logger.Info().Str("signal", sig.String()).Msg("Received termination signal")
	cancel()
}

func logErr(err error, msg string) {
	var appErr errors.Error
	if errors.As(err, &appErr) {
		logger.ErrorWithCode(appErr).Msg(msg)
		return
	}
	logger.Error().Err(err).Msg(msg)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
