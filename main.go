// Command aquamon samples the tank temperature and TDS probes and lights
// the alert LED while either reading is over its threshold. It runs until
// SIGINT or SIGTERM.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"tinygo.org/x/drivers"

	"aquamon-go/bus"
	"aquamon-go/calib"
	"aquamon-go/drivers/iio"
	"aquamon-go/drivers/sysfsgpio"
	"aquamon-go/services/alert"
	"aquamon-go/services/config"
	"aquamon-go/services/hal"
	"aquamon-go/services/logsink"
	"aquamon-go/services/sampler"
	"aquamon-go/services/supervisor"
	"aquamon-go/types"
)

const (
	srcTemp = "temperature"
	srcTDS  = "tds"
)

func main() {
	if err := run(); err != nil {
		slog.Error("aquamon stopped", "err", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	runID := logsink.NewRunID()
	log := logsink.NewLogger(os.Stderr, cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(log.With("run_id", runID))

	// Shutdown signal: set once, never cleared.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b := bus.NewBus(64)

	// The sink outlives the supervisor so the final state is logged.
	sinkCtx, stopSink := context.WithCancel(context.Background())
	sink := logsink.New(log, runID, cfg.StatusEvery)
	if err := sink.Start(sinkCtx, b.NewConnection("logsink")); err != nil {
		stopSink()
		return fmt.Errorf("start log sink: %w", err)
	}
	defer func() {
		stopSink()
		<-sink.Done()
	}()

	port := iio.NewPort(
		iio.Source{ID: srcTemp, Path: cfg.TempPath, Format: cfg.TempFormat},
		iio.Source{ID: srcTDS, Path: cfg.TDSPath, Format: iio.FormatInteger},
	)

	state := alert.New()

	toC := func(raw types.RawReading) float64 { return calib.ToTemperatureC(raw, cfg.ADC) }
	if cfg.TempFormat == iio.FormatW1Therm {
		toC = calib.MilliCToC
	}
	temp, err := sampler.New(sampler.Config{
		Kind:      types.KindTemperature,
		Threshold: cfg.TempThresholdC,
		Interval:  cfg.SamplerInterval(),
		Convert:   toC,
	}, iio.NewChannel(port, srcTemp, drivers.Temperature), state)
	if err != nil {
		return err
	}
	tds, err := sampler.New(sampler.Config{
		Kind:      types.KindWaterQuality,
		Threshold: cfg.TDSThresholdPPM,
		Interval:  cfg.SamplerInterval(),
		Convert:   func(raw types.RawReading) float64 { return calib.ToPPM(raw, cfg.TDS) },
	}, iio.NewChannel(port, srcTDS, drivers.Voltage), state)
	if err != nil {
		return err
	}

	gpio := sysfsgpio.New(sysfsgpio.Config{
		Root:          cfg.GPIORoot,
		ExportTimeout: cfg.GPIOExportTimeout,
		DirMode:       cfg.GPIODirMode,
	})

	sup := supervisor.New(supervisor.Config{
		Pin:              cfg.LEDPin,
		Line:             hal.LineConfig{Settle: cfg.Settle()},
		ActuatorInterval: cfg.ActuatorInterval(),
	}, gpio, state, b.NewConnection("supervisor"), temp, tds)

	slog.Info("starting",
		"led_pin", cfg.LEDPin,
		"gpio_root", cfg.GPIORoot,
		"temp_path", cfg.TempPath,
		"tds_path", cfg.TDSPath,
		"sampler_interval", cfg.SamplerInterval(),
	)
	return sup.Run(ctx)
}
