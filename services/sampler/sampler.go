// Package sampler polls one sensor, converts its sample and writes the
// threshold decision into the shared alert state.
package sampler

import (
	"context"
	"errors"
	"time"

	"tinygo.org/x/drivers"

	"aquamon-go/bus"
	"aquamon-go/errcode"
	"aquamon-go/services/alert"
	"aquamon-go/types"
	"aquamon-go/x/timex"
)

// Source is a sensor channel: drivers.Sensor plus access to the cached
// raw sample. *iio.Channel satisfies it.
type Source interface {
	drivers.Sensor
	Measurement() drivers.Measurement
	Raw() types.RawReading
	SourceID() string
}

// Convert maps a raw sample onto the kind's unit.
type Convert func(types.RawReading) float64

type Config struct {
	Kind      types.Kind
	Threshold float64       // alert when value > Threshold
	Interval  time.Duration // period between polls
	Convert   Convert
}

// Default thresholds.
const (
	TemperatureThresholdC = 45.0
	WaterQualityThreshold = 700.0
)

type Worker struct {
	cfg   Config
	src   Source
	state *alert.State

	tReading    bus.Topic
	tFault      bus.Topic
	tTransition bus.Topic
}

func New(cfg Config, src Source, state *alert.State) (*Worker, error) {
	switch {
	case src == nil || state == nil:
		return nil, &errcode.E{C: errcode.InvalidConfig, Op: "sampler.new", Msg: "missing source or alert state"}
	case cfg.Convert == nil:
		return nil, &errcode.E{C: errcode.InvalidConfig, Op: "sampler.new", Msg: "missing convert for " + string(cfg.Kind)}
	case cfg.Interval <= 0:
		return nil, &errcode.E{C: errcode.InvalidConfig, Op: "sampler.new", Msg: "interval must be positive"}
	}
	return &Worker{
		cfg:         cfg,
		src:         src,
		state:       state,
		tReading:    bus.T(types.TokReading, string(cfg.Kind)),
		tFault:      bus.T(types.TokFault, types.TokSensor, string(cfg.Kind)),
		tTransition: bus.T(types.TokAlert, types.TokTransition),
	}, nil
}

// Run polls until ctx is done, idling for the interval after each cycle
// completes. A nil return is a clean stop.
func (w *Worker) Run(ctx context.Context, conn *bus.Connection) error {
	idle := time.NewTimer(w.cfg.Interval)
	defer idle.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}
		w.poll(conn)
		idle.Reset(w.cfg.Interval)
		select {
		case <-ctx.Done():
			return nil
		case <-idle.C:
		}
	}
}

// poll runs one read-convert-compare cycle. A failed read counts as below
// threshold for the cycle.
func (w *Worker) poll(conn *bus.Connection) {
	over, value := false, 0.0

	if err := w.src.Update(w.src.Measurement()); err != nil {
		code := errcode.Of(err)
		if code == errcode.Error {
			code = errcode.Unavailable
		}
		publish(conn, w.tFault, types.SensorFault{
			Kind:   w.cfg.Kind,
			Source: w.src.SourceID(),
			Code:   string(code),
			Err:    errString(err),
			TS:     timex.NowMs(),
		}, false)
	} else {
		raw := w.src.Raw()
		value = w.cfg.Convert(raw)
		over = value > w.cfg.Threshold
		publish(conn, w.tReading, types.ReadingEvent{
			Kind:  w.cfg.Kind,
			Raw:   raw,
			Value: value,
			Unit:  w.cfg.Kind.Unit(),
			Over:  over,
			TS:    timex.NowMs(),
		}, true)
	}

	if prev := w.state.Swap(over); prev != over {
		publish(conn, w.tTransition, types.AlertEvent{
			Active: over,
			Cause:  w.cfg.Kind,
			Value:  value,
			TS:     timex.NowMs(),
		}, false)
	}
}

func publish(conn *bus.Connection, t bus.Topic, payload any, retained bool) {
	if conn == nil {
		return
	}
	conn.Publish(conn.NewMessage(t, payload, retained))
}

func errString(err error) string {
	var e *errcode.E
	if errors.As(err, &e) && e.Err != nil {
		return e.Err.Error()
	}
	return err.Error()
}
