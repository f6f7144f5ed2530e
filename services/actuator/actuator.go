// Package actuator mirrors the shared alert flag onto the indicator LED.
package actuator

import (
	"context"
	"errors"
	"time"

	"aquamon-go/bus"
	"aquamon-go/errcode"
	"aquamon-go/services/alert"
	"aquamon-go/types"
	"aquamon-go/x/timex"
)

// Line is the output the worker drives. *hal.Handle satisfies it.
type Line interface {
	Pin() int
	SetValue(ctx context.Context, v int) error
}

type Worker struct {
	line     Line
	state    *alert.State
	interval time.Duration

	level int // last level driven successfully, -1 before the first
}

func New(line Line, state *alert.State, interval time.Duration) (*Worker, error) {
	if line == nil || state == nil {
		return nil, &errcode.E{C: errcode.InvalidConfig, Op: "actuator.new", Msg: "missing line or alert state"}
	}
	if interval <= 0 {
		return nil, &errcode.E{C: errcode.InvalidConfig, Op: "actuator.new", Msg: "interval must be positive"}
	}
	return &Worker{line: line, state: state, interval: interval, level: -1}, nil
}

// Run drives the line until ctx is done, idling for the interval after
// each cycle completes. Driving 1 holds for the line's settle time first,
// so an active cycle lasts settle plus interval. Line errors are published
// and polling continues.
func (w *Worker) Run(ctx context.Context, conn *bus.Connection) error {
	idle := time.NewTimer(w.interval)
	defer idle.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}
		w.step(ctx, conn)
		idle.Reset(w.interval)
		select {
		case <-ctx.Done():
			return nil
		case <-idle.C:
		}
	}
}

func (w *Worker) step(ctx context.Context, conn *bus.Connection) {
	v := 0
	if w.state.Get() {
		v = 1
	}
	if err := w.line.SetValue(ctx, v); err != nil {
		PublishFault(conn, w.line.Pin(), "set", err)
		return
	}
	if v != w.level {
		w.level = v
		if conn != nil {
			conn.Publish(conn.NewMessage(
				bus.T(types.TokLED, types.TokValue),
				types.LEDValue{Pin: w.line.Pin(), Level: uint8(v), TS: timex.NowMs()},
				true,
			))
		}
	}
}

// PublishFault reports a line error on fault/gpio.
func PublishFault(conn *bus.Connection, pin int, op string, err error) {
	if conn == nil {
		return
	}
	msg := err.Error()
	var e *errcode.E
	if errors.As(err, &e) && e.Err != nil {
		msg = e.Err.Error()
	}
	conn.Publish(conn.NewMessage(
		bus.T(types.TokFault, types.TokGPIO),
		types.GPIOFault{Pin: pin, Op: op, Code: string(errcode.Of(err)), Err: msg, TS: timex.NowMs()},
		false,
	))
}
