// Package supervisor owns the LED line and the worker lifecycle.
//
// Run claims and configures the line, runs the samplers and the actuator
// until the context ends (SIGINT/SIGTERM in the binary), then drives the
// line low and releases it exactly once.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"aquamon-go/bus"
	"aquamon-go/errcode"
	"aquamon-go/services/actuator"
	"aquamon-go/services/alert"
	"aquamon-go/services/hal"
	"aquamon-go/services/sampler"
	"aquamon-go/types"
	"aquamon-go/x/timex"
)

type Config struct {
	Pin              int
	Line             hal.LineConfig
	ActuatorInterval time.Duration
}

type Supervisor struct {
	cfg      Config
	platform hal.Platform
	state    *alert.State
	samplers []*sampler.Worker
	conn     *bus.Connection
}

// New wires a supervisor. conn may be nil, in which case nothing is published.
func New(cfg Config, p hal.Platform, state *alert.State, conn *bus.Connection, samplers ...*sampler.Worker) *Supervisor {
	return &Supervisor{cfg: cfg, platform: p, state: state, samplers: samplers, conn: conn}
}

// Run returns nil after a clean shutdown. Claim and configure failures are
// fatal and returned before any worker starts.
func (s *Supervisor) Run(ctx context.Context) (err error) {
	s.publishState("starting", "")

	h, err := hal.Claim(s.platform, s.cfg.Pin, s.cfg.Line)
	if err != nil {
		s.publishState("error", string(errcode.Of(err)))
		return fmt.Errorf("claim led line: %w", err)
	}
	defer func() {
		if rerr := h.Release(); rerr != nil {
			actuator.PublishFault(s.conn, h.Pin(), "release", rerr)
			err = errors.Join(err, fmt.Errorf("release led line: %w", rerr))
		}
		if err != nil {
			s.publishState("error", string(errcode.Of(err)))
			return
		}
		s.publishState("stopped", "")
	}()

	if err := h.Configure(hal.DirOut); err != nil {
		return fmt.Errorf("configure led line: %w", err)
	}

	act, err := actuator.New(h, s.state, s.cfg.ActuatorInterval)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, w := range s.samplers {
		g.Go(func() error { return w.Run(gctx, s.conn) })
	}
	g.Go(func() error { return act.Run(gctx, s.conn) })
	s.publishState("running", "")

	werr := g.Wait()
	s.publishState("stopping", "")

	// Leave the indicator dark. ctx is already done, so use a fresh one.
	if serr := h.SetValue(context.Background(), 0); serr != nil {
		actuator.PublishFault(s.conn, h.Pin(), "set", serr)
	}
	return werr
}

func (s *Supervisor) publishState(level, status string) {
	if s.conn == nil {
		return
	}
	s.conn.Publish(s.conn.NewMessage(
		bus.T(types.TokSupervisor, types.TokState),
		types.SupervisorState{Level: level, Status: status, TS: timex.NowMs()},
		true,
	))
}
