// Package logsink turns bus traffic into structured log lines and emits a
// periodic status line summarising the last known state.
package logsink

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"aquamon-go/bus"
	"aquamon-go/errcode"
	"aquamon-go/types"
)

// NewLogger builds the process logger. format is "json" or anything else
// for text.
func NewLogger(w io.Writer, format string, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// NewRunID returns an identifier for this process run.
func NewRunID() string { return uuid.NewString() }

type Service struct {
	log   *slog.Logger
	every time.Duration // status period, 0 disables
	done  chan struct{}

	// last known state, owned by the service goroutine
	last    map[types.Kind]float64
	alertOn bool
	led     int
	faults  int
}

// New returns a sink logging through log with a run_id attribute.
func New(log *slog.Logger, runID string, every time.Duration) *Service {
	return &Service{
		log:   log.With("run_id", runID),
		every: every,
		done:  make(chan struct{}),
		last:  map[types.Kind]float64{},
		led:   -1,
	}
}

// Start subscribes before returning so nothing published afterwards is
// missed, then serves until ctx ends.
func (s *Service) Start(ctx context.Context, conn *bus.Connection) error {
	if conn == nil {
		return &errcode.E{C: errcode.InvalidConfig, Op: "logsink.start", Msg: "nil connection"}
	}
	sub := conn.Subscribe(bus.T("#"))
	go s.serviceLoop(ctx, conn, sub)
	return nil
}

// Done is closed once the service has drained and stopped.
func (s *Service) Done() <-chan struct{} { return s.done }

func (s *Service) serviceLoop(ctx context.Context, conn *bus.Connection, sub *bus.Subscription) {
	defer close(s.done)
	defer conn.Disconnect()

	var tickC <-chan time.Time
	if s.every > 0 {
		tick := time.NewTicker(s.every)
		defer tick.Stop()
		tickC = tick.C
	}

	for {
		select {
		case <-ctx.Done():
			// Flush what is already queued.
			for {
				select {
				case msg := <-sub.Channel():
					s.handle(msg)
				default:
					s.log.Debug("logsink stopping", "conn", conn.ID())
					return
				}
			}
		case <-tickC:
			s.status()
		case msg, ok := <-sub.Channel():
			if !ok {
				return
			}
			s.handle(msg)
		}
	}
}

func (s *Service) handle(msg *bus.Message) {
	topic := msg.Topic.String()
	switch p := msg.Payload.(type) {
	case types.ReadingEvent:
		s.last[p.Kind] = p.Value
		s.log.Debug("reading", "topic", topic, "kind", p.Kind, "raw", p.Raw, "value", p.Value, "unit", p.Unit, "over", p.Over)
	case types.AlertEvent:
		s.alertOn = p.Active
		if p.Active {
			s.log.Warn("alert raised", "cause", p.Cause, "value", p.Value)
		} else {
			s.log.Info("alert cleared", "cause", p.Cause, "value", p.Value)
		}
	case types.SensorFault:
		s.faults++
		s.log.Error("sensor read failed", "kind", p.Kind, "source", p.Source, "code", p.Code, "err", p.Err)
	case types.GPIOFault:
		s.faults++
		s.log.Error("gpio operation failed", "pin", p.Pin, "op", p.Op, "code", p.Code, "err", p.Err)
	case types.LEDValue:
		s.led = int(p.Level)
		s.log.Info("led", "pin", p.Pin, "level", p.Level)
	case types.SupervisorState:
		if p.Level == "error" {
			s.log.Error("supervisor", "state", p.Level, "status", p.Status)
		} else {
			s.log.Info("supervisor", "state", p.Level, "status", p.Status)
		}
	default:
		s.log.Debug("unhandled message", "topic", topic)
	}
}

func (s *Service) status() {
	attrs := []any{"alert", s.alertOn, "led", s.led, "faults", s.faults}
	if v, ok := s.last[types.KindTemperature]; ok {
		attrs = append(attrs, "temperature_c", v)
	}
	if v, ok := s.last[types.KindWaterQuality]; ok {
		attrs = append(attrs, "tds_ppm", v)
	}
	s.log.Info("status", attrs...)
}
