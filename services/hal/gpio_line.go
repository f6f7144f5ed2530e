// services/hal/gpio_line.go
package hal

import (
	"context"
	"strconv"
	"sync"
	"time"

	"aquamon-go/errcode"
)

// Platform is the GPIO service offered by the operating system: claim,
// configure, write and release a numbered digital line. Implementations
// return errcode-coded errors so permission and availability failures stay
// distinguishable from transient I/O.
type Platform interface {
	Export(pin int) error
	SetDirection(pin int, dir string) error
	Write(pin int, level int) error
	Unexport(pin int) error
}

type Direction string

const (
	DirIn  Direction = "in"
	DirOut Direction = "out"
)

// State of a line handle.
//
//	Unclaimed -> Claimed -> Configured(out) -> Driven(0|1)
//	any -> Released (terminal)
type State uint8

const (
	StateUnclaimed State = iota
	StateClaimed
	StateConfigured
	StateDriven
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateClaimed:
		return "claimed"
	case StateConfigured:
		return "configured"
	case StateDriven:
		return "driven"
	case StateReleased:
		return "released"
	default:
		return "unclaimed"
	}
}

// LineConfig centralises line timings.
type LineConfig struct {
	// Settle is how long SetValue(1) holds the line before returning.
	Settle time.Duration
}

// Handle is an exclusively owned claim on one output line.
// It must be released exactly once; every call after Release fails.
type Handle struct {
	mu    sync.Mutex
	p     Platform
	pin   int
	cfg   LineConfig
	state State
	dir   Direction
	level int
}

// Claim requests exclusive control of pin from the platform.
func Claim(p Platform, pin int, cfg LineConfig) (*Handle, error) {
	if err := p.Export(pin); err != nil {
		return nil, lineErr("gpio.claim", pin, err)
	}
	return &Handle{p: p, pin: pin, cfg: cfg, state: StateClaimed, level: -1}, nil
}

func (h *Handle) Pin() int { return h.pin }

func (h *Handle) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

// Level returns the last level written, or -1 if never driven.
func (h *Handle) Level() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.level
}

// Configure sets the line direction.
func (h *Handle) Configure(dir Direction) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StateReleased || h.state == StateUnclaimed {
		return h.invalid("gpio.configure", "line not claimed")
	}
	if dir != DirIn && dir != DirOut {
		return h.invalid("gpio.configure", "unknown direction "+string(dir))
	}
	if err := h.p.SetDirection(h.pin, string(dir)); err != nil {
		return lineErr("gpio.configure", h.pin, err)
	}
	h.dir = dir
	h.state = StateConfigured
	return nil
}

// SetValue drives the line to 0 or 1. Writing 1 holds the line for the
// settle duration before returning (cut short if ctx ends); writing 0
// returns immediately. Any other value is rejected.
func (h *Handle) SetValue(ctx context.Context, v int) error {
	if v != 0 && v != 1 {
		return &errcode.E{C: errcode.InvalidState, Op: "gpio.set", Msg: "invalid level " + strconv.Itoa(v)}
	}

	h.mu.Lock()
	switch {
	case h.state == StateReleased || h.state == StateUnclaimed:
		h.mu.Unlock()
		return h.invalid("gpio.set", "line not claimed")
	case h.state == StateClaimed || h.dir != DirOut:
		h.mu.Unlock()
		return h.invalid("gpio.set", "direction is not out")
	}
	if err := h.p.Write(h.pin, v); err != nil {
		h.mu.Unlock()
		return lineErr("gpio.set", h.pin, err)
	}
	h.level = v
	h.state = StateDriven
	settle := h.cfg.Settle
	h.mu.Unlock()

	if v == 1 && settle > 0 {
		t := time.NewTimer(settle)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
		}
	}
	return nil
}

// Release unexports the line and invalidates the handle. The handle is
// invalidated even when the platform reports an error.
func (h *Handle) Release() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == StateReleased {
		return h.invalid("gpio.release", "already released")
	}
	h.state = StateReleased
	if err := h.p.Unexport(h.pin); err != nil {
		return lineErr("gpio.release", h.pin, err)
	}
	return nil
}

func (h *Handle) invalid(op, msg string) error {
	return &errcode.E{C: errcode.InvalidState, Op: op, Msg: "gpio" + strconv.Itoa(h.pin) + ": " + msg}
}

// lineErr keeps platform codes and maps anything uncoded to io_failure.
func lineErr(op string, pin int, err error) error {
	c := errcode.Of(err)
	if c == errcode.Error {
		c = errcode.IOFailure
	}
	return &errcode.E{C: c, Op: op, Msg: "gpio" + strconv.Itoa(pin), Err: err}
}
