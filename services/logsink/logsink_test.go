package logsink

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"aquamon-go/bus"
	"aquamon-go/errcode"
	"aquamon-go/types"
)

type syncBuffer struct {
	mu sync.Mutex
	b  bytes.Buffer
}

func (s *syncBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.Write(p)
}

func (s *syncBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.b.String()
}

func waitFor(t *testing.T, buf *syncBuffer, substr string) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !strings.Contains(buf.String(), substr) {
		if time.Now().After(deadline) {
			t.Fatalf("log never contained %q; got:\n%s", substr, buf.String())
		}
		time.Sleep(time.Millisecond)
	}
}

func TestEventsAreLogged(t *testing.T) {
	buf := &syncBuffer{}
	log := NewLogger(buf, "text", slog.LevelDebug)
	s := New(log, "run-1", 0)

	b := bus.NewBus(16)
	conn := b.NewConnection("test")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx, conn); err != nil {
		t.Fatal(err)
	}

	pub := conn
	pub.Publish(pub.NewMessage(bus.T(types.TokReading, string(types.KindTemperature)),
		types.ReadingEvent{Kind: types.KindTemperature, Raw: 2275, Value: 50, Unit: "C", Over: true}, true))
	pub.Publish(pub.NewMessage(bus.T(types.TokAlert, types.TokTransition),
		types.AlertEvent{Active: true, Cause: types.KindTemperature, Value: 50}, false))
	pub.Publish(pub.NewMessage(bus.T(types.TokFault, types.TokGPIO),
		types.GPIOFault{Pin: 49, Op: "set", Code: "io_failure", Err: "EIO"}, false))
	pub.Publish(pub.NewMessage(bus.T(types.TokLED, types.TokValue),
		types.LEDValue{Pin: 49, Level: 1}, true))

	waitFor(t, buf, "msg=reading")
	waitFor(t, buf, `msg="alert raised"`)
	waitFor(t, buf, "code=io_failure")
	waitFor(t, buf, "msg=led")
	if !strings.Contains(buf.String(), "run_id=run-1") {
		t.Fatalf("run id missing:\n%s", buf.String())
	}
}

func TestStatusLine(t *testing.T) {
	buf := &syncBuffer{}
	s := New(NewLogger(buf, "text", slog.LevelInfo), "r", 5*time.Millisecond)
	conn := bus.NewBus(16).NewConnection("test")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := s.Start(ctx, conn); err != nil {
		t.Fatal(err)
	}

	conn.Publish(conn.NewMessage(bus.T(types.TokReading, string(types.KindWaterQuality)),
		types.ReadingEvent{Kind: types.KindWaterQuality, Value: 512, Unit: "ppm"}, true))

	waitFor(t, buf, "tds_ppm=512")
	if strings.Contains(buf.String(), "msg=reading") {
		t.Fatal("debug reading logged at info level")
	}
}

func TestStopDrainsQueue(t *testing.T) {
	buf := &syncBuffer{}
	s := New(NewLogger(buf, "text", slog.LevelInfo), "r", 0)
	conn := bus.NewBus(16).NewConnection("test")
	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx, conn); err != nil {
		t.Fatal(err)
	}

	conn.Publish(conn.NewMessage(bus.T(types.TokSupervisor, types.TokState),
		types.SupervisorState{Level: "stopped"}, true))
	cancel()
	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("sink did not stop")
	}
	if !strings.Contains(buf.String(), "state=stopped") {
		t.Fatalf("final state lost:\n%s", buf.String())
	}
}

func TestStartRequiresConnection(t *testing.T) {
	s := New(NewLogger(&bytes.Buffer{}, "text", slog.LevelInfo), "r", 0)
	if err := s.Start(context.Background(), nil); errcode.Of(err) != errcode.InvalidConfig {
		t.Fatalf("Start(nil)=%v", err)
	}
}

func TestJSONLoggerAndRunID(t *testing.T) {
	var buf bytes.Buffer
	id := NewRunID()
	if _, err := uuid.Parse(id); err != nil {
		t.Fatalf("run id %q: %v", id, err)
	}
	NewLogger(&buf, "json", slog.LevelInfo).With("run_id", id).Info("hello")

	var rec map[string]any
	if err := json.Unmarshal(buf.Bytes(), &rec); err != nil {
		t.Fatalf("not json: %v: %s", err, buf.String())
	}
	if rec["run_id"] != id || rec["msg"] != "hello" {
		t.Fatalf("record=%v", rec)
	}
}
