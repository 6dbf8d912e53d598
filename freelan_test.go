package freelan

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	ferrors "github.com/wippyai/freelan-binding/errors"
	"github.com/wippyai/freelan-binding/native"
	"github.com/wippyai/freelan-binding/value"
)

func openTracked(t *testing.T) *Binding {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Memory.Track = true
	b, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() {
		if err := b.Close(context.Background()); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return b
}

func TestOpen_Defaults(t *testing.T) {
	b, err := Open(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close(context.Background())

	if b.Ledger() != nil {
		t.Error("ledger should be nil without tracking")
	}
	if b.Library().MemoryFunctionsInstalled() {
		t.Error("default allocator should be active")
	}
	if got := len(b.Values().TypeNames()); got != 11 {
		t.Errorf("TypeNames() = %d, want 11", got)
	}
}

func TestOpen_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Heap.MaxPages = 0
	_, err := Open(context.Background(), cfg)
	if err == nil {
		t.Fatal("expected error")
	}
	var e *ferrors.Error
	if !errors.As(err, &e) || e.Phase != ferrors.PhaseConfig {
		t.Errorf("err = %v", err)
	}
}

func TestBinding_Tracked(t *testing.T) {
	b := openTracked(t)

	if !b.Ledger().Installed() || !b.Library().MemoryFunctionsInstalled() {
		t.Fatal("ledger should be installed")
	}

	report, err := b.Ledger().Check(func() error {
		ep, err := value.Parse[value.EndpointOf[value.IPv4]](b.Values(), "9.0.0.1:12000")
		if err != nil {
			return err
		}
		defer ep.Close()

		port, err := value.EndpointPort(ep)
		if err != nil {
			return err
		}
		defer port.Close()

		if s := port.String(); s != "12000" {
			t.Errorf("port = %q", s)
		}
		b.Quiesce()
		return nil
	})
	if err != nil {
		t.Fatalf("Check: %v\n%s", err, report)
	}
	if report.Stats.Allocations == 0 {
		t.Error("no allocations recorded")
	}
}

func TestBinding_LeakDetected(t *testing.T) {
	b := openTracked(t)

	var leaked value.Any
	report, err := b.Ledger().Check(func() error {
		v, err := b.Values().ParseAny(native.Hostname, "example.org")
		leaked = v
		b.Quiesce()
		return err
	})
	if !errors.Is(err, ferrors.ErrMemoryLeak) {
		t.Fatalf("err = %v, want memory leak", err)
	}
	if len(report.Leaks) != 1 || report.Leaks[0].Address != leaked.Handle() {
		t.Errorf("leaks = %v", report.Leaks)
	}
	leaked.Close()
}

func TestBinding_CloseIdempotent(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Memory.Track = true
	b, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := b.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if b.Ledger().Installed() {
		t.Error("ledger still installed after Close")
	}
	if err := b.Close(context.Background()); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

func TestBinding_IOService(t *testing.T) {
	b := openTracked(t)
	s := b.Ledger().Snapshot()

	svc, err := b.NewIOService()
	if err != nil {
		t.Fatal(err)
	}
	var got []int
	for i := 1; i <= 3; i++ {
		if _, err := svc.Post(func(args ...any) { got = append(got, args[0].(int)) }, i); err != nil {
			t.Fatal(err)
		}
	}
	n, err := svc.Run()
	if err != nil || n != 3 {
		t.Fatalf("Run() = %d, %v", n, err)
	}
	if len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Errorf("order = %v", got)
	}
	if err := svc.Close(); err != nil {
		t.Fatal(err)
	}

	b.Quiesce()
	if err := b.Ledger().Diff(s).Err(); err != nil {
		t.Error(err)
	}
}

func TestLogBridge(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prev := Logger()
	SetLogger(zap.New(core))
	defer SetLogger(prev)

	cfg := DefaultConfig()
	cfg.Log.Level = "debug"
	b, err := Open(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close(context.Background())

	if _, err := b.Values().ParseAny(native.IPv4Address, "127.1"); !errors.Is(err, ferrors.ErrInvalidValueFormat) {
		t.Fatalf("err = %v", err)
	}

	entries := logs.FilterMessage("parse_failed").All()
	if len(entries) != 1 {
		t.Fatalf("got %d parse_failed entries", len(entries))
	}
	e := entries[0]
	if e.LoggerName != "native" || e.Level != zapcore.DebugLevel {
		t.Errorf("entry = %+v", e.Entry)
	}
	fields := e.ContextMap()
	if fields["domain"] != native.CategoryValue || fields["type"] != native.IPv4Address || fields["text"] != "127.1" {
		t.Errorf("fields = %v", fields)
	}
}

func TestLogBridge_Threshold(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	prev := Logger()
	SetLogger(zap.New(core))
	defer SetLogger(prev)

	b, err := Open(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer b.Close(context.Background())

	b.Values().ParseAny(native.IPv4Address, "incorrect value")
	if n := logs.FilterMessage("parse_failed").Len(); n != 0 {
		t.Errorf("debug entry forwarded at information threshold (%d)", n)
	}
}

func TestZapLevel(t *testing.T) {
	tests := []struct {
		level native.LogLevel
		want  zapcore.Level
	}{
		{native.LogTrace, zapcore.DebugLevel},
		{native.LogDebug, zapcore.DebugLevel},
		{native.LogInformation, zapcore.InfoLevel},
		{native.LogImportant, zapcore.InfoLevel},
		{native.LogWarning, zapcore.WarnLevel},
		{native.LogError, zapcore.ErrorLevel},
		{native.LogFatal, zapcore.ErrorLevel},
	}
	for _, tt := range tests {
		if got := zapLevel(tt.level); got != tt.want {
			t.Errorf("zapLevel(%v) = %v, want %v", tt.level, got, tt.want)
		}
	}
}
