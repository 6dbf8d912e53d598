package iosvc

import (
	stderrors "errors"
	"testing"

	"github.com/wippyai/freelan-binding/errors"
	"github.com/wippyai/freelan-binding/native"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

func TestService_PostRun(t *testing.T) {
	svc := newService(t)

	var calls [][]any
	if _, err := svc.Post(func(args ...any) { calls = append(calls, args) }, "tap0", 1500); err != nil {
		t.Fatal(err)
	}
	if svc.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", svc.Pending())
	}
	if len(calls) != 0 {
		t.Fatal("task ran before Run")
	}

	ran, err := svc.Run()
	if err != nil {
		t.Fatalf("Run() = %v", err)
	}
	if ran != 1 || len(calls) != 1 {
		t.Fatalf("ran = %d, calls = %d", ran, len(calls))
	}
	if len(calls[0]) != 2 || calls[0][0] != "tap0" || calls[0][1] != 1500 {
		t.Errorf("args = %v", calls[0])
	}
	if svc.Pending() != 0 {
		t.Errorf("Pending() = %d after Run", svc.Pending())
	}

	if ran, _ := svc.Run(); ran != 0 {
		t.Errorf("second Run() = %d", ran)
	}
}

func TestService_DrainToEmpty(t *testing.T) {
	svc := newService(t)

	var order []string
	_, err := svc.PostFunc(func() {
		order = append(order, "first")
		if _, err := svc.PostFunc(func() {
			order = append(order, "reposted")
			svc.PostFunc(func() { order = append(order, "nested") })
		}); err != nil {
			t.Errorf("Post from task: %v", err)
		}
	})
	if err != nil {
		t.Fatal(err)
	}
	svc.PostFunc(func() { order = append(order, "second") })

	ran, err := svc.Run()
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"first", "second", "reposted", "nested"}
	if ran != len(want) || len(order) != len(want) {
		t.Fatalf("ran = %d, order = %v", ran, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Errorf("order = %v, want %v", order, want)
			break
		}
	}
}

func TestService_ConcurrentProducers(t *testing.T) {
	svc := newService(t)

	const producers, perProducer = 8, 100
	var count atomic.Int64
	var g errgroup.Group
	for p := 0; p < producers; p++ {
		g.Go(func() error {
			for i := 0; i < perProducer; i++ {
				if _, err := svc.PostFunc(func() { count.Inc() }); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatal(err)
	}

	ran, err := svc.Run()
	if err != nil {
		t.Fatal(err)
	}
	if ran != producers*perProducer || count.Load() != producers*perProducer {
		t.Errorf("ran = %d, count = %d", ran, count.Load())
	}
}

func TestService_ProducersDuringRun(t *testing.T) {
	svc := newService(t)

	var count atomic.Int64
	var g errgroup.Group
	for p := 0; p < 4; p++ {
		g.Go(func() error {
			for i := 0; i < 50; i++ {
				if _, err := svc.PostFunc(func() { count.Inc() }); err != nil {
					return err
				}
			}
			return nil
		})
	}
	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	total := 0
	for finished := false; !finished; {
		select {
		case err := <-done:
			if err != nil {
				t.Fatal(err)
			}
			finished = true
		default:
		}
		ran, err := svc.Run()
		if err != nil {
			t.Fatal(err)
		}
		total += ran
	}

	if total != 200 || count.Load() != 200 {
		t.Errorf("total = %d, count = %d", total, count.Load())
	}
}

func TestService_TaskIDs(t *testing.T) {
	svc := newService(t)

	seen := make(map[TaskID]bool)
	for i := 0; i < 10; i++ {
		id, err := svc.PostFunc(func() {})
		if err != nil {
			t.Fatal(err)
		}
		if id == 0 || seen[id] {
			t.Fatalf("id %d zero or duplicated among pending tasks", id)
		}
		seen[id] = true
	}
	if _, err := svc.Run(); err != nil {
		t.Fatal(err)
	}
}

func TestService_PanicRecovery(t *testing.T) {
	svc := newService(t)

	ran := false
	svc.PostFunc(func() { panic("adapter gone") })
	svc.PostFunc(func() { ran = true })

	n, err := svc.Run()
	if n != 2 || !ran {
		t.Errorf("n = %d, second task ran = %v", n, ran)
	}
	var e *errors.Error
	if !stderrors.As(err, &e) || e.Kind != errors.KindTaskPanic || e.Value != "adapter gone" {
		t.Errorf("Run() = %v, want a task panic", err)
	}

	if _, err := svc.Run(); err != nil {
		t.Errorf("panic reported twice: %v", err)
	}
}

func TestService_RunFromTask(t *testing.T) {
	svc := newService(t)

	var nested error
	svc.PostFunc(func() {
		_, nested = svc.Run()
	})
	if _, err := svc.Run(); err != nil {
		t.Fatal(err)
	}

	var snap *errors.NativeError
	if !stderrors.As(nested, &snap) || snap.Category != native.CategoryIOService || snap.Code != native.CodeBusy {
		t.Errorf("nested Run() = %v, want a busy error", nested)
	}
}

func TestService_TaskUsesErrorContext(t *testing.T) {
	svc := newService(t)

	var inner error
	svc.PostFunc(func() {
		inner = contexts.Do(func(h native.Ptr) error {
			lib.ErrorContextSetError(h, "system", 2, "no such device", "", 0)
			return nil
		})
	})
	if _, err := svc.Run(); err != nil {
		t.Errorf("task's error leaked into Run(): %v", err)
	}
	if !stderrors.Is(inner, errors.ErrNativeOperation) {
		t.Errorf("task Do() = %v", inner)
	}
}

func TestService_Close(t *testing.T) {
	svc := newService(t)

	for i := 0; i < 3; i++ {
		svc.PostFunc(func() { t.Error("dropped task ran") })
	}
	if err := svc.Close(); err != nil {
		t.Fatal(err)
	}
	if err := svc.Close(); err != nil {
		t.Errorf("second Close() = %v", err)
	}

	closed := &errors.Error{Phase: errors.PhasePost, Kind: errors.KindClosed}
	if _, err := svc.PostFunc(func() {}); !stderrors.Is(err, closed) {
		t.Errorf("Post() after Close = %v", err)
	}
	if _, err := svc.Run(); !stderrors.Is(err, closed) {
		t.Errorf("Run() after Close = %v", err)
	}
	if svc.Pending() != 0 {
		t.Errorf("Pending() = %d", svc.Pending())
	}
}

func TestService_InvalidInput(t *testing.T) {
	svc := newService(t)
	if _, err := svc.Post(nil); err == nil {
		t.Error("Post(nil) should fail")
	}
	if _, err := svc.PostFunc(nil); err == nil {
		t.Error("PostFunc(nil) should fail")
	}
}
