package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"remindbot/internal/eventbus"
	logx "remindbot/pkg/logx"
)

func startEngine(t *testing.T, cfg Config, bus eventbus.Bus) *Service {
	t.Helper()
	s := New(cfg, logx.Nop(), bus)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func TestEnqueueRunsTask(t *testing.T) {
	t.Parallel()
	s := startEngine(t, Config{Workers: 2}, nil)

	done := make(chan struct{})
	if err := s.Enqueue(Task{Name: "scan", Run: func(ctx context.Context) error {
		close(done)
		return nil
	}}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not run")
	}
}

func TestOverlapSkipIfRunning(t *testing.T) {
	t.Parallel()
	s := startEngine(t, Config{Workers: 2}, nil)

	st := &RunState{}
	release := make(chan struct{})
	started := make(chan struct{})
	task := Task{Name: "reminder.scan:1", Overlap: OverlapSkipIfRunning, State: st, Run: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}}
	if err := s.Enqueue(task); err != nil {
		t.Fatalf("first Enqueue: %v", err)
	}
	<-started

	second := task
	second.Run = func(ctx context.Context) error { return nil }
	if err := s.Enqueue(second); !errors.Is(err, ErrOverlapSkip) {
		t.Fatalf("second Enqueue err = %v, want ErrOverlapSkip", err)
	}
	close(release)

	// After completion the state is released and the task runs again.
	deadline := time.Now().Add(2 * time.Second)
	for {
		err := s.Enqueue(second)
		if err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("state never released: %v", err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := s.Snapshot().Skipped; got < 1 {
		t.Fatalf("Skipped = %d, want >= 1", got)
	}
}

func TestPanicAndTimeoutBecomeFailures(t *testing.T) {
	t.Parallel()
	bus := eventbus.New()
	ch, unsub := bus.Subscribe(8)
	defer unsub()
	s := startEngine(t, Config{Workers: 1, DefaultTimeout: 20 * time.Millisecond}, bus)

	if err := s.Enqueue(Task{Name: "boom", Run: func(ctx context.Context) error { panic("bad") }}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if err := s.Enqueue(Task{Name: "slow", Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	failed := map[string]bool{}
	timeout := time.After(2 * time.Second)
	for len(failed) < 2 {
		select {
		case e := <-ch:
			if e.Type == eventbus.TaskFailed {
				failed[e.Data.(TaskEvent).Name] = true
			}
		case <-timeout:
			t.Fatalf("failures seen: %v", failed)
		}
	}
	if len(s.Snapshot().History) < 2 {
		t.Fatal("history should record both runs")
	}
}

func TestEnqueueBeforeStart(t *testing.T) {
	t.Parallel()
	s := New(Config{}, logx.Nop(), nil)
	err := s.Enqueue(Task{Name: "x", Run: func(context.Context) error { return nil }})
	if !errors.Is(err, ErrStopped) {
		t.Fatalf("err = %v, want ErrStopped", err)
	}
}
