package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestManager_RunFailureTriggersShutdownInOrder(t *testing.T) {
	m := NewManager()
	var mu sync.Mutex
	var order []string
	record := func(name string) {
		mu.Lock()
		order = append(order, name)
		mu.Unlock()
	}

	boom := errors.New("boom")
	m.AddRun("failing", func(context.Context) error { return boom })
	m.AddRun("blocking", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	m.AddShutdown("first", func(context.Context) error { record("first"); return nil })
	m.AddShutdown("second", func(context.Context) error { record("second"); return nil })

	err := m.StartAndWait(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("run error lost: %v", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("shutdown order wrong: %v", order)
	}
}

func TestManager_ParentCancelStopsRunJobs(t *testing.T) {
	m := NewManager()
	started := make(chan struct{})
	m.AddRun("blocking", func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		return ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.StartAndWait(ctx) }()
	<-started
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("cancellation surfaced as error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("manager did not stop on parent cancel")
	}
}

func TestManager_AllJobsFinishingEndsTheWait(t *testing.T) {
	m := NewManager()
	m.AddRun("quick", func(context.Context) error { return nil })
	shut := false
	m.AddShutdown("cleanup", func(context.Context) error { shut = true; return nil })
	if err := m.StartAndWait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !shut {
		t.Fatal("shutdown jobs skipped")
	}
}

func TestManager_ShutdownErrorsJoin(t *testing.T) {
	m := NewManager()
	m.AddRun("quick", func(context.Context) error { return nil })
	shutErr := errors.New("close failed")
	m.AddShutdown("bad", func(context.Context) error { return shutErr })
	if err := m.StartAndWait(context.Background()); !errors.Is(err, shutErr) {
		t.Fatalf("shutdown error lost: %v", err)
	}
}
