package server

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestShutdownHandler_HookOrder(t *testing.T) {
	sh := NewShutdownHandler(time.Second)

	var mu sync.Mutex
	var order []string
	hook := func(name string) func(ctx context.Context) error {
		return func(ctx context.Context) error {
			mu.Lock()
			order = append(order, name)
			mu.Unlock()
			return nil
		}
	}

	sh.RegisterHook("store", 90, hook("store"))
	sh.RegisterHook("api", 10, hook("api"))
	sh.RegisterHook("tracing", 80, hook("tracing"))

	sh.Start()
	sh.Shutdown()
	sh.Wait()

	want := []string{"api", "tracing", "store"}
	mu.Lock()
	defer mu.Unlock()
	if len(order) != len(want) {
		t.Fatalf("expected %d hooks, ran %v", len(want), order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, order)
		}
	}
}

func TestShutdownHandler_FailedHookDoesNotBlockOthers(t *testing.T) {
	sh := NewShutdownHandler(time.Second)

	ran := make(chan struct{})
	sh.RegisterHook("broken", 10, func(ctx context.Context) error {
		return errors.New("boom")
	})
	sh.RegisterHook("after", 20, func(ctx context.Context) error {
		close(ran)
		return nil
	})

	sh.Start()
	sh.Shutdown()
	sh.Wait()

	select {
	case <-ran:
	default:
		t.Fatal("hook after a failing hook did not run")
	}
}

func TestShutdownHandler_ShutdownIdempotent(t *testing.T) {
	sh := NewShutdownHandler(time.Second)

	var calls int
	var mu sync.Mutex
	sh.RegisterHook("once", 10, func(ctx context.Context) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return nil
	})

	sh.Start()
	sh.Shutdown()
	sh.Shutdown()
	sh.Wait()

	mu.Lock()
	defer mu.Unlock()
	if calls != 1 {
		t.Fatalf("expected hook to run once, ran %d times", calls)
	}
}
