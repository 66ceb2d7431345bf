package server

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"
)

// ShutdownHandler runs registered hooks in priority order when the process
// receives SIGTERM or SIGINT, or when Shutdown is called.
type ShutdownHandler struct {
	mu           sync.Mutex
	hooks        []shutdownHook
	timeout      time.Duration
	started      bool
	shutdownCh   chan struct{}
	doneCh       chan struct{}
	shutdownOnce sync.Once
	doneOnce     sync.Once
}

type shutdownHook struct {
	name     string
	priority int // lower runs first
	fn       func(ctx context.Context) error
}

// NewShutdownHandler creates a handler with the given grace period.
// Zero means 30 seconds.
func NewShutdownHandler(timeout time.Duration) *ShutdownHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownHandler{
		timeout:    timeout,
		shutdownCh: make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// RegisterHook adds a shutdown hook. Lower priority runs first, so the HTTP
// listener (stop accepting work) goes before store connections (release
// resources).
func (s *ShutdownHandler) RegisterHook(name string, priority int, fn func(ctx context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, shutdownHook{name: name, priority: priority, fn: fn})
	sort.SliceStable(s.hooks, func(i, j int) bool { return s.hooks[i].priority < s.hooks[j].priority })
}

// Start begins listening for termination signals.
func (s *ShutdownHandler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		select {
		case sig := <-sigCh:
			slog.Info("received signal, shutting down", "signal", sig.String())
		case <-s.shutdownCh:
		}
		signal.Stop(sigCh)
		s.runHooks()
	}()
}

// Shutdown triggers shutdown without a signal.
func (s *ShutdownHandler) Shutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdownCh)
	})
}

// Wait blocks until every hook has run.
func (s *ShutdownHandler) Wait() {
	<-s.doneCh
}

func (s *ShutdownHandler) runHooks() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.mu.Lock()
	hooks := make([]shutdownHook, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()

	for _, hook := range hooks {
		if err := hook.fn(ctx); err != nil {
			slog.Error("shutdown hook failed", "hook", hook.name, "error", err)
		}
	}

	s.doneOnce.Do(func() {
		close(s.doneCh)
	})
}
