package server

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
)

// ShutdownHook is one step of the shutdown sequence. Lower priority runs
// first.
type ShutdownHook struct {
	Name     string
	Priority int
	Fn       func(ctx context.Context) error
}

// ShutdownHandler runs registered hooks in priority order when a signal
// arrives or Shutdown is called.
type ShutdownHandler struct {
	mu           sync.Mutex
	hooks        []ShutdownHook
	timeout      time.Duration
	signals      []os.Signal
	log          *log.Logger
	shutdownCh   chan struct{}
	doneCh       chan struct{}
	started      bool
	shutdownOnce sync.Once
	doneOnce     sync.Once
}

// NewShutdownHandler creates a handler listening for SIGTERM and SIGINT with
// the given grace period (30s when zero).
func NewShutdownHandler(timeout time.Duration) *ShutdownHandler {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownHandler{
		timeout:    timeout,
		signals:    []os.Signal{syscall.SIGTERM, syscall.SIGINT},
		log:        log.New(os.Stderr).With("component", "shutdown"),
		shutdownCh: make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// RegisterHook adds a shutdown hook.
func (s *ShutdownHandler) RegisterHook(hook ShutdownHook) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.hooks = append(s.hooks, hook)
	sort.SliceStable(s.hooks, func(i, j int) bool {
		return s.hooks[i].Priority < s.hooks[j].Priority
	})
}

// Start begins listening for shutdown signals.
func (s *ShutdownHandler) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, s.signals...)

	go func() {
		select {
		case sig := <-sigCh:
			s.log.Info("signal received", "signal", sig)
		case <-s.shutdownCh:
		}
		signal.Stop(sigCh)
		s.runHooks()
	}()
}

// Shutdown triggers the shutdown sequence manually.
func (s *ShutdownHandler) Shutdown() {
	s.shutdownOnce.Do(func() {
		close(s.shutdownCh)
	})
}

// Wait blocks until the shutdown sequence completes.
func (s *ShutdownHandler) Wait() {
	<-s.doneCh
}

// ShutdownCh closes when shutdown starts.
func (s *ShutdownHandler) ShutdownCh() <-chan struct{} {
	return s.shutdownCh
}

func (s *ShutdownHandler) runHooks() {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	s.mu.Lock()
	hooks := make([]ShutdownHook, len(s.hooks))
	copy(hooks, s.hooks)
	s.mu.Unlock()

	for _, hook := range hooks {
		if err := hook.Fn(ctx); err != nil {
			s.log.Error("shutdown hook failed", "hook", hook.Name, "error", err)
		}
	}
	s.doneOnce.Do(func() {
		close(s.doneCh)
	})
}

// Hook constructors for the worker's dependencies.

// HealthServerShutdownHook stops the HTTP surface first so probes fail fast.
func HealthServerShutdownHook(health *HealthServer) ShutdownHook {
	return ShutdownHook{
		Name:     "health-server",
		Priority: 10,
		Fn: func(context.Context) error {
			health.Shutdown()
			return nil
		},
	}
}

// TemporalWorkerShutdownHook drains the worker after the HTTP surface.
func TemporalWorkerShutdownHook(stop func()) ShutdownHook {
	return ShutdownHook{
		Name:     "temporal-worker",
		Priority: 20,
		Fn: func(context.Context) error {
			stop()
			return nil
		},
	}
}

// TracingShutdownHook flushes spans before the stores close.
func TracingShutdownHook(shutdown func(ctx context.Context) error) ShutdownHook {
	return ShutdownHook{Name: "tracing", Priority: 80, Fn: shutdown}
}

// VectorStoreShutdownHook closes the Qdrant connection late.
func VectorStoreShutdownHook(closeFn func() error) ShutdownHook {
	return ShutdownHook{
		Name:     "vector-store",
		Priority: 90,
		Fn: func(context.Context) error {
			return closeFn()
		},
	}
}

// GraphStoreShutdownHook closes the Neo4j driver late.
func GraphStoreShutdownHook(closeFn func(ctx context.Context) error) ShutdownHook {
	return ShutdownHook{Name: "graph-store", Priority: 90, Fn: closeFn}
}
