package observability

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// ShutdownFunc is a function to call during shutdown
type ShutdownFunc func(context.Context) error

// ShutdownManager stops the HTTP server and then releases registered resources
// in reverse registration order.
type ShutdownManager struct {
	logger          *Logger
	server          *http.Server
	shutdownTimeout time.Duration

	mu    sync.Mutex
	names []string
	funcs []ShutdownFunc
}

// NewShutdownManager creates a new shutdown manager
func NewShutdownManager(logger *Logger, server *http.Server, timeout time.Duration) *ShutdownManager {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &ShutdownManager{
		logger:          logger,
		server:          server,
		shutdownTimeout: timeout,
	}
}

// Register adds a named shutdown step
func (sm *ShutdownManager) Register(name string, fn ShutdownFunc) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.names = append(sm.names, name)
	sm.funcs = append(sm.funcs, fn)
}

// Wait blocks until ctx is cancelled and then shuts everything down
func (sm *ShutdownManager) Wait(ctx context.Context) error {
	<-ctx.Done()
	sm.logger.Info("Shutdown requested, starting graceful shutdown")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), sm.shutdownTimeout)
	defer cancel()
	return sm.Shutdown(shutdownCtx)
}

// Shutdown stops the server and runs every step even when earlier steps fail
func (sm *ShutdownManager) Shutdown(ctx context.Context) error {
	var failed int

	if sm.server != nil {
		sm.logger.Info("Shutting down HTTP server")
		if err := sm.server.Shutdown(ctx); err != nil {
			sm.logger.WithError(err).Error("HTTP server shutdown error")
			failed++
		}
	}

	sm.mu.Lock()
	names := append([]string(nil), sm.names...)
	funcs := append([]ShutdownFunc(nil), sm.funcs...)
	sm.mu.Unlock()

	for i := len(funcs) - 1; i >= 0; i-- {
		if err := funcs[i](ctx); err != nil {
			sm.logger.WithError(err).WithField("step", names[i]).Error("Shutdown step failed")
			failed++
			continue
		}
		sm.logger.WithField("step", names[i]).Debug("Shutdown step complete")
	}

	if failed > 0 {
		return fmt.Errorf("shutdown completed with %d errors", failed)
	}
	sm.logger.Info("Graceful shutdown complete")
	return nil
}
