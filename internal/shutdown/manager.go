package shutdown

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/NikitaDmitryuk/tube-proxy/internal/logutils"
)

const DefaultTimeout = 30 * time.Second

// Service is anything that can be stopped gracefully.
type Service interface {
	Name() string
	Shutdown(ctx context.Context) error
}

// Manager stops registered services in registration order, sharing one deadline.
type Manager struct {
	services []Service
	timeout  time.Duration
	mu       sync.RWMutex
}

func NewManager(timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{timeout: timeout}
}

func (m *Manager) Register(service Service) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.services = append(m.services, service)
	logutils.Log.WithField("service", service.Name()).Debug("Service registered for graceful shutdown")
}

// WaitForShutdown blocks until SIGINT, SIGTERM or ctx is done, then shuts everything down.
func (m *Manager) WaitForShutdown(ctx context.Context) error {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case sig := <-sigChan:
		logutils.Log.WithField("signal", sig.String()).Info("Received shutdown signal, starting graceful shutdown...")
	case <-ctx.Done():
		logutils.Log.Info("Context done, starting graceful shutdown...")
	}
	return m.Shutdown()
}

// Shutdown stops each service in turn. A service still running at the deadline
// is abandoned and the remaining ones are skipped.
func (m *Manager) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.mu.RLock()
	services := append([]Service(nil), m.services...)
	m.mu.RUnlock()

	var errs []error
	for _, svc := range services {
		log := logutils.Log.WithField("service", svc.Name())
		log.Info("Shutting down service")

		done := make(chan error, 1)
		go func() { done <- svc.Shutdown(ctx) }()

		select {
		case err := <-done:
			if err != nil {
				log.WithError(err).Error("Error during service shutdown")
				errs = append(errs, fmt.Errorf("service %s shutdown failed: %w", svc.Name(), err))
				continue
			}
			log.Info("Service shutdown completed")
		case <-ctx.Done():
			log.Warn("Shutdown timeout exceeded, forcing shutdown")
			return errors.Join(append(errs, fmt.Errorf("shutdown timeout exceeded while stopping %s", svc.Name()))...)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	logutils.Log.Info("Graceful shutdown completed successfully")
	return nil
}

// Func adapts a plain function to Service.
type Func struct {
	ServiceName string
	Fn          func(ctx context.Context) error
}

func (f Func) Name() string { return f.ServiceName }

func (f Func) Shutdown(ctx context.Context) error { return f.Fn(ctx) }
