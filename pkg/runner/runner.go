package runner

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Runner manages the lifecycle of multiple services.
type Runner struct {
	services        []Service
	logger          Logger
	shutdownTimeout time.Duration
	startupTimeout  time.Duration
	handleSignals   bool
}

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets the logger for the runner.
func WithLogger(logger Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// WithShutdownTimeout sets the timeout for graceful shutdown.
// Default is 30 seconds.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(r *Runner) {
		r.shutdownTimeout = timeout
	}
}

// WithStartupTimeout sets the timeout for each service's Start.
// Default is 1 minute.
func WithStartupTimeout(timeout time.Duration) Option {
	return func(r *Runner) {
		r.startupTimeout = timeout
	}
}

// WithSignalHandling makes Run shut down on SIGINT or SIGTERM.
func WithSignalHandling() Option {
	return func(r *Runner) {
		r.handleSignals = true
	}
}

// New creates a new Runner with the given services and options.
func New(services []Service, opts ...Option) *Runner {
	r := &Runner{
		services:        services,
		logger:          noopLogger{},
		shutdownTimeout: 30 * time.Second,
		startupTimeout:  time.Minute,
	}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// Run starts all services in registration order and blocks until ctx is
// cancelled or a FailureReporter reports an error. Services are then stopped
// in reverse order. A cancelled ctx is a clean shutdown and returns nil.
func (r *Runner) Run(ctx context.Context) error {
	if r.handleSignals {
		var stop context.CancelFunc
		ctx, stop = SignalContext(ctx)
		defer stop()
	}

	r.logger.Info("starting services", "count", len(r.services))
	started := make([]Service, 0, len(r.services))

	for _, service := range r.services {
		r.logger.Info("starting service", "service", service.Name())

		startCtx, startCancel := context.WithTimeout(ctx, r.startupTimeout)
		err := service.Start(startCtx)
		startCancel()

		if err != nil {
			r.logger.Error("failed to start service",
				"service", service.Name(),
				"error", err)

			startErr := fmt.Errorf("start service %s: %w", service.Name(), err)
			return errors.Join(startErr, r.stopServices(started))
		}

		started = append(started, service)
		r.logger.Info("service started", "service", service.Name())
	}

	r.logger.Info("all services started successfully")

	runErr := r.wait(ctx, started)
	if runErr != nil {
		r.logger.Error("service failed, shutting down", "error", runErr)
	} else {
		r.logger.Info("shutting down services gracefully", "timeout", r.shutdownTimeout)
	}

	return errors.Join(runErr, r.stopServices(started))
}

// wait blocks until ctx is done or a started service reports a failure.
func (r *Runner) wait(ctx context.Context, services []Service) error {
	done := make(chan struct{})
	defer close(done)

	failures := make(chan error, len(services))
	for _, service := range services {
		fr, ok := service.(FailureReporter)
		if !ok {
			continue
		}
		go func() {
			select {
			case err, ok := <-fr.Failed():
				if ok && err != nil {
					failures <- fmt.Errorf("service %s failed: %w", fr.Name(), err)
				}
			case <-done:
			}
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-failures:
		return err
	}
}

// stopServices stops services one at a time in reverse order, sharing a single
// shutdown deadline.
func (r *Runner) stopServices(services []Service) error {
	if len(services) == 0 {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), r.shutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(services) - 1; i >= 0; i-- {
		svc := services[i]
		r.logger.Info("stopping service", "service", svc.Name())

		if err := svc.Stop(shutdownCtx); err != nil {
			r.logger.Error("error stopping service",
				"service", svc.Name(),
				"error", err)
			errs = append(errs, fmt.Errorf("stop %s: %w", svc.Name(), err))
			continue
		}

		r.logger.Info("service stopped", "service", svc.Name())
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	r.logger.Info("all services stopped successfully")
	return nil
}

// HealthCheck checks every service that implements HealthChecker and joins
// the failures.
func (r *Runner) HealthCheck(ctx context.Context) error {
	var errs []error
	for _, service := range r.services {
		if hc, ok := service.(HealthChecker); ok {
			if err := hc.HealthCheck(ctx); err != nil {
				errs = append(errs, fmt.Errorf("service %s unhealthy: %w", service.Name(), err))
			}
		}
	}
	return errors.Join(errs...)
}
