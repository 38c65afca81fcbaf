package connectivity

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sort"
	"sync"
	"time"
)

// Registry owns one CircuitBreaker per external service name. It is created
// once by the caller and injected into every component that talks to an
// external provider, so breaker state is shared per service.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*CircuitBreaker
	opts     []BreakerOption
	logger   *slog.Logger
}

// NewRegistry creates a registry. opts apply to every breaker it creates.
func NewRegistry(logger *slog.Logger, opts ...BreakerOption) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		breakers: make(map[string]*CircuitBreaker),
		opts:     opts,
		logger:   logger,
	}
}

// Breaker returns the breaker for service, creating it on first use.
func (r *Registry) Breaker(service string) *CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	cb, ok := r.breakers[service]
	if !ok {
		cb = NewCircuitBreaker(r.opts...)
		r.breakers[service] = cb
	}
	return cb
}

// Do runs fn under the service's breaker. An open breaker skips fn and
// returns *ErrCircuitOpen. A positive timeout bounds the call; exceeding it
// returns *ErrCallTimeout. Any error (including a recovered panic) counts as
// a failure; a nil error resets the breaker.
func (r *Registry) Do(ctx context.Context, service string, timeout time.Duration, fn func(ctx context.Context) error) error {
	cb := r.Breaker(service)
	if !cb.Allow() {
		return &ErrCircuitOpen{Service: service}
	}

	callCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	err := r.call(callCtx, service, fn)
	if err != nil && timeout > 0 && errors.Is(callCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = &ErrCallTimeout{Service: service}
	}

	if err != nil {
		cb.RecordFailure()
		if cb.State() == BreakerOpen {
			r.logger.Warn("connectivity: breaker opened", "service", service, "failures", cb.Failures())
		}
		return err
	}
	cb.RecordSuccess()
	return nil
}

func (r *Registry) call(ctx context.Context, service string, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error("connectivity: call panicked", "service", service, "panic", v, "stack", string(debug.Stack()))
			err = &ErrPanic{Service: service, Value: v}
		}
	}()
	return fn(ctx)
}

// BreakerStatus is a point-in-time view of one breaker.
type BreakerStatus struct {
	Service  string `json:"service"`
	State    string `json:"state"`
	Failures int    `json:"failures"`
}

// Snapshot lists every known breaker sorted by service name.
func (r *Registry) Snapshot() []BreakerStatus {
	r.mu.Lock()
	names := make([]string, 0, len(r.breakers))
	for name := range r.breakers {
		names = append(names, name)
	}
	r.mu.Unlock()
	sort.Strings(names)

	out := make([]BreakerStatus, 0, len(names))
	for _, name := range names {
		cb := r.Breaker(name)
		out = append(out, BreakerStatus{Service: name, State: cb.State().String(), Failures: cb.Failures()})
	}
	return out
}
