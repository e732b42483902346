package llm

import (
	"context"
	"strings"
	"sync"
	"time"

	"postforge/internal/core"
	"postforge/internal/logger"
)

// Backend is a text-generation provider the router can dispatch to.
type Backend interface {
	Name() string
	Generate(ctx context.Context, req core.GenerationRequest) (string, error)
}

// healthChecker is implemented by backends with a liveness probe.
type healthChecker interface {
	HealthCheck(ctx context.Context) bool
}

// contextRotator is implemented by backends whose upstream conversation
// should be reset between completions.
type contextRotator interface {
	RotateContext(ctx context.Context) error
}

// Stats counts how often each backend served a request.
type Stats struct {
	PrimaryCalls   int
	SecondaryCalls int
	Failures       int
}

// Router dispatches generation requests to a primary backend, falling back
// to a secondary one when the primary is unhealthy or fails. A completion
// that looks like a truncated JSON payload is treated as a primary failure.
type Router struct {
	primary   Backend
	secondary Backend

	mu             sync.Mutex
	primaryHealthy bool
	stats          Stats

	pacingDelay time.Duration
	sleep       func(context.Context, time.Duration) error
}

// RouterOption customizes a Router.
type RouterOption func(*Router)

// WithPacingDelay sets the pause after each successful primary completion.
func WithPacingDelay(d time.Duration) RouterOption {
	return func(r *Router) { r.pacingDelay = d }
}

// WithRouterSleep replaces the pacing sleep (used in tests).
func WithRouterSleep(fn func(context.Context, time.Duration) error) RouterOption {
	return func(r *Router) { r.sleep = fn }
}

// NewRouter builds a router over a primary and secondary backend. The
// primary's health is probed once up front; an initial context rotation
// clears any stale upstream conversation.
func NewRouter(ctx context.Context, primary, secondary Backend, opts ...RouterOption) *Router {
	r := &Router{
		primary:        primary,
		secondary:      secondary,
		primaryHealthy: true,
		pacingDelay:    3 * time.Second,
		sleep:          sleepCtx,
	}
	for _, opt := range opts {
		opt(r)
	}

	log := logger.With("router")
	if hc, ok := primary.(healthChecker); ok {
		r.primaryHealthy = hc.HealthCheck(ctx)
		if !r.primaryHealthy {
			log.Warn().Str("backend", primary.Name()).Msg("primary unhealthy at startup")
		}
	}
	if r.primaryHealthy {
		if rot, ok := primary.(contextRotator); ok {
			if err := rot.RotateContext(ctx); err != nil {
				log.Warn().Err(err).Msg("startup context rotation failed")
			}
		}
	}
	return r
}

// Generate routes one request. Primary failures, empty responses, and
// truncated structured payloads all fall through to the secondary; if that
// also fails the combined error is returned.
func (r *Router) Generate(ctx context.Context, req core.GenerationRequest) (string, error) {
	log := logger.With("router")

	var primaryErr error
	if r.isPrimaryHealthy() {
		text, err := r.primary.Generate(ctx, req)
		if err == nil {
			if truncated(text) {
				primaryErr = ErrTruncatedPayload
				log.Warn().Str("backend", r.primary.Name()).Msg("discarding truncated payload")
			} else {
				r.afterPrimarySuccess(ctx)
				return text, nil
			}
		} else {
			primaryErr = err
		}
		r.setPrimaryHealthy(false)
		log.Warn().Err(primaryErr).Msg("primary failed, trying secondary")
	}

	text, err := r.secondary.Generate(ctx, req)
	if err != nil {
		r.mu.Lock()
		r.stats.Failures++
		r.mu.Unlock()
		return "", &AllProvidersFailedError{PrimaryErr: primaryErr, SecondaryErr: err}
	}

	r.mu.Lock()
	r.stats.SecondaryCalls++
	r.mu.Unlock()

	// The primary may have recovered while the secondary served us.
	if hc, ok := r.primary.(healthChecker); ok && hc.HealthCheck(ctx) {
		r.setPrimaryHealthy(true)
	}
	// The secondary is rate limited the same way the primary is.
	_ = r.sleep(ctx, r.pacingDelay)
	return text, nil
}

func (r *Router) afterPrimarySuccess(ctx context.Context) {
	r.mu.Lock()
	r.stats.PrimaryCalls++
	r.mu.Unlock()

	if rot, ok := r.primary.(contextRotator); ok {
		if err := rot.RotateContext(ctx); err != nil {
			log := logger.With("router")
			log.Warn().Err(err).Msg("context rotation failed")
		}
	}
	_ = r.sleep(ctx, r.pacingDelay)
}

func (r *Router) isPrimaryHealthy() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.primaryHealthy
}

func (r *Router) setPrimaryHealthy(v bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.primaryHealthy = v
}

// Stats returns a snapshot of routing counters.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

// truncated reports whether text opens a JSON bracket without closing it.
// Such payloads parse as garbage downstream, so they are rejected here.
func truncated(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return false
	}
	switch t[0] {
	case '{':
		return t[len(t)-1] != '}'
	case '[':
		return t[len(t)-1] != ']'
	}
	return false
}
