package handlers

import (
	"net/http"
	"time"
)

// HandlerOption customises a handler group.
type HandlerOption func(*handlerOptions)

type handlerOptions struct {
	middlewares []func(http.Handler) http.Handler
	limiter     rateLimiter
	clock       func() time.Time
}

// WithGroupMiddleware runs mw inside the group after authentication, typically the idempotency
// middleware so keys are scoped to the caller.
func WithGroupMiddleware(mw ...func(http.Handler) http.Handler) HandlerOption {
	return func(o *handlerOptions) {
		o.middlewares = append(o.middlewares, mw...)
	}
}

// WithCheckoutRateLimit caps order creations and payment retries per customer.
func WithCheckoutRateLimit(limit int, window time.Duration) HandlerOption {
	return func(o *handlerOptions) {
		o.limiter = newWindowLimiter(limit, window, o.clock)
	}
}

// WithHandlerClock overrides the clock used by rate limiting. It must precede
// WithCheckoutRateLimit.
func WithHandlerClock(clock func() time.Time) HandlerOption {
	return func(o *handlerOptions) {
		o.clock = clock
	}
}

func applyHandlerOptions(opts []HandlerOption) handlerOptions {
	var o handlerOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	return o
}
