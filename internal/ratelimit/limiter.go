// Package ratelimit provides sliding-window error-rate limiters and the
// admission gate consulted by the request-handling layer once per observed
// error. Limiter construction is fail-fast at startup; queries never fail.
package ratelimit

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// ErrInvalidSpec indicates a malformed rate limiter spec string. It is fatal
// at startup: a malformed spec must never degrade to an always-allow or
// always-deny limiter.
var ErrInvalidSpec = errors.New("invalid rate limiter spec")

// Limiter reports whether the rate of calls over a recent window exceeds a
// configured threshold. Safe for concurrent use. A nil Limiter never reports
// exceeded.
type Limiter struct {
	lim *rate.Limiter
}

// Parse builds a Limiter from a spec string of the form "count/window",
// e.g. "10/1m" for at most ten events per minute. Count must be a positive
// integer and window a positive Go duration.
func Parse(spec string) (*Limiter, error) {
	countStr, windowStr, ok := strings.Cut(strings.TrimSpace(spec), "/")
	if !ok {
		return nil, fmt.Errorf("%w: %q, expected count/window", ErrInvalidSpec, spec)
	}

	count, err := strconv.Atoi(strings.TrimSpace(countStr))
	if err != nil || count <= 0 {
		return nil, fmt.Errorf("%w: %q, count must be a positive integer", ErrInvalidSpec, spec)
	}

	window, err := time.ParseDuration(strings.TrimSpace(windowStr))
	if err != nil || window <= 0 {
		return nil, fmt.Errorf("%w: %q, window must be a positive duration", ErrInvalidSpec, spec)
	}

	return &Limiter{
		lim: rate.NewLimiter(rate.Limit(float64(count)/window.Seconds()), count),
	}, nil
}

// Exceed records one event and reports whether the configured rate is now
// exceeded.
func (l *Limiter) Exceed() bool {
	return l.ExceedAt(time.Now())
}

// ExceedAt is Exceed with an explicit observation time.
func (l *Limiter) ExceedAt(now time.Time) bool {
	if l == nil || l.lim == nil {
		// A missing or broken limiter degrades to not exceeded; admission
		// gating is best effort and must never fail a request.
		return false
	}
	return !l.lim.AllowN(now, 1)
}
