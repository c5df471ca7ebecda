package resolve

import (
	"context"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/debgen/debgen/pkg/generator"
	"github.com/debgen/debgen/pkg/telemetry"
)

// ErrNotFound is returned by a Service when it has no mapping for a key.
var ErrNotFound = errors.New("dependency key not found")

// Service is the external dependency-resolution collaborator. It maps one
// abstract key to target-system package names for a concrete platform.
type Service interface {
	ResolveOne(ctx context.Context, name, osName, osVersion, channel string) ([]string, error)
}

// RetryPolicy controls how transient Service failures are retried.
type RetryPolicy struct {
	// MaxAttempts is the total number of attempts per key, including the
	// first. The default of 2 gives one automatic retry.
	MaxAttempts int

	// BaseDelay is the first backoff delay; it doubles per attempt.
	BaseDelay time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 2,
		BaseDelay:   100 * time.Millisecond,
	}
}

// cacheKey is the memoization key for one service lookup.
type cacheKey struct {
	name      string
	osName    string
	osVersion string
	channel   string
}

// Resolver resolves dependency keys with peer short-circuiting, per-run
// memoization, and literal fallback. It is not safe for concurrent use; the
// pipeline is strictly sequential.
type Resolver struct {
	service    Service
	policy     RetryPolicy
	logger     *telemetry.Logger
	cache      map[cacheKey][]string
	unresolved map[string]bool
}

// NewResolver creates a resolver over the given service.
func NewResolver(service Service, policy RetryPolicy, logger *telemetry.Logger) *Resolver {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}
	return &Resolver{
		service:    service,
		policy:     policy,
		logger:     logger,
		cache:      make(map[cacheKey][]string),
		unresolved: make(map[string]bool),
	}
}

// Resolve maps every key name to a non-empty list of target-system package
// names. Keys present in peers resolve to the peer's output name without
// consulting the service. Resolution never fails for an individual key: a
// key the service cannot answer degrades to a single-element list holding
// the literal key name.
//
// peers maps the raw name of each sibling package in the release to its
// sanitized output name.
func (r *Resolver) Resolve(ctx context.Context, keys []string, osName, osVersion, channel string, peers map[string]string) map[string][]string {
	resolved := make(map[string][]string, len(keys))
	for _, key := range keys {
		if outputName, ok := peers[key]; ok {
			resolved[key] = []string{outputName}
			continue
		}
		resolved[key] = r.resolveOne(ctx, key, osName, osVersion, channel)
	}
	return resolved
}

// resolveOne consults the memoized service for one key, retrying transient
// failures, and falls back to the literal key name.
func (r *Resolver) resolveOne(ctx context.Context, name, osName, osVersion, channel string) []string {
	ck := cacheKey{name: name, osName: osName, osVersion: osVersion, channel: channel}
	if cached, ok := r.cache[ck]; ok {
		return cached
	}

	var result []string
	var lastErr error
	for attempt := 0; attempt < r.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			backoff := r.policy.BaseDelay * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
			}
			if ctx.Err() != nil {
				lastErr = ctx.Err()
				break
			}
		}

		pkgs, err := r.service.ResolveOne(ctx, name, osName, osVersion, channel)
		if err == nil {
			if len(pkgs) == 0 {
				// A mapping to nothing is malformed; treat it as unresolved.
				err = ErrNotFound
			} else {
				result = pkgs
				break
			}
		}
		lastErr = err
		if errors.Is(err, ErrNotFound) || !generator.IsRetryable(err) {
			break
		}
	}

	if result == nil {
		// Degrade to the literal key name. Hard failures are reported but
		// never abort the run.
		if lastErr != nil && !errors.Is(lastErr, ErrNotFound) {
			r.logger.WithError(lastErr).Warnf("resolution of %q failed, using literal key", name)
		} else {
			r.logger.Debugf("no mapping for %q, using literal key", name)
		}
		r.unresolved[name] = true
		result = []string{name}
	}

	r.cache[ck] = result
	return result
}

// Unresolved returns the sorted names of keys that degraded to their literal
// fallback during this run, for the aggregate warning.
func (r *Resolver) Unresolved() []string {
	names := make([]string, 0, len(r.unresolved))
	for name := range r.unresolved {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
