// Package dispatch sends prompt-shaped requests to a text-generation
// backend under quota constraints.
//
// The engine is shared by every pipeline stage that talks to the
// backend. It enforces a minimum inter-call interval across all
// workers, rotates credentials through a pool, pauses globally when a
// provider signals a rate limit, and retries transport failures with
// exponential backoff. Callers always receive structured record lists,
// never free text.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/packlate/packlate/credential"
)

// ---------------------------------------------------------------------------
// Request / response shapes
// ---------------------------------------------------------------------------

// Schema selects which record shape a call must produce.
type Schema int

const (
	// SchemaTranslations expects (id, translated) records.
	SchemaTranslations Schema = iota
	// SchemaTerms expects (term, translation, context) records.
	SchemaTerms
	// SchemaIssues expects quality-issue records.
	SchemaIssues
)

// Request is one prompt-shaped backend call.
type Request struct {
	System      string
	User        string
	Temperature float64
	Schema      Schema
}

// TranslationRecord is one translated item in a structured response.
type TranslationRecord struct {
	ID   string `json:"id"`
	Text string `json:"translated"`
}

// TermRecord is one extracted glossary term.
type TermRecord struct {
	Term        string `json:"term"`
	Translation string `json:"translation"`
	Context     string `json:"context"`
}

// IssueRecord is one flagged quality defect.
type IssueRecord struct {
	ItemID       string `json:"text_id"`
	IssueType    string `json:"issue_type"`
	Severity     string `json:"severity"`
	Description  string `json:"description"`
	SuggestedFix string `json:"suggested_fix,omitempty"`
}

// Response carries the record list matching the request's schema.
type Response struct {
	Translations []TranslationRecord
	Terms        []TermRecord
	Issues       []IssueRecord
}

// Backend performs one raw call with one credential. Implementations
// must honor ctx and return RateLimitError when throttled.
type Backend interface {
	Invoke(ctx context.Context, cred credential.Credential, req Request) (*Response, error)
}

// RateLimitError signals a provider throttle with an optional server
// hint for how long to back off.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %v", e.RetryAfter)
}

// ---------------------------------------------------------------------------
// Options
// ---------------------------------------------------------------------------

// Options configures the engine. Zero values fall back to defaults.
type Options struct {
	// MaxConcurrent caps in-flight backend calls (default 5).
	MaxConcurrent int
	// RequestDelay is the minimum interval between call starts across
	// all workers (default 200ms).
	RequestDelay time.Duration
	// CallTimeout bounds each individual backend call (default 120s).
	CallTimeout time.Duration
	// MaxAttempts is how many times one Invoke retries transport
	// failures before giving up (default 3).
	MaxAttempts int
	// Logger receives structured call logs. Defaults to the standard
	// logrus logger.
	Logger *logrus.Logger
}

func (o *Options) effectiveMaxConcurrent() int {
	if o.MaxConcurrent <= 0 {
		return 5
	}
	return o.MaxConcurrent
}

func (o *Options) effectiveRequestDelay() time.Duration {
	if o.RequestDelay <= 0 {
		return 200 * time.Millisecond
	}
	return o.RequestDelay
}

func (o *Options) effectiveCallTimeout() time.Duration {
	if o.CallTimeout <= 0 {
		return 120 * time.Second
	}
	return o.CallTimeout
}

func (o *Options) effectiveMaxAttempts() int {
	if o.MaxAttempts <= 0 {
		return 3
	}
	return o.MaxAttempts
}

func (o *Options) logger() *logrus.Logger {
	if o.Logger == nil {
		return logrus.StandardLogger()
	}
	return o.Logger
}

// ---------------------------------------------------------------------------
// Rate limit state
// ---------------------------------------------------------------------------

// rateLimitState is a shared pause flag set when any worker hits a 429.
// All workers wait out the pause before issuing new calls.
type rateLimitState struct {
	mu       sync.Mutex
	paused   bool
	pauseEnd time.Time
}

func (r *rateLimitState) pause(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	end := time.Now().Add(d)
	if end.After(r.pauseEnd) {
		r.pauseEnd = end
	}
	r.paused = true
}

func (r *rateLimitState) waitIfPaused(ctx context.Context) error {
	for {
		r.mu.Lock()
		if !r.paused {
			r.mu.Unlock()
			return nil
		}
		remaining := time.Until(r.pauseEnd)
		if remaining <= 0 {
			r.paused = false
			r.mu.Unlock()
			return nil
		}
		r.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(minDuration(remaining, 100*time.Millisecond)):
		}
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

// ---------------------------------------------------------------------------
// Engine
// ---------------------------------------------------------------------------

// Engine is the shared dispatcher. Safe for concurrent use.
type Engine struct {
	backend Backend
	pool    *credential.Pool
	opts    Options

	paceMu   sync.Mutex
	lastCall time.Time

	rl rateLimitState
}

// NewEngine wires a backend and a credential pool into an engine.
func NewEngine(backend Backend, pool *credential.Pool, opts Options) *Engine {
	return &Engine{backend: backend, pool: pool, opts: opts}
}

// MaxConcurrent exposes the configured pool width for stage fan-out.
func (e *Engine) MaxConcurrent() int { return e.opts.effectiveMaxConcurrent() }

// ActiveCredentials reports how many credentials the engine can still
// draw on.
func (e *Engine) ActiveCredentials() int { return e.pool.ActiveCount() }

// Invoke performs one structured backend call with pacing, credential
// rotation and transport retries. A credential-pool exhaustion is
// returned as credential.ErrNoCredentials and is not retried.
func (e *Engine) Invoke(ctx context.Context, req Request) (*Response, error) {
	var lastErr error

	for attempt := 0; attempt < e.opts.effectiveMaxAttempts(); attempt++ {
		if err := e.rl.waitIfPaused(ctx); err != nil {
			return nil, err
		}
		if err := e.waitTurn(ctx); err != nil {
			return nil, err
		}

		cred, err := e.pool.Next()
		if err != nil {
			return nil, err
		}

		resp, err := e.call(ctx, cred, req)
		if err == nil {
			e.pool.MarkSuccess(cred.ID)
			return resp, nil
		}
		lastErr = err
		e.pool.MarkFailed(cred.ID)

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		var rle *RateLimitError
		if errors.As(err, &rle) {
			delay := rle.RetryAfter
			if delay <= 0 {
				delay = 65 * time.Second
			}
			e.opts.logger().WithFields(logrus.Fields{
				"credential": cred.ID,
				"delay":      delay,
			}).Warn("backend rate limited, pausing all workers")
			e.rl.pause(delay)
			continue
		}

		if attempt == e.opts.effectiveMaxAttempts()-1 {
			break
		}
		wait := time.Duration(math.Pow(2, float64(attempt))) * time.Second
		e.opts.logger().WithError(err).WithFields(logrus.Fields{
			"credential": cred.ID,
			"attempt":    attempt + 1,
			"backoff":    wait,
		}).Warn("backend call failed")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}

	return nil, fmt.Errorf("exhausted %d attempts: %w", e.opts.effectiveMaxAttempts(), lastErr)
}

// call runs one timed backend invocation and records metrics.
func (e *Engine) call(ctx context.Context, cred credential.Credential, req Request) (*Response, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.opts.effectiveCallTimeout())
	defer cancel()

	requestsInFlight.Inc()
	start := time.Now()
	resp, err := e.backend.Invoke(callCtx, cred, req)
	requestsInFlight.Dec()
	recordRequest(cred.Provider, time.Since(start), err)
	return resp, err
}

// waitTurn enforces the shared minimum inter-call interval.
func (e *Engine) waitTurn(ctx context.Context) error {
	for {
		e.paceMu.Lock()
		now := time.Now()
		next := e.lastCall.Add(e.opts.effectiveRequestDelay())
		if !now.Before(next) {
			e.lastCall = now
			e.paceMu.Unlock()
			return nil
		}
		wait := next.Sub(now)
		e.paceMu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// ---------------------------------------------------------------------------
// Generic parallel runner
// ---------------------------------------------------------------------------

// RunParallel runs tasks through fn with a concurrency cap. Workers may
// finish out of order; RunParallel returns only after every launched
// task has, so stages get strict join semantics. The first error is
// returned but does not cancel sibling tasks; per-item failure handling
// is the caller's job.
func RunParallel[T any](ctx context.Context, tasks []T, maxConcurrent int, fn func(context.Context, int, T) error) error {
	if maxConcurrent <= 0 {
		maxConcurrent = 1
	}

	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup
	var firstErr error
	var errOnce sync.Once

	for i, task := range tasks {
		if ctx.Err() != nil {
			break
		}

		sem <- struct{}{}
		wg.Add(1)

		go func(idx int, t T) {
			defer func() {
				<-sem
				wg.Done()
			}()

			if err := fn(ctx, idx, t); err != nil {
				errOnce.Do(func() {
					firstErr = err
				})
			}
		}(i, task)
	}

	wg.Wait()
	if firstErr == nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return firstErr
}
