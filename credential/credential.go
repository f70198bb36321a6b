// Package credential tracks the identities used to call the backend
// and picks which one each dispatch should use.
//
// Every credential is independently rate-limited by the provider, so
// the pool prefers whichever active credential has been idle longest
// beyond a minimum interval, falling back to round-robin when none
// qualify. Failures are counted per credential; a credential that
// fails too many times in a row is deactivated but never deleted.
package credential

import (
	"errors"
	"sync"
	"time"
)

// ErrNoCredentials is returned when the pool has no active entries.
var ErrNoCredentials = errors.New("no active credentials")

// Defaults for pool tuning.
const (
	DefaultMinInterval = time.Second
	DefaultMaxFailures = 5
)

// Credential is one identity/model pair usable against the backend.
type Credential struct {
	ID       string `json:"id"`
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Key      string `json:"key"`
	BaseURL  string `json:"baseUrl,omitempty"`

	UsageCount  int       `json:"usageCount"`
	FailedCount int       `json:"failedCount"`
	Active      bool      `json:"active"`
	LastUsedAt  time.Time `json:"lastUsedAt"`
}

// ---------------------------------------------------------------------------
// Pool
// ---------------------------------------------------------------------------

// PoolOptions tunes credential selection.
type PoolOptions struct {
	// MinInterval is how long a credential should rest between calls
	// before it is preferred again (default 1s).
	MinInterval time.Duration
	// MaxFailures deactivates a credential after this many consecutive
	// failures (default 5).
	MaxFailures int
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Pool selects credentials and tracks their health. All methods are
// safe for concurrent use by dispatch workers.
type Pool struct {
	mu    sync.Mutex
	creds []*Credential
	next  int
	opts  PoolOptions
}

// NewPool wraps creds in a pool. The pool owns the counters on the
// passed credentials from here on.
func NewPool(creds []*Credential, opts PoolOptions) *Pool {
	if opts.MinInterval <= 0 {
		opts.MinInterval = DefaultMinInterval
	}
	if opts.MaxFailures <= 0 {
		opts.MaxFailures = DefaultMaxFailures
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Pool{creds: creds, opts: opts}
}

// Next picks a credential for one backend call and records the usage.
// Selection prefers the active credential idle longest beyond
// MinInterval; if every active credential was used more recently than
// that, plain round-robin applies.
func (p *Pool) Next() (Credential, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	active := p.activeLocked()
	if len(active) == 0 {
		return Credential{}, ErrNoCredentials
	}

	now := p.opts.Now()
	var pick *Credential
	for _, c := range active {
		if now.Sub(c.LastUsedAt) < p.opts.MinInterval {
			continue
		}
		if pick == nil || c.LastUsedAt.Before(pick.LastUsedAt) {
			pick = c
		}
	}
	if pick == nil {
		pick = active[p.next%len(active)]
		p.next++
	}

	pick.UsageCount++
	pick.LastUsedAt = now
	return *pick, nil
}

// MarkFailed bumps the failure counter for id and deactivates the
// credential once the consecutive-failure threshold is reached.
func (p *Pool) MarkFailed(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	c := p.findLocked(id)
	if c == nil {
		return
	}
	c.FailedCount++
	if c.FailedCount >= p.opts.MaxFailures {
		c.Active = false
	}
}

// MarkSuccess resets the consecutive-failure counter for id.
func (p *Pool) MarkSuccess(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if c := p.findLocked(id); c != nil {
		c.FailedCount = 0
	}
}

// ActiveCount reports how many credentials remain usable.
func (p *Pool) ActiveCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.activeLocked())
}

// Credentials returns a snapshot of every pool entry.
func (p *Pool) Credentials() []Credential {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make([]Credential, 0, len(p.creds))
	for _, c := range p.creds {
		out = append(out, *c)
	}
	return out
}

func (p *Pool) activeLocked() []*Credential {
	var active []*Credential
	for _, c := range p.creds {
		if c.Active {
			active = append(active, c)
		}
	}
	return active
}

func (p *Pool) findLocked(id string) *Credential {
	for _, c := range p.creds {
		if c.ID == id {
			return c
		}
	}
	return nil
}
