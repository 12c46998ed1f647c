// Package authz implements the time-boxed authorization gate guarding
// access to decrypted records.
package authz

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/hako/durafmt"

	"github.com/idvault-io/idvault/vault/fault"
	"github.com/idvault-io/idvault/vault/logger"
)

const (
	// DefaultTTL is how long a successful authentication stays valid.
	DefaultTTL = 60 * time.Second

	// Reason is shown to the user when a challenge is presented.
	Reason = "Access Photos"
)

// Authenticator presents an interactive challenge to the user. It returns
// nil on success. Failures should be one of fault.ErrNotAuthorized,
// fault.ErrBiometryPermissionDenied or fault.ErrNoEnrolledCredential;
// anything else is treated as fault.ErrNotAuthorized.
type Authenticator interface {
	Authenticate(ctx context.Context, reason string) error
}

// AuthenticatorFunc adapts a function to the Authenticator interface.
type AuthenticatorFunc func(ctx context.Context, reason string) error

// Authenticate calls f.
func (f AuthenticatorFunc) Authenticate(ctx context.Context, reason string) error {
	return f(ctx, reason)
}

// Grant is a snapshot of the gate state.
type Grant struct {
	Active    bool
	ExpiresAt time.Time
}

// Remaining returns how long the grant stays valid from now.
func (g Grant) Remaining(now time.Time) time.Duration {
	if !g.Active || !now.Before(g.ExpiresAt) {
		return 0
	}
	return g.ExpiresAt.Sub(now)
}

// Gate tracks whether the user has authenticated recently. It starts locked.
// A successful authentication grants access for the TTL; an expiry timer
// relocks the gate and is replaced whenever a new grant supersedes it.
type Gate struct {
	mu        sync.Mutex
	auth      Authenticator
	clock     clock.Clock
	ttl       time.Duration
	logger    logger.Logger
	expiresAt time.Time
	timer     *clock.Timer
	gen       uint64
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithClock sets the clock used for grant expiry.
func WithClock(c clock.Clock) GateOption {
	return func(g *Gate) {
		g.clock = c
	}
}

// WithTTL sets how long a grant stays valid.
func WithTTL(ttl time.Duration) GateOption {
	return func(g *Gate) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// NewGate creates a locked Gate.
func NewGate(auth Authenticator, log logger.Logger, opts ...GateOption) *Gate {
	g := &Gate{
		auth:   auth,
		clock:  clock.New(),
		ttl:    DefaultTTL,
		logger: log,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// TTL returns the grant lifetime.
func (g *Gate) TTL() time.Duration {
	return g.ttl
}

// Authenticate presents the challenge. On success the gate is granted until
// now+TTL and any pending expiry is cancelled. On failure the gate state is
// left unchanged and the normalized error is returned.
func (g *Gate) Authenticate(ctx context.Context) error {
	if err := g.auth.Authenticate(ctx, Reason); err != nil {
		err = fault.NormalizeAuth(err)
		g.logger.Debugf("Authentication failed: %v", err)
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopTimer()
	gen := g.gen
	g.expiresAt = g.clock.Now().Add(g.ttl)
	g.timer = g.clock.AfterFunc(g.ttl, func() { g.expire(gen) })
	g.logger.Debugf("Access granted for %s", durafmt.Parse(g.ttl))
	return nil
}

// EnsureGranted returns immediately if a grant is live, otherwise it
// authenticates.
func (g *Gate) EnsureGranted(ctx context.Context) error {
	if g.Grant().Active {
		return nil
	}
	return g.Authenticate(ctx)
}

// Revoke locks the gate immediately.
func (g *Gate) Revoke() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stopTimer()
	g.expiresAt = time.Time{}
}

// Grant returns a snapshot of the current state. A grant past its expiry is
// reported inactive even if the timer has not fired yet.
func (g *Gate) Grant() Grant {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.expiresAt.IsZero() || !g.clock.Now().Before(g.expiresAt) {
		return Grant{}
	}
	return Grant{Active: true, ExpiresAt: g.expiresAt}
}

func (g *Gate) expire(gen uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	// A newer grant or a revoke superseded this timer.
	if gen != g.gen {
		return
	}
	g.expiresAt = time.Time{}
	g.timer = nil
	g.logger.Debugf("Access expired")
}

// stopTimer cancels the pending expiry. Must be called with the lock held.
func (g *Gate) stopTimer() {
	if g.timer != nil {
		g.timer.Stop()
		g.timer = nil
	}
	g.gen++
}
