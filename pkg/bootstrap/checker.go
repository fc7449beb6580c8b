// Package bootstrap runs the start-up auth check of each session domain.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"storefront/pkg/domain"
	"storefront/pkg/session"
)

// ErrTokenExpired is recorded when a persisted JWT is already past its expiry.
var ErrTokenExpired = errors.New("persisted token expired")

// Verifier asks the backend who a token belongs to.
type Verifier interface {
	Verify(ctx context.Context, token string) (domain.Identity, error)
}

// VerifierFunc adapts a function to Verifier.
type VerifierFunc func(ctx context.Context, token string) (domain.Identity, error)

func (f VerifierFunc) Verify(ctx context.Context, token string) (domain.Identity, error) {
	return f(ctx, token)
}

// Option configures a Checker.
type Option func(*Checker)

// WithExpiryCheck sets a local precheck; tokens it reports as expired are
// rejected without calling the Verifier.
func WithExpiryCheck(expired func(token string) bool) Option {
	return func(c *Checker) {
		c.expired = expired
	}
}

// WithAfterResolve registers fn to run after a check resolves with an identity.
// Its error is logged and never changes the session.
func WithAfterResolve(fn func(ctx context.Context, id domain.Identity) error) Option {
	return func(c *Checker) {
		c.after = fn
	}
}

// WithLogger overrides the logger; defaults to slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(c *Checker) {
		if l != nil {
			c.log = l
		}
	}
}

// Checker verifies the persisted token of one session store.
type Checker struct {
	store    *session.Store
	verifier Verifier
	expired  func(string) bool
	after    func(context.Context, domain.Identity) error
	log      *slog.Logger
	flight   singleflight.Group
}

// NewChecker returns a Checker for store.
func NewChecker(store *session.Store, verifier Verifier, opts ...Option) (*Checker, error) {
	if store == nil {
		return nil, fmt.Errorf("bootstrap: store required")
	}
	if verifier == nil {
		return nil, fmt.Errorf("bootstrap: verifier required")
	}
	c := &Checker{store: store, verifier: verifier, log: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Domain returns the domain of the checked store.
func (c *Checker) Domain() session.Domain {
	return c.store.Domain()
}

// Run performs the check. Concurrent calls share one verification, and a call
// made while the store is already Pending returns without doing anything.
// The returned error is the verification failure, already recorded in the store.
func (c *Checker) Run(ctx context.Context) error {
	_, err, _ := c.flight.Do("check", func() (any, error) {
		return nil, c.run(ctx)
	})
	return err
}

func (c *Checker) run(ctx context.Context) error {
	ticket, ok := c.store.StartCheck()
	if !ok {
		c.log.Debug("session_event", "domain", c.Domain(), "event", "check.start", "outcome", "skipped")
		return nil
	}
	token := c.store.Token()
	if token == "" {
		return c.store.ResolveCheck(ctx, ticket, nil)
	}
	if c.expired != nil && c.expired(token) {
		if err := c.store.RejectCheck(ctx, ticket, ErrTokenExpired); err != nil {
			return errors.Join(ErrTokenExpired, err)
		}
		return ErrTokenExpired
	}

	id, err := c.verifier.Verify(ctx, token)
	if err == nil && !id.Valid() {
		err = fmt.Errorf("verify %s: identity without id", c.Domain())
	}
	if err != nil {
		if rerr := c.store.RejectCheck(ctx, ticket, err); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	if err := c.store.ResolveCheck(ctx, ticket, &id); err != nil {
		return err
	}
	if c.after != nil {
		if err := c.after(ctx, id); err != nil {
			c.log.Warn("session_event", "domain", c.Domain(), "event", "check.after", "outcome", "fail", "identity_id", id.ID, "err", err)
		}
	}
	return nil
}

// RunAll runs every checker concurrently. A failing checker never cancels the
// others; all failures are returned joined.
func RunAll(ctx context.Context, checkers ...*Checker) error {
	var g errgroup.Group
	errs := make([]error, len(checkers))
	for i, c := range checkers {
		if c == nil {
			continue
		}
		g.Go(func() error {
			if err := c.Run(ctx); err != nil {
				errs[i] = fmt.Errorf("%s check: %w", c.Domain(), err)
			}
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
