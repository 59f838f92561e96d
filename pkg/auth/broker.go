package auth

import (
	"context"
	"sync"
	"time"

	errs "hazmate/pkg/errors"
	"hazmate/pkg/logger"
	"hazmate/pkg/metrics"
)

// Refresher exchanges a refresh token for a new credential pair
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*Credential, error)
}

// RefresherFunc adapts a function to the Refresher interface
type RefresherFunc func(ctx context.Context, refreshToken string) (*Credential, error)

// Refresh calls the wrapped function
func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (*Credential, error) {
	return f(ctx, refreshToken)
}

// Broker owns the current credential pair and its renewal. Borrow returns a
// credential guaranteed valid for at least the safety margin, renewing first
// if needed. Renewal and borrow are mutually exclusive: concurrent borrowers
// serialize on the broker lock, so at most one renewal is in flight and every
// waiter observes its result.
type Broker struct {
	mu        sync.Mutex
	cred      Credential
	refresher Refresher
	margin    time.Duration
	store     TokenStore // optional; persists renewed credentials
	now       func() time.Time
	logger    logger.Logger
}

// BrokerOption configures a Broker
type BrokerOption func(*Broker)

// WithClock injects the time source (used by tests)
func WithClock(now func() time.Time) BrokerOption {
	return func(b *Broker) { b.now = now }
}

// WithStore persists renewed credentials through the given store
func WithStore(store TokenStore) BrokerOption {
	return func(b *Broker) { b.store = store }
}

// NewBroker creates a credential broker holding the initial credential
func NewBroker(initial Credential, refresher Refresher, margin time.Duration, log logger.Logger, opts ...BrokerOption) *Broker {
	if log == nil {
		log = logger.GetLogger()
	}

	b := &Broker{
		cred:      initial,
		refresher: refresher,
		margin:    margin,
		now:       time.Now,
		logger:    log,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Borrow returns a credential valid for at least the safety margin, renewing
// the held pair first when its remaining lifetime is below the margin. The
// returned value is a copy; callers must not retain it beyond one call.
func (b *Broker) Borrow(ctx context.Context) (Credential, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.cred.ValidFor(b.margin, b.now()) {
		return b.cred, nil
	}

	if err := b.renewLocked(ctx); err != nil {
		return Credential{}, err
	}

	return b.cred, nil
}

// Invalidate forces a renewal on the next Borrow. Called when the upstream
// rejects a token that looked valid locally.
func (b *Broker) Invalidate() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.cred.ExpiresAt = time.Time{}
}

// renewLocked exchanges the refresh token for a new credential pair.
// Caller must hold b.mu.
func (b *Broker) renewLocked(ctx context.Context) error {
	if b.cred.RefreshToken == "" {
		return errs.New(errs.KindAuth, 0, "no refresh token held, re-authorization required")
	}

	b.logger.InfoWithFields("renewing credential", map[string]interface{}{
		"remaining": b.cred.RemainingLifetime(b.now()),
		"margin":    b.margin,
	})

	fresh, err := b.refresher.Refresh(ctx, b.cred.RefreshToken)
	if err != nil {
		metrics.CredentialRenewals.WithLabelValues("failure").Inc()
		b.logger.WithError(err).Error("credential renewal failed")
		if errs.Is(err, errs.KindAuth) {
			return err
		}
		return errs.Newf(errs.KindAuth, 0, "credential renewal failed: %v", err)
	}

	b.cred = *fresh
	metrics.CredentialRenewals.WithLabelValues("success").Inc()

	if b.store != nil {
		if err := b.store.Store(&b.cred); err != nil {
			// Persisting is best effort; the in-memory pair stays usable
			b.logger.WithError(err).Warn("failed to persist renewed credential")
		}
	}

	b.logger.InfoWithFields("credential renewed", map[string]interface{}{
		"expires_at": b.cred.ExpiresAt,
	})

	return nil
}
