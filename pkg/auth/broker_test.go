package auth

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "hazmate/pkg/errors"
	"hazmate/pkg/logger"
)

func countingRefresher(counter *int32, fresh Credential) Refresher {
	return RefresherFunc(func(ctx context.Context, refreshToken string) (*Credential, error) {
		atomic.AddInt32(counter, 1)
		clone := fresh
		return &clone, nil
	})
}

func TestBorrowReturnsValidCredentialWithoutRenewal(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var calls int32

	initial := Credential{
		AccessToken:  "token-a",
		RefreshToken: "refresh-a",
		ExpiresAt:    base.Add(time.Hour),
	}
	broker := NewBroker(initial, countingRefresher(&calls, Credential{}), time.Minute,
		logger.NewNopLogger(), WithClock(func() time.Time { return base }))

	cred, err := broker.Borrow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-a", cred.AccessToken)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestBorrowRenewsInsideSafetyMargin(t *testing.T) {
	// Expiry 5 units out, margin 1 unit: a borrow at 4.5 units has only
	// half a unit of lifetime left and must renew before proceeding.
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	unit := time.Minute
	now := base.Add(time.Duration(4.5 * float64(unit)))

	var calls int32
	fresh := Credential{
		AccessToken:  "token-b",
		RefreshToken: "refresh-b",
		ExpiresAt:    now.Add(time.Hour),
	}

	initial := Credential{
		AccessToken:  "token-a",
		RefreshToken: "refresh-a",
		ExpiresAt:    base.Add(5 * unit),
	}
	broker := NewBroker(initial, countingRefresher(&calls, fresh), unit,
		logger.NewNopLogger(), WithClock(func() time.Time { return now }))

	cred, err := broker.Borrow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-b", cred.AccessToken)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestBorrowExactlyAtMarginDoesNotRenew(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	var calls int32

	initial := Credential{
		AccessToken:  "token-a",
		RefreshToken: "refresh-a",
		ExpiresAt:    base.Add(time.Minute),
	}
	broker := NewBroker(initial, countingRefresher(&calls, Credential{}), time.Minute,
		logger.NewNopLogger(), WithClock(func() time.Time { return base }))

	cred, err := broker.Borrow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-a", cred.AccessToken)
	assert.Equal(t, int32(0), atomic.LoadInt32(&calls))
}

func TestConcurrentBorrowersTriggerSingleRenewal(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	var calls int32
	fresh := Credential{
		AccessToken:  "token-b",
		RefreshToken: "refresh-b",
		ExpiresAt:    base.Add(time.Hour),
	}

	initial := Credential{
		AccessToken:  "token-a",
		RefreshToken: "refresh-a",
		ExpiresAt:    base, // already expired
	}
	broker := NewBroker(initial, countingRefresher(&calls, fresh), time.Minute,
		logger.NewNopLogger(), WithClock(func() time.Time { return base }))

	const borrowers = 20
	var wg sync.WaitGroup
	for i := 0; i < borrowers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			cred, err := broker.Borrow(context.Background())
			assert.NoError(t, err)
			assert.Equal(t, "token-b", cred.AccessToken)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestBorrowWithoutRefreshTokenFails(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	initial := Credential{
		AccessToken: "token-a",
		ExpiresAt:   base, // expired and no refresh token
	}
	broker := NewBroker(initial, RefresherFunc(func(ctx context.Context, refreshToken string) (*Credential, error) {
		t.Fatal("refresher must not be called without a refresh token")
		return nil, nil
	}), time.Minute, logger.NewNopLogger(), WithClock(func() time.Time { return base }))

	_, err := broker.Borrow(context.Background())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindAuth))
}

func TestBorrowRefreshRejectionIsAuthError(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	initial := Credential{
		AccessToken:  "token-a",
		RefreshToken: "refresh-a",
		ExpiresAt:    base,
	}
	broker := NewBroker(initial, RefresherFunc(func(ctx context.Context, refreshToken string) (*Credential, error) {
		return nil, errs.New(errs.KindAuth, 400, "invalid_grant")
	}), time.Minute, logger.NewNopLogger(), WithClock(func() time.Time { return base }))

	_, err := broker.Borrow(context.Background())
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindAuth))
}

func TestInvalidateForcesRenewal(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	var calls int32
	fresh := Credential{
		AccessToken:  "token-b",
		RefreshToken: "refresh-b",
		ExpiresAt:    base.Add(time.Hour),
	}

	initial := Credential{
		AccessToken:  "token-a",
		RefreshToken: "refresh-a",
		ExpiresAt:    base.Add(time.Hour), // still valid locally
	}
	broker := NewBroker(initial, countingRefresher(&calls, fresh), time.Minute,
		logger.NewNopLogger(), WithClock(func() time.Time { return base }))

	cred, err := broker.Borrow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-a", cred.AccessToken)

	broker.Invalidate()

	cred, err = broker.Borrow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-b", cred.AccessToken)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestRenewalPersistsThroughStore(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	var calls int32
	fresh := Credential{
		AccessToken:  "token-b",
		RefreshToken: "refresh-b",
		ExpiresAt:    base.Add(time.Hour),
	}
	store := NewMockStore()

	initial := Credential{
		AccessToken:  "token-a",
		RefreshToken: "refresh-a",
		ExpiresAt:    base,
	}
	broker := NewBroker(initial, countingRefresher(&calls, fresh), time.Minute,
		logger.NewNopLogger(),
		WithClock(func() time.Time { return base }),
		WithStore(store))

	_, err := broker.Borrow(context.Background())
	require.NoError(t, err)

	stored, err := store.Retrieve()
	require.NoError(t, err)
	assert.Equal(t, "token-b", stored.AccessToken)
	assert.Equal(t, 1, store.StoreCalls)
}

func TestRenewalSurvivesStoreFailure(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	var calls int32
	fresh := Credential{
		AccessToken:  "token-b",
		RefreshToken: "refresh-b",
		ExpiresAt:    base.Add(time.Hour),
	}
	store := NewMockStore()
	store.StoreErr = ErrStoreUnavailable

	initial := Credential{
		AccessToken:  "token-a",
		RefreshToken: "refresh-a",
		ExpiresAt:    base,
	}
	broker := NewBroker(initial, countingRefresher(&calls, fresh), time.Minute,
		logger.NewNopLogger(),
		WithClock(func() time.Time { return base }),
		WithStore(store))

	cred, err := broker.Borrow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-b", cred.AccessToken)
}

func TestCredentialValidFor(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name   string
		cred   Credential
		margin time.Duration
		want   bool
	}{
		{
			name:   "well within lifetime",
			cred:   Credential{AccessToken: "t", ExpiresAt: now.Add(time.Hour)},
			margin: time.Minute,
			want:   true,
		},
		{
			name:   "inside margin",
			cred:   Credential{AccessToken: "t", ExpiresAt: now.Add(30 * time.Second)},
			margin: time.Minute,
			want:   false,
		},
		{
			name:   "expired",
			cred:   Credential{AccessToken: "t", ExpiresAt: now.Add(-time.Second)},
			margin: time.Minute,
			want:   false,
		},
		{
			name:   "empty token",
			cred:   Credential{ExpiresAt: now.Add(time.Hour)},
			margin: time.Minute,
			want:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cred.ValidFor(tt.margin, now))
		})
	}
}
