package fetcher

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hazmate/pkg/auth"
	"hazmate/pkg/catalog"
	errs "hazmate/pkg/errors"
	"hazmate/pkg/logger"
	"hazmate/pkg/meli"
	"hazmate/pkg/models"
	"hazmate/pkg/retry"
)

type openLimiter struct{}

func (openLimiter) Allow() bool                    { return true }
func (openLimiter) Wait(ctx context.Context) error { return ctx.Err() }
func (openLimiter) Reset()                         {}

type fakeCreds struct {
	token       string
	borrows     int
	invalidates int
	borrowErr   error
}

func (f *fakeCreds) Borrow(ctx context.Context) (auth.Credential, error) {
	f.borrows++
	if f.borrowErr != nil {
		return auth.Credential{}, f.borrowErr
	}
	return auth.Credential{AccessToken: f.token}, nil
}

func (f *fakeCreds) Invalidate() {
	f.invalidates++
	f.token = f.token + "-renewed"
}

type fakeClient struct {
	searchFn  func(token, query string, offset, limit int) (*meli.SearchResponse, error)
	productFn func(token, itemID string) (*meli.Product, error)
}

func (f *fakeClient) Search(ctx context.Context, accessToken, siteID, query string, offset, limit int) (*meli.SearchResponse, error) {
	return f.searchFn(accessToken, query, offset, limit)
}

func (f *fakeClient) Product(ctx context.Context, accessToken, itemID string) (*meli.Product, error) {
	return f.productFn(accessToken, itemID)
}

var testQuery = catalog.CategoryQuery{Category: "MLB1", Term: "thinner"}

func newTestExecutor(client *fakeClient, creds *fakeCreds) *APIExecutor {
	return NewAPIExecutor(client, creds, openLimiter{}, "MLB", logger.NewNopLogger(),
		WithRetry(2, &retry.ConstantBackoff{Delay: 0}))
}

func TestSearchPageValidatesSummaries(t *testing.T) {
	client := &fakeClient{
		searchFn: func(token, query string, offset, limit int) (*meli.SearchResponse, error) {
			return &meli.SearchResponse{
				Paging: meli.SearchPaging{Limit: limit, Offset: offset, Total: 120},
				Results: []meli.SearchResult{
					{ID: "MLB100", Name: "Thinner 5L", DomainID: "MLB-PAINT_THINNERS"},
					{ID: "MLB101"}, // missing name
					{ID: "MLB102", Name: "Aguarras 1L"},
				},
			}, nil
		},
	}

	exec := newTestExecutor(client, &fakeCreds{token: "tok"})

	page, err := exec.SearchPage(context.Background(), testQuery, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 120, page.Total)
	assert.Equal(t, 3, page.PageLen)
	assert.Equal(t, 1, page.SchemaErrs)
	require.Len(t, page.Summaries, 2)
	assert.Equal(t, "MLB100", page.Summaries[0].ID)
}

func TestSearchPagePassesRateLimitThrough(t *testing.T) {
	calls := 0
	client := &fakeClient{
		searchFn: func(token, query string, offset, limit int) (*meli.SearchResponse, error) {
			calls++
			return nil, errs.New(errs.KindRateLimit, 429, "local rate limit exceeded")
		},
	}

	exec := newTestExecutor(client, &fakeCreds{token: "tok"})

	_, err := exec.SearchPage(context.Background(), testQuery, 0, 10)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindRateLimit))
	// Never looped on the 429
	assert.Equal(t, 1, calls)

	var apiErr *errs.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "MLB1", apiErr.Category)
	assert.Equal(t, "thinner", apiErr.Term)
}

func TestSearchPageRetriesTransientFailures(t *testing.T) {
	calls := 0
	client := &fakeClient{
		searchFn: func(token, query string, offset, limit int) (*meli.SearchResponse, error) {
			calls++
			if calls == 1 {
				return nil, errs.New(errs.KindServer, 500, "internal error")
			}
			return &meli.SearchResponse{Paging: meli.SearchPaging{Total: 1}}, nil
		},
	}

	exec := newTestExecutor(client, &fakeCreds{token: "tok"})

	page, err := exec.SearchPage(context.Background(), testQuery, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Equal(t, 1, page.Total)
}

func TestAuthRejectionInvalidatesAndRetriesOnce(t *testing.T) {
	creds := &fakeCreds{token: "stale"}
	var tokens []string
	client := &fakeClient{
		searchFn: func(token, query string, offset, limit int) (*meli.SearchResponse, error) {
			tokens = append(tokens, token)
			if token == "stale" {
				return nil, errs.New(errs.KindAuth, 401, "invalid token")
			}
			return &meli.SearchResponse{}, nil
		},
	}

	exec := newTestExecutor(client, creds)

	_, err := exec.SearchPage(context.Background(), testQuery, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"stale", "stale-renewed"}, tokens)
	assert.Equal(t, 1, creds.invalidates)
}

func TestAuthRejectionAfterRenewalIsTerminal(t *testing.T) {
	creds := &fakeCreds{token: "stale"}
	client := &fakeClient{
		searchFn: func(token, query string, offset, limit int) (*meli.SearchResponse, error) {
			return nil, errs.New(errs.KindAuth, 401, "invalid token")
		},
	}

	exec := newTestExecutor(client, creds)

	_, err := exec.SearchPage(context.Background(), testQuery, 0, 10)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindAuth))
	// One invalidation, one renewal attempt, no further loops
	assert.Equal(t, 1, creds.invalidates)
}

func TestFetchItemMergesSummaryAndDetail(t *testing.T) {
	client := &fakeClient{
		productFn: func(token, itemID string) (*meli.Product, error) {
			return &meli.Product{
				ID:               itemID,
				Name:             "Thinner 5L",
				DomainID:         "MLB-PAINT_THINNERS",
				FamilyName:       "Thinner",
				Permalink:        "https://example.com/p/MLB100",
				ShortDescription: meli.ShortDescription{Type: "plain_text", Content: "Solvente para tintas"},
				Attributes:       []models.Attribute{{ID: "BRAND", Name: "Marca", ValueName: "Acme"}},
			}, nil
		},
	}

	exec := newTestExecutor(client, &fakeCreds{token: "tok"})

	summary := models.ItemSummary{
		ID:          "MLB100",
		Name:        "Thinner 5L",
		Description: "Thinner para limpeza",
		Keywords:    "thinner, solvente",
	}
	item, err := exec.FetchItem(context.Background(), testQuery, summary)
	require.NoError(t, err)

	assert.Equal(t, "MLB100", item.ItemID)
	assert.Equal(t, "Thinner", item.FamilyName)
	assert.Equal(t, "Solvente para tintas", item.ShortDescription)
	assert.Equal(t, "Thinner para limpeza", item.Description)
	assert.Equal(t, "thinner, solvente", item.Keywords)
	assert.Equal(t, "MLB1", item.SourceCategory)
	assert.Equal(t, "thinner", item.SourceTerm)
}

func TestFetchItemNotFound(t *testing.T) {
	client := &fakeClient{
		productFn: func(token, itemID string) (*meli.Product, error) {
			return nil, errs.New(errs.KindNotFound, 404, "product not found")
		},
	}

	exec := newTestExecutor(client, &fakeCreds{token: "tok"})

	_, err := exec.FetchItem(context.Background(), testQuery, models.ItemSummary{ID: "MLB9"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindNotFound))
}

func TestFetchItemSchemaValidation(t *testing.T) {
	client := &fakeClient{
		productFn: func(token, itemID string) (*meli.Product, error) {
			return &meli.Product{ID: itemID}, nil // missing name
		},
	}

	exec := newTestExecutor(client, &fakeCreds{token: "tok"})

	_, err := exec.FetchItem(context.Background(), testQuery, models.ItemSummary{ID: "MLB9"})
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindSchema))

	var apiErr *errs.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "MLB9", apiErr.ItemID)
}

func TestBorrowFailureAbortsCall(t *testing.T) {
	creds := &fakeCreds{borrowErr: errs.New(errs.KindAuth, 0, "refresh rejected")}
	client := &fakeClient{
		searchFn: func(token, query string, offset, limit int) (*meli.SearchResponse, error) {
			t.Fatal("call must not run without a credential")
			return nil, nil
		},
	}

	exec := newTestExecutor(client, creds)

	_, err := exec.SearchPage(context.Background(), testQuery, 0, 10)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindAuth))
}
