package meli

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	errs "hazmate/pkg/errors"
	"hazmate/pkg/logger"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(5*time.Second, logger.NewNopLogger())
	client.SetBaseURL(server.URL)
	return client
}

func TestSearch(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products/search", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))

		q := r.URL.Query()
		assert.Equal(t, "MLB", q.Get("site_id"))
		assert.Equal(t, "tinta spray", q.Get("q"))
		assert.Equal(t, "active", q.Get("status"))
		assert.Equal(t, "40", q.Get("offset"))
		assert.Equal(t, "20", q.Get("limit"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"keywords": "tinta spray",
			"paging": {"limit": 20, "offset": 40, "total": 1234},
			"results": [
				{"id": "MLB100", "name": "Tinta Spray Preta", "domain_id": "MLB-PAINTS"},
				{"id": "MLB101", "name": "Tinta Spray Branca", "domain_id": "MLB-PAINTS"}
			]
		}`))
	})

	resp, err := client.Search(context.Background(), "tok-1", "MLB", "tinta spray", 40, 20)
	require.NoError(t, err)

	assert.Equal(t, 1234, resp.Paging.Total)
	require.Len(t, resp.Results, 2)
	assert.Equal(t, "MLB100", resp.Results[0].ID)
	assert.Equal(t, "MLB-PAINTS", resp.Results[0].DomainID)
}

func TestProduct(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/products/MLB100", r.URL.Path)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"id": "MLB100",
			"name": "Tinta Spray Preta 400ml",
			"status": "active",
			"domain_id": "MLB-PAINTS",
			"family_name": "Tinta Spray",
			"permalink": "https://example.com/MLB100",
			"short_description": {"type": "plain_text", "content": "Tinta em aerossol"},
			"attributes": [{"id": "BRAND", "name": "Marca", "value_name": "Suvinil"}]
		}`))
	})

	product, err := client.Product(context.Background(), "tok-1", "MLB100")
	require.NoError(t, err)

	assert.Equal(t, "MLB100", product.ID)
	assert.Equal(t, "Tinta Spray", product.FamilyName)
	assert.Equal(t, "Tinta em aerossol", product.ShortDescription.Content)
	require.Len(t, product.Attributes, 1)
	assert.Equal(t, "Suvinil", product.Attributes[0].ValueName)
}

func TestStatusCodeClassification(t *testing.T) {
	tests := []struct {
		status int
		kind   errs.Kind
	}{
		{http.StatusUnauthorized, errs.KindAuth},
		{http.StatusForbidden, errs.KindAuth},
		{http.StatusNotFound, errs.KindNotFound},
		{http.StatusTooManyRequests, errs.KindRateLimit},
		{http.StatusInternalServerError, errs.KindServer},
		{http.StatusBadGateway, errs.KindServer},
		{http.StatusTeapot, errs.KindUnknown},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"message": "nope"}`))
			})

			_, err := client.Search(context.Background(), "tok", "MLB", "q", 0, 20)
			require.Error(t, err)
			assert.True(t, errs.Is(err, tt.kind), "expected %s for status %d, got %v", tt.kind, tt.status, err)

			var apiErr *errs.Error
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, tt.status, apiErr.Code)
		})
	}
}

func TestNetworkErrorClassification(t *testing.T) {
	client := NewClient(time.Second, logger.NewNopLogger())
	client.SetBaseURL("http://127.0.0.1:0")

	_, err := client.Search(context.Background(), "tok", "MLB", "q", 0, 20)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindNetwork))
}

func TestMalformedResponse(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"paging": "not-an-object"`))
	})

	_, err := client.Search(context.Background(), "tok", "MLB", "q", 0, 20)
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindSchema))
}

func TestRefreshToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/oauth/token", r.URL.Path)
		assert.Equal(t, "application/x-www-form-urlencoded", r.Header.Get("Content-Type"))

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "app-1", r.PostForm.Get("client_id"))
		assert.Equal(t, "s3cret", r.PostForm.Get("client_secret"))
		assert.Equal(t, "refresh-old", r.PostForm.Get("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"access_token": "access-new",
			"token_type": "Bearer",
			"expires_in": 21600,
			"refresh_token": "refresh-new"
		}`))
	})

	tok, err := client.RefreshToken(context.Background(), "app-1", "s3cret", "refresh-old")
	require.NoError(t, err)

	assert.Equal(t, "access-new", tok.AccessToken)
	assert.Equal(t, "refresh-new", tok.RefreshToken)
	assert.Equal(t, 21600, tok.ExpiresIn)
}

func TestExchangeAuthorizationCode(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "authorization_code", r.PostForm.Get("grant_type"))
		assert.Equal(t, "the-code", r.PostForm.Get("code"))
		assert.Equal(t, "https://localhost:8080/callback", r.PostForm.Get("redirect_uri"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token": "access-1", "refresh_token": "refresh-1", "expires_in": 21600}`))
	})

	tok, err := client.ExchangeAuthorizationCode(context.Background(), "app-1", "s3cret", "the-code", "https://localhost:8080/callback")
	require.NoError(t, err)
	assert.Equal(t, "access-1", tok.AccessToken)
}

func TestTokenExchangeRejection(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": "invalid_grant"}`))
	})

	_, err := client.RefreshToken(context.Background(), "app-1", "s3cret", "stale")
	require.Error(t, err)
	// Any token exchange rejection means re-authorization is needed
	assert.True(t, errs.Is(err, errs.KindAuth))
	assert.Contains(t, err.Error(), "invalid_grant")
}

func TestTokenResponseMissingAccessToken(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"refresh_token": "refresh-1"}`))
	})

	_, err := client.RefreshToken(context.Background(), "app-1", "s3cret", "stale")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.KindSchema))
}

func TestSearchResultValidate(t *testing.T) {
	valid := SearchResult{ID: "MLB1", Name: "Item"}
	assert.NoError(t, valid.Validate())

	missingID := SearchResult{Name: "Item"}
	assert.True(t, errs.Is(missingID.Validate(), errs.KindSchema))

	missingName := SearchResult{ID: "MLB1"}
	assert.True(t, errs.Is(missingName.Validate(), errs.KindSchema))
}

func TestEndpointURLs(t *testing.T) {
	search := SearchURL("https://api.example.com", "MLB", "água sanitária", 0, 20)
	assert.Contains(t, search, "/products/search?")
	assert.Contains(t, search, "q=%C3%A1gua+sanit%C3%A1ria")

	assert.Equal(t, "https://api.example.com/products/MLB123", ProductURL("https://api.example.com", "MLB123"))
	assert.Equal(t, "https://api.example.com/oauth/token", TokenURL("https://api.example.com"))

	authz := AuthorizationURL("app-1", "https://localhost:8080/callback")
	assert.Contains(t, authz, "response_type=code")
	assert.Contains(t, authz, "client_id=app-1")
}
