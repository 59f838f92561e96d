package meli

import (
	"fmt"
	"net/url"
)

// DefaultBaseURL is the MercadoLibre API root
const DefaultBaseURL = "https://api.mercadolibre.com"

// DefaultAuthorizationURL is where users authorize the application
const DefaultAuthorizationURL = "https://auth.mercadolivre.com.br/authorization"

// SearchURL builds the product discovery URL for a free-text query
func SearchURL(baseURL, siteID, query string, offset, limit int) string {
	params := url.Values{}
	params.Set("status", "active")
	params.Set("site_id", siteID)
	params.Set("q", query)
	params.Set("offset", fmt.Sprintf("%d", offset))
	params.Set("limit", fmt.Sprintf("%d", limit))
	return fmt.Sprintf("%s/products/search?%s", baseURL, params.Encode())
}

// ProductURL builds the detail URL for one item
func ProductURL(baseURL, itemID string) string {
	return fmt.Sprintf("%s/products/%s", baseURL, url.PathEscape(itemID))
}

// TokenURL builds the OAuth token exchange URL
func TokenURL(baseURL string) string {
	return baseURL + "/oauth/token"
}

// AuthorizationURL builds the user-facing authorization URL for the
// authorization-code flow
func AuthorizationURL(clientID, redirectURI string) string {
	params := url.Values{}
	params.Set("response_type", "code")
	params.Set("client_id", clientID)
	params.Set("redirect_uri", redirectURI)
	return DefaultAuthorizationURL + "?" + params.Encode()
}
