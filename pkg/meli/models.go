package meli

import (
	errs "hazmate/pkg/errors"
	"hazmate/pkg/models"
)

// SearchPaging is the paging envelope of a discovery response
type SearchPaging struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Total  int `json:"total"`
}

// SearchResult is one item summary in a discovery page
type SearchResult struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	DomainID     string               `json:"domain_id"`
	Description  string               `json:"description"`
	Keywords     string               `json:"keywords"`
	Status       string               `json:"status"`
	SiteID       string               `json:"site_id"`
	Attributes   []models.Attribute   `json:"attributes"`
	MainFeatures []models.MainFeature `json:"main_features"`
}

// Validate checks the fields the pipeline requires from a summary
func (r *SearchResult) Validate() error {
	if r.ID == "" {
		return errs.New(errs.KindSchema, 0, "search result missing id")
	}
	if r.Name == "" {
		return errs.Newf(errs.KindSchema, 0, "search result %s missing name", r.ID)
	}
	return nil
}

// Summary converts the search result into the pipeline's summary record
func (r *SearchResult) Summary() models.ItemSummary {
	return models.ItemSummary{
		ID:          r.ID,
		Name:        r.Name,
		DomainID:    r.DomainID,
		Description: r.Description,
		Keywords:    r.Keywords,
	}
}

// SearchResponse is a full discovery response envelope
type SearchResponse struct {
	Keywords  string         `json:"keywords"`
	Paging    SearchPaging   `json:"paging"`
	QueryType string         `json:"query_type"`
	Results   []SearchResult `json:"results"`
}

// ShortDescription is the nested short description of a product detail
type ShortDescription struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// Product is the full detail record for one item
type Product struct {
	ID               string               `json:"id"`
	Status           string               `json:"status"`
	DomainID         string               `json:"domain_id"`
	Name             string               `json:"name"`
	FamilyName       string               `json:"family_name"`
	Permalink        string               `json:"permalink"`
	ShortDescription ShortDescription     `json:"short_description"`
	Attributes       []models.Attribute   `json:"attributes"`
	MainFeatures     []models.MainFeature `json:"main_features"`
}

// Validate checks the fields the pipeline requires from a product detail
func (p *Product) Validate() error {
	if p.ID == "" {
		return errs.New(errs.KindSchema, 0, "product missing id")
	}
	if p.Name == "" {
		return errs.Newf(errs.KindSchema, 0, "product %s missing name", p.ID)
	}
	return nil
}

// TokenResponse is the OAuth token exchange response
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
	UserID       int64  `json:"user_id"`
	RefreshToken string `json:"refresh_token"`
}
