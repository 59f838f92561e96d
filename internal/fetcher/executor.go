package fetcher

import (
	"context"
	"errors"
	"time"

	"hazmate/pkg/auth"
	"hazmate/pkg/catalog"
	errs "hazmate/pkg/errors"
	"hazmate/pkg/logger"
	"hazmate/pkg/meli"
	"hazmate/pkg/metrics"
	"hazmate/pkg/models"
	"hazmate/pkg/ratelimit"
	"hazmate/pkg/retry"
)

// Page is the outcome of one discovery call: the validated summaries plus the
// paging envelope the scheduler needs to advance or exhaust the pair
type Page struct {
	Query      catalog.CategoryQuery
	Offset     int
	Summaries  []models.ItemSummary
	Total      int
	PageLen    int
	SchemaErrs int
}

// Executor performs single upstream calls on behalf of the scheduler. It
// never loops on rate limiting; a RateLimitError is the scheduler's signal.
type Executor interface {
	SearchPage(ctx context.Context, query catalog.CategoryQuery, offset, limit int) (*Page, error)
	FetchItem(ctx context.Context, query catalog.CategoryQuery, summary models.ItemSummary) (*models.CollectedItem, error)
}

// searchClient is the slice of the upstream client the executor uses
type searchClient interface {
	Search(ctx context.Context, accessToken, siteID, query string, offset, limit int) (*meli.SearchResponse, error)
	Product(ctx context.Context, accessToken, itemID string) (*meli.Product, error)
}

// credentialSource is the slice of the credential broker the executor uses
type credentialSource interface {
	Borrow(ctx context.Context) (auth.Credential, error)
	Invalidate()
}

// APIExecutor executes fetches against the live API through a borrowed
// credential, a local rate limit gate and bounded retries for transient
// failures
type APIExecutor struct {
	client      searchClient
	creds       credentialSource
	limiter     ratelimit.Limiter
	siteID      string
	maxAttempts int
	backoff     retry.BackoffStrategy
	logger      logger.Logger
}

// ExecutorOption configures an APIExecutor
type ExecutorOption func(*APIExecutor)

// WithRetry overrides the transient-failure retry budget
func WithRetry(maxAttempts int, backoff retry.BackoffStrategy) ExecutorOption {
	return func(e *APIExecutor) {
		e.maxAttempts = maxAttempts
		e.backoff = backoff
	}
}

// NewAPIExecutor creates an executor bound to the given site
func NewAPIExecutor(client searchClient, creds credentialSource, limiter ratelimit.Limiter, siteID string, log logger.Logger, opts ...ExecutorOption) *APIExecutor {
	if log == nil {
		log = logger.GetLogger()
	}

	e := &APIExecutor{
		client:      client,
		creds:       creds,
		limiter:     limiter,
		siteID:      siteID,
		maxAttempts: 3,
		backoff:     retry.DefaultExponentialBackoff(),
		logger:      log,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SearchPage performs one discovery call
func (e *APIExecutor) SearchPage(ctx context.Context, query catalog.CategoryQuery, offset, limit int) (*Page, error) {
	var resp *meli.SearchResponse

	op := func() error {
		return e.authorized(ctx, func(token string) error {
			r, err := e.client.Search(ctx, token, e.siteID, query.Term, offset, limit)
			if err != nil {
				return err
			}
			resp = r
			return nil
		})
	}

	if err := retry.Do(op, e.retryConfig(ctx)); err != nil {
		return nil, withProvenance(err, query, "")
	}

	metrics.PagesFetched.Inc()

	page := &Page{
		Query:   query,
		Offset:  offset,
		Total:   resp.Paging.Total,
		PageLen: len(resp.Results),
	}
	for i := range resp.Results {
		result := &resp.Results[i]
		if err := result.Validate(); err != nil {
			page.SchemaErrs++
			metrics.ItemsDropped.WithLabelValues("schema").Inc()
			e.logger.WithError(withProvenance(err, query, result.ID)).
				Warn("dropping malformed search result")
			continue
		}
		page.Summaries = append(page.Summaries, result.Summary())
	}

	return page, nil
}

// FetchItem performs one detail call and merges it with the discovery summary
func (e *APIExecutor) FetchItem(ctx context.Context, query catalog.CategoryQuery, summary models.ItemSummary) (*models.CollectedItem, error) {
	var product *meli.Product

	op := func() error {
		return e.authorized(ctx, func(token string) error {
			p, err := e.client.Product(ctx, token, summary.ID)
			if err != nil {
				return err
			}
			product = p
			return nil
		})
	}

	if err := retry.Do(op, e.retryConfig(ctx)); err != nil {
		return nil, withProvenance(err, query, summary.ID)
	}

	if err := product.Validate(); err != nil {
		metrics.ItemsDropped.WithLabelValues("schema").Inc()
		return nil, withProvenance(err, query, summary.ID)
	}

	item := &models.CollectedItem{
		ItemID:           product.ID,
		Name:             product.Name,
		DomainID:         product.DomainID,
		FamilyName:       product.FamilyName,
		Permalink:        product.Permalink,
		Description:      summary.Description,
		ShortDescription: product.ShortDescription.Content,
		Keywords:         summary.Keywords,
		Attributes:       product.Attributes,
		MainFeatures:     product.MainFeatures,
		SourceCategory:   query.Category,
		SourceTerm:       query.Term,
	}
	if item.DomainID == "" {
		item.DomainID = summary.DomainID
	}

	return item, nil
}

// authorized gates the call on the local rate limiter, borrows a credential
// and runs the call. A rejection despite a fresh borrow invalidates the held
// credential and retries once with a renewed one.
func (e *APIExecutor) authorized(ctx context.Context, call func(token string) error) error {
	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}

	cred, err := e.creds.Borrow(ctx)
	if err != nil {
		return err
	}

	callErr := call(cred.AccessToken)
	if callErr == nil || !errs.Is(callErr, errs.KindAuth) {
		return callErr
	}

	e.logger.Warn("upstream rejected a freshly borrowed token, forcing renewal")
	e.creds.Invalidate()

	cred, err = e.creds.Borrow(ctx)
	if err != nil {
		return err
	}
	return call(cred.AccessToken)
}

// retryConfig builds the per-call retry configuration. Only transient
// network and server failures are retried here; rate limiting belongs to
// the scheduler and auth failures to the broker.
func (e *APIExecutor) retryConfig(ctx context.Context) *retry.Config {
	return &retry.Config{
		MaxAttempts: e.maxAttempts,
		Backoff:     e.backoff,
		RetryIf:     retry.DefaultRetryIf,
		Context:     ctx,
		Logger:      e.logger,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			e.logger.WithError(err).WithField("attempt", attempt).
				WithField("delay", delay.String()).
				Debug("retrying upstream call")
		},
	}
}

// withProvenance stamps the discovering pair onto classified errors
func withProvenance(err error, query catalog.CategoryQuery, itemID string) error {
	var apiErr *errs.Error
	if errors.As(err, &apiErr) {
		return apiErr.WithProvenance(query.Category, query.Term, itemID)
	}
	return err
}
