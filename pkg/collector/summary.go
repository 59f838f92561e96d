package collector

import "time"

// Termination reasons reported in the run summary
const (
	ReasonTargetReached    = "target_reached"
	ReasonCatalogExhausted = "catalog_exhausted"
	ReasonDeadline         = "deadline"
	ReasonPageBudget       = "page_budget"
	ReasonCancelled        = "cancelled"
	ReasonAborted          = "aborted"
)

// Summary is the terminal report of a collection run. It is always produced,
// partial failures included, so operators can assess coverage loss.
type Summary struct {
	Strategy       string         `json:"strategy"`
	Reason         string         `json:"reason"`
	TotalCollected int            `json:"total_collected"`
	Target         int            `json:"target"`
	Duplicates     int            `json:"duplicates"`
	SchemaErrors   int            `json:"schema_errors"`
	NotFound       int            `json:"not_found"`
	SkippedItems   int            `json:"skipped_items"`
	SkippedPairs   int            `json:"skipped_pairs"`
	RateLimitHits  int            `json:"rate_limit_hits"`
	PagesFetched   int            `json:"pages_fetched"`
	PerCategory    map[string]int `json:"per_category"`
	FamiliesSeen   map[string]int `json:"families_seen"`
	Elapsed        time.Duration  `json:"elapsed"`
}

// Fields flattens the summary for structured logging
func (s *Summary) Fields() map[string]interface{} {
	return map[string]interface{}{
		"strategy":        s.Strategy,
		"reason":          s.Reason,
		"total_collected": s.TotalCollected,
		"target":          s.Target,
		"duplicates":      s.Duplicates,
		"schema_errors":   s.SchemaErrors,
		"not_found":       s.NotFound,
		"skipped_items":   s.SkippedItems,
		"skipped_pairs":   s.SkippedPairs,
		"rate_limit_hits": s.RateLimitHits,
		"pages_fetched":   s.PagesFetched,
		"elapsed":         s.Elapsed.String(),
	}
}
