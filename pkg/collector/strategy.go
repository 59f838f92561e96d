package collector

import (
	"math"

	"hazmate/pkg/catalog"
	"hazmate/pkg/config"
	errs "hazmate/pkg/errors"
)

// SelectionView is the read-only state a strategy consults when picking the
// next pair. Eligible reports whether a (category, term) pair may be
// dispatched right now: not exhausted, not in flight and not deferred by a
// recent rate limit.
type SelectionView struct {
	Catalog  *catalog.Catalog
	CountFor func(category string) int
	Eligible func(category, term string) bool
}

// Strategy decides which (category, term) pair to fetch next
type Strategy interface {
	Name() string
	PageSize() int
	SelectPair(view *SelectionView) (catalog.CategoryQuery, bool)
}

// NewStrategy builds the configured strategy
func NewStrategy(cfg *config.CollectionConfig, cat *catalog.Catalog) (Strategy, error) {
	switch cfg.Strategy {
	case config.StrategyBalance:
		return &BalancedStrategy{
			target:    cfg.TargetSize,
			tolerance: cfg.FairnessTolerance,
			pageSize:  cfg.PageSize,
		}, nil
	case config.StrategySpeed:
		return &SpeedStrategy{pageSize: cfg.SpeedPageSize}, nil
	default:
		return nil, errs.Newf(errs.KindConfig, 0, "unknown strategy %q", cfg.Strategy)
	}
}

// BalancedStrategy equalizes per-category coverage: it always works on the
// category with the lowest collected count that still has eligible terms,
// breaking ties by catalog declaration order.
type BalancedStrategy struct {
	target    int
	tolerance float64
	pageSize  int
}

// Name returns the strategy identifier
func (s *BalancedStrategy) Name() string { return config.StrategyBalance }

// PageSize returns the discovery page size for this strategy
func (s *BalancedStrategy) PageSize() int { return s.pageSize }

// FairnessBound is the per-category ceiling no category may exceed while
// other categories still trail it: ceil(target/categories) * (1+tolerance)
func (s *BalancedStrategy) FairnessBound(categoryCount int) int {
	if categoryCount == 0 {
		return 0
	}
	perCategory := math.Ceil(float64(s.target) / float64(categoryCount))
	return int(perCategory * (1 + s.tolerance))
}

// SelectPair picks the lowest-count category with an eligible term, skipping
// categories at the fairness bound. Only when every category with eligible
// terms has reached the bound does selection proceed past it, which keeps the
// bound an invariant at decision time without stalling a nearly exhausted
// catalog.
func (s *BalancedStrategy) SelectPair(view *SelectionView) (catalog.CategoryQuery, bool) {
	bound := s.FairnessBound(view.Catalog.Len())

	if q, ok := s.selectUnder(view, bound); ok {
		return q, true
	}
	return s.selectUnder(view, math.MaxInt)
}

func (s *BalancedStrategy) selectUnder(view *SelectionView, bound int) (catalog.CategoryQuery, bool) {
	var (
		best      catalog.CategoryQuery
		bestCount int
		found     bool
	)

	for _, cat := range view.Catalog.Categories() {
		count := view.CountFor(cat)
		if count >= bound {
			continue
		}
		if found && count >= bestCount {
			continue
		}
		q, ok := view.Catalog.NextUnexhausted(cat, func(c, t string) bool {
			return !view.Eligible(c, t)
		})
		if !ok {
			continue
		}
		best = q
		bestCount = count
		found = true
	}

	return best, found
}

// SpeedStrategy maximizes throughput: flat catalog order, larger pages, no
// fairness checks
type SpeedStrategy struct {
	pageSize int
}

// Name returns the strategy identifier
func (s *SpeedStrategy) Name() string { return config.StrategySpeed }

// PageSize returns the discovery page size for this strategy
func (s *SpeedStrategy) PageSize() int { return s.pageSize }

// SelectPair picks the first eligible pair in flat catalog order
func (s *SpeedStrategy) SelectPair(view *SelectionView) (catalog.CategoryQuery, bool) {
	for _, cat := range view.Catalog.Categories() {
		q, ok := view.Catalog.NextUnexhausted(cat, func(c, t string) bool {
			return !view.Eligible(c, t)
		})
		if ok {
			return q, true
		}
	}
	return catalog.CategoryQuery{}, false
}
