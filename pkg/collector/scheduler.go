package collector

import (
	"context"
	"errors"
	"time"

	"hazmate/internal/fetcher"
	"hazmate/pkg/catalog"
	"hazmate/pkg/config"
	errs "hazmate/pkg/errors"
	"hazmate/pkg/logger"
	"hazmate/pkg/metrics"
	"hazmate/pkg/retry"
)

// State names the scheduler's state machine states
type State string

const (
	StateSelecting  State = "SELECTING"
	StateFetching   State = "FETCHING"
	StateBackingOff State = "BACKING_OFF"
	StateDone       State = "DONE"
)

// FetchPool is the slice of the worker pool the scheduler drives
type FetchPool interface {
	Start()
	Stop()
	Abort()
	Submit(job fetcher.Job) error
	Results() <-chan fetcher.Result
}

// PairSnapshot is the persisted paging state of one (category, term) pair
type PairSnapshot struct {
	Category  string `json:"category"`
	Term      string `json:"term"`
	Offset    int    `json:"offset"`
	Exhausted bool   `json:"exhausted"`
}

// Snapshot captures run progress for checkpointing
type Snapshot struct {
	Strategy     string         `json:"strategy"`
	Target       int            `json:"target"`
	Counts       map[string]int `json:"counts"`
	SeenIDs      []string       `json:"seen_ids"`
	Pairs        []PairSnapshot `json:"pairs"`
	PagesFetched int            `json:"pages_fetched"`
	Duplicates   int            `json:"duplicates"`
	SchemaErrors int            `json:"schema_errors"`
	NotFound     int            `json:"not_found"`
	SkippedItems int            `json:"skipped_items"`
	SkippedPairs int            `json:"skipped_pairs"`
	SavedAt      time.Time      `json:"saved_at"`
}

// Checkpointer persists snapshots between runs
type Checkpointer interface {
	Save(snap *Snapshot) error
}

type pairKey struct {
	category string
	term     string
}

// pairState tracks one (category, term) pair through the run. A pair is the
// unit of scheduling work; it is exhausted when its paging envelope is spent
// or its rate-limit retry budget is.
type pairState struct {
	offset    int
	total     int
	attempts  int
	inFlight  bool
	deferred  bool
	exhausted bool
}

// Scheduler is the run's single coordinating control flow. It owns all
// scheduling state; workers only execute fetches, and their results mutate
// nothing until the loop consumes them, so an abandoned in-flight fetch
// cannot corrupt the run.
type Scheduler struct {
	catalog  *catalog.Catalog
	strategy Strategy
	acc      *Accumulator
	pool     FetchPool
	cfg      *config.CollectionConfig
	logger   logger.Logger

	rateLimitAttempts int
	backoff           retry.BackoffStrategy

	checkpointer    Checkpointer
	checkpointEvery int

	state        State
	pairs        map[pairKey]*pairState
	inFlight     int
	backoffUntil time.Time
	consecRL     int

	pagesFetched  int
	schemaErrors  int
	notFound      int
	skippedItems  int
	skippedPairs  int
	rateLimitHits int
}

// SchedulerOption configures a Scheduler
type SchedulerOption func(*Scheduler)

// WithCheckpointer saves a snapshot through cp every n applied results
func WithCheckpointer(cp Checkpointer, every int) SchedulerOption {
	return func(s *Scheduler) {
		s.checkpointer = cp
		s.checkpointEvery = every
	}
}

// WithBackoff overrides the rate-limit backoff profile
func WithBackoff(b retry.BackoffStrategy) SchedulerOption {
	return func(s *Scheduler) { s.backoff = b }
}

// NewScheduler creates a scheduler for one collection run
func NewScheduler(cat *catalog.Catalog, strategy Strategy, acc *Accumulator, pool FetchPool, cfg *config.CollectionConfig, rl *config.RateLimitConfig, log logger.Logger, opts ...SchedulerOption) *Scheduler {
	if log == nil {
		log = logger.GetLogger()
	}

	s := &Scheduler{
		catalog:           cat,
		strategy:          strategy,
		acc:               acc,
		pool:              pool,
		cfg:               cfg,
		logger:            log,
		rateLimitAttempts: rl.MaxAttempts,
		backoff: &retry.ExponentialBackoff{
			BaseDelay:    rl.BackoffBase,
			MaxDelay:     rl.BackoffMax,
			Multiplier:   rl.BackoffMultiplier,
			JitterFactor: rl.JitterFactor,
		},
		state: StateSelecting,
		pairs: make(map[pairKey]*pairState),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Restore seeds the scheduler's pair state from a checkpoint. The
// accumulator is restored separately by the caller.
func (s *Scheduler) Restore(snap *Snapshot) {
	for _, p := range snap.Pairs {
		s.pairs[pairKey{p.Category, p.Term}] = &pairState{
			offset:    p.Offset,
			total:     -1,
			exhausted: p.Exhausted,
		}
	}
	s.pagesFetched = snap.PagesFetched
	s.schemaErrors = snap.SchemaErrors
	s.notFound = snap.NotFound
	s.skippedItems = snap.SkippedItems
	s.skippedPairs = snap.SkippedPairs
}

// Run executes the collection until the target is reached, the catalog is
// exhausted, a budget expires or a fatal error occurs. A Summary is always
// produced; the error is non-nil only for auth/config aborts and external
// cancellation.
func (s *Scheduler) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()

	if s.cfg.Deadline > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.Deadline)
		defer cancel()
	}

	s.pool.Start()
	defer s.shutdown()

	var (
		reason         string
		runErr         error
		resultsApplied int
	)

loop:
	for {
		if reason == "" && s.acc.TargetReached() {
			reason = ReasonTargetReached
		}
		if reason == "" && s.cfg.MaxPages > 0 && s.pagesFetched >= s.cfg.MaxPages {
			reason = ReasonPageBudget
		}
		if reason != "" {
			break
		}

		s.setState(StateSelecting)
		s.dispatch()

		if s.inFlight == 0 {
			if s.allExhausted() {
				reason = ReasonCatalogExhausted
				break
			}

			// Everything still schedulable sits behind the backoff window
			s.setState(StateBackingOff)
			delay := time.Until(s.backoffUntil)
			if delay < 0 {
				delay = 0
			}
			s.logger.WithField("delay", delay.String()).Info("rate limited, backing off")
			metrics.BackoffSeconds.Observe(delay.Seconds())
			if err := retry.Wait(ctx, delay); err != nil {
				reason, runErr = s.cancelOutcome(ctx)
				break
			}
			continue
		}

		s.setState(StateFetching)
		select {
		case <-ctx.Done():
			reason, runErr = s.cancelOutcome(ctx)
			break loop
		case result := <-s.pool.Results():
			s.inFlight--
			if err := s.applyResult(&result); err != nil {
				reason, runErr = ReasonAborted, err
				break loop
			}
			resultsApplied++
			if s.checkpointer != nil && s.checkpointEvery > 0 && resultsApplied%s.checkpointEvery == 0 {
				if err := s.checkpointer.Save(s.snapshot()); err != nil {
					s.logger.WithError(err).Warn("checkpoint save failed")
				}
			}
		}
	}

	s.setState(StateDone)

	if s.checkpointer != nil {
		if err := s.checkpointer.Save(s.snapshot()); err != nil {
			s.logger.WithError(err).Warn("final checkpoint save failed")
		}
	}

	summary := s.summarize(reason, time.Since(start))
	s.logger.InfoWithFields("collection run finished", summary.Fields())
	return summary, runErr
}

// dispatch fills idle worker slots with the strategy's picks. No dispatching
// happens inside the backoff window.
func (s *Scheduler) dispatch() {
	if time.Now().Before(s.backoffUntil) {
		return
	}

	for s.inFlight < s.cfg.Parallelism {
		if s.acc.TargetReached() {
			return
		}
		if s.cfg.MaxPages > 0 && s.pagesFetched+s.inFlight >= s.cfg.MaxPages {
			return
		}

		query, ok := s.nextPair()
		if !ok {
			return
		}

		p := s.pair(query)
		job := fetcher.Job{Query: query, Offset: p.offset, Limit: s.strategy.PageSize()}
		if err := s.pool.Submit(job); err != nil {
			s.logger.WithError(err).Warn("job submission failed")
			return
		}

		p.inFlight = true
		s.inFlight++
		if p.deferred {
			p.deferred = false
		} else {
			// A different pair went out first; requeued pairs may retry now
			s.clearDeferred()
		}
	}
}

// nextPair asks the strategy for a pair, preferring pairs that were not
// deferred by a rate limit. Deferred pairs are only offered once nothing
// else is schedulable.
func (s *Scheduler) nextPair() (catalog.CategoryQuery, bool) {
	if q, ok := s.strategy.SelectPair(s.view(false)); ok {
		return q, true
	}
	return s.strategy.SelectPair(s.view(true))
}

// view builds the strategy's read-only selection view
func (s *Scheduler) view(includeDeferred bool) *SelectionView {
	return &SelectionView{
		Catalog:  s.catalog,
		CountFor: s.acc.CountFor,
		Eligible: func(category, term string) bool {
			p, ok := s.pairs[pairKey{category, term}]
			if !ok {
				return true
			}
			if p.exhausted || p.inFlight {
				return false
			}
			if p.deferred && !includeDeferred {
				return false
			}
			return true
		},
	}
}

// pair returns the state for a pair, creating it on first use
func (s *Scheduler) pair(query catalog.CategoryQuery) *pairState {
	key := pairKey{query.Category, query.Term}
	p, ok := s.pairs[key]
	if !ok {
		p = &pairState{total: -1}
		s.pairs[key] = p
	}
	return p
}

// applyResult folds one consumed worker result into the run state. Returns
// a non-nil error only for failures that must abort the run.
func (s *Scheduler) applyResult(result *fetcher.Result) error {
	p := s.pair(result.Job.Query)
	p.inFlight = false

	if result.Err != nil {
		return s.applyFailure(result, p)
	}

	s.pagesFetched++
	s.consecRL = 0
	s.backoffUntil = time.Time{}
	p.attempts = 0
	p.total = result.Total
	p.offset += result.PageLen
	if result.PageLen == 0 || (p.total >= 0 && p.offset >= p.total) {
		p.exhausted = true
	}

	s.schemaErrors += result.SchemaErrs
	s.notFound += result.NotFound
	s.skippedItems += result.Skipped

	for i := range result.Items {
		if s.acc.TargetReached() {
			break
		}
		if _, err := s.acc.Offer(&result.Items[i]); err != nil {
			return err
		}
	}

	logger.LogCollectProgress(s.acc.Count(), s.acc.Target())
	return nil
}

// applyFailure handles a page-level failure for a pair
func (s *Scheduler) applyFailure(result *fetcher.Result, p *pairState) error {
	err := result.Err
	query := result.Job.Query

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}

	switch errs.KindOf(err) {
	case errs.KindRateLimit:
		s.handleRateLimit(query, p)
		return nil
	case errs.KindAuth, errs.KindConfig:
		return err
	default:
		// Unclassified page failure: give the pair up and tally the loss
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"category": query.Category,
			"term":     query.Term,
		}).Warn("giving up on pair after unclassified failure")
		p.exhausted = true
		s.skippedPairs++
		return nil
	}
}

// handleRateLimit requeues the pair behind a global backoff window. The pair
// is deferred so a different pair is attempted first; past the retry ceiling
// the pair is skipped and reported instead.
func (s *Scheduler) handleRateLimit(query catalog.CategoryQuery, p *pairState) {
	s.rateLimitHits++
	s.consecRL++
	metrics.RateLimitHits.Inc()

	p.attempts++
	if p.attempts > s.rateLimitAttempts {
		s.logger.WithFields(map[string]interface{}{
			"category": query.Category,
			"term":     query.Term,
			"attempts": p.attempts,
		}).Warn("skipping pair, rate-limit retry budget exhausted")
		p.exhausted = true
		s.skippedPairs++
		return
	}

	p.deferred = true
	delay := s.backoff.NextDelay(s.consecRL)
	s.backoffUntil = time.Now().Add(delay)
	logger.LogRateLimit(query.Category, query.Term, delay)
}

// allExhausted reports whether every (category, term) pair is spent
func (s *Scheduler) allExhausted() bool {
	for _, cat := range s.catalog.Categories() {
		_, ok := s.catalog.NextUnexhausted(cat, func(c, t string) bool {
			p, tracked := s.pairs[pairKey{c, t}]
			return tracked && p.exhausted
		})
		if ok {
			return false
		}
	}
	return true
}

// clearDeferred lifts rate-limit deferrals
func (s *Scheduler) clearDeferred() {
	for _, p := range s.pairs {
		p.deferred = false
	}
}

// cancelOutcome maps a context cancellation to a termination reason. An
// expired run deadline is a normal partial-success outcome, not a failure.
func (s *Scheduler) cancelOutcome(ctx context.Context) (string, error) {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && s.cfg.Deadline > 0 {
		return ReasonDeadline, nil
	}
	return ReasonCancelled, ctx.Err()
}

func (s *Scheduler) setState(state State) {
	if s.state == state {
		return
	}
	s.logger.WithField("from", string(s.state)).WithField("to", string(state)).
		Debug("scheduler state transition")
	s.state = state
}

// snapshot captures the current run state for checkpointing
func (s *Scheduler) snapshot() *Snapshot {
	pairs := make([]PairSnapshot, 0, len(s.pairs))
	for key, p := range s.pairs {
		pairs = append(pairs, PairSnapshot{
			Category:  key.category,
			Term:      key.term,
			Offset:    p.offset,
			Exhausted: p.exhausted,
		})
	}

	return &Snapshot{
		Strategy:     s.strategy.Name(),
		Target:       s.acc.Target(),
		Counts:       s.acc.Counts(),
		SeenIDs:      s.acc.SeenIDs(),
		Pairs:        pairs,
		PagesFetched: s.pagesFetched,
		Duplicates:   s.acc.Duplicates(),
		SchemaErrors: s.schemaErrors,
		NotFound:     s.notFound,
		SkippedItems: s.skippedItems,
		SkippedPairs: s.skippedPairs,
		SavedAt:      time.Now(),
	}
}

// summarize builds the terminal run report
func (s *Scheduler) summarize(reason string, elapsed time.Duration) *Summary {
	if reason == "" {
		reason = ReasonAborted
	}
	return &Summary{
		Strategy:       s.strategy.Name(),
		Reason:         reason,
		TotalCollected: s.acc.Count(),
		Target:         s.acc.Target(),
		Duplicates:     s.acc.Duplicates(),
		SchemaErrors:   s.schemaErrors,
		NotFound:       s.notFound,
		SkippedItems:   s.skippedItems,
		SkippedPairs:   s.skippedPairs,
		RateLimitHits:  s.rateLimitHits,
		PagesFetched:   s.pagesFetched,
		PerCategory:    s.acc.Counts(),
		FamiliesSeen:   s.acc.FamilyCounts(),
		Elapsed:        elapsed,
	}
}

// shutdown tears the pool down, discarding any results the loop did not
// consume. Discarded results never touched the accumulator, so state stays
// consistent with what the summary reports.
func (s *Scheduler) shutdown() {
	s.pool.Abort()

	done := make(chan struct{})
	go func() {
		for range s.pool.Results() {
		}
		close(done)
	}()

	s.pool.Stop()
	<-done
}
