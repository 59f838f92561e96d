package fetcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"hazmate/pkg/catalog"
	errs "hazmate/pkg/errors"
	"hazmate/pkg/logger"
	"hazmate/pkg/metrics"
	"hazmate/pkg/models"
)

// Job is one page fetch: discover a page for the pair, then pull the detail
// record for every summary on it
type Job struct {
	Query  catalog.CategoryQuery
	Offset int
	Limit  int
}

// Result is the outcome of one job. Items holds the fully fetched records;
// the tallies account for every summary that did not become an item. Err is
// set for page-level failures (the page could not be discovered, or fetching
// was cut short by rate limiting or a fatal error).
type Result struct {
	Job        Job
	Items      []models.CollectedItem
	Total      int
	PageLen    int
	SchemaErrs int
	NotFound   int
	Skipped    int
	Err        error
	Duration   time.Duration
}

// SeenChecker lets workers skip detail calls for items already collected.
// Advisory only: the accumulator re-checks on insertion.
type SeenChecker interface {
	Seen(itemID string) bool
}

// WorkerPool runs fetch jobs concurrently within a parallelism bound
type WorkerPool struct {
	numWorkers  int
	jobQueue    chan Job
	resultQueue chan Result
	wg          sync.WaitGroup
	ctx         context.Context
	cancel      context.CancelFunc
	executor    Executor
	seen        SeenChecker
	logger      logger.Logger
}

// NewWorkerPool creates a fetch worker pool
func NewWorkerPool(numWorkers int, executor Executor, seen SeenChecker, log logger.Logger) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())

	if log == nil {
		log = logger.GetLogger()
	}

	return &WorkerPool{
		numWorkers:  numWorkers,
		jobQueue:    make(chan Job, numWorkers*2),
		resultQueue: make(chan Result, numWorkers),
		ctx:         ctx,
		cancel:      cancel,
		executor:    executor,
		seen:        seen,
		logger:      log,
	}
}

// Start launches the workers
func (wp *WorkerPool) Start() {
	wp.logger.InfoWithFields("starting fetch worker pool", map[string]interface{}{
		"num_workers": wp.numWorkers,
	})

	for i := 0; i < wp.numWorkers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop shuts the pool down. No further Submit calls may be made; pending
// jobs are drained before the result channel closes.
func (wp *WorkerPool) Stop() {
	close(wp.jobQueue)
	wp.wg.Wait()
	close(wp.resultQueue)
	wp.cancel()

	wp.logger.Info("fetch worker pool stopped")
}

// Abort cancels in-flight work without waiting for pending jobs
func (wp *WorkerPool) Abort() {
	wp.cancel()
}

// Submit queues a fetch job
func (wp *WorkerPool) Submit(job Job) error {
	select {
	case wp.jobQueue <- job:
		return nil
	case <-wp.ctx.Done():
		return fmt.Errorf("worker pool is shutting down")
	}
}

// Results returns the channel results are delivered on
func (wp *WorkerPool) Results() <-chan Result {
	return wp.resultQueue
}

func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobQueue {
		select {
		case <-wp.ctx.Done():
			return
		default:
		}

		result := wp.processJob(job, id)

		select {
		case wp.resultQueue <- result:
		case <-wp.ctx.Done():
			return
		}
	}
}

// processJob discovers one page and fetches its items. Item-level schema and
// not-found failures are tallied and the rest of the page still proceeds;
// rate limiting or a fatal error stops the page and surfaces through Err with
// whatever items were already fetched.
func (wp *WorkerPool) processJob(job Job, workerID int) Result {
	start := time.Now()
	result := Result{Job: job}

	wp.logger.DebugWithFields("worker fetching page", map[string]interface{}{
		"worker_id": workerID,
		"category":  job.Query.Category,
		"term":      job.Query.Term,
		"offset":    job.Offset,
	})

	page, err := wp.executor.SearchPage(wp.ctx, job.Query, job.Offset, job.Limit)
	if err != nil {
		result.Err = err
		result.Duration = time.Since(start)
		return result
	}

	result.Total = page.Total
	result.PageLen = page.PageLen
	result.SchemaErrs = page.SchemaErrs

	for _, summary := range page.Summaries {
		if wp.seen != nil && wp.seen.Seen(summary.ID) {
			continue
		}

		item, err := wp.executor.FetchItem(wp.ctx, job.Query, summary)
		if err != nil {
			if wp.tallyItemError(&result, err, workerID, summary.ID) {
				continue
			}
			result.Err = err
			break
		}
		result.Items = append(result.Items, *item)
	}

	result.Duration = time.Since(start)
	return result
}

// tallyItemError records a per-item failure on the result. Returns true if
// the rest of the page should still be fetched.
func (wp *WorkerPool) tallyItemError(result *Result, err error, workerID int, itemID string) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	switch errs.KindOf(err) {
	case errs.KindSchema:
		result.SchemaErrs++
		return true
	case errs.KindNotFound:
		result.NotFound++
		metrics.ItemsDropped.WithLabelValues("not_found").Inc()
		return true
	case errs.KindRateLimit, errs.KindAuth, errs.KindConfig:
		return false
	default:
		// Transient failure that outlived its retry budget: skip the item
		result.Skipped++
		metrics.ItemsDropped.WithLabelValues("transient").Inc()
		wp.logger.WithError(err).WithFields(map[string]interface{}{
			"worker_id": workerID,
			"item_id":   itemID,
		}).Warn("skipping item after exhausted retries")
		return true
	}
}
