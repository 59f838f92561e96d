package collector

import (
	"fmt"
	"sync"

	"hazmate/pkg/metrics"
	"hazmate/pkg/models"
)

// OfferResult classifies the outcome of offering an item to the accumulator
type OfferResult int

const (
	// Inserted means the item was new and entered the result set
	Inserted OfferResult = iota
	// Duplicate means the identifier was already collected; the offer is a
	// no-op, never an error
	Duplicate
)

func (r OfferResult) String() string {
	switch r {
	case Inserted:
		return "inserted"
	case Duplicate:
		return "duplicate"
	default:
		return fmt.Sprintf("offer_result(%d)", int(r))
	}
}

// Sink consumes inserted items as they are accepted. Implementations are
// called under the accumulator lock, so the stream order matches insertion
// order exactly.
type Sink interface {
	Write(item *models.CollectedItem) error
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(item *models.CollectedItem) error

// Write calls the wrapped function
func (f SinkFunc) Write(item *models.CollectedItem) error { return f(item) }

// Accumulator is the single source of truth for which items have been
// collected. Offer is linearizable: no two callers can both observe Inserted
// for the same identifier. The seen set never shrinks during a run.
type Accumulator struct {
	mu         sync.Mutex
	seen       map[string]struct{}
	counts     map[string]int
	families   map[string]map[string]struct{}
	duplicates int
	target     int
	sink       Sink
}

// NewAccumulator creates an accumulator bounded by the given target size.
// The sink may be nil when no downstream consumer is attached.
func NewAccumulator(target int, sink Sink) *Accumulator {
	return &Accumulator{
		seen:     make(map[string]struct{}),
		counts:   make(map[string]int),
		families: make(map[string]map[string]struct{}),
		target:   target,
		sink:     sink,
	}
}

// Offer inserts the item unless its identifier was already seen. The sink is
// invoked for inserted items only; a sink failure surfaces to the caller and
// the item still counts as inserted (the seen set never shrinks).
func (a *Accumulator) Offer(item *models.CollectedItem) (OfferResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, dup := a.seen[item.ItemID]; dup {
		a.duplicates++
		metrics.ItemsDuplicate.Inc()
		return Duplicate, nil
	}

	a.seen[item.ItemID] = struct{}{}
	a.counts[item.SourceCategory]++
	if item.FamilyName != "" {
		fams := a.families[item.SourceCategory]
		if fams == nil {
			fams = make(map[string]struct{})
			a.families[item.SourceCategory] = fams
		}
		fams[item.FamilyName] = struct{}{}
	}
	metrics.ItemsCollected.WithLabelValues(item.SourceCategory).Inc()

	if a.sink != nil {
		if err := a.sink.Write(item); err != nil {
			return Inserted, fmt.Errorf("sink rejected item %s: %w", item.ItemID, err)
		}
	}

	return Inserted, nil
}

// Seen reports whether the identifier has already been collected
func (a *Accumulator) Seen(itemID string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	_, ok := a.seen[itemID]
	return ok
}

// Count returns the number of collected items
func (a *Accumulator) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.seen)
}

// CountFor returns the number of items collected for a category
func (a *Accumulator) CountFor(category string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.counts[category]
}

// FamiliesFor returns the number of distinct product families collected for
// a category, the diversity key reported per category
func (a *Accumulator) FamiliesFor(category string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.families[category])
}

// Duplicates returns how many offers were classified Duplicate
func (a *Accumulator) Duplicates() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	return a.duplicates
}

// Target returns the configured target size
func (a *Accumulator) Target() int {
	return a.target
}

// TargetReached reports whether the target size has been met
func (a *Accumulator) TargetReached() bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	return len(a.seen) >= a.target
}

// Counts returns a copy of the per-category counts
func (a *Accumulator) Counts() map[string]int {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]int, len(a.counts))
	for cat, n := range a.counts {
		out[cat] = n
	}
	return out
}

// FamilyCounts returns a copy of the per-category family diversity counts
func (a *Accumulator) FamilyCounts() map[string]int {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make(map[string]int, len(a.families))
	for cat, fams := range a.families {
		out[cat] = len(fams)
	}
	return out
}

// SeenIDs returns a copy of the seen identifiers, for checkpointing
func (a *Accumulator) SeenIDs() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	out := make([]string, 0, len(a.seen))
	for id := range a.seen {
		out = append(out, id)
	}
	return out
}

// Restore seeds the accumulator from a previous run's checkpoint. Items
// restored this way count toward the target but are not re-emitted to the
// sink.
func (a *Accumulator) Restore(seenIDs []string, counts map[string]int) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, id := range seenIDs {
		a.seen[id] = struct{}{}
	}
	for cat, n := range counts {
		a.counts[cat] = n
	}
}
