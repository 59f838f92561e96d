package collector

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hazmate/pkg/models"
)

func item(id, category, family string) *models.CollectedItem {
	return &models.CollectedItem{
		ItemID:         id,
		Name:           "item " + id,
		FamilyName:     family,
		SourceCategory: category,
	}
}

func TestOfferIsIdempotent(t *testing.T) {
	acc := NewAccumulator(10, nil)

	res, err := acc.Offer(item("MLB1", "c1", ""))
	require.NoError(t, err)
	assert.Equal(t, Inserted, res)
	assert.Equal(t, 1, acc.Count())

	// Re-offering the same identifier is a duplicate, never an error
	res, err = acc.Offer(item("MLB1", "c1", ""))
	require.NoError(t, err)
	assert.Equal(t, Duplicate, res)
	assert.Equal(t, 1, acc.Count())
	assert.Equal(t, 1, acc.Duplicates())
}

func TestOfferDuplicateAcrossCategories(t *testing.T) {
	acc := NewAccumulator(10, nil)

	_, err := acc.Offer(item("MLB1", "c1", ""))
	require.NoError(t, err)
	res, err := acc.Offer(item("MLB1", "c2", ""))
	require.NoError(t, err)

	assert.Equal(t, Duplicate, res)
	assert.Equal(t, 1, acc.CountFor("c1"))
	assert.Equal(t, 0, acc.CountFor("c2"))
}

func TestTargetReached(t *testing.T) {
	acc := NewAccumulator(2, nil)

	assert.False(t, acc.TargetReached())
	acc.Offer(item("MLB1", "c1", ""))
	assert.False(t, acc.TargetReached())
	acc.Offer(item("MLB2", "c1", ""))
	assert.True(t, acc.TargetReached())
}

func TestFamilyDiversityTracking(t *testing.T) {
	acc := NewAccumulator(10, nil)

	acc.Offer(item("MLB1", "c1", "Thinner"))
	acc.Offer(item("MLB2", "c1", "Thinner"))
	acc.Offer(item("MLB3", "c1", "Aguarras"))
	acc.Offer(item("MLB4", "c1", ""))

	assert.Equal(t, 2, acc.FamiliesFor("c1"))
	assert.Equal(t, 0, acc.FamiliesFor("c2"))
	assert.Equal(t, map[string]int{"c1": 2}, acc.FamilyCounts())
}

func TestSinkReceivesInsertedOnly(t *testing.T) {
	var written []string
	sink := SinkFunc(func(it *models.CollectedItem) error {
		written = append(written, it.ItemID)
		return nil
	})
	acc := NewAccumulator(10, sink)

	acc.Offer(item("MLB1", "c1", ""))
	acc.Offer(item("MLB1", "c1", ""))
	acc.Offer(item("MLB2", "c1", ""))

	assert.Equal(t, []string{"MLB1", "MLB2"}, written)
}

func TestSinkFailureSurfacesButItemStaysSeen(t *testing.T) {
	sink := SinkFunc(func(it *models.CollectedItem) error {
		return fmt.Errorf("disk full")
	})
	acc := NewAccumulator(10, sink)

	res, err := acc.Offer(item("MLB1", "c1", ""))
	require.Error(t, err)
	assert.Equal(t, Inserted, res)
	assert.True(t, acc.Seen("MLB1"))
}

func TestConcurrentOffersLinearizable(t *testing.T) {
	acc := NewAccumulator(1000, nil)

	const workers = 8
	var wg sync.WaitGroup
	inserted := make([]int, workers)

	// Every worker offers the same 100 identifiers
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				res, err := acc.Offer(item(fmt.Sprintf("MLB%d", i), "c1", ""))
				assert.NoError(t, err)
				if res == Inserted {
					inserted[w]++
				}
			}
		}(w)
	}
	wg.Wait()

	// No two workers can both observe Inserted for the same identifier
	total := 0
	for _, n := range inserted {
		total += n
	}
	assert.Equal(t, 100, total)
	assert.Equal(t, 100, acc.Count())
	assert.Equal(t, (workers-1)*100, acc.Duplicates())
}

func TestRestore(t *testing.T) {
	acc := NewAccumulator(10, nil)
	acc.Restore([]string{"MLB1", "MLB2"}, map[string]int{"c1": 2})

	assert.Equal(t, 2, acc.Count())
	assert.Equal(t, 2, acc.CountFor("c1"))
	assert.True(t, acc.Seen("MLB1"))

	res, err := acc.Offer(item("MLB1", "c1", ""))
	require.NoError(t, err)
	assert.Equal(t, Duplicate, res)
}
