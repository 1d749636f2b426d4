package quality

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDigestAccumulatesAcrossRuns(t *testing.T) {
	q := NewDigestQueue()

	// Three separate runs contribute 3 + 2 + 2 issues
	q.Append(
		Issue{Severity: SeverityWarning, Type: "missing_field", Count: 1},
		Issue{Severity: SeverityWarning, Type: "stale_price", Count: 4},
		Issue{Severity: SeverityInfo, Type: "minor_drift", Count: 1},
	)
	q.Append(
		Issue{Severity: SeverityWarning, Type: "missing_field", Count: 2},
		Issue{Severity: SeverityInfo, Type: "minor_drift", Count: 1},
	)
	q.Append(
		Issue{Severity: SeverityWarning, Type: "gap", Count: 1},
		Issue{Severity: SeverityWarning, Type: "gap", Count: 1},
	)

	assert.Equal(t, 7, q.Len())

	drained := q.Flush()
	assert.Len(t, drained, 7)
	assert.Equal(t, "missing_field", drained[0].Type)

	// A flush empties the queue; a second flush yields nothing
	assert.Zero(t, q.Len())
	assert.Empty(t, q.Flush())
}

func TestDigestAppendEmptyIsNoop(t *testing.T) {
	q := NewDigestQueue()
	q.Append()
	assert.Zero(t, q.Len())
}

func TestDigestConcurrentAppendersLoseNothing(t *testing.T) {
	q := NewDigestQueue()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Append(Issue{Severity: SeverityInfo, Type: "noise", Count: 1})
			}
		}()
	}
	wg.Wait()

	assert.Len(t, q.Flush(), 1000)
}
