package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/menta2k/plate-analyzer/pkg/types"
)

// Batch groups the tasks of one request. Results carry the submission
// index as Seq so ranking can break ties by submission order.
type Batch struct {
	pool        *Pool
	submitted   int
	outstanding []TaskID
}

// NewBatch starts an empty batch on the pool
func (p *Pool) NewBatch() *Batch {
	return &Batch{pool: p}
}

// Submit queues one attempt as part of the batch
func (b *Batch) Submit(v types.Variant, rc types.RecognitionConfig) (TaskID, error) {
	id, err := b.pool.submit(v, rc, b.submitted)
	if err != nil {
		return 0, err
	}
	b.submitted++
	b.outstanding = append(b.outstanding, id)
	return id, nil
}

// Len returns the number of accepted submissions
func (b *Batch) Len() int { return b.submitted }

// Outstanding returns the number of tasks not yet collected
func (b *Batch) Outstanding() int { return len(b.outstanding) }

// Collect waits up to timeout for the outstanding tasks and returns the
// results that arrived, in submission order. When some tasks are still
// running at the deadline the arrived results are returned together with
// ErrResultTimeout; the missing tasks stay outstanding.
func (b *Batch) Collect(ctx context.Context, timeout time.Duration) ([]types.RecognitionResult, error) {
	deadline := time.Now().Add(timeout)
	results := make([]types.RecognitionResult, 0, len(b.outstanding))
	var missing []TaskID

	for i, id := range b.outstanding {
		wait := time.Until(deadline)
		if wait <= 0 {
			wait = -1
		}
		r, err := b.pool.Await(ctx, id, wait)
		switch {
		case err == nil:
			results = append(results, r)
		case errors.Is(err, ErrResultTimeout):
			missing = append(missing, id)
		case errors.Is(err, ErrUnknownTask):
			// discarded or closed underneath us
		default:
			missing = append(missing, b.outstanding[i:]...)
			b.outstanding = missing
			return results, err
		}
	}

	b.outstanding = missing
	if len(missing) > 0 {
		return results, fmt.Errorf("%d of %d tasks unfinished: %w", len(missing), b.submitted, ErrResultTimeout)
	}
	return results, nil
}

// Close discards every task that was never collected
func (b *Batch) Close() {
	if len(b.outstanding) > 0 {
		b.pool.Discard(b.outstanding...)
		b.outstanding = nil
	}
}
