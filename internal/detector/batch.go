package detector

import (
	"context"
	"errors"
	"math"
	"sync"

	"github.com/opensource-finance/kestrel/internal/domain"
	"go.opentelemetry.io/otel/attribute"
)

// DetectBatch scores up to domain.MaxBatchSize transactions.
//
// The batch is rejected with a *domain.InvalidBatchError before any item is
// scored when it is empty or too large. Otherwise every index yields exactly one
// item, in input order; a failing transaction becomes a failure item and the
// rest of the batch proceeds. Items not started when ctx ends carry its error.
func (d *Detector) DetectBatch(ctx context.Context, txs []domain.TransactionInput) (*domain.BatchResult, error) {
	if err := ValidateBatchSize(len(txs)); err != nil {
		return nil, err
	}

	ctx, span := d.tracer.Start(ctx, "detector.DetectBatch")
	defer span.End()

	start := d.now()
	results := make([]domain.BatchItem, len(txs))

	var wg sync.WaitGroup
	sem := make(chan struct{}, d.workers)

	for i := range txs {
		results[i].TransactionIndex = i

		// Acquire before spawning so a single worker scores items in input order.
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			results[i].Error = ctx.Err().Error()
			continue
		}

		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := d.detect(ctx, &txs[idx])
			if err != nil {
				results[idx].Error = itemError(err)
				return
			}
			results[idx].Result = result
		}(i)
	}

	wg.Wait()

	total := elapsedMs(start, d.now())
	batch := &domain.BatchResult{
		BatchSize:               len(txs),
		Processed:               len(results),
		TotalProcessingTimeMs:   total,
		AverageProcessingTimeMs: int64(math.Round(float64(total) / float64(len(txs)))),
		Results:                 results,
	}

	span.SetAttributes(
		attribute.Int("batch_size", batch.BatchSize),
		attribute.Int("failed", batch.Failed()),
	)
	if d.obs != nil {
		for _, item := range results {
			if item.OK() {
				d.obs.ObserveDetection(item.Result)
			}
		}
		d.obs.ObserveBatch(batch)
	}
	return batch, nil
}

// ValidateBatchSize checks the batch size ceiling.
func ValidateBatchSize(n int) error {
	switch {
	case n == 0:
		return &domain.InvalidBatchError{Size: n, Reason: domain.ReasonEmpty}
	case n > domain.MaxBatchSize:
		return &domain.InvalidBatchError{Size: n, Reason: domain.ReasonTooLarge}
	}
	return nil
}

func itemError(err error) string {
	if errors.Is(err, ErrPanic) || err.Error() == "" {
		return domain.ProcessingErrorMessage
	}
	return err.Error()
}
