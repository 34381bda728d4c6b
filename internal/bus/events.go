package bus

import (
	"context"
	"fmt"

	"github.com/opensource-finance/kestrel/internal/decision"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// PublishDetection publishes event on TopicDetectionCompleted and one alert per flagged result.
// Alert publish failures are collected but do not stop the remaining alerts.
func PublishDetection(ctx context.Context, b domain.EventBus, event domain.DetectionEvent) error {
	if err := PublishEvent(ctx, b, event.TenantID, domain.TopicDetectionCompleted, event); err != nil {
		return err
	}

	var failed int
	var last error
	for _, alert := range Alerts(event) {
		if err := PublishEvent(ctx, b, event.TenantID, domain.TopicAlert, alert); err != nil {
			failed++
			last = err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d alert(s) not published: %w", failed, last)
	}
	return nil
}

// Alerts returns one alert per flagged result. Batch items get a request ID suffixed with their index.
func Alerts(event domain.DetectionEvent) []domain.DetectionEvent {
	var out []domain.DetectionEvent
	if decision.ShouldAlert(event.Result) {
		out = append(out, domain.DetectionEvent{
			RequestID: event.RequestID,
			TenantID:  event.TenantID,
			Result:    event.Result,
			Timestamp: event.Timestamp,
		})
	}
	if event.Batch != nil {
		for _, item := range event.Batch.Results {
			if !decision.ShouldAlert(item.Result) {
				continue
			}
			out = append(out, domain.DetectionEvent{
				RequestID: fmt.Sprintf("%s/%d", event.RequestID, item.TransactionIndex),
				TenantID:  event.TenantID,
				Result:    item.Result,
				Timestamp: event.Timestamp,
			})
		}
	}
	return out
}
