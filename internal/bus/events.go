package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opensource-finance/shamba/internal/domain"
	"github.com/opensource-finance/shamba/internal/policy"
)

// PublishScore publishes ev on TopicScoreComputed and, when the fraud gate
// rejected the farmer, on TopicFraudFlagged as well.
func PublishScore(ctx context.Context, b domain.EventBus, ev domain.ScoreEvent) error {
	if ev.Result == nil {
		return errors.New("score event has no result")
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal score event: %w", err)
	}

	if err := b.Publish(ctx, domain.TopicScoreComputed, payload); err != nil {
		return fmt.Errorf("publish %s: %w", domain.TopicScoreComputed, err)
	}

	if policy.FraudGated(ev.Result.FraudScore) {
		if err := b.Publish(ctx, domain.TopicFraudFlagged, payload); err != nil {
			return fmt.Errorf("publish %s: %w", domain.TopicFraudFlagged, err)
		}
	}
	return nil
}
