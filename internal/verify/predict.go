package verify

import (
	"context"

	"go.uber.org/zap"

	"github.com/mosport/venue-signal/internal/lifecycle"
	"github.com/mosport/venue-signal/internal/model"
)

// Predictor is the COOL/COLD hook for low-cost heuristics that run far from
// kickoff.
type Predictor interface {
	Predict(ctx context.Context, tier model.Tier, ev model.Event) error
}

// NopPredictor leaves events untouched.
type NopPredictor struct{}

func (NopPredictor) Predict(context.Context, model.Tier, model.Event) error { return nil }

// LogPredictor records when each event is next due for a check. It is the
// default for the serve command.
type LogPredictor struct{}

func (LogPredictor) Predict(_ context.Context, tier model.Tier, ev model.Event) error {
	zap.L().Debug("prediction pending",
		zap.String("component", "verify.predict"),
		zap.String("event_id", ev.ID),
		zap.String("tier", string(tier)),
		zap.Duration("next_check", lifecycle.Frequency(tier)),
	)
	return nil
}
