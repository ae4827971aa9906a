package agents

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// LearningAgent posts best-effort analytics from recent trades. It never
// affects the cycle result (§4.5 Stage F) — callers must not block the
// cycle on its completion and must ignore its error.
type LearningAgent struct{}

func (LearningAgent) Name() Name { return NameLearning }

func (LearningAgent) Run(ctx context.Context, recentClosedPnL decimal.Decimal, openPositions int) (any, error) {
	note := fmt.Sprintf("recent closed pnl %s across %d open positions", recentClosedPnL.String(), openPositions)
	return LearningOutput{Note: note}, nil
}
