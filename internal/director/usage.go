package director

import (
	"sync"

	"github.com/dirworks/director/internal/models"
)

// modelCost is a per-million-token price, trimmed to the two rates the
// Director needs: there is no prompt-cache read/write pricing since the
// provider contract doesn't expose cache token counts.
type modelCost struct {
	InputPerMillion  float64
	OutputPerMillion float64
}

// defaultCosts is a conservative placeholder price table; a deployment
// overrides it via UsageTracker.SetCost for the models it actually runs.
var defaultCosts = map[string]modelCost{
	"claude-sonnet-4-20250514": {InputPerMillion: 3, OutputPerMillion: 15},
	"claude-opus-4-20250514":   {InputPerMillion: 15, OutputPerMillion: 75},
	"claude-3-5-sonnet-20241022": {InputPerMillion: 3, OutputPerMillion: 15},
	"claude-3-haiku-20240307":  {InputPerMillion: 0.25, OutputPerMillion: 1.25},
}

// UsageTracker accumulates per-workflow token usage across turns.
// Totals are keyed by workflow id so usage reads back per workflow, not
// globally.
type UsageTracker struct {
	mu     sync.Mutex
	totals map[string]*models.TokenUsage
	costs  map[string]modelCost
}

// NewUsageTracker creates a tracker seeded with defaultCosts.
func NewUsageTracker() *UsageTracker {
	costs := make(map[string]modelCost, len(defaultCosts))
	for k, v := range defaultCosts {
		costs[k] = v
	}
	return &UsageTracker{
		totals: make(map[string]*models.TokenUsage),
		costs:  costs,
	}
}

// SetCost overrides (or adds) the per-million-token price for a model.
func (t *UsageTracker) SetCost(model string, inputPerMillion, outputPerMillion float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.costs[model] = modelCost{InputPerMillion: inputPerMillion, OutputPerMillion: outputPerMillion}
}

// Record adds one turn's usage to workflowID's running total, estimates
// its cost from model's price table entry (zero if unknown), and returns
// the per-turn usage with CostUSD filled in.
func (t *UsageTracker) Record(workflowID, model string, input, output, reasoning int) models.TokenUsage {
	t.mu.Lock()
	defer t.mu.Unlock()

	cost := t.costs[model]
	turn := models.TokenUsage{
		Input:     input,
		Output:    output,
		Reasoning: reasoning,
		Total:     input + output, // reasoning is already counted in output
		CostUSD:   float64(input)*cost.InputPerMillion/1_000_000 + float64(output)*cost.OutputPerMillion/1_000_000,
	}

	total := t.totals[workflowID]
	if total == nil {
		total = &models.TokenUsage{}
		t.totals[workflowID] = total
	}
	total.Input += turn.Input
	total.Output += turn.Output
	total.Reasoning += turn.Reasoning
	total.Total += turn.Total
	total.CostUSD += turn.CostUSD

	return turn
}

// Totals returns workflowID's accumulated usage across all turns.
func (t *UsageTracker) Totals(workflowID string) models.TokenUsage {
	t.mu.Lock()
	defer t.mu.Unlock()
	if total := t.totals[workflowID]; total != nil {
		return *total
	}
	return models.TokenUsage{}
}
