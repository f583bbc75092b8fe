package compaction

import "github.com/crystaldolphin/ctxbudget/internal/schema"

// Budget is the token ceiling one compaction aims for.
type Budget struct {
	ContextTokens  int
	TargetFraction float64
}

// NewBudget derives a Budget from a model descriptor.
func NewBudget(model schema.Model, targetFraction float64) Budget {
	return Budget{ContextTokens: model.ContextTokens, TargetFraction: targetFraction}
}

// Limit returns TargetFraction × ContextTokens, rounded down.
func (b Budget) Limit() int {
	return int(float64(b.ContextTokens) * b.TargetFraction)
}

// Exceeded reports whether usage is above the limit. A budget without a
// context size is never exceeded.
func (b Budget) Exceeded(usage int) bool {
	if b.ContextTokens <= 0 {
		return false
	}
	return usage > b.Limit()
}
