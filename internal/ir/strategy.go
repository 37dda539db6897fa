package ir

import "fmt"

// Strategy selects how competing inputs for one decision point are resolved.
type Strategy string

const (
	// StrategyPriority picks the input with the lowest effective priority.
	StrategyPriority Strategy = "priority"
	// StrategyLatest picks the input with the greatest timestamp.
	StrategyLatest Strategy = "latest"
	// StrategyMerge synthesizes one input from all of them.
	StrategyMerge Strategy = "merge"
	// StrategyCustom is carried on rules whose fuser resolves conflicts itself.
	// Passed to conflict resolution it behaves like any unrecognised strategy.
	StrategyCustom Strategy = "custom"
)

// ParseStrategy converts a strategy tag. Unknown tags are rejected here even
// though conflict resolution tolerates them, so configs fail loudly on typos.
func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(s); st {
	case StrategyPriority, StrategyLatest, StrategyMerge, StrategyCustom:
		return st, nil
	}
	return "", fmt.Errorf("unknown conflict resolution strategy %q", s)
}
