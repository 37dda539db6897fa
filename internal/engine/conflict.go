package engine

import (
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/fusion/internal/ir"
)

// ResolveConflict picks or synthesizes one input from competing inputs.
//
// Strategies:
//   - priority: lowest effective priority wins; ties keep the earlier input
//   - latest: greatest timestamp wins; ties keep the earlier input
//   - merge: a new input with the texts space-joined in order, the lowest
//     explicit priority (unset counts as 10), the mean confidence (unset
//     counts as 1.0), the first input's type, and the current time
//   - anything else: the first input unchanged
//
// OnConflictResolved fires before it returns. The engine's buffers are not
// touched. Returns ErrNoInputs for an empty slice.
func (e *Engine) ResolveConflict(inputs []ir.InputEvent, strategy ir.Strategy) (ir.InputEvent, error) {
	if len(inputs) == 0 {
		return ir.InputEvent{}, ErrNoInputs
	}

	e.mu.Lock()
	priorities := e.cfg.DefaultPriority
	cb, rec := e.cb, e.rec
	var now time.Time
	var seq int64
	if strategy == ir.StrategyMerge {
		now, seq = e.sched.Now(), e.clock.Next()
	}
	e.mu.Unlock()

	var resolved ir.InputEvent
	switch strategy {
	case ir.StrategyPriority:
		resolved = inputs[0]
		for _, in := range inputs[1:] {
			if in.EffectivePriority(priorities) < resolved.EffectivePriority(priorities) {
				resolved = in
			}
		}

	case ir.StrategyLatest:
		resolved = inputs[0]
		for _, in := range inputs[1:] {
			if in.Timestamp.After(resolved.Timestamp) {
				resolved = in
			}
		}

	case ir.StrategyMerge:
		merged, err := mergeInputs(inputs, now, seq)
		if err != nil {
			return ir.InputEvent{}, err
		}
		resolved = merged

	default:
		resolved = inputs[0]
	}

	slog.Debug("conflict resolved",
		"strategy", strategy,
		"inputs", len(inputs),
		"resolved_id", resolved.ID,
	)

	originals := append([]ir.InputEvent(nil), inputs...)
	rec.LogConflict(originals, strategy, resolved)
	if cb.OnConflictResolved != nil {
		cb.OnConflictResolved(originals, resolved)
	}
	return resolved, nil
}

func mergeInputs(inputs []ir.InputEvent, now time.Time, seq int64) (ir.InputEvent, error) {
	id, err := ir.MergedInputID(ir.InputIDs(inputs), seq)
	if err != nil {
		return ir.InputEvent{}, err
	}

	texts := make([]string, len(inputs))
	priority := ir.FallbackPriority
	for i, in := range inputs {
		texts[i] = in.Text()
		p := in.Priority
		if p == 0 {
			p = ir.FallbackPriority
		}
		priority = min(priority, p)
	}

	first := inputs[0]
	return ir.InputEvent{
		ID:         id,
		Seq:        seq,
		Type:       first.Type,
		Data:       ir.PayloadFromText(first.Type, strings.Join(texts, " ")),
		Timestamp:  now,
		Priority:   priority,
		Confidence: ir.Confidence(ir.MeanConfidence(inputs)),
	}, nil
}
