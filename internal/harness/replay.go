package harness

import (
	"fmt"
	"time"

	"github.com/roach88/fusion/internal/engine"
	"github.com/roach88/fusion/internal/fusionlog"
	"github.com/roach88/fusion/internal/ir"
	"github.com/roach88/fusion/internal/testutil"
)

// Replay re-runs recorded inputs through a fresh engine on simulated time.
//
// Each input is resubmitted at its recorded timestamp with its recorded id,
// so a deterministic engine reproduces the recorded outputs exactly,
// including output ids. The pending window is flushed after the last
// input, matching a live run that ends at end of input.
func Replay(cfg engine.Config, debounce time.Duration, inputs []ir.InputEvent) (*Result, error) {
	result := NewResult()
	if len(inputs) == 0 {
		return result, nil
	}

	ids := make([]string, len(inputs))
	for i, ev := range inputs {
		ids[i] = ev.ID
	}

	sched := testutil.NewFakeScheduler(inputs[0].Timestamp)
	log := fusionlog.New(fusionlog.WithClock(sched.Now))

	eng, err := engine.New(cfg, engine.Callbacks{
		OnInputReceived: func(ev ir.InputEvent) {
			result.Inputs = append(result.Inputs, ev)
		},
		OnFusedOutput: func(out ir.FusedOutput) {
			result.Outputs = append(result.Outputs, out)
		},
		OnError: func(err error) {
			result.EngineErrors = append(result.EngineErrors, err.Error())
		},
	},
		engine.WithScheduler(sched),
		engine.WithIDGenerator(engine.NewFixedGenerator(ids...)),
		engine.WithRecorder(log),
		engine.WithDebounce(debounce),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	for _, ev := range inputs {
		sched.AdvanceTo(ev.Timestamp)
		eng.ProcessInput(ir.InputDraft{
			Type:       ev.Type,
			Data:       ev.Data,
			Priority:   ev.Priority,
			Confidence: ev.Confidence,
			Metadata:   ev.Metadata,
		})
	}
	eng.Flush()

	result.Log = log.Entries("", 0)
	result.Stats = log.Stats()
	return result, nil
}
