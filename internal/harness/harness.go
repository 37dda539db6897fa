package harness

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/fusion/internal/compiler"
	"github.com/roach88/fusion/internal/engine"
	"github.com/roach88/fusion/internal/fusionlog"
	"github.com/roach88/fusion/internal/ir"
	"github.com/roach88/fusion/internal/rules"
	"github.com/roach88/fusion/internal/testutil"
)

// Run executes a scenario and returns the result.
//
// Execution flow:
//  1. Build the engine config (config_dir, then config overrides, then
//     default_rules)
//  2. Start an engine on a fresh FakeScheduler
//  3. Advance to each step's offset and submit it
//  4. Advance past the debounce so the last window is evaluated
//  5. Check expectations
//
// An error is returned only when the scenario cannot be executed at all.
// Expectation failures are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	cfg, debounce, err := buildConfig(scenario)
	if err != nil {
		return nil, err
	}

	sched := testutil.NewFakeScheduler(testutil.Epoch)
	log := fusionlog.New(fusionlog.WithClock(sched.Now))
	result := NewResult()

	cb := engine.Callbacks{
		OnInputReceived: func(ev ir.InputEvent) {
			result.Inputs = append(result.Inputs, ev)
		},
		OnFusedOutput: func(out ir.FusedOutput) {
			result.Outputs = append(result.Outputs, out)
		},
		OnError: func(err error) {
			result.EngineErrors = append(result.EngineErrors, err.Error())
		},
	}

	eng, err := engine.New(cfg, cb,
		engine.WithScheduler(sched),
		engine.WithIDGenerator(engine.NewFixedGenerator()),
		engine.WithRecorder(log),
		engine.WithDebounce(debounce),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	for i, step := range scenario.Steps {
		draft, err := step.Draft()
		if err != nil {
			return nil, fmt.Errorf("steps[%d]: %w", i, err)
		}
		sched.AdvanceTo(testutil.Epoch.Add(step.Offset()))
		eng.ProcessInput(draft)
	}
	sched.Advance(debounce + time.Millisecond)

	result.Log = log.Entries("", 0)
	result.Stats = log.Stats()

	for _, msg := range checkExpectations(scenario, result) {
		result.AddError(msg)
	}

	slog.Debug("scenario finished",
		"scenario", scenario.Name,
		"inputs", len(result.Inputs),
		"outputs", len(result.Outputs),
		"pass", result.Pass,
	)
	return result, nil
}

// buildConfig assembles the engine configuration and debounce for a
// scenario.
func buildConfig(s *Scenario) (engine.Config, time.Duration, error) {
	cfg := engine.DefaultConfig()
	debounce := engine.DefaultDebounce
	withDefaults := s.DefaultRules

	if s.ConfigDir != "" {
		bundle, err := compiler.LoadDir(s.ConfigDir)
		if err != nil {
			return engine.Config{}, 0, fmt.Errorf("failed to load config_dir: %w", err)
		}
		cfg, err = bundle.EngineConfig()
		if err != nil {
			return engine.Config{}, 0, fmt.Errorf("failed to build config: %w", err)
		}
		debounce = bundle.Config.Debounce
		// The bundle already placed the built-ins first
		if bundle.Config.DefaultRules {
			withDefaults = false
		}
	}

	if withDefaults {
		cfg.Rules = append(rules.DefaultRules(), cfg.Rules...)
	}

	if c := s.Config; c != nil {
		if c.SimultaneousInputWindowMS != nil {
			cfg.SimultaneousInputWindow = time.Duration(*c.SimultaneousInputWindowMS) * time.Millisecond
		}
		if c.MaxInputBuffer != nil {
			cfg.MaxInputBuffer = *c.MaxInputBuffer
		}
		if c.DebounceMS != nil {
			debounce = time.Duration(*c.DebounceMS) * time.Millisecond
		}
		for k, p := range c.DefaultPriority {
			cfg.DefaultPriority[ir.InputType(k)] = p
		}
	}

	return cfg, debounce, nil
}
