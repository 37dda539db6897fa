package compiler

import (
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/token"

	"github.com/roach88/fusion/internal/engine"
	"github.com/roach88/fusion/internal/ir"
)

// ConfigSpec is the compiled form of the config section.
//
// Unset fields carry engine defaults. DefaultPriority entries are merged
// over the stock table.
type ConfigSpec struct {
	SimultaneousInputWindow  time.Duration
	MaxInputBuffer           int
	EnableConflictResolution bool
	DefaultPriority          map[ir.InputType]int
	Debounce                 time.Duration
	DefaultRules             bool

	Pos token.Pos
}

// DefaultConfigSpec returns the spec an empty config section compiles to.
func DefaultConfigSpec() *ConfigSpec {
	def := engine.DefaultConfig()
	return &ConfigSpec{
		SimultaneousInputWindow:  def.SimultaneousInputWindow,
		MaxInputBuffer:           def.MaxInputBuffer,
		EnableConflictResolution: def.EnableConflictResolution,
		DefaultPriority:          def.DefaultPriority,
		Debounce:                 engine.DefaultDebounce,
	}
}

// CompileConfig parses the config section into a ConfigSpec.
//
//	ctx := cuecontext.New()
//	v := ctx.CompileString(`config: { max_input_buffer: 20 }`)
//	spec, err := CompileConfig(v.LookupPath(cue.ParsePath("config")))
func CompileConfig(v cue.Value) (*ConfigSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := DefaultConfigSpec()
	spec.Pos = v.Pos()

	if d, ok, err := millisField(v, "simultaneous_input_window_ms"); err != nil {
		return nil, err
	} else if ok {
		spec.SimultaneousInputWindow = d
	}

	if n, ok, err := intField(v, "max_input_buffer"); err != nil {
		return nil, err
	} else if ok {
		spec.MaxInputBuffer = int(n)
	}

	if b, ok, err := boolField(v, "enable_conflict_resolution"); err != nil {
		return nil, err
	} else if ok {
		spec.EnableConflictResolution = b
	}

	if d, ok, err := millisField(v, "debounce_ms"); err != nil {
		return nil, err
	} else if ok {
		spec.Debounce = d
	}

	if b, ok, err := boolField(v, "default_rules"); err != nil {
		return nil, err
	} else if ok {
		spec.DefaultRules = b
	}

	// Parse default_priority (optional, merged over the stock table)
	if prioVal, ok := lookup(v, "default_priority"); ok {
		iter, err := prioVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			t, err := ir.ParseInputType(iter.Label())
			if err != nil {
				return nil, &CompileError{
					Field:   "default_priority." + iter.Label(),
					Message: err.Error(),
					Pos:     iter.Value().Pos(),
				}
			}
			n, _, err := intField(prioVal, iter.Label())
			if err != nil {
				return nil, err
			}
			spec.DefaultPriority[t] = int(n)
		}
	}

	return spec, nil
}

// EngineConfig converts the compiled settings to an engine.Config without rules.
func (s *ConfigSpec) EngineConfig() engine.Config {
	prio := make(map[ir.InputType]int, len(s.DefaultPriority))
	for t, p := range s.DefaultPriority {
		prio[t] = p
	}
	return engine.Config{
		SimultaneousInputWindow:  s.SimultaneousInputWindow,
		MaxInputBuffer:           s.MaxInputBuffer,
		EnableConflictResolution: s.EnableConflictResolution,
		DefaultPriority:          prio,
	}
}
