package compiler

import (
	"cuelang.org/go/cue"

	"github.com/roach88/fusion/internal/engine"
	"github.com/roach88/fusion/internal/ir"
	"github.com/roach88/fusion/internal/rules"
)

// Bundle is a fully compiled configuration directory.
type Bundle struct {
	Config *ConfigSpec
	Rules  []*RuleSpec
}

// CompileBundle compiles the config and rule sections of a built CUE value.
// Both sections are optional. Rules keep declaration order.
func CompileBundle(v cue.Value) (*Bundle, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	b := &Bundle{Config: DefaultConfigSpec()}

	if cfgVal, ok := lookup(v, "config"); ok {
		cfg, err := CompileConfig(cfgVal)
		if err != nil {
			return nil, err
		}
		b.Config = cfg
	}

	if rulesVal, ok := lookup(v, "rule"); ok {
		iter, err := rulesVal.Fields()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for iter.Next() {
			spec, err := CompileRule(iter.Label(), iter.Value())
			if err != nil {
				return nil, err
			}
			b.Rules = append(b.Rules, spec)
		}
	}

	return b, nil
}

// EngineConfig builds the engine configuration. When DefaultRules is set the
// built-in rules come first, followed by the declared rules.
func (b *Bundle) EngineConfig() (engine.Config, error) {
	cfg := b.Config.EngineConfig()
	if b.Config.DefaultRules {
		cfg.Rules = rules.DefaultRules()
	}
	for _, spec := range b.Rules {
		r, err := spec.Build()
		if err != nil {
			return engine.Config{}, err
		}
		cfg.Rules = append(cfg.Rules, r)
	}
	return cfg, nil
}

// Validate runs semantic validation over the bundle.
func (b *Bundle) Validate() []ValidationError {
	var errs []ValidationError
	errs = append(errs, Validate(b.Config)...)

	seen := make(map[string]bool)
	if b.Config.DefaultRules {
		for _, k := range rules.Kinds() {
			seen[rules.DefaultRuleID(k)] = true
		}
	}
	for _, spec := range b.Rules {
		if seen[spec.ID] {
			errs = append(errs, ValidationError{
				Field:   "rule." + spec.ID,
				Message: "duplicate rule ID: " + spec.ID,
				Code:    ErrDuplicateRule,
				Line:    posLine(spec.Pos),
			})
		}
		seen[spec.ID] = true
		errs = append(errs, Validate(spec)...)
	}
	return errs
}

// IR renders the bundle as an IR object. Durations are in milliseconds.
func (b *Bundle) IR() ir.IRObject {
	prio := make(ir.IRObject, len(b.Config.DefaultPriority))
	for t, p := range b.Config.DefaultPriority {
		prio[string(t)] = ir.IRInt(p)
	}
	cfg := ir.IRObject{
		"simultaneous_input_window_ms": ir.IRInt(b.Config.SimultaneousInputWindow.Milliseconds()),
		"max_input_buffer":             ir.IRInt(b.Config.MaxInputBuffer),
		"enable_conflict_resolution":   ir.IRBool(b.Config.EnableConflictResolution),
		"default_priority":             prio,
		"debounce_ms":                  ir.IRInt(b.Config.Debounce.Milliseconds()),
		"default_rules":                ir.IRBool(b.Config.DefaultRules),
	}

	list := make(ir.IRArray, len(b.Rules))
	for i, r := range b.Rules {
		obj := ir.IRObject{
			"id":          ir.IRString(r.ID),
			"fuser":       ir.IRString(r.Fuser),
			"input_types": ir.Strings(r.InputTypes...),
		}
		if r.TimeWindow > 0 {
			obj["time_window_ms"] = ir.IRInt(r.TimeWindow.Milliseconds())
		}
		if r.HasPriority {
			obj["priority"] = ir.IRInt(r.Priority)
		}
		if r.Resolution != "" {
			obj["resolution"] = ir.IRString(r.Resolution)
		}
		list[i] = obj
	}

	return ir.IRObject{"config": cfg, "rules": list}
}

// Hash returns the bundle's config fingerprint.
func (b *Bundle) Hash() (string, error) {
	return ir.ConfigHash(b.IR())
}
