package compiler

import (
	"fmt"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/token"

	"github.com/roach88/fusion/internal/ir"
	"github.com/roach88/fusion/internal/rules"
)

// RuleSpec is the compiled form of one rule entry.
//
// Fields are kept as declared; Validate checks them and Build resolves them
// against the built-in fuser table. Zero or empty fields fall back to the
// built-in's defaults.
type RuleSpec struct {
	ID         string
	Fuser      string
	InputTypes []string
	TimeWindow time.Duration
	Priority   int
	Resolution string

	// HasPriority distinguishes an explicit priority of 0 from unset.
	HasPriority bool

	Pos token.Pos
}

// CompileRule parses a rule entry. id is the entry's label under rule.
func CompileRule(id string, v cue.Value) (*RuleSpec, error) {
	if err := v.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	spec := &RuleSpec{ID: id, Pos: v.Pos()}

	// Extract fuser (required)
	fuser, ok, err := stringField(v, "fuser")
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &CompileError{
			Field:   "rule." + id + ".fuser",
			Message: "fuser is required",
			Pos:     v.Pos(),
		}
	}
	spec.Fuser = fuser

	// Parse input_types (optional)
	if typesVal, ok := lookup(v, "input_types"); ok {
		list, err := typesVal.List()
		if err != nil {
			return nil, formatCUEError(err)
		}
		for list.Next() {
			s, err := list.Value().String()
			if err != nil {
				return nil, &CompileError{
					Field:   "rule." + id + ".input_types",
					Message: fmt.Sprintf("input type must be a string: %v", err),
					Pos:     list.Value().Pos(),
				}
			}
			spec.InputTypes = append(spec.InputTypes, s)
		}
	}

	if d, ok, err := millisField(v, "time_window_ms"); err != nil {
		return nil, err
	} else if ok {
		spec.TimeWindow = d
	}

	if n, ok, err := intField(v, "priority"); err != nil {
		return nil, err
	} else if ok {
		spec.Priority = int(n)
		spec.HasPriority = true
	}

	if s, ok, err := stringField(v, "resolution"); err != nil {
		return nil, err
	} else if ok {
		spec.Resolution = s
	}

	return spec, nil
}

// Build resolves the compiled rule into an engine rule. Callers should run Validate
// first; Build reports only the first problem it hits.
func (s *RuleSpec) Build() (rules.Rule, error) {
	kind, err := rules.ParseKind(s.Fuser)
	if err != nil {
		return rules.Rule{}, err
	}
	r, err := rules.BuiltinRule(kind)
	if err != nil {
		return rules.Rule{}, err
	}

	r.ID = s.ID
	r.Fuser, err = rules.NewBuiltin(kind, s.ID)
	if err != nil {
		return rules.Rule{}, err
	}

	if len(s.InputTypes) > 0 {
		r.InputTypes = make([]ir.InputType, 0, len(s.InputTypes))
		for _, raw := range s.InputTypes {
			t, err := ir.ParseInputType(raw)
			if err != nil {
				return rules.Rule{}, fmt.Errorf("rule %s: %w", s.ID, err)
			}
			r.InputTypes = append(r.InputTypes, t)
		}
	}
	if s.TimeWindow > 0 {
		r.TimeWindow = s.TimeWindow
	}
	if s.HasPriority {
		r.Priority = s.Priority
	}
	if s.Resolution != "" {
		st, err := ir.ParseStrategy(s.Resolution)
		if err != nil {
			return rules.Rule{}, fmt.Errorf("rule %s: %w", s.ID, err)
		}
		r.Resolution = st
	}
	return r, nil
}
