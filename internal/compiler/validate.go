package compiler

import (
	"fmt"

	"github.com/roach88/fusion/internal/ir"
	"github.com/roach88/fusion/internal/rules"
)

// Validation error codes (E100-E199)
const (
	// General validation errors (E100)
	ErrUnsupportedType = "E100" // unsupported value for validation

	// ConfigSpec errors (E101-E109)
	ErrWindowNotPositive   = "E101" // simultaneous_input_window_ms must be > 0
	ErrBufferNotPositive   = "E102" // max_input_buffer must be > 0
	ErrDebounceNegative    = "E103" // debounce_ms must be >= 0
	ErrPriorityUnknownType = "E104" // default_priority key is not an input type

	// RuleSpec errors (E110-E119)
	ErrUnknownFuser       = "E110" // fuser is not a built-in kind
	ErrUnknownInputType   = "E111" // input_types entry is not an input type
	ErrUnknownStrategy    = "E112" // resolution is not a strategy
	ErrMissingFuserInput  = "E113" // input_types omits a type the fuser reads
	ErrNegativeTimeWindow = "E114" // time_window_ms must be >= 0
	ErrDuplicateRule      = "E115" // rule id already registered
	ErrDuplicateInputType = "E116" // input type listed twice
)

// ValidationError represents a schema validation error.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
	Line    int    `json:"line,omitempty"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("[%s] line %d: %s: %s", e.Code, e.Line, e.Field, e.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate validates a compiled spec. Returns all errors found (does not
// fail-fast). Supports ConfigSpec and RuleSpec.
func Validate(v any) []ValidationError {
	switch spec := v.(type) {
	case *ConfigSpec:
		return validateConfigSpec(spec)
	case ConfigSpec:
		return validateConfigSpec(&spec)
	case *RuleSpec:
		return validateRuleSpec(spec)
	case RuleSpec:
		return validateRuleSpec(&spec)
	default:
		return []ValidationError{{
			Field:   "type",
			Message: fmt.Sprintf("unsupported type: %T", v),
			Code:    ErrUnsupportedType,
		}}
	}
}

func validateConfigSpec(spec *ConfigSpec) []ValidationError {
	var errs []ValidationError
	line := posLine(spec.Pos)

	if spec.SimultaneousInputWindow <= 0 {
		errs = append(errs, ValidationError{
			Field:   "config.simultaneous_input_window_ms",
			Message: "must be positive",
			Code:    ErrWindowNotPositive,
			Line:    line,
		})
	}
	if spec.MaxInputBuffer <= 0 {
		errs = append(errs, ValidationError{
			Field:   "config.max_input_buffer",
			Message: "must be positive",
			Code:    ErrBufferNotPositive,
			Line:    line,
		})
	}
	if spec.Debounce < 0 {
		errs = append(errs, ValidationError{
			Field:   "config.debounce_ms",
			Message: "must not be negative",
			Code:    ErrDebounceNegative,
			Line:    line,
		})
	}
	for t := range spec.DefaultPriority {
		if !t.Valid() {
			errs = append(errs, ValidationError{
				Field:   "config.default_priority." + string(t),
				Message: fmt.Sprintf("unknown input type %q", t),
				Code:    ErrPriorityUnknownType,
				Line:    line,
			})
		}
	}
	return errs
}

func validateRuleSpec(spec *RuleSpec) []ValidationError {
	var errs []ValidationError
	prefix := "rule." + spec.ID
	line := posLine(spec.Pos)

	kind, err := rules.ParseKind(spec.Fuser)
	if err != nil {
		errs = append(errs, ValidationError{
			Field:   prefix + ".fuser",
			Message: err.Error(),
			Code:    ErrUnknownFuser,
			Line:    line,
		})
	}

	declared := make(map[ir.InputType]bool, len(spec.InputTypes))
	for _, raw := range spec.InputTypes {
		t, err := ir.ParseInputType(raw)
		if err != nil {
			errs = append(errs, ValidationError{
				Field:   prefix + ".input_types",
				Message: err.Error(),
				Code:    ErrUnknownInputType,
				Line:    line,
			})
			continue
		}
		if declared[t] {
			errs = append(errs, ValidationError{
				Field:   prefix + ".input_types",
				Message: fmt.Sprintf("input type %q listed more than once", t),
				Code:    ErrDuplicateInputType,
				Line:    line,
			})
		}
		declared[t] = true
	}

	// E113: a narrowed type list must still cover what the fuser reads,
	// otherwise the fuser fails on every match.
	if kind != "" && len(spec.InputTypes) > 0 {
		def, _ := rules.BuiltinRule(kind)
		for _, t := range def.InputTypes {
			if !declared[t] {
				errs = append(errs, ValidationError{
					Field:   prefix + ".input_types",
					Message: fmt.Sprintf("fuser %s requires input type %q", kind, t),
					Code:    ErrMissingFuserInput,
					Line:    line,
				})
			}
		}
	}

	if spec.TimeWindow < 0 {
		errs = append(errs, ValidationError{
			Field:   prefix + ".time_window_ms",
			Message: "must not be negative",
			Code:    ErrNegativeTimeWindow,
			Line:    line,
		})
	}

	if spec.Resolution != "" {
		if _, err := ir.ParseStrategy(spec.Resolution); err != nil {
			errs = append(errs, ValidationError{
				Field:   prefix + ".resolution",
				Message: err.Error(),
				Code:    ErrUnknownStrategy,
				Line:    line,
			})
		}
	}

	return errs
}
