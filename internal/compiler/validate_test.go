package compiler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fusion/internal/ir"
)

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestValidateConfigSpecValid(t *testing.T) {
	errs := Validate(DefaultConfigSpec())
	assert.Empty(t, errs)
}

func TestValidateConfigSpecErrors(t *testing.T) {
	spec := DefaultConfigSpec()
	spec.SimultaneousInputWindow = 0
	spec.MaxInputBuffer = -1
	spec.Debounce = -1
	spec.DefaultPriority[ir.InputType("smell")] = 3

	errs := Validate(spec)
	assert.ElementsMatch(t, []string{
		ErrWindowNotPositive,
		ErrBufferNotPositive,
		ErrDebounceNegative,
		ErrPriorityUnknownType,
	}, codes(errs))
}

func TestValidateRuleSpecValid(t *testing.T) {
	errs := Validate(&RuleSpec{
		ID:         "ok",
		Fuser:      "gesture_voice",
		InputTypes: []string{"gesture", "voice"},
		Resolution: "merge",
	})
	assert.Empty(t, errs)
}

func TestValidateRuleSpecValueForm(t *testing.T) {
	errs := Validate(RuleSpec{ID: "ok", Fuser: "camera_voice"})
	assert.Empty(t, errs)
}

func TestValidateRuleSpecErrors(t *testing.T) {
	tests := []struct {
		name string
		spec RuleSpec
		want []string
	}{
		{
			name: "unknown fuser",
			spec: RuleSpec{ID: "x", Fuser: "telepathy"},
			want: []string{ErrUnknownFuser},
		},
		{
			name: "unknown input type",
			spec: RuleSpec{ID: "x", Fuser: "voice_touch", InputTypes: []string{"voice", "touch", "smell"}},
			want: []string{ErrUnknownInputType},
		},
		{
			name: "duplicate input type",
			spec: RuleSpec{ID: "x", Fuser: "voice_touch", InputTypes: []string{"voice", "touch", "voice"}},
			want: []string{ErrDuplicateInputType},
		},
		{
			name: "missing fuser input",
			spec: RuleSpec{ID: "x", Fuser: "camera_voice", InputTypes: []string{"voice"}},
			want: []string{ErrMissingFuserInput},
		},
		{
			name: "negative window",
			spec: RuleSpec{ID: "x", Fuser: "voice_touch", TimeWindow: -1},
			want: []string{ErrNegativeTimeWindow},
		},
		{
			name: "unknown strategy",
			spec: RuleSpec{ID: "x", Fuser: "voice_touch", Resolution: "vote"},
			want: []string{ErrUnknownStrategy},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			errs := Validate(&tt.spec)
			assert.Equal(t, tt.want, codes(errs))
		})
	}
}

func TestValidateUnsupportedType(t *testing.T) {
	errs := Validate(42)
	require.Len(t, errs, 1)
	assert.Equal(t, ErrUnsupportedType, errs[0].Code)
	assert.Contains(t, errs[0].Message, "int")
}

func TestValidationErrorFormat(t *testing.T) {
	withLine := ValidationError{Field: "rule.x.fuser", Message: "bad", Code: ErrUnknownFuser, Line: 7}
	assert.Equal(t, "[E110] line 7: rule.x.fuser: bad", withLine.Error())

	noLine := ValidationError{Field: "rule.x.fuser", Message: "bad", Code: ErrUnknownFuser}
	assert.Equal(t, "[E110] rule.x.fuser: bad", noLine.Error())
}
