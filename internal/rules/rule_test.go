package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fusion/internal/ir"
)

func stubRule(id string, types ...ir.InputType) Rule {
	return Rule{
		ID:         id,
		InputTypes: types,
		Fuser: FuserFunc(func(inputs []ir.InputEvent, at Stamp) (ir.FusedOutput, error) {
			return ir.FusedOutput{ID: id, RuleID: id, OriginalInputs: inputs, Timestamp: at.Now}, nil
		}),
	}
}

func TestRuleValidate(t *testing.T) {
	assert.NoError(t, stubRule("ok", ir.InputVoice).Validate())
	assert.Error(t, stubRule("", ir.InputVoice).Validate())
	assert.Error(t, stubRule("bad", ir.InputType("smell")).Validate())

	r := stubRule("nofuser", ir.InputVoice)
	r.Fuser = nil
	assert.Error(t, r.Validate())
}

func TestRuleSetAddRejectsDuplicate(t *testing.T) {
	rs, err := NewRuleSet(stubRule("a", ir.InputVoice, ir.InputTouch))
	require.NoError(t, err)

	err = rs.Add(stubRule("a", ir.InputVoice))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate rule ID")
	assert.Equal(t, 1, rs.Len())
}

func TestRuleSetMatchFirstWins(t *testing.T) {
	rs, err := NewRuleSet(
		stubRule("low", ir.InputTouch, ir.InputVoice),
		stubRule("high", ir.InputVoice, ir.InputTouch),
	)
	require.NoError(t, err)

	r, ok := rs.Match([]ir.InputType{ir.InputVoice, ir.InputTouch})
	require.True(t, ok)
	assert.Equal(t, "low", r.ID)
}

func TestRuleSetMatchIgnoresPriority(t *testing.T) {
	first := stubRule("first", ir.InputVoice, ir.InputTouch)
	first.Priority = 9
	second := stubRule("second", ir.InputVoice, ir.InputTouch)
	second.Priority = 1

	rs, err := NewRuleSet(first, second)
	require.NoError(t, err)

	r, ok := rs.Match([]ir.InputType{ir.InputTouch, ir.InputVoice})
	require.True(t, ok)
	assert.Equal(t, "first", r.ID)
}

func TestRuleSetMatchSubset(t *testing.T) {
	rs, err := NewRuleSet(stubRule("gv", ir.InputGesture, ir.InputVoice))
	require.NoError(t, err)

	_, ok := rs.Match([]ir.InputType{ir.InputVoice, ir.InputText})
	assert.False(t, ok)

	r, ok := rs.Match([]ir.InputType{ir.InputText, ir.InputVoice, ir.InputGesture})
	require.True(t, ok)
	assert.Equal(t, "gv", r.ID)
}

func TestRuleSetRemove(t *testing.T) {
	rs, err := NewRuleSet(
		stubRule("a", ir.InputVoice),
		stubRule("b", ir.InputText),
		stubRule("c", ir.InputTouch),
	)
	require.NoError(t, err)

	assert.True(t, rs.Remove("b"))
	assert.False(t, rs.Remove("b"))

	ids := []string{}
	for _, r := range rs.List() {
		ids = append(ids, r.ID)
	}
	assert.Equal(t, []string{"a", "c"}, ids)
}
