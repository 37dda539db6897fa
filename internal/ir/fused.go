package ir

import (
	"fmt"
	"time"
)

// Fused data kinds produced by the engine itself. Built-in fusers define
// their own kinds alongside their implementations.
const (
	KindPassthrough    = "passthrough"
	KindVoiceText      = "voice_text_fusion"
	KindGestureVoice   = "gesture_voice_fusion"
	KindTouchVoice     = "touch_voice_fusion"
	KindCameraVoice    = "camera_voice_fusion"
	KindMultiInput     = "multi_input_fusion"
	KindMergedConflict = "merged_conflict"
)

// FusedData is the semantic result of one fusion decision.
//
// Command is the natural-language command downstream interpreters act on.
// Payload is set only for single-input pass-through outputs, where the fused
// data is the raw input data. Fields carries rule-specific parts.
type FusedData struct {
	Kind    string   `json:"kind"`
	Command string   `json:"command,omitempty"`
	Payload Payload  `json:"-"`
	Fields  IRObject `json:"fields,omitempty"`
}

// FusedOutput is produced exactly once per fusion decision and handed to
// subscribers; the engine keeps no reference to it.
type FusedOutput struct {
	ID             string            `json:"id"`
	RuleID         string            `json:"rule_id,omitempty"`
	OriginalInputs []InputEvent      `json:"original_inputs"`
	Data           FusedData         `json:"data"`
	Confidence     float64           `json:"confidence"`
	Timestamp      time.Time         `json:"timestamp"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// InputTypes returns the channel of each original input, in order.
func (f FusedOutput) InputTypes() []InputType {
	types := make([]InputType, len(f.OriginalInputs))
	for i, in := range f.OriginalInputs {
		types[i] = in.Type
	}
	return types
}

// Validate checks the structural invariants of a fused output:
// at least one original input and no repeated input ids.
func (f FusedOutput) Validate() error {
	if len(f.OriginalInputs) == 0 {
		return fmt.Errorf("fused output %s has no original inputs", f.ID)
	}
	seen := make(map[string]bool, len(f.OriginalInputs))
	for _, in := range f.OriginalInputs {
		if seen[in.ID] {
			return fmt.Errorf("fused output %s repeats input %s", f.ID, in.ID)
		}
		seen[in.ID] = true
	}
	return nil
}

// MeanConfidence is the arithmetic mean of the inputs' confidences, counting
// an unset confidence as 1.0. Returns 1.0 for an empty slice.
func MeanConfidence(inputs []InputEvent) float64 {
	if len(inputs) == 0 {
		return 1.0
	}
	var sum float64
	for _, in := range inputs {
		sum += in.ConfidenceOr(1.0)
	}
	return sum / float64(len(inputs))
}

// BasisPoints renders a confidence as an integer in [0, 10000] so it can be
// carried in IR, which has no floats.
func BasisPoints(c float64) int64 {
	bp := c * 10000
	if bp < 0 {
		return 0
	}
	return int64(bp + 0.5)
}
