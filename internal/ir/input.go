package ir

import (
	"fmt"
	"time"
)

// InputType identifies an input channel.
type InputType string

const (
	InputVoice   InputType = "voice"
	InputText    InputType = "text"
	InputGesture InputType = "gesture"
	InputTouch   InputType = "touch"
	InputCamera  InputType = "camera"
	InputSensor  InputType = "sensor"
)

// AllInputTypes returns every channel in its fixed enumeration order.
func AllInputTypes() []InputType {
	return []InputType{InputVoice, InputText, InputGesture, InputTouch, InputCamera, InputSensor}
}

// Valid reports whether t is one of the six known channels.
func (t InputType) Valid() bool {
	switch t {
	case InputVoice, InputText, InputGesture, InputTouch, InputCamera, InputSensor:
		return true
	}
	return false
}

// ParseInputType converts a type tag into an InputType.
func ParseInputType(s string) (InputType, error) {
	t := InputType(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown input type %q", s)
	}
	return t, nil
}

// FallbackPriority applies when neither the event nor the per-type defaults
// carry a priority.
const FallbackPriority = 10

// InputDraft is what producers submit: an input without id or timestamp.
//
// Priority 0 means unset. Confidence nil means unset.
type InputDraft struct {
	Type       InputType
	Data       Payload
	Priority   int
	Confidence *float64
	Metadata   map[string]string
}

// InputEvent is an ingested input. Seq and Timestamp are assigned by the
// engine at ingestion, never by the producer.
type InputEvent struct {
	ID         string            `json:"id"`
	Seq        int64             `json:"seq"`
	Type       InputType         `json:"type"`
	Data       Payload           `json:"-"`
	Timestamp  time.Time         `json:"timestamp"`
	Priority   int               `json:"priority,omitempty"`
	Confidence *float64          `json:"confidence,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// EffectivePriority resolves the event priority: explicit value, else the
// per-type default, else FallbackPriority. Lower wins.
func (e InputEvent) EffectivePriority(defaults map[InputType]int) int {
	if e.Priority != 0 {
		return e.Priority
	}
	if p, ok := defaults[e.Type]; ok && p != 0 {
		return p
	}
	return FallbackPriority
}

// ConfidenceOr returns the event confidence, or def when unset.
func (e InputEvent) ConfidenceOr(def float64) float64 {
	if e.Confidence == nil {
		return def
	}
	return *e.Confidence
}

// Text returns the payload text, or "" when the event has no payload.
func (e InputEvent) Text() string {
	if e.Data == nil {
		return ""
	}
	return e.Data.Text()
}

// Confidence is a helper for building drafts with a set confidence.
func Confidence(v float64) *float64 {
	return &v
}

// FindType returns the first event of type t in order.
func FindType(events []InputEvent, t InputType) (InputEvent, bool) {
	for _, e := range events {
		if e.Type == t {
			return e, true
		}
	}
	return InputEvent{}, false
}

// FilterType returns every event of type t, preserving order.
func FilterType(events []InputEvent, t InputType) []InputEvent {
	var out []InputEvent
	for _, e := range events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
