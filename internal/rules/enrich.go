package rules

import (
	"strings"
	"time"

	"github.com/roach88/fusion/internal/ir"
)

// gestureVerbs maps gesture tokens to the semantic verb they add to a command.
var gestureVerbs = map[string]string{
	"swipe_up":    "activate",
	"swipe_down":  "deactivate",
	"swipe_left":  "previous",
	"swipe_right": "next",
	"pinch":       "zoom out",
	"spread":      "zoom in",
	"shake":       "emergency",
	"long_press":  "hold and",
}

// GestureVerb returns the semantic verb for a gesture token.
func GestureVerb(gesture string) (string, bool) {
	verb, ok := gestureVerbs[gesture]
	return verb, ok
}

// EnhanceGestureVoice prefixes the voice text with the gesture's semantic
// verb, or with the raw gesture token when it has no mapping.
func EnhanceGestureVoice(gesture, voice string) string {
	if verb, ok := GestureVerb(gesture); ok {
		return verb + " " + voice
	}
	return gesture + " " + voice
}

// TimeOfDay buckets an hour: before 6 early morning, before 12 morning,
// before 18 afternoon, else evening.
func TimeOfDay(t time.Time) string {
	switch h := t.Hour(); {
	case h < 6:
		return "early morning"
	case h < 12:
		return "morning"
	case h < 18:
		return "afternoon"
	default:
		return "evening"
	}
}

// EnhanceSensorVoice appends parenthetical context qualifiers to the voice
// text: location presence, then motion state, then time-of-day bucket.
func EnhanceSensorVoice(voice string, s ir.Sensor) string {
	var b strings.Builder
	b.WriteString(voice)

	if s.Location != nil {
		b.WriteString(" (at current location)")
	}
	if s.Motion != nil {
		if state := s.Motion.State(); state != "" {
			b.WriteString(" (while " + state + ")")
		}
	}
	if s.Time != nil {
		b.WriteString(" (" + TimeOfDay(*s.Time) + ")")
	}
	return b.String()
}
