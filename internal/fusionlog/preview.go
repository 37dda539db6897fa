package fusionlog

import (
	"fmt"
	"unicode/utf8"

	"github.com/roach88/fusion/internal/ir"
)

func (l *Logger) truncate(s string) string {
	if utf8.RuneCountInString(s) <= l.preview {
		return s
	}
	runes := []rune(s)
	return string(runes[:max(l.preview, 0)]) + "..."
}

// previewPayload renders a payload as text: plain strings as-is, structured
// payloads as canonical JSON, anything unmarshalable via fmt.
func (l *Logger) previewPayload(p ir.Payload) string {
	if p == nil {
		return ""
	}
	return l.truncate(render(p.IR(), p))
}

// previewFused prefers the command; data without one falls back to its fields.
func (l *Logger) previewFused(d ir.FusedData) string {
	switch {
	case d.Command != "":
		return l.truncate(d.Command)
	case d.Payload != nil:
		return l.previewPayload(d.Payload)
	case d.Fields != nil:
		return l.truncate(render(d.Fields, d.Fields))
	}
	return d.Kind
}

func render(v ir.IRValue, fallback any) string {
	if s, ok := v.(ir.IRString); ok {
		return string(s)
	}
	b, err := ir.MarshalCanonical(v)
	if err != nil {
		return fmt.Sprintf("%+v", fallback)
	}
	return string(b)
}
