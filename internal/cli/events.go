package cli

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/roach88/fusion/internal/ir"
)

// EventLine is one JSON line of run input.
//
//	{"type":"voice","data":"turn on the lights","delay_ms":300}
//	{"type":"touch","data":{"target":"lamp","x":10,"y":20}}
type EventLine struct {
	Type       string            `json:"type"`
	Data       json.RawMessage   `json:"data"`
	DelayMS    int64             `json:"delay_ms,omitempty"`
	Priority   int               `json:"priority,omitempty"`
	Confidence *float64          `json:"confidence,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// Delay returns DelayMS as a duration.
func (l EventLine) Delay() time.Duration {
	return time.Duration(l.DelayMS) * time.Millisecond
}

// Draft converts the line into an engine input draft.
func (l EventLine) Draft() (ir.InputDraft, error) {
	t, err := ir.ParseInputType(l.Type)
	if err != nil {
		return ir.InputDraft{}, err
	}
	if l.DelayMS < 0 {
		return ir.InputDraft{}, fmt.Errorf("delay_ms must be non-negative, got %d", l.DelayMS)
	}
	d := ir.InputDraft{
		Type:       t,
		Priority:   l.Priority,
		Confidence: l.Confidence,
		Metadata:   l.Metadata,
	}
	if len(l.Data) == 0 || bytes.Equal(l.Data, []byte("null")) {
		return d, nil
	}
	d.Data, err = ir.UnmarshalPayload(t, l.Data)
	if err != nil {
		return ir.InputDraft{}, err
	}
	return d, nil
}

// EventReader reads EventLines from a JSON-lines stream. Blank lines and
// lines starting with '#' are skipped.
type EventReader struct {
	scanner *bufio.Scanner
	line    int
}

// NewEventReader returns a reader over r.
func NewEventReader(r io.Reader) *EventReader {
	return &EventReader{scanner: bufio.NewScanner(r)}
}

// Next returns the next event. It returns io.EOF at end of input.
func (r *EventReader) Next() (EventLine, ir.InputDraft, error) {
	for r.scanner.Scan() {
		r.line++
		raw := bytes.TrimSpace(r.scanner.Bytes())
		if len(raw) == 0 || raw[0] == '#' {
			continue
		}

		var ev EventLine
		dec := json.NewDecoder(bytes.NewReader(raw))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&ev); err != nil {
			return EventLine{}, ir.InputDraft{}, fmt.Errorf("line %d: %w", r.line, err)
		}
		draft, err := ev.Draft()
		if err != nil {
			return EventLine{}, ir.InputDraft{}, fmt.Errorf("line %d: %w", r.line, err)
		}
		return ev, draft, nil
	}
	if err := r.scanner.Err(); err != nil {
		return EventLine{}, ir.InputDraft{}, fmt.Errorf("line %d: %w", r.line+1, err)
	}
	return EventLine{}, ir.InputDraft{}, io.EOF
}
