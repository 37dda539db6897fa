package fusionlog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/roach88/fusion/internal/ir"
)

// Defaults for New.
const (
	DefaultCapacity      = 1000
	DefaultPreviewLength = 100
)

// Kind is the category of a log entry.
type Kind string

const (
	KindInput    Kind = "input"
	KindFusion   Kind = "fusion"
	KindConflict Kind = "conflict"
	KindError    Kind = "error"
)

// ParseKind validates a kind name. The empty string means all kinds.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case "", KindInput, KindFusion, KindConflict, KindError:
		return k, nil
	}
	return "", fmt.Errorf("unknown log kind %q", s)
}

// Entry is one log record. Which detail fields are set depends on Kind.
type Entry struct {
	Timestamp time.Time         `json:"timestamp"`
	Kind      Kind              `json:"kind"`
	Preview   string            `json:"preview,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`

	// input
	InputID   string       `json:"input_id,omitempty"`
	InputType ir.InputType `json:"input_type,omitempty"`
	Priority  int          `json:"priority,omitempty"`

	// fusion
	OutputID   string         `json:"output_id,omitempty"`
	RuleID     string         `json:"rule_id,omitempty"`
	InputTypes []ir.InputType `json:"input_types,omitempty"`
	InputCount int            `json:"input_count,omitempty"`

	// input, fusion
	Confidence *float64 `json:"confidence,omitempty"`

	// conflict
	Strategy   ir.Strategy `json:"strategy,omitempty"`
	ResolvedID string      `json:"resolved_id,omitempty"`

	// error
	Message string `json:"message,omitempty"`
	Context string `json:"context,omitempty"`
}

// Stats aggregates the current log contents.
type Stats struct {
	TotalLogs          int                  `json:"total_logs"`
	InputCount         int                  `json:"input_count"`
	FusionCount        int                  `json:"fusion_count"`
	ConflictCount      int                  `json:"conflict_count"`
	ErrorCount         int                  `json:"error_count"`
	InputTypeBreakdown map[ir.InputType]int `json:"input_type_breakdown"`
}

// Logger is a bounded FIFO log of fusion activity.
//
// Thread-safety: all methods are safe for concurrent use.
type Logger struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	preview  int
	now      func() time.Time

	consoleOut io.Writer
	console    *zerolog.Logger
}

// Option configures a Logger.
type Option func(*Logger)

// WithCapacity sets the maximum number of retained entries. Values below 0
// count as 0, which retains nothing.
//
// Default: 1000 (DefaultCapacity)
func WithCapacity(n int) Option {
	return func(l *Logger) {
		l.capacity = max(n, 0)
	}
}

// WithPreviewLength sets the preview truncation length in characters.
// Values below 0 count as 0.
//
// Default: 100 (DefaultPreviewLength)
func WithPreviewLength(n int) Option {
	return func(l *Logger) {
		l.preview = max(n, 0)
	}
}

// WithConsole mirrors entries to w from the start.
func WithConsole(w io.Writer) Option {
	return func(l *Logger) {
		l.consoleOut = w
		l.console = newConsole(w)
	}
}

// WithClock replaces time.Now as the entry timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Logger) {
		l.now = now
	}
}

// New creates an empty Logger. Console mirroring is off unless WithConsole
// is given.
func New(opts ...Option) *Logger {
	l := &Logger{
		capacity: DefaultCapacity,
		preview:  DefaultPreviewLength,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func newConsole(w io.Writer) *zerolog.Logger {
	zl := zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true})
	return &zl
}

// EnableConsole starts mirroring entries to the console writer given with
// WithConsole, or to stderr.
func (l *Logger) EnableConsole() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.consoleOut == nil {
		l.consoleOut = os.Stderr
	}
	l.console = newConsole(l.consoleOut)
}

// DisableConsole stops console mirroring. Entries are still recorded.
func (l *Logger) DisableConsole() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.console = nil
}

// LogInput records an ingested input.
func (l *Logger) LogInput(ev ir.InputEvent) {
	l.add(Entry{
		Kind:       KindInput,
		Preview:    l.previewPayload(ev.Data),
		Metadata:   ev.Metadata,
		InputID:    ev.ID,
		InputType:  ev.Type,
		Priority:   ev.Priority,
		Confidence: ev.Confidence,
	})
}

// LogFusion records an emitted fused output.
func (l *Logger) LogFusion(out ir.FusedOutput) {
	conf := out.Confidence
	l.add(Entry{
		Kind:       KindFusion,
		Preview:    l.previewFused(out.Data),
		Metadata:   out.Metadata,
		OutputID:   out.ID,
		RuleID:     out.RuleID,
		InputTypes: out.InputTypes(),
		InputCount: len(out.OriginalInputs),
		Confidence: &conf,
	})
}

// LogConflict records a conflict resolution.
func (l *Logger) LogConflict(inputs []ir.InputEvent, strategy ir.Strategy, resolved ir.InputEvent) {
	types := make([]ir.InputType, len(inputs))
	for i, in := range inputs {
		types[i] = in.Type
	}
	l.add(Entry{
		Kind:       KindConflict,
		Preview:    l.truncate(resolved.Text()),
		InputTypes: types,
		InputCount: len(inputs),
		Strategy:   strategy,
		ResolvedID: resolved.ID,
	})
}

// LogError records a failure. A nil err is recorded as "unknown error".
func (l *Logger) LogError(err error, context string) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	l.add(Entry{
		Kind:    KindError,
		Preview: l.truncate(msg),
		Message: msg,
		Context: context,
	})
}

func (l *Logger) add(e Entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.Timestamp = l.now()
	l.entries = append(l.entries, e)
	if over := len(l.entries) - l.capacity; over > 0 {
		over = min(over, len(l.entries))
		l.entries = append([]Entry(nil), l.entries[over:]...)
	}

	if l.console != nil {
		l.mirror(e)
	}
}

// mirror writes e to the console. Called with l.mu held.
func (l *Logger) mirror(e Entry) {
	var ev *zerolog.Event
	switch e.Kind {
	case KindError:
		ev = l.console.Error().Str("context", e.Context)
	case KindConflict:
		ev = l.console.Warn().Str("strategy", string(e.Strategy)).Str("resolved", e.ResolvedID)
	case KindFusion:
		ev = l.console.Info().Str("rule", e.RuleID).Str("types", joinTypes(e.InputTypes, "+"))
	default:
		ev = l.console.Info().Str("type", string(e.InputType)).Str("id", e.InputID)
	}
	ev.Time(zerolog.TimestampFieldName, e.Timestamp).
		Str("preview", e.Preview).
		Msg("fusion " + string(e.Kind))
}

func joinTypes(types []ir.InputType, sep string) string {
	parts := make([]string, len(types))
	for i, t := range types {
		parts[i] = string(t)
	}
	return strings.Join(parts, sep)
}

// Entries returns entries of the given kind, oldest first. An empty kind
// matches all kinds. A positive limit keeps only the newest limit entries.
func (l *Logger) Entries(kind Kind, limit int) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Entry
	for _, e := range l.entries {
		if kind == "" || e.Kind == kind {
			out = append(out, e)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out
}

// Stats returns per-kind counts and the per-input-type breakdown.
func (l *Logger) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	s := Stats{
		TotalLogs:          len(l.entries),
		InputTypeBreakdown: make(map[ir.InputType]int),
	}
	for _, e := range l.entries {
		switch e.Kind {
		case KindInput:
			s.InputCount++
			s.InputTypeBreakdown[e.InputType]++
		case KindFusion:
			s.FusionCount++
		case KindConflict:
			s.ConflictCount++
		case KindError:
			s.ErrorCount++
		}
	}
	return s
}

// Clear drops every entry.
func (l *Logger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = nil
}

// Export renders all entries as indented JSON.
func (l *Logger) Export() ([]byte, error) {
	entries := l.Entries("", 0)
	if entries == nil {
		entries = []Entry{}
	}
	return json.MarshalIndent(entries, "", "  ")
}

// Len returns the number of retained entries.
func (l *Logger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
