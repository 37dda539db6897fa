package engine

import (
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/roach88/fusion/internal/ir"
	"github.com/roach88/fusion/internal/rules"
)

// Callbacks receives engine notifications. Every handler is optional.
//
// Handlers run on the goroutine that triggered them (the producer for
// OnInputReceived and OnConflictResolved, the timer for the rest) after the
// engine has released its lock.
type Callbacks struct {
	OnInputReceived    func(ir.InputEvent)
	OnFusionDetected   func(candidates []ir.InputEvent)
	OnFusedOutput      func(ir.FusedOutput)
	OnConflictResolved func(inputs []ir.InputEvent, resolved ir.InputEvent)
	OnError            func(error)
}

// Recorder observes everything the engine does. It must not fail or block.
// *fusionlog.Logger implements it.
type Recorder interface {
	LogInput(ir.InputEvent)
	LogFusion(ir.FusedOutput)
	LogConflict(inputs []ir.InputEvent, strategy ir.Strategy, resolved ir.InputEvent)
	LogError(err error, context string)
}

type nopRecorder struct{}

func (nopRecorder) LogInput(ir.InputEvent) {}
func (nopRecorder) LogFusion(ir.FusedOutput) {}
func (nopRecorder) LogConflict([]ir.InputEvent, ir.Strategy, ir.InputEvent) {}
func (nopRecorder) LogError(error, string) {}

// ChannelState is the per-channel activity record.
type ChannelState struct {
	Active    bool
	LastInput *ir.InputEvent
	Recent    []ir.InputEvent
}

// Snapshot is a copy of engine state at one instant. Mutating it has no
// effect on the engine.
type Snapshot struct {
	Channels map[ir.InputType]ChannelState
	Buffer   []ir.InputEvent
	Pending  bool

	// Seq is the last sequence number handed out to an input or decision.
	Seq int64
}

// Engine is the input fusion engine.
//
// INVARIANTS:
//   - len(buffer) <= cfg.MaxInputBuffer after every ingestion
//   - Input timestamps never decrease in ingestion order
//   - At most one debounce timer is pending
//   - Rule order is registration order
type Engine struct {
	mu sync.Mutex

	// evalMu is held for a whole evaluation cycle, callbacks included, so
	// Flush can wait out a timer-driven cycle already in flight.
	evalMu sync.Mutex

	cfg      Config
	rules    *rules.RuleSet
	cb       Callbacks
	sched    Scheduler
	ids      IDGenerator
	rec      Recorder
	clock    *Clock
	debounce time.Duration

	channels map[ir.InputType]*ChannelState
	buffer   []ir.InputEvent
	lastTS   time.Time

	stop func() bool // pending debounce, nil when idle
	gen  uint64      // bumped on every schedule, cancel or evaluation
}

// Option configures an Engine.
type Option func(*Engine)

// WithScheduler replaces the wall-clock scheduler.
func WithScheduler(s Scheduler) Option {
	return func(e *Engine) {
		e.sched = s
	}
}

// WithIDGenerator replaces the UUIDv7 input id generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) {
		e.ids = g
	}
}

// WithRecorder attaches an observer for inputs, fusions, conflicts and errors.
func WithRecorder(r Recorder) Option {
	return func(e *Engine) {
		e.rec = r
	}
}

// WithDebounce sets the quiescence delay before a window is evaluated.
//
// Default: 500ms (DefaultDebounce)
func WithDebounce(d time.Duration) Option {
	return func(e *Engine) {
		e.debounce = d
	}
}

// New creates an Engine with the given configuration and callbacks.
//
// Zero-valued window, buffer cap and priority table take their defaults.
// cfg.Rules is copied; its order is the evaluation order. Returns an error
// if a rule is invalid or two rules share an id.
func New(cfg Config, cb Callbacks, opts ...Option) (*Engine, error) {
	rs, err := rules.NewRuleSet(cfg.Rules...)
	if err != nil {
		return nil, fmt.Errorf("engine rules: %w", err)
	}
	cfg = cfg.withDefaults()
	cfg.Rules = nil
	cfg.DefaultPriority = maps.Clone(cfg.DefaultPriority)

	e := &Engine{
		cfg:      cfg,
		rules:    rs,
		cb:       cb,
		sched:    WallScheduler{},
		ids:      UUIDv7Generator{},
		rec:      nopRecorder{},
		clock:    NewClock(),
		debounce: DefaultDebounce,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.initChannels()

	return e, nil
}

func (e *Engine) initChannels() {
	e.channels = make(map[ir.InputType]*ChannelState, len(ir.AllInputTypes()))
	for _, t := range ir.AllInputTypes() {
		e.channels[t] = &ChannelState{}
	}
}

// ProcessInput ingests one input: it assigns id, seq and timestamp, buffers
// the event, notifies OnInputReceived exactly once, and restarts the
// debounce timer. The ingested event is returned.
//
// A draft with no payload gets an empty payload of its type.
func (e *Engine) ProcessInput(d ir.InputDraft) ir.InputEvent {
	e.mu.Lock()
	ev := e.ingest(d)
	cb, rec := e.cb, e.rec
	e.mu.Unlock()

	slog.Debug("input received",
		"id", ev.ID,
		"type", ev.Type,
		"seq", ev.Seq,
	)

	rec.LogInput(ev)
	if cb.OnInputReceived != nil {
		cb.OnInputReceived(ev)
	}

	e.mu.Lock()
	e.scheduleLocked()
	e.mu.Unlock()

	return ev
}

// ingest must be called with e.mu held.
func (e *Engine) ingest(d ir.InputDraft) ir.InputEvent {
	ts := e.sched.Now()
	if ts.Before(e.lastTS) {
		ts = e.lastTS
	}
	e.lastTS = ts

	data := d.Data
	if data == nil {
		data = ir.PayloadFromText(d.Type, "")
	}

	ev := ir.InputEvent{
		ID:         e.ids.Generate(),
		Seq:        e.clock.Next(),
		Type:       d.Type,
		Data:       data,
		Timestamp:  ts,
		Priority:   d.Priority,
		Confidence: d.Confidence,
		Metadata:   maps.Clone(d.Metadata),
	}

	e.buffer = append(e.buffer, ev)
	// A cap below 1 keeps nothing.
	if over := len(e.buffer) - e.cfg.MaxInputBuffer; over > 0 {
		over = min(over, len(e.buffer))
		e.buffer = append([]ir.InputEvent(nil), e.buffer[over:]...)
	}

	if ch, ok := e.channels[ev.Type]; ok {
		ch.Active = true
		last := ev
		ch.LastInput = &last
		ch.Recent = append(ch.Recent, ev)
		if len(ch.Recent) > ChannelRingSize {
			ch.Recent = ch.Recent[len(ch.Recent)-ChannelRingSize:]
		}
	}

	return ev
}

// scheduleLocked cancels any pending evaluation and schedules a new one.
func (e *Engine) scheduleLocked() {
	e.cancelLocked()
	gen := e.gen
	e.stop = e.sched.AfterFunc(e.debounce, func() {
		e.evaluate(gen)
	})
}

func (e *Engine) cancelLocked() {
	if e.stop != nil {
		e.stop()
		e.stop = nil
	}
	e.gen++
}

// Flush evaluates the pending window immediately, if there is one.
// Returns false when nothing was pending. A cycle the timer already started
// is waited for, so its output has been delivered when Flush returns.
//
// Flush must not be called from a callback.
func (e *Engine) Flush() bool {
	e.evalMu.Lock()
	defer e.evalMu.Unlock()

	e.mu.Lock()
	if e.stop == nil {
		e.mu.Unlock()
		return false
	}
	e.stop()
	gen := e.gen
	e.mu.Unlock()

	e.evaluateLocked(gen)
	return true
}

// decision is what one evaluation cycle decided, captured under the lock
// and acted on after it is released.
type decision struct {
	candidates []ir.InputEvent
	rule       rules.Rule
	matched    bool
	priorities map[ir.InputType]int
	stamp      rules.Stamp
	cb         Callbacks
	rec        Recorder
}

// evaluate runs one debounced evaluation cycle. Stale generations are
// ignored.
func (e *Engine) evaluate(gen uint64) {
	e.evalMu.Lock()
	defer e.evalMu.Unlock()
	e.evaluateLocked(gen)
}

// evaluateLocked must be called with e.evalMu held.
func (e *Engine) evaluateLocked(gen uint64) {
	d, ok := e.decide(gen)
	if !ok {
		return
	}

	switch {
	case len(d.candidates) == 1:
		e.emit(d, passThrough(d.candidates[0], d.stamp))

	case len(d.candidates) > 1:
		if d.cb.OnFusionDetected != nil {
			d.cb.OnFusionDetected(append([]ir.InputEvent(nil), d.candidates...))
		}

		out, err := e.fuse(d)
		if err != nil {
			slog.Error("fusion failed",
				"rule_id", d.rule.ID,
				"candidates", len(d.candidates),
				"seq", d.stamp.Seq,
				"error", err,
			)
			d.rec.LogError(err, "evaluate window")
			if d.cb.OnError != nil {
				d.cb.OnError(err)
			}
			return
		}
		e.emit(d, out)
	}
}

// decide selects candidates and the matching rule, then prunes the buffer.
func (e *Engine) decide(gen uint64) (decision, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if gen != e.gen {
		return decision{}, false
	}
	e.stop = nil
	e.gen++

	now := e.sched.Now()
	window := e.cfg.SimultaneousInputWindow

	var candidates []ir.InputEvent
	for _, ev := range e.buffer {
		if now.Sub(ev.Timestamp) <= window {
			candidates = append(candidates, ev)
		}
	}

	d := decision{
		candidates: candidates,
		priorities: e.cfg.DefaultPriority,
		cb:         e.cb,
		rec:        e.rec,
	}
	if len(candidates) > 0 {
		d.stamp = rules.Stamp{Seq: e.clock.Next(), Now: now}
	}
	if len(candidates) > 1 {
		types := make([]ir.InputType, len(candidates))
		for i, c := range candidates {
			types[i] = c.Type
		}
		d.rule, d.matched = e.rules.Match(types)
	}

	kept := e.buffer[:0:0]
	for _, ev := range e.buffer {
		if now.Sub(ev.Timestamp) <= 2*window {
			kept = append(kept, ev)
		}
	}
	if pruned := len(e.buffer) - len(kept); pruned > 0 {
		slog.Debug("buffer pruned", "removed", pruned, "kept", len(kept))
	}
	e.buffer = kept

	slog.Debug("window evaluated",
		"candidates", len(candidates),
		"rule_id", d.rule.ID,
		"matched", d.matched,
	)
	return d, true
}

// fuse runs the matched rule's fuser, or default fusion when none matched.
// Fuser panics are not recovered.
func (e *Engine) fuse(d decision) (ir.FusedOutput, error) {
	if !d.matched {
		return defaultFusion(d.candidates, d.priorities, d.stamp)
	}

	out, err := d.rule.Fuser.Fuse(append([]ir.InputEvent(nil), d.candidates...), d.stamp)
	if err != nil {
		return ir.FusedOutput{}, NewFuserError(d.rule.ID, err)
	}
	if err := out.Validate(); err != nil {
		return ir.FusedOutput{}, NewInvalidOutputError(d.rule.ID, err)
	}
	return out, nil
}

func (e *Engine) emit(d decision, out ir.FusedOutput) {
	slog.Debug("fused output",
		"id", out.ID,
		"rule_id", out.RuleID,
		"kind", out.Data.Kind,
		"inputs", len(out.OriginalInputs),
	)
	d.rec.LogFusion(out)
	if d.cb.OnFusedOutput != nil {
		d.cb.OnFusedOutput(out)
	}
}

// AddRule appends a rule. It applies from the next evaluation.
func (e *Engine) AddRule(r rules.Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rules.Add(r)
}

// RemoveRule deletes a rule by id. Returns false if no rule had that id.
func (e *Engine) RemoveRule(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rules.Remove(id)
}

// Rules returns a copy of the active rules in evaluation order.
func (e *Engine) Rules() []rules.Rule {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.rules.List()
}

// UpdateConfig merges a partial configuration. It affects subsequent
// operations only.
func (e *Engine) UpdateConfig(p ConfigPatch) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p.apply(&e.cfg)
}

// Config returns a copy of the current configuration, rules included.
func (e *Engine) Config() Config {
	e.mu.Lock()
	defer e.mu.Unlock()

	cfg := e.cfg
	cfg.DefaultPriority = maps.Clone(e.cfg.DefaultPriority)
	cfg.Rules = e.rules.List()
	return cfg
}

// State returns a snapshot of channel states and the fusion buffer.
func (e *Engine) State() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap := Snapshot{
		Channels: make(map[ir.InputType]ChannelState, len(e.channels)),
		Buffer:   append([]ir.InputEvent(nil), e.buffer...),
		Pending:  e.stop != nil,
		Seq:      e.clock.Current(),
	}
	for t, ch := range e.channels {
		cs := ChannelState{
			Active: ch.Active,
			Recent: append([]ir.InputEvent(nil), ch.Recent...),
		}
		if ch.LastInput != nil {
			last := *ch.LastInput
			cs.LastInput = &last
		}
		snap.Channels[t] = cs
	}
	return snap
}

// Reset cancels any pending evaluation and clears channel state and the
// fusion buffer. Configuration, rules and callbacks are kept.
func (e *Engine) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.cancelLocked()
	e.buffer = nil
	e.initChannels()
	slog.Debug("engine reset")
}
