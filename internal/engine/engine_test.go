package engine

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/fusion/internal/ir"
	"github.com/roach88/fusion/internal/rules"
	"github.com/roach88/fusion/internal/testutil"
)

// capture records every callback in order.
type capture struct {
	mu        sync.Mutex
	inputs    []ir.InputEvent
	detected  [][]ir.InputEvent
	outputs   []ir.FusedOutput
	conflicts []ir.InputEvent
	errs      []error
}

func (c *capture) callbacks() Callbacks {
	return Callbacks{
		OnInputReceived: func(ev ir.InputEvent) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.inputs = append(c.inputs, ev)
		},
		OnFusionDetected: func(candidates []ir.InputEvent) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.detected = append(c.detected, candidates)
		},
		OnFusedOutput: func(out ir.FusedOutput) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.outputs = append(c.outputs, out)
		},
		OnConflictResolved: func(_ []ir.InputEvent, resolved ir.InputEvent) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.conflicts = append(c.conflicts, resolved)
		},
		OnError: func(err error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			c.errs = append(c.errs, err)
		},
	}
}

func setupEngine(t *testing.T, cfg Config) (*Engine, *testutil.FakeScheduler, *capture) {
	t.Helper()
	sched := testutil.NewFakeScheduler(time.Time{})
	c := &capture{}
	e, err := New(cfg, c.callbacks(),
		WithScheduler(sched),
		WithIDGenerator(NewFixedGenerator()),
	)
	require.NoError(t, err)
	return e, sched, c
}

func configWithDefaults() Config {
	cfg := DefaultConfig()
	cfg.Rules = rules.DefaultRules()
	return cfg
}

func voiceDraft(s string) ir.InputDraft {
	return ir.InputDraft{Type: ir.InputVoice, Data: ir.Voice{Transcript: s}}
}

func touchDraft(target string) ir.InputDraft {
	return ir.InputDraft{Type: ir.InputTouch, Data: ir.Touch{Target: target}}
}

func TestEngine_VoiceTouchFusesOncePerCycle(t *testing.T) {
	e, sched, c := setupEngine(t, configWithDefaults())

	e.ProcessInput(voiceDraft("open"))
	sched.Advance(200 * time.Millisecond)
	e.ProcessInput(touchDraft("settings"))

	sched.Advance(499 * time.Millisecond)
	assert.Empty(t, c.outputs, "debounce has not elapsed")

	sched.Advance(time.Millisecond)
	require.Len(t, c.outputs, 1)
	out := c.outputs[0]
	assert.Equal(t, "voice_touch_fusion", out.RuleID)
	assert.Equal(t, "open settings", out.Data.Command)
	assert.Len(t, out.OriginalInputs, 2)
	require.Len(t, c.detected, 1)
	assert.Len(t, c.detected[0], 2)

	sched.Advance(10 * time.Second)
	assert.Len(t, c.outputs, 1, "no further output without new input")
}

func TestEngine_BurstEvaluatedOnce(t *testing.T) {
	e, sched, c := setupEngine(t, DefaultConfig())

	for i := 0; i < 4; i++ {
		e.ProcessInput(voiceDraft("word"))
		sched.Advance(400 * time.Millisecond)
	}
	assert.Empty(t, c.outputs)
	assert.Len(t, c.inputs, 4, "one input notification per call")

	sched.Advance(100 * time.Millisecond)
	require.Len(t, c.outputs, 1)
	assert.Len(t, c.outputs[0].OriginalInputs, 4)
}

func TestEngine_SingleInputPassesThrough(t *testing.T) {
	e, sched, c := setupEngine(t, configWithDefaults())

	ev := e.ProcessInput(ir.InputDraft{
		Type:       ir.InputText,
		Data:       ir.Text{Body: "hello"},
		Confidence: ir.Confidence(0.6),
	})
	sched.Advance(DefaultDebounce)

	require.Len(t, c.outputs, 1)
	out := c.outputs[0]
	assert.Equal(t, ir.KindPassthrough, out.Data.Kind)
	assert.Equal(t, ir.Text{Body: "hello"}, out.Data.Payload)
	assert.InDelta(t, 0.6, out.Confidence, 1e-9)
	assert.Equal(t, []ir.InputEvent{ev}, out.OriginalInputs)
	assert.Empty(t, c.detected, "a lone input is not a fusion")
}

func TestEngine_SingleInputDefaultConfidence(t *testing.T) {
	e, sched, c := setupEngine(t, DefaultConfig())

	e.ProcessInput(voiceDraft("stop"))
	sched.Advance(DefaultDebounce)

	require.Len(t, c.outputs, 1)
	assert.Equal(t, 1.0, c.outputs[0].Confidence)
}

func TestEngine_GestureVoiceEndToEnd(t *testing.T) {
	e, sched, c := setupEngine(t, configWithDefaults())

	e.ProcessInput(ir.InputDraft{Type: ir.InputGesture, Data: ir.Gesture{Name: "swipe_up"}})
	sched.Advance(300 * time.Millisecond)
	e.ProcessInput(voiceDraft("turn on music"))
	sched.Advance(DefaultDebounce)

	require.Len(t, c.outputs, 1)
	assert.Equal(t, "activate turn on music", c.outputs[0].Data.Command)
}

func TestEngine_FirstMatchWinsRegardlessOfPriority(t *testing.T) {
	stub := func(id string, priority int) rules.Rule {
		return rules.Rule{
			ID:         id,
			InputTypes: []ir.InputType{ir.InputVoice, ir.InputTouch},
			Priority:   priority,
			Fuser: rules.FuserFunc(func(inputs []ir.InputEvent, at rules.Stamp) (ir.FusedOutput, error) {
				return ir.FusedOutput{
					ID:             id,
					RuleID:         id,
					OriginalInputs: inputs,
					Data:           ir.FusedData{Kind: "stub", Command: id},
					Timestamp:      at.Now,
				}, nil
			}),
		}
	}
	cfg := DefaultConfig()
	cfg.Rules = []rules.Rule{stub("registered-first", 9), stub("registered-second", 1)}
	e, sched, c := setupEngine(t, cfg)

	e.ProcessInput(touchDraft("a"))
	e.ProcessInput(voiceDraft("b"))
	sched.Advance(DefaultDebounce)

	require.Len(t, c.outputs, 1)
	assert.Equal(t, "registered-first", c.outputs[0].RuleID)
}

func TestEngine_BufferBound(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxInputBuffer = 4
	e, _, _ := setupEngine(t, cfg)

	var ids []string
	for i := 0; i < cfg.MaxInputBuffer+3; i++ {
		ev := e.ProcessInput(voiceDraft("x"))
		ids = append(ids, ev.ID)
		assert.LessOrEqual(t, len(e.State().Buffer), cfg.MaxInputBuffer)
	}

	buf := e.State().Buffer
	require.Len(t, buf, 4)
	assert.Equal(t, ids[3:], ir.InputIDs(buf), "oldest entries are evicted first")
}

func TestEngine_LoweredBufferCapTrimsOnNextInput(t *testing.T) {
	e, _, _ := setupEngine(t, DefaultConfig())
	for i := 0; i < 6; i++ {
		e.ProcessInput(voiceDraft("x"))
	}

	capacity := 2
	e.UpdateConfig(ConfigPatch{MaxInputBuffer: &capacity})
	e.ProcessInput(voiceDraft("y"))

	assert.Len(t, e.State().Buffer, 2)
}

func TestEngine_NegativeBufferCapKeepsNothing(t *testing.T) {
	e, sched, c := setupEngine(t, DefaultConfig())
	e.ProcessInput(voiceDraft("x"))

	capacity := -1
	e.UpdateConfig(ConfigPatch{MaxInputBuffer: &capacity})
	require.NotPanics(t, func() { e.ProcessInput(voiceDraft("y")) })

	assert.Empty(t, e.State().Buffer)
	sched.Advance(DefaultDebounce)
	assert.Empty(t, c.outputs)
}

func TestEngine_PartialConfigTakesDefaults(t *testing.T) {
	e, sched, c := setupEngine(t, Config{SimultaneousInputWindow: 2 * time.Second})

	cfg := e.Config()
	assert.Equal(t, DefaultMaxInputBuffer, cfg.MaxInputBuffer)
	assert.Equal(t, DefaultPriorities(), cfg.DefaultPriority)

	e.ProcessInput(voiceDraft("hello"))
	sched.Advance(DefaultDebounce)

	require.Len(t, c.outputs, 1)
	assert.Equal(t, "hello", c.outputs[0].Data.Command)
}

func TestEngine_ZeroConfigTakesDefaults(t *testing.T) {
	e, _, _ := setupEngine(t, Config{})

	cfg := e.Config()
	assert.Equal(t, DefaultSimultaneousInputWindow, cfg.SimultaneousInputWindow)
	assert.Equal(t, DefaultMaxInputBuffer, cfg.MaxInputBuffer)
	assert.Equal(t, DefaultPriorities(), cfg.DefaultPriority)
}

func TestEngine_ExplicitPriorityTableIsKept(t *testing.T) {
	prio := map[ir.InputType]int{ir.InputText: 1}
	e, _, _ := setupEngine(t, Config{DefaultPriority: prio})

	assert.Equal(t, prio, e.Config().DefaultPriority)
}

func TestEngine_PrunesAfterTwiceWindow(t *testing.T) {
	e, sched, c := setupEngine(t, DefaultConfig())

	old := e.ProcessInput(voiceDraft("first"))
	sched.Advance(DefaultDebounce)
	require.Len(t, c.outputs, 1)
	assert.Equal(t, []string{old.ID}, ir.InputIDs(e.State().Buffer), "kept while younger than 2x window")

	sched.Advance(4100 * time.Millisecond)
	fresh := e.ProcessInput(voiceDraft("second"))
	sched.Advance(DefaultDebounce)

	require.Len(t, c.outputs, 2)
	assert.Equal(t, []string{fresh.ID}, ir.InputIDs(c.outputs[1].OriginalInputs))
	assert.Equal(t, []string{fresh.ID}, ir.InputIDs(e.State().Buffer))
}

func TestEngine_OutsideWindowNotFused(t *testing.T) {
	e, sched, c := setupEngine(t, configWithDefaults())

	e.ProcessInput(voiceDraft("open"))
	sched.Advance(1900 * time.Millisecond)
	e.ProcessInput(touchDraft("settings"))
	sched.Advance(DefaultDebounce)

	// The voice input is now 2400ms old: the first cycle passed it through
	// and the second sees only the touch.
	require.Len(t, c.outputs, 2)
	assert.Equal(t, ir.KindPassthrough, c.outputs[1].Data.Kind)
	assert.Equal(t, ir.InputTouch, c.outputs[1].OriginalInputs[0].Type)
}

func TestEngine_NothingInWindowEmitsNothing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SimultaneousInputWindow = 100 * time.Millisecond
	e, sched, c := setupEngine(t, cfg)

	e.ProcessInput(voiceDraft("late"))
	sched.Advance(DefaultDebounce)

	assert.Empty(t, c.outputs)
}

func TestEngine_DefaultFusionTemplates(t *testing.T) {
	tests := []struct {
		name    string
		drafts  []ir.InputDraft
		kind    string
		command string
	}{
		{
			name: "text and voice in priority order",
			drafts: []ir.InputDraft{
				{Type: ir.InputText, Data: ir.Text{Body: "jazz"}},
				voiceDraft("play"),
			},
			kind:    ir.KindVoiceText,
			command: "play jazz",
		},
		{
			name: "gesture before voice",
			drafts: []ir.InputDraft{
				voiceDraft("volume"),
				{Type: ir.InputGesture, Data: ir.Gesture{Name: "swipe_up"}},
			},
			kind:    ir.KindGestureVoice,
			command: "swipe_up volume",
		},
		{
			name:    "voice with touch",
			drafts:  []ir.InputDraft{touchDraft("button"), voiceDraft("press")},
			kind:    ir.KindTouchVoice,
			command: "press with button",
		},
		{
			name: "camera defers to voice",
			drafts: []ir.InputDraft{
				{Type: ir.InputCamera, Data: ir.Camera{ImageRef: "frame-1"}},
				voiceDraft("what is this"),
			},
			kind:    ir.KindCameraVoice,
			command: "what is this",
		},
		{
			name: "other combinations wrap every input",
			drafts: []ir.InputDraft{
				touchDraft("map"),
				{Type: ir.InputGesture, Data: ir.Gesture{Name: "pinch"}},
			},
			kind:    ir.KindMultiInput,
			command: "pinch",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, sched, c := setupEngine(t, DefaultConfig())
			for _, d := range tt.drafts {
				e.ProcessInput(d)
			}
			sched.Advance(DefaultDebounce)

			require.Len(t, c.outputs, 1)
			out := c.outputs[0]
			assert.Equal(t, tt.kind, out.Data.Kind)
			assert.Equal(t, tt.command, out.Data.Command)
			assert.Empty(t, out.RuleID)
			assert.Equal(t, "default", out.Metadata["fusion_type"])
		})
	}
}

func TestEngine_DefaultFusionOrdersByPriority(t *testing.T) {
	e, sched, c := setupEngine(t, DefaultConfig())

	sensor := e.ProcessInput(ir.InputDraft{Type: ir.InputSensor, Data: ir.Sensor{Label: "gps"}, Confidence: ir.Confidence(0.5)})
	touch := e.ProcessInput(touchDraft("pin"))
	urgent := e.ProcessInput(ir.InputDraft{Type: ir.InputSensor, Data: ir.Sensor{Label: "fall"}, Priority: 2})
	sched.Advance(DefaultDebounce)

	require.Len(t, c.outputs, 1)
	out := c.outputs[0]
	assert.Equal(t, []string{urgent.ID, touch.ID, sensor.ID}, ir.InputIDs(out.OriginalInputs))
	assert.InDelta(t, (0.5+1+1)/3.0, out.Confidence, 1e-9)
	assert.Equal(t, "sensor+touch", out.Metadata["input_types"])
	assert.Equal(t, ir.IRObject{"label": ir.IRString("fall")}, out.Data.Fields["primary"])
}

func TestEngine_FuserErrorAbortsCycle(t *testing.T) {
	boom := errors.New("model unavailable")
	cfg := DefaultConfig()
	cfg.Rules = []rules.Rule{{
		ID:         "broken",
		InputTypes: []ir.InputType{ir.InputVoice, ir.InputText},
		Fuser: rules.FuserFunc(func([]ir.InputEvent, rules.Stamp) (ir.FusedOutput, error) {
			return ir.FusedOutput{}, boom
		}),
	}}
	e, sched, c := setupEngine(t, cfg)

	e.ProcessInput(voiceDraft("a"))
	e.ProcessInput(ir.InputDraft{Type: ir.InputText, Data: ir.Text{Body: "b"}})
	sched.Advance(DefaultDebounce)

	assert.Empty(t, c.outputs)
	require.Len(t, c.errs, 1)
	assert.True(t, IsFuserError(c.errs[0]))
	assert.ErrorIs(t, c.errs[0], boom)

	var re *RuntimeError
	require.ErrorAs(t, c.errs[0], &re)
	assert.Equal(t, "broken", re.RuleID)
}

func TestEngine_InvalidFuserOutputRejected(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rules = []rules.Rule{{
		ID:         "empty",
		InputTypes: []ir.InputType{ir.InputVoice, ir.InputText},
		Fuser: rules.FuserFunc(func([]ir.InputEvent, rules.Stamp) (ir.FusedOutput, error) {
			return ir.FusedOutput{ID: "x"}, nil
		}),
	}}
	e, sched, c := setupEngine(t, cfg)

	e.ProcessInput(voiceDraft("a"))
	e.ProcessInput(ir.InputDraft{Type: ir.InputText, Data: ir.Text{Body: "b"}})
	sched.Advance(DefaultDebounce)

	assert.Empty(t, c.outputs)
	require.Len(t, c.errs, 1)
	assert.True(t, IsInvalidOutputError(c.errs[0]))
}

func TestEngine_ResolveConflictPriorityIdempotent(t *testing.T) {
	e, _, c := setupEngine(t, DefaultConfig())

	a := ir.InputEvent{ID: "a", Type: ir.InputTouch, Priority: 3}
	b := ir.InputEvent{ID: "b", Type: ir.InputGesture, Priority: 3}

	for i := 0; i < 5; i++ {
		got, err := e.ResolveConflict([]ir.InputEvent{a, b}, ir.StrategyPriority)
		require.NoError(t, err)
		assert.Equal(t, "a", got.ID, "ties keep the earlier input")
	}
	assert.Len(t, c.conflicts, 5)
}

func TestEngine_ResolveConflictPriorityUsesDefaults(t *testing.T) {
	e, _, _ := setupEngine(t, DefaultConfig())

	touch := ir.InputEvent{ID: "touch", Type: ir.InputTouch}
	voice := ir.InputEvent{ID: "voice", Type: ir.InputVoice}
	unknown := ir.InputEvent{ID: "explicit", Type: ir.InputSensor, Priority: 2}

	got, err := e.ResolveConflict([]ir.InputEvent{touch, unknown, voice}, ir.StrategyPriority)
	require.NoError(t, err)
	assert.Equal(t, "voice", got.ID)
}

func TestEngine_ResolveConflictMerge(t *testing.T) {
	e, sched, c := setupEngine(t, DefaultConfig())
	sched.Advance(time.Minute)

	a := ir.InputEvent{ID: "a", Type: ir.InputVoice, Data: ir.Voice{Transcript: "turn on"}, Priority: 1, Confidence: ir.Confidence(0.9)}
	b := ir.InputEvent{ID: "b", Type: ir.InputText, Data: ir.Text{Body: "the lights"}, Priority: 2, Confidence: ir.Confidence(0.8)}

	got, err := e.ResolveConflict([]ir.InputEvent{a, b}, ir.StrategyMerge)
	require.NoError(t, err)

	assert.Equal(t, "turn on the lights", got.Text())
	assert.Equal(t, 1, got.Priority)
	require.NotNil(t, got.Confidence)
	assert.InDelta(t, 0.85, *got.Confidence, 1e-9)
	assert.Equal(t, ir.InputVoice, got.Type)
	assert.Equal(t, sched.Now(), got.Timestamp)
	assert.Regexp(t, `^merged_[0-9a-f]{64}$`, got.ID)
	require.Len(t, c.conflicts, 1)
	assert.Equal(t, got.ID, c.conflicts[0].ID)
}

func TestEngine_ResolveConflictLatest(t *testing.T) {
	e, _, _ := setupEngine(t, DefaultConfig())
	t0 := testutil.Epoch

	a := ir.InputEvent{ID: "a", Timestamp: t0}
	b := ir.InputEvent{ID: "b", Timestamp: t0.Add(time.Second)}
	c := ir.InputEvent{ID: "c", Timestamp: t0.Add(time.Second)}

	got, err := e.ResolveConflict([]ir.InputEvent{a, b, c}, ir.StrategyLatest)
	require.NoError(t, err)
	assert.Equal(t, "b", got.ID)
}

func TestEngine_ResolveConflictUnknownStrategyReturnsFirst(t *testing.T) {
	e, _, _ := setupEngine(t, DefaultConfig())

	got, err := e.ResolveConflict([]ir.InputEvent{{ID: "first"}, {ID: "second", Priority: 1}}, ir.Strategy("user_choice"))
	require.NoError(t, err)
	assert.Equal(t, "first", got.ID)
}

func TestEngine_ResolveConflictEmpty(t *testing.T) {
	e, _, c := setupEngine(t, DefaultConfig())

	_, err := e.ResolveConflict(nil, ir.StrategyPriority)
	assert.ErrorIs(t, err, ErrNoInputs)
	assert.Empty(t, c.conflicts)
}

func TestEngine_ResetCancelsPendingEvaluation(t *testing.T) {
	e, sched, c := setupEngine(t, DefaultConfig())

	e.ProcessInput(voiceDraft("never fused"))
	require.True(t, e.State().Pending)

	e.Reset()
	sched.Advance(time.Second)

	assert.Empty(t, c.outputs)
	state := e.State()
	assert.False(t, state.Pending)
	assert.Empty(t, state.Buffer)
	require.Len(t, state.Channels, 6)
	for _, ch := range state.Channels {
		assert.False(t, ch.Active)
		assert.Nil(t, ch.LastInput)
	}
}

func TestEngine_ResetKeepsConfigAndRules(t *testing.T) {
	e, sched, c := setupEngine(t, configWithDefaults())
	window := 3 * time.Second
	e.UpdateConfig(ConfigPatch{SimultaneousInputWindow: &window})

	e.Reset()
	assert.Equal(t, window, e.Config().SimultaneousInputWindow)
	assert.Len(t, e.Rules(), 6)

	e.ProcessInput(voiceDraft("after reset"))
	sched.Advance(DefaultDebounce)
	assert.Len(t, c.outputs, 1)
}

func TestEngine_ChannelState(t *testing.T) {
	e, _, _ := setupEngine(t, DefaultConfig())

	var last ir.InputEvent
	for i := 0; i < ChannelRingSize+2; i++ {
		last = e.ProcessInput(voiceDraft("x"))
	}

	state := e.State()
	voice := state.Channels[ir.InputVoice]
	assert.True(t, voice.Active)
	require.NotNil(t, voice.LastInput)
	assert.Equal(t, last.ID, voice.LastInput.ID)
	assert.Len(t, voice.Recent, ChannelRingSize)
	assert.False(t, state.Channels[ir.InputTouch].Active)
}

func TestEngine_StateIsACopy(t *testing.T) {
	e, _, _ := setupEngine(t, DefaultConfig())
	e.ProcessInput(voiceDraft("x"))

	snap := e.State()
	snap.Buffer[0].ID = "mutated"
	snap.Channels[ir.InputVoice].Recent[0].ID = "mutated"

	again := e.State()
	assert.NotEqual(t, "mutated", again.Buffer[0].ID)
	assert.NotEqual(t, "mutated", again.Channels[ir.InputVoice].Recent[0].ID)
}

func TestEngine_AddAndRemoveRule(t *testing.T) {
	e, sched, c := setupEngine(t, configWithDefaults())

	assert.True(t, e.RemoveRule("voice_touch_fusion"))
	assert.False(t, e.RemoveRule("voice_touch_fusion"))

	e.ProcessInput(voiceDraft("select"))
	e.ProcessInput(touchDraft("a"))
	sched.Advance(DefaultDebounce)

	require.Len(t, c.outputs, 1)
	assert.Equal(t, "multi_touch_voice_fusion", c.outputs[0].RuleID)
	assert.Equal(t, "select with 1 touch points", c.outputs[0].Data.Command)

	vt, err := rules.BuiltinRule(rules.KindVoiceTouch)
	require.NoError(t, err)
	require.NoError(t, e.AddRule(vt))
	assert.Error(t, e.AddRule(vt), "duplicate ids are rejected")
	assert.Equal(t, "voice_touch_fusion", e.Rules()[5].ID)
}

func TestEngine_UpdateConfigShrinksWindow(t *testing.T) {
	e, sched, c := setupEngine(t, configWithDefaults())

	e.ProcessInput(voiceDraft("open"))
	sched.Advance(400 * time.Millisecond)
	e.ProcessInput(touchDraft("settings"))

	window := 600 * time.Millisecond
	e.UpdateConfig(ConfigPatch{SimultaneousInputWindow: &window})
	sched.Advance(DefaultDebounce)

	require.Len(t, c.outputs, 1)
	assert.Equal(t, ir.KindPassthrough, c.outputs[0].Data.Kind)
}

func TestEngine_UpdateConfigPriorities(t *testing.T) {
	e, _, _ := setupEngine(t, DefaultConfig())
	e.UpdateConfig(ConfigPatch{DefaultPriority: map[ir.InputType]int{ir.InputTouch: 1}})

	got, err := e.ResolveConflict([]ir.InputEvent{
		{ID: "voice", Type: ir.InputVoice},
		{ID: "touch", Type: ir.InputTouch},
	}, ir.StrategyPriority)
	require.NoError(t, err)
	assert.Equal(t, "touch", got.ID, "voice falls back to 10 once the table is replaced")
}

func TestEngine_Flush(t *testing.T) {
	e, _, c := setupEngine(t, DefaultConfig())

	assert.False(t, e.Flush())

	e.ProcessInput(voiceDraft("now"))
	assert.True(t, e.Flush())
	assert.Len(t, c.outputs, 1)
	assert.False(t, e.Flush())
}

// heldScheduler hands the debounce callback to the test instead of running
// it, and reports every timer as already fired.
type heldScheduler struct {
	mu   sync.Mutex
	fire func()
}

func (s *heldScheduler) Now() time.Time { return testutil.Epoch }

func (s *heldScheduler) AfterFunc(_ time.Duration, f func()) func() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fire = f
	return func() bool { return false }
}

func (s *heldScheduler) callback() func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fire
}

func TestEngine_FlushWaitsForTimerCycle(t *testing.T) {
	sched := &heldScheduler{}
	entered := make(chan struct{})
	release := make(chan struct{})

	var mu sync.Mutex
	var outputs []ir.FusedOutput
	e, err := New(DefaultConfig(), Callbacks{
		OnFusedOutput: func(out ir.FusedOutput) {
			close(entered)
			<-release
			mu.Lock()
			defer mu.Unlock()
			outputs = append(outputs, out)
		},
	}, WithScheduler(sched), WithIDGenerator(NewFixedGenerator()))
	require.NoError(t, err)

	e.ProcessInput(voiceDraft("last words"))
	go sched.callback()()
	<-entered

	flushed := make(chan bool, 1)
	go func() { flushed <- e.Flush() }()

	select {
	case <-flushed:
		t.Fatal("Flush returned while the timer cycle was still delivering")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	select {
	case ok := <-flushed:
		assert.False(t, ok, "the timer cycle already consumed the window")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for Flush")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, outputs, 1)
	assert.Equal(t, "last words", outputs[0].Data.Command)
}

func TestEngine_StateSeq(t *testing.T) {
	e, sched, _ := setupEngine(t, DefaultConfig())
	assert.Equal(t, int64(0), e.State().Seq)

	e.ProcessInput(voiceDraft("a"))
	e.ProcessInput(voiceDraft("b"))
	assert.Equal(t, int64(2), e.State().Seq)

	sched.Advance(DefaultDebounce)
	assert.Equal(t, int64(3), e.State().Seq, "the decision takes the next seq")
}

func TestEngine_SeqAndTimestampsMonotonic(t *testing.T) {
	e, sched, _ := setupEngine(t, DefaultConfig())

	var prev ir.InputEvent
	for i := 0; i < 5; i++ {
		ev := e.ProcessInput(voiceDraft("x"))
		if i > 0 {
			assert.Greater(t, ev.Seq, prev.Seq)
			assert.False(t, ev.Timestamp.Before(prev.Timestamp))
		}
		prev = ev
		sched.Advance(10 * time.Millisecond)
	}
}

func TestEngine_InstancesAreIndependent(t *testing.T) {
	a, schedA, ca := setupEngine(t, DefaultConfig())
	b, _, cb := setupEngine(t, DefaultConfig())

	a.ProcessInput(voiceDraft("only a"))
	schedA.Advance(DefaultDebounce)

	assert.Len(t, ca.outputs, 1)
	assert.Empty(t, cb.outputs)
	assert.Empty(t, b.State().Buffer)
}

func TestEngine_NewRejectsDuplicateRules(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rules = append(rules.DefaultRules(), rules.DefaultRules()[0])

	_, err := New(cfg, Callbacks{})
	assert.Error(t, err)
}

type countingRecorder struct {
	inputs, fusions, conflicts, errs int
}

func (r *countingRecorder) LogInput(ir.InputEvent) { r.inputs++ }
func (r *countingRecorder) LogFusion(ir.FusedOutput) { r.fusions++ }
func (r *countingRecorder) LogConflict([]ir.InputEvent, ir.Strategy, ir.InputEvent) { r.conflicts++ }
func (r *countingRecorder) LogError(error, string) { r.errs++ }

func TestEngine_Recorder(t *testing.T) {
	sched := testutil.NewFakeScheduler(time.Time{})
	rec := &countingRecorder{}
	e, err := New(configWithDefaults(), Callbacks{}, WithScheduler(sched), WithRecorder(rec))
	require.NoError(t, err)

	e.ProcessInput(voiceDraft("open"))
	e.ProcessInput(touchDraft("settings"))
	sched.Advance(DefaultDebounce)
	_, err = e.ResolveConflict([]ir.InputEvent{{ID: "x"}}, ir.StrategyLatest)
	require.NoError(t, err)

	assert.Equal(t, 2, rec.inputs)
	assert.Equal(t, 1, rec.fusions)
	assert.Equal(t, 1, rec.conflicts)
	assert.Equal(t, 0, rec.errs)
}

func TestEngine_WallScheduler(t *testing.T) {
	outputs := make(chan ir.FusedOutput, 1)
	e, err := New(DefaultConfig(), Callbacks{
		OnFusedOutput: func(out ir.FusedOutput) { outputs <- out },
	}, WithDebounce(10*time.Millisecond))
	require.NoError(t, err)

	e.ProcessInput(voiceDraft("real time"))

	select {
	case out := <-outputs:
		assert.Equal(t, "real time", out.Data.Command)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fused output")
	}
}
