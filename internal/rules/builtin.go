package rules

import (
	"fmt"
	"strconv"
	"time"

	"github.com/roach88/fusion/internal/ir"
)

// Kind names one of the built-in fusers.
type Kind string

const (
	KindVoiceTouch      Kind = "voice_touch"
	KindGestureVoice    Kind = "gesture_voice"
	KindCameraVoice     Kind = "camera_voice"
	KindTextVoice       Kind = "text_voice"
	KindMultiTouchVoice Kind = "multi_touch_voice"
	KindSensorVoice     Kind = "sensor_voice"
)

// Kinds returns the built-in kinds in default rule order.
func Kinds() []Kind {
	return []Kind{
		KindVoiceTouch,
		KindGestureVoice,
		KindCameraVoice,
		KindTextVoice,
		KindMultiTouchVoice,
		KindSensorVoice,
	}
}

// builtinSpec is the default rule metadata for a built-in kind.
type builtinSpec struct {
	types    []ir.InputType
	window   time.Duration
	priority int
	fuser    func(ruleID string) Fuser
}

var builtins = map[Kind]builtinSpec{
	KindVoiceTouch: {
		types:    []ir.InputType{ir.InputVoice, ir.InputTouch},
		window:   2000 * time.Millisecond,
		priority: 1,
		fuser:    func(id string) Fuser { return voiceTouch{ruleID: id} },
	},
	KindGestureVoice: {
		types:    []ir.InputType{ir.InputGesture, ir.InputVoice},
		window:   1500 * time.Millisecond,
		priority: 2,
		fuser:    func(id string) Fuser { return gestureVoice{ruleID: id} },
	},
	KindCameraVoice: {
		types:    []ir.InputType{ir.InputCamera, ir.InputVoice},
		window:   3000 * time.Millisecond,
		priority: 1,
		fuser:    func(id string) Fuser { return cameraVoice{ruleID: id} },
	},
	KindTextVoice: {
		types:    []ir.InputType{ir.InputText, ir.InputVoice},
		window:   2500 * time.Millisecond,
		priority: 3,
		fuser:    func(id string) Fuser { return textVoice{ruleID: id} },
	},
	KindMultiTouchVoice: {
		types:    []ir.InputType{ir.InputTouch, ir.InputVoice},
		window:   1800 * time.Millisecond,
		priority: 2,
		fuser:    func(id string) Fuser { return multiTouchVoice{ruleID: id} },
	},
	KindSensorVoice: {
		types:    []ir.InputType{ir.InputSensor, ir.InputVoice},
		window:   2000 * time.Millisecond,
		priority: 4,
		fuser:    func(id string) Fuser { return sensorVoice{ruleID: id} },
	},
}

// ParseKind converts a fuser name into a built-in Kind.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if _, ok := builtins[k]; !ok {
		return "", fmt.Errorf("unknown built-in fuser %q", s)
	}
	return k, nil
}

// DefaultRuleID is the rule id a built-in kind registers under by default.
func DefaultRuleID(k Kind) string {
	return string(k) + "_fusion"
}

// NewBuiltin returns the built-in fuser for kind. ruleID is stamped on the
// outputs it produces.
func NewBuiltin(k Kind, ruleID string) (Fuser, error) {
	spec, ok := builtins[k]
	if !ok {
		return nil, fmt.Errorf("unknown built-in fuser %q", k)
	}
	return spec.fuser(ruleID), nil
}

// BuiltinRule returns the default rule for kind.
func BuiltinRule(k Kind) (Rule, error) {
	spec, ok := builtins[k]
	if !ok {
		return Rule{}, fmt.Errorf("unknown built-in fuser %q", k)
	}
	id := DefaultRuleID(k)
	return Rule{
		ID:         id,
		InputTypes: append([]ir.InputType(nil), spec.types...),
		TimeWindow: spec.window,
		Priority:   spec.priority,
		Resolution: ir.StrategyMerge,
		Fuser:      spec.fuser(id),
	}, nil
}

// DefaultRules returns the six built-in rules in their default order.
//
// voice_touch precedes multi_touch_voice and both need only {touch, voice},
// so with first-match-wins the multi-touch rule is shadowed unless the
// caller reorders or removes voice_touch.
func DefaultRules() []Rule {
	out := make([]Rule, 0, len(builtins))
	for _, k := range Kinds() {
		r, _ := BuiltinRule(k)
		out = append(out, r)
	}
	return out
}

// newOutput assembles a fused output with a content-addressed id.
func newOutput(ruleID string, inputs []ir.InputEvent, at Stamp, data ir.FusedData, confidence float64, meta map[string]string) (ir.FusedOutput, error) {
	id, err := ir.FusedOutputID(ruleID, ir.InputIDs(inputs), at.Seq)
	if err != nil {
		return ir.FusedOutput{}, err
	}
	return ir.FusedOutput{
		ID:             id,
		RuleID:         ruleID,
		OriginalInputs: append([]ir.InputEvent(nil), inputs...),
		Data:           data,
		Confidence:     confidence,
		Timestamp:      at.Now,
		Metadata:       meta,
	}, nil
}

// pair returns the first input of each type, or an error when one is missing.
func pair(inputs []ir.InputEvent, a, b ir.InputType) (ir.InputEvent, ir.InputEvent, error) {
	first, ok := ir.FindType(inputs, a)
	if !ok {
		return ir.InputEvent{}, ir.InputEvent{}, fmt.Errorf("no %s input among candidates", a)
	}
	second, ok := ir.FindType(inputs, b)
	if !ok {
		return ir.InputEvent{}, ir.InputEvent{}, fmt.Errorf("no %s input among candidates", b)
	}
	return first, second, nil
}

type voiceTouch struct{ ruleID string }

func (f voiceTouch) Fuse(inputs []ir.InputEvent, at Stamp) (ir.FusedOutput, error) {
	voice, touch, err := pair(inputs, ir.InputVoice, ir.InputTouch)
	if err != nil {
		return ir.FusedOutput{}, err
	}
	vc, tc := voice.ConfidenceOr(1), touch.ConfidenceOr(1)

	data := ir.FusedData{
		Kind:    "voice_touch_command",
		Command: voice.Text() + " " + touch.Text(),
		Fields: ir.IRObject{
			"voice":             ir.IRString(voice.Text()),
			"touch":             touch.Data.IR(),
			"min_confidence_bp": ir.IRInt(ir.BasisPoints(min(vc, tc))),
		},
	}
	return newOutput(f.ruleID, inputs, at, data, vc*0.7+tc*0.3, map[string]string{
		"fusion_type":   "voice_touch",
		"primary_input": "voice",
	})
}

type gestureVoice struct{ ruleID string }

func (f gestureVoice) Fuse(inputs []ir.InputEvent, at Stamp) (ir.FusedOutput, error) {
	gesture, voice, err := pair(inputs, ir.InputGesture, ir.InputVoice)
	if err != nil {
		return ir.FusedOutput{}, err
	}

	data := ir.FusedData{
		Kind:    "gesture_voice_command",
		Command: EnhanceGestureVoice(gesture.Text(), voice.Text()),
		Fields: ir.IRObject{
			"gesture":     ir.IRString(gesture.Text()),
			"voice":       ir.IRString(voice.Text()),
			"raw_command": ir.IRString(gesture.Text() + " " + voice.Text()),
		},
	}
	confidence := max(gesture.ConfidenceOr(0.8), voice.ConfidenceOr(1))
	return newOutput(f.ruleID, inputs, at, data, confidence, map[string]string{
		"fusion_type":   "gesture_voice",
		"primary_input": "voice",
	})
}

type cameraVoice struct{ ruleID string }

func (f cameraVoice) Fuse(inputs []ir.InputEvent, at Stamp) (ir.FusedOutput, error) {
	camera, voice, err := pair(inputs, ir.InputCamera, ir.InputVoice)
	if err != nil {
		return ir.FusedOutput{}, err
	}

	data := ir.FusedData{
		Kind:    "visual_voice_command",
		Command: voice.Text(),
		Fields: ir.IRObject{
			"image":           camera.Data.IR(),
			"voice":           ir.IRString(voice.Text()),
			"context":         ir.IRString("visual_analysis"),
			"analysis_prompt": ir.IRString("Analyze this image and " + voice.Text()),
		},
	}
	confidence := camera.ConfidenceOr(0.9)*0.4 + voice.ConfidenceOr(1)*0.6
	return newOutput(f.ruleID, inputs, at, data, confidence, map[string]string{
		"fusion_type":        "camera_voice",
		"primary_input":      "voice",
		"has_visual_context": "true",
	})
}

type textVoice struct{ ruleID string }

func (f textVoice) Fuse(inputs []ir.InputEvent, at Stamp) (ir.FusedOutput, error) {
	text, voice, err := pair(inputs, ir.InputText, ir.InputVoice)
	if err != nil {
		return ir.FusedOutput{}, err
	}

	// The longer utterance carries the intent; the other refines it.
	primary, command := "text", text.Text()+" (clarified: "+voice.Text()+")"
	if len(voice.Text()) > len(text.Text()) {
		primary, command = "voice", voice.Text()+" (refined: "+text.Text()+")"
	}

	data := ir.FusedData{
		Kind:    "text_voice_refinement",
		Command: command,
		Fields: ir.IRObject{
			"text":          ir.IRString(text.Text()),
			"voice":         ir.IRString(voice.Text()),
			"primary_input": ir.IRString(primary),
		},
	}
	confidence := max(text.ConfidenceOr(1), voice.ConfidenceOr(1))
	return newOutput(f.ruleID, inputs, at, data, confidence, map[string]string{
		"fusion_type":   "text_voice",
		"primary_input": primary,
		"is_refinement": "true",
	})
}

type multiTouchVoice struct{ ruleID string }

func (f multiTouchVoice) Fuse(inputs []ir.InputEvent, at Stamp) (ir.FusedOutput, error) {
	voice, _, err := pair(inputs, ir.InputVoice, ir.InputTouch)
	if err != nil {
		return ir.FusedOutput{}, err
	}
	touches := ir.FilterType(inputs, ir.InputTouch)

	points := make(ir.IRArray, len(touches))
	for i, t := range touches {
		points[i] = t.Data.IR()
	}
	count := strconv.Itoa(len(touches))

	data := ir.FusedData{
		Kind:    "multi_touch_voice_command",
		Command: voice.Text() + " with " + count + " touch points",
		Fields: ir.IRObject{
			"touches":     points,
			"voice":       ir.IRString(voice.Text()),
			"touch_count": ir.IRInt(len(touches)),
		},
	}
	return newOutput(f.ruleID, inputs, at, data, voice.ConfidenceOr(1)*0.8, map[string]string{
		"fusion_type":   "multi_touch_voice",
		"touch_count":   count,
		"primary_input": "voice",
	})
}

type sensorVoice struct{ ruleID string }

func (f sensorVoice) Fuse(inputs []ir.InputEvent, at Stamp) (ir.FusedOutput, error) {
	sensor, voice, err := pair(inputs, ir.InputSensor, ir.InputVoice)
	if err != nil {
		return ir.FusedOutput{}, err
	}
	ctx, _ := sensor.Data.(ir.Sensor)

	data := ir.FusedData{
		Kind:    "context_aware_voice_command",
		Command: EnhanceSensorVoice(voice.Text(), ctx),
		Fields: ir.IRObject{
			"voice":   ir.IRString(voice.Text()),
			"context": ctx.IR(),
		},
	}
	return newOutput(f.ruleID, inputs, at, data, voice.ConfidenceOr(1)*0.9, map[string]string{
		"fusion_type":         "sensor_voice",
		"primary_input":       "voice",
		"has_contextual_data": "true",
	})
}
