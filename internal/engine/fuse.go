package engine

import (
	"slices"
	"strings"

	"github.com/roach88/fusion/internal/ir"
	"github.com/roach88/fusion/internal/rules"
)

// passThrough wraps a lone input as its own fused output.
func passThrough(ev ir.InputEvent, at rules.Stamp) ir.FusedOutput {
	return ir.FusedOutput{
		ID:             ir.MustFusedOutputID("", []string{ev.ID}, at.Seq),
		OriginalInputs: []ir.InputEvent{ev},
		Data: ir.FusedData{
			Kind:    ir.KindPassthrough,
			Command: ev.Text(),
			Payload: ev.Data,
		},
		Confidence: ev.ConfidenceOr(1.0),
		Timestamp:  at.Now,
		Metadata:   map[string]string{"fusion_type": "single"},
	}
}

// typeKey is the sorted, distinct, "+"-joined set of input types.
func typeKey(inputs []ir.InputEvent) string {
	types := make([]string, 0, len(inputs))
	for _, in := range inputs {
		types = append(types, string(in.Type))
	}
	slices.Sort(types)
	return strings.Join(slices.Compact(types), "+")
}

// defaultFusion combines candidates no rule claimed.
//
// Candidates are stable-sorted by effective priority, so originalInputs is
// in priority order and arrival order breaks ties. Confidence is the plain
// mean.
func defaultFusion(candidates []ir.InputEvent, priorities map[ir.InputType]int, at rules.Stamp) (ir.FusedOutput, error) {
	sorted := append([]ir.InputEvent(nil), candidates...)
	slices.SortStableFunc(sorted, func(a, b ir.InputEvent) int {
		return a.EffectivePriority(priorities) - b.EffectivePriority(priorities)
	})

	key := typeKey(sorted)
	id, err := ir.FusedOutputID("", ir.InputIDs(sorted), at.Seq)
	if err != nil {
		return ir.FusedOutput{}, err
	}

	return ir.FusedOutput{
		ID:             id,
		OriginalInputs: sorted,
		Data:           combine(key, sorted),
		Confidence:     ir.MeanConfidence(sorted),
		Timestamp:      at.Now,
		Metadata: map[string]string{
			"fusion_type": "default",
			"input_types": key,
		},
	}, nil
}

// combine builds the fused data for a type combination. sorted[0] is the
// highest-priority input.
func combine(key string, sorted []ir.InputEvent) ir.FusedData {
	text := func(t ir.InputType) string {
		ev, _ := ir.FindType(sorted, t)
		return ev.Text()
	}

	switch key {
	case "text+voice":
		primary, secondary := sorted[0], sorted[1]
		return ir.FusedData{
			Kind:    ir.KindVoiceText,
			Command: strings.TrimSpace(primary.Text() + " " + secondary.Text()),
			Fields: ir.IRObject{
				"primary":   primary.Data.IR(),
				"secondary": secondary.Data.IR(),
			},
		}

	case "gesture+voice":
		return ir.FusedData{
			Kind:    ir.KindGestureVoice,
			Command: text(ir.InputGesture) + " " + text(ir.InputVoice),
			Fields: ir.IRObject{
				"gesture": ir.IRString(text(ir.InputGesture)),
				"voice":   ir.IRString(text(ir.InputVoice)),
			},
		}

	case "touch+voice":
		touch, _ := ir.FindType(sorted, ir.InputTouch)
		return ir.FusedData{
			Kind:    ir.KindTouchVoice,
			Command: text(ir.InputVoice) + " with " + touch.Text(),
			Fields: ir.IRObject{
				"touch": touch.Data.IR(),
				"voice": ir.IRString(text(ir.InputVoice)),
			},
		}

	case "camera+voice":
		camera, _ := ir.FindType(sorted, ir.InputCamera)
		return ir.FusedData{
			Kind:    ir.KindCameraVoice,
			Command: text(ir.InputVoice),
			Fields: ir.IRObject{
				"image":   camera.Data.IR(),
				"voice":   ir.IRString(text(ir.InputVoice)),
				"context": ir.IRString("visual"),
			},
		}
	}

	inputs := make(ir.IRArray, len(sorted))
	for i, in := range sorted {
		inputs[i] = ir.IRObject{
			"type": ir.IRString(in.Type),
			"data": in.Data.IR(),
		}
	}
	return ir.FusedData{
		Kind:    ir.KindMultiInput,
		Command: sorted[0].Text(),
		Fields: ir.IRObject{
			"inputs":  inputs,
			"primary": sorted[0].Data.IR(),
		},
	}
}
