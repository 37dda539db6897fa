package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/roach88/fusion/internal/ir"
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}

// marshalFusedData converts fused data to canonical JSON TEXT.
// Pass-through payloads are embedded under "payload" in their IR form.
func marshalFusedData(d ir.FusedData) (string, error) {
	obj := ir.IRObject{"kind": ir.IRString(d.Kind)}
	if d.Command != "" {
		obj["command"] = ir.IRString(d.Command)
	}
	if len(d.Fields) > 0 {
		obj["fields"] = d.Fields
	}
	if d.Payload != nil {
		obj["payload"] = d.Payload.IR()
	}
	data, err := ir.MarshalCanonical(obj)
	if err != nil {
		return "", fmt.Errorf("marshal fused data: %w", err)
	}
	return string(data), nil
}

// unmarshalFusedData parses canonical JSON TEXT back to an IRObject.
func unmarshalFusedData(data string) (ir.IRObject, error) {
	var obj ir.IRObject
	if err := json.Unmarshal([]byte(data), &obj); err != nil {
		return nil, fmt.Errorf("unmarshal fused data: %w", err)
	}
	return obj, nil
}

// marshalMetadata converts string metadata to JSON TEXT. encoding/json sorts
// map keys, so the output is stable.
func marshalMetadata(m map[string]string) (string, error) {
	if len(m) == 0 {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal metadata: %w", err)
	}
	return string(data), nil
}

func unmarshalMetadata(data string) (map[string]string, error) {
	if data == "" || data == "{}" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, fmt.Errorf("unmarshal metadata: %w", err)
	}
	return m, nil
}

func marshalIDs(ids []string) (string, error) {
	data, err := ir.MarshalCanonical(ir.Strings(ids...))
	if err != nil {
		return "", fmt.Errorf("marshal input ids: %w", err)
	}
	return string(data), nil
}

func unmarshalIDs(data string) ([]string, error) {
	ids := []string{}
	if err := json.Unmarshal([]byte(data), &ids); err != nil {
		return nil, fmt.Errorf("unmarshal input ids: %w", err)
	}
	return ids, nil
}

// confidenceBP converts an optional confidence to nullable basis points.
func confidenceBP(c *float64) any {
	if c == nil {
		return nil
	}
	return ir.BasisPoints(*c)
}
