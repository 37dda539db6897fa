package ir

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MarshalPayload encodes a payload as plain JSON using its struct tags.
// Unlike IR, the result may hold floats (sensor coordinates).
func MarshalPayload(p Payload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("marshal payload: nil payload")
	}
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", p.Kind(), err)
	}
	return data, nil
}

// UnmarshalPayload decodes JSON into the payload variant for t.
//
// A bare JSON string is shorthand for the channel's text field, so
// {"type":"voice","data":"hello"} and {"type":"voice","data":{"transcript":"hello"}}
// decode the same. Unknown object fields are rejected.
func UnmarshalPayload(t InputType, data []byte) (Payload, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("unknown input type %q", t)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("unmarshal %s payload: empty data", t)
	}

	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return nil, fmt.Errorf("unmarshal %s payload: %w", t, err)
		}
		return PayloadFromText(t, s), nil
	}

	var p Payload
	var err error
	switch t {
	case InputVoice:
		p, err = decodeStrict[Voice](trimmed)
	case InputText:
		p, err = decodeStrict[Text](trimmed)
	case InputGesture:
		p, err = decodeStrict[Gesture](trimmed)
	case InputTouch:
		p, err = decodeStrict[Touch](trimmed)
	case InputCamera:
		p, err = decodeStrict[Camera](trimmed)
	case InputSensor:
		p, err = decodeStrict[Sensor](trimmed)
	}
	if err != nil {
		return nil, fmt.Errorf("unmarshal %s payload: %w", t, err)
	}
	return p, nil
}

func decodeStrict[T Payload](data []byte) (T, error) {
	var v T
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, err
	}
	return v, nil
}
