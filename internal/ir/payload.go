package ir

import (
	"strconv"
	"time"
)

// Payload is a sealed tagged union of per-channel input data.
// Only the six channel payload types below implement it.
//
// The core treats payload content as opaque: it only reads Kind to validate
// the tag and Text to build natural-language commands.
type Payload interface {
	Kind() InputType
	Text() string
	IR() IRValue
	payload()
}

// Voice is a speech recognition transcript.
type Voice struct {
	Transcript string `json:"transcript"`
}

func (Voice) payload() {}
func (Voice) Kind() InputType { return InputVoice }
func (v Voice) Text() string { return v.Transcript }
func (v Voice) IR() IRValue { return IRString(v.Transcript) }

// Text is typed or pasted text.
type Text struct {
	Body string `json:"body"`
}

func (Text) payload() {}
func (Text) Kind() InputType { return InputText }
func (t Text) Text() string { return t.Body }
func (t Text) IR() IRValue { return IRString(t.Body) }

// Gesture is a recognised gesture token such as "swipe_up" or "pinch".
type Gesture struct {
	Name string `json:"name"`
}

func (Gesture) payload() {}
func (Gesture) Kind() InputType { return InputGesture }
func (g Gesture) Text() string { return g.Name }
func (g Gesture) IR() IRValue { return IRString(g.Name) }

// Touch is a touch on a UI target. X and Y are in device pixels.
type Touch struct {
	Target string `json:"target"`
	X      int    `json:"x,omitempty"`
	Y      int    `json:"y,omitempty"`
}

func (Touch) payload() {}
func (Touch) Kind() InputType { return InputTouch }

func (t Touch) Text() string {
	if t.Target != "" {
		return t.Target
	}
	return strconv.Itoa(t.X) + "," + strconv.Itoa(t.Y)
}

func (t Touch) IR() IRValue {
	return IRObject{
		"target": IRString(t.Target),
		"x":      IRInt(t.X),
		"y":      IRInt(t.Y),
	}
}

// Camera references a captured frame plus an optional caption.
type Camera struct {
	ImageRef string `json:"image_ref"`
	Caption  string `json:"caption,omitempty"`
}

func (Camera) payload() {}
func (Camera) Kind() InputType { return InputCamera }

func (c Camera) Text() string {
	if c.Caption != "" {
		return c.Caption
	}
	return c.ImageRef
}

func (c Camera) IR() IRValue {
	return IRObject{
		"image_ref": IRString(c.ImageRef),
		"caption":   IRString(c.Caption),
	}
}

// Location is a geographic fix.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Motion is the motion-classifier state of the device.
type Motion struct {
	Walking    bool `json:"walking,omitempty"`
	Running    bool `json:"running,omitempty"`
	Stationary bool `json:"stationary,omitempty"`
}

// State returns "walking", "running", "stationary", or "" in that precedence.
func (m Motion) State() string {
	switch {
	case m.Walking:
		return "walking"
	case m.Running:
		return "running"
	case m.Stationary:
		return "stationary"
	}
	return ""
}

// Sensor is a device context snapshot. Every part is optional.
type Sensor struct {
	Location *Location  `json:"location,omitempty"`
	Motion   *Motion    `json:"motion,omitempty"`
	Time     *time.Time `json:"time,omitempty"`
	Label    string     `json:"label,omitempty"`
}

func (Sensor) payload() {}
func (Sensor) Kind() InputType { return InputSensor }
func (s Sensor) Text() string { return s.Label }

func (s Sensor) IR() IRValue {
	obj := IRObject{}
	if s.Location != nil {
		// Coordinates are rendered as strings; IR has no floats.
		obj["location"] = IRObject{
			"latitude":  IRString(strconv.FormatFloat(s.Location.Latitude, 'f', -1, 64)),
			"longitude": IRString(strconv.FormatFloat(s.Location.Longitude, 'f', -1, 64)),
		}
	}
	if s.Motion != nil {
		obj["motion"] = IRString(s.Motion.State())
	}
	if s.Time != nil {
		obj["time"] = IRString(s.Time.Format(time.RFC3339))
	}
	if s.Label != "" {
		obj["label"] = IRString(s.Label)
	}
	return obj
}

// PayloadFromText builds the text-bearing payload variant for kind.
// Used when several inputs are merged into one synthetic input.
func PayloadFromText(kind InputType, s string) Payload {
	switch kind {
	case InputText:
		return Text{Body: s}
	case InputGesture:
		return Gesture{Name: s}
	case InputTouch:
		return Touch{Target: s}
	case InputCamera:
		return Camera{Caption: s}
	case InputSensor:
		return Sensor{Label: s}
	default:
		return Voice{Transcript: s}
	}
}
