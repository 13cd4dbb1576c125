package feature

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Feature kind tags. The registry is closed: adding a kind is one entry in
// the kinds table, no subclassing.
const (
	KindSwitch       = "switch"
	KindDimmer       = "dimmer"
	KindTemperature  = "temperature"
	KindText         = "text"
	KindColor        = "color"
	KindAlert        = "alert"
	KindNotification = "notification"
	KindSiren        = "siren"
)

// Kind bundles the behavior of one feature kind: a default value, a
// validator/clamp applied to every incoming raw value, and the codec for the
// persisted encoded form.
type Kind struct {
	Default any
	Process func(raw any) (any, error)
	Encode  func(v any) (string, error)
	Decode  func(encoded string) (any, error)
}

var kinds = map[string]Kind{
	KindSwitch: {
		Default: false,
		Process: processBool,
		Encode:  encodeJSON,
		Decode:  decodeJSON,
	},
	KindDimmer: {
		Default: float64(0),
		Process: clampNumber(0, 100),
		Encode:  encodeJSON,
		Decode:  decodeJSON,
	},
	KindTemperature: {
		Default: float64(0),
		Process: processNumber,
		Encode:  encodeJSON,
		Decode:  decodeJSON,
	},
	KindText: {
		Default: "",
		Process: processString,
		Encode:  encodeJSON,
		Decode:  decodeJSON,
	},
	KindColor: {
		Default: map[string]any{"r": float64(0), "g": float64(0), "b": float64(0)},
		Process: processColor,
		Encode:  encodeJSON,
		Decode:  decodeJSON,
	},
	KindAlert: {
		Default: false,
		Process: processBool,
		Encode:  encodeJSON,
		Decode:  decodeJSON,
	},
	KindNotification: {
		Default: "",
		Process: processString,
		Encode:  encodeJSON,
		Decode:  decodeJSON,
	},
	KindSiren: {
		Default: map[string]any{"action": "", "data": nil},
		Process: processCommand,
		Encode:  encodeJSON,
		Decode:  decodeJSON,
	},
}

// KindByName looks a kind up by its tag
func KindByName(name string) (Kind, bool) {
	k, ok := kinds[name]
	return k, ok
}

func encodeJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func decodeJSON(encoded string) (any, error) {
	if encoded == "" {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal([]byte(encoded), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func processBool(raw any) (any, error) {
	b, ok := ToBool(raw)
	if !ok {
		return nil, fmt.Errorf("%w: not a boolean: %v", ErrValidation, raw)
	}
	return b, nil
}

func processNumber(raw any) (any, error) {
	n, ok := ToFloat(raw)
	if !ok {
		return nil, fmt.Errorf("%w: not a number: %v", ErrValidation, raw)
	}
	return n, nil
}

func clampNumber(min, max float64) func(any) (any, error) {
	return func(raw any) (any, error) {
		n, ok := ToFloat(raw)
		if !ok {
			return nil, fmt.Errorf("%w: not a number: %v", ErrValidation, raw)
		}
		if n < min {
			n = min
		}
		if n > max {
			n = max
		}
		return n, nil
	}
}

func processString(raw any) (any, error) {
	if raw == nil {
		return "", nil
	}
	if s, ok := raw.(string); ok {
		return s, nil
	}
	return fmt.Sprint(raw), nil
}

func processColor(raw any) (any, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: not a color object: %v", ErrValidation, raw)
	}
	out := make(map[string]any, 3)
	for _, ch := range []string{"r", "g", "b"} {
		n, ok := ToFloat(m[ch])
		if !ok {
			return nil, fmt.Errorf("%w: color channel %q missing or not a number", ErrValidation, ch)
		}
		if n < 0 {
			n = 0
		}
		if n > 255 {
			n = 255
		}
		out[ch] = float64(int(n + 0.5))
	}
	return out, nil
}

func processCommand(raw any) (any, error) {
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("%w: not a command object: %v", ErrValidation, raw)
	}
	if _, ok := m["action"]; !ok {
		return nil, fmt.Errorf("%w: command object without action", ErrValidation)
	}
	return m, nil
}

// ToBool coerces booleans, numbers and numeric strings to a boolean
func ToBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case float64:
		return b != 0, true
	case int:
		return b != 0, true
	case string:
		switch strings.ToLower(b) {
		case "true", "on", "1":
			return true, true
		case "false", "off", "0", "":
			return false, true
		}
		if n, err := strconv.ParseFloat(b, 64); err == nil {
			return n != 0, true
		}
	}
	return false, false
}

// ToFloat coerces numbers and numeric strings to float64
func ToFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(n, 64)
		return f, err == nil
	}
	return 0, false
}
