package hub

import (
	"encoding/json"
	"time"
)

// Envelope is the wire frame of both socket protocols. Inbound frames carry
// source, outbound frames carry target; the rest of the shape is shared.
type Envelope struct {
	Command   string          `json:"command"`
	Data      json.RawMessage `json:"data,omitempty"`
	Source    string          `json:"source,omitempty"`
	Target    string          `json:"target,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

func newEnvelope(command string, data any, target string) Envelope {
	env := Envelope{Command: command, Target: target, Timestamp: time.Now().UnixMilli()}
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			env.Data = b
		}
	}
	return env
}

// deviceAuthPayload is the device handshake
type deviceAuthPayload struct {
	HardwareID string `json:"hardwareId"`
	Name       string `json:"name"`
	Token      string `json:"token"`
}

// updatePayload is a feature value update in either direction
type updatePayload struct {
	ID    string `json:"id"`
	Value any    `json:"value"`
}

// dashboardAuthPayload is the dashboard handshake
type dashboardAuthPayload struct {
	SessionID string `json:"sessionId"`
}

// dashboardUpdatePayload writes a feature by its global id
type dashboardUpdatePayload struct {
	ID    string `json:"uuid"`
	Value any    `json:"value"`
}

// resetPayload forwards a reset command to a named device
type resetPayload struct {
	Device string `json:"device"`
}

// featureSnapshot is one entry of a full state sync to a dashboard
type featureSnapshot struct {
	ID       string `json:"id"`
	DeviceID string `json:"device_id"`
	Name     string `json:"name"`
	Kind     string `json:"kind"`
	Value    any    `json:"value"`
}
