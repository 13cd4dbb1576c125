package models

import (
	"encoding/json"
	"time"
)

// DeviceStatus is the runtime connection state of a device. It is never
// persisted; a freshly loaded device is always Disconnected.
type DeviceStatus string

const (
	StatusDisconnected   DeviceStatus = "disconnected"
	StatusAuthenticating DeviceStatus = "authenticating"
	StatusConnected      DeviceStatus = "connected"
	StatusReconnecting   DeviceStatus = "reconnecting"
)

// Device represents a hardware or cloud device identity
type Device struct {
	ID         string       `json:"id"`
	HardwareID string       `json:"hardware_id"`
	Name       string       `json:"name"`
	Token      string       `json:"-"`
	CloudID    string       `json:"cloud_id,omitempty"` // remote vendor device id, empty for local devices
	Status     DeviceStatus `json:"status"`
}

// Capability is the read/write bitmask of a feature
type Capability int

const (
	CapReadable Capability = 1 << iota
	CapWritable
)

// Feature is a single controllable or observable data point on a device
type Feature struct {
	ID        string     `json:"id"`
	DeviceID  string     `json:"device_id"`
	LocalID   string     `json:"local_id"` // id the device itself reports
	Name      string     `json:"name"`
	Kind      string     `json:"kind"`
	Caps      Capability `json:"caps"`
	Value     string     `json:"value"`                // persisted encoded value
	CloudCode string     `json:"cloud_code,omitempty"` // vendor property code, empty for local features
}

// Scene is a named ordered list of actions
type Scene struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	LastTriggered time.Time `json:"last_triggered"`
}

// Schedule executes its actions on a cron expression (6 fields, with seconds)
type Schedule struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Cron   string `json:"cron"`
	Runs   int    `json:"runs"`
	RunCap int    `json:"run_cap"` // 0 = unlimited
	Active bool   `json:"active"`
}

// Trigger is an automation rule: a condition tree plus actions
type Trigger struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	LastTriggered time.Time `json:"last_triggered"`
}

// Group operators
const (
	OpAnd    = "AND"
	OpOr     = "OR"
	OpAndNot = "AND_NOT"
)

// ConditionGroup is a boolean combinator node in a trigger's tree.
// ParentID is empty for a trigger's root group.
type ConditionGroup struct {
	ID        string `json:"id"`
	TriggerID string `json:"trigger_id"`
	ParentID  string `json:"parent_id,omitempty"`
	Operator  string `json:"operator"`
	Sort      int    `json:"sort"`
}

// ConditionItem is a leaf comparing a feature's live value to a stored constant
type ConditionItem struct {
	ID         string `json:"id"`
	GroupID    string `json:"group_id"`
	FeatureID  string `json:"feature_id"`
	Comparator string `json:"comparator"`
	Value      string `json:"value"` // encoded with the feature's kind codec
	Sort       int    `json:"sort"`
}

// ActionOwner tags which entity an action list belongs to
type ActionOwner string

const (
	OwnerScene    ActionOwner = "scene"
	OwnerSchedule ActionOwner = "schedule"
	OwnerTrigger  ActionOwner = "trigger"
)

// Action verbs
const (
	VerbSetValue       = "SET_VALUE"
	VerbSetFromFeature = "SET_FROM_FEATURE"
	VerbToggleValue    = "TOGGLE_VALUE"
	VerbAlarmValue     = "ALARM_VALUE"
)

// Action targets either a feature or, for schedule/trigger actions, a scene
type Action struct {
	ID        string          `json:"id"`
	OwnerType ActionOwner     `json:"owner_type"`
	OwnerID   string          `json:"owner_id"`
	Sort      int             `json:"sort"`
	Verb      string          `json:"verb"`
	FeatureID string          `json:"feature_id,omitempty"`
	SceneID   string          `json:"scene_id,omitempty"` // nested scene target
	Value     json.RawMessage `json:"value,omitempty"`
}
