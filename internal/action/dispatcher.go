package action

import (
	"context"
	"encoding/json"

	"homehub/internal/feature"
	"homehub/internal/logger"
	"homehub/internal/models"
)

// Features is the slice of the feature service the dispatcher needs
type Features interface {
	SetValueByID(id string, raw any, source feature.Source, origin string) error
	CurrentValue(id string) (any, bool)
}

// SceneRunner executes a nested scene target
type SceneRunner interface {
	Execute(ctx context.Context, sceneID string) error
}

// Alarm command parameters the literal "beep" expands to
const (
	beepFrequency = 2000
	beepDuration  = 500
)

// Dispatcher executes action lists uniformly for scenes, schedules and
// triggers. An unresolvable target is logged and skipped; the remaining
// actions always run.
type Dispatcher struct {
	log      *logger.Logger
	features Features
	scenes   SceneRunner
}

// NewDispatcher creates a dispatcher. The scene runner is bound later
// because scene execution itself dispatches actions.
func NewDispatcher(log *logger.Logger, features Features) *Dispatcher {
	return &Dispatcher{log: log, features: features}
}

// BindScenes attaches the scene runner used for nested scene targets
func (d *Dispatcher) BindScenes(scenes SceneRunner) {
	d.scenes = scenes
}

// Run executes the actions sequentially
func (d *Dispatcher) Run(ctx context.Context, actions []models.Action) {
	for _, a := range actions {
		d.runOne(ctx, a)
	}
}

func (d *Dispatcher) runOne(ctx context.Context, a models.Action) {
	if a.SceneID != "" {
		if d.scenes == nil {
			d.log.Warnw("scene target with no scene runner bound", "action", a.ID, "scene", a.SceneID)
			return
		}
		if err := d.scenes.Execute(ctx, a.SceneID); err != nil {
			d.log.Warnw("nested scene execution failed", "action", a.ID, "scene", a.SceneID, "err", err)
		}
		return
	}

	value, ok := d.resolveValue(a)
	if !ok {
		return
	}
	if err := d.features.SetValueByID(a.FeatureID, value, feature.SourceInternal, ""); err != nil {
		d.log.Warnw("action target write failed", "action", a.ID, "feature", a.FeatureID, "verb", a.Verb, "err", err)
	}
}

// resolveValue computes the value to write for the action's verb. Values
// needing another feature's state are resolved at execution time; staleness
// is acceptable.
func (d *Dispatcher) resolveValue(a models.Action) (any, bool) {
	switch a.Verb {
	case models.VerbSetValue:
		var v any
		if err := json.Unmarshal(a.Value, &v); err != nil {
			d.log.Warnw("undecodable action value", "action", a.ID, "err", err)
			return nil, false
		}
		return v, true

	case models.VerbSetFromFeature:
		var sourceID string
		if err := json.Unmarshal(a.Value, &sourceID); err != nil {
			d.log.Warnw("undecodable source feature reference", "action", a.ID, "err", err)
			return nil, false
		}
		v, ok := d.features.CurrentValue(sourceID)
		if !ok {
			d.log.Warnw("source feature not found, skipping action", "action", a.ID, "source", sourceID)
			return nil, false
		}
		return v, true

	case models.VerbToggleValue:
		current, ok := d.features.CurrentValue(a.FeatureID)
		if !ok {
			d.log.Warnw("toggle target not found, skipping action", "action", a.ID, "feature", a.FeatureID)
			return nil, false
		}
		b, ok := feature.ToBool(current)
		if !ok {
			d.log.Warnw("toggle target not boolean, skipping action", "action", a.ID, "feature", a.FeatureID)
			return nil, false
		}
		return !b, true

	case models.VerbAlarmValue:
		var v any
		if err := json.Unmarshal(a.Value, &v); err != nil {
			d.log.Warnw("undecodable alarm value", "action", a.ID, "err", err)
			return nil, false
		}
		// "beep" expands to a fixed frequency/duration pair
		if s, ok := v.(string); ok && s == "beep" {
			return map[string]any{
				"action": "beep",
				"data":   []any{float64(beepFrequency), float64(beepDuration)},
			}, true
		}
		return map[string]any{"action": v, "data": nil}, true
	}

	d.log.Warnw("unknown action verb, skipping", "action", a.ID, "verb", a.Verb)
	return nil, false
}
