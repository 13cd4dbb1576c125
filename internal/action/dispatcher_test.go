package action

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"homehub/internal/feature"
	"homehub/internal/logger"
	"homehub/internal/models"
)

// fakeFeatures records every write and serves live values from a map.
type fakeFeatures struct {
	values map[string]any

	writes []write
}

type write struct {
	id     string
	value  any
	source feature.Source
}

func (f *fakeFeatures) SetValueByID(id string, raw any, source feature.Source, origin string) error {
	if _, ok := f.values[id]; !ok {
		return errors.New("no such feature")
	}
	f.writes = append(f.writes, write{id: id, value: raw, source: source})
	return nil
}

func (f *fakeFeatures) CurrentValue(id string) (any, bool) {
	v, ok := f.values[id]
	return v, ok
}

// fakeScenes records executed scene ids.
type fakeScenes struct {
	executed []string
	err      error
}

func (f *fakeScenes) Execute(ctx context.Context, sceneID string) error {
	f.executed = append(f.executed, sceneID)
	return f.err
}

func newTestDispatcher(features *fakeFeatures) (*Dispatcher, *fakeScenes) {
	scenes := &fakeScenes{}
	d := NewDispatcher(logger.Get("error"), features)
	d.BindScenes(scenes)
	return d, scenes
}

func TestRun_SetValue(t *testing.T) {
	features := &fakeFeatures{values: map[string]any{"lamp": false}}
	d, _ := newTestDispatcher(features)

	d.Run(context.Background(), []models.Action{{
		ID: "a1", Verb: models.VerbSetValue, FeatureID: "lamp", Value: json.RawMessage(`true`),
	}})

	if len(features.writes) != 1 {
		t.Fatalf("expected 1 write, got %d", len(features.writes))
	}
	w := features.writes[0]
	if w.id != "lamp" || w.value != true {
		t.Errorf("unexpected write %+v", w)
	}
	if w.source != feature.SourceInternal {
		t.Errorf("expected internal source, got %v", w.source)
	}
}

func TestRun_SetFromFeature(t *testing.T) {
	features := &fakeFeatures{values: map[string]any{
		"thermostat": float64(22),
		"display":    float64(0),
	}}
	d, _ := newTestDispatcher(features)

	d.Run(context.Background(), []models.Action{{
		ID: "a1", Verb: models.VerbSetFromFeature, FeatureID: "display", Value: json.RawMessage(`"thermostat"`),
	}})

	if len(features.writes) != 1 {
		t.Fatalf("expected 1 write, got %d", len(features.writes))
	}
	if features.writes[0].value != float64(22) {
		t.Errorf("expected copied value 22, got %v", features.writes[0].value)
	}
}

func TestRun_ToggleValue(t *testing.T) {
	features := &fakeFeatures{values: map[string]any{"lamp": true}}
	d, _ := newTestDispatcher(features)

	d.Run(context.Background(), []models.Action{{
		ID: "a1", Verb: models.VerbToggleValue, FeatureID: "lamp",
	}})

	if len(features.writes) != 1 {
		t.Fatalf("expected 1 write, got %d", len(features.writes))
	}
	if features.writes[0].value != false {
		t.Errorf("expected toggled value false, got %v", features.writes[0].value)
	}
}

func TestRun_AlarmBeepExpandsToFixedPair(t *testing.T) {
	features := &fakeFeatures{values: map[string]any{"siren": nil}}
	d, _ := newTestDispatcher(features)

	d.Run(context.Background(), []models.Action{{
		ID: "a1", Verb: models.VerbAlarmValue, FeatureID: "siren", Value: json.RawMessage(`"beep"`),
	}})

	if len(features.writes) != 1 {
		t.Fatalf("expected 1 write, got %d", len(features.writes))
	}
	want := map[string]any{"action": "beep", "data": []any{float64(2000), float64(500)}}
	if !reflect.DeepEqual(features.writes[0].value, want) {
		t.Errorf("expected %v, got %v", want, features.writes[0].value)
	}
}

func TestRun_AlarmOtherCommandPassesThrough(t *testing.T) {
	features := &fakeFeatures{values: map[string]any{"siren": nil}}
	d, _ := newTestDispatcher(features)

	d.Run(context.Background(), []models.Action{{
		ID: "a1", Verb: models.VerbAlarmValue, FeatureID: "siren", Value: json.RawMessage(`"stop"`),
	}})

	want := map[string]any{"action": "stop", "data": nil}
	if !reflect.DeepEqual(features.writes[0].value, want) {
		t.Errorf("expected %v, got %v", want, features.writes[0].value)
	}
}

func TestRun_SceneTarget(t *testing.T) {
	features := &fakeFeatures{values: map[string]any{}}
	d, scenes := newTestDispatcher(features)

	d.Run(context.Background(), []models.Action{{
		ID: "a1", SceneID: "movie-night",
	}})

	if len(scenes.executed) != 1 || scenes.executed[0] != "movie-night" {
		t.Fatalf("expected scene executed, got %v", scenes.executed)
	}
	if len(features.writes) != 0 {
		t.Errorf("scene target must not write features, got %v", features.writes)
	}
}

func TestRun_MissingTargetSkipsButContinues(t *testing.T) {
	features := &fakeFeatures{values: map[string]any{"lamp": false}}
	d, _ := newTestDispatcher(features)

	d.Run(context.Background(), []models.Action{
		{ID: "a1", Verb: models.VerbToggleValue, FeatureID: "ghost"},
		{ID: "a2", Verb: models.VerbSetValue, FeatureID: "ghost", Value: json.RawMessage(`true`)},
		{ID: "a3", Verb: models.VerbSetValue, FeatureID: "lamp", Value: json.RawMessage(`true`)},
	})

	// first two fail to resolve or write, the third still runs
	if len(features.writes) != 1 || features.writes[0].id != "lamp" {
		t.Fatalf("expected the surviving action to run, got %v", features.writes)
	}
}

func TestRun_UnknownVerbSkipped(t *testing.T) {
	features := &fakeFeatures{values: map[string]any{"lamp": false}}
	d, _ := newTestDispatcher(features)

	d.Run(context.Background(), []models.Action{{
		ID: "a1", Verb: "BLINK_VALUE", FeatureID: "lamp",
	}})

	if len(features.writes) != 0 {
		t.Fatalf("expected no writes for unknown verb, got %v", features.writes)
	}
}
