package trigger

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"homehub/internal/logger"
	"homehub/internal/models"
)

// fakeStore is an in-memory Store recording which rows were deleted.
type fakeStore struct {
	triggers []models.Trigger
	groups   []models.ConditionGroup
	items    []models.ConditionItem
	actions  []models.Action

	deletedTriggers []string
	deletedGroups   []string
	deletedItems    []string
}

func (f *fakeStore) Triggers(ctx context.Context) ([]models.Trigger, error) { return f.triggers, nil }
func (f *fakeStore) CreateTrigger(ctx context.Context, t *models.Trigger) error {
	f.triggers = append(f.triggers, *t)
	return nil
}
func (f *fakeStore) SaveTriggerTriggered(ctx context.Context, id string, at time.Time) error {
	return nil
}
func (f *fakeStore) DeleteTrigger(ctx context.Context, id string) error {
	f.deletedTriggers = append(f.deletedTriggers, id)
	return nil
}
func (f *fakeStore) Groups(ctx context.Context) ([]models.ConditionGroup, error) {
	return f.groups, nil
}
func (f *fakeStore) GroupsByParent(ctx context.Context, parentID string) ([]models.ConditionGroup, error) {
	var out []models.ConditionGroup
	for _, g := range f.groups {
		if g.ParentID == parentID && !contains(f.deletedGroups, g.ID) {
			out = append(out, g)
		}
	}
	return out, nil
}
func (f *fakeStore) CreateGroup(ctx context.Context, g *models.ConditionGroup) error {
	f.groups = append(f.groups, *g)
	return nil
}
func (f *fakeStore) SaveGroupOperator(ctx context.Context, id, operator string) error { return nil }
func (f *fakeStore) DeleteGroup(ctx context.Context, id string) error {
	f.deletedGroups = append(f.deletedGroups, id)
	return nil
}
func (f *fakeStore) Items(ctx context.Context) ([]models.ConditionItem, error) { return f.items, nil }
func (f *fakeStore) ItemsByGroup(ctx context.Context, groupID string) ([]models.ConditionItem, error) {
	var out []models.ConditionItem
	for _, it := range f.items {
		if it.GroupID == groupID && !contains(f.deletedItems, it.ID) {
			out = append(out, it)
		}
	}
	return out, nil
}
func (f *fakeStore) CreateItem(ctx context.Context, it *models.ConditionItem) error {
	f.items = append(f.items, *it)
	return nil
}
func (f *fakeStore) DeleteItem(ctx context.Context, id string) error {
	f.deletedItems = append(f.deletedItems, id)
	return nil
}
func (f *fakeStore) ActionsByOwner(ctx context.Context, owner models.ActionOwner, ownerID string) ([]models.Action, error) {
	var out []models.Action
	for _, a := range f.actions {
		if a.OwnerType == owner && a.OwnerID == ownerID {
			out = append(out, a)
		}
	}
	return out, nil
}

func contains(ids []string, id string) bool {
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}

// fakeFeatures maps feature ids to devices and live values.
type fakeFeatures struct {
	devices map[string]string
	values  map[string]any
}

func (f *fakeFeatures) CurrentValue(id string) (any, bool) {
	v, ok := f.values[id]
	return v, ok
}
func (f *fakeFeatures) DecodeConstant(featureID, encoded string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(encoded), &v); err != nil {
		return nil, err
	}
	return v, nil
}
func (f *fakeFeatures) DeviceOf(featureID string) (string, bool) {
	d, ok := f.devices[featureID]
	return d, ok
}

// fakeDispatcher records every action batch it was asked to run.
type fakeDispatcher struct {
	runs [][]models.Action
}

func (f *fakeDispatcher) Run(ctx context.Context, actions []models.Action) {
	f.runs = append(f.runs, actions)
}

func newTestService(t *testing.T, store *fakeStore, features *fakeFeatures) (*Service, *fakeDispatcher) {
	t.Helper()
	dispatch := &fakeDispatcher{}
	svc := NewService(logger.Get("error"), store, features, dispatch)
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	return svc, dispatch
}

func TestLoad_FailsOnMissingRootGroup(t *testing.T) {
	store := &fakeStore{
		triggers: []models.Trigger{{ID: "t1", Name: "orphan"}},
	}
	svc := NewService(logger.Get("error"), store, &fakeFeatures{}, &fakeDispatcher{})
	err := svc.Load(context.Background())
	if !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("expected ErrInvalidReference, got %v", err)
	}
}

func TestLoad_FailsOnDanglingFeatureReference(t *testing.T) {
	store := &fakeStore{
		triggers: []models.Trigger{{ID: "t1", Name: "dangling"}},
		groups:   []models.ConditionGroup{{ID: "root", TriggerID: "t1", Operator: models.OpAnd}},
		items:    []models.ConditionItem{{ID: "i1", GroupID: "root", FeatureID: "ghost", Comparator: CmpIsOn, Value: "null"}},
	}
	svc := NewService(logger.Get("error"), store, &fakeFeatures{devices: map[string]string{}}, &fakeDispatcher{})
	err := svc.Load(context.Background())
	if !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("expected ErrInvalidReference, got %v", err)
	}
}

func TestFire_RunsActionsAndStampsTrigger(t *testing.T) {
	store := &fakeStore{
		triggers: []models.Trigger{{ID: "t1", Name: "hot"}},
		groups:   []models.ConditionGroup{{ID: "root", TriggerID: "t1", Operator: models.OpAnd}},
		items:    []models.ConditionItem{{ID: "i1", GroupID: "root", FeatureID: "temp", Comparator: CmpMore, Value: "25"}},
		actions: []models.Action{{
			ID: "a1", OwnerType: models.OwnerTrigger, OwnerID: "t1",
			Verb: models.VerbSetValue, FeatureID: "fan", Value: json.RawMessage(`true`),
		}},
	}
	features := &fakeFeatures{
		devices: map[string]string{"temp": "dev1", "fan": "dev2"},
		values:  map[string]any{"temp": float64(30)},
	}
	svc, dispatch := newTestService(t, store, features)

	fired, err := svc.Fire(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Fire returned error: %v", err)
	}
	if !fired {
		t.Fatal("expected trigger to fire")
	}
	if len(dispatch.runs) != 1 || len(dispatch.runs[0]) != 1 {
		t.Fatalf("expected one action batch with one action, got %v", dispatch.runs)
	}
	got, err := svc.TriggerByID("t1")
	if err != nil {
		t.Fatalf("TriggerByID returned error: %v", err)
	}
	if got.LastTriggered.IsZero() {
		t.Error("expected LastTriggered to be stamped")
	}
}

func TestFire_ConditionsFalseSkipsActions(t *testing.T) {
	store := &fakeStore{
		triggers: []models.Trigger{{ID: "t1", Name: "cold"}},
		groups:   []models.ConditionGroup{{ID: "root", TriggerID: "t1", Operator: models.OpAnd}},
		items:    []models.ConditionItem{{ID: "i1", GroupID: "root", FeatureID: "temp", Comparator: CmpMore, Value: "25"}},
	}
	features := &fakeFeatures{
		devices: map[string]string{"temp": "dev1"},
		values:  map[string]any{"temp": float64(10)},
	}
	svc, dispatch := newTestService(t, store, features)

	fired, err := svc.Fire(context.Background(), "t1")
	if err != nil {
		t.Fatalf("Fire returned error: %v", err)
	}
	if fired {
		t.Fatal("expected trigger not to fire")
	}
	if len(dispatch.runs) != 0 {
		t.Fatalf("expected no action runs, got %d", len(dispatch.runs))
	}
}

func TestEvaluateForDevice_FiresOnlyAffectedTriggers(t *testing.T) {
	store := &fakeStore{
		triggers: []models.Trigger{{ID: "t1"}, {ID: "t2"}},
		groups: []models.ConditionGroup{
			{ID: "r1", TriggerID: "t1", Operator: models.OpAnd},
			{ID: "r2", TriggerID: "t2", Operator: models.OpAnd},
		},
		items: []models.ConditionItem{
			{ID: "i1", GroupID: "r1", FeatureID: "temp", Comparator: CmpMore, Value: "25"},
			{ID: "i2", GroupID: "r2", FeatureID: "door", Comparator: CmpIsOn, Value: "null"},
		},
		actions: []models.Action{
			{ID: "a1", OwnerType: models.OwnerTrigger, OwnerID: "t1", Verb: models.VerbSetValue, FeatureID: "fan", Value: json.RawMessage(`true`)},
			{ID: "a2", OwnerType: models.OwnerTrigger, OwnerID: "t2", Verb: models.VerbSetValue, FeatureID: "fan", Value: json.RawMessage(`true`)},
		},
	}
	features := &fakeFeatures{
		devices: map[string]string{"temp": "thermo", "door": "sensor"},
		values:  map[string]any{"temp": float64(30), "door": true},
	}
	svc, dispatch := newTestService(t, store, features)

	if err := svc.EvaluateForDevice(context.Background(), "thermo"); err != nil {
		t.Fatalf("EvaluateForDevice returned error: %v", err)
	}
	// both triggers would fire on their conditions, but only t1 touches the
	// changed device
	if len(dispatch.runs) != 1 {
		t.Fatalf("expected exactly one trigger to fire, got %d", len(dispatch.runs))
	}
	if dispatch.runs[0][0].OwnerID != "t1" {
		t.Errorf("expected t1's action, got owner %s", dispatch.runs[0][0].OwnerID)
	}
}

func TestDeleteGroup_CascadesDepthFirst(t *testing.T) {
	store := &fakeStore{
		triggers: []models.Trigger{{ID: "t1"}},
		groups: []models.ConditionGroup{
			{ID: "root", TriggerID: "t1", Operator: models.OpAnd},
			{ID: "mid", TriggerID: "t1", ParentID: "root", Operator: models.OpOr, Sort: 0},
			{ID: "leafGroup", TriggerID: "t1", ParentID: "mid", Operator: models.OpAnd, Sort: 0},
		},
		items: []models.ConditionItem{
			{ID: "i1", GroupID: "mid", FeatureID: "temp", Comparator: CmpIsOn, Value: "null"},
			{ID: "i2", GroupID: "leafGroup", FeatureID: "temp", Comparator: CmpIsOn, Value: "null"},
		},
	}
	features := &fakeFeatures{devices: map[string]string{"temp": "dev1"}}
	svc, _ := newTestService(t, store, features)

	if err := svc.DeleteGroup(context.Background(), "mid"); err != nil {
		t.Fatalf("DeleteGroup returned error: %v", err)
	}
	if !contains(store.deletedItems, "i1") || !contains(store.deletedItems, "i2") {
		t.Errorf("expected both items deleted, got %v", store.deletedItems)
	}
	// the nested group goes before the group itself
	if len(store.deletedGroups) != 2 || store.deletedGroups[0] != "leafGroup" || store.deletedGroups[1] != "mid" {
		t.Errorf("expected deepest-first group deletes, got %v", store.deletedGroups)
	}
	if _, ok := svc.Tree().Group("mid"); ok {
		t.Error("expected mid removed from the arena")
	}
	if _, ok := svc.Tree().Item("i2"); ok {
		t.Error("expected nested item removed from the arena")
	}
	// the root survives
	if _, ok := svc.Tree().Group("root"); !ok {
		t.Error("expected root group untouched")
	}
}

func TestDeleteGroup_RefusesRoot(t *testing.T) {
	store := &fakeStore{
		triggers: []models.Trigger{{ID: "t1"}},
		groups:   []models.ConditionGroup{{ID: "root", TriggerID: "t1", Operator: models.OpAnd}},
	}
	svc, _ := newTestService(t, store, &fakeFeatures{})

	if err := svc.DeleteGroup(context.Background(), "root"); !errors.Is(err, ErrRootGroup) {
		t.Fatalf("expected ErrRootGroup, got %v", err)
	}
}

func TestDelete_RemovesWholeTree(t *testing.T) {
	store := &fakeStore{
		triggers: []models.Trigger{{ID: "t1"}},
		groups: []models.ConditionGroup{
			{ID: "root", TriggerID: "t1", Operator: models.OpAnd},
			{ID: "sub", TriggerID: "t1", ParentID: "root", Operator: models.OpOr},
		},
		items: []models.ConditionItem{
			{ID: "i1", GroupID: "sub", FeatureID: "temp", Comparator: CmpIsOn, Value: "null"},
		},
	}
	features := &fakeFeatures{devices: map[string]string{"temp": "dev1"}}
	svc, _ := newTestService(t, store, features)

	if err := svc.Delete(context.Background(), "t1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if !contains(store.deletedTriggers, "t1") {
		t.Error("expected trigger row deleted")
	}
	if _, err := svc.TriggerByID("t1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
	if _, ok := svc.Tree().Group("sub"); ok {
		t.Error("expected nested group removed from the arena")
	}
}

func TestCreateItem_RejectsDanglingFeature(t *testing.T) {
	store := &fakeStore{
		triggers: []models.Trigger{{ID: "t1"}},
		groups:   []models.ConditionGroup{{ID: "root", TriggerID: "t1", Operator: models.OpAnd}},
	}
	svc, _ := newTestService(t, store, &fakeFeatures{devices: map[string]string{}})

	if _, err := svc.CreateItem(context.Background(), "root", "ghost", CmpIsOn, "null", 0); !errors.Is(err, ErrInvalidReference) {
		t.Fatalf("expected ErrInvalidReference, got %v", err)
	}
}

func TestSetOperator_RejectsUnknownOperator(t *testing.T) {
	store := &fakeStore{
		triggers: []models.Trigger{{ID: "t1"}},
		groups:   []models.ConditionGroup{{ID: "root", TriggerID: "t1", Operator: models.OpAnd}},
	}
	svc, _ := newTestService(t, store, &fakeFeatures{})

	if err := svc.SetOperator(context.Background(), "root", "XOR"); err == nil {
		t.Fatal("expected error for unknown operator")
	}
	if err := svc.SetOperator(context.Background(), "root", models.OpAndNot); err != nil {
		t.Fatalf("expected AND_NOT accepted, got %v", err)
	}
}
