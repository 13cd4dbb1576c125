package schedule

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"homehub/internal/logger"
	"homehub/internal/models"
)

// fakeStore is an in-memory Store recording persisted run counters.
type fakeStore struct {
	schedules []models.Schedule
	actions   []models.Action

	savedRuns map[string]int
	deleted   []string
}

func newFakeStore(schedules ...models.Schedule) *fakeStore {
	return &fakeStore{schedules: schedules, savedRuns: make(map[string]int)}
}

func (f *fakeStore) Schedules(ctx context.Context) ([]models.Schedule, error) {
	return f.schedules, nil
}
func (f *fakeStore) CreateSchedule(ctx context.Context, s *models.Schedule) error {
	f.schedules = append(f.schedules, *s)
	return nil
}
func (f *fakeStore) SaveSchedule(ctx context.Context, s *models.Schedule) error { return nil }
func (f *fakeStore) SaveScheduleRuns(ctx context.Context, id string, runs int) error {
	f.savedRuns[id] = runs
	return nil
}
func (f *fakeStore) DeleteSchedule(ctx context.Context, id string) error {
	f.deleted = append(f.deleted, id)
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

// fakeDispatcher counts action batches.
type fakeDispatcher struct {
	runs [][]models.Action
}

func (f *fakeDispatcher) Run(ctx context.Context, actions []models.Action) {
	f.runs = append(f.runs, actions)
}

func newTestService(t *testing.T, store *fakeStore) (*Service, *fakeDispatcher) {
	t.Helper()
	dispatch := &fakeDispatcher{}
	svc := NewService(logger.Get("error"), store, dispatch)
	if err := svc.Load(context.Background()); err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	return svc, dispatch
}

func sampleAction(ownerID string) models.Action {
	return models.Action{
		ID: "a-" + ownerID, OwnerType: models.OwnerSchedule, OwnerID: ownerID,
		Verb: models.VerbSetValue, FeatureID: "lamp", Value: json.RawMessage(`true`),
	}
}

func TestTick_RunCapStopsBeforeFiring(t *testing.T) {
	store := newFakeStore(models.Schedule{
		ID: "s1", Name: "wake", Cron: "0 0 7 * * *", RunCap: 2, Active: true,
	})
	store.actions = append(store.actions, sampleAction("s1"))
	svc, dispatch := newTestService(t, store)

	for i := 0; i < 5; i++ {
		svc.Tick(context.Background(), "s1")
	}

	if len(dispatch.runs) != 2 {
		t.Fatalf("expected exactly 2 runs under a cap of 2, got %d", len(dispatch.runs))
	}
	if store.savedRuns["s1"] != 2 {
		t.Errorf("expected persisted run counter 2, got %d", store.savedRuns["s1"])
	}
	// the cap check detaches the timer without firing
	if svc.TimerState("s1") != "stopped" {
		t.Errorf("expected timer detached after cap, got %q", svc.TimerState("s1"))
	}
}

func TestTick_ZeroCapIsUnlimited(t *testing.T) {
	store := newFakeStore(models.Schedule{
		ID: "s1", Name: "pulse", Cron: "*/5 * * * * *", RunCap: 0, Active: true,
	})
	store.actions = append(store.actions, sampleAction("s1"))
	svc, dispatch := newTestService(t, store)

	for i := 0; i < 5; i++ {
		svc.Tick(context.Background(), "s1")
	}

	if len(dispatch.runs) != 5 {
		t.Fatalf("expected 5 runs with no cap, got %d", len(dispatch.runs))
	}
	if svc.TimerState("s1") != "scheduled" {
		t.Errorf("expected timer still live, got %q", svc.TimerState("s1"))
	}
}

func TestLoad_InvalidCronLeftStopped(t *testing.T) {
	store := newFakeStore(
		models.Schedule{ID: "bad", Name: "broken", Cron: "not-cron", Active: true},
		models.Schedule{ID: "good", Name: "fine", Cron: "0 30 6 * * 1", Active: true},
	)
	svc, _ := newTestService(t, store)

	if svc.TimerState("bad") != "stopped" {
		t.Errorf("expected invalid expression left stopped, got %q", svc.TimerState("bad"))
	}
	if svc.TimerState("good") != "scheduled" {
		t.Errorf("expected valid schedule installed, got %q", svc.TimerState("good"))
	}
	// the broken schedule still loads for editing
	if _, err := svc.ScheduleByID("bad"); err != nil {
		t.Errorf("expected broken schedule present in registry: %v", err)
	}
}

func TestCreate_RejectsFiveFieldExpression(t *testing.T) {
	svc, _ := newTestService(t, newFakeStore())

	// five fields lack the seconds column
	if _, err := svc.Create(context.Background(), "nope", "0 7 * * *", 0, true); err == nil {
		t.Fatal("expected five-field expression rejected")
	}
	if _, err := svc.Create(context.Background(), "ok", "0 0 7 * * *", 0, true); err != nil {
		t.Fatalf("expected six-field expression accepted, got %v", err)
	}
}

func TestUpdate_InactiveDetachesTimer(t *testing.T) {
	store := newFakeStore(models.Schedule{
		ID: "s1", Name: "night", Cron: "0 0 22 * * *", Active: true,
	})
	svc, _ := newTestService(t, store)

	sch, err := svc.ScheduleByID("s1")
	if err != nil {
		t.Fatalf("ScheduleByID returned error: %v", err)
	}
	sch.Active = false
	if err := svc.Update(context.Background(), &sch); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if svc.TimerState("s1") != "stopped" {
		t.Errorf("expected timer detached, got %q", svc.TimerState("s1"))
	}

	sch.Active = true
	if err := svc.Update(context.Background(), &sch); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if svc.TimerState("s1") != "scheduled" {
		t.Errorf("expected timer reinstalled, got %q", svc.TimerState("s1"))
	}
}

func TestDelete_RemovesTimerAndRegistry(t *testing.T) {
	store := newFakeStore(models.Schedule{
		ID: "s1", Name: "gone", Cron: "0 0 9 * * *", Active: true,
	})
	svc, _ := newTestService(t, store)

	if err := svc.Delete(context.Background(), "s1"); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if len(store.deleted) != 1 || store.deleted[0] != "s1" {
		t.Errorf("expected persisted delete, got %v", store.deleted)
	}
	if _, err := svc.ScheduleByID("s1"); err == nil {
		t.Error("expected schedule gone from the registry")
	}
	if svc.TimerState("s1") != "stopped" {
		t.Errorf("expected no timer left, got %q", svc.TimerState("s1"))
	}
}

func TestExplain_SixFieldSeconds(t *testing.T) {
	times, err := Explain("*/15 * * * * *", 4)
	if err != nil {
		t.Fatalf("Explain returned error: %v", err)
	}
	if len(times) != 4 {
		t.Fatalf("expected 4 firing times, got %d", len(times))
	}
	for i, at := range times {
		if at.Second()%15 != 0 {
			t.Errorf("firing %d not on a 15s boundary: %v", i, at)
		}
		if i > 0 && !at.After(times[i-1]) {
			t.Errorf("firing times not increasing: %v then %v", times[i-1], at)
		}
	}
	if times[1].Sub(times[0]) != 15*time.Second {
		t.Errorf("expected 15s spacing, got %v", times[1].Sub(times[0]))
	}
}

func TestExplain_RejectsInvalidExpression(t *testing.T) {
	if _, err := Explain("whenever", 3); err == nil {
		t.Fatal("expected parse error")
	}
}
