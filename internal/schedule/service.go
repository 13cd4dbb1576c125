package schedule

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"homehub/internal/logger"
	"homehub/internal/models"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
)

// ErrNotFound reports a missing schedule.
var ErrNotFound = errors.New("schedule: not found")

// Expressions are 6 fields including seconds: second minute hour day month
// weekday. The same parser backs the running timers and Explain, so the
// convention cannot drift between them.
var parser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Store is the slice of the persistence contract the schedule service needs
type Store interface {
	Schedules(ctx context.Context) ([]models.Schedule, error)
	CreateSchedule(ctx context.Context, s *models.Schedule) error
	SaveSchedule(ctx context.Context, s *models.Schedule) error
	SaveScheduleRuns(ctx context.Context, id string, runs int) error
	DeleteSchedule(ctx context.Context, id string) error
	ActionsByOwner(ctx context.Context, owner models.ActionOwner, ownerID string) ([]models.Action, error)
}

// Dispatcher runs a schedule's bound actions
type Dispatcher interface {
	Run(ctx context.Context, actions []models.Action)
}

// Service manages cron-driven schedules. Each schedule owns at most one
// live cron entry; replacing it always removes the old entry first.
type Service struct {
	log      *logger.Logger
	store    Store
	dispatch Dispatcher
	cron     *cron.Cron

	mu        sync.RWMutex
	entries   map[string]cron.EntryID // schedule id -> live cron entry
	schedules map[string]*models.Schedule
}

// NewService creates the schedule service
func NewService(log *logger.Logger, store Store, dispatch Dispatcher) *Service {
	return &Service{
		log:       log,
		store:     store,
		dispatch:  dispatch,
		cron:      cron.New(cron.WithParser(parser)),
		entries:   make(map[string]cron.EntryID),
		schedules: make(map[string]*models.Schedule),
	}
}

// Start starts the cron runner
func (s *Service) Start() {
	s.cron.Start()
	s.log.Infow("schedule cron runner started")
}

// Stop stops the cron runner and waits for running jobs
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.log.Infow("schedule cron runner stopped")
}

// Load populates the registry from storage and installs timers for active
// schedules
func (s *Service) Load(ctx context.Context) error {
	schedules, err := s.store.Schedules(ctx)
	if err != nil {
		return fmt.Errorf("loading schedules: %w", err)
	}
	for i := range schedules {
		sch := schedules[i]
		if err := s.apply(&sch); err != nil {
			s.log.Warnw("schedule has invalid cron expression, left stopped", "schedule", sch.ID, "cron", sch.Cron, "err", err)
		}
	}
	s.log.Infow("schedules loaded", "count", len(schedules))
	return nil
}

// Schedules lists all schedules
func (s *Service) Schedules() []models.Schedule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Schedule, 0, len(s.schedules))
	for _, sch := range s.schedules {
		out = append(out, *sch)
	}
	return out
}

// ScheduleByID fetches one schedule
func (s *Service) ScheduleByID(id string) (models.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sch, ok := s.schedules[id]
	if !ok {
		return models.Schedule{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *sch, nil
}

// TimerState reports whether a schedule currently owns a live cron entry
func (s *Service) TimerState(id string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.entries[id]; ok {
		return "scheduled"
	}
	return "stopped"
}

// Create validates the expression, persists the schedule and installs its
// timer when active
func (s *Service) Create(ctx context.Context, name, expr string, runCap int, active bool) (*models.Schedule, error) {
	if _, err := parser.Parse(expr); err != nil {
		return nil, fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	sch := &models.Schedule{ID: uuid.NewString(), Name: name, Cron: expr, RunCap: runCap, Active: active}
	if err := s.store.CreateSchedule(ctx, sch); err != nil {
		return nil, err
	}
	if err := s.apply(sch); err != nil {
		return nil, err
	}
	return sch, nil
}

// Update persists edits and swaps the timer: the previous entry is always
// removed before a replacement is installed, so a schedule never has two
// live timers.
func (s *Service) Update(ctx context.Context, sch *models.Schedule) error {
	if _, err := parser.Parse(sch.Cron); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", sch.Cron, err)
	}
	s.mu.RLock()
	_, ok := s.schedules[sch.ID]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, sch.ID)
	}
	if err := s.store.SaveSchedule(ctx, sch); err != nil {
		return err
	}
	return s.apply(sch)
}

// Delete stops the timer and removes the schedule; the registry entry goes
// only after the persisted delete succeeds
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.RLock()
	_, ok := s.schedules[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := s.store.DeleteSchedule(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, exists := s.entries[id]; exists {
		s.cron.Remove(entryID)
		delete(s.entries, id)
	}
	delete(s.schedules, id)
	return nil
}

// apply registers the schedule and swaps its cron entry
func (s *Service) apply(sch *models.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if entryID, exists := s.entries[sch.ID]; exists {
		s.cron.Remove(entryID)
		delete(s.entries, sch.ID)
	}
	s.schedules[sch.ID] = sch
	if !sch.Active {
		return nil
	}
	id := sch.ID // capture for the closure
	entryID, err := s.cron.AddFunc(sch.Cron, func() {
		s.Tick(context.Background(), id)
	})
	if err != nil {
		return err
	}
	s.entries[sch.ID] = entryID
	return nil
}

// Tick is one cron firing. When a positive run cap has been reached the
// timer is detached and nothing fires; otherwise the bound actions run
// sequentially and the run counter is persisted.
func (s *Service) Tick(ctx context.Context, id string) {
	s.mu.Lock()
	sch, ok := s.schedules[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	if sch.RunCap > 0 && sch.Runs >= sch.RunCap {
		if entryID, exists := s.entries[id]; exists {
			s.cron.Remove(entryID)
			delete(s.entries, id)
		}
		s.mu.Unlock()
		s.log.Infow("schedule run cap reached, stopped", "schedule", id, "runs", sch.Runs)
		return
	}
	s.mu.Unlock()

	actions, err := s.store.ActionsByOwner(ctx, models.OwnerSchedule, id)
	if err != nil {
		s.log.Errorw("loading schedule actions failed", "schedule", id, "err", err)
		return
	}
	s.dispatch.Run(ctx, actions)

	s.mu.Lock()
	sch.Runs++
	runs := sch.Runs
	s.mu.Unlock()
	if err := s.store.SaveScheduleRuns(ctx, id, runs); err != nil {
		s.log.Errorw("persisting schedule run counter failed", "schedule", id, "err", err)
	}
}

// Explain parses an expression with the 6-field convention and returns the
// next few firing times, for the expression test endpoint
func Explain(expr string, n int) ([]time.Time, error) {
	sched, err := parser.Parse(expr)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, n)
	next := time.Now()
	for i := 0; i < n; i++ {
		next = sched.Next(next)
		out = append(out, next)
	}
	return out, nil
}
