package scene

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"homehub/internal/logger"
	"homehub/internal/models"

	"github.com/google/uuid"
)

// ErrNotFound reports a missing scene.
var ErrNotFound = errors.New("scene: not found")

// Store is the slice of the persistence contract the scene service needs
type Store interface {
	Scenes(ctx context.Context) ([]models.Scene, error)
	CreateScene(ctx context.Context, s *models.Scene) error
	SaveSceneTriggered(ctx context.Context, id string, at time.Time) error
	DeleteScene(ctx context.Context, id string) error
	ActionsByOwner(ctx context.Context, owner models.ActionOwner, ownerID string) ([]models.Action, error)
}

// Dispatcher runs a scene's bound actions
type Dispatcher interface {
	Run(ctx context.Context, actions []models.Action)
}

// Service owns the scene registry
type Service struct {
	log      *logger.Logger
	store    Store
	dispatch Dispatcher

	mu     sync.RWMutex
	scenes map[string]*models.Scene
}

// NewService creates the scene service
func NewService(log *logger.Logger, store Store, dispatch Dispatcher) *Service {
	return &Service{log: log, store: store, dispatch: dispatch, scenes: make(map[string]*models.Scene)}
}

// Load populates the registry from storage
func (s *Service) Load(ctx context.Context) error {
	scenes, err := s.store.Scenes(ctx)
	if err != nil {
		return fmt.Errorf("loading scenes: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range scenes {
		sc := scenes[i]
		s.scenes[sc.ID] = &sc
	}
	return nil
}

// Scenes lists all scenes
func (s *Service) Scenes() []models.Scene {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Scene, 0, len(s.scenes))
	for _, sc := range s.scenes {
		out = append(out, *sc)
	}
	return out
}

// SceneByID fetches one scene
func (s *Service) SceneByID(id string) (models.Scene, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sc, ok := s.scenes[id]
	if !ok {
		return models.Scene{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *sc, nil
}

// Execute runs every bound action sequentially and unconditionally, records
// the last-trigger timestamp and persists it
func (s *Service) Execute(ctx context.Context, id string) error {
	s.mu.RLock()
	sc, ok := s.scenes[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	actions, err := s.store.ActionsByOwner(ctx, models.OwnerScene, id)
	if err != nil {
		return fmt.Errorf("loading scene actions: %w", err)
	}
	s.dispatch.Run(ctx, actions)

	now := time.Now()
	s.mu.Lock()
	sc.LastTriggered = now
	s.mu.Unlock()
	if err := s.store.SaveSceneTriggered(ctx, id, now); err != nil {
		s.log.Errorw("persisting scene timestamp failed", "scene", id, "err", err)
	}
	return nil
}

// Create makes a new scene
func (s *Service) Create(ctx context.Context, name string) (*models.Scene, error) {
	sc := &models.Scene{ID: uuid.NewString(), Name: name}
	if err := s.store.CreateScene(ctx, sc); err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.scenes[sc.ID] = sc
	s.mu.Unlock()
	return sc, nil
}

// Delete removes a scene and its actions; the registry entry goes only
// after the persisted delete succeeds
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.RLock()
	_, ok := s.scenes[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err := s.store.DeleteScene(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.scenes, id)
	s.mu.Unlock()
	return nil
}
