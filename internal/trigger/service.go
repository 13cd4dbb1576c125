package trigger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"homehub/internal/logger"
	"homehub/internal/models"

	"github.com/google/uuid"
)

// Store is the slice of the persistence contract the trigger service needs
type Store interface {
	Triggers(ctx context.Context) ([]models.Trigger, error)
	CreateTrigger(ctx context.Context, t *models.Trigger) error
	SaveTriggerTriggered(ctx context.Context, id string, at time.Time) error
	DeleteTrigger(ctx context.Context, id string) error

	Groups(ctx context.Context) ([]models.ConditionGroup, error)
	GroupsByParent(ctx context.Context, parentID string) ([]models.ConditionGroup, error)
	CreateGroup(ctx context.Context, g *models.ConditionGroup) error
	SaveGroupOperator(ctx context.Context, id, operator string) error
	DeleteGroup(ctx context.Context, id string) error

	Items(ctx context.Context) ([]models.ConditionItem, error)
	ItemsByGroup(ctx context.Context, groupID string) ([]models.ConditionItem, error)
	CreateItem(ctx context.Context, it *models.ConditionItem) error
	DeleteItem(ctx context.Context, id string) error

	ActionsByOwner(ctx context.Context, owner models.ActionOwner, ownerID string) ([]models.Action, error)
}

// Features is the feature-service surface the engine evaluates against
type Features interface {
	ValueSource
	DeviceOf(featureID string) (string, bool)
}

// Dispatcher runs a trigger's bound actions
type Dispatcher interface {
	Run(ctx context.Context, actions []models.Action)
}

// Service owns the trigger registry and the condition tree arena
type Service struct {
	log      *logger.Logger
	store    Store
	features Features
	dispatch Dispatcher

	mu       sync.RWMutex
	triggers map[string]*models.Trigger
	tree     *Tree
}

// NewService creates the trigger service
func NewService(log *logger.Logger, store Store, features Features, dispatch Dispatcher) *Service {
	return &Service{
		log:      log,
		store:    store,
		features: features,
		dispatch: dispatch,
		triggers: make(map[string]*models.Trigger),
		tree:     NewTree(),
	}
}

// Tree exposes the arena for evaluation and tests
func (s *Service) Tree() *Tree { return s.tree }

// Load builds the in-memory trigger registry and condition tree. A trigger
// whose root group or any item's feature reference cannot be resolved fails
// the load entirely; the engine must not run over a broken tree.
func (s *Service) Load(ctx context.Context) error {
	triggers, err := s.store.Triggers(ctx)
	if err != nil {
		return fmt.Errorf("loading triggers: %w", err)
	}
	groups, err := s.store.Groups(ctx)
	if err != nil {
		return fmt.Errorf("loading condition groups: %w", err)
	}
	items, err := s.store.Items(ctx)
	if err != nil {
		return fmt.Errorf("loading condition items: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range triggers {
		t := triggers[i]
		s.triggers[t.ID] = &t
	}
	for i := range groups {
		g := groups[i]
		if g.ParentID == "" {
			if _, dup := s.tree.Root(g.TriggerID); dup {
				return fmt.Errorf("%w: trigger %s has more than one root group", ErrInvalidReference, g.TriggerID)
			}
		}
		s.tree.AddGroup(&g)
	}
	for id := range s.triggers {
		if _, ok := s.tree.Root(id); !ok {
			return fmt.Errorf("%w: trigger %s has no root group", ErrInvalidReference, id)
		}
	}
	for i := range items {
		it := items[i]
		if _, ok := s.tree.Group(it.GroupID); !ok {
			return fmt.Errorf("%w: item %s references missing group %s", ErrInvalidReference, it.ID, it.GroupID)
		}
		if _, ok := s.features.DeviceOf(it.FeatureID); !ok {
			return fmt.Errorf("%w: item %s references missing feature %s", ErrInvalidReference, it.ID, it.FeatureID)
		}
		s.tree.AddItem(&it)
	}
	s.log.Infow("triggers loaded", "triggers", len(triggers), "groups", len(groups), "items", len(items))
	return nil
}

// Triggers lists all triggers
func (s *Service) Triggers() []models.Trigger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Trigger, 0, len(s.triggers))
	for _, t := range s.triggers {
		out = append(out, *t)
	}
	return out
}

// TriggerByID fetches one trigger
func (s *Service) TriggerByID(id string) (models.Trigger, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.triggers[id]
	if !ok {
		return models.Trigger{}, fmt.Errorf("%w: trigger %s", ErrNotFound, id)
	}
	return *t, nil
}

// Evaluate runs a trigger's condition tree against live feature values
func (s *Service) Evaluate(id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.triggers[id]; !ok {
		return false, fmt.Errorf("%w: trigger %s", ErrNotFound, id)
	}
	root, ok := s.tree.Root(id)
	if !ok {
		return false, fmt.Errorf("%w: trigger %s has no root group", ErrInvalidReference, id)
	}
	return s.tree.EvaluateGroup(root, s.features), nil
}

// Fire evaluates a trigger and, when true, executes every bound action
// sequentially and persists the last-trigger timestamp. Returns whether the
// trigger fired.
func (s *Service) Fire(ctx context.Context, id string) (bool, error) {
	hit, err := s.Evaluate(id)
	if err != nil || !hit {
		return false, err
	}
	actions, err := s.store.ActionsByOwner(ctx, models.OwnerTrigger, id)
	if err != nil {
		return false, fmt.Errorf("loading trigger actions: %w", err)
	}
	s.dispatch.Run(ctx, actions)

	now := time.Now()
	s.mu.Lock()
	if t, ok := s.triggers[id]; ok {
		t.LastTriggered = now
	}
	s.mu.Unlock()
	if err := s.store.SaveTriggerTriggered(ctx, id, now); err != nil {
		s.log.Errorw("persisting trigger timestamp failed", "trigger", id, "err", err)
	}
	return true, nil
}

// EvaluateForDevice fires every trigger whose condition tree references a
// feature of the given device. A failing trigger is logged and skipped.
func (s *Service) EvaluateForDevice(ctx context.Context, deviceID string) error {
	affected := make(map[string]bool)
	for _, it := range s.tree.Items() {
		dev, ok := s.features.DeviceOf(it.FeatureID)
		if !ok || dev != deviceID {
			continue
		}
		if g, ok := s.tree.Group(it.GroupID); ok {
			affected[g.TriggerID] = true
		}
	}
	for id := range affected {
		if _, err := s.Fire(ctx, id); err != nil {
			s.log.Warnw("trigger evaluation failed", "trigger", id, "err", err)
		}
	}
	return nil
}

// Create makes a trigger with an empty AND root group
func (s *Service) Create(ctx context.Context, name string) (*models.Trigger, *models.ConditionGroup, error) {
	t := &models.Trigger{ID: uuid.NewString(), Name: name}
	if err := s.store.CreateTrigger(ctx, t); err != nil {
		return nil, nil, err
	}
	root := &models.ConditionGroup{ID: uuid.NewString(), TriggerID: t.ID, Operator: models.OpAnd}
	if err := s.store.CreateGroup(ctx, root); err != nil {
		return nil, nil, err
	}
	s.mu.Lock()
	s.triggers[t.ID] = t
	s.tree.AddGroup(root)
	s.mu.Unlock()
	return t, root, nil
}

// Delete removes a trigger, its whole tree and its actions. The registry is
// touched only after the persisted delete succeeds.
func (s *Service) Delete(ctx context.Context, id string) error {
	s.mu.RLock()
	_, ok := s.triggers[id]
	s.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: trigger %s", ErrNotFound, id)
	}
	if err := s.store.DeleteTrigger(ctx, id); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if root, ok := s.tree.Root(id); ok {
		groupIDs, itemIDs := s.tree.Descendants(root)
		for _, itemID := range itemIDs {
			s.tree.RemoveItem(itemID)
		}
		for _, groupID := range groupIDs {
			s.tree.RemoveGroup(groupID)
		}
		s.tree.RemoveGroup(root)
	}
	delete(s.triggers, id)
	return nil
}

// CreateGroup adds a nested group under an existing parent group
func (s *Service) CreateGroup(ctx context.Context, triggerID, parentID, operator string, sortIdx int) (*models.ConditionGroup, error) {
	if !validOperator(operator) {
		return nil, fmt.Errorf("%w: operator %q", ErrInvalidReference, operator)
	}
	parent, ok := s.tree.Group(parentID)
	if !ok || parent.TriggerID != triggerID {
		return nil, fmt.Errorf("%w: parent group %s", ErrNotFound, parentID)
	}
	g := &models.ConditionGroup{
		ID:        uuid.NewString(),
		TriggerID: triggerID,
		ParentID:  parentID,
		Operator:  operator,
		Sort:      sortIdx,
	}
	if err := s.store.CreateGroup(ctx, g); err != nil {
		return nil, err
	}
	s.tree.AddGroup(g)
	return g, nil
}

// SetOperator changes a group's boolean operator
func (s *Service) SetOperator(ctx context.Context, groupID, operator string) error {
	if !validOperator(operator) {
		return fmt.Errorf("%w: operator %q", ErrInvalidReference, operator)
	}
	g, ok := s.tree.Group(groupID)
	if !ok {
		return fmt.Errorf("%w: group %s", ErrNotFound, groupID)
	}
	if err := s.store.SaveGroupOperator(ctx, groupID, operator); err != nil {
		return err
	}
	g.Operator = operator
	return nil
}

// DeleteGroup cascades to all descendants first, persisting each delete
// before dropping the node from the arena, then detaches the group from its
// parent's children. An inconsistent in-memory child list is rebuilt from
// storage.
func (s *Service) DeleteGroup(ctx context.Context, groupID string) error {
	g, ok := s.tree.Group(groupID)
	if !ok {
		return fmt.Errorf("%w: group %s", ErrNotFound, groupID)
	}
	if g.ParentID == "" {
		return ErrRootGroup
	}
	parentID := g.ParentID

	groupIDs, itemIDs := s.tree.Descendants(groupID)
	for _, itemID := range itemIDs {
		if err := s.store.DeleteItem(ctx, itemID); err != nil {
			return err
		}
		s.tree.RemoveItem(itemID)
	}
	for _, descID := range groupIDs {
		if err := s.store.DeleteGroup(ctx, descID); err != nil {
			return err
		}
		s.tree.RemoveGroup(descID)
	}
	if err := s.store.DeleteGroup(ctx, groupID); err != nil {
		return err
	}
	if _, consistent := s.tree.RemoveGroup(groupID); !consistent {
		s.log.Warnw("group missing from parent index, reloading children", "parent", parentID)
		childGroups, err := s.store.GroupsByParent(ctx, parentID)
		if err != nil {
			return err
		}
		childItems, err := s.store.ItemsByGroup(ctx, parentID)
		if err != nil {
			return err
		}
		s.tree.ReplaceChildren(parentID, childGroups, childItems)
	}
	return nil
}

// CreateItem adds a leaf condition. The feature reference must resolve.
func (s *Service) CreateItem(ctx context.Context, groupID, featureID, comparator, value string, sortIdx int) (*models.ConditionItem, error) {
	if _, ok := s.tree.Group(groupID); !ok {
		return nil, fmt.Errorf("%w: group %s", ErrNotFound, groupID)
	}
	if _, ok := s.features.DeviceOf(featureID); !ok {
		return nil, fmt.Errorf("%w: feature %s", ErrInvalidReference, featureID)
	}
	it := &models.ConditionItem{
		ID:         uuid.NewString(),
		GroupID:    groupID,
		FeatureID:  featureID,
		Comparator: comparator,
		Value:      value,
		Sort:       sortIdx,
	}
	if err := s.store.CreateItem(ctx, it); err != nil {
		return nil, err
	}
	s.tree.AddItem(it)
	return it, nil
}

// DeleteItem removes a leaf condition
func (s *Service) DeleteItem(ctx context.Context, itemID string) error {
	if _, ok := s.tree.Item(itemID); !ok {
		return fmt.Errorf("%w: item %s", ErrNotFound, itemID)
	}
	if err := s.store.DeleteItem(ctx, itemID); err != nil {
		return err
	}
	s.tree.RemoveItem(itemID)
	return nil
}

func validOperator(op string) bool {
	return op == models.OpAnd || op == models.OpOr || op == models.OpAndNot
}
