package trigger

import (
	"sort"
	"sync"

	"homehub/internal/models"
)

// Tree is the arena of condition nodes: flat id-keyed tables of groups and
// items, parents stored as ids, children-by-parent kept as derived indexes.
// No live parent references, so cascade delete terminates by construction.
type Tree struct {
	mu          sync.RWMutex
	groups      map[string]*models.ConditionGroup
	items       map[string]*models.ConditionItem
	childGroups map[string][]string // group id -> ordered child group ids
	childItems  map[string][]string // group id -> ordered child item ids
	roots       map[string]string   // trigger id -> root group id
}

// NewTree creates an empty condition tree arena
func NewTree() *Tree {
	return &Tree{
		groups:      make(map[string]*models.ConditionGroup),
		items:       make(map[string]*models.ConditionItem),
		childGroups: make(map[string][]string),
		childItems:  make(map[string][]string),
		roots:       make(map[string]string),
	}
}

// AddGroup inserts a group into the arena and its parent's child index
func (t *Tree) AddGroup(g *models.ConditionGroup) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.groups[g.ID] = g
	if g.ParentID == "" {
		t.roots[g.TriggerID] = g.ID
		return
	}
	t.childGroups[g.ParentID] = insertSorted(t.childGroups[g.ParentID], g.ID, func(id string) int {
		return t.groups[id].Sort
	}, g.Sort)
}

// AddItem inserts an item into the arena and its group's child index
func (t *Tree) AddItem(it *models.ConditionItem) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.items[it.ID] = it
	t.childItems[it.GroupID] = insertSorted(t.childItems[it.GroupID], it.ID, func(id string) int {
		return t.items[id].Sort
	}, it.Sort)
}

// Group looks a group up by id
func (t *Tree) Group(id string) (*models.ConditionGroup, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	g, ok := t.groups[id]
	return g, ok
}

// Item looks an item up by id
func (t *Tree) Item(id string) (*models.ConditionItem, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	it, ok := t.items[id]
	return it, ok
}

// Root returns the root group id of a trigger
func (t *Tree) Root(triggerID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.roots[triggerID]
	return id, ok
}

// Items returns every item in the arena
func (t *Tree) Items() []*models.ConditionItem {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*models.ConditionItem, 0, len(t.items))
	for _, it := range t.items {
		out = append(out, it)
	}
	return out
}

// Descendants returns all groups and items strictly below the given group,
// groups ordered deepest first so deletion can walk the slice forward.
func (t *Tree) Descendants(groupID string) (groupIDs, itemIDs []string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var walk func(id string)
	walk = func(id string) {
		for _, child := range t.childGroups[id] {
			walk(child)
			groupIDs = append(groupIDs, child)
		}
		itemIDs = append(itemIDs, t.childItems[id]...)
	}
	walk(groupID)
	return groupIDs, itemIDs
}

// RemoveItem drops an item from the arena and its group's child index
func (t *Tree) RemoveItem(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	it, ok := t.items[id]
	if !ok {
		return
	}
	delete(t.items, id)
	t.childItems[it.GroupID] = remove(t.childItems[it.GroupID], id)
}

// RemoveGroup drops a group from the arena and detaches it from its parent's
// child index. The second return is false when the group was missing from
// the parent's index, signalling the caller to reload the parent's children
// from storage.
func (t *Tree) RemoveGroup(id string) (triggerID string, consistent bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	g, ok := t.groups[id]
	if !ok {
		return "", true
	}
	delete(t.groups, id)
	delete(t.childGroups, id)
	delete(t.childItems, id)
	if g.ParentID == "" {
		delete(t.roots, g.TriggerID)
		return g.TriggerID, true
	}
	siblings := t.childGroups[g.ParentID]
	trimmed := remove(siblings, id)
	t.childGroups[g.ParentID] = trimmed
	return g.TriggerID, len(trimmed) != len(siblings)
}

// ReplaceChildren rebuilds a group's child indexes from freshly loaded rows
func (t *Tree) ReplaceChildren(groupID string, groups []models.ConditionGroup, items []models.ConditionItem) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.childGroups[groupID] = nil
	t.childItems[groupID] = nil
	for i := range groups {
		g := groups[i]
		t.groups[g.ID] = &g
		t.childGroups[groupID] = append(t.childGroups[groupID], g.ID)
	}
	for i := range items {
		it := items[i]
		t.items[it.ID] = &it
		t.childItems[groupID] = append(t.childItems[groupID], it.ID)
	}
}

// child is one entry of a group's ordered child list
type child struct {
	sort    int
	groupID string
	itemID  string
}

// children returns a group's merged child list ordered by sort index.
// Callers must hold the read lock.
func (t *Tree) children(groupID string) []child {
	out := make([]child, 0, len(t.childGroups[groupID])+len(t.childItems[groupID]))
	for _, id := range t.childGroups[groupID] {
		out = append(out, child{sort: t.groups[id].Sort, groupID: id})
	}
	for _, id := range t.childItems[groupID] {
		out = append(out, child{sort: t.items[id].Sort, itemID: id})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].sort < out[j].sort })
	return out
}

func insertSorted(ids []string, id string, sortOf func(string) int, s int) []string {
	i := sort.Search(len(ids), func(i int) bool { return sortOf(ids[i]) > s })
	ids = append(ids, "")
	copy(ids[i+1:], ids[i:])
	ids[i] = id
	return ids
}

func remove(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i:i], ids[i+1:]...)
		}
	}
	return ids
}
