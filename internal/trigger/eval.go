package trigger

import (
	"reflect"

	"homehub/internal/feature"
	"homehub/internal/models"
)

// Comparators for condition items
const (
	CmpEqual    = "equal"
	CmpLess     = "less"
	CmpLessEq   = "lessEq"
	CmpMore     = "more"
	CmpMoreEq   = "moreEq"
	CmpContains = "contains"
	CmpIsOn     = "isOn"
	CmpIsOff    = "isOff"
)

// ValueSource supplies live feature values and decodes stored constants with
// the referenced feature's kind
type ValueSource interface {
	CurrentValue(id string) (any, bool)
	DecodeConstant(featureID, encoded string) (any, error)
}

// EvaluateGroup evaluates a group depth-first against live feature values,
// short-circuiting per operator:
//
//	AND     true iff all children true  (empty group: true)
//	OR      true iff any child true     (empty group: false)
//	AND_NOT true iff no child true      (empty group: true)
func (t *Tree) EvaluateGroup(groupID string, values ValueSource) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.evalGroup(groupID, values)
}

func (t *Tree) evalGroup(groupID string, values ValueSource) bool {
	g, ok := t.groups[groupID]
	if !ok {
		return false
	}
	for _, c := range t.children(groupID) {
		var v bool
		if c.groupID != "" {
			v = t.evalGroup(c.groupID, values)
		} else {
			v = t.evalItem(t.items[c.itemID], values)
		}
		switch g.Operator {
		case models.OpAnd:
			if !v {
				return false
			}
		case models.OpOr:
			if v {
				return true
			}
		case models.OpAndNot:
			if v {
				return false
			}
		}
	}
	return g.Operator != models.OpOr
}

// evalItem decodes the stored constant with the feature's kind and applies
// the comparator against the feature's live current value
func (t *Tree) evalItem(it *models.ConditionItem, values ValueSource) bool {
	if it == nil {
		return false
	}
	live, ok := values.CurrentValue(it.FeatureID)
	if !ok {
		return false
	}
	constant, err := values.DecodeConstant(it.FeatureID, it.Value)
	if err != nil {
		return false
	}
	return Compare(it.Comparator, live, constant)
}

// Compare applies a comparator to a live value and a decoded constant
func Compare(comparator string, live, constant any) bool {
	switch comparator {
	case CmpEqual:
		return looseEqual(live, constant)
	case CmpLess, CmpLessEq, CmpMore, CmpMoreEq:
		a, ok1 := feature.ToFloat(live)
		b, ok2 := feature.ToFloat(constant)
		if !ok1 || !ok2 {
			return false
		}
		switch comparator {
		case CmpLess:
			return a < b
		case CmpLessEq:
			return a <= b
		case CmpMore:
			return a > b
		default:
			return a >= b
		}
	case CmpContains:
		// non-array live value compares false, never errors
		arr, ok := live.([]any)
		if !ok {
			return false
		}
		for _, el := range arr {
			if looseEqual(el, constant) {
				return true
			}
		}
		return false
	case CmpIsOn:
		b, ok := feature.ToBool(live)
		return ok && b
	case CmpIsOff:
		b, ok := feature.ToBool(live)
		return ok && !b
	}
	return false
}

// looseEqual compares across the numeric and boolean coercions the wire
// formats produce
func looseEqual(a, b any) bool {
	if af, ok := feature.ToFloat(a); ok {
		if bf, ok := feature.ToFloat(b); ok {
			return af == bf
		}
	}
	if ab, ok := a.(bool); ok {
		if bb, ok := feature.ToBool(b); ok {
			return ab == bb
		}
	}
	if bb, ok := b.(bool); ok {
		if ab, ok := feature.ToBool(a); ok {
			return ab == bb
		}
	}
	return reflect.DeepEqual(a, b)
}
