package trigger

import (
	"encoding/json"
	"testing"

	"homehub/internal/models"
)

// fakeValues is a lightweight in-test ValueSource backed by a map.
type fakeValues struct {
	values map[string]any
}

func (f *fakeValues) CurrentValue(id string) (any, bool) {
	v, ok := f.values[id]
	return v, ok
}

func (f *fakeValues) DecodeConstant(featureID, encoded string) (any, error) {
	var v any
	if err := json.Unmarshal([]byte(encoded), &v); err != nil {
		return nil, err
	}
	return v, nil
}

func TestCompare_Numeric(t *testing.T) {
	cases := []struct {
		name       string
		comparator string
		live       any
		constant   any
		want       bool
	}{
		{"equal numbers", CmpEqual, float64(21), float64(21), true},
		{"equal int vs float", CmpEqual, 21, float64(21), true},
		{"equal mismatch", CmpEqual, float64(21), float64(22), false},
		{"less true", CmpLess, float64(10), float64(20), true},
		{"less equal boundary", CmpLess, float64(20), float64(20), false},
		{"lessEq boundary", CmpLessEq, float64(20), float64(20), true},
		{"more true", CmpMore, float64(30), float64(20), true},
		{"moreEq boundary", CmpMoreEq, float64(20), float64(20), true},
		{"more non-numeric live", CmpMore, "warm", float64(20), false},
		{"less non-numeric constant", CmpLess, float64(5), "cold", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Compare(tc.comparator, tc.live, tc.constant); got != tc.want {
				t.Errorf("Compare(%s, %v, %v) = %v, want %v", tc.comparator, tc.live, tc.constant, got, tc.want)
			}
		})
	}
}

func TestCompare_Boolean(t *testing.T) {
	cases := []struct {
		name       string
		comparator string
		live       any
		want       bool
	}{
		{"isOn true", CmpIsOn, true, true},
		{"isOn false", CmpIsOn, false, false},
		{"isOn numeric one", CmpIsOn, float64(1), true},
		{"isOn string on", CmpIsOn, "on", true},
		{"isOff false", CmpIsOff, false, true},
		{"isOff true", CmpIsOff, true, false},
		{"isOn unparseable", CmpIsOn, "maybe", false},
		{"isOff unparseable", CmpIsOff, "maybe", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Compare(tc.comparator, tc.live, nil); got != tc.want {
				t.Errorf("Compare(%s, %v) = %v, want %v", tc.comparator, tc.live, got, tc.want)
			}
		})
	}
}

func TestCompare_Contains(t *testing.T) {
	arr := []any{float64(1), "red", true}
	if !Compare(CmpContains, arr, "red") {
		t.Error("expected contains to find element")
	}
	if Compare(CmpContains, arr, "blue") {
		t.Error("expected contains to miss absent element")
	}
	// a non-array live value compares false instead of erroring
	if Compare(CmpContains, "red", "red") {
		t.Error("expected contains on scalar live value to be false")
	}
}

func TestCompare_EqualBoolCoercion(t *testing.T) {
	if !Compare(CmpEqual, true, float64(1)) {
		t.Error("expected true == 1")
	}
	if !Compare(CmpEqual, false, "off") {
		t.Error("expected false == \"off\"")
	}
	if Compare(CmpEqual, true, float64(0)) {
		t.Error("expected true != 0")
	}
}

func TestCompare_UnknownComparator(t *testing.T) {
	if Compare("between", float64(1), float64(1)) {
		t.Error("unknown comparator must evaluate false")
	}
}

func addGroup(t *testing.T, tree *Tree, id, triggerID, parentID, operator string, sort int) {
	t.Helper()
	tree.AddGroup(&models.ConditionGroup{ID: id, TriggerID: triggerID, ParentID: parentID, Operator: operator, Sort: sort})
}

func addItem(t *testing.T, tree *Tree, id, groupID, featureID, comparator, value string, sort int) {
	t.Helper()
	tree.AddItem(&models.ConditionItem{ID: id, GroupID: groupID, FeatureID: featureID, Comparator: comparator, Value: value, Sort: sort})
}

func TestEvaluateGroup_EmptyGroups(t *testing.T) {
	values := &fakeValues{values: map[string]any{}}
	cases := []struct {
		operator string
		want     bool
	}{
		{models.OpAnd, true},
		{models.OpOr, false},
		{models.OpAndNot, true},
	}
	for _, tc := range cases {
		t.Run(tc.operator, func(t *testing.T) {
			tree := NewTree()
			addGroup(t, tree, "root", "t1", "", tc.operator, 0)
			if got := tree.EvaluateGroup("root", values); got != tc.want {
				t.Errorf("empty %s group = %v, want %v", tc.operator, got, tc.want)
			}
		})
	}
}

func TestEvaluateGroup_AndOr(t *testing.T) {
	values := &fakeValues{values: map[string]any{
		"temp":  float64(28),
		"light": true,
		"door":  false,
	}}

	tree := NewTree()
	addGroup(t, tree, "root", "t1", "", models.OpAnd, 0)
	addItem(t, tree, "i1", "root", "temp", CmpMore, "25", 0)
	addGroup(t, tree, "any", "t1", "root", models.OpOr, 1)
	addItem(t, tree, "i2", "any", "light", CmpIsOn, "null", 0)
	addItem(t, tree, "i3", "any", "door", CmpIsOn, "null", 1)

	if !tree.EvaluateGroup("root", values) {
		t.Fatal("expected root to evaluate true: temp > 25 and light on")
	}

	values.values["light"] = false
	if tree.EvaluateGroup("root", values) {
		t.Fatal("expected root to evaluate false once no OR child holds")
	}
}

func TestEvaluateGroup_AndNotRejectsAnyTrueChild(t *testing.T) {
	values := &fakeValues{values: map[string]any{
		"motion": false,
		"door":   false,
	}}
	tree := NewTree()
	addGroup(t, tree, "root", "t1", "", models.OpAndNot, 0)
	addItem(t, tree, "i1", "root", "motion", CmpIsOn, "null", 0)
	addItem(t, tree, "i2", "root", "door", CmpIsOn, "null", 1)

	if !tree.EvaluateGroup("root", values) {
		t.Fatal("expected AND_NOT with all children false to be true")
	}
	values.values["door"] = true
	if tree.EvaluateGroup("root", values) {
		t.Fatal("expected AND_NOT with one true child to be false")
	}
}

func TestEvaluateGroup_MissingFeatureIsFalse(t *testing.T) {
	values := &fakeValues{values: map[string]any{}}
	tree := NewTree()
	addGroup(t, tree, "root", "t1", "", models.OpAnd, 0)
	addItem(t, tree, "i1", "root", "ghost", CmpIsOn, "null", 0)

	if tree.EvaluateGroup("root", values) {
		t.Fatal("item referencing a missing feature must evaluate false")
	}
}

func TestEvaluateGroup_UndecodableConstantIsFalse(t *testing.T) {
	values := &fakeValues{values: map[string]any{"temp": float64(30)}}
	tree := NewTree()
	addGroup(t, tree, "root", "t1", "", models.OpAnd, 0)
	addItem(t, tree, "i1", "root", "temp", CmpMore, "{broken", 0)

	if tree.EvaluateGroup("root", values) {
		t.Fatal("item with undecodable constant must evaluate false")
	}
}

func TestEvaluateGroup_ChildOrderFollowsSortIndex(t *testing.T) {
	// OR short-circuits on the first true child; order children so a
	// missing-feature item sits behind a true one and never flips the result
	values := &fakeValues{values: map[string]any{"light": true}}
	tree := NewTree()
	addGroup(t, tree, "root", "t1", "", models.OpOr, 0)
	addItem(t, tree, "late", "root", "ghost", CmpIsOn, "null", 5)
	addItem(t, tree, "early", "root", "light", CmpIsOn, "null", 1)

	if !tree.EvaluateGroup("root", values) {
		t.Fatal("expected OR to hit the sorted-first true child")
	}
}
