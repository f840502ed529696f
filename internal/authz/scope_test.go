package authz

import (
	"errors"
	"testing"

	"github.com/google/uuid"

	"portal/internal/model"
)

// Kingdom(1,8) -> North(2,5) -> Shire(3,4); Kingdom -> South(6,7)
func testTree() (*TreeIndex, map[string]uuid.UUID) {
	ids := map[string]uuid.UUID{
		"kingdom": uuid.New(),
		"north":   uuid.New(),
		"shire":   uuid.New(),
		"south":   uuid.New(),
	}
	branches := []model.Branch{
		{ID: ids["kingdom"], Name: "Kingdom", Lft: 1, Rght: 8},
		{ID: ids["north"], Name: "North", Lft: 2, Rght: 5},
		{ID: ids["shire"], Name: "Shire", Lft: 3, Rght: 4},
		{ID: ids["south"], Name: "South", Lft: 6, Rght: 7},
	}
	return NewTreeIndex(branches), ids
}

func TestParseScopingRule(t *testing.T) {
	for _, valid := range []string{model.ScopeGlobal, model.ScopeBranchOnly, model.ScopeBranchAndChildren} {
		if _, err := ParseScopingRule(valid); err != nil {
			t.Fatalf("ParseScopingRule(%q) failed: %v", valid, err)
		}
	}
	if _, err := ParseScopingRule("kingdom_wide"); !errors.Is(err, ErrInvalidScopingRule) {
		t.Fatalf("expected ErrInvalidScopingRule, got %v", err)
	}
}

func TestWider(t *testing.T) {
	global, _ := ParseScopingRule(model.ScopeGlobal)
	children, _ := ParseScopingRule(model.ScopeBranchAndChildren)
	only, _ := ParseScopingRule(model.ScopeBranchOnly)

	if !global.Wider(children) || !children.Wider(only) {
		t.Fatal("scope ordering broken")
	}
	if only.Wider(global) {
		t.Fatal("branch_only should not be wider than global")
	}
	// Equal width counts as wide enough to keep.
	if !only.Wider(only) {
		t.Fatal("a rule should be at least as wide as itself")
	}
}

func TestBranchesInScopeGlobal(t *testing.T) {
	tree, ids := testTree()
	rule, _ := ParseScopingRule(model.ScopeGlobal)

	scope := BranchesInScope(rule, ids["shire"], tree)
	if !scope.All {
		t.Fatal("global scope should cover all branches")
	}
	if !scope.Includes(ids["south"]) {
		t.Fatal("global scope should include unrelated branches")
	}
}

func TestBranchesInScopeBranchOnly(t *testing.T) {
	tree, ids := testTree()
	rule, _ := ParseScopingRule(model.ScopeBranchOnly)

	scope := BranchesInScope(rule, ids["north"], tree)
	if !scope.Includes(ids["north"]) {
		t.Fatal("branch_only must include the subject branch")
	}
	if scope.Includes(ids["shire"]) {
		t.Fatal("branch_only must not include children")
	}
}

func TestBranchesInScopeBranchAndChildren(t *testing.T) {
	tree, ids := testTree()
	rule, _ := ParseScopingRule(model.ScopeBranchAndChildren)

	scope := BranchesInScope(rule, ids["north"], tree)
	if !scope.Includes(ids["north"]) || !scope.Includes(ids["shire"]) {
		t.Fatal("branch_and_children must include the branch and its subtree")
	}
	if scope.Includes(ids["south"]) {
		t.Fatal("sibling branch leaked into scope")
	}
	if scope.Includes(ids["kingdom"]) {
		t.Fatal("ancestor branch leaked into scope")
	}
}

func TestBranchesInScopeUnknownSubject(t *testing.T) {
	tree, _ := testTree()
	rule, _ := ParseScopingRule(model.ScopeBranchAndChildren)

	scope := BranchesInScope(rule, uuid.New(), tree)
	if scope.All || !scope.Empty() {
		t.Fatal("unknown subject branch should yield an empty scope")
	}
}
