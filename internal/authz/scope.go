package authz

import (
	"fmt"

	"github.com/google/uuid"

	"portal/internal/model"
)

// ScopingRule determines over which branches a granted permission applies.
type ScopingRule string

const (
	ScopeGlobal            = ScopingRule(model.ScopeGlobal)
	ScopeBranchOnly        = ScopingRule(model.ScopeBranchOnly)
	ScopeBranchAndChildren = ScopingRule(model.ScopeBranchAndChildren)
)

// ParseScopingRule validates a stored scoping rule value. A value outside
// the closed set indicates corrupt configuration and is surfaced as an
// error rather than silently treated as any particular scope.
func ParseScopingRule(s string) (ScopingRule, error) {
	switch ScopingRule(s) {
	case ScopeGlobal, ScopeBranchOnly, ScopeBranchAndChildren:
		return ScopingRule(s), nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidScopingRule, s)
	}
}

// width ranking used when the same permission is reachable through several
// roles and the widest observed scope wins
func (r ScopingRule) width() int {
	switch r {
	case ScopeGlobal:
		return 2
	case ScopeBranchAndChildren:
		return 1
	default:
		return 0
	}
}

// Wider reports whether r covers at least as many branches as other.
func (r ScopingRule) Wider(other ScopingRule) bool {
	return r.width() >= other.width()
}

// BranchTree is the read-only view of the branch hierarchy the scope
// evaluator needs. Implemented by the branch repository over the nested-set
// columns.
type BranchTree interface {
	Branch(id uuid.UUID) (*model.Branch, bool)
	Descendants(id uuid.UUID) []*model.Branch
}

// BranchScope is the evaluated set of branches a permission applies over.
// All=true is the unbounded "every branch" sentinel; otherwise IDs holds
// the explicit set. The zero value is the empty scope.
type BranchScope struct {
	All bool
	IDs []uuid.UUID
}

// Includes reports whether branchID falls inside the scope.
func (s BranchScope) Includes(branchID uuid.UUID) bool {
	if s.All {
		return true
	}
	for _, id := range s.IDs {
		if id == branchID {
			return true
		}
	}
	return false
}

// Empty reports whether the scope covers no branch at all.
func (s BranchScope) Empty() bool {
	return !s.All && len(s.IDs) == 0
}

// BranchesInScope computes the branch set a permission with the given rule
// applies over when held by a subject in subjectBranchID. A subject branch
// that does not resolve yields the empty scope: an orphaned subject has no
// standing, it is not an error.
func BranchesInScope(rule ScopingRule, subjectBranchID uuid.UUID, tree BranchTree) BranchScope {
	if rule == ScopeGlobal {
		return BranchScope{All: true}
	}

	subject, ok := tree.Branch(subjectBranchID)
	if !ok {
		return BranchScope{}
	}

	ids := []uuid.UUID{subject.ID}
	if rule == ScopeBranchAndChildren {
		for _, d := range tree.Descendants(subject.ID) {
			ids = append(ids, d.ID)
		}
	}
	return BranchScope{IDs: ids}
}
