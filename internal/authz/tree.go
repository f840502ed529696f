package authz

import (
	"github.com/google/uuid"

	"portal/internal/model"
)

// TreeIndex is an in-memory BranchTree built from a full branch listing.
// Descendant lookups use the nested-set bounds: a descendant is any branch
// whose lft/rght fall strictly inside the ancestor's. Organization trees
// are small (hundreds of branches), so loading them whole is cheaper than
// per-lookup queries.
type TreeIndex struct {
	byID     map[uuid.UUID]*model.Branch
	branches []model.Branch
}

func NewTreeIndex(branches []model.Branch) *TreeIndex {
	idx := &TreeIndex{
		byID:     make(map[uuid.UUID]*model.Branch, len(branches)),
		branches: branches,
	}
	for i := range branches {
		idx.byID[branches[i].ID] = &branches[i]
	}
	return idx
}

func (t *TreeIndex) Branch(id uuid.UUID) (*model.Branch, bool) {
	b, ok := t.byID[id]
	return b, ok
}

func (t *TreeIndex) Descendants(id uuid.UUID) []*model.Branch {
	root, ok := t.byID[id]
	if !ok {
		return nil
	}
	var out []*model.Branch
	for i := range t.branches {
		if root.Contains(&t.branches[i]) {
			out = append(out, &t.branches[i])
		}
	}
	return out
}
