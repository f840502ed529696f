package model

import (
	"time"

	"github.com/google/uuid"
)

// Branch is a node in the organization's strict tree (Kingdom → Region →
// Local Group). The tree is stored twice: as parent pointers (the source of
// truth for edits) and as nested-set bounds (lft/rght) used for descendant
// queries. RebuildTree in the repository recomputes the bounds from the
// parent pointers.
type Branch struct {
	ID        uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name      string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"name"`
	Location  string     `gorm:"type:varchar(255)" json:"location"`
	ParentID  *uuid.UUID `gorm:"type:uuid;index" json:"parent_id"` // nil for the root
	Parent    *Branch    `gorm:"foreignKey:ParentID" json:"-"`
	Lft       int        `gorm:"not null;index" json:"lft"`
	Rght      int        `gorm:"not null;index" json:"rght"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Contains reports whether other lies within this branch's nested-set
// bounds, i.e. is a descendant of this branch.
func (b *Branch) Contains(other *Branch) bool {
	return other.Lft > b.Lft && other.Rght < b.Rght
}
