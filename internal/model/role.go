package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Permission scoping rules: over which branches a granted permission applies
const (
	ScopeGlobal            = "global"
	ScopeBranchOnly        = "branch_only"
	ScopeBranchAndChildren = "branch_and_children"
)

// MemberRole provenance values (what granted the role)
const (
	GrantSourceDirect        = "direct_grant"
	GrantSourceWarrant       = "warrant"
	GrantSourceAuthorization = "activity_authorization"
)

// Role represents a named bundle of permissions assignable to members
type Role struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name        string         `gorm:"type:varchar(50);uniqueIndex;not null" json:"name"`
	Description string         `gorm:"type:text" json:"description"`
	IsSystem    bool           `gorm:"default:false" json:"is_system"` // Prevent deletion of built-in roles
	Permissions []Permission   `gorm:"many2many:role_permissions;" json:"permissions"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"-"`
}

// Permission represents a single capability that can be bundled into roles.
// The requirement flags and minimum age gate whether a member holding the
// permission through a role actually wields it; IsSuperUser bypasses every
// gate including branch scoping.
type Permission struct {
	ID                           uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name                         string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"name"` // e.g. "Can Authorize Armored Combat"
	RequireActiveMembership      bool       `gorm:"default:false" json:"require_active_membership"`
	RequireActiveBackgroundCheck bool       `gorm:"default:false" json:"require_active_background_check"`
	RequiresWarrant              bool       `gorm:"default:false" json:"requires_warrant"`
	MinimumAge                   int        `gorm:"default:0" json:"minimum_age"`
	IsSuperUser                  bool       `gorm:"default:false" json:"is_super_user"`
	ScopingRule                  string     `gorm:"type:varchar(30);not null;default:'branch_only'" json:"scoping_rule"`
	ActivityID                   *uuid.UUID `gorm:"type:uuid;index" json:"activity_id"` // activity this permission governs, if any
}

// MemberRole links a member to a role for a time window. ExpiresOn is nil
// for indefinite grants. EntityType/EntityID record what produced the grant
// (a warrant, a direct grant, an activity authorization).
type MemberRole struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	MemberID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"member_id"`
	Member     *Member    `gorm:"foreignKey:MemberID" json:"member,omitempty"`
	RoleID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"role_id"`
	Role       *Role      `gorm:"foreignKey:RoleID" json:"role,omitempty"`
	StartOn    time.Time  `gorm:"not null" json:"start_on"`
	ExpiresOn  *time.Time `json:"expires_on"`
	ApproverID *uuid.UUID `gorm:"type:uuid" json:"approver_id"`
	EntityType string     `gorm:"type:varchar(50)" json:"entity_type"`
	EntityID   *uuid.UUID `gorm:"type:uuid" json:"entity_id"`
	CreatedAt  time.Time  `json:"created_at"`
}
