package model

import (
	"time"

	"github.com/google/uuid"
)

const (
	ActionCreateMember   = "CREATE_MEMBER"
	ActionUpdateMember   = "UPDATE_MEMBER"
	ActionDeleteMember   = "DELETE_MEMBER"
	ActionCreateBranch   = "CREATE_BRANCH"
	ActionUpdateBranch   = "UPDATE_BRANCH"
	ActionRebuildTree    = "REBUILD_BRANCH_TREE"
	ActionCreateActivity = "CREATE_ACTIVITY"
	ActionUpdateActivity = "UPDATE_ACTIVITY"
	ActionGrantRole      = "GRANT_MEMBER_ROLE"
	ActionRevokeRole     = "REVOKE_MEMBER_ROLE"

	// Authorization workflow actions
	ActionRequestAuthorization = "REQUEST_AUTHORIZATION"
	ActionApproveStep          = "APPROVE_AUTHORIZATION_STEP"
	ActionDenyAuthorization    = "DENY_AUTHORIZATION"
	ActionRevokeAuthorization  = "REVOKE_AUTHORIZATION"
	ActionExpireAuthorization  = "EXPIRE_AUTHORIZATION"
)

// AuditLog tracks Who, What, and When for critical system changes
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	MemberID   *uuid.UUID `gorm:"type:uuid;index" json:"member_id"` // Nullable gracefully if automated job
	Member     *Member    `gorm:"foreignKey:MemberID" json:"member"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entity_id"`        // Reference string (uuid/code)
	EntityName string     `gorm:"type:varchar(255)" json:"entity_name,omitempty"` // Human readable name
	Details    string     `gorm:"type:jsonb" json:"details"`                      // Serialized JSON payload of the action
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
}
