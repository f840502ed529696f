package model

import (
	"time"

	"github.com/google/uuid"
)

// Authorization status values. An APPROVED authorization is "current" or
// "upcoming" depending on its validity window; list endpoints derive that
// label, the column stores only the workflow state.
const (
	AuthStatusPending  = "PENDING"
	AuthStatusApproved = "APPROVED"
	AuthStatusDenied   = "DENIED"
	AuthStatusRevoked  = "REVOKED"
	AuthStatusExpired  = "EXPIRED"
)

// Derived display labels for an APPROVED authorization's validity window
const (
	AuthLabelUpcoming = "UPCOMING"
	AuthLabelCurrent  = "CURRENT"
)

// Authorization is one member-per-activity authorization attempt: the
// central entity of the approval workflow. Rows are never hard-deleted;
// terminal outcomes are status transitions.
type Authorization struct {
	ID            uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	MemberID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"member_id"`
	Member        *Member    `gorm:"foreignKey:MemberID" json:"member,omitempty"`
	ActivityID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"activity_id"`
	Activity      *Activity  `gorm:"foreignKey:ActivityID" json:"activity,omitempty"`
	Status        string     `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	IsRenewal     bool       `gorm:"default:false" json:"is_renewal"`
	ApprovalCount int        `gorm:"not null;default:0" json:"approval_count"`
	StartOn       *time.Time `json:"start_on"`
	ExpiresOn     *time.Time `json:"expires_on"`
	RevokerID     *uuid.UUID `gorm:"type:uuid" json:"revoker_id"`
	RevokedReason string     `gorm:"type:text" json:"revoked_reason"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

// AuthorizationApproval is one pending-or-resolved approval step inside an
// authorization's chain. At most one row per authorization has a nil
// RespondedOn, and approver IDs never repeat within one authorization.
type AuthorizationApproval struct {
	ID                 uuid.UUID  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	AuthorizationID    uuid.UUID  `gorm:"type:uuid;not null;index" json:"authorization_id"`
	Authorization      *Authorization `gorm:"foreignKey:AuthorizationID" json:"authorization,omitempty"`
	ApproverID         uuid.UUID  `gorm:"type:uuid;not null;index" json:"approver_id"`
	Approver           *Member    `gorm:"foreignKey:ApproverID" json:"approver,omitempty"`
	AuthorizationToken string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"-"` // opaque email-link token
	RequestedOn        time.Time  `gorm:"not null" json:"requested_on"`
	RespondedOn        *time.Time `json:"responded_on"`
	Approved           bool       `gorm:"default:false" json:"approved"`
	ApproverNotes      string     `gorm:"type:text" json:"approver_notes"`
}
