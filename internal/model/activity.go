package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Activity is a supervisable activity type (e.g. "Armored Combat") that
// members must be authorized to perform. PermissionID names the permission
// that qualifies a member to approve authorization requests for it.
type Activity struct {
	ID                     uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Name                   string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"name"`
	Description            string         `gorm:"type:text" json:"description"`
	TermLength             int            `gorm:"not null;default:48" json:"term_length"` // months an authorization stays valid
	MinimumAge             int            `gorm:"not null;default:0" json:"minimum_age"`
	MaximumAge             int            `gorm:"not null;default:200" json:"maximum_age"`
	NumRequiredAuthorizors int            `gorm:"not null;default:1" json:"num_required_authorizors"`
	NumRequiredRenewers    int            `gorm:"not null;default:1" json:"num_required_renewers"`
	PermissionID           uuid.UUID      `gorm:"type:uuid;not null" json:"permission_id"`
	Permission             *Permission    `gorm:"foreignKey:PermissionID" json:"permission,omitempty"`
	GrantsRoleID           *uuid.UUID     `gorm:"type:uuid" json:"grants_role_id"` // role held while the authorization is valid
	CreatedAt              time.Time      `json:"created_at"`
	UpdatedAt              time.Time      `json:"updated_at"`
	DeletedAt              gorm.DeletedAt `gorm:"index" json:"-"`
}

// RequiredApprovals returns how many approvals an authorization attempt
// needs, depending on whether it is a renewal.
func (a *Activity) RequiredApprovals(isRenewal bool) int {
	if isRenewal {
		return a.NumRequiredRenewers
	}
	return a.NumRequiredAuthorizors
}
