package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Member status values controlling login eligibility
const (
	MemberStatusActive      = "ACTIVE"
	MemberStatusDeactivated = "DEACTIVATED"
)

// Member represents the central member entity for logic and database structure
type Member struct {
	ID                       uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ScaName                  string         `gorm:"type:varchar(255);not null" json:"sca_name"` // Society name, shown everywhere
	FirstName                string         `gorm:"type:varchar(255);not null" json:"first_name"`
	LastName                 string         `gorm:"type:varchar(255);not null" json:"last_name"`
	Email                    string         `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Phone                    string         `gorm:"type:varchar(20)" json:"phone"`
	Password                 string         `gorm:"type:varchar(255);not null" json:"-"` // Omit password from JSON requests/responses
	Status                   string         `gorm:"type:varchar(20);not null;default:'ACTIVE'" json:"status"`
	BranchID                 uuid.UUID      `gorm:"type:uuid;not null;index" json:"branch_id"`
	Branch                   *Branch        `gorm:"foreignKey:BranchID" json:"branch,omitempty"`
	MembershipNumber         string         `gorm:"type:varchar(50)" json:"membership_number"`
	MembershipExpiresOn      *time.Time     `json:"membership_expires_on"`
	BackgroundCheckExpiresOn *time.Time     `json:"background_check_expires_on"`
	BirthYear                int            `gorm:"not null" json:"birth_year"`
	BirthMonth               int            `gorm:"not null" json:"birth_month"`
	CreatedAt                time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt                time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	DeletedAt                gorm.DeletedAt `gorm:"index" json:"-"` // GORM soft delete
}

// DisplayName returns the name shown in approver lists and audit entries.
func (m *Member) DisplayName() string {
	if m.ScaName != "" {
		return m.ScaName
	}
	return m.FirstName + " " + m.LastName
}

// AgeAt derives the member's age from birth year/month at the given instant.
// Only year and month are recorded, so the age is conservative: until the
// birth month has been reached in the current year the member is one year
// younger.
func (m *Member) AgeAt(asOf time.Time) int {
	age := asOf.Year() - m.BirthYear
	if int(asOf.Month()) < m.BirthMonth {
		age--
	}
	if age < 0 {
		return 0
	}
	return age
}

// RefreshToken stores long-lived tokens allowing members to request new access tokens
type RefreshToken struct {
	ID        uuid.UUID `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	MemberID  uuid.UUID `gorm:"type:uuid;not null;index" json:"member_id"`
	Member    Member    `gorm:"foreignKey:MemberID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Token     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"token"`
	ExpiresAt time.Time `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
