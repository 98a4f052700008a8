package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role describes a user's standing within a single workspace. Roles are
// per-membership, never global.
type Role string

const (
	RoleOwner Role = "owner"
	RoleAdmin Role = "admin"
	RoleStaff Role = "staff"
)

// User is the account identity. Workspace access flows through Memberships;
// ActiveWorkspaceID selects which membership scopes the current session.
type User struct {
	ID       string `gorm:"primaryKey;type:uuid" json:"id"`
	Name     string `json:"name"`
	Email    string `gorm:"uniqueIndex;not null" json:"email"`
	Password string `gorm:"not null" json:"-"`

	Verified bool `gorm:"default:false" json:"verified"`

	// Email OTP used for signup verification and login challenges. Only the
	// digest is stored.
	OTPHash      string     `json:"-"`
	OTPExpiresAt *time.Time `json:"-"`

	// Authenticator-app 2FA, optional per user.
	TOTPEnabled bool   `gorm:"default:false" json:"totp_enabled"`
	TOTPSecret  string `json:"-"`

	ActiveWorkspaceID *string    `gorm:"type:uuid" json:"active_workspace_id"`
	ActiveWorkspace   *Workspace `json:"active_workspace,omitempty"`

	Memberships []Membership `gorm:"foreignKey:UserID" json:"memberships,omitempty"`

	LastLoginAt *time.Time `json:"last_login_at"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// BeforeCreate ensures a UUID is present before persisting.
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

// Membership binds a user to a workspace with a single role.
type Membership struct {
	BaseModel

	UserID      string `gorm:"type:uuid;not null;uniqueIndex:idx_membership_user_workspace" json:"user_id"`
	WorkspaceID string `gorm:"type:uuid;not null;uniqueIndex:idx_membership_user_workspace" json:"workspace_id"`
	Role        Role   `gorm:"not null" json:"role"`

	Workspace *Workspace `json:"workspace,omitempty"`
}
