package models

import "time"

// PortalToken is a one-time magic-link credential for the customer portal.
// Access is granted through the explicit CustomerGrant list captured at issue
// time, never inferred from email equality at verification time.
type PortalToken struct {
	BaseModel

	Email     string `gorm:"not null;index" json:"-"`
	TokenHash string `gorm:"uniqueIndex;not null" json:"-"`

	ExpiresAt  time.Time  `gorm:"not null" json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at"`

	Grants []CustomerGrant `gorm:"foreignKey:PortalTokenID" json:"grants"`
}

// CustomerGrant names one customer record the token holder may read. Grants
// may span workspaces; each one is an explicit capability.
type CustomerGrant struct {
	BaseModel

	PortalTokenID string `gorm:"type:uuid;not null;index" json:"portal_token_id"`
	CustomerID    string `gorm:"type:uuid;not null" json:"customer_id"`
	WorkspaceID   string `gorm:"type:uuid;not null" json:"workspace_id"`
}
