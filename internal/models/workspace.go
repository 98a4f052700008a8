package models

import "gorm.io/datatypes"

// Plan identifies the subscription tier of a workspace.
type Plan string

const (
	PlanFree Plan = "free"
	PlanPro  Plan = "pro"
)

// WorkspaceStatus mirrors the billing provider's subscription state, reduced
// to the values the application understands.
type WorkspaceStatus string

const (
	WorkspaceActive     WorkspaceStatus = "active"
	WorkspacePastDue    WorkspaceStatus = "past_due"
	WorkspaceCanceled   WorkspaceStatus = "canceled"
	WorkspaceIncomplete WorkspaceStatus = "incomplete"
)

// KnownWorkspaceStatus reports whether a provider-supplied status maps onto
// the local enum. Unknown values must never be stored verbatim.
func KnownWorkspaceStatus(s string) bool {
	switch WorkspaceStatus(s) {
	case WorkspaceActive, WorkspacePastDue, WorkspaceCanceled, WorkspaceIncomplete:
		return true
	}
	return false
}

// Workspace is the tenant boundary. Every tenant-owned record carries a
// WorkspaceID and every query filters by it. Workspaces are never hard-deleted.
type Workspace struct {
	BaseModel

	Name    string          `gorm:"not null" json:"name"`
	OwnerID string          `gorm:"type:uuid;not null;index" json:"owner_id"`
	Plan    Plan            `gorm:"not null;default:'free'" json:"plan"`
	Status  WorkspaceStatus `gorm:"not null;default:'active'" json:"status"`

	StripeCustomerID     string `gorm:"index" json:"-"`
	StripeSubscriptionID string `gorm:"index" json:"-"`

	// Settings holds invoice branding preferences (logo URL, footer text,
	// default tax rate) as free-form JSON.
	Settings datatypes.JSON `json:"settings"`

	Memberships []Membership `gorm:"foreignKey:WorkspaceID" json:"memberships,omitempty"`
}
