package models

// StaffMember is a workspace-scoped personnel contact record. It is distinct
// from a Membership: staff members need not hold platform accounts.
type StaffMember struct {
	BaseModel

	WorkspaceID string `gorm:"type:uuid;not null;index" json:"workspace_id"`
	CreatedByID string `gorm:"type:uuid" json:"created_by_id"`

	Name     string `gorm:"not null" json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Position string `json:"position"`
}
