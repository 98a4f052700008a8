package models

// Customer is a workspace-scoped contact record. CreatedByID is provenance
// only; authorization always flows through workspace membership.
type Customer struct {
	BaseModel

	WorkspaceID string `gorm:"type:uuid;not null;index" json:"workspace_id"`
	CreatedByID string `gorm:"type:uuid" json:"created_by_id"`

	Name    string `gorm:"not null" json:"name"`
	Email   string `gorm:"index" json:"email"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}
