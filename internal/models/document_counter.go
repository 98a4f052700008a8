package models

// DocumentCounter issues sequential document numbers per workspace. Kind
// separates the invoice and estimate sequences. The counter only ever moves
// forward, so numbers of deleted documents are never reissued.
type DocumentCounter struct {
	WorkspaceID string `gorm:"type:uuid;primaryKey"`
	Kind        string `gorm:"primaryKey"`
	Value       int64  `gorm:"not null"`
}
