package models

// AuditLog records user-initiated budget mutations.
type AuditLog struct {
	Base
	HouseholdID  string `gorm:"type:uuid;not null;index" json:"household_id"`
	UserID       string `gorm:"type:uuid;not null;index" json:"user_id"`
	Action       string `gorm:"not null" json:"action"`
	ResourceType string `gorm:"not null" json:"resource_type"`
	ResourceID   string `json:"resource_id"`
	IPAddress    string `json:"ip_address"`
	Changes      string `json:"changes,omitempty"`
}
