package models

import "time"

// School groups member accounts under a paying admin. Slots bound how many
// members can be enrolled; the admin occupies one slot.
type School struct {
	BaseModel
	Name    string             `gorm:"not null"`
	AdminID string             `gorm:"not null;uniqueIndex"`
	Slots   int                `gorm:"default:20"`
	Status  SubscriptionStatus `gorm:"default:'active'"`
	Expiry  *time.Time
}
