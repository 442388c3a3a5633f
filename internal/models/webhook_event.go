package models

import (
	"time"

	"gorm.io/datatypes"
)

// WebhookEvent stores every inbound provider callback payload for audit
// and operational reconciliation of unmatched or stale deliveries.
type WebhookEvent struct {
	BaseModel
	Provider        string         `gorm:"not null;index"`
	CorrelationID   string         `gorm:"index"`
	Payload         datatypes.JSON `gorm:"type:jsonb"`
	SignatureValid  bool           `gorm:"default:false"`
	ProcessedAt     *time.Time
	ProcessingError string
}
