// internal/models/webhook_event.go
package models

import "time"

// WebhookEvent stores processor webhook payloads with deduplication
// metadata. Delivery is at-least-once, so the unique (provider, event id)
// pair is what keeps a redelivered event from being processed twice.
type WebhookEvent struct {
	BaseModel
	Provider        string     `json:"provider" gorm:"type:varchar(20);not null;uniqueIndex:idx_webhook_events_provider_event"`
	ProviderEventID string     `json:"provider_event_id" gorm:"size:191;not null;uniqueIndex:idx_webhook_events_provider_event"`
	EventType       string     `json:"event_type" gorm:"size:100;not null;index"`
	PayloadJSON     string     `json:"payload_json" gorm:"type:text"`
	SignatureValid  bool       `json:"signature_valid" gorm:"default:false"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"`
	ProcessingError string     `json:"processing_error,omitempty" gorm:"type:text"`
}
