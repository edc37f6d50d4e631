// internal/models/purchase.go
package models

import (
	"github.com/google/uuid"
)

// Purchase is one successful acquisition of a product by a user. The
// composite unique index makes webhook redelivery an upsert-or-ignore
// rather than a duplicate row.
type Purchase struct {
	BaseModel
	ProductID         uuid.UUID `json:"product_id" gorm:"type:uuid;not null;uniqueIndex:idx_purchases_product_user;index"`
	UserID            uuid.UUID `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_purchases_product_user;index"`
	CheckoutSessionID string    `json:"checkout_session_id,omitempty" gorm:"size:255;index"`
	AmountCents       int64     `json:"amount_cents" gorm:"not null;default:0"`
	PlatformFeeCents  int64     `json:"platform_fee_cents" gorm:"not null;default:0"`

	// Relationships
	Product Product `json:"product,omitempty" gorm:"foreignKey:ProductID"`
	User    User    `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

type Review struct {
	BaseModel
	ProductID uuid.UUID `json:"product_id" gorm:"type:uuid;not null;index"`
	UserID    uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index"`
	Rating    int       `json:"rating" gorm:"not null"`
	Comment   string    `json:"comment" gorm:"type:text"`

	// Relationships
	Product Product `json:"product,omitempty" gorm:"foreignKey:ProductID"`
	User    User    `json:"user,omitempty" gorm:"foreignKey:UserID"`
}
