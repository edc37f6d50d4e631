// internal/models/product.go
package models

import (
	"github.com/google/uuid"
)

type Product struct {
	BaseModel
	OwnerID     uuid.UUID `json:"owner_id" gorm:"type:uuid;not null;index"`
	Title       string    `json:"title" gorm:"size:255;not null"`
	Description string    `json:"description" gorm:"type:text"`
	Subject     string    `json:"subject" gorm:"size:100;index"`
	Price       float64   `json:"price" gorm:"type:decimal(10,2);not null"`
	IsFree      bool      `json:"is_free" gorm:"default:false;index"`
	FileKey     string    `json:"-" gorm:"size:512;not null"`
	FileURL     string    `json:"file_url" gorm:"size:1024"`
	PreviewURL  string    `json:"preview_url" gorm:"size:1024"`

	// Relationships
	Owner     User       `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	Purchases []Purchase `json:"purchases,omitempty" gorm:"foreignKey:ProductID"`
	Reviews   []Review   `json:"reviews,omitempty" gorm:"foreignKey:ProductID"`
}
