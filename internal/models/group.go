// internal/models/group.go
package models

import (
	"github.com/google/uuid"
	"github.com/lib/pq"
)

type Group struct {
	BaseModel
	OwnerID       uuid.UUID      `json:"owner_id" gorm:"type:uuid;not null;index"`
	Name          string         `json:"name" gorm:"size:255;not null"`
	Description   string         `json:"description" gorm:"type:text"`
	Topics        pq.StringArray `json:"topics" gorm:"type:text[]"`
	MaxMembers    int            `json:"max_members" gorm:"default:50"`
	CoverImageURL string         `json:"cover_image_url" gorm:"size:1024"`

	// Relationships
	Owner    User          `json:"owner,omitempty" gorm:"foreignKey:OwnerID"`
	Members  []GroupMember `json:"members,omitempty" gorm:"foreignKey:GroupID"`
	Messages []GroupMessage `json:"messages,omitempty" gorm:"foreignKey:GroupID"`
}

type GroupMember struct {
	BaseModel
	GroupID uuid.UUID `json:"group_id" gorm:"type:uuid;not null;uniqueIndex:idx_group_members_group_user;index"`
	UserID  uuid.UUID `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_group_members_group_user;index"`
	Role    GroupRole `json:"role" gorm:"type:varchar(20);default:'member'"`

	// Relationships
	Group Group `json:"group,omitempty" gorm:"foreignKey:GroupID"`
	User  User  `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

// GroupMessage is append-only; rows are never updated or deleted.
type GroupMessage struct {
	BaseModel
	GroupID uuid.UUID `json:"group_id" gorm:"type:uuid;not null;index"`
	UserID  uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index"`
	Message string    `json:"message" gorm:"type:text;not null"`

	// Relationships
	Group Group `json:"group,omitempty" gorm:"foreignKey:GroupID"`
	User  User  `json:"user,omitempty" gorm:"foreignKey:UserID"`
}

type GroupSharedFile struct {
	BaseModel
	GroupID   uuid.UUID `json:"group_id" gorm:"type:uuid;not null;index"`
	ProductID uuid.UUID `json:"product_id" gorm:"type:uuid;not null;index"`
	SharedBy  uuid.UUID `json:"shared_by" gorm:"type:uuid;not null"`

	// Relationships
	Group   Group   `json:"group,omitempty" gorm:"foreignKey:GroupID"`
	Product Product `json:"product,omitempty" gorm:"foreignKey:ProductID"`
}
