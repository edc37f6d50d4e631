// internal/services/group_service.go
package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/studyhive/studyhive-backend/internal/models"
	"github.com/studyhive/studyhive-backend/internal/utils"
)

type GroupService struct {
	db             *gorm.DB
	productService *ProductService
}

type CreateGroupRequest struct {
	Name          string   `json:"name" validate:"required,min=3,max=255"`
	Description   string   `json:"description" validate:"required,min=10"`
	Topics        []string `json:"topics,omitempty"`
	MaxMembers    int      `json:"max_members" validate:"min=2,max=500"`
	CoverImageURL string   `json:"-"`
}

type SendMessageRequest struct {
	Message string `json:"message" validate:"required,min=1,max=4000"`
}

func NewGroupService(db *gorm.DB, productService *ProductService) *GroupService {
	return &GroupService{
		db:             db,
		productService: productService,
	}
}

func (s *GroupService) CreateGroup(ownerID uuid.UUID, req *CreateGroupRequest) (*models.Group, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	group := &models.Group{
		OwnerID:       ownerID,
		Name:          req.Name,
		Description:   req.Description,
		Topics:        req.Topics,
		MaxMembers:    req.MaxMembers,
		CoverImageURL: req.CoverImageURL,
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(group).Error; err != nil {
			return fmt.Errorf("failed to create group: %w", err)
		}

		// The creator is the group's first member and its admin.
		member := &models.GroupMember{
			GroupID: group.ID,
			UserID:  ownerID,
			Role:    models.GroupRoleAdmin,
		}
		if err := tx.Create(member).Error; err != nil {
			return fmt.Errorf("failed to add owner membership: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, &PersistenceError{Op: "create group", Err: err}
	}

	return group, nil
}

func (s *GroupService) GetGroup(id uuid.UUID) (*models.Group, error) {
	var group models.Group
	if err := s.db.Preload("Owner").First(&group, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrGroupNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	return &group, nil
}

func (s *GroupService) SearchGroups(params utils.PaginationParams) ([]models.Group, int64, error) {
	query := s.db.Model(&models.Group{})

	if params.Search != "" {
		searchTerm := "%" + strings.ToLower(params.Search) + "%"
		query = query.Where("LOWER(name) LIKE ? OR LOWER(description) LIKE ?", searchTerm, searchTerm)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count groups: %w", err)
	}

	allowedSortFields := []string{"created_at", "name", "max_members"}
	query = utils.ApplySort(query, params, allowedSortFields)
	query = utils.ApplyPagination(query, params)

	var groups []models.Group
	if err := query.Find(&groups).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch groups: %w", err)
	}

	return groups, total, nil
}

// JoinGroup adds a member, enforcing the member cap inside a transaction
// so two concurrent joins cannot both take the last seat.
func (s *GroupService) JoinGroup(groupID, userID uuid.UUID) (*models.GroupMember, error) {
	var member *models.GroupMember

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var group models.Group
		if err := lockForUpdate(tx).First(&group, groupID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrGroupNotFound
			}
			return fmt.Errorf("database error: %w", err)
		}

		var existing models.GroupMember
		err := tx.Where("group_id = ? AND user_id = ?", groupID, userID).
			First(&existing).Error
		if err == nil {
			member = &existing
			return nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("database error: %w", err)
		}

		var count int64
		if err := tx.Model(&models.GroupMember{}).
			Where("group_id = ?", groupID).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to count members: %w", err)
		}

		if group.MaxMembers > 0 && count >= int64(group.MaxMembers) {
			return ErrGroupFull
		}

		member = &models.GroupMember{
			GroupID: groupID,
			UserID:  userID,
			Role:    models.GroupRoleMember,
		}
		if err := tx.Create(member).Error; err != nil {
			return fmt.Errorf("failed to add member: %w", err)
		}

		return nil
	})
	if err != nil {
		if errors.Is(err, ErrGroupNotFound) || errors.Is(err, ErrGroupFull) {
			return nil, err
		}
		return nil, &PersistenceError{Op: "join group", Err: err}
	}

	return member, nil
}

// SetCoverImage updates the group's cover. Admin members only.
func (s *GroupService) SetCoverImage(groupID, userID uuid.UUID, url string) (*models.Group, error) {
	group, err := s.GetGroup(groupID)
	if err != nil {
		return nil, err
	}

	var member models.GroupMember
	err = s.db.Where("group_id = ? AND user_id = ?", groupID, userID).First(&member).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotGroupMember
		}
		return nil, fmt.Errorf("database error: %w", err)
	}
	if member.Role != models.GroupRoleAdmin {
		return nil, errors.New("only group admins can change the cover image")
	}

	group.CoverImageURL = url
	if err := s.db.Model(group).Update("cover_image_url", url).Error; err != nil {
		return nil, &PersistenceError{Op: "update cover image", Err: err}
	}

	return group, nil
}

// lockForUpdate takes a row lock on databases that support it. SQLite
// has no FOR UPDATE; its single-writer model covers the same race.
func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "sqlite" {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

func (s *GroupService) IsMember(groupID, userID uuid.UUID) (bool, error) {
	var count int64
	err := s.db.Model(&models.GroupMember{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check membership: %w", err)
	}
	return count > 0, nil
}

func (s *GroupService) ListMembers(groupID uuid.UUID) ([]models.GroupMember, error) {
	var members []models.GroupMember
	if err := s.db.Preload("User").Where("group_id = ?", groupID).
		Order("created_at ASC").Find(&members).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch members: %w", err)
	}
	return members, nil
}

// ListMessages returns the newest window of the group's chat history in
// send order. A non-nil before fetches the window preceding that instant,
// so callers page backwards through older history.
func (s *GroupService) ListMessages(groupID, userID uuid.UUID, limit int, before *time.Time) ([]models.GroupMessage, error) {
	isMember, err := s.IsMember(groupID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, ErrNotGroupMember
	}

	if limit < 1 || limit > 500 {
		limit = 200
	}

	query := s.db.Where("group_id = ?", groupID)
	if before != nil {
		query = query.Where("created_at < ?", *before)
	}

	var messages []models.GroupMessage
	err = query.Order("created_at DESC").Limit(limit).Find(&messages).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch messages: %w", err)
	}

	// Fetched newest-first to pin the window; reverse for rendering.
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, nil
}

// SendMessage appends an immutable chat message. The caller broadcasts the
// returned row to the group's subscribers.
func (s *GroupService) SendMessage(groupID, userID uuid.UUID, req *SendMessageRequest) (*models.GroupMessage, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	isMember, err := s.IsMember(groupID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, ErrNotGroupMember
	}

	message := &models.GroupMessage{
		GroupID: groupID,
		UserID:  userID,
		Message: strings.TrimSpace(req.Message),
	}

	if err := s.db.Create(message).Error; err != nil {
		return nil, &PersistenceError{Op: "create message", Err: err}
	}

	return message, nil
}

func (s *GroupService) ListSharedFiles(groupID, userID uuid.UUID) ([]models.GroupSharedFile, error) {
	isMember, err := s.IsMember(groupID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, ErrNotGroupMember
	}

	var files []models.GroupSharedFile
	err = s.db.Preload("Product").Where("group_id = ?", groupID).
		Order("created_at DESC").Find(&files).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch shared files: %w", err)
	}

	return files, nil
}

// ShareFile links a product into the group's shared pool. The sharer must
// be a member and hold an entitlement to the product.
func (s *GroupService) ShareFile(groupID, productID, userID uuid.UUID) (*models.GroupSharedFile, error) {
	isMember, err := s.IsMember(groupID, userID)
	if err != nil {
		return nil, err
	}
	if !isMember {
		return nil, ErrNotGroupMember
	}

	entitled, err := s.productService.HasEntitlement(userID, productID)
	if err != nil {
		return nil, err
	}
	if !entitled {
		return nil, ErrEntitlementRequired
	}

	shared := &models.GroupSharedFile{
		GroupID:   groupID,
		ProductID: productID,
		SharedBy:  userID,
	}

	if err := s.db.Create(shared).Error; err != nil {
		return nil, &PersistenceError{Op: "share file", Err: err}
	}

	return shared, nil
}
