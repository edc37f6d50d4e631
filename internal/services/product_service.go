// internal/services/product_service.go
package services

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/studyhive/studyhive-backend/internal/models"
	"github.com/studyhive/studyhive-backend/internal/utils"
)

type ProductService struct {
	db             *gorm.DB
	storageService *StorageService
}

type CreateProductRequest struct {
	Title       string  `json:"title" validate:"required,min=3,max=255"`
	Description string  `json:"description" validate:"required,min=10"`
	Subject     string  `json:"subject" validate:"required"`
	Price       float64 `json:"price" validate:"min=0"`
	IsFree      bool    `json:"is_free"`
	FileKey     string  `json:"-"`
	FileURL     string  `json:"-"`
	PreviewURL  string  `json:"-"`
}

type CreateReviewRequest struct {
	Rating  int    `json:"rating" validate:"required,min=1,max=5"`
	Comment string `json:"comment" validate:"required,min=3"`
}

type ProductSearchParams struct {
	utils.PaginationParams
	OwnerID  *uuid.UUID `json:"owner_id,omitempty"`
	FreeOnly *bool      `json:"free_only,omitempty"`
	PriceMin *float64   `json:"price_min,omitempty"`
	PriceMax *float64   `json:"price_max,omitempty"`
}

func NewProductService(db *gorm.DB, storageService *StorageService) *ProductService {
	return &ProductService{
		db:             db,
		storageService: storageService,
	}
}

func (s *ProductService) CreateProduct(ownerID uuid.UUID, req *CreateProductRequest) (*models.Product, error) {
	// Validate request
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	if !req.IsFree && req.Price <= 0 {
		return nil, errors.New("paid products require a positive price")
	}

	var owner models.User
	if err := s.db.First(&owner, ownerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	if owner.Status != models.UserStatusActive {
		return nil, errors.New("seller account is not active")
	}

	product := &models.Product{
		OwnerID:     ownerID,
		Title:       req.Title,
		Description: req.Description,
		Subject:     req.Subject,
		Price:       req.Price,
		IsFree:      req.IsFree,
		FileKey:     req.FileKey,
		FileURL:     req.FileURL,
		PreviewURL:  req.PreviewURL,
	}

	if err := s.db.Create(product).Error; err != nil {
		return nil, &PersistenceError{Op: "create product", Err: err}
	}

	return product, nil
}

func (s *ProductService) GetProduct(id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := s.db.Preload("Owner").First(&product, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("database error: %w", err)
	}

	return &product, nil
}

func (s *ProductService) SearchProducts(params ProductSearchParams) ([]models.Product, int64, error) {
	query := s.db.Model(&models.Product{})

	if params.OwnerID != nil {
		query = query.Where("owner_id = ?", *params.OwnerID)
	}

	if params.Subject != "" {
		query = query.Where("subject = ?", params.Subject)
	}

	if params.Search != "" {
		searchTerm := "%" + strings.ToLower(params.Search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", searchTerm, searchTerm)
	}

	if params.FreeOnly != nil && *params.FreeOnly {
		query = query.Where("is_free = ?", true)
	}

	if params.PriceMin != nil {
		query = query.Where("price >= ?", *params.PriceMin)
	}

	if params.PriceMax != nil {
		query = query.Where("price <= ?", *params.PriceMax)
	}

	// Get total count
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count products: %w", err)
	}

	allowedSortFields := []string{"created_at", "title", "price"}
	query = utils.ApplySort(query, params.PaginationParams, allowedSortFields)
	query = utils.ApplyPagination(query, params.PaginationParams)

	var products []models.Product
	if err := query.Find(&products).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch products: %w", err)
	}

	return products, total, nil
}

func (s *ProductService) ListByOwner(ownerID uuid.UUID) ([]models.Product, error) {
	var products []models.Product
	if err := s.db.Where("owner_id = ?", ownerID).
		Order("created_at DESC").Find(&products).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch products: %w", err)
	}
	return products, nil
}

func (s *ProductService) ListPurchased(userID uuid.UUID) ([]models.Product, error) {
	var products []models.Product
	err := s.db.
		Joins("JOIN purchases ON purchases.product_id = products.id").
		Where("purchases.user_id = ? AND purchases.deleted_at IS NULL", userID).
		Order("purchases.created_at DESC").
		Find(&products).Error
	if err != nil {
		return nil, fmt.Errorf("failed to fetch purchased products: %w", err)
	}
	return products, nil
}

// HasEntitlement reports whether the user may download or review the
// product: it is free, they own it, or a purchase row exists.
func (s *ProductService) HasEntitlement(userID, productID uuid.UUID) (bool, error) {
	var product models.Product
	if err := s.db.First(&product, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, ErrProductNotFound
		}
		return false, fmt.Errorf("database error: %w", err)
	}

	if product.IsFree || product.OwnerID == userID {
		return true, nil
	}

	var count int64
	err := s.db.Model(&models.Purchase{}).
		Where("product_id = ? AND user_id = ?", productID, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check purchase: %w", err)
	}

	return count > 0, nil
}

// DownloadURL gates the storage URL behind the entitlement check. The
// check runs before any URL is issued.
func (s *ProductService) DownloadURL(userID, productID uuid.UUID) (string, error) {
	entitled, err := s.HasEntitlement(userID, productID)
	if err != nil {
		return "", err
	}
	if !entitled {
		return "", ErrEntitlementRequired
	}

	var product models.Product
	if err := s.db.First(&product, productID).Error; err != nil {
		return "", fmt.Errorf("database error: %w", err)
	}

	url, err := s.storageService.GeneratePresignedURL(product.FileKey, 15*time.Minute)
	if err != nil {
		return "", &UpstreamError{Op: "presign download", Err: err}
	}

	return url, nil
}

func (s *ProductService) CreateReview(userID, productID uuid.UUID, req *CreateReviewRequest) (*models.Review, error) {
	if err := utils.ValidateStruct(req); err != nil {
		return nil, fmt.Errorf("validation failed: %w", err)
	}

	entitled, err := s.HasEntitlement(userID, productID)
	if err != nil {
		return nil, err
	}
	if !entitled {
		return nil, ErrEntitlementRequired
	}

	review := &models.Review{
		ProductID: productID,
		UserID:    userID,
		Rating:    req.Rating,
		Comment:   req.Comment,
	}

	if err := s.db.Create(review).Error; err != nil {
		return nil, &PersistenceError{Op: "create review", Err: err}
	}

	return review, nil
}

func (s *ProductService) ListReviews(productID uuid.UUID) ([]models.Review, float64, error) {
	var reviews []models.Review
	if err := s.db.Where("product_id = ?", productID).
		Order("created_at DESC").Find(&reviews).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to fetch reviews: %w", err)
	}

	var average float64
	if len(reviews) > 0 {
		var sum int
		for _, r := range reviews {
			sum += r.Rating
		}
		average = float64(sum) / float64(len(reviews))
	}

	return reviews, average, nil
}
