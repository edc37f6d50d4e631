// internal/handlers/product.go
package handlers

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/studyhive/studyhive-backend/internal/services"
	"github.com/studyhive/studyhive-backend/internal/utils"
)

type ProductHandler struct {
	productService *services.ProductService
	orderService   *services.OrderService
	storageService *services.StorageService
}

func NewProductHandler(productService *services.ProductService, orderService *services.OrderService, storageService *services.StorageService) *ProductHandler {
	return &ProductHandler{
		productService: productService,
		orderService:   orderService,
		storageService: storageService,
	}
}

// GET /products
func (h *ProductHandler) GetProducts(c *gin.Context) {
	params := utils.GetPaginationParams(c)

	searchParams := services.ProductSearchParams{
		PaginationParams: params,
	}

	if ownerIDStr := c.Query("owner_id"); ownerIDStr != "" {
		if ownerID, err := uuid.Parse(ownerIDStr); err == nil {
			searchParams.OwnerID = &ownerID
		}
	}

	if freeStr := c.Query("free"); freeStr != "" {
		if free, err := strconv.ParseBool(freeStr); err == nil {
			searchParams.FreeOnly = &free
		}
	}

	if priceMinStr := c.Query("price_min"); priceMinStr != "" {
		if priceMin, err := strconv.ParseFloat(priceMinStr, 64); err == nil {
			searchParams.PriceMin = &priceMin
		}
	}

	if priceMaxStr := c.Query("price_max"); priceMaxStr != "" {
		if priceMax, err := strconv.ParseFloat(priceMaxStr, 64); err == nil {
			searchParams.PriceMax = &priceMax
		}
	}

	products, total, err := h.productService.SearchProducts(searchParams)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	result := utils.CreatePaginationResult(products, total, params)
	utils.PaginatedResponse(c, result)
}

// GET /products/:id
func (h *ProductHandler) GetProduct(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid product ID", nil)
		return
	}

	product, err := h.productService.GetProduct(id)
	if err != nil {
		if errors.Is(err, services.ErrProductNotFound) {
			utils.NotFoundResponse(c, "Product")
			return
		}
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{"product": product})
}

// POST /products
//
// Multipart upload: the note PDF plus an optional preview image, with the
// listing metadata as form fields.
func (h *ProductHandler) CreateProduct(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		utils.BadRequestResponse(c, "Note file is required", nil)
		return
	}
	defer file.Close()

	if err := h.storageService.ValidatePDF(file); err != nil {
		utils.BadRequestResponse(c, "Only PDF files are allowed", nil)
		return
	}

	noteUpload, err := h.storageService.UploadFile(file, header, h.storageService.GetDefaultUploadOptions("notes"))
	if err != nil {
		logrus.WithError(err).Error("Note upload failed")
		utils.InternalErrorResponse(c, "Failed to store note file")
		return
	}

	var previewURL string
	if preview, previewHeader, err := c.Request.FormFile("preview"); err == nil {
		defer preview.Close()
		if err := h.storageService.ValidateImage(preview); err != nil {
			utils.BadRequestResponse(c, "Preview must be a JPEG or PNG image", nil)
			return
		}
		previewUpload, err := h.storageService.UploadFile(preview, previewHeader, h.storageService.GetDefaultUploadOptions("previews"))
		if err != nil {
			logrus.WithError(err).Error("Preview upload failed")
			utils.InternalErrorResponse(c, "Failed to store preview image")
			return
		}
		previewURL = previewUpload.URL
	}

	price, _ := strconv.ParseFloat(c.PostForm("price"), 64)
	isFree, _ := strconv.ParseBool(c.DefaultPostForm("is_free", "false"))

	req := &services.CreateProductRequest{
		Title:       c.PostForm("title"),
		Description: c.PostForm("description"),
		Subject:     c.PostForm("subject"),
		Price:       price,
		IsFree:      isFree,
		FileKey:     noteUpload.Key,
		FileURL:     noteUpload.URL,
		PreviewURL:  previewURL,
	}

	product, err := h.productService.CreateProduct(userID, req)
	if err != nil {
		// Don't leave an orphaned object behind a failed insert.
		h.storageService.DeleteFile(noteUpload.Key)
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.CreatedResponse(c, gin.H{"product": product})
}

// GET /products/:id/download
//
// Entitlement is checked before any storage URL is issued.
func (h *ProductHandler) Download(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	productID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid product ID", nil)
		return
	}

	url, err := h.productService.DownloadURL(userID, productID)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrProductNotFound):
			utils.NotFoundResponse(c, "Product")
		case errors.Is(err, services.ErrEntitlementRequired):
			utils.ForbiddenResponse(c, "Purchase this product to download it")
		default:
			logrus.WithError(err).Error("Download URL issuance failed")
			utils.InternalErrorResponse(c, "Failed to prepare download")
		}
		return
	}

	utils.SuccessResponse(c, gin.H{"url": url})
}

// POST /products/:id/claim
//
// Direct acquisition path for free products; paid products go through the
// checkout session flow instead.
func (h *ProductHandler) ClaimFree(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	productID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid product ID", nil)
		return
	}

	purchase, err := h.orderService.RecordFreePurchase(userID, productID)
	if err != nil {
		if errors.Is(err, services.ErrProductNotFound) {
			utils.NotFoundResponse(c, "Product")
			return
		}
		utils.BadRequestResponse(c, err.Error(), nil)
		return
	}

	utils.CreatedResponse(c, gin.H{"purchase": purchase})
}

// GET /products/:id/reviews
func (h *ProductHandler) GetReviews(c *gin.Context) {
	productID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid product ID", nil)
		return
	}

	reviews, average, err := h.productService.ListReviews(productID)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{
		"reviews":        reviews,
		"average_rating": average,
	})
}

// POST /products/:id/reviews
func (h *ProductHandler) CreateReview(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	productID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid product ID", nil)
		return
	}

	var req services.CreateReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	review, err := h.productService.CreateReview(userID, productID, &req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrProductNotFound):
			utils.NotFoundResponse(c, "Product")
		case errors.Is(err, services.ErrEntitlementRequired):
			utils.ForbiddenResponse(c, "Purchase this product to review it")
		default:
			utils.BadRequestResponse(c, err.Error(), nil)
		}
		return
	}

	utils.CreatedResponse(c, gin.H{"review": review})
}

// currentUserID pulls the authenticated user id set by the auth
// middleware, answering 401 when absent.
func currentUserID(c *gin.Context) (uuid.UUID, bool) {
	userIDStr, exists := utils.GetUserIDFromContext(c)
	if !exists {
		utils.UnauthorizedResponse(c, "")
		return uuid.Nil, false
	}

	userID, err := uuid.Parse(userIDStr)
	if err != nil {
		utils.BadRequestResponse(c, "Invalid user ID", nil)
		return uuid.Nil, false
	}

	return userID, true
}
