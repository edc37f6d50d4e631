// internal/handlers/user.go
package handlers

import (
	"github.com/gin-gonic/gin"

	"github.com/studyhive/studyhive-backend/internal/services"
	"github.com/studyhive/studyhive-backend/internal/utils"
)

type UserHandler struct {
	authService    *services.AuthService
	productService *services.ProductService
}

func NewUserHandler(authService *services.AuthService, productService *services.ProductService) *UserHandler {
	return &UserHandler{
		authService:    authService,
		productService: productService,
	}
}

// GET /users/me
func (h *UserHandler) GetProfile(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	user, err := h.authService.GetUserByID(userID)
	if err != nil {
		utils.NotFoundResponse(c, "User")
		return
	}

	utils.SuccessResponse(c, gin.H{"user": user})
}

// GET /users/me/products
//
// Listings owned by the caller, including onboarding state so the
// frontend knows whether to prompt for payout setup.
func (h *UserHandler) GetMyProducts(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	user, err := h.authService.GetUserByID(userID)
	if err != nil {
		utils.NotFoundResponse(c, "User")
		return
	}

	products, err := h.productService.ListByOwner(userID)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{
		"products":           products,
		"has_payout_account": user.HasPayoutAccount(),
	})
}

// GET /users/me/purchases
func (h *UserHandler) GetMyPurchases(c *gin.Context) {
	userID, ok := currentUserID(c)
	if !ok {
		return
	}

	products, err := h.productService.ListPurchased(userID)
	if err != nil {
		utils.InternalErrorResponse(c, err.Error())
		return
	}

	utils.SuccessResponse(c, gin.H{"products": products})
}
