// internal/handlers/payment.go
package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/studyhive/studyhive-backend/internal/services"
	"github.com/studyhive/studyhive-backend/internal/utils"
)

type PaymentHandler struct {
	paymentService *services.PaymentService
	orderService   *services.OrderService
	frontendBase   string
}

func NewPaymentHandler(paymentService *services.PaymentService, orderService *services.OrderService, frontendBase string) *PaymentHandler {
	return &PaymentHandler{
		paymentService: paymentService,
		orderService:   orderService,
		frontendBase:   frontendBase,
	}
}

// POST /api/create-connect-account
func (h *PaymentHandler) CreateConnectAccount(c *gin.Context) {
	var req struct {
		Email string `json:"email" validate:"required,email"`
	}

	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	url, err := h.paymentService.CreateConnectAccount(req.Email, h.requestOrigin(c))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrUserNotFound):
			utils.NotFoundResponse(c, "User")
		case services.IsUpstreamError(err):
			logrus.WithError(err).Error("Connect account provisioning failed upstream")
			utils.BadGatewayResponse(c, "Payment provider rejected account creation")
		default:
			logrus.WithError(err).Error("Connect account provisioning failed")
			utils.InternalErrorResponse(c, "Failed to create payment account")
		}
		return
	}

	utils.SuccessResponse(c, gin.H{"url": url})
}

// POST /api/create-checkout-session
func (h *PaymentHandler) CreateCheckoutSession(c *gin.Context) {
	var req services.CheckoutSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "Invalid request body", err.Error())
		return
	}

	if validationErrors := utils.GetValidationErrors(utils.ValidateStruct(&req)); len(validationErrors) > 0 {
		utils.ValidationErrorResponse(c, validationErrors)
		return
	}

	sessionID, err := h.paymentService.CreateCheckoutSession(&req, h.requestOrigin(c))
	if err != nil {
		switch {
		case errors.Is(err, services.ErrProductNotFound):
			utils.NotFoundResponse(c, "Product")
		case errors.Is(err, services.ErrSellerNotOnboarded):
			utils.ConflictResponse(c, "Seller has not set up their payment account")
		case errors.Is(err, services.ErrFreeProduct):
			utils.BadRequestResponse(c, "Free products do not require checkout", nil)
		case services.IsUpstreamError(err):
			logrus.WithError(err).Error("Checkout session creation failed upstream")
			utils.BadGatewayResponse(c, "Payment provider rejected checkout session")
		default:
			logrus.WithError(err).Error("Checkout session creation failed")
			utils.InternalErrorResponse(c, "Failed to create checkout session")
		}
		return
	}

	utils.SuccessResponse(c, gin.H{"id": sessionID})
}

// POST /api/webhook
//
// The body is read raw and verified byte-for-byte before any parsing. A
// 200 means "event handled"; any processing failure answers 5xx so the
// processor redelivers. Collapsing the two would silently drop purchases.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.String(http.StatusBadRequest, "failed to read request body")
		return
	}

	event, err := h.paymentService.VerifyWebhook(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		if services.IsSignatureInvalid(err) {
			logrus.WithError(err).WithField("ip", c.ClientIP()).
				Warn("Webhook signature verification failed, possible tampering")
			c.String(http.StatusBadRequest, "invalid signature")
			return
		}
		// Upstream lookups (customer email resolution) failing is not a
		// malformed event; a 502 tells the processor to redeliver.
		if services.IsUpstreamError(err) {
			logrus.WithError(err).Error("Webhook verification blocked on payment provider")
			c.String(http.StatusBadGateway, "payment provider unavailable")
			return
		}
		logrus.WithError(err).Error("Webhook parsing failed")
		c.String(http.StatusBadRequest, "malformed event")
		return
	}

	// Event kinds we do not act on are still acknowledged.
	if event == nil {
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}

	if err := h.orderService.RecordPurchase(event); err != nil {
		logrus.WithError(err).WithField("event_id", event.EventID).
			Error("Purchase recording failed, requesting redelivery")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "purchase recording failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// requestOrigin derives the redirect base for checkout and onboarding
// links from the calling page, falling back to the configured frontend.
func (h *PaymentHandler) requestOrigin(c *gin.Context) string {
	if origin := c.GetHeader("Origin"); origin != "" {
		return origin
	}
	return h.frontendBase
}
