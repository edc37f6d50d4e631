// internal/handlers/payment_test.go
package handlers

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"github.com/stripe/stripe-go/v74/webhook"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/studyhive/studyhive-backend/internal/config"
	"github.com/studyhive/studyhive-backend/internal/models"
	"github.com/studyhive/studyhive-backend/internal/services"
)

const testWebhookSecret = "whsec_test_secret"

type WebhookTestSuite struct {
	suite.Suite
	db     *gorm.DB
	router *gin.Engine

	seller *models.User
	buyer  *models.User
}

func (suite *WebhookTestSuite) SetupTest() {
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", suite.T().Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	assert.NoError(suite.T(), err)
	assert.NoError(suite.T(), db.AutoMigrate(
		&models.User{}, &models.Product{}, &models.Purchase{}, &models.WebhookEvent{},
	))
	suite.db = db

	cfg := &config.Config{
		Payment: config.PaymentConfig{
			StripeSecretKey:     "sk_test_dummy",
			StripeWebhookSecret: testWebhookSecret,
			PlatformFeePercent:  10.0,
		},
	}

	paymentService := services.NewPaymentService(db, cfg)
	orderService := services.NewOrderService(db)
	handler := NewPaymentHandler(paymentService, orderService, "http://localhost:5173")

	suite.router = gin.New()
	suite.router.POST("/api/webhook", handler.Webhook)

	suite.seller = suite.createUser("seller", "seller@example.com")
	suite.buyer = suite.createUser("buyer", "buyer@example.com")
}

func (suite *WebhookTestSuite) createUser(username, email string) *models.User {
	user := &models.User{Username: username, Email: email, Status: models.UserStatusActive}
	assert.NoError(suite.T(), user.SetPassword("TestPass123!"))
	assert.NoError(suite.T(), suite.db.Create(user).Error)
	return user
}

func (suite *WebhookTestSuite) createProduct() *models.Product {
	product := &models.Product{
		OwnerID:     suite.seller.ID,
		Title:       "algebra-notes",
		Description: "Condensed lecture notes.",
		Subject:     "algebra",
		Price:       10.00,
		FileKey:     "notes/algebra.pdf",
	}
	assert.NoError(suite.T(), suite.db.Create(product).Error)
	return product
}

func (suite *WebhookTestSuite) deliver(payload []byte, sigHeader string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("POST", "/api/webhook", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if sigHeader != "" {
		req.Header.Set("Stripe-Signature", sigHeader)
	}

	w := httptest.NewRecorder()
	suite.router.ServeHTTP(w, req)
	return w
}

func (suite *WebhookTestSuite) sign(payload []byte) string {
	now := time.Now()
	sig := webhook.ComputeSignature(now, payload, testWebhookSecret)
	return fmt.Sprintf("t=%d,v1=%s", now.Unix(), hex.EncodeToString(sig))
}

func (suite *WebhookTestSuite) completedPayload(eventID string, product *models.Product, email string) []byte {
	return []byte(fmt.Sprintf(
		`{"id":%q,"api_version":"2022-11-15","type":"checkout.session.completed","data":{"object":{"id":"cs_%s","amount_total":1000,"customer_details":{"email":%q},"metadata":{"productId":%q,"sellerId":%q}}}}`,
		eventID, eventID, email, product.ID, product.OwnerID,
	))
}

func (suite *WebhookTestSuite) TestMissingSignatureRejected() {
	w := suite.deliver([]byte(`{}`), "")
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)
}

func (suite *WebhookTestSuite) TestForgedSignatureRejected() {
	product := suite.createProduct()
	payload := suite.completedPayload("evt_1", product, suite.buyer.Email)

	w := suite.deliver(payload, "t=123,v1=deadbeef")
	assert.Equal(suite.T(), http.StatusBadRequest, w.Code)

	var count int64
	suite.db.Model(&models.Purchase{}).Count(&count)
	assert.Equal(suite.T(), int64(0), count)
}

func (suite *WebhookTestSuite) TestValidDeliveryRecordsPurchase() {
	product := suite.createProduct()
	payload := suite.completedPayload("evt_1", product, suite.buyer.Email)

	w := suite.deliver(payload, suite.sign(payload))
	assert.Equal(suite.T(), http.StatusOK, w.Code)

	var body map[string]interface{}
	assert.NoError(suite.T(), json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(suite.T(), true, body["received"])

	var purchase models.Purchase
	err := suite.db.Where("product_id = ? AND user_id = ?", product.ID, suite.buyer.ID).First(&purchase).Error
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), int64(1000), purchase.AmountCents)
	assert.Equal(suite.T(), int64(100), purchase.PlatformFeeCents)
}

func (suite *WebhookTestSuite) TestRedeliveryAnswersOKWithoutDuplicating() {
	product := suite.createProduct()
	payload := suite.completedPayload("evt_1", product, suite.buyer.Email)

	assert.Equal(suite.T(), http.StatusOK, suite.deliver(payload, suite.sign(payload)).Code)
	assert.Equal(suite.T(), http.StatusOK, suite.deliver(payload, suite.sign(payload)).Code)

	var count int64
	suite.db.Model(&models.Purchase{}).Count(&count)
	assert.Equal(suite.T(), int64(1), count)
}

func (suite *WebhookTestSuite) TestUnhandledEventKindAcknowledged() {
	payload := []byte(`{"id":"evt_2","api_version":"2022-11-15","type":"payment_intent.created","data":{"object":{}}}`)

	w := suite.deliver(payload, suite.sign(payload))
	assert.Equal(suite.T(), http.StatusOK, w.Code)
}

func (suite *WebhookTestSuite) TestUnmatchedCustomerAnswers5xxForRedelivery() {
	product := suite.createProduct()
	payload := suite.completedPayload("evt_1", product, "stranger@example.com")

	w := suite.deliver(payload, suite.sign(payload))
	assert.Equal(suite.T(), http.StatusInternalServerError, w.Code)

	var count int64
	suite.db.Model(&models.Purchase{}).Count(&count)
	assert.Equal(suite.T(), int64(0), count)
}

func (suite *WebhookTestSuite) TestUpstreamFailureAnswers502ForRedelivery() {
	product := suite.createProduct()

	// No inline customer email forces a lookup against the payment
	// provider, which cannot succeed here. That is an outage, not a
	// malformed event, so the delivery must come back 502, not 400.
	payload := []byte(fmt.Sprintf(
		`{"id":"evt_9","api_version":"2022-11-15","type":"checkout.session.completed","data":{"object":{"id":"cs_evt_9","amount_total":1000,"customer":"cus_missing","metadata":{"productId":%q,"sellerId":%q}}}}`,
		product.ID, product.OwnerID,
	))

	w := suite.deliver(payload, suite.sign(payload))
	assert.Equal(suite.T(), http.StatusBadGateway, w.Code)

	var count int64
	suite.db.Model(&models.Purchase{}).Count(&count)
	assert.Equal(suite.T(), int64(0), count)
}

func TestWebhookSuite(t *testing.T) {
	suite.Run(t, new(WebhookTestSuite))
}

func TestRequestOriginFallsBackToFrontendBase(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewPaymentHandler(nil, nil, "https://studyhive.example")

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Request, _ = http.NewRequest("POST", "/api/create-checkout-session", nil)
	assert.Equal(t, "https://studyhive.example", h.requestOrigin(c))

	c.Request.Header.Set("Origin", "https://app.studyhive.example")
	assert.Equal(t, "https://app.studyhive.example", h.requestOrigin(c))
}
