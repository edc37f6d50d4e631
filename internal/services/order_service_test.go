// internal/services/order_service_test.go
package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"
	"gorm.io/gorm"

	"github.com/studyhive/studyhive-backend/internal/models"
)

type OrderServiceTestSuite struct {
	suite.Suite
	db      *gorm.DB
	service *OrderService
}

func (suite *OrderServiceTestSuite) SetupTest() {
	suite.db = newTestDB(suite.T())
	suite.service = NewOrderService(suite.db)
}

func (suite *OrderServiceTestSuite) completedEvent(eventID string, product *models.Product, email string) *PaymentCompletedEvent {
	return &PaymentCompletedEvent{
		EventID:          eventID,
		SessionID:        "cs_" + eventID,
		ProductID:        product.ID,
		SellerID:         product.OwnerID,
		CustomerEmail:    email,
		AmountTotalCents: 1000,
		PlatformFeeCents: 100,
		RawPayload:       []byte(`{"id":"` + eventID + `"}`),
	}
}

func (suite *OrderServiceTestSuite) TestRecordPurchase() {
	seller := createTestUser(suite.T(), suite.db, "seller", "seller@example.com")
	buyer := createTestUser(suite.T(), suite.db, "buyer", "buyer@example.com")
	product := createTestProduct(suite.T(), suite.db, seller, "algebra-notes", 10.00, false)

	err := suite.service.RecordPurchase(suite.completedEvent("evt_1", product, buyer.Email))
	assert.NoError(suite.T(), err)

	var purchase models.Purchase
	err = suite.db.Where("product_id = ? AND user_id = ?", product.ID, buyer.ID).First(&purchase).Error
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), "cs_evt_1", purchase.CheckoutSessionID)
	assert.Equal(suite.T(), int64(1000), purchase.AmountCents)
	assert.Equal(suite.T(), int64(100), purchase.PlatformFeeCents)

	var record models.WebhookEvent
	err = suite.db.Where("provider_event_id = ?", "evt_1").First(&record).Error
	assert.NoError(suite.T(), err)
	assert.NotNil(suite.T(), record.ProcessedAt)
}

func (suite *OrderServiceTestSuite) TestRedeliveredEventRecordsOnePurchase() {
	seller := createTestUser(suite.T(), suite.db, "seller", "seller@example.com")
	buyer := createTestUser(suite.T(), suite.db, "buyer", "buyer@example.com")
	product := createTestProduct(suite.T(), suite.db, seller, "algebra-notes", 10.00, false)

	event := suite.completedEvent("evt_1", product, buyer.Email)

	assert.NoError(suite.T(), suite.service.RecordPurchase(event))
	assert.NoError(suite.T(), suite.service.RecordPurchase(event))
	assert.NoError(suite.T(), suite.service.RecordPurchase(event))

	var count int64
	suite.db.Model(&models.Purchase{}).
		Where("product_id = ? AND user_id = ?", product.ID, buyer.ID).
		Count(&count)
	assert.Equal(suite.T(), int64(1), count)

	var eventCount int64
	suite.db.Model(&models.WebhookEvent{}).
		Where("provider_event_id = ?", "evt_1").
		Count(&eventCount)
	assert.Equal(suite.T(), int64(1), eventCount)
}

func (suite *OrderServiceTestSuite) TestDistinctEventsForSameBuyerAndProductStayIdempotent() {
	seller := createTestUser(suite.T(), suite.db, "seller", "seller@example.com")
	buyer := createTestUser(suite.T(), suite.db, "buyer", "buyer@example.com")
	product := createTestProduct(suite.T(), suite.db, seller, "algebra-notes", 10.00, false)

	// Two different checkout sessions for the same pair still land on the
	// purchase table's unique index.
	assert.NoError(suite.T(), suite.service.RecordPurchase(suite.completedEvent("evt_1", product, buyer.Email)))
	assert.NoError(suite.T(), suite.service.RecordPurchase(suite.completedEvent("evt_2", product, buyer.Email)))

	var count int64
	suite.db.Model(&models.Purchase{}).
		Where("product_id = ? AND user_id = ?", product.ID, buyer.ID).
		Count(&count)
	assert.Equal(suite.T(), int64(1), count)
}

func (suite *OrderServiceTestSuite) TestUnmatchedCustomerEmailFailsWithoutPurchase() {
	seller := createTestUser(suite.T(), suite.db, "seller", "seller@example.com")
	product := createTestProduct(suite.T(), suite.db, seller, "algebra-notes", 10.00, false)

	err := suite.service.RecordPurchase(suite.completedEvent("evt_1", product, "stranger@example.com"))
	assert.ErrorIs(suite.T(), err, ErrCustomerUnmatched)

	var count int64
	suite.db.Model(&models.Purchase{}).Count(&count)
	assert.Equal(suite.T(), int64(0), count)

	// The failure is recorded on the ledger so the redelivery can succeed
	// once the account exists.
	var record models.WebhookEvent
	err = suite.db.Where("provider_event_id = ?", "evt_1").First(&record).Error
	assert.NoError(suite.T(), err)
	assert.Nil(suite.T(), record.ProcessedAt)
	assert.NotEmpty(suite.T(), record.ProcessingError)
}

func (suite *OrderServiceTestSuite) TestRedeliveryAfterAccountCreatedSucceeds() {
	seller := createTestUser(suite.T(), suite.db, "seller", "seller@example.com")
	product := createTestProduct(suite.T(), suite.db, seller, "algebra-notes", 10.00, false)

	event := suite.completedEvent("evt_1", product, "latecomer@example.com")

	err := suite.service.RecordPurchase(event)
	assert.ErrorIs(suite.T(), err, ErrCustomerUnmatched)

	buyer := createTestUser(suite.T(), suite.db, "latecomer", "latecomer@example.com")

	assert.NoError(suite.T(), suite.service.RecordPurchase(event))

	var count int64
	suite.db.Model(&models.Purchase{}).
		Where("product_id = ? AND user_id = ?", product.ID, buyer.ID).
		Count(&count)
	assert.Equal(suite.T(), int64(1), count)
}

func (suite *OrderServiceTestSuite) TestRecordFreePurchase() {
	seller := createTestUser(suite.T(), suite.db, "seller", "seller@example.com")
	buyer := createTestUser(suite.T(), suite.db, "buyer", "buyer@example.com")
	product := createTestProduct(suite.T(), suite.db, seller, "intro-notes", 0, true)

	purchase, err := suite.service.RecordFreePurchase(buyer.ID, product.ID)
	assert.NoError(suite.T(), err)
	assert.NotNil(suite.T(), purchase)
	assert.Equal(suite.T(), int64(0), purchase.AmountCents)

	// Claiming again must not create a second row, and must hand back the
	// stored purchase rather than a never-persisted id.
	repeat, err := suite.service.RecordFreePurchase(buyer.ID, product.ID)
	assert.NoError(suite.T(), err)
	assert.Equal(suite.T(), purchase.ID, repeat.ID)

	var stored models.Purchase
	assert.NoError(suite.T(), suite.db.First(&stored, repeat.ID).Error)

	var count int64
	suite.db.Model(&models.Purchase{}).
		Where("product_id = ? AND user_id = ?", product.ID, buyer.ID).
		Count(&count)
	assert.Equal(suite.T(), int64(1), count)
}

func (suite *OrderServiceTestSuite) TestRecordFreePurchaseRejectsPaidProduct() {
	seller := createTestUser(suite.T(), suite.db, "seller", "seller@example.com")
	buyer := createTestUser(suite.T(), suite.db, "buyer", "buyer@example.com")
	product := createTestProduct(suite.T(), suite.db, seller, "algebra-notes", 10.00, false)

	_, err := suite.service.RecordFreePurchase(buyer.ID, product.ID)
	assert.Error(suite.T(), err)
}

func (suite *OrderServiceTestSuite) TestRecordFreePurchaseRejectsUnknownProduct() {
	buyer := createTestUser(suite.T(), suite.db, "buyer", "buyer@example.com")

	_, err := suite.service.RecordFreePurchase(buyer.ID, uuid.New())
	assert.ErrorIs(suite.T(), err, ErrProductNotFound)
}

func TestOrderServiceSuite(t *testing.T) {
	suite.Run(t, new(OrderServiceTestSuite))
}
