// internal/services/order_service.go
package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/studyhive/studyhive-backend/internal/models"
)

// OrderService records purchases from verified payment events. Webhook
// delivery is at-least-once, so both the event ledger and the purchase
// insert are idempotent: unique (provider, event id) and ON CONFLICT
// (product_id, user_id) DO NOTHING.
type OrderService struct {
	db *gorm.DB
}

const webhookProvider = "stripe"

func NewOrderService(db *gorm.DB) *OrderService {
	return &OrderService{db: db}
}

// RecordPurchase resolves the paying customer to an internal user and
// inserts the purchase row. A customer email with no matching user is an
// error, not a silent drop: the HTTP layer answers 5xx so the processor
// redelivers once the account exists or support intervenes.
func (s *OrderService) RecordPurchase(event *PaymentCompletedEvent) error {
	record, err := s.ensureEventRecord(event)
	if err != nil {
		return err
	}
	if record.ProcessedAt != nil {
		// Redelivery of an event we already handled.
		return nil
	}

	var user models.User
	if err := s.db.Where("email = ?", event.CustomerEmail).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			s.markEventFailed(record, fmt.Sprintf("no user for customer email %s", event.CustomerEmail))
			return ErrCustomerUnmatched
		}
		return &PersistenceError{Op: "lookup customer", Err: err}
	}

	purchase := &models.Purchase{
		ProductID:         event.ProductID,
		UserID:            user.ID,
		CheckoutSessionID: event.SessionID,
		AmountCents:       event.AmountTotalCents,
		PlatformFeeCents:  event.PlatformFeeCents,
	}

	err = s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(purchase).Error
	if err != nil {
		s.markEventFailed(record, err.Error())
		return &PersistenceError{Op: "insert purchase", Err: err}
	}

	now := time.Now()
	if err := s.db.Model(record).Updates(map[string]interface{}{
		"processed_at":     &now,
		"processing_error": "",
	}).Error; err != nil {
		// The purchase row exists and the next redelivery hits the unique
		// index, so failing to stamp the ledger is recoverable.
		logrus.WithError(err).WithField("event_id", event.EventID).
			Warn("Failed to mark webhook event processed")
	}

	logrus.WithFields(logrus.Fields{
		"event_id":   event.EventID,
		"session_id": event.SessionID,
		"product_id": event.ProductID,
		"user_id":    user.ID,
	}).Info("Purchase recorded")

	return nil
}

// RecordFreePurchase is the direct path for free products; no checkout
// session is ever created for them. Idempotent under duplicate calls.
func (s *OrderService) RecordFreePurchase(userID, productID uuid.UUID) (*models.Purchase, error) {
	var product models.Product
	if err := s.db.First(&product, productID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, &PersistenceError{Op: "lookup product", Err: err}
	}

	if !product.IsFree {
		return nil, fmt.Errorf("product %s is not free", productID)
	}

	purchase := &models.Purchase{
		ProductID: productID,
		UserID:    userID,
	}

	result := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "product_id"}, {Name: "user_id"}},
		DoNothing: true,
	}).Create(purchase)
	if result.Error != nil {
		return nil, &PersistenceError{Op: "insert free purchase", Err: result.Error}
	}

	// On a repeat claim the insert is a no-op; hand back the stored row
	// rather than the unsaved struct with its never-persisted id.
	if result.RowsAffected == 0 {
		var existing models.Purchase
		err := s.db.Where("product_id = ? AND user_id = ?", productID, userID).
			First(&existing).Error
		if err != nil {
			return nil, &PersistenceError{Op: "load existing free purchase", Err: err}
		}
		return &existing, nil
	}

	return purchase, nil
}

func (s *OrderService) ensureEventRecord(event *PaymentCompletedEvent) (*models.WebhookEvent, error) {
	record := &models.WebhookEvent{
		Provider:        webhookProvider,
		ProviderEventID: event.EventID,
		EventType:       "checkout.session.completed",
		PayloadJSON:     string(event.RawPayload),
		SignatureValid:  true,
	}

	err := s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider"}, {Name: "provider_event_id"}},
		DoNothing: true,
	}).Create(record).Error
	if err != nil {
		return nil, &PersistenceError{Op: "record webhook event", Err: err}
	}

	// Re-read so a redelivery sees the state of the first delivery.
	var existing models.WebhookEvent
	err = s.db.Where("provider = ? AND provider_event_id = ?", webhookProvider, event.EventID).
		First(&existing).Error
	if err != nil {
		return nil, &PersistenceError{Op: "load webhook event", Err: err}
	}

	return &existing, nil
}

func (s *OrderService) markEventFailed(record *models.WebhookEvent, reason string) {
	if err := s.db.Model(record).Update("processing_error", reason).Error; err != nil {
		logrus.WithError(err).Warn("Failed to record webhook processing error")
	}
}
