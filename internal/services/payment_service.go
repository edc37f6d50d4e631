// internal/services/payment_service.go
package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stripe/stripe-go/v74"
	"github.com/stripe/stripe-go/v74/account"
	"github.com/stripe/stripe-go/v74/accountlink"
	"github.com/stripe/stripe-go/v74/checkout/session"
	"github.com/stripe/stripe-go/v74/customer"
	"github.com/stripe/stripe-go/v74/webhook"
	"gorm.io/gorm"

	"github.com/studyhive/studyhive-backend/internal/config"
	"github.com/studyhive/studyhive-backend/internal/models"
)

// PaymentService wraps the Stripe Connect flow: seller onboarding,
// destination-charge checkout sessions, and webhook verification. Money is
// split by the processor in a single transaction; this service never moves
// funds in two steps.
type PaymentService struct {
	db  *gorm.DB
	cfg *config.Config
}

type CheckoutSessionRequest struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	// Price and Title come from the client for display compatibility only.
	// The charge amount is always re-derived from the stored product.
	Price float64 `json:"price,omitempty"`
	Title string  `json:"title,omitempty"`
}

// PaymentCompletedEvent is the typed result of a verified
// checkout-completed webhook delivery.
type PaymentCompletedEvent struct {
	EventID          string
	SessionID        string
	ProductID        uuid.UUID
	SellerID         uuid.UUID
	CustomerEmail    string
	AmountTotalCents int64
	PlatformFeeCents int64
	RawPayload       []byte
}

func NewPaymentService(db *gorm.DB, cfg *config.Config) *PaymentService {
	// Initialize Stripe
	stripe.Key = cfg.Payment.StripeSecretKey

	return &PaymentService{
		db:  db,
		cfg: cfg,
	}
}

// ComputePlatformFee returns the platform's cut of an amount in minor
// units. feePercent is a percentage in [0,100).
func ComputePlatformFee(amountCents int64, feePercent float64) int64 {
	return int64(math.Round(float64(amountCents) * feePercent / 100))
}

// AmountToCents converts a decimal price to minor units.
func AmountToCents(price float64) int64 {
	return int64(math.Round(price * 100))
}

// CreateConnectAccount returns an onboarding URL for the seller identified
// by email. A new Express account is created only when none is recorded:
// sellers with a stored account id just get a fresh link, so retries after
// a failed link creation never orphan the account already persisted. If a
// fresh account id cannot be persisted the external account is deleted
// again so no orphan remains unrecorded.
func (s *PaymentService) CreateConnectAccount(email, origin string) (string, error) {
	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrUserNotFound
		}
		return "", &PersistenceError{Op: "lookup user", Err: err}
	}

	var accountID string
	if user.HasPayoutAccount() {
		accountID = *user.StripeAccountID
	} else {
		acct, err := account.New(&stripe.AccountParams{
			Type:  stripe.String(string(stripe.AccountTypeExpress)),
			Email: stripe.String(email),
			Capabilities: &stripe.AccountCapabilitiesParams{
				CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{
					Requested: stripe.Bool(true),
				},
				Transfers: &stripe.AccountCapabilitiesTransfersParams{
					Requested: stripe.Bool(true),
				},
			},
		})
		if err != nil {
			return "", &UpstreamError{Op: "create connect account", Err: err}
		}

		if err := s.db.Model(&user).Update("stripe_account_id", acct.ID).Error; err != nil {
			// Compensating rollback: never leave an external account that no
			// user row points to.
			if _, delErr := account.Del(acct.ID, nil); delErr != nil {
				logrus.WithError(delErr).WithField("account_id", acct.ID).
					Error("Failed to roll back orphaned connect account")
			}
			return "", &PersistenceError{Op: "save connect account id", Err: err}
		}
		accountID = acct.ID
	}

	link, err := accountlink.New(&stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(origin + "/profile"),
		ReturnURL:  stripe.String(origin + "/profile"),
		Type:       stripe.String("account_onboarding"),
	})
	if err != nil {
		return "", &UpstreamError{Op: "create onboarding link", Err: err}
	}

	return link.URL, nil
}

// CreateCheckoutSession builds a single-line-item destination charge for
// the product. The price is re-fetched server-side; the caller-supplied
// price is never used as the charge amount.
func (s *PaymentService) CreateCheckoutSession(req *CheckoutSessionRequest, origin string) (string, error) {
	var product models.Product
	if err := s.db.First(&product, req.ProductID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrProductNotFound
		}
		return "", &PersistenceError{Op: "lookup product", Err: err}
	}

	if product.IsFree {
		return "", ErrFreeProduct
	}

	var seller models.User
	if err := s.db.First(&seller, product.OwnerID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrSellerNotOnboarded
		}
		return "", &PersistenceError{Op: "lookup seller", Err: err}
	}

	if !seller.HasPayoutAccount() {
		return "", ErrSellerNotOnboarded
	}

	amountCents := AmountToCents(product.Price)
	platformFee := ComputePlatformFee(amountCents, s.cfg.Payment.PlatformFeePercent)

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(string(stripe.CurrencyUSD)),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(product.Title),
					},
					UnitAmount: stripe.Int64(amountCents),
				},
				Quantity: stripe.Int64(1),
			},
		},
		Mode:       stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL: stripe.String(fmt.Sprintf("%s/product/%s?success=true", origin, product.ID)),
		CancelURL:  stripe.String(fmt.Sprintf("%s/product/%s?canceled=true", origin, product.ID)),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			ApplicationFeeAmount: stripe.Int64(platformFee),
			TransferData: &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{
				Destination: seller.StripeAccountID,
			},
		},
	}
	params.AddMetadata("productId", product.ID.String())
	params.AddMetadata("sellerId", product.OwnerID.String())
	params.AddMetadata("platformFeeCents", strconv.FormatInt(platformFee, 10))

	sess, err := session.New(params)
	if err != nil {
		return "", &UpstreamError{Op: "create checkout session", Err: err}
	}

	return sess.ID, nil
}

// VerifyWebhook checks the signature over the raw, unparsed body and
// returns a typed event for checkout-completed deliveries. Other event
// kinds verify successfully but yield a nil event (acknowledged, no
// action). The body must never be re-serialized before verification.
func (s *PaymentService) VerifyWebhook(payload []byte, sigHeader string) (*PaymentCompletedEvent, error) {
	event, err := webhook.ConstructEvent(payload, sigHeader, s.cfg.Payment.StripeWebhookSecret)
	if err != nil {
		return nil, &SignatureInvalidError{Err: err}
	}

	if event.Type != "checkout.session.completed" {
		return nil, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("failed to parse checkout session payload: %w", err)
	}

	productID, err := uuid.Parse(sess.Metadata["productId"])
	if err != nil {
		return nil, fmt.Errorf("invalid productId in session metadata: %w", err)
	}

	sellerID, err := uuid.Parse(sess.Metadata["sellerId"])
	if err != nil {
		return nil, fmt.Errorf("invalid sellerId in session metadata: %w", err)
	}

	email, err := s.resolveCustomerEmail(&sess)
	if err != nil {
		return nil, err
	}

	amount := sess.AmountTotal
	// The fee agreed at checkout travels in the session metadata; sessions
	// created before the metadata key existed fall back to the configured
	// percent.
	fee := ComputePlatformFee(amount, s.cfg.Payment.PlatformFeePercent)
	if v, parseErr := strconv.ParseInt(sess.Metadata["platformFeeCents"], 10, 64); parseErr == nil {
		fee = v
	}

	return &PaymentCompletedEvent{
		EventID:          event.ID,
		SessionID:        sess.ID,
		ProductID:        productID,
		SellerID:         sellerID,
		CustomerEmail:    email,
		AmountTotalCents: amount,
		PlatformFeeCents: fee,
		RawPayload:       payload,
	}, nil
}

func (s *PaymentService) resolveCustomerEmail(sess *stripe.CheckoutSession) (string, error) {
	if sess.CustomerDetails != nil && sess.CustomerDetails.Email != "" {
		return sess.CustomerDetails.Email, nil
	}

	if sess.Customer == nil || sess.Customer.ID == "" {
		return "", fmt.Errorf("checkout session %s carries no customer identity", sess.ID)
	}

	cust, err := customer.Get(sess.Customer.ID, nil)
	if err != nil {
		return "", &UpstreamError{Op: "retrieve customer", Err: err}
	}

	return cust.Email, nil
}
