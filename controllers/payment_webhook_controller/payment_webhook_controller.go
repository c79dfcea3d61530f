package payment_webhook_controller

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joy095/treasury/clients"
	"github.com/joy095/treasury/logger"
	"github.com/joy095/treasury/models/ledger_models"
	"github.com/joy095/treasury/services/treasury_service"
	"github.com/shopspring/decimal"
)

const (
	SignatureHeader = "X-Razorpay-Signature"
	maxBodyBytes    = 1 << 20
)

type PaymentWebhookController struct {
	Treasury *treasury_service.TreasuryService
	Verifier clients.WebhookVerifier
}

func NewPaymentWebhookController(ts *treasury_service.TreasuryService, verifier clients.WebhookVerifier) (*PaymentWebhookController, error) {
	if ts == nil || verifier == nil {
		return nil, fmt.Errorf("payment webhook: treasury service and verifier are required")
	}
	return &PaymentWebhookController{Treasury: ts, Verifier: verifier}, nil
}

// paymentEvent is the body posted by the payment gateway once an order is paid.
type paymentEvent struct {
	OrderID      string           `json:"order_id"`
	StoreID      string           `json:"store_id"`
	AdminFee     *decimal.Decimal `json:"admin_fee"`
	ShippingCost *decimal.Decimal `json:"shipping_cost"`
	SellerAmount *decimal.Decimal `json:"seller_amount"`
	ProductTotal *decimal.Decimal `json:"product_total"`
}

func (e paymentEvent) toEvent() (treasury_service.PaymentEvent, error) {
	storeID, err := uuid.Parse(e.StoreID)
	if err != nil {
		return treasury_service.PaymentEvent{}, fmt.Errorf("invalid store_id %q", e.StoreID)
	}
	if e.AdminFee == nil || e.ShippingCost == nil || e.SellerAmount == nil {
		return treasury_service.PaymentEvent{}, errors.New("admin_fee, shipping_cost and seller_amount are required")
	}

	out := treasury_service.PaymentEvent{
		OrderID:      e.OrderID,
		StoreID:      storeID,
		AdminFee:     *e.AdminFee,
		ShippingCost: *e.ShippingCost,
		SellerAmount: *e.SellerAmount,
		ProductTotal: e.ProductTotal,
	}
	return out, nil
}

// HandlePayment records a paid order. Replays of an already recorded order are acknowledged
// with 200 so the gateway stops retrying.
func (pc *PaymentWebhookController) HandlePayment(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes))
	if err != nil {
		logger.ErrorLogger.Errorf("failed to read webhook body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	if !pc.Verifier.VerifyWebhookSignature(body, c.GetHeader(SignatureHeader)) {
		logger.ErrorLogger.Error("Payment webhook signature verification failed")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}

	var raw paymentEvent
	if err := json.Unmarshal(body, &raw); err != nil {
		logger.ErrorLogger.Errorf("invalid webhook payload: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}
	event, err := raw.toEvent()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid payload: " + err.Error()})
		return
	}

	payout, err := pc.Treasury.RecordPayment(c.Request.Context(), event)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, gin.H{"status": "recorded", "payout": payout})
	case errors.Is(err, treasury_service.ErrPaymentAlreadyRecorded):
		logger.WarnLogger.Warnf("Duplicate payment webhook for order %s", event.OrderID)
		c.JSON(http.StatusOK, gin.H{"status": "duplicate"})
	case errors.Is(err, treasury_service.ErrInvalidPayment):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ledger_models.ErrConcurrencyConflict):
		c.JSON(http.StatusConflict, gin.H{"error": "concurrent update, retry later"})
	case errors.Is(err, ledger_models.ErrStorageUnavailable):
		logger.ErrorLogger.Errorf("Ledger unavailable while recording order %s: %v", event.OrderID, err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger temporarily unavailable"})
	default:
		logger.ErrorLogger.Errorf("Failed to record payment for order %s: %v", event.OrderID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to record payment"})
	}
}
