package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strconv"

	"dealdesk/config"
	"dealdesk/internal/domain"
	"dealdesk/internal/models"
	"dealdesk/internal/repository"
	"dealdesk/internal/ws"
	"dealdesk/pkg/stripeapi"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// PaymentWebhookHandler reconciles platform Stripe events. Every delivery is
// signature-verified, deduplicated by event id, and applied inside one
// database transaction so the payment status and the wallet balance cannot
// diverge.
type PaymentWebhookHandler struct {
	db             *gorm.DB
	paymentRepo    *repository.PaymentRepository
	walletRepo     *repository.WalletRepository
	disclosureRepo *repository.DisclosureRepository
	eventRepo      *repository.WebhookEventRepository
	auditRepo      *repository.AuditLogRepository
	hub            *ws.Hub
	cfg            *config.Config
}

func NewPaymentWebhookHandler(
	db *gorm.DB,
	paymentRepo *repository.PaymentRepository,
	walletRepo *repository.WalletRepository,
	disclosureRepo *repository.DisclosureRepository,
	eventRepo *repository.WebhookEventRepository,
	auditRepo *repository.AuditLogRepository,
	hub *ws.Hub,
	cfg *config.Config,
) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{
		db:             db,
		paymentRepo:    paymentRepo,
		walletRepo:     walletRepo,
		disclosureRepo: disclosureRepo,
		eventRepo:      eventRepo,
		auditRepo:      auditRepo,
		hub:            hub,
		cfg:            cfg,
	}
}

// Handle processes one webhook delivery. Unmatched events are acknowledged
// with 200 after logging; aborting would only make Stripe retry a delivery
// that can never succeed.
func (h *PaymentWebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	event, err := stripeapi.ConstructEvent(body, c.GetHeader("Stripe-Signature"), h.cfg.Stripe.WebhookSecret)
	if err != nil {
		log.Printf("[webhook] signature rejected: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}
	record, err := h.eventRepo.Claim(domain.WebhookProviderStripe, event.ID, event.Type)
	if err != nil {
		if errors.Is(err, repository.ErrEventSeen) {
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event store failed"})
		return
	}
	switch event.Type {
	case "checkout.session.completed":
		if err := h.settleCheckout(c, event); err != nil {
			_ = h.eventRepo.MarkFailed(record, err)
			log.Printf("[webhook] event %s unprocessable: %v", event.ID, err)
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}
	default:
		// Explicitly unhandled, not rejected.
	}
	_ = h.eventRepo.MarkProcessed(record)
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// settleCheckout applies a completed checkout session: payment COMPLETED and
// the fund manager's wallet credited amount_total, atomically.
func (h *PaymentWebhookHandler) settleCheckout(c *gin.Context, event *stripeapi.Event) error {
	var session stripeapi.CheckoutSession
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		return err
	}
	dealID := session.Metadata["dealId"]
	investorID, err := strconv.ParseUint(session.Metadata["investorId"], 10, 32)
	if err != nil || dealID == "" {
		return errors.New("session metadata missing dealId/investorId")
	}
	pay, err := h.paymentRepo.GetByDealAndInvestor(dealID, uint(investorID))
	if err != nil {
		return errors.New("payment information not found")
	}
	err = h.db.Transaction(func(tx *gorm.DB) error {
		if err := h.paymentRepo.SetStatusTx(tx, pay, domain.PaymentStatusCompleted); err != nil {
			return err
		}
		return h.walletRepo.CreditTx(tx, pay.FundManagerID, session.AmountTotal, domain.WalletTxnDealPayment, session.PaymentIntent)
	})
	if err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			// Already settled through another path; nothing to apply.
			return nil
		}
		return err
	}
	if pay.DisclosureID != nil {
		if err := h.disclosureRepo.MarkPaid(*pay.DisclosureID, session.PaymentIntent); err != nil {
			log.Printf("[webhook] mark disclosure %d paid: %v", *pay.DisclosureID, err)
		}
	}
	if h.auditRepo != nil {
		_ = h.auditRepo.Create(&models.AuditLog{
			UserID:     &pay.FundManagerID,
			Action:     "payment_completed",
			Resource:   "payment",
			ResourceID: session.PaymentIntent,
			IP:         c.ClientIP(),
			UserAgent:  c.Request.UserAgent(),
		})
	}
	if h.hub != nil {
		h.hub.BroadcastToUser(pay.FundManagerID, ws.PaymentEvent{
			Type:        ws.EventPaymentCompleted,
			PaymentID:   pay.ID,
			Status:      pay.Status,
			AmountCents: session.AmountTotal,
		})
	}
	return nil
}
