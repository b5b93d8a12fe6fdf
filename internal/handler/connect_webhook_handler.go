package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"dealdesk/config"
	"dealdesk/internal/domain"
	"dealdesk/internal/repository"
	"dealdesk/internal/ws"
	"dealdesk/pkg/stripeapi"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ConnectWebhookHandler reconciles events from connected accounts. The
// wallet was already debited when the withdrawal was initiated, so
// payout.paid only settles the record; payout.failed refunds the hold.
type ConnectWebhookHandler struct {
	db         *gorm.DB
	payoutRepo *repository.PayoutRepository
	walletRepo *repository.WalletRepository
	userRepo   *repository.UserRepository
	eventRepo  *repository.WebhookEventRepository
	hub        *ws.Hub
	cfg        *config.Config
}

func NewConnectWebhookHandler(
	db *gorm.DB,
	payoutRepo *repository.PayoutRepository,
	walletRepo *repository.WalletRepository,
	userRepo *repository.UserRepository,
	eventRepo *repository.WebhookEventRepository,
	hub *ws.Hub,
	cfg *config.Config,
) *ConnectWebhookHandler {
	return &ConnectWebhookHandler{
		db:         db,
		payoutRepo: payoutRepo,
		walletRepo: walletRepo,
		userRepo:   userRepo,
		eventRepo:  eventRepo,
		hub:        hub,
		cfg:        cfg,
	}
}

func (h *ConnectWebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	event, err := stripeapi.ConstructEvent(body, c.GetHeader("Stripe-Signature"), h.cfg.Stripe.ConnectWebhookSecret)
	if err != nil {
		log.Printf("[connect webhook] signature rejected: %v", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
		return
	}
	record, err := h.eventRepo.Claim(domain.WebhookProviderStripeConnect, event.ID, event.Type)
	if err != nil {
		if errors.Is(err, repository.ErrEventSeen) {
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "event store failed"})
		return
	}
	switch event.Type {
	case "payout.paid", "payout.failed":
		if err := h.settlePayout(event); err != nil {
			_ = h.eventRepo.MarkFailed(record, err)
			log.Printf("[connect webhook] event %s unprocessable: %v", event.ID, err)
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}
	default:
		// Explicitly unhandled, not rejected.
	}
	_ = h.eventRepo.MarkProcessed(record)
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func (h *ConnectWebhookHandler) settlePayout(event *stripeapi.Event) error {
	var payoutObj stripeapi.PayoutEvent
	if err := json.Unmarshal(event.Data.Object, &payoutObj); err != nil {
		return err
	}
	user, err := h.userRepo.GetByConnectAccountID(event.Account)
	if err != nil {
		return errors.New("no user for connected account " + event.Account)
	}
	payout, err := h.payoutRepo.GetByStripePayoutID(payoutObj.ID)
	if err != nil {
		return errors.New("payout record not found for " + payoutObj.ID)
	}
	if payout.UserID != user.ID {
		return errors.New("payout " + payoutObj.ID + " does not belong to account owner")
	}
	eventType := ws.EventPayoutCompleted
	err = h.db.Transaction(func(tx *gorm.DB) error {
		if event.Type == "payout.paid" {
			_, err := h.payoutRepo.MarkCompleted(tx, payout)
			return err
		}
		eventType = ws.EventPayoutFailed
		flipped, err := h.payoutRepo.MarkFailed(tx, payout)
		if err != nil {
			return err
		}
		if !flipped {
			// Already terminal; do not refund twice.
			return nil
		}
		return h.walletRepo.CreditTx(tx, payout.UserID, payout.AmountCents, domain.WalletTxnPayoutRefund, payoutObj.ID)
	})
	if err != nil {
		return err
	}
	if h.hub != nil {
		h.hub.BroadcastToUser(payout.UserID, ws.PaymentEvent{
			Type:        eventType,
			PayoutID:    payout.ID,
			Status:      payout.Status,
			AmountCents: payout.AmountCents,
		})
	}
	return nil
}
