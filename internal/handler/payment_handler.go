package handler

import (
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"dealdesk/config"
	"dealdesk/internal/domain"
	"dealdesk/internal/middleware"
	"dealdesk/internal/models"
	"dealdesk/internal/repository"
	"dealdesk/pkg/plaidapi"
	"dealdesk/pkg/stripeapi"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type PaymentHandler struct {
	cfg            *config.Config
	paymentRepo    *repository.PaymentRepository
	payoutRepo     *repository.PayoutRepository
	walletRepo     *repository.WalletRepository
	disclosureRepo *repository.DisclosureRepository
	userRepo       *repository.UserRepository
	auditRepo      *repository.AuditLogRepository
	stripe         stripeapi.API
	plaid          plaidapi.API
}

func NewPaymentHandler(
	cfg *config.Config,
	paymentRepo *repository.PaymentRepository,
	payoutRepo *repository.PayoutRepository,
	walletRepo *repository.WalletRepository,
	disclosureRepo *repository.DisclosureRepository,
	userRepo *repository.UserRepository,
	auditRepo *repository.AuditLogRepository,
	stripe stripeapi.API,
	plaid plaidapi.API,
) *PaymentHandler {
	return &PaymentHandler{
		cfg:            cfg,
		paymentRepo:    paymentRepo,
		payoutRepo:     payoutRepo,
		walletRepo:     walletRepo,
		disclosureRepo: disclosureRepo,
		userRepo:       userRepo,
		auditRepo:      auditRepo,
		stripe:         stripe,
		plaid:          plaid,
	}
}

type createPaymentRequest struct {
	DealID      string `json:"deal_id" binding:"required"`
	AmountCents int64  `json:"amount_cents" binding:"required,min=1"`
	Currency    string `json:"currency"`
}

// CreateStripePayment initiates a card payment: a PENDING payment row is
// written before any external call, then a PaymentIntent is created against
// a found-or-created Stripe customer, so a processor-side charge can never
// exist without a local record.
func (h *PaymentHandler) CreateStripePayment(c *gin.Context) {
	claims := middleware.GetClaims(c)
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Missing required payment details", "error": err.Error()})
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}
	disclosure, fundManagerID, ok := h.requireDisclosure(c, req.DealID, claims.UserID, claims.AddedByID)
	if !ok {
		return
	}
	if existing, done := h.replayedInitiate(c); done {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Payment already initiated", "payment": existing})
		return
	}
	pay := &models.Payment{
		InvestorID:     claims.UserID,
		FundManagerID:  fundManagerID,
		DisclosureID:   &disclosure.ID,
		DealID:         req.DealID,
		AmountCents:    req.AmountCents,
		Currency:       currency,
		Method:         domain.PaymentMethodStripe,
		Status:         domain.PaymentStatusPending,
		IdempotencyKey: h.idempotencyKey(c),
	}
	if err := h.paymentRepo.Create(pay); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to process payment"})
		return
	}
	ctx := c.Request.Context()
	customer, err := h.stripe.FindOrCreateCustomer(ctx, claims.Email)
	if err != nil {
		h.failInitiated(pay, err)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": "Failed to process payment", "error": err.Error()})
		return
	}
	intent, err := h.stripe.CreatePaymentIntent(ctx, req.AmountCents, currency, customer.ID)
	if err != nil {
		h.failInitiated(pay, err)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": "Failed to process payment", "error": err.Error()})
		return
	}
	pay.PaymentIntentID = &intent.ID
	pay.CustomerID = customer.ID
	if err := h.paymentRepo.Update(pay); err != nil {
		log.Printf("[payment] record update failed after intent %s: %v", intent.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to process payment"})
		return
	}
	h.auditLog(c, claims.UserID, "payment_initiated", intent.ID)
	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"message":       "Payment processed successfully",
		"paymentIntent": intent,
	})
}

// CreateWireTransfer initiates the hosted-checkout bank payment. The
// checkout-session id is stored in the payment-intent column; session
// metadata carries the identifiers the webhook needs to find the record.
func (h *PaymentHandler) CreateWireTransfer(c *gin.Context) {
	claims := middleware.GetClaims(c)
	var req createPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Missing required payment details", "error": err.Error()})
		return
	}
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}
	disclosure, fundManagerID, ok := h.requireDisclosure(c, req.DealID, claims.UserID, claims.AddedByID)
	if !ok {
		return
	}
	if existing, done := h.replayedInitiate(c); done {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Payment already initiated", "payment": existing})
		return
	}
	pay := &models.Payment{
		InvestorID:     claims.UserID,
		FundManagerID:  fundManagerID,
		DisclosureID:   &disclosure.ID,
		DealID:         req.DealID,
		AmountCents:    req.AmountCents,
		Currency:       currency,
		Method:         domain.PaymentMethodStripe,
		Status:         domain.PaymentStatusPending,
		IdempotencyKey: h.idempotencyKey(c),
	}
	if err := h.paymentRepo.Create(pay); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to process payment"})
		return
	}
	session, err := h.stripe.CreateCheckoutSession(c.Request.Context(), stripeapi.CheckoutParams{
		AmountCents: req.AmountCents,
		Currency:    currency,
		ProductName: "Payment for Deal",
		Description: fmt.Sprintf("Deal ID: %s", req.DealID),
		SuccessURL:  h.cfg.Stripe.SuccessURL,
		CancelURL:   h.cfg.Stripe.CancelURL,
		Metadata: map[string]string{
			"dealId":        req.DealID,
			"investorId":    fmt.Sprintf("%d", claims.UserID),
			"fundManagerId": fmt.Sprintf("%d", fundManagerID),
		},
	})
	if err != nil {
		h.failInitiated(pay, err)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": "Failed to process payment", "error": err.Error()})
		return
	}
	pay.PaymentIntentID = &session.ID
	pay.CustomerID = session.Customer
	if err := h.paymentRepo.Update(pay); err != nil {
		log.Printf("[payment] record update failed after session %s: %v", session.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to process payment"})
		return
	}
	h.auditLog(c, claims.UserID, "payment_initiated", session.ID)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "Payment processed successfully",
		"session": session,
	})
}

type createPlaidPaymentRequest struct {
	DealID      string `json:"deal_id" binding:"required"`
	PublicToken string `json:"public_token" binding:"required"`
	AmountCents int64  `json:"amount_cents" binding:"required,min=1"`
	LegalName   string `json:"legal_name" binding:"required"`
}

// CreatePlaidPayment initiates an ACH debit: public-token exchange, linked
// account lookup, transfer authorization, then the transfer itself.
func (h *PaymentHandler) CreatePlaidPayment(c *gin.Context) {
	claims := middleware.GetClaims(c)
	var req createPlaidPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Missing required payment details", "error": err.Error()})
		return
	}
	disclosure, fundManagerID, ok := h.requireDisclosure(c, req.DealID, claims.UserID, claims.AddedByID)
	if !ok {
		return
	}
	if existing, done := h.replayedInitiate(c); done {
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Payment already initiated", "payment": existing})
		return
	}
	pay := &models.Payment{
		InvestorID:     claims.UserID,
		FundManagerID:  fundManagerID,
		DisclosureID:   &disclosure.ID,
		DealID:         req.DealID,
		AmountCents:    req.AmountCents,
		Currency:       "USD",
		Method:         domain.PaymentMethodPlaid,
		Status:         domain.PaymentStatusPending,
		IdempotencyKey: h.idempotencyKey(c),
	}
	if err := h.paymentRepo.Create(pay); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to process Plaid payment"})
		return
	}
	ctx := c.Request.Context()
	accessToken, err := h.plaid.ExchangePublicToken(ctx, req.PublicToken)
	if err != nil {
		h.failInitiated(pay, err)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": "Failed to process Plaid payment", "error": err.Error()})
		return
	}
	accountID, err := h.plaid.FirstAccountID(ctx, accessToken)
	if err != nil {
		h.failInitiated(pay, err)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": "Failed to process Plaid payment", "error": err.Error()})
		return
	}
	amount := fmt.Sprintf("%.2f", float64(req.AmountCents)/100)
	authID, err := h.plaid.CreateTransferAuthorization(ctx, plaidapi.AuthorizationParams{
		AccessToken: accessToken,
		AccountID:   accountID,
		Amount:      amount,
		LegalName:   req.LegalName,
	})
	if err != nil {
		h.failInitiated(pay, err)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": "Failed to process Plaid payment", "error": err.Error()})
		return
	}
	transfer, err := h.plaid.CreateTransfer(ctx, accessToken, accountID, authID, "payment")
	if err != nil {
		h.failInitiated(pay, err)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": "Failed to process Plaid payment", "error": err.Error()})
		return
	}
	pay.PlaidTransferID = &transfer.ID
	if err := h.paymentRepo.Update(pay); err != nil {
		log.Printf("[payment] record update failed after plaid transfer %s: %v", transfer.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to process Plaid payment"})
		return
	}
	h.auditLog(c, claims.UserID, "payment_initiated", transfer.ID)
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"message":  "Plaid payment processed successfully",
		"transfer": transfer,
	})
}

type updateStatusRequest struct {
	PaymentIntentID string `json:"payment_intent_id" binding:"required"`
	Status          string `json:"status" binding:"required"`
	DealID          string `json:"deal_id" binding:"required"`
}

// UpdateStatus is the client-driven confirmation step. Only a PENDING
// payment may move, and only to a terminal state.
func (h *PaymentHandler) UpdateStatus(c *gin.Context) {
	claims := middleware.GetClaims(c)
	var req updateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	status := strings.ToUpper(req.Status)
	if !domain.IsTerminalPaymentStatus(status) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"message": "Invalid status. It must be either 'COMPLETED' or 'FAILED'.",
		})
		return
	}
	pay, err := h.paymentRepo.GetByPaymentIntentID(req.PaymentIntentID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "Payment record not found."})
		return
	}
	if err := h.paymentRepo.SetStatus(pay, status); err != nil {
		if errors.Is(err, repository.ErrInvalidTransition) {
			c.JSON(http.StatusConflict, gin.H{"success": false, "message": "Payment already settled."})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Internal Server Error"})
		return
	}
	disclosure, err := h.disclosureRepo.FindByDealAndInvestor(req.DealID, claims.UserID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"message": "Disclosure record not found for the specified deal and investor.",
		})
		return
	}
	if status == domain.PaymentStatusCompleted {
		if err := h.disclosureRepo.MarkPaid(disclosure.ID, req.PaymentIntentID); err != nil {
			log.Printf("[payment] mark disclosure %d paid: %v", disclosure.ID, err)
		}
	}
	h.auditLog(c, claims.UserID, "payment_status_updated", req.PaymentIntentID)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("Payment status updated to %s.", status),
	})
}

type withdrawRequest struct {
	AmountCents int64 `json:"amount_cents" binding:"required,min=1"`
}

// Withdraw moves wallet funds to the caller's linked bank. The wallet is
// debited before any external call, so concurrent withdrawals cannot spend
// the same funds; external failure refunds the hold.
func (h *PaymentHandler) Withdraw(c *gin.Context) {
	userID := middleware.GetUserID(c)
	var req withdrawRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": err.Error()})
		return
	}
	user, err := h.userRepo.GetByID(userID)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "User not found"})
		return
	}
	if user.ConnectAccountID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "No connected account for withdrawals"})
		return
	}
	reference := fmt.Sprintf("wd-%s", uuid.New().String())
	if err := h.walletRepo.Debit(userID, req.AmountCents, domain.WalletTxnWithdrawal, reference); err != nil {
		if errors.Is(err, repository.ErrInsufficientBalance) {
			c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "Insufficient balance"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Wallet error"})
		return
	}
	ctx := c.Request.Context()
	transfer, err := h.stripe.CreateTransfer(ctx, req.AmountCents, "USD", user.ConnectAccountID)
	if err != nil {
		h.refundHold(userID, req.AmountCents, reference)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": "Failed to retrieve connected account details", "error": err.Error()})
		return
	}
	payout, err := h.stripe.CreatePayout(ctx, req.AmountCents, "USD", user.ConnectAccountID)
	if err != nil {
		h.refundHold(userID, req.AmountCents, reference)
		log.Printf("[withdraw] payout failed after transfer %s for user %d: %v", transfer.ID, userID, err)
		c.JSON(http.StatusBadGateway, gin.H{"success": false, "message": "Failed to retrieve connected account details", "error": err.Error()})
		return
	}
	record := &models.Payout{
		UserID:         userID,
		AmountCents:    req.AmountCents,
		Currency:       "USD",
		StripePayoutID: payout.ID,
		TransferID:     transfer.ID,
		Status:         domain.PayoutStatusProcessing,
	}
	if err := h.payoutRepo.Create(record); err != nil {
		log.Printf("[withdraw] payout record save failed, payout=%s user=%d: %v", payout.ID, userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to record payout"})
		return
	}
	h.auditLog(c, userID, "withdrawal_initiated", payout.ID)
	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"payout":  record,
	})
}

// ListPayments returns payments where the caller is investor or fund manager.
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	userID := middleware.GetUserID(c)
	payments, err := h.paymentRepo.ListForUser(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, payments)
}

func (h *PaymentHandler) ListPayouts(c *gin.Context) {
	userID := middleware.GetUserID(c)
	payouts, err := h.payoutRepo.ListForUser(userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, payouts)
}

// requireDisclosure enforces the payment precondition: a disclosure entry
// must exist for (deal, investor), and the investor must be linked to a
// fund manager to route the funds.
func (h *PaymentHandler) requireDisclosure(c *gin.Context, dealID string, investorID, fundManagerID uint) (*models.DealDisclosure, uint, bool) {
	disclosure, err := h.disclosureRepo.FindByDealAndInvestor(dealID, investorID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"success": false, "message": "No disclosure found for this deal and investor"})
			return nil, 0, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "message": "Failed to process payment"})
		return nil, 0, false
	}
	if fundManagerID == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "message": "No fund manager linked to this account"})
		return nil, 0, false
	}
	return disclosure, fundManagerID, true
}

// replayedInitiate short-circuits a retried initiation carrying an
// Idempotency-Key already recorded, so client retries cannot double-charge.
func (h *PaymentHandler) replayedInitiate(c *gin.Context) (*models.Payment, bool) {
	key := c.GetHeader("Idempotency-Key")
	if key == "" {
		return nil, false
	}
	existing, err := h.paymentRepo.GetByIdempotencyKey(key)
	if err != nil {
		return nil, false
	}
	return existing, true
}

func (h *PaymentHandler) idempotencyKey(c *gin.Context) string {
	if key := c.GetHeader("Idempotency-Key"); key != "" {
		return key
	}
	return uuid.New().String()
}

func (h *PaymentHandler) failInitiated(pay *models.Payment, cause error) {
	log.Printf("[payment] external call failed for payment %d: %v", pay.ID, cause)
	if err := h.paymentRepo.SetStatus(pay, domain.PaymentStatusFailed); err != nil {
		log.Printf("[payment] could not mark payment %d failed: %v", pay.ID, err)
	}
}

func (h *PaymentHandler) refundHold(userID uint, amountCents int64, reference string) {
	if err := h.walletRepo.Credit(userID, amountCents, domain.WalletTxnPayoutRefund, reference); err != nil {
		log.Printf("[withdraw] refund failed for user %d amount %d: %v", userID, amountCents, err)
	}
}

func (h *PaymentHandler) auditLog(c *gin.Context, userID uint, action, resourceID string) {
	if h.auditRepo == nil {
		return
	}
	_ = h.auditRepo.Create(&models.AuditLog{
		UserID:     &userID,
		Action:     action,
		Resource:   "payment",
		ResourceID: resourceID,
		IP:         c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	})
}
