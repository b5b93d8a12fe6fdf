package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"dealdesk/internal/auth"
	"dealdesk/internal/domain"
	"dealdesk/internal/models"
	"dealdesk/internal/repository"
	"dealdesk/pkg/stripeapi"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type paymentFixture struct {
	db          *gorm.DB
	router      *gin.Engine
	stripe      *fakeStripe
	plaid       *fakePlaid
	paymentRepo *repository.PaymentRepository
	payoutRepo  *repository.PayoutRepository
	walletRepo  *repository.WalletRepository

	investor    *models.User
	fundManager *models.User
	disclosure  *models.DealDisclosure
}

func (f *paymentFixture) investorClaims() *auth.Claims {
	return &auth.Claims{
		UserID:    f.investor.ID,
		Email:     f.investor.Email,
		Role:      domain.RoleInvestor,
		AddedByID: f.fundManager.ID,
	}
}

func (f *paymentFixture) managerClaims() *auth.Claims {
	return &auth.Claims{
		UserID: f.fundManager.ID,
		Email:  f.fundManager.Email,
		Role:   domain.RoleFundManager,
	}
}

func newPaymentFixture(t *testing.T) *paymentFixture {
	t.Helper()
	db := testDB(t)

	f := &paymentFixture{
		db:          db,
		stripe:      &fakeStripe{},
		plaid:       &fakePlaid{},
		paymentRepo: repository.NewPaymentRepository(db),
		payoutRepo:  repository.NewPayoutRepository(db),
		walletRepo:  repository.NewWalletRepository(db),
	}

	f.fundManager = &models.User{Name: "Fern Manager", Email: "fm@example.com", Role: domain.RoleFundManager, ConnectAccountID: "acct_fm"}
	require.NoError(t, db.Create(f.fundManager).Error)
	f.investor = &models.User{Name: "Ira Investor", Email: "investor@example.com", Role: domain.RoleInvestor, AddedByID: &f.fundManager.ID}
	require.NoError(t, db.Create(f.investor).Error)

	disclosureRepo := repository.NewDisclosureRepository(db)
	f.disclosure = &models.DealDisclosure{
		DealID:       "deal-1",
		DocumentURL:  "https://docs.example/deal-1.pdf",
		DocumentType: "subscription_agreement",
		CreatedByID:  f.fundManager.ID,
	}
	require.NoError(t, disclosureRepo.Create(f.disclosure))
	require.NoError(t, disclosureRepo.AddInvestor(&models.DisclosureInvestor{
		DisclosureID: f.disclosure.ID,
		InvestorID:   f.investor.ID,
		SoftCommit:   domain.SoftCommitCommitted,
		Status:       domain.SignatureSigned,
	}))

	h := NewPaymentHandler(
		testConfig(),
		f.paymentRepo,
		f.payoutRepo,
		f.walletRepo,
		disclosureRepo,
		repository.NewUserRepository(db),
		repository.NewAuditLogRepository(db),
		f.stripe,
		f.plaid,
	)

	r := gin.New()
	r.POST("/payments/stripe-create", asUser(f.investorClaims()), h.CreateStripePayment)
	r.POST("/payments/stripe-wire-transfer", asUser(f.investorClaims()), h.CreateWireTransfer)
	r.POST("/payments/plaid-create", asUser(f.investorClaims()), h.CreatePlaidPayment)
	r.POST("/payments/update-status-stripe", asUser(f.investorClaims()), h.UpdateStatus)
	r.POST("/payments/withdraw-money", asUser(f.managerClaims()), h.Withdraw)
	f.router = r
	return f
}

func (f *paymentFixture) post(t *testing.T, path string, body map[string]interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestCreateStripePaymentRequiresDisclosure(t *testing.T) {
	f := newPaymentFixture(t)

	w := f.post(t, "/payments/stripe-create", map[string]interface{}{
		"deal_id":      "deal-without-disclosure",
		"amount_cents": 10000,
	}, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "No disclosure found")

	var count int64
	f.db.Model(&models.Payment{}).Count(&count)
	assert.Zero(t, count, "no record may be written before the disclosure check passes")
}

func TestCreateStripePaymentRejectsUnsignedDisclosure(t *testing.T) {
	f := newPaymentFixture(t)

	disclosureRepo := repository.NewDisclosureRepository(f.db)
	unsigned := &models.DealDisclosure{
		DealID:       "deal-2",
		DocumentURL:  "https://docs.example/deal-2.pdf",
		DocumentType: "subscription_agreement",
		CreatedByID:  f.fundManager.ID,
	}
	require.NoError(t, disclosureRepo.Create(unsigned))
	require.NoError(t, disclosureRepo.AddInvestor(&models.DisclosureInvestor{
		DisclosureID: unsigned.ID,
		InvestorID:   f.investor.ID,
		SoftCommit:   domain.SoftCommitCommitted,
		Status:       domain.SignatureUnsigned,
	}))

	w := f.post(t, "/payments/stripe-create", map[string]interface{}{
		"deal_id":      "deal-2",
		"amount_cents": 10000,
	}, nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "No disclosure found")

	var count int64
	f.db.Model(&models.Payment{}).Count(&count)
	assert.Zero(t, count, "an unsigned packet must not admit a payment")
}

func TestCreateStripePaymentWritesRecordBeforeProcessor(t *testing.T) {
	f := newPaymentFixture(t)

	w := f.post(t, "/payments/stripe-create", map[string]interface{}{
		"deal_id":      "deal-1",
		"amount_cents": 250000,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	pay, err := f.paymentRepo.GetByPaymentIntentID("pi_test")
	require.NoError(t, err)
	assert.Equal(t, f.investor.ID, pay.InvestorID)
	assert.Equal(t, f.fundManager.ID, pay.FundManagerID)
	assert.Equal(t, int64(250000), pay.AmountCents)
	assert.Equal(t, domain.PaymentMethodStripe, pay.Method)
	assert.Equal(t, domain.PaymentStatusPending, pay.Status)
	require.NotNil(t, pay.DisclosureID)
	assert.Equal(t, f.disclosure.ID, *pay.DisclosureID)
}

func TestCreateStripePaymentMarksFailedOnProcessorError(t *testing.T) {
	f := newPaymentFixture(t)
	f.stripe.createPaymentIntent = func(ctx context.Context, amountCents int64, currency, customerID string) (*stripeapi.PaymentIntent, error) {
		return nil, errors.New("stripe POST /v1/payment_intents: status 500")
	}

	w := f.post(t, "/payments/stripe-create", map[string]interface{}{
		"deal_id":      "deal-1",
		"amount_cents": 10000,
	}, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	var pay models.Payment
	require.NoError(t, f.db.Where("deal_id = ?", "deal-1").First(&pay).Error)
	assert.Equal(t, domain.PaymentStatusFailed, pay.Status, "a provisional record must not stay PENDING after a failed external call")
}

func TestCreateStripePaymentIdempotencyKeyReplay(t *testing.T) {
	f := newPaymentFixture(t)
	calls := 0
	f.stripe.createPaymentIntent = func(ctx context.Context, amountCents int64, currency, customerID string) (*stripeapi.PaymentIntent, error) {
		calls++
		return &stripeapi.PaymentIntent{ID: "pi_test", Amount: amountCents, Currency: currency}, nil
	}
	headers := map[string]string{"Idempotency-Key": "retry-abc"}
	body := map[string]interface{}{"deal_id": "deal-1", "amount_cents": 10000}

	first := f.post(t, "/payments/stripe-create", body, headers)
	require.Equal(t, http.StatusOK, first.Code)
	second := f.post(t, "/payments/stripe-create", body, headers)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Contains(t, second.Body.String(), "already initiated")

	assert.Equal(t, 1, calls, "a replayed initiation must not hit the processor again")
	var count int64
	f.db.Model(&models.Payment{}).Count(&count)
	assert.Equal(t, int64(1), count)
}

func TestCreateWireTransferCarriesMetadata(t *testing.T) {
	f := newPaymentFixture(t)
	var gotParams stripeapi.CheckoutParams
	f.stripe.createCheckoutSession = func(ctx context.Context, p stripeapi.CheckoutParams) (*stripeapi.CheckoutSession, error) {
		gotParams = p
		return &stripeapi.CheckoutSession{ID: "cs_test", URL: "https://checkout.stripe.com/c/pay/cs_test", AmountTotal: p.AmountCents}, nil
	}

	w := f.post(t, "/payments/stripe-wire-transfer", map[string]interface{}{
		"deal_id":      "deal-1",
		"amount_cents": 500000,
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	assert.Equal(t, "deal-1", gotParams.Metadata["dealId"])
	assert.NotEmpty(t, gotParams.Metadata["investorId"])
	assert.NotEmpty(t, gotParams.Metadata["fundManagerId"])

	pay, err := f.paymentRepo.GetByPaymentIntentID("cs_test")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, pay.Status)
}

func TestCreatePlaidPaymentStoresTransferID(t *testing.T) {
	f := newPaymentFixture(t)

	w := f.post(t, "/payments/plaid-create", map[string]interface{}{
		"deal_id":      "deal-1",
		"public_token": "public-sandbox-token",
		"amount_cents": 125000,
		"legal_name":   "Ira Investor",
	}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	pay, err := f.paymentRepo.GetByPlaidTransferID("transfer-test")
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentMethodPlaid, pay.Method)
	assert.Equal(t, domain.PaymentStatusPending, pay.Status)
	assert.Equal(t, int64(125000), pay.AmountCents)
}

func TestUpdateStatusCompletesOnce(t *testing.T) {
	f := newPaymentFixture(t)
	require.Equal(t, http.StatusOK, f.post(t, "/payments/stripe-create", map[string]interface{}{
		"deal_id":      "deal-1",
		"amount_cents": 10000,
	}, nil).Code)

	body := map[string]interface{}{
		"payment_intent_id": "pi_test",
		"status":            "completed",
		"deal_id":           "deal-1",
	}
	first := f.post(t, "/payments/update-status-stripe", body, nil)
	assert.Equal(t, http.StatusOK, first.Code, first.Body.String())

	var d models.DealDisclosure
	require.NoError(t, f.db.First(&d, f.disclosure.ID).Error)
	assert.True(t, d.IsPaid)
	assert.Equal(t, "pi_test", d.PaymentIntentID)

	second := f.post(t, "/payments/update-status-stripe", body, nil)
	assert.Equal(t, http.StatusConflict, second.Code, "a settled payment must not be settled again")
}

func TestUpdateStatusRejectsNonTerminal(t *testing.T) {
	f := newPaymentFixture(t)

	w := f.post(t, "/payments/update-status-stripe", map[string]interface{}{
		"payment_intent_id": "pi_test",
		"status":            "PENDING",
		"deal_id":           "deal-1",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestWithdrawInsufficientBalance(t *testing.T) {
	f := newPaymentFixture(t)
	require.NoError(t, f.walletRepo.Credit(f.fundManager.ID, 5000, domain.WalletTxnDealPayment, "pi_seed"))

	w := f.post(t, "/payments/withdraw-money", map[string]interface{}{"amount_cents": 6000}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "Insufficient balance")

	wallet, err := f.walletRepo.GetByUserID(f.fundManager.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), wallet.BalanceCents)

	var count int64
	f.db.Model(&models.Payout{}).Count(&count)
	assert.Zero(t, count)
}

func TestWithdrawDebitsAndRecordsPayout(t *testing.T) {
	f := newPaymentFixture(t)
	require.NoError(t, f.walletRepo.Credit(f.fundManager.ID, 100000, domain.WalletTxnDealPayment, "pi_seed"))

	w := f.post(t, "/payments/withdraw-money", map[string]interface{}{"amount_cents": 40000}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	wallet, err := f.walletRepo.GetByUserID(f.fundManager.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(60000), wallet.BalanceCents)

	payout, err := f.payoutRepo.GetByStripePayoutID("po_test")
	require.NoError(t, err)
	assert.Equal(t, f.fundManager.ID, payout.UserID)
	assert.Equal(t, int64(40000), payout.AmountCents)
	assert.Equal(t, domain.PayoutStatusProcessing, payout.Status)
	assert.Equal(t, "tr_test", payout.TransferID)
}

func TestWithdrawRefundsHoldOnTransferFailure(t *testing.T) {
	f := newPaymentFixture(t)
	require.NoError(t, f.walletRepo.Credit(f.fundManager.ID, 100000, domain.WalletTxnDealPayment, "pi_seed"))
	f.stripe.createTransfer = func(ctx context.Context, amountCents int64, currency, destination string) (*stripeapi.Transfer, error) {
		return nil, errors.New("stripe POST /v1/transfers: status 500")
	}

	w := f.post(t, "/payments/withdraw-money", map[string]interface{}{"amount_cents": 40000}, nil)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	wallet, err := f.walletRepo.GetByUserID(f.fundManager.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), wallet.BalanceCents, "the hold must be released when the external call fails")

	var count int64
	f.db.Model(&models.Payout{}).Count(&count)
	assert.Zero(t, count)
}

func TestWithdrawRequiresConnectedAccount(t *testing.T) {
	f := newPaymentFixture(t)
	require.NoError(t, f.db.Model(&models.User{}).Where("id = ?", f.fundManager.ID).
		Update("connect_account_id", "").Error)
	require.NoError(t, f.walletRepo.Credit(f.fundManager.ID, 100000, domain.WalletTxnDealPayment, "pi_seed"))

	w := f.post(t, "/payments/withdraw-money", map[string]interface{}{"amount_cents": 40000}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "No connected account")

	wallet, err := f.walletRepo.GetByUserID(f.fundManager.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100000), wallet.BalanceCents)
}
