package handler

import (
	"context"
	"fmt"
	"testing"

	"dealdesk/config"
	"dealdesk/internal/auth"
	"dealdesk/internal/models"
	"dealdesk/pkg/plaidapi"
	"dealdesk/pkg/stripeapi"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.User{},
		&models.Wallet{},
		&models.WalletTransaction{},
		&models.Payment{},
		&models.Payout{},
		&models.DealDisclosure{},
		&models.DisclosureInvestor{},
		&models.WebhookEvent{},
		&models.AuditLog{},
	))
	return db
}

func testConfig() *config.Config {
	return &config.Config{
		Stripe: config.StripeConfig{
			SecretKey:            "sk_test",
			WebhookSecret:        "whsec_platform",
			ConnectWebhookSecret: "whsec_connect",
			SuccessURL:           "https://app.example/success",
			CancelURL:            "https://app.example/cancel",
		},
	}
}

// asUser stands in for AuthRequired in tests.
func asUser(claims *auth.Claims) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", claims.UserID)
		c.Set("email", claims.Email)
		c.Set("role", claims.Role)
		c.Set("claims", claims)
		c.Next()
	}
}

// fakeStripe implements stripeapi.API with overridable calls.
type fakeStripe struct {
	findOrCreateCustomer  func(ctx context.Context, email string) (*stripeapi.Customer, error)
	createPaymentIntent   func(ctx context.Context, amountCents int64, currency, customerID string) (*stripeapi.PaymentIntent, error)
	createCheckoutSession func(ctx context.Context, p stripeapi.CheckoutParams) (*stripeapi.CheckoutSession, error)
	createTransfer        func(ctx context.Context, amountCents int64, currency, destination string) (*stripeapi.Transfer, error)
	createPayout          func(ctx context.Context, amountCents int64, currency, connectAccountID string) (*stripeapi.Payout, error)
	createAccount         func(ctx context.Context, email string) (*stripeapi.Account, error)
	retrieveAccount       func(ctx context.Context, accountID string) (*stripeapi.Account, error)
}

func (f *fakeStripe) FindOrCreateCustomer(ctx context.Context, email string) (*stripeapi.Customer, error) {
	if f.findOrCreateCustomer != nil {
		return f.findOrCreateCustomer(ctx, email)
	}
	return &stripeapi.Customer{ID: "cus_test", Email: email}, nil
}

func (f *fakeStripe) CreatePaymentIntent(ctx context.Context, amountCents int64, currency, customerID string) (*stripeapi.PaymentIntent, error) {
	if f.createPaymentIntent != nil {
		return f.createPaymentIntent(ctx, amountCents, currency, customerID)
	}
	return &stripeapi.PaymentIntent{
		ID:           "pi_test",
		Amount:       amountCents,
		Currency:     currency,
		Customer:     customerID,
		ClientSecret: "pi_test_secret",
		Status:       "requires_payment_method",
	}, nil
}

func (f *fakeStripe) CreateCheckoutSession(ctx context.Context, p stripeapi.CheckoutParams) (*stripeapi.CheckoutSession, error) {
	if f.createCheckoutSession != nil {
		return f.createCheckoutSession(ctx, p)
	}
	return &stripeapi.CheckoutSession{
		ID:          "cs_test",
		URL:         "https://checkout.stripe.com/c/pay/cs_test",
		AmountTotal: p.AmountCents,
		Metadata:    p.Metadata,
	}, nil
}

func (f *fakeStripe) CreateTransfer(ctx context.Context, amountCents int64, currency, destination string) (*stripeapi.Transfer, error) {
	if f.createTransfer != nil {
		return f.createTransfer(ctx, amountCents, currency, destination)
	}
	return &stripeapi.Transfer{ID: "tr_test", Amount: amountCents, Currency: currency, Destination: destination}, nil
}

func (f *fakeStripe) CreatePayout(ctx context.Context, amountCents int64, currency, connectAccountID string) (*stripeapi.Payout, error) {
	if f.createPayout != nil {
		return f.createPayout(ctx, amountCents, currency, connectAccountID)
	}
	return &stripeapi.Payout{ID: "po_test", Amount: amountCents, Currency: currency, Status: "pending"}, nil
}

func (f *fakeStripe) CreateAccount(ctx context.Context, email string) (*stripeapi.Account, error) {
	if f.createAccount != nil {
		return f.createAccount(ctx, email)
	}
	return &stripeapi.Account{ID: "acct_test", Email: email}, nil
}

func (f *fakeStripe) RetrieveAccount(ctx context.Context, accountID string) (*stripeapi.Account, error) {
	if f.retrieveAccount != nil {
		return f.retrieveAccount(ctx, accountID)
	}
	return &stripeapi.Account{ID: accountID, PayoutsEnabled: true}, nil
}

// fakePlaid implements plaidapi.API with overridable calls.
type fakePlaid struct {
	exchangePublicToken func(ctx context.Context, publicToken string) (string, error)
	createTransfer      func(ctx context.Context, accessToken, accountID, authorizationID, description string) (*plaidapi.Transfer, error)
}

func (f *fakePlaid) ExchangePublicToken(ctx context.Context, publicToken string) (string, error) {
	if f.exchangePublicToken != nil {
		return f.exchangePublicToken(ctx, publicToken)
	}
	return "access-test", nil
}

func (f *fakePlaid) FirstAccountID(ctx context.Context, accessToken string) (string, error) {
	return "acc-test", nil
}

func (f *fakePlaid) CreateTransferAuthorization(ctx context.Context, p plaidapi.AuthorizationParams) (string, error) {
	return "auth-test", nil
}

func (f *fakePlaid) CreateTransfer(ctx context.Context, accessToken, accountID, authorizationID, description string) (*plaidapi.Transfer, error) {
	if f.createTransfer != nil {
		return f.createTransfer(ctx, accessToken, accountID, authorizationID, description)
	}
	return &plaidapi.Transfer{ID: "transfer-test", Amount: "100.00", Status: "pending"}, nil
}
