// Package stripeapi is a thin client for the parts of the Stripe REST API
// the payment flow needs: customers, payment intents, hosted checkout,
// Connect transfers/payouts and account lookups.
package stripeapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// API is the surface handlers depend on; Client is the live implementation.
type API interface {
	FindOrCreateCustomer(ctx context.Context, email string) (*Customer, error)
	CreatePaymentIntent(ctx context.Context, amountCents int64, currency, customerID string) (*PaymentIntent, error)
	CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error)
	CreateTransfer(ctx context.Context, amountCents int64, currency, destination string) (*Transfer, error)
	CreatePayout(ctx context.Context, amountCents int64, currency, connectAccountID string) (*Payout, error)
	CreateAccount(ctx context.Context, email string) (*Account, error)
	RetrieveAccount(ctx context.Context, accountID string) (*Account, error)
}

type Client struct {
	BaseURL   string
	SecretKey string
	client    *http.Client
}

func NewClient(secretKey string) *Client {
	return &Client{
		BaseURL:   "https://api.stripe.com",
		SecretKey: secretKey,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

type Customer struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type PaymentIntent struct {
	ID           string `json:"id"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Customer     string `json:"customer"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
}

type CheckoutParams struct {
	AmountCents int64
	Currency    string
	ProductName string
	Description string
	SuccessURL  string
	CancelURL   string
	Metadata    map[string]string
}

type CheckoutSession struct {
	ID            string            `json:"id"`
	URL           string            `json:"url"`
	PaymentIntent string            `json:"payment_intent"`
	Customer      string            `json:"customer"`
	AmountTotal   int64             `json:"amount_total"`
	Metadata      map[string]string `json:"metadata"`
}

type Transfer struct {
	ID          string `json:"id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Destination string `json:"destination"`
}

type Payout struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Status   string `json:"status"`
}

type Account struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	PayoutsEnabled bool   `json:"payouts_enabled"`
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// do sends a form-encoded request. connectAccount, when non-empty, is sent
// as the Stripe-Account header so the call runs against that sub-account.
func (c *Client) do(ctx context.Context, method, path string, form url.Values, connectAccount string, out interface{}) error {
	var body io.Reader
	if form != nil && method != http.MethodGet {
		body = strings.NewReader(form.Encode())
	}
	endpoint := c.BaseURL + path
	if form != nil && method == http.MethodGet {
		endpoint += "?" + form.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if connectAccount != "" {
		req.Header.Set("Stripe-Account", connectAccount)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Error.Message != "" {
			return fmt.Errorf("stripe %s %s: %s (%s)", method, path, apiErr.Error.Message, apiErr.Error.Code)
		}
		return fmt.Errorf("stripe %s %s: status %d", method, path, resp.StatusCode)
	}
	if out != nil {
		return json.Unmarshal(respBody, out)
	}
	return nil
}

// FindOrCreateCustomer looks up a customer by email, creating one if none
// exists yet.
func (c *Client) FindOrCreateCustomer(ctx context.Context, email string) (*Customer, error) {
	form := url.Values{}
	form.Set("email", email)
	form.Set("limit", "1")
	var list struct {
		Data []Customer `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/customers", form, "", &list); err != nil {
		return nil, fmt.Errorf("list customers: %w", err)
	}
	if len(list.Data) > 0 {
		return &list.Data[0], nil
	}
	create := url.Values{}
	create.Set("email", email)
	var cust Customer
	if err := c.do(ctx, http.MethodPost, "/v1/customers", create, "", &cust); err != nil {
		return nil, fmt.Errorf("create customer: %w", err)
	}
	return &cust, nil
}

func (c *Client) CreatePaymentIntent(ctx context.Context, amountCents int64, currency, customerID string) (*PaymentIntent, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amountCents, 10))
	form.Set("currency", strings.ToLower(currency))
	form.Set("customer", customerID)
	var pi PaymentIntent
	if err := c.do(ctx, http.MethodPost, "/v1/payment_intents", form, "", &pi); err != nil {
		return nil, fmt.Errorf("create payment intent: %w", err)
	}
	return &pi, nil
}

// CreateCheckoutSession builds a single-line-item hosted checkout restricted
// to US bank accounts (the wire-transfer flow).
func (c *Client) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("payment_method_types[0]", "us_bank_account")
	form.Set("line_items[0][quantity]", "1")
	form.Set("line_items[0][price_data][currency]", strings.ToLower(p.Currency))
	form.Set("line_items[0][price_data][unit_amount]", strconv.FormatInt(p.AmountCents, 10))
	form.Set("line_items[0][price_data][product_data][name]", p.ProductName)
	if p.Description != "" {
		form.Set("line_items[0][price_data][product_data][description]", p.Description)
	}
	form.Set("success_url", p.SuccessURL)
	form.Set("cancel_url", p.CancelURL)
	for k, v := range p.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}
	var session CheckoutSession
	if err := c.do(ctx, http.MethodPost, "/v1/checkout/sessions", form, "", &session); err != nil {
		return nil, fmt.Errorf("create checkout session: %w", err)
	}
	return &session, nil
}

func (c *Client) CreateTransfer(ctx context.Context, amountCents int64, currency, destination string) (*Transfer, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amountCents, 10))
	form.Set("currency", strings.ToLower(currency))
	form.Set("destination", destination)
	var tr Transfer
	if err := c.do(ctx, http.MethodPost, "/v1/transfers", form, "", &tr); err != nil {
		return nil, fmt.Errorf("create transfer: %w", err)
	}
	return &tr, nil
}

// CreatePayout runs on the connected account: it moves the transferred funds
// from the sub-account's Stripe balance to its linked bank.
func (c *Client) CreatePayout(ctx context.Context, amountCents int64, currency, connectAccountID string) (*Payout, error) {
	form := url.Values{}
	form.Set("amount", strconv.FormatInt(amountCents, 10))
	form.Set("currency", strings.ToLower(currency))
	var po Payout
	if err := c.do(ctx, http.MethodPost, "/v1/payouts", form, connectAccountID, &po); err != nil {
		return nil, fmt.Errorf("create payout: %w", err)
	}
	return &po, nil
}

func (c *Client) CreateAccount(ctx context.Context, email string) (*Account, error) {
	form := url.Values{}
	form.Set("type", "express")
	form.Set("email", email)
	var acct Account
	if err := c.do(ctx, http.MethodPost, "/v1/accounts", form, "", &acct); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}
	return &acct, nil
}

func (c *Client) RetrieveAccount(ctx context.Context, accountID string) (*Account, error) {
	var acct Account
	if err := c.do(ctx, http.MethodGet, "/v1/accounts/"+accountID, nil, "", &acct); err != nil {
		return nil, fmt.Errorf("retrieve account: %w", err)
	}
	return &acct, nil
}
