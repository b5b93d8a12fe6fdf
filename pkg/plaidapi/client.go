// Package plaidapi is a thin client for the Plaid endpoints the ACH debit
// flow needs: public-token exchange, account lookup and transfer creation.
package plaidapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// API is the surface handlers depend on; Client is the live implementation.
type API interface {
	ExchangePublicToken(ctx context.Context, publicToken string) (string, error)
	FirstAccountID(ctx context.Context, accessToken string) (string, error)
	CreateTransferAuthorization(ctx context.Context, p AuthorizationParams) (string, error)
	CreateTransfer(ctx context.Context, accessToken, accountID, authorizationID, description string) (*Transfer, error)
}

type Client struct {
	BaseURL  string
	ClientID string
	Secret   string
	client   *http.Client
}

func NewClient(baseURL, clientID, secret string) *Client {
	if baseURL == "" {
		baseURL = "https://sandbox.plaid.com"
	}
	return &Client{
		BaseURL:  baseURL,
		ClientID: clientID,
		Secret:   secret,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type AuthorizationParams struct {
	AccessToken string
	AccountID   string
	// Amount is a decimal string with two places, e.g. "100.00".
	Amount    string
	LegalName string
}

type Transfer struct {
	ID     string `json:"id"`
	Amount string `json:"amount"`
	Status string `json:"status"`
}

// post sends a JSON request with client credentials injected into the body,
// the way Plaid's API expects them.
func (c *Client) post(ctx context.Context, path string, payload map[string]interface{}, out interface{}) error {
	payload["client_id"] = c.ClientID
	payload["secret"] = c.Secret
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			ErrorCode    string `json:"error_code"`
			ErrorMessage string `json:"error_message"`
		}
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.ErrorCode != "" {
			return fmt.Errorf("plaid %s: %s (%s)", path, apiErr.ErrorMessage, apiErr.ErrorCode)
		}
		return fmt.Errorf("plaid %s: status %d", path, resp.StatusCode)
	}
	if out != nil {
		return json.Unmarshal(respBody, out)
	}
	return nil
}

// ExchangePublicToken swaps the short-lived public token from Link for a
// persistent access token.
func (c *Client) ExchangePublicToken(ctx context.Context, publicToken string) (string, error) {
	var out struct {
		AccessToken string `json:"access_token"`
	}
	err := c.post(ctx, "/item/public_token/exchange", map[string]interface{}{
		"public_token": publicToken,
	}, &out)
	if err != nil {
		return "", fmt.Errorf("exchange public token: %w", err)
	}
	return out.AccessToken, nil
}

// FirstAccountID returns the first linked bank account, matching the account
// the user selected in Link.
func (c *Client) FirstAccountID(ctx context.Context, accessToken string) (string, error) {
	var out struct {
		Accounts []struct {
			AccountID string `json:"account_id"`
		} `json:"accounts"`
	}
	err := c.post(ctx, "/accounts/get", map[string]interface{}{
		"access_token": accessToken,
	}, &out)
	if err != nil {
		return "", fmt.Errorf("get accounts: %w", err)
	}
	if len(out.Accounts) == 0 {
		return "", fmt.Errorf("get accounts: no linked accounts")
	}
	return out.Accounts[0].AccountID, nil
}

// CreateTransferAuthorization requests an ACH debit authorization (ppd class)
// and returns its id.
func (c *Client) CreateTransferAuthorization(ctx context.Context, p AuthorizationParams) (string, error) {
	var out struct {
		Authorization struct {
			ID string `json:"id"`
		} `json:"authorization"`
	}
	err := c.post(ctx, "/transfer/authorization/create", map[string]interface{}{
		"access_token": p.AccessToken,
		"account_id":   p.AccountID,
		"type":         "debit",
		"network":      "ach",
		"ach_class":    "ppd",
		"amount":       p.Amount,
		"user": map[string]interface{}{
			"legal_name": p.LegalName,
		},
	}, &out)
	if err != nil {
		return "", fmt.Errorf("create transfer authorization: %w", err)
	}
	return out.Authorization.ID, nil
}

func (c *Client) CreateTransfer(ctx context.Context, accessToken, accountID, authorizationID, description string) (*Transfer, error) {
	var out struct {
		Transfer Transfer `json:"transfer"`
	}
	err := c.post(ctx, "/transfer/create", map[string]interface{}{
		"access_token":     accessToken,
		"account_id":       accountID,
		"authorization_id": authorizationID,
		"description":      description,
	}, &out)
	if err != nil {
		return nil, fmt.Errorf("create transfer: %w", err)
	}
	return &out.Transfer, nil
}
