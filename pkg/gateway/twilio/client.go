// Package twilio is a minimal REST client for the telephony gateway's
// control API: placing outbound calls and updating a number's voice
// webhook.
package twilio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/voicebridge/voicebridge/pkg/core"
)

const defaultBaseURL = "https://api.twilio.com"

// Client talks to the gateway's 2010-04-01 REST API with account-SID
// basic auth.
type Client struct {
	accountSID string
	authToken  string
	fromNumber string
	baseURL    string
	httpClient *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint, mainly for tests.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// NewClient creates a gateway control client.
func NewClient(accountSID, authToken, fromNumber string, opts ...Option) (*Client, error) {
	if accountSID == "" || authToken == "" {
		return nil, core.NewConfigurationError("twilio account SID and auth token are required")
	}
	c := &Client{
		accountSID: accountSID,
		authToken:  authToken,
		fromNumber: fromNumber,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type callResource struct {
	SID    string `json:"sid"`
	Status string `json:"status"`
}

type apiFailure struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Dial places an outbound call to the given number. The call's voice
// flow is driven by callbackURL, which must point at the conversation
// entry endpoint. It returns the gateway's call SID.
func (c *Client) Dial(ctx context.Context, to, callbackURL string) (string, error) {
	if to == "" {
		return "", core.NewInvalidRequestErrorWithParam("destination number is required", "to")
	}
	form := url.Values{
		"To":   {to},
		"From": {c.fromNumber},
		"Url":  {callbackURL},
	}
	path := fmt.Sprintf("/2010-04-01/Accounts/%s/Calls.json", c.accountSID)

	var call callResource
	if err := c.postForm(ctx, path, form, &call); err != nil {
		return "", err
	}
	return call.SID, nil
}

type numberResource struct {
	SID         string `json:"sid"`
	PhoneNumber string `json:"phone_number"`
}

type numberPage struct {
	IncomingPhoneNumbers []numberResource `json:"incoming_phone_numbers"`
}

// UpdateVoiceWebhook points the account phone number's voice URL at
// webhookURL, so the gateway delivers incoming calls to this service.
func (c *Client) UpdateVoiceWebhook(ctx context.Context, webhookURL string) error {
	listPath := fmt.Sprintf("/2010-04-01/Accounts/%s/IncomingPhoneNumbers.json?PhoneNumber=%s",
		c.accountSID, url.QueryEscape(c.fromNumber))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+listPath, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return core.NewProviderError("twilio", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return c.apiError(resp)
	}

	var page numberPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return core.NewProviderError("twilio", fmt.Errorf("decode number list: %w", err))
	}
	if len(page.IncomingPhoneNumbers) == 0 {
		return core.NewConfigurationError(
			fmt.Sprintf("phone number %s not found on account", c.fromNumber))
	}

	form := url.Values{
		"VoiceUrl":    {webhookURL},
		"VoiceMethod": {http.MethodPost},
	}
	updatePath := fmt.Sprintf("/2010-04-01/Accounts/%s/IncomingPhoneNumbers/%s.json",
		c.accountSID, page.IncomingPhoneNumbers[0].SID)
	return c.postForm(ctx, updatePath, form, &numberResource{})
}

func (c *Client) postForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path,
		strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(c.accountSID, c.authToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return core.NewProviderError("twilio", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return c.apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return core.NewProviderError("twilio", fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func (c *Client) apiError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var failure apiFailure
	if json.Unmarshal(body, &failure) == nil && failure.Message != "" {
		return core.NewProviderError("twilio",
			fmt.Errorf("status %d (code %d): %s", resp.StatusCode, failure.Code, failure.Message))
	}
	return core.NewProviderError("twilio",
		fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
}
