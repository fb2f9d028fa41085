package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const defaultRequestTimeout = 15 * time.Second

var (
	errMissingBaseURL = errors.New("checkout base url required")
	errMissingAPIKey  = errors.New("checkout api key required")
	// ErrCheckoutUpstream indicates the payment processor call failed; the
	// processor's message is preserved for diagnostics but never shown to
	// end users.
	ErrCheckoutUpstream = errors.New("billing: checkout upstream failure")
	// ErrInvalidCheckoutConfig indicates missing client configuration.
	ErrInvalidCheckoutConfig = errors.New("billing: invalid checkout client config")
)

// CheckoutClientConfig bundles configuration for the hosted checkout client.
type CheckoutClientConfig struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
	Logger     *zap.Logger
}

// CheckoutClient creates hosted checkout and billing-portal sessions with
// the external payment processor.
type CheckoutClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewCheckoutClient constructs a client with validated configuration.
func NewCheckoutClient(cfg CheckoutClientConfig) (*CheckoutClient, error) {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCheckoutConfig, errMissingBaseURL)
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCheckoutConfig, errMissingAPIKey)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CheckoutClient{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// CheckoutParams describes a checkout session request for one pinboard.
type CheckoutParams struct {
	PinboardSlug  string
	PinboardTitle string
	OwnerID       string
	SuccessURL    string
	CancelURL     string
}

type checkoutRequestPayload struct {
	SuccessURL string            `json:"success_url"`
	CancelURL  string            `json:"cancel_url"`
	Metadata   map[string]string `json:"metadata"`
}

type portalRequestPayload struct {
	Customer  string `json:"customer"`
	ReturnURL string `json:"return_url"`
}

type sessionResponsePayload struct {
	URL string `json:"url"`
}

// CreateSession asks the processor for a hosted checkout URL.
func (c *CheckoutClient) CreateSession(ctx context.Context, params CheckoutParams) (string, error) {
	payload := checkoutRequestPayload{
		SuccessURL: params.SuccessURL,
		CancelURL:  params.CancelURL,
		Metadata: map[string]string{
			"pinboard_slug":  params.PinboardSlug,
			"pinboard_title": params.PinboardTitle,
			"owner_id":       params.OwnerID,
		},
	}
	return c.createSession(ctx, "/v1/checkout/sessions", payload)
}

// CreatePortalSession asks the processor for a hosted billing-portal URL for
// an existing customer.
func (c *CheckoutClient) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	payload := portalRequestPayload{Customer: customerID, ReturnURL: returnURL}
	return c.createSession(ctx, "/v1/billing_portal/sessions", payload)
}

func (c *CheckoutClient) createSession(ctx context.Context, path string, payload interface{}) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCheckoutUpstream, err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCheckoutUpstream, err)
	}
	request.Header.Set("Authorization", "Bearer "+c.apiKey)
	request.Header.Set("Content-Type", "application/json")

	response, err := c.httpClient.Do(request)
	if err != nil {
		c.logger.Error("checkout request failed", zap.String("path", path), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrCheckoutUpstream, err)
	}
	defer response.Body.Close() //nolint:errcheck

	responseBody, err := io.ReadAll(io.LimitReader(response.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrCheckoutUpstream, err)
	}
	if response.StatusCode != http.StatusOK {
		c.logger.Error("checkout request rejected",
			zap.String("path", path),
			zap.Int("status", response.StatusCode),
			zap.ByteString("body", responseBody))
		return "", fmt.Errorf("%w: status %d", ErrCheckoutUpstream, response.StatusCode)
	}

	var session sessionResponsePayload
	if err := json.Unmarshal(responseBody, &session); err != nil {
		return "", fmt.Errorf("%w: %v", ErrCheckoutUpstream, err)
	}
	if strings.TrimSpace(session.URL) == "" {
		return "", fmt.Errorf("%w: empty session url", ErrCheckoutUpstream)
	}
	return session.URL, nil
}
