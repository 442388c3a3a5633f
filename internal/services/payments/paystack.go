package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"
)

type PaystackConfig struct {
	BaseURL     string
	SecretKey   string
	CallbackURL string
}

// PaystackClient creates hosted-checkout payment links. The final state of
// a checkout arrives on a separate webhook keyed by our reference.
type PaystackClient struct {
	cfg  PaystackConfig
	http *http.Client
}

func NewPaystackClient(cfg PaystackConfig) *PaystackClient {
	return &PaystackClient{
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

type InitializeRequest struct {
	Email     string
	Amount    int64 // whole currency units; converted to subunits on the wire
	Currency  string
	Reference string
}

type InitializeResponse struct {
	AuthorizationURL string
	AccessCode       string
	Reference        string
}

// WebhookEvent is the envelope Paystack delivers to the webhook endpoint.
type WebhookEvent struct {
	Event string `json:"event"`
	Data  struct {
		Reference       string `json:"reference"`
		Status          string `json:"status"`
		Amount          int64  `json:"amount"` // subunits
		PaidAt          string `json:"paid_at"`
		Channel         string `json:"channel"`
		Currency        string `json:"currency"`
		GatewayResponse string `json:"gateway_response"`
	} `json:"data"`
}

// ParsePaystackEvent decodes a webhook body into its envelope.
func ParsePaystackEvent(raw []byte) (*WebhookEvent, error) {
	var event WebhookEvent
	if err := json.Unmarshal(raw, &event); err != nil {
		return nil, err
	}
	if event.Event == "" {
		return nil, errors.New("paystack webhook: missing event type")
	}
	return &event, nil
}

// InitializeTransaction creates a payment link keyed by our unique reference.
func (c *PaystackClient) InitializeTransaction(ctx context.Context, req InitializeRequest) (*InitializeResponse, error) {
	body := map[string]interface{}{
		"email":        req.Email,
		"amount":       strconv.FormatInt(req.Amount*100, 10),
		"currency":     req.Currency,
		"reference":    req.Reference,
		"callback_url": c.cfg.CallbackURL,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/transaction/initialize", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.cfg.SecretKey)

	res, err := c.http.Do(httpReq)
	if err != nil {
		return nil, &ProviderError{Kind: ErrorKindUnavailable, Description: err.Error()}
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &ProviderError{Kind: ErrorKindUnavailable, Description: err.Error()}
	}

	var parsed struct {
		Status  bool   `json:"status"`
		Message string `json:"message"`
		Data    struct {
			AuthorizationURL string `json:"authorization_url"`
			AccessCode       string `json:"access_code"`
			Reference        string `json:"reference"`
		} `json:"data"`
	}
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, &ProviderError{Kind: ErrorKindUnavailable, Description: err.Error()}
	}

	if res.StatusCode == http.StatusUnauthorized {
		return nil, &ProviderError{Kind: ErrorKindAuth, Code: strconv.Itoa(res.StatusCode), Description: parsed.Message}
	}
	if res.StatusCode != http.StatusOK || !parsed.Status {
		return nil, &ProviderError{Kind: ErrorKindRejected, Code: strconv.Itoa(res.StatusCode), Description: parsed.Message}
	}

	return &InitializeResponse{
		AuthorizationURL: parsed.Data.AuthorizationURL,
		AccessCode:       parsed.Data.AccessCode,
		Reference:        parsed.Data.Reference,
	}, nil
}
