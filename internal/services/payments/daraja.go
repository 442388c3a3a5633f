package payments

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"elimu_backend/internal/models"
)

// Daraja result codes. 0 is the only success; 1032 is the user dismissing
// the prompt on the handset. Everything else terminal maps to failed.
const (
	resultCodeSuccess       = "0"
	resultCodeUserCancelled = "1032"

	// errorCode the query endpoint answers while the prompt is still open
	errorCodeProcessing = "500.001.1001"
)

type ErrorKind string

const (
	ErrorKindAuth        ErrorKind = "auth"
	ErrorKindRejected    ErrorKind = "rejected"
	ErrorKindUnavailable ErrorKind = "unavailable"
)

// ProviderError is the tagged failure result of a provider call, so every
// call site handles the rejection path explicitly.
type ProviderError struct {
	Kind        ErrorKind
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("daraja %s error %s: %s", e.Kind, e.Code, e.Description)
}

type DarajaConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	Shortcode      string
	Passkey        string
	CallbackURL    string
}

// DarajaClient talks to the M-Pesa STK push API. The access token is
// process-wide shared state held in an internal cache.
type DarajaClient struct {
	cfg    DarajaConfig
	http   *http.Client
	tokens *tokenCache
	now    func() time.Time
}

func NewDarajaClient(cfg DarajaConfig) *DarajaClient {
	return &DarajaClient{
		cfg:    cfg,
		http:   &http.Client{Timeout: 30 * time.Second},
		tokens: newTokenCache(),
		now:    time.Now,
	}
}

type STKPushRequest struct {
	PhoneNumber      string // canonical 254XXXXXXXXX
	Amount           int64
	AccountReference string
	Description      string
}

type STKPushResponse struct {
	MerchantRequestID   string `json:"MerchantRequestID"`
	CheckoutRequestID   string `json:"CheckoutRequestID"`
	ResponseCode        string `json:"ResponseCode"`
	ResponseDescription string `json:"ResponseDescription"`
	CustomerMessage     string `json:"CustomerMessage"`
}

// STKQueryResult is the mapped outcome of a status query. Pending means the
// prompt is still open on the handset.
type STKQueryResult struct {
	Pending    bool
	ResultCode string
	ResultDesc string
}

// STKPush initiates an asynchronous charge. The user confirms or dismisses
// the prompt out-of-band; the returned CheckoutRequestID correlates the
// eventual callback or status query with this charge.
func (c *DarajaClient) STKPush(ctx context.Context, req STKPushRequest) (*STKPushResponse, error) {
	timestamp := c.now().Format("20060102150405")

	body := map[string]interface{}{
		"BusinessShortCode": c.cfg.Shortcode,
		"Password":          c.password(timestamp),
		"Timestamp":         timestamp,
		"TransactionType":   "CustomerPayBillOnline",
		"Amount":            req.Amount,
		"PartyA":            req.PhoneNumber,
		"PartyB":            c.cfg.Shortcode,
		"PhoneNumber":       req.PhoneNumber,
		"CallBackURL":       c.cfg.CallbackURL,
		"AccountReference":  req.AccountReference,
		"TransactionDesc":   req.Description,
	}

	var resp STKPushResponse
	if err := c.postAuthorized(ctx, "/mpesa/stkpush/v1/processrequest", body, &resp); err != nil {
		return nil, err
	}

	if resp.ResponseCode != resultCodeSuccess {
		return nil, &ProviderError{
			Kind:        ErrorKindRejected,
			Code:        resp.ResponseCode,
			Description: resp.ResponseDescription,
		}
	}
	return &resp, nil
}

// QueryStatus asks the provider for the outcome of a checkout request.
func (c *DarajaClient) QueryStatus(ctx context.Context, checkoutRequestID string) (*STKQueryResult, error) {
	timestamp := c.now().Format("20060102150405")

	body := map[string]interface{}{
		"BusinessShortCode": c.cfg.Shortcode,
		"Password":          c.password(timestamp),
		"Timestamp":         timestamp,
		"CheckoutRequestID": checkoutRequestID,
	}

	var resp struct {
		ResponseCode string `json:"ResponseCode"`
		ResultCode   string `json:"ResultCode"`
		ResultDesc   string `json:"ResultDesc"`
	}
	err := c.postAuthorized(ctx, "/mpesa/stkpushquery/v1/query", body, &resp)
	if err != nil {
		var perr *ProviderError
		// The query endpoint reports "transaction is being processed" as an
		// error payload; that is a pending outcome, not a failure.
		if errors.As(err, &perr) && perr.Code == errorCodeProcessing {
			return &STKQueryResult{Pending: true, ResultDesc: perr.Description}, nil
		}
		return nil, err
	}

	return &STKQueryResult{
		ResultCode: resp.ResultCode,
		ResultDesc: resp.ResultDesc,
	}, nil
}

// MapResultCode converts a provider result code into a transaction status.
func MapResultCode(code string) models.TransactionStatus {
	switch code {
	case resultCodeSuccess:
		return models.TransactionCompleted
	case resultCodeUserCancelled:
		return models.TransactionCancelled
	default:
		return models.TransactionFailed
	}
}

// password derives the request password: base64(shortcode + passkey + timestamp).
func (c *DarajaClient) password(timestamp string) string {
	raw := c.cfg.Shortcode + c.cfg.Passkey + timestamp
	return base64.StdEncoding.EncodeToString([]byte(raw))
}

// fetchToken obtains a fresh OAuth token from the provider auth endpoint.
func (c *DarajaClient) fetchToken(ctx context.Context) (string, time.Duration, error) {
	url := c.cfg.BaseURL + "/oauth/v1/generate?grant_type=client_credentials"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", 0, err
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	res, err := c.http.Do(req)
	if err != nil {
		return "", 0, &ProviderError{Kind: ErrorKindUnavailable, Description: err.Error()}
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(res.Body)
		return "", 0, &ProviderError{
			Kind:        ErrorKindAuth,
			Code:        strconv.Itoa(res.StatusCode),
			Description: string(data),
		}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   string `json:"expires_in"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return "", 0, &ProviderError{Kind: ErrorKindAuth, Description: err.Error()}
	}

	seconds, err := strconv.Atoi(payload.ExpiresIn)
	if err != nil || seconds <= 0 {
		seconds = 3600
	}
	return payload.AccessToken, time.Duration(seconds) * time.Second, nil
}

// postAuthorized sends a JSON POST with a bearer token, refreshing the token
// once on a 401-class answer.
func (c *DarajaClient) postAuthorized(ctx context.Context, path string, body interface{}, out interface{}) error {
	for attempt := 0; attempt < 2; attempt++ {
		token, err := c.tokens.get(ctx, c.fetchToken)
		if err != nil {
			return err
		}

		status, data, err := c.doPost(ctx, path, token, body)
		if err != nil {
			return err
		}

		if status == http.StatusUnauthorized || status == http.StatusForbidden {
			c.tokens.invalidate()
			continue
		}

		if status != http.StatusOK {
			var errBody struct {
				ErrorCode    string `json:"errorCode"`
				ErrorMessage string `json:"errorMessage"`
			}
			_ = json.Unmarshal(data, &errBody)
			kind := ErrorKindRejected
			if status >= 500 && errBody.ErrorCode != errorCodeProcessing {
				kind = ErrorKindUnavailable
			}
			return &ProviderError{Kind: kind, Code: errBody.ErrorCode, Description: errBody.ErrorMessage}
		}

		return json.Unmarshal(data, out)
	}

	return &ProviderError{Kind: ErrorKindAuth, Description: "token rejected twice"}
}

func (c *DarajaClient) doPost(ctx context.Context, path, token string, body interface{}) (int, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	res, err := c.http.Do(req)
	if err != nil {
		return 0, nil, &ProviderError{Kind: ErrorKindUnavailable, Description: err.Error()}
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return 0, nil, &ProviderError{Kind: ErrorKindUnavailable, Description: err.Error()}
	}
	return res.StatusCode, data, nil
}
