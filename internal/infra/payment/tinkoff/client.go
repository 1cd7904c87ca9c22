// Package tinkoff talks to the Tinkoff acquiring API (v2) and verifies its
// notifications.
package tinkoff

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"rentguru/internal/app/policies"
	"rentguru/internal/domain/shared/money"
)

const DefaultBaseURL = "https://securepay.tinkoff.ru/v2"

var (
	ErrRejected     = errors.New("tinkoff: request rejected")
	ErrBadSignature = errors.New("tinkoff: invalid notification token")
	ErrMissingField = errors.New("tinkoff: notification is missing required fields")
)

type Config struct {
	BaseURL         string
	TerminalKey     string
	Password        string
	SuccessURL      string
	FailURL         string
	NotificationURL string
	Timeout         time.Duration
}

// Client implements policies.PaymentGateway.
type Client struct {
	cfg    Config
	HTTP   *http.Client
	Logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{cfg: cfg, HTTP: &http.Client{Timeout: timeout}, Logger: logger}
}

// flexString accepts ids the API sends either as strings or numbers.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(strings.TrimSpace(string(b)))
	return nil
}

type response struct {
	Success    bool       `json:"Success"`
	ErrorCode  string     `json:"ErrorCode"`
	Message    string     `json:"Message"`
	Details    string     `json:"Details"`
	PaymentID  flexString `json:"PaymentId"`
	PaymentURL string     `json:"PaymentURL"`
	Status     string     `json:"Status"`
}

func (c *Client) CreateCharge(ctx context.Context, req policies.ChargeRequest) (policies.Charge, error) {
	params := map[string]any{
		"TerminalKey": c.cfg.TerminalKey,
		"Amount":      req.Amount.Amount,
		"OrderId":     req.OrderRef,
		"Description": req.Description,
	}
	if req.CustomerID != "" {
		params["CustomerKey"] = req.CustomerID
	}
	if c.cfg.SuccessURL != "" {
		params["SuccessURL"] = c.cfg.SuccessURL
	}
	if c.cfg.FailURL != "" {
		params["FailURL"] = c.cfg.FailURL
	}
	if c.cfg.NotificationURL != "" {
		params["NotificationURL"] = c.cfg.NotificationURL
	}
	var resp response
	if err := c.call(ctx, "Init", params, &resp); err != nil {
		return policies.Charge{}, err
	}
	if !resp.Success {
		return policies.Charge{}, rejection("Init", resp)
	}
	return policies.Charge{ID: string(resp.PaymentID), RedirectURL: resp.PaymentURL}, nil
}

// CancelCharge refunds a confirmed charge or voids an authorized one.
func (c *Client) CancelCharge(ctx context.Context, chargeID string, amount money.Money) (bool, error) {
	params := map[string]any{
		"TerminalKey": c.cfg.TerminalKey,
		"PaymentId":   chargeID,
		"Amount":      amount.Amount,
	}
	var resp response
	if err := c.call(ctx, "Cancel", params, &resp); err != nil {
		return false, err
	}
	if !resp.Success {
		c.log().WarnContext(ctx, "gateway refused cancel", "charge_id", chargeID, "error_code", resp.ErrorCode, "message", resp.Message)
	}
	return resp.Success, nil
}

func (c *Client) ChargeState(ctx context.Context, chargeID string) (policies.ChargeStatus, error) {
	params := map[string]any{
		"TerminalKey": c.cfg.TerminalKey,
		"PaymentId":   chargeID,
	}
	var resp response
	if err := c.call(ctx, "GetState", params, &resp); err != nil {
		return "", err
	}
	if !resp.Success {
		return "", rejection("GetState", resp)
	}
	return NormalizeStatus(resp.Status), nil
}

func (c *Client) call(ctx context.Context, method string, params map[string]any, out *response) error {
	params["Token"] = Token(params, c.cfg.Password)
	body, err := json.Marshal(params)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/"+method, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("tinkoff %s: %w", method, err)
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("tinkoff %s: read body: %w", method, err)
	}
	if res.StatusCode >= 300 {
		return fmt.Errorf("tinkoff %s: http %d", method, res.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("tinkoff %s: decode: %w", method, err)
	}
	return nil
}

func (c *Client) log() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func rejection(method string, r response) error {
	return fmt.Errorf("%w: %s: %s %s (code %s)", ErrRejected, method, r.Message, r.Details, r.ErrorCode)
}

// Token signs root-level scalar parameters: values concatenated in key order
// with the terminal password included, hashed with SHA-256.
func Token(params map[string]any, password string) string {
	values := map[string]string{"Password": password}
	for k, v := range params {
		if k == "Token" {
			continue
		}
		if s, ok := scalar(v); ok {
			values[k] = s
		}
	}
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var b strings.Builder
	for _, k := range keys {
		b.WriteString(values[k])
	}
	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}

func scalar(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case json.Number:
		return t.String(), true
	case int:
		return strconv.Itoa(t), true
	case int64:
		return strconv.FormatInt(t, 10), true
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64), true
	}
	return "", false
}

// NormalizeStatus maps gateway spellings onto policies.ChargeStatus.
func NormalizeStatus(raw string) policies.ChargeStatus {
	s := strings.ToUpper(strings.TrimSpace(raw))
	switch s {
	case "CANCELLED", "REVERSED":
		return policies.ChargeCanceled
	case "PARTIAL_REFUNDED":
		return policies.ChargeRefunded
	}
	return policies.ChargeStatus(s)
}

// Notification is a verified gateway callback.
type Notification struct {
	ChargeID string
	OrderRef string
	Status   policies.ChargeStatus
	// RawStatus is the status as sent by the gateway.
	RawStatus string
	Amount    int64
}

// ParseNotification verifies the token of a callback body and extracts the
// charge outcome.
func ParseNotification(body []byte, password string) (Notification, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var params map[string]any
	if err := dec.Decode(&params); err != nil {
		return Notification{}, fmt.Errorf("tinkoff: decode notification: %w", err)
	}
	token, _ := params["Token"].(string)
	want := Token(params, password)
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(want)) != 1 {
		return Notification{}, ErrBadSignature
	}
	var missing []string
	for _, field := range []string{"PaymentId", "Status", "Amount"} {
		if _, ok := params[field]; !ok {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return Notification{}, fmt.Errorf("%w: %s", ErrMissingField, strings.Join(missing, ", "))
	}
	chargeID, _ := scalar(params["PaymentId"])
	rawStatus, _ := scalar(params["Status"])
	amountRaw, _ := scalar(params["Amount"])
	amount, err := strconv.ParseInt(amountRaw, 10, 64)
	if err != nil {
		return Notification{}, fmt.Errorf("tinkoff: invalid amount %q: %w", amountRaw, err)
	}
	orderRef, _ := scalar(params["OrderId"])
	return Notification{
		ChargeID:  chargeID,
		OrderRef:  orderRef,
		Status:    NormalizeStatus(rawStatus),
		RawStatus: rawStatus,
		Amount:    amount,
	}, nil
}

var _ policies.PaymentGateway = (*Client)(nil)
