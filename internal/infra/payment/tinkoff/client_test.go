package tinkoff

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentguru/internal/app/policies"
	"rentguru/internal/domain/shared/money"
)

func TestTokenSortsKeysAndSkipsNested(t *testing.T) {
	params := map[string]any{
		"TerminalKey": "TK",
		"Amount":      int64(10000),
		"OrderId":     "p1_1700000000",
		"Receipt":     map[string]any{"Email": "a@b.c"},
		"Token":       "ignored",
	}
	// Amount + OrderId + Password + TerminalKey
	want := Token(map[string]any{"Amount": "10000", "OrderId": "p1_1700000000", "TerminalKey": "TK"}, "pw")
	assert.Equal(t, want, Token(params, "pw"))
	assert.Len(t, want, 64)
	assert.NotEqual(t, want, Token(params, "other"))
}

func newServer(t *testing.T, handle func(method string, body map[string]any) any) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, Token(body, "pw"), body["Token"])
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(handle(r.URL.Path[1:], body))
	}))
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL + "/", TerminalKey: "TK", Password: "pw", NotificationURL: "https://api.test/payments/webhook"}, nil)
}

func TestClientCalls(t *testing.T) {
	c := newServer(t, func(method string, body map[string]any) any {
		switch method {
		case "Init":
			return map[string]any{"Success": true, "PaymentId": 13660, "PaymentURL": "https://pay.test/13660", "Status": "NEW"}
		case "GetState":
			return map[string]any{"Success": true, "PaymentId": "13660", "Status": "CANCELLED"}
		case "Cancel":
			return map[string]any{"Success": body["Amount"].(float64) == 2500, "ErrorCode": "7"}
		}
		return map[string]any{"Success": false}
	})
	ctx := context.Background()

	ch, err := c.CreateCharge(ctx, policies.ChargeRequest{OrderRef: "p1_1", Amount: money.RUB(25), Description: "rent"})
	require.NoError(t, err)
	assert.Equal(t, "13660", ch.ID)
	assert.Equal(t, "https://pay.test/13660", ch.RedirectURL)

	state, err := c.ChargeState(ctx, ch.ID)
	require.NoError(t, err)
	assert.Equal(t, policies.ChargeCanceled, state)

	ok, err := c.CancelCharge(ctx, ch.ID, money.RUB(25))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = c.CancelCharge(ctx, ch.ID, money.RUB(30))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestInitRejected(t *testing.T) {
	c := newServer(t, func(string, map[string]any) any {
		return map[string]any{"Success": false, "ErrorCode": "9999", "Message": "terminal blocked"}
	})
	_, err := c.CreateCharge(context.Background(), policies.ChargeRequest{OrderRef: "x", Amount: money.RUB(1)})
	assert.ErrorIs(t, err, ErrRejected)
}

func signed(t *testing.T, params map[string]any) []byte {
	t.Helper()
	params["Token"] = Token(params, "pw")
	raw, err := json.Marshal(params)
	require.NoError(t, err)
	return raw
}

func TestParseNotification(t *testing.T) {
	body := signed(t, map[string]any{
		"TerminalKey": "TK",
		"OrderId":     "p1_1",
		"Success":     true,
		"Status":      "CONFIRMED",
		"PaymentId":   json.Number("13660"),
		"Amount":      json.Number("2500"),
	})
	n, err := ParseNotification(body, "pw")
	require.NoError(t, err)
	assert.Equal(t, "13660", n.ChargeID)
	assert.Equal(t, policies.ChargeConfirmed, n.Status)
	assert.Equal(t, int64(2500), n.Amount)

	_, err = ParseNotification(body, "wrong")
	assert.ErrorIs(t, err, ErrBadSignature)

	missing := signed(t, map[string]any{"TerminalKey": "TK", "Status": "CONFIRMED"})
	_, err = ParseNotification(missing, "pw")
	assert.ErrorIs(t, err, ErrMissingField)
	assert.Contains(t, err.Error(), "PaymentId, Amount")
}
