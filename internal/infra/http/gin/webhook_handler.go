package ginserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"rentguru/internal/app/commands"
	bookingapp "rentguru/internal/app/handlers/booking"
	"rentguru/internal/app/policies"
	"rentguru/internal/infra/payment/tinkoff"
)

const maxWebhookBody = 64 << 10

// Inbox remembers processed notifications. Forget releases one whose
// processing failed so the gateway's redelivery is handled.
type Inbox interface {
	Seen(ctx context.Context, eventID string) (bool, error)
	Forget(ctx context.Context, eventID string) error
}

// WebhookHandler receives gateway notifications. It is unauthenticated; the
// body token signed with the terminal password is the only trust anchor.
type WebhookHandler struct {
	Commands commands.Bus
	Password string
	Inbox    Inbox
	Logger   *slog.Logger
}

func (h WebhookHandler) Notify(c *gin.Context) {
	ctx := c.Request.Context()
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		badRequest(c, err)
		return
	}
	n, err := tinkoff.ParseNotification(body, h.Password)
	switch {
	case errors.Is(err, tinkoff.ErrBadSignature):
		h.log().WarnContext(ctx, "webhook signature rejected", "remote", c.ClientIP())
		c.JSON(http.StatusForbidden, gin.H{"error": "invalid notification token"})
		return
	case err != nil:
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	eventID := n.ChargeID + ":" + n.RawStatus
	if h.Inbox != nil {
		seen, err := h.Inbox.Seen(ctx, eventID)
		if err != nil {
			respondError(c, h.log(), err)
			return
		}
		if seen {
			h.log().InfoContext(ctx, "duplicate webhook ignored", "charge_id", n.ChargeID, "status", n.RawStatus)
			h.respond(c, n.Status)
			return
		}
	}

	cmd := bookingapp.SettleChargeCommand{ChargeID: n.ChargeID, Status: string(n.Status), Amount: n.Amount}
	if _, err := commands.Dispatch[bookingapp.SettleChargeCommand, *bookingapp.SettlementResult](ctx, h.Commands, cmd); err != nil {
		if h.Inbox != nil {
			if ferr := h.Inbox.Forget(context.WithoutCancel(ctx), eventID); ferr != nil {
				h.log().WarnContext(ctx, "inbox release failed", "event_id", eventID, "error", ferr)
			}
		}
		respondError(c, h.log(), err)
		return
	}
	h.log().InfoContext(ctx, "webhook processed", "charge_id", n.ChargeID, "status", n.Status)
	h.respond(c, n.Status)
}

// respond answers OK for confirmations and progress updates. Failed charges
// get 422 with the gateway status.
func (h WebhookHandler) respond(c *gin.Context, status policies.ChargeStatus) {
	if status.Failed() {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "payment was not completed: " + string(status)})
		return
	}
	c.String(http.StatusOK, "OK")
}

func (h WebhookHandler) log() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

var _ WebhookHTTP = WebhookHandler{}
