package booking

import (
	"rentguru/internal/app/commands"
	"rentguru/internal/app/dto"
	"rentguru/internal/app/queries"
	domainbooking "rentguru/internal/domain/booking"
)

// Register wires every booking command and query onto the buses.
func Register(cmds *commands.InMemoryBus, qs *queries.InMemoryBus, e *Engine) {
	commands.RegisterHandler[CreateRequestCommand, *RequestResult](cmds, CreateRequestKey, CreateRequestHandler{e})
	commands.RegisterHandler[AcceptRequestCommand, *DecisionResult](cmds, AcceptRequestKey, AcceptRequestHandler{e})
	commands.RegisterHandler[DenyRequestCommand, *RequestResult](cmds, DenyRequestKey, DenyRequestHandler{e})
	commands.RegisterHandler[ProposeTermsCommand, *RequestResult](cmds, ProposeTermsKey, ProposeTermsHandler{e})
	commands.RegisterHandler[ConfirmTermsCommand, *DecisionResult](cmds, ConfirmTermsKey, ConfirmTermsHandler{e})
	commands.RegisterHandler[DeclineTermsCommand, *RequestResult](cmds, DeclineTermsKey, DeclineTermsHandler{e})
	commands.RegisterHandler[PayCommand, *PaymentResult](cmds, PayKey, PayHandler{e})
	commands.RegisterHandler[SettleChargeCommand, *SettlementResult](cmds, SettleChargeKey, SettleChargeHandler{e})
	commands.RegisterHandler[CancelTripCommand, *TripResult](cmds, CancelTripKey, CancelTripHandler{e})
	commands.RegisterHandler[FinishTripCommand, *TripResult](cmds, FinishTripKey, FinishTripHandler{e})
	commands.RegisterHandler[ApplyPromoCommand, *AccountResult](cmds, ApplyPromoKey, ApplyPromoHandler{e})
	commands.RegisterHandler[OpenSupportCommand, *ConversationResult](cmds, OpenSupportKey, OpenSupportHandler{e})

	queries.RegisterHandler[GetRequestQuery, *dto.RequestView](qs, GetRequestKey, GetRequestHandler{e})
	queries.RegisterHandler[GetTripQuery, *dto.TripView](qs, GetTripKey, GetTripHandler{e})
	queries.RegisterHandler[GetAvailabilityQuery, *dto.AvailabilityView](qs, GetAvailabilityKey, GetAvailabilityHandler{e})
	queries.RegisterHandler[UnreadCountQuery, *dto.UnreadView](qs, UnreadCountKey, UnreadCountHandler{e})
}

// ErrorCodec lets the idempotency middleware replay deterministic failures
// with their kind. Gateway and internal failures are retried instead.
type ErrorCodec struct{}

func (ErrorCodec) Kind(err error) string {
	kind := domainbooking.KindOf(err)
	if kind == domainbooking.KindGateway {
		return ""
	}
	return string(kind)
}

func (ErrorCodec) Restore(kind, message string) error {
	return &domainbooking.Error{Kind: domainbooking.Kind(kind), Reason: message}
}
