package ginserver

import (
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"

	"rentguru/internal/app/commands"
	"rentguru/internal/app/dto"
	bookingapp "rentguru/internal/app/handlers/booking"
	"rentguru/internal/app/queries"
)

type RequestHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type createRequestBody struct {
	ResourceID string `json:"vehicle_id" binding:"required"`
	StartDate  string `json:"start_date" binding:"required"`
	EndDate    string `json:"end_date" binding:"required"`
	StartTime  string `json:"start_time"`
	EndTime    string `json:"end_time"`
	Delivery   bool   `json:"delivery"`
	PromoCode  string `json:"promo_code"`
	Bonus      string `json:"bonus"`
}

func (h RequestHandler) Create(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var body createRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	cmd := bookingapp.CreateRequestCommand{
		Actor:           actor,
		ResourceID:      body.ResourceID,
		StartDate:       body.StartDate,
		EndDate:         body.EndDate,
		StartTime:       body.StartTime,
		EndTime:         body.EndTime,
		Delivery:        body.Delivery,
		PromoCode:       body.PromoCode,
		Bonus:           body.Bonus,
		IdempotencyKeyV: c.GetHeader("Idempotency-Key"),
	}
	result, err := commands.Dispatch[bookingapp.CreateRequestCommand, *bookingapp.RequestResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h RequestHandler) Get(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	q := bookingapp.GetRequestQuery{Actor: actor, RequestID: c.Param("id")}
	result, err := queries.Ask[bookingapp.GetRequestQuery, *dto.RequestView](c.Request.Context(), h.Queries, q)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h RequestHandler) Accept(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	cmd := bookingapp.AcceptRequestCommand{
		Actor:           actor,
		RequestID:       c.Param("id"),
		IdempotencyKeyV: c.GetHeader("Idempotency-Key"),
	}
	result, err := commands.Dispatch[bookingapp.AcceptRequestCommand, *bookingapp.DecisionResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type denyRequestBody struct {
	Reason string `json:"reason"`
}

func (h RequestHandler) Deny(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var body denyRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	cmd := bookingapp.DenyRequestCommand{Actor: actor, RequestID: c.Param("id"), Reason: body.Reason}
	result, err := commands.Dispatch[bookingapp.DenyRequestCommand, *bookingapp.RequestResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h RequestHandler) Pay(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	cmd := bookingapp.PayCommand{
		Actor:           actor,
		RequestID:       c.Param("id"),
		IdempotencyKeyV: c.GetHeader("Idempotency-Key"),
	}
	result, err := commands.Dispatch[bookingapp.PayCommand, *bookingapp.PaymentResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type TripHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

func (h TripHandler) Get(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	q := bookingapp.GetTripQuery{Actor: actor, TripID: c.Param("id")}
	result, err := queries.Ask[bookingapp.GetTripQuery, *dto.TripView](c.Request.Context(), h.Queries, q)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h TripHandler) Cancel(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	cmd := bookingapp.CancelTripCommand{Actor: actor, TripID: c.Param("id")}
	result, err := commands.Dispatch[bookingapp.CancelTripCommand, *bookingapp.TripResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h TripHandler) Finish(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	cmd := bookingapp.FinishTripCommand{Actor: actor, TripID: c.Param("id")}
	result, err := commands.Dispatch[bookingapp.FinishTripCommand, *bookingapp.TripResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type AccountHandler struct {
	Commands commands.Bus
	Logger   *slog.Logger
}

type applyPromoBody struct {
	Code string `json:"code" binding:"required"`
}

func (h AccountHandler) ApplyPromo(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var body applyPromoBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	cmd := bookingapp.ApplyPromoCommand{Actor: actor, Code: body.Code}
	result, err := commands.Dispatch[bookingapp.ApplyPromoCommand, *bookingapp.AccountResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// AvailabilityHandler is public: anyone may look at a vehicle's calendar.
type AvailabilityHandler struct {
	Queries queries.Bus
	Logger  *slog.Logger
}

func (h AvailabilityHandler) Availability(c *gin.Context) {
	q := bookingapp.GetAvailabilityQuery{ResourceID: c.Param("id")}
	result, err := queries.Ask[bookingapp.GetAvailabilityQuery, *dto.AvailabilityView](c.Request.Context(), h.Queries, q)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

type ConversationHandler struct {
	Commands commands.Bus
	Queries  queries.Bus
	Logger   *slog.Logger
}

type openSupportBody struct {
	Topic       string `json:"topic" binding:"required"`
	Description string `json:"description"`
}

func (h ConversationHandler) OpenSupport(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	var body openSupportBody
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, err)
		return
	}
	cmd := bookingapp.OpenSupportCommand{Actor: actor, Topic: body.Topic, Description: body.Description}
	result, err := commands.Dispatch[bookingapp.OpenSupportCommand, *bookingapp.ConversationResult](c.Request.Context(), h.Commands, cmd)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusCreated, result)
}

func (h ConversationHandler) Unread(c *gin.Context) {
	actor, ok := requireActor(c)
	if !ok {
		return
	}
	q := bookingapp.UnreadCountQuery{Actor: actor}
	result, err := queries.Ask[bookingapp.UnreadCountQuery, *dto.UnreadView](c.Request.Context(), h.Queries, q)
	if err != nil {
		respondError(c, h.Logger, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

var (
	_ RequestHTTP      = RequestHandler{}
	_ TripHTTP         = TripHandler{}
	_ AccountHTTP      = AccountHandler{}
	_ AvailabilityHTTP = AvailabilityHandler{}
	_ ConversationHTTP = ConversationHandler{}
)
