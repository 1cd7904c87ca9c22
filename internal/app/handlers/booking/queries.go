package booking

import (
	"context"

	"rentguru/internal/app/dto"
	"rentguru/internal/app/queries"
	"rentguru/internal/app/uow"
	domainbooking "rentguru/internal/domain/booking"
	"rentguru/internal/domain/chat"
	"rentguru/internal/domain/resource"
)

const (
	GetRequestKey      = "booking.get_request"
	GetTripKey         = "booking.get_trip"
	GetAvailabilityKey = "booking.get_availability"
	UnreadCountKey     = "booking.unread_count"
)

type GetRequestQuery struct {
	Actor     domainbooking.Actor
	RequestID string
}

func (GetRequestQuery) Key() string       { return GetRequestKey }
func (q GetRequestQuery) ActorID() string { return q.Actor.UserID }

type GetTripQuery struct {
	Actor  domainbooking.Actor
	TripID string
}

func (GetTripQuery) Key() string       { return GetTripKey }
func (q GetTripQuery) ActorID() string { return q.Actor.UserID }

type GetAvailabilityQuery struct {
	ResourceID string
}

func (GetAvailabilityQuery) Key() string { return GetAvailabilityKey }

type UnreadCountQuery struct {
	Actor domainbooking.Actor
}

func (UnreadCountQuery) Key() string       { return UnreadCountKey }
func (q UnreadCountQuery) ActorID() string { return q.Actor.UserID }

type GetRequestHandler struct{ *Engine }

func (h GetRequestHandler) Handle(ctx context.Context, q GetRequestQuery) (*dto.RequestView, error) {
	var out dto.RequestView
	err := h.read(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		req, err := unit.Requests().ByID(ctx, domainbooking.RequestID(q.RequestID))
		if err != nil {
			return err
		}
		if !req.IsParticipant(q.Actor) {
			return domainbooking.ErrForbidden
		}
		out = dto.Request(req)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type GetTripHandler struct{ *Engine }

func (h GetTripHandler) Handle(ctx context.Context, q GetTripQuery) (*dto.TripView, error) {
	var out dto.TripView
	err := h.read(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		trip, err := unit.Trips().ByID(ctx, domainbooking.TripID(q.TripID))
		if err != nil {
			return err
		}
		if !trip.IsParticipant(q.Actor) {
			return domainbooking.ErrForbidden
		}
		out = dto.Trip(trip)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type GetAvailabilityHandler struct{ *Engine }

func (h GetAvailabilityHandler) Handle(ctx context.Context, q GetAvailabilityQuery) (*dto.AvailabilityView, error) {
	var out dto.AvailabilityView
	err := h.read(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		res, err := unit.Resources().ByID(ctx, resource.ID(q.ResourceID))
		if err != nil {
			return err
		}
		out = dto.Availability(res)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

type UnreadCountHandler struct{ *Engine }

func (h UnreadCountHandler) Handle(ctx context.Context, q UnreadCountQuery) (*dto.UnreadView, error) {
	if h.Messages == nil {
		return &dto.UnreadView{}, nil
	}
	var ids []chat.ConversationID
	err := h.read(ctx, func(ctx context.Context, unit uow.UnitOfWork) error {
		convs, err := unit.Conversations().ListByParticipant(ctx, q.Actor.UserID)
		if err != nil {
			return err
		}
		for _, c := range convs {
			ids = append(ids, c.ID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	count, err := h.Messages.CountUnread(ctx, ids, q.Actor.UserID)
	if err != nil {
		return nil, err
	}
	return &dto.UnreadView{Count: count}, nil
}

var (
	_ queries.Handler[GetRequestQuery, *dto.RequestView]           = GetRequestHandler{}
	_ queries.Handler[GetTripQuery, *dto.TripView]                 = GetTripHandler{}
	_ queries.Handler[GetAvailabilityQuery, *dto.AvailabilityView] = GetAvailabilityHandler{}
	_ queries.Handler[UnreadCountQuery, *dto.UnreadView]           = UnreadCountHandler{}
)
