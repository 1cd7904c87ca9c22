package negotiation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"rentguru/internal/app/commands"
	"rentguru/internal/app/dto"
	bookinghandlers "rentguru/internal/app/handlers/booking"
	"rentguru/internal/app/policies"
	"rentguru/internal/domain/booking"
	"rentguru/internal/domain/chat"
)

var errUnchanged = errors.New("negotiation: unchanged")

// Session is one live connection to a conversation.
type Session struct {
	svc          *Service
	conversation *chat.Conversation
	actor        booking.Actor
	language     string
	connID       string
}

func (s *Session) ConversationID() chat.ConversationID { return s.conversation.ID }
func (s *Session) ConnID() string                      { return s.connID }

// Greeting is the last_message frame sent right after the connection opens,
// or nil for an empty conversation.
func (s *Session) Greeting(ctx context.Context) ([]byte, error) {
	m, err := s.svc.Messages.Latest(ctx, s.conversation.ID)
	if errors.Is(err, chat.ErrMessageNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	view := dto.Message(m)
	return encode(Outbound{Type: FrameLastMessage, Message: &view}), nil
}

// Subscribe streams the conversation group's deliveries.
func (s *Session) Subscribe(ctx context.Context) (<-chan policies.Delivery, func(), error) {
	if s.svc.Broadcaster == nil {
		return nil, func() {}, errors.New("negotiation: no broadcaster configured")
	}
	return s.svc.Broadcaster.Subscribe(ctx, s.conversation.ID)
}

// Accepts reports whether a delivery is meant for this connection.
func (s *Session) Accepts(d policies.Delivery) bool {
	return d.Language == "" || d.Language == s.language
}

// Close leaves the presence set.
func (s *Session) Close(ctx context.Context) {
	if s.svc.Presence == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := s.svc.Presence.Leave(ctx, s.conversation.ID, s.connID); err != nil {
		s.svc.log().WarnContext(ctx, "presence leave failed", "conversation_id", s.conversation.ID, "error", err)
	}
	s.svc.log().InfoContext(ctx, "channel closed", "conversation_id", s.conversation.ID, "conn_id", s.connID)
}

// Handle processes one client frame and returns the direct reply, if any.
// Failures become error frames; the connection stays open.
func (s *Session) Handle(ctx context.Context, raw []byte) []byte {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return s.fail(ctx, "", ErrMalformedFrame)
	}
	reply, err := s.dispatch(ctx, in)
	if err != nil {
		return s.fail(ctx, in.Type, err)
	}
	return reply
}

func (s *Session) dispatch(ctx context.Context, in Inbound) ([]byte, error) {
	switch in.Type {
	case FrameSendMessage:
		return nil, s.send(ctx, in)
	case FrameUpdateMessage:
		return nil, s.edit(ctx, in)
	case FrameDeleteMessage:
		return nil, s.remove(ctx, in)
	case FrameMarkAsRead:
		return nil, s.markRead(ctx, in)
	case FrameLoadPrevious:
		return s.history(ctx, in)
	case FrameUpdateRequest:
		return s.proposeTerms(ctx, in)
	case FrameUpdateStatus:
		return s.decide(ctx, in)
	}
	return nil, ErrUnknownFrame
}

func (s *Session) fail(ctx context.Context, frameType string, err error) []byte {
	if errors.Is(err, policies.ErrLockTimeout) {
		return ErrorFrame(errBusy)
	}
	if chat.KindOf(err) == "" {
		s.svc.log().ErrorContext(ctx, "frame failed",
			"conversation_id", s.conversation.ID,
			"frame", frameType,
			"error", err,
		)
		return ErrorFrame(errInternalFrameError)
	}
	s.svc.log().DebugContext(ctx, "frame rejected", "frame", frameType, "error", err)
	return ErrorFrame(booking.PublicReason(err))
}

func (s *Session) send(ctx context.Context, in Inbound) error {
	svc := s.svc
	var url string
	if in.Attachment != "" {
		data, err := base64.StdEncoding.DecodeString(in.Attachment)
		if err != nil {
			return ErrBadAttachment
		}
		if svc.Attachments == nil {
			return ErrNoAttachments
		}
		contentType := in.ContentType
		if contentType == "" {
			contentType = http.DetectContentType(data)
		}
		key := fmt.Sprintf("conversations/%s/%s", s.conversation.ID, svc.newID())
		if url, err = svc.Attachments.Put(ctx, key, contentType, data); err != nil {
			return err
		}
	}
	msg, err := chat.NewMessage(chat.MessageID(svc.newID()), s.conversation.ID, s.actor.UserID, in.Text, url, s.language, svc.now())
	if err != nil {
		return err
	}
	if err := svc.post(ctx, msg); err != nil {
		return err
	}
	if err := svc.observe(ctx, s.conversation.ID, s.actor.UserID, msg.CreatedAt); err != nil {
		svc.log().WarnContext(ctx, "response tracking failed", "conversation_id", s.conversation.ID, "error", err)
	}
	svc.notifyOffline(ctx, s.conversation, s.actor.UserID)
	return nil
}

func (s *Session) edit(ctx context.Context, in Inbound) error {
	if in.MessageID == "" {
		return ErrMessageIDRequired
	}
	m, err := s.svc.Messages.Mutate(ctx, s.conversation.ID, chat.MessageID(in.MessageID), func(m *chat.Message) error {
		return m.Edit(s.actor, in.NewContent, s.svc.now())
	})
	if err != nil {
		return err
	}
	view := dto.Message(m)
	return s.svc.broadcast(ctx, s.conversation.ID, "", Outbound{Type: FrameMessageUpdated, Message: &view})
}

func (s *Session) remove(ctx context.Context, in Inbound) error {
	if in.MessageID == "" {
		return ErrMessageIDRequired
	}
	_, err := s.svc.Messages.Mutate(ctx, s.conversation.ID, chat.MessageID(in.MessageID), func(m *chat.Message) error {
		return m.Delete(s.actor, s.svc.now())
	})
	if err != nil {
		return err
	}
	return s.svc.broadcast(ctx, s.conversation.ID, "", Outbound{Type: FrameMessageDeleted, MessageID: in.MessageID})
}

func (s *Session) markRead(ctx context.Context, in Inbound) error {
	if in.MessageID == "" {
		return ErrMessageIDRequired
	}
	_, err := s.svc.Messages.Mutate(ctx, s.conversation.ID, chat.MessageID(in.MessageID), func(m *chat.Message) error {
		if !m.MarkRead(s.actor.UserID) {
			return errUnchanged
		}
		return nil
	})
	if errors.Is(err, errUnchanged) {
		return nil
	}
	if err != nil {
		return err
	}
	return s.svc.broadcast(ctx, s.conversation.ID, "", Outbound{Type: FrameMessageRead, MessageID: in.MessageID})
}

// history pages backwards from the newest message. Staff also see deleted messages.
func (s *Session) history(ctx context.Context, in Inbound) ([]byte, error) {
	page := chat.Page{Offset: in.Offset, Limit: in.Limit, IncludeDeleted: s.actor.Staff}
	msgs, err := s.svc.Messages.List(ctx, s.conversation.ID, page)
	if err != nil {
		return nil, err
	}
	views := make([]dto.MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, dto.Message(m))
	}
	return encode(previousFrame{Type: FramePrevious, Messages: views}), nil
}

func (s *Session) proposeTerms(ctx context.Context, in Inbound) ([]byte, error) {
	if s.conversation.Kind != chat.KindBooking {
		return nil, chat.ErrNotBookingChannel
	}
	if in.Fields == nil {
		return nil, ErrRequestFields
	}
	res, err := commands.Dispatch[bookinghandlers.ProposeTermsCommand, *bookinghandlers.RequestResult](ctx, s.svc.Commands, bookinghandlers.ProposeTermsCommand{
		Actor:     s.actor,
		RequestID: string(s.conversation.RequestID),
		StartDate: in.Fields.StartDate,
		EndDate:   in.Fields.EndDate,
		StartTime: in.Fields.StartTime,
		EndTime:   in.Fields.EndTime,
		Delivery:  in.Fields.Delivery,
		TotalCost: in.Fields.TotalCost,
		Deposit:   in.Fields.Deposit,
	})
	if err != nil {
		return nil, err
	}
	return encode(Outbound{Type: FrameRequestUpdated, Request: res}), nil
}

// decide lets the organizer accept or deny terms proposed by the owner.
func (s *Session) decide(ctx context.Context, in Inbound) ([]byte, error) {
	if s.conversation.Kind != chat.KindBooking {
		return nil, chat.ErrNotBookingChannel
	}
	requestID := string(s.conversation.RequestID)
	switch in.Status {
	case StatusAccept:
		res, err := commands.Dispatch[bookinghandlers.ConfirmTermsCommand, *bookinghandlers.DecisionResult](ctx, s.svc.Commands, bookinghandlers.ConfirmTermsCommand{
			Actor:     s.actor,
			RequestID: requestID,
		})
		if err != nil {
			return nil, err
		}
		return encode(Outbound{Type: FrameRequestUpdated, Request: &res.Request, Payment: res.Payment}), nil
	case StatusDeny:
		res, err := commands.Dispatch[bookinghandlers.DeclineTermsCommand, *bookinghandlers.RequestResult](ctx, s.svc.Commands, bookinghandlers.DeclineTermsCommand{
			Actor:     s.actor,
			RequestID: requestID,
			Reason:    in.Reason,
		})
		if err != nil {
			return nil, err
		}
		return encode(Outbound{Type: FrameRequestUpdated, Request: res}), nil
	}
	return nil, ErrUnknownStatus
}
