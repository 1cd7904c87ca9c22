package negotiation

import (
	"encoding/json"

	"rentguru/internal/app/dto"
	"rentguru/internal/domain/booking"
)

// Client frames.
const (
	FrameSendMessage   = "send_message"
	FrameUpdateMessage = "update_message"
	FrameDeleteMessage = "delete_message"
	FrameMarkAsRead    = "mark_as_read"
	FrameLoadPrevious  = "load_previous_messages"
	FrameUpdateRequest = "update_request"
	FrameUpdateStatus  = "update_status"
)

// Server frames.
const (
	FrameLastMessage    = "last_message"
	FrameMessage        = "message"
	FrameMessageUpdated = "message_updated"
	FrameMessageDeleted = "message_deleted"
	FrameMessageRead    = "message_read"
	FramePrevious       = "previous_messages"
	FrameTranslation    = "translation"
	FrameRequestUpdated = "request_updated"
	FrameError          = "error"
	StatusAccept        = "accept"
	StatusDeny          = "deny"
)

var (
	ErrMalformedFrame     = booking.Validation("frame is not valid JSON")
	ErrUnknownFrame       = booking.Validation("unknown frame type")
	ErrMessageIDRequired  = booking.Validation("message id is required")
	ErrBadAttachment      = booking.Validation("attachment must be base64 encoded")
	ErrNoAttachments      = booking.Validation("attachments are not supported")
	ErrRequestFields      = booking.Validation("request fields are required")
	ErrUnknownStatus      = booking.Validation("status must be accept or deny")
	errInternalFrameError = "something went wrong, please try again"
	errBusy               = "the conversation is busy, please retry"
)

// Inbound is any client frame; only the fields of its type are read.
type Inbound struct {
	Type        string         `json:"type"`
	Text        string         `json:"text,omitempty"`
	Attachment  string         `json:"attachment,omitempty"`
	ContentType string         `json:"content_type,omitempty"`
	MessageID   string         `json:"id,omitempty"`
	NewContent  string         `json:"new_content,omitempty"`
	Offset      int            `json:"offset,omitempty"`
	Limit       int            `json:"limit,omitempty"`
	Fields      *RequestFields `json:"fields,omitempty"`
	Status      string         `json:"status,omitempty"`
	Reason      string         `json:"reason,omitempty"`
}

// RequestFields are the terms an owner proposes through update_request.
type RequestFields struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`
	Delivery  bool   `json:"delivery,omitempty"`
	TotalCost string `json:"total_cost,omitempty"`
	Deposit   string `json:"deposit_cost,omitempty"`
}

type Outbound struct {
	Type      string           `json:"type"`
	Message   *dto.MessageView `json:"message,omitempty"`
	MessageID string           `json:"message_id,omitempty"`
	Language  string           `json:"language,omitempty"`
	Text      string           `json:"text,omitempty"`
	Request   *dto.RequestView `json:"request,omitempty"`
	Payment   *dto.PaymentView `json:"payment,omitempty"`
}

type previousFrame struct {
	Type     string            `json:"type"`
	Messages []dto.MessageView `json:"messages"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func encode(v any) []byte {
	raw, err := json.Marshal(v)
	if err != nil {
		raw, _ = json.Marshal(errorFrame{Type: FrameError, Message: errInternalFrameError})
	}
	return raw
}

// ErrorFrame renders a user-facing error reply.
func ErrorFrame(message string) []byte {
	return encode(errorFrame{Type: FrameError, Message: message})
}
