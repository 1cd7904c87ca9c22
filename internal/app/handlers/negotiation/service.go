package negotiation

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"rentguru/internal/app/commands"
	"rentguru/internal/app/dto"
	"rentguru/internal/app/policies"
	"rentguru/internal/app/uow"
	"rentguru/internal/domain/booking"
	"rentguru/internal/domain/chat"
	"rentguru/internal/domain/incentive"
)

// Service runs the live negotiation channel of conversations. Presence,
// Broadcaster and Locker are shared across instances; the rest is optional.
type Service struct {
	UoWFactory  uow.UoWFactory
	Messages    chat.MessageStore
	Presence    policies.Presence
	Broadcaster policies.Broadcaster
	Translator  policies.Translator
	Attachments policies.AttachmentStore
	Notifier    policies.Notifier
	Locker      policies.Locker
	Commands    commands.Bus
	Logger      *slog.Logger
	Now         func() time.Time
	NewID       func() string

	translations sync.WaitGroup
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *Service) log() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Open admits the actor to the conversation and registers the connection
// in the presence set.
func (s *Service) Open(ctx context.Context, conversationID chat.ConversationID, actor booking.Actor, language string) (*Session, error) {
	conv, err := s.conversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if !conv.CanAccess(actor) {
		return nil, chat.ErrNotParticipant
	}
	sess := &Session{
		svc:          s,
		conversation: conv,
		actor:        actor,
		language:     language,
		connID:       s.newID(),
	}
	if s.Presence != nil {
		member := policies.Member{ConnID: sess.connID, UserID: actor.UserID, Language: language}
		if err := s.Presence.Join(ctx, conv.ID, member); err != nil {
			return nil, err
		}
	}
	s.log().InfoContext(ctx, "channel opened",
		"conversation_id", conv.ID,
		"user_id", actor.UserID,
		"conn_id", sess.connID,
	)
	return sess, nil
}

func (s *Service) conversation(ctx context.Context, id chat.ConversationID) (*chat.Conversation, error) {
	ctx, unit, release, err := uow.BeginReadOnly(ctx, s.UoWFactory)
	if err != nil {
		return nil, err
	}
	defer release()
	return unit.Conversations().ByID(ctx, id)
}

// PublishMessage broadcasts a stored message to the conversation and starts
// its translations.
func (s *Service) PublishMessage(ctx context.Context, m *chat.Message) error {
	view := dto.Message(m)
	if err := s.broadcast(ctx, m.ConversationID, "", Outbound{Type: FrameMessage, Message: &view}); err != nil {
		return err
	}
	s.translate(ctx, m)
	return nil
}

func (s *Service) broadcast(ctx context.Context, id chat.ConversationID, language string, frame any) error {
	if s.Broadcaster == nil {
		return nil
	}
	return s.Broadcaster.Publish(ctx, policies.Delivery{
		ConversationID: id,
		Language:       language,
		Frame:          encode(frame),
	})
}

// post appends and publishes under the conversation lock so every member
// observes the append order.
func (s *Service) post(ctx context.Context, m *chat.Message) error {
	if s.Locker != nil {
		unlock, err := s.Locker.Lock(ctx, policies.ConversationLockKey(string(m.ConversationID)))
		if err != nil {
			return err
		}
		defer unlock()
	}
	if err := s.Messages.Append(ctx, m); err != nil {
		return err
	}
	return s.PublishMessage(ctx, m)
}

// translate sends one translated copy per distinct member language. A failed
// translation falls back to the original text.
func (s *Service) translate(ctx context.Context, m *chat.Message) {
	if s.Translator == nil || s.Presence == nil || m.Structured || m.Content == "" {
		return
	}
	members, err := s.Presence.Members(ctx, m.ConversationID)
	if err != nil {
		s.log().WarnContext(ctx, "presence lookup failed", "conversation_id", m.ConversationID, "error", err)
		return
	}
	languages := make(map[string]struct{})
	for _, member := range members {
		if member.Language != "" && member.Language != m.Language {
			languages[member.Language] = struct{}{}
		}
	}
	ctx = context.WithoutCancel(ctx)
	for lang := range languages {
		s.translations.Add(1)
		go func(lang string) {
			defer s.translations.Done()
			text, err := s.Translator.Translate(ctx, m.Content, lang)
			if err != nil {
				s.log().WarnContext(ctx, "translation failed", "message_id", m.ID, "language", lang, "error", err)
				text = m.Content
			}
			frame := Outbound{Type: FrameTranslation, MessageID: string(m.ID), Language: lang, Text: text}
			if err := s.broadcast(ctx, m.ConversationID, lang, frame); err != nil {
				s.log().WarnContext(ctx, "translation broadcast failed", "message_id", m.ID, "error", err)
			}
		}(lang)
	}
}

// Wait blocks until in-flight translations are delivered.
func (s *Service) Wait() {
	s.translations.Wait()
}

// observe updates owner response statistics for the sender's message.
func (s *Service) observe(ctx context.Context, id chat.ConversationID, senderID string, at time.Time) error {
	if s.UoWFactory == nil {
		return nil
	}
	unit, err := s.UoWFactory.Begin(ctx, uow.TxOptions{})
	if err != nil {
		return err
	}
	ctx = uow.ContextWithUnitOfWork(uow.Inject(ctx, unit), unit)
	if err := s.recordResponse(ctx, unit, id, senderID, at); err != nil {
		_ = unit.Rollback(ctx)
		return err
	}
	return unit.Commit(ctx)
}

func (s *Service) recordResponse(ctx context.Context, unit uow.UnitOfWork, id chat.ConversationID, senderID string, at time.Time) error {
	conv, err := unit.Conversations().ByID(ctx, id)
	if err != nil {
		return err
	}
	waiting := conv.AwaitingOwnerSince
	delay, answered := conv.ObserveMessage(senderID, at)
	if waiting == conv.AwaitingOwnerSince {
		return nil
	}
	if err := unit.Conversations().Save(ctx, conv); err != nil {
		return err
	}
	if !answered {
		return nil
	}
	acc, err := unit.Accounts().ByUser(ctx, conv.OwnerID)
	if errors.Is(err, incentive.ErrAccountNotFound) {
		acc = incentive.NewAccount(conv.OwnerID)
	} else if err != nil {
		return err
	}
	acc.RecordResponse(delay, at)
	return unit.Accounts().Save(ctx, acc)
}

// notifyOffline pings recipients without a live connection.
func (s *Service) notifyOffline(ctx context.Context, conv *chat.Conversation, senderID string) {
	if s.Notifier == nil {
		return
	}
	online := make(map[string]bool)
	if s.Presence != nil {
		members, err := s.Presence.Members(ctx, conv.ID)
		if err != nil {
			s.log().WarnContext(ctx, "presence lookup failed", "conversation_id", conv.ID, "error", err)
		}
		for _, m := range members {
			online[m.UserID] = true
		}
	}
	link := "/conversations/" + string(conv.ID)
	for _, userID := range conv.Recipients(senderID) {
		if online[userID] {
			continue
		}
		if err := s.Notifier.Notify(ctx, userID, "You have a new message", link); err != nil {
			s.log().WarnContext(ctx, "notification failed", "user_id", userID, "error", err)
		}
	}
}
