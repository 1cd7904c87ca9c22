package scylla

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gocql/gocql"

	"rentguru/internal/domain/chat"
)

const (
	messageColumns = `message_id, sender_id, content, attachment_url, structured, deleted, read, language, created_at, edited_at, version`
	casRetries     = 5
)

var ErrContention = errors.New("scylla: message changed concurrently, giving up")

// Store keeps conversation logs in Scylla. Each conversation is one
// partition ordered by a time uuid, newest first; message ids resolve
// through a side table.
type Store struct {
	session *gocql.Session
	logger  *slog.Logger
}

func NewStore(session *gocql.Session, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{session: session, logger: logger}
}

type row struct {
	seq        gocql.UUID
	id         string
	sender     string
	content    string
	url        string
	structured bool
	deleted    bool
	read       bool
	language   string
	createdAt  time.Time
	editedAt   time.Time
	version    int
}

func (r *row) dest() []any {
	return []any{&r.id, &r.sender, &r.content, &r.url, &r.structured, &r.deleted, &r.read, &r.language, &r.createdAt, &r.editedAt, &r.version}
}

func (r *row) message(conversationID chat.ConversationID) *chat.Message {
	m := &chat.Message{
		ID:             chat.MessageID(r.id),
		ConversationID: conversationID,
		SenderID:       r.sender,
		Content:        r.content,
		AttachmentURL:  r.url,
		Structured:     r.structured,
		Deleted:        r.deleted,
		Read:           r.read,
		Language:       r.language,
		CreatedAt:      r.createdAt.UTC(),
	}
	if !r.editedAt.IsZero() {
		at := r.editedAt.UTC()
		m.EditedAt = &at
	}
	return m
}

func editedAt(m *chat.Message) any {
	if m.EditedAt == nil {
		return nil
	}
	return m.EditedAt.UTC()
}

// Append writes the message and its id lookup in one logged batch.
func (s *Store) Append(ctx context.Context, m *chat.Message) error {
	seq := gocql.UUIDFromTime(m.CreatedAt)
	conv := string(m.ConversationID)
	batch := s.session.NewBatch(gocql.LoggedBatch).WithContext(ctx)
	batch.Query(`INSERT INTO messages (conversation_id, seq, `+messageColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		conv, seq, string(m.ID), m.SenderID, m.Content, m.AttachmentURL, m.Structured, m.Deleted, m.Read, m.Language, m.CreatedAt.UTC(), editedAt(m))
	batch.Query(`INSERT INTO message_ids (conversation_id, message_id, seq) VALUES (?, ?, ?)`, conv, string(m.ID), seq)
	if err := s.session.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("scylla: append message: %w", err)
	}
	return nil
}

func (s *Store) Latest(ctx context.Context, conversationID chat.ConversationID) (*chat.Message, error) {
	out, err := s.List(ctx, conversationID, chat.Page{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, chat.ErrMessageNotFound
	}
	return out[0], nil
}

// List walks the partition newest first. Deleted rows do not count toward the offset
// unless the page includes them.
func (s *Store) List(ctx context.Context, conversationID chat.ConversationID, page chat.Page) ([]*chat.Message, error) {
	page = page.Normalize()
	iter := s.session.
		Query(`SELECT seq, `+messageColumns+` FROM messages WHERE conversation_id = ?`, string(conversationID)).
		WithContext(ctx).
		PageSize(page.Offset + page.Limit).
		Iter()

	out := make([]*chat.Message, 0, page.Limit)
	skipped := 0
	var r row
	for len(out) < page.Limit && iter.Scan(append([]any{&r.seq}, r.dest()...)...) {
		if r.deleted && !page.IncludeDeleted {
			continue
		}
		if skipped < page.Offset {
			skipped++
			continue
		}
		out = append(out, r.message(conversationID))
		r = row{}
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("scylla: list messages: %w", err)
	}
	return out, nil
}

func (s *Store) load(ctx context.Context, conversationID chat.ConversationID, id chat.MessageID) (row, error) {
	var r row
	err := s.session.
		Query(`SELECT seq FROM message_ids WHERE conversation_id = ? AND message_id = ?`, string(conversationID), string(id)).
		WithContext(ctx).
		Scan(&r.seq)
	if errors.Is(err, gocql.ErrNotFound) {
		return r, chat.ErrMessageNotFound
	}
	if err != nil {
		return r, err
	}
	err = s.session.
		Query(`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? AND seq = ?`, string(conversationID), r.seq).
		WithContext(ctx).
		Scan(r.dest()...)
	if errors.Is(err, gocql.ErrNotFound) {
		return r, chat.ErrMessageNotFound
	}
	return r, err
}

// Mutate applies fn with compare-and-set on the row version, reloading and
// retrying when another writer got there first.
func (s *Store) Mutate(ctx context.Context, conversationID chat.ConversationID, id chat.MessageID, fn func(*chat.Message) error) (*chat.Message, error) {
	for attempt := 0; attempt < casRetries; attempt++ {
		r, err := s.load(ctx, conversationID, id)
		if err != nil {
			return nil, err
		}
		m := r.message(conversationID)
		if err := fn(m); err != nil {
			return nil, err
		}
		applied, err := s.session.
			Query(`UPDATE messages SET content = ?, attachment_url = ?, deleted = ?, read = ?, language = ?, edited_at = ?, version = ?
				WHERE conversation_id = ? AND seq = ? IF version = ?`,
				m.Content, m.AttachmentURL, m.Deleted, m.Read, m.Language, editedAt(m), r.version+1,
				string(conversationID), r.seq, r.version).
			WithContext(ctx).
			SerialConsistency(gocql.LocalSerial).
			MapScanCAS(map[string]any{})
		if err != nil {
			return nil, fmt.Errorf("scylla: update message: %w", err)
		}
		if applied {
			return m, nil
		}
		s.logger.Debug("message cas lost, retrying", "conversation_id", conversationID, "message_id", id, "attempt", attempt+1)
	}
	return nil, ErrContention
}

// CountUnread scans each conversation partition once.
func (s *Store) CountUnread(ctx context.Context, conversationIDs []chat.ConversationID, readerID string) (int, error) {
	seen := make(map[chat.ConversationID]struct{}, len(conversationIDs))
	count := 0
	for _, id := range conversationIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		iter := s.session.
			Query(`SELECT sender_id, deleted, read FROM messages WHERE conversation_id = ?`, string(id)).
			WithContext(ctx).
			Iter()
		var (
			sender        string
			deleted, read bool
		)
		for iter.Scan(&sender, &deleted, &read) {
			if !read && !deleted && sender != readerID {
				count++
			}
		}
		if err := iter.Close(); err != nil {
			return 0, fmt.Errorf("scylla: count unread: %w", err)
		}
	}
	return count, nil
}

var _ chat.MessageStore = (*Store)(nil)
