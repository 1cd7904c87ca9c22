package negotiation

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rentguru/internal/app/commands"
	bookinghandlers "rentguru/internal/app/handlers/booking"
	"rentguru/internal/app/policies"
	"rentguru/internal/app/queries"
	"rentguru/internal/app/uow"
	"rentguru/internal/domain/booking"
	"rentguru/internal/domain/chat"
	"rentguru/internal/domain/resource"
	"rentguru/internal/domain/shared/money"
	"rentguru/internal/infra/storage/memory"
)

var (
	renter  = booking.Actor{UserID: "renter"}
	captain = booking.Actor{UserID: "captain"}
	staff   = booking.Actor{UserID: "support", Staff: true}
)

type fakeTranslator struct{}

func (fakeTranslator) Translate(ctx context.Context, text, lang string) (string, error) {
	if lang == "de" {
		return "", errors.New("quota exceeded")
	}
	return "[" + lang + "] " + text, nil
}

type fakeAttachments struct {
	mu   sync.Mutex
	keys []string
}

func (a *fakeAttachments) Put(ctx context.Context, key, contentType string, data []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.keys = append(a.keys, key+"|"+contentType)
	return "https://cdn.test/" + key, nil
}

type fixture struct {
	svc       *Service
	store     *memory.Store
	messages  *memory.MessageStore
	notifier  *memory.Notifier
	files     *fakeAttachments
	requestID string
	convID    chat.ConversationID

	mu  sync.Mutex
	now time.Time
}

func (f *fixture) clock() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fixture) advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// newFixture opens a negotiation on an open-to-request boat.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memory.NewStore()
	tariffs, err := resource.NewTariffTable(20, resource.TariffInput{Period: resource.PeriodDay, Price: money.RUB(100)})
	require.NoError(t, err)
	boat, err := resource.New(resource.KindShip, resource.Vehicle{
		ID:                "boat-1",
		OwnerID:           captain.UserID,
		CommissionPercent: 20,
		Tariffs:           tariffs,
		Calendar:          resource.OpenToRequest(),
	})
	require.NoError(t, err)
	store.PutResource(boat)

	f := &fixture{
		store:    store,
		messages: memory.NewMessageStore(),
		notifier: &memory.Notifier{},
		files:    &fakeAttachments{},
		now:      time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
	}
	var seq int64
	newID := func() string { return fmt.Sprintf("id-%d", atomic.AddInt64(&seq, 1)) }
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	locker := memory.NewLocker()
	factory := memory.NewFactory(store)

	bus := commands.NewInMemoryBus()
	f.svc = &Service{
		UoWFactory:  factory,
		Messages:    f.messages,
		Presence:    memory.NewPresence(),
		Broadcaster: memory.NewBroadcaster(),
		Translator:  fakeTranslator{},
		Attachments: f.files,
		Notifier:    f.notifier,
		Locker:      locker,
		Commands:    bus,
		Logger:      logger,
		Now:         f.clock,
		NewID:       newID,
	}
	engine := &bookinghandlers.Engine{
		UoWFactory: factory,
		Gateway:    memory.NewGateway(),
		Locker:     locker,
		Messages:   f.messages,
		Publisher:  f.svc,
		Outbox:     memory.NewOutbox(),
		Logger:     logger,
		Now:        f.clock,
		NewID:      newID,
	}
	bookinghandlers.Register(bus, queries.NewInMemoryBus(), engine)

	req, err := commands.Dispatch[bookinghandlers.CreateRequestCommand, *bookinghandlers.RequestResult](context.Background(), bus, bookinghandlers.CreateRequestCommand{
		Actor:      renter,
		ResourceID: "boat-1",
		StartDate:  "2024-02-01",
		EndDate:    "2024-02-03",
	})
	require.NoError(t, err)
	f.requestID = req.ID

	unit, err := factory.Begin(context.Background(), uow.TxOptions{ReadOnly: true})
	require.NoError(t, err)
	conv, err := unit.Conversations().ByRequest(context.Background(), booking.RequestID(req.ID))
	require.NoError(t, err)
	f.convID = conv.ID
	return f
}

type client struct {
	sess   *Session
	ch     <-chan policies.Delivery
	cancel func()
}

func (f *fixture) join(t *testing.T, actor booking.Actor, lang string) *client {
	t.Helper()
	ctx := context.Background()
	sess, err := f.svc.Open(ctx, f.convID, actor, lang)
	require.NoError(t, err)
	ch, cancel, err := sess.Subscribe(ctx)
	require.NoError(t, err)
	c := &client{sess: sess, ch: ch, cancel: cancel}
	t.Cleanup(func() {
		cancel()
		sess.Close(ctx)
	})
	return c
}

func (c *client) send(t *testing.T, frame map[string]any) map[string]any {
	t.Helper()
	raw, err := json.Marshal(frame)
	require.NoError(t, err)
	reply := c.sess.Handle(context.Background(), raw)
	if reply == nil {
		return nil
	}
	var out map[string]any
	require.NoError(t, json.Unmarshal(reply, &out))
	return out
}

// next returns the next delivery addressed to this client.
func (c *client) next(t *testing.T) map[string]any {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case d := <-c.ch:
			if !c.sess.Accepts(d) {
				continue
			}
			var out map[string]any
			require.NoError(t, json.Unmarshal(d.Frame, &out))
			return out
		case <-deadline:
			t.Fatal("no delivery")
			return nil
		}
	}
}

func (c *client) nextOf(t *testing.T, frameType string) map[string]any {
	t.Helper()
	for {
		frame := c.next(t)
		if frame["type"] == frameType {
			return frame
		}
	}
}

func TestOpenRequiresParticipant(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.Open(context.Background(), f.convID, booking.Actor{UserID: "stranger"}, "en")
	assert.ErrorIs(t, err, chat.ErrNotParticipant)

	_, err = f.svc.Open(context.Background(), "missing", renter, "en")
	assert.ErrorIs(t, err, chat.ErrConversationNotFound)

	c := f.join(t, staff, "en")
	greeting, err := c.sess.Greeting(context.Background())
	require.NoError(t, err)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(greeting, &frame))
	assert.Equal(t, FrameLastMessage, frame["type"])
	msg := frame["message"].(map[string]any)
	assert.Equal(t, true, msg["structured"], "the booking card opens the conversation")
}

func TestSendMessageBroadcastsAndTranslates(t *testing.T) {
	f := newFixture(t)
	r := f.join(t, renter, "ru")
	c := f.join(t, captain, "en")

	assert.Nil(t, r.send(t, map[string]any{"type": FrameSendMessage, "text": "  privet  "}))

	got := r.next(t)
	assert.Equal(t, FrameMessage, got["type"])
	assert.Equal(t, "privet", got["message"].(map[string]any)["content"])

	assert.Equal(t, FrameMessage, c.next(t)["type"])
	tr := c.nextOf(t, FrameTranslation)
	assert.Equal(t, "[en] privet", tr["text"])
	assert.Equal(t, "en", tr["language"])
	f.svc.Wait()

	select {
	case d := <-r.ch:
		assert.False(t, r.sess.Accepts(d), "translations only reach members of that language")
	default:
	}
	assert.Empty(t, f.notifier.Sent(), "everyone is online")
}

func TestFailedTranslationFallsBackToOriginal(t *testing.T) {
	f := newFixture(t)
	r := f.join(t, renter, "ru")
	c := f.join(t, captain, "de")

	r.send(t, map[string]any{"type": FrameSendMessage, "text": "privet"})
	tr := c.nextOf(t, FrameTranslation)
	assert.Equal(t, "privet", tr["text"])
	f.svc.Wait()
}

func TestOfflineRecipientIsNotified(t *testing.T) {
	f := newFixture(t)
	r := f.join(t, renter, "ru")

	r.send(t, map[string]any{"type": FrameSendMessage, "text": "are you there?"})
	sent := f.notifier.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, captain.UserID, sent[0].UserID)
	assert.Equal(t, "/conversations/"+string(f.convID), sent[0].Link)
}

func TestAttachmentUpload(t *testing.T) {
	f := newFixture(t)
	r := f.join(t, renter, "ru")

	bad := r.send(t, map[string]any{"type": FrameSendMessage, "attachment": "%%%"})
	assert.Equal(t, FrameError, bad["type"])
	assert.Equal(t, "attachment must be base64 encoded", bad["message"])

	data := base64.StdEncoding.EncodeToString([]byte("%PDF-1.4 contract"))
	assert.Nil(t, r.send(t, map[string]any{"type": FrameSendMessage, "attachment": data, "content_type": "application/pdf"}))
	msg := r.next(t)["message"].(map[string]any)
	assert.Contains(t, msg["attachment_url"], "https://cdn.test/conversations/"+string(f.convID)+"/")
	require.Len(t, f.files.keys, 1)
	assert.Contains(t, f.files.keys[0], "|application/pdf")
}

func TestEditDeleteAndRead(t *testing.T) {
	f := newFixture(t)
	r := f.join(t, renter, "ru")
	c := f.join(t, captain, "ru")

	r.send(t, map[string]any{"type": FrameSendMessage, "text": "hello"})
	id := r.next(t)["message"].(map[string]any)["id"].(string)
	c.next(t)

	denied := c.send(t, map[string]any{"type": FrameUpdateMessage, "id": id, "new_content": "hijack"})
	assert.Equal(t, "only the sender can change this message", denied["message"])

	assert.Nil(t, r.send(t, map[string]any{"type": FrameUpdateMessage, "id": id, "new_content": "hello there"}))
	updated := c.next(t)
	assert.Equal(t, FrameMessageUpdated, updated["type"])
	assert.Equal(t, "hello there", updated["message"].(map[string]any)["content"])

	assert.Nil(t, r.send(t, map[string]any{"type": FrameMarkAsRead, "id": id}))
	assert.Nil(t, c.send(t, map[string]any{"type": FrameMarkAsRead, "id": id}))
	read := r.nextOf(t, FrameMessageRead)
	assert.Equal(t, id, read["message_id"])
	assert.Nil(t, c.send(t, map[string]any{"type": FrameMarkAsRead, "id": id}))
	select {
	case d := <-r.ch:
		t.Fatalf("repeated read must not broadcast, got %s", d.Frame)
	default:
	}

	assert.Nil(t, r.send(t, map[string]any{"type": FrameDeleteMessage, "id": id}))
	assert.Equal(t, id, c.nextOf(t, FrameMessageDeleted)["message_id"])
	gone := r.send(t, map[string]any{"type": FrameDeleteMessage, "id": id})
	assert.Equal(t, FrameError, gone["type"])

	missing := r.send(t, map[string]any{"type": FrameUpdateMessage, "new_content": "x"})
	assert.Equal(t, "message id is required", missing["message"])
}

func TestHistoryHidesDeletedFromParticipants(t *testing.T) {
	f := newFixture(t)
	r := f.join(t, renter, "ru")
	s := f.join(t, staff, "ru")

	for _, text := range []string{"one", "two", "three"} {
		r.send(t, map[string]any{"type": FrameSendMessage, "text": text})
		f.advance(time.Minute)
	}
	last, err := f.messages.Latest(context.Background(), f.convID)
	require.NoError(t, err)
	assert.Nil(t, r.send(t, map[string]any{"type": FrameDeleteMessage, "id": string(last.ID)}))

	page := r.send(t, map[string]any{"type": FrameLoadPrevious, "offset": 0, "limit": 2})
	assert.Equal(t, FramePrevious, page["type"])
	msgs := page["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[0].(map[string]any)["content"])

	all := s.send(t, map[string]any{"type": FrameLoadPrevious, "limit": 10})
	staffView := all["messages"].([]any)
	assert.Equal(t, "three", staffView[0].(map[string]any)["content"])
	assert.Equal(t, true, staffView[0].(map[string]any)["deleted"])

	empty := r.send(t, map[string]any{"type": FrameLoadPrevious, "offset": 50})
	assert.Equal(t, []any{}, empty["messages"])
}

func TestOwnerResponseTimeIsRecorded(t *testing.T) {
	f := newFixture(t)
	r := f.join(t, renter, "ru")
	c := f.join(t, captain, "ru")

	r.send(t, map[string]any{"type": FrameSendMessage, "text": "is it free?"})
	f.advance(15 * time.Minute)
	c.send(t, map[string]any{"type": FrameSendMessage, "text": "yes"})

	unit, err := f.svc.UoWFactory.Begin(context.Background(), uow.TxOptions{ReadOnly: true})
	require.NoError(t, err)
	acc, err := unit.Accounts().ByUser(context.Background(), captain.UserID)
	require.NoError(t, err)
	assert.Equal(t, 1, acc.Responses)
	assert.Equal(t, 15*time.Minute, acc.ResponseTime)
}

func TestNegotiateTermsOverChannel(t *testing.T) {
	f := newFixture(t)
	r := f.join(t, renter, "ru")
	c := f.join(t, captain, "ru")

	early := r.send(t, map[string]any{"type": FrameUpdateStatus, "status": StatusAccept})
	assert.Equal(t, FrameError, early["type"])

	proposed := c.send(t, map[string]any{"type": FrameUpdateRequest, "fields": map[string]any{
		"start_date": "2024-02-02",
		"end_date":   "2024-02-04",
		"total_cost": "300",
	}})
	require.Equal(t, FrameRequestUpdated, proposed["type"], "%v", proposed)
	assert.Equal(t, true, proposed["request"].(map[string]any)["terms_proposed"])

	card := r.nextOf(t, FrameMessage)
	assert.Equal(t, true, card["message"].(map[string]any)["structured"])

	forbidden := c.send(t, map[string]any{"type": FrameUpdateStatus, "status": StatusAccept})
	assert.Equal(t, FrameError, forbidden["type"])

	bogus := r.send(t, map[string]any{"type": FrameUpdateStatus, "status": "maybe"})
	assert.Equal(t, "status must be accept or deny", bogus["message"])

	accepted := r.send(t, map[string]any{"type": FrameUpdateStatus, "status": StatusAccept})
	require.Equal(t, FrameRequestUpdated, accepted["type"], "%v", accepted)
	assert.Equal(t, string(booking.StatusAccepted), accepted["request"].(map[string]any)["status"])
	payment := accepted["payment"].(map[string]any)
	assert.Equal(t, "60.00", payment["amount"].(map[string]any)["amount"])
}

func TestMalformedAndUnknownFrames(t *testing.T) {
	f := newFixture(t)
	r := f.join(t, renter, "ru")

	var frame map[string]any
	require.NoError(t, json.Unmarshal(r.sess.Handle(context.Background(), []byte("{nope")), &frame))
	assert.Equal(t, FrameError, frame["type"])
	assert.Equal(t, "frame is not valid JSON", frame["message"])

	unknown := r.send(t, map[string]any{"type": "dance"})
	assert.Equal(t, "unknown frame type", unknown["message"])

	empty := r.send(t, map[string]any{"type": FrameSendMessage, "text": " "})
	assert.Equal(t, "message must have text or an attachment", empty["message"])
}

func TestSupportConversationRejectsBookingFrames(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conv, err := chat.NewSupportConversation("support-1", renter.UserID, "payment", "double charge", f.clock())
	require.NoError(t, err)
	unit, err := f.svc.UoWFactory.Begin(ctx, uow.TxOptions{})
	require.NoError(t, err)
	require.NoError(t, unit.Conversations().Save(ctx, conv))
	require.NoError(t, unit.Commit(ctx))

	sess, err := f.svc.Open(ctx, conv.ID, renter, "ru")
	require.NoError(t, err)
	defer sess.Close(ctx)

	var frame map[string]any
	require.NoError(t, json.Unmarshal(sess.Handle(ctx, []byte(`{"type":"update_status","status":"accept"}`)), &frame))
	assert.Equal(t, "booking commands are only available in a booking conversation", frame["message"])
}
