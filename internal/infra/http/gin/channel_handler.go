package ginserver

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	gin "github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"rentguru/internal/app/handlers/negotiation"
	"rentguru/internal/app/policies"
	"rentguru/internal/domain/chat"
)

const (
	DefaultLanguage = "ru"

	writeWait     = 10 * time.Second
	pongWait      = 60 * time.Second
	pingPeriod    = pongWait * 9 / 10
	maxFrameBytes = 16 << 20
	outboundQueue = 64
)

// ChannelHandler upgrades /ws/conversations/:id to the negotiation channel.
// Authentication happens before the upgrade, so a bad token never gets a socket.
type ChannelHandler struct {
	Service  *negotiation.Service
	Verifier policies.TokenVerifier
	Upgrader websocket.Upgrader
	Logger   *slog.Logger
}

func (h ChannelHandler) Connect(c *gin.Context) {
	reqCtx := c.Request.Context()
	token := c.Query("token")
	if token == "" {
		token = extractBearerToken(c.GetHeader("Authorization"))
	}
	if token == "" || h.Verifier == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth required"})
		return
	}
	actor, err := h.Verifier.Verify(reqCtx, token)
	if err != nil {
		h.log().DebugContext(reqCtx, "channel token rejected", "error", err)
		c.JSON(http.StatusUnauthorized, gin.H{"error": "auth required"})
		return
	}
	lang := strings.ToLower(strings.TrimSpace(c.Query("lang")))
	if lang == "" {
		lang = DefaultLanguage
	}

	// the socket outlives the request context once hijacked
	ctx, cancel := context.WithCancel(context.WithoutCancel(reqCtx))
	defer cancel()

	sess, err := h.Service.Open(ctx, chat.ConversationID(c.Param("id")), actor, lang)
	if err != nil {
		respondError(c, h.log(), err)
		return
	}
	defer sess.Close(ctx)

	conn, err := h.Upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log().WarnContext(ctx, "websocket upgrade failed", "error", err)
		return
	}
	h.serve(ctx, cancel, conn, sess)
}

func (h ChannelHandler) serve(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, sess *negotiation.Session) {
	out := make(chan []byte, outboundQueue)
	enqueue := func(frame []byte) {
		select {
		case out <- frame:
		case <-ctx.Done():
		}
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		h.writeLoop(ctx, cancel, conn, out)
	}()
	defer wg.Wait()
	defer cancel()

	deliveries, unsubscribe, err := sess.Subscribe(ctx)
	if err != nil {
		h.log().ErrorContext(ctx, "channel subscribe failed", "conversation_id", sess.ConversationID(), "error", err)
		enqueue(negotiation.ErrorFrame(internalErrorMessage))
		return
	}
	defer unsubscribe()

	greeting, err := sess.Greeting(ctx)
	if err != nil {
		h.log().WarnContext(ctx, "channel greeting failed", "conversation_id", sess.ConversationID(), "error", err)
	} else if greeting != nil {
		enqueue(greeting)
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case d, ok := <-deliveries:
				if !ok {
					cancel()
					return
				}
				if sess.Accepts(d) {
					enqueue(d.Frame)
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	conn.SetReadLimit(maxFrameBytes)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		msgType, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				h.log().DebugContext(ctx, "channel read ended", "conn_id", sess.ConnID(), "error", err)
			}
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		if reply := sess.Handle(ctx, raw); reply != nil {
			enqueue(reply)
		}
	}
}

// writeLoop owns every write to conn.
func (h ChannelHandler) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, out <-chan []byte) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()
	for {
		select {
		case frame := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				cancel()
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				cancel()
				return
			}
		case <-ctx.Done():
			flush(conn, out)
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}

// flush writes what is already queued without waiting for more.
func flush(conn *websocket.Conn, out <-chan []byte) {
	for {
		select {
		case frame := <-out:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (h ChannelHandler) log() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

var _ ChannelHTTP = ChannelHandler{}
