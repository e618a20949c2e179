package ws

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel"

	"chat-backend/internal/models"
	"chat-backend/internal/notify"
	"chat-backend/internal/observability"
	"chat-backend/internal/repositories"
	"chat-backend/internal/topics"
)

// SessionHandler handles the single websocket endpoint.
type SessionHandler struct {
	registry    *topics.Registry
	dispatcher  *notify.Dispatcher
	sessionRepo repositories.SessionRepository
	chatRepo    repositories.ChatRepository
	messageRepo repositories.MessageRepository
	userRepo    repositories.UserRepository
}

// NewSessionHandler constructs a SessionHandler.
func NewSessionHandler(
	registry *topics.Registry,
	dispatcher *notify.Dispatcher,
	sessionRepo repositories.SessionRepository,
	chatRepo repositories.ChatRepository,
	messageRepo repositories.MessageRepository,
	userRepo repositories.UserRepository,
) *SessionHandler {
	return &SessionHandler{
		registry:    registry,
		dispatcher:  dispatcher,
		sessionRepo: sessionRepo,
		chatRepo:    chatRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
	}
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the connection and runs the session. Anonymous clients are
// upgraded too: they receive a single 403 error frame and are disconnected,
// so the rejection is visible in-protocol rather than at the HTTP layer.
func (h *SessionHandler) Handle(c *gin.Context) {
	ctx, span := otel.Tracer("chat-backend/ws").Start(c.Request.Context(), "ws.handshake")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	session, authErr := h.resolveSession(ctx, c)

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}

	if authErr != nil {
		payload := `{"action":"error","ok":false,"code":403,"error":"User is not authenticated","request_id":0}`
		_ = conn.WriteMessage(websocket.TextMessage, []byte(payload))
		conn.Close()
		return
	}

	traceID := span.SpanContext().TraceID().String()
	requestID := observability.RequestIDFromRequest(c.Request)
	info := ConnInfo{
		ConnID:      newConnID(),
		UserID:      session.UserID,
		SessionKey:  session.Key,
		DeviceID:    observability.DeviceIDFromRequest(c.Request),
		IP:          observability.IPFromRequest(c.Request),
		RequestID:   requestID,
		TraceID:     traceID,
		ConnectedAt: time.Now(),
	}

	s := newSession(conn, h, session.UserID, session.Key, info)
	if err := s.subscribeInitial(ctx); err != nil {
		s.teardown()
		return
	}

	observability.IncWSActive()
	observability.IncWSEvent("ws_connect")
	_ = observability.PublishEvent(ctx, "ws_events.sessions", observability.EventEnvelope{
		EventType: "ws_events",
		EventName: "ws_connect",
		Payload:   connPayload(info, "ws_connect", ""),
	}, observability.BuildHeaders(requestID, traceID))

	go s.writeLoop()
	go func() {
		s.readLoop()
		observability.DecWSActive()
		observability.IncWSEvent("ws_disconnect")
		_ = observability.PublishEvent(context.Background(), "ws_events.sessions", observability.EventEnvelope{
			EventType: "ws_events",
			EventName: "ws_disconnect",
			Payload:   connPayload(info, "ws_disconnect", ""),
		}, observability.BuildHeaders(requestID, traceID))
	}()
}

// resolveSession finds the login session behind the request: Authorization
// header first, then a token query parameter, then the session cookie.
func (h *SessionHandler) resolveSession(ctx context.Context, c *gin.Context) (models.Session, error) {
	key := ""
	if header := c.GetHeader("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 {
			key = parts[1]
		}
	}
	if key == "" {
		key = c.Query("token")
	}
	if key == "" {
		key, _ = c.Cookie("session_key")
	}
	if key == "" {
		return models.Session{}, repositories.ErrSessionNotFound
	}
	return h.sessionRepo.GetByKey(ctx, key)
}

func connPayload(info ConnInfo, event, reason string) map[string]interface{} {
	durationMS := int64(0)
	if event != "ws_connect" {
		durationMS = time.Since(info.ConnectedAt).Milliseconds()
	}
	return map[string]interface{}{
		"ws": map[string]interface{}{
			"event":       event,
			"conn_id":     info.ConnID,
			"duration_ms": durationMS,
			"reason":      reason,
		},
		"identity": map[string]interface{}{
			"user_id":   info.UserID,
			"device_id": info.DeviceID,
			"ip":        info.IP,
		},
	}
}
