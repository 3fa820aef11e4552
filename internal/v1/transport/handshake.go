package transport

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/scorecast/scorecast/internal/v1/auth"
	"github.com/scorecast/scorecast/internal/v1/logging"
	"github.com/scorecast/scorecast/internal/v1/metrics"
)

// Close codes for the realtime endpoint. 4003 and 4004 are reserved for
// not-a-participant and room-not-found rejections.
const (
	CloseAuthMissing    = 4000
	CloseAuthFailed     = 4001
	CloseSlowClient     = 4002
	CloseNotParticipant = 4003
	CloseRoomNotFound   = 4004
)

// ServeWS upgrades the request and runs the session handshake: correlation id,
// bearer token, identity verification, registration, then exactly one
// connection_success frame. Authentication failures close the socket with
// 4000/4001 before any server message is sent.
func (h *Hub) ServeWS(c *gin.Context) {
	// IP-based limit first, before burning an upgrade.
	if h.rateLimiter != nil && !h.rateLimiter.CheckWebSocket(c) {
		return // Response already written by CheckWebSocket
	}

	requestID := c.GetHeader(h.opts.RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: h.opts.AutoFragmentSize,
		CheckOrigin: func(r *http.Request) bool {
			return validateOrigin(r, h.opts.AllowedOrigins) == nil
		},
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		logging.Warn(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}
	conn.SetReadLimit(h.opts.MaxMessageBytes)

	token := extractToken(c.Request)
	if token == "" {
		closeOnHandshake(conn, CloseAuthMissing, "Authentication required")
		return
	}

	claims, err := h.validator.ValidateToken(token)
	if err != nil {
		reason := "Invalid authentication token"
		if auth.IsExpired(err) {
			reason = "Authentication token has expired"
		}
		logging.Warn(c.Request.Context(), "rejecting websocket auth", zap.Error(err))
		closeOnHandshake(conn, CloseAuthFailed, reason)
		return
	}

	if h.rateLimiter != nil {
		if err := h.rateLimiter.CheckWebSocketUser(c.Request.Context(), claims.Subject); err != nil {
			closeOnHandshake(conn, websocket.CloseTryAgainLater, "Too many connections")
			return
		}
	}

	s := newSession(h, conn, claims.Subject, requestID)
	h.registerSession(s)
	metrics.IncConnection()

	if h.opts.PingInterval > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(h.opts.PongWait))
		})
	}

	logging.Info(s.ctx, "session connected")

	go s.writePump()
	go s.readPump()

	s.Enqueue(ConnectionSuccess(s.userID))
}

// extractToken pulls the bearer token from the Authorization header (scheme
// case-insensitive) or the token query parameter.
func extractToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		parts := strings.SplitN(header, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return r.URL.Query().Get("token")
}

// closeOnHandshake rejects a freshly upgraded connection with a close frame.
func closeOnHandshake(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		logging.GetLogger().Debug("failed to write handshake close frame", zap.Error(err))
	}
	_ = conn.Close()
}

// validateOrigin checks if the request origin is in the allowed list.
func validateOrigin(r *http.Request, allowedOrigins []string) error {
	origin := r.Header.Get("Origin")
	if origin == "" {
		logging.GetLogger().Debug("No origin header - allowing non-browser client")
		return nil // Allow non-browser clients (e.g., for testing)
	}

	originURL, err := url.Parse(origin)
	if err != nil {
		logging.Warn(r.Context(), "Invalid origin URL", zap.String("origin", origin), zap.Error(err))
		return fmt.Errorf("invalid origin URL: %w", err)
	}

	for _, allowed := range allowedOrigins {
		allowedURL, err := url.Parse(allowed)
		if err != nil {
			continue
		}
		// Check if the scheme and host match
		if originURL.Scheme == allowedURL.Scheme && originURL.Host == allowedURL.Host {
			logging.GetLogger().Debug("Origin validated", zap.String("origin", origin))
			return nil
		}
	}

	logging.Warn(r.Context(), "Origin not in allowed list", zap.String("origin", origin), zap.Strings("allowedOrigins", allowedOrigins))
	return fmt.Errorf("origin not allowed: %s", origin)
}
