package handler

import (
	"errors"
	"net/http"
	"strings"

	"hdnotes-server/internal/logging"
	"hdnotes-server/internal/middleware"
	"hdnotes-server/internal/websocket"
	"hdnotes-server/pkg/response"

	"github.com/google/uuid"
	ws "github.com/gorilla/websocket"
)

type WebSocketHandler struct {
	hub      *websocket.Hub
	auth     middleware.Authenticator
	upgrader ws.Upgrader
	log      logging.Logger
}

// NewWebSocketHandler accepts connections from the comma separated
// allowedOrigins; "*" accepts any origin.
func NewWebSocketHandler(hub *websocket.Hub, auth middleware.Authenticator, readBuf, writeBuf int, allowedOrigins string, log logging.Logger) *WebSocketHandler {
	return &WebSocketHandler{
		hub:  hub,
		auth: auth,
		log:  log,
		upgrader: ws.Upgrader{
			ReadBufferSize:  readBuf,
			WriteBufferSize: writeBuf,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowedOrigins string) func(r *http.Request) bool {
	allowed := make(map[string]bool)
	for _, o := range strings.Split(allowedOrigins, ",") {
		o = strings.TrimRight(strings.TrimSpace(o), "/")
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		if o != "" {
			allowed[o] = true
		}
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed[origin]
	}
}

func (h *WebSocketHandler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		token, _ = middleware.BearerToken(r.Header.Get("Authorization"))
	}

	if token == "" {
		response.Unauthorized(w, "Access denied. No token provided.")
		return
	}

	ident, err := h.auth.Authenticate(token)
	if err != nil {
		h.log.Debug(r.Context(), "websocket token rejected", "error", err)
		response.Unauthorized(w, "Invalid or expired token")
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn(r.Context(), "websocket upgrade failed", "error", err)
		return
	}

	client := websocket.NewClient(uuid.New().String(), ident.AccountID, conn, h.hub)
	if err := h.hub.Register(client); err != nil {
		code := ws.CloseTryAgainLater
		if errors.Is(err, websocket.ErrTooManyConnections) {
			code = ws.ClosePolicyViolation
		}
		conn.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(code, err.Error()))
		conn.Close()
		return
	}

	go client.WritePump()
	go client.ReadPump()
}
