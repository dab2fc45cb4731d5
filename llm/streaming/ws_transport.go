package streaming

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/castingclouds/circuit-breaker-sub002/llm"
	"github.com/castingclouds/circuit-breaker-sub002/types"
	"github.com/coder/websocket"
	"go.uber.org/zap"
)

// wsClientMessage is one control message sent by a WebSocket client.
// Type is one of execute/subscribe/unsubscribe/ping.
type wsClientMessage struct {
	Type           string           `json:"type"`
	SessionID      string           `json:"session_id,omitempty"`
	Model          string           `json:"model,omitempty"`
	Messages       []types.Message  `json:"messages,omitempty"`
	CircuitBreaker *llm.RoutingHint `json:"circuit_breaker,omitempty"`
}

// wsServerMessage is one control message sent back to a WebSocket
// client. Type is one of auth_success/auth_failure/execution_started/
// thinking/content_chunk/complete/error/pong.
type wsServerMessage struct {
	Type      string           `json:"type"`
	SessionID string           `json:"session_id,omitempty"`
	Delta     string           `json:"delta,omitempty"`
	Usage     *llm.ChatUsage `json:"usage,omitempty"`
	Error     *EventError      `json:"error,omitempty"`
}

// Authenticator resolves the tenant id a WebSocket connection is
// acting as from the upgrade request's headers, or reports failure.
// Kept as a function type rather than an interface so the gateway can
// wire whatever auth middleware it already uses (JWT, API key, mTLS).
type Authenticator func(ctx context.Context, header http.Header) (tenantID string, ok bool)

// ProviderResolver looks up the provider that should serve req —
// honoring virtual model aliases and the circuit_breaker routing hint
// the same way the REST handlers do (§4.8/§4.10) — without this
// package depending on llm/registry or llm/router directly. It may
// rewrite req.Model to the concrete model id it resolved.
type ProviderResolver func(req *llm.ChatRequest) (llm.Provider, error)

// WSHandler serves the Streaming Fabric's WebSocket control protocol:
// one socket can execute a new streaming request, subscribe to or
// unsubscribe from an existing session's output, and ping/pong as a
// liveness check.
type WSHandler struct {
	fabric   *Fabric
	resolve  ProviderResolver
	authFn   Authenticator
	logger   *zap.Logger
}

// NewWSHandler builds a WebSocket handler bound to fabric for session
// bookkeeping, resolve for provider lookup, and auth for per-connection
// tenant resolution.
func NewWSHandler(fabric *Fabric, resolve ProviderResolver, auth Authenticator, logger *zap.Logger) *WSHandler {
	return &WSHandler{fabric: fabric, resolve: resolve, authFn: auth, logger: logger}
}

// wsConn wraps one accepted connection: writes are mutex-serialized
// (WebSocket doesn't support concurrent writers) and each active
// subscription's forwarder goroutine is cancellable independently so
// unsubscribe can stop one without tearing down the socket.
type wsConn struct {
	conn   *websocket.Conn
	mu     sync.Mutex
	subsMu sync.Mutex
	subs   map[string]context.CancelFunc
}

func (c *wsConn) writeJSON(ctx context.Context, msg wsServerMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.Write(ctx, websocket.MessageText, data)
}

// Handle accepts the WebSocket upgrade and serves the control protocol
// until the connection closes or ctx is cancelled.
func (h *WSHandler) Handle(ctx context.Context, accept func() (*websocket.Conn, error), header http.Header) {
	conn, err := accept()
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "closing")

	c := &wsConn{conn: conn, subs: make(map[string]context.CancelFunc)}

	tenantID, ok := h.authFn(ctx, header)
	if !ok {
		_ = c.writeJSON(ctx, wsServerMessage{Type: "auth_failure"})
		conn.Close(websocket.StatusPolicyViolation, "authentication failed")
		return
	}
	if err := c.writeJSON(ctx, wsServerMessage{Type: "auth_success"}); err != nil {
		return
	}

	defer func() {
		c.subsMu.Lock()
		for _, cancel := range c.subs {
			cancel()
		}
		c.subsMu.Unlock()
	}()

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		var msg wsClientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = c.writeJSON(ctx, wsServerMessage{Type: "error", Error: &EventError{
				Code: string(types.ErrInvalidRequest), Message: "malformed control message",
			}})
			continue
		}
		h.dispatch(ctx, c, tenantID, msg)
	}
}

func (h *WSHandler) dispatch(ctx context.Context, c *wsConn, tenantID string, msg wsClientMessage) {
	switch msg.Type {
	case "ping":
		_ = c.writeJSON(ctx, wsServerMessage{Type: "pong"})

	case "execute":
		h.handleExecute(ctx, c, tenantID, msg)

	case "subscribe":
		h.handleSubscribe(ctx, c, tenantID, msg.SessionID)

	case "unsubscribe":
		c.subsMu.Lock()
		if cancel, ok := c.subs[msg.SessionID]; ok {
			cancel()
			delete(c.subs, msg.SessionID)
		}
		c.subsMu.Unlock()

	default:
		_ = c.writeJSON(ctx, wsServerMessage{Type: "error", Error: &EventError{
			Code: string(types.ErrInvalidRequest), Message: "unknown control message type: " + msg.Type,
		}})
	}
}

func (h *WSHandler) handleExecute(ctx context.Context, c *wsConn, tenantID string, msg wsClientMessage) {
	req := &llm.ChatRequest{
		TenantID:       tenantID,
		Model:          msg.Model,
		Messages:       msg.Messages,
		CircuitBreaker: msg.CircuitBreaker,
	}

	provider, err := h.resolve(req)
	if err != nil {
		_ = c.writeJSON(ctx, wsServerMessage{Type: "error", Error: &EventError{
			Code: string(types.ErrNotSupported), Message: err.Error(),
		}})
		return
	}

	session, err := h.fabric.Start(ctx, msg.SessionID, tenantID, provider, req)
	if err != nil {
		code := string(types.ErrInternalError)
		if typedErr, ok := err.(*types.Error); ok {
			code = string(typedErr.Code)
		}
		_ = c.writeJSON(ctx, wsServerMessage{Type: "error", Error: &EventError{Code: code, Message: err.Error()}})
		return
	}

	_ = c.writeJSON(ctx, wsServerMessage{Type: "execution_started", SessionID: session.ID})
	h.attachForwarder(ctx, c, session)
}

func (h *WSHandler) handleSubscribe(ctx context.Context, c *wsConn, tenantID, sessionID string) {
	session, ok := h.fabric.CheckTenant(sessionID, tenantID)
	if !ok {
		// Deliberately the same response whether the session doesn't
		// exist or belongs to another tenant — existence must not leak.
		_ = c.writeJSON(ctx, wsServerMessage{Type: "error", Error: &EventError{
			Code: string(types.ErrForbidden), Message: "session not accessible",
		}})
		return
	}
	h.attachForwarder(ctx, c, session)
}

// attachForwarder starts a goroutine relaying one session's events
// onto the socket as control messages, cancellable via unsubscribe.
func (h *WSHandler) attachForwarder(ctx context.Context, c *wsConn, session *Session) {
	fwdCtx, cancel := context.WithCancel(ctx)

	c.subsMu.Lock()
	c.subs[session.ID] = cancel
	c.subsMu.Unlock()

	go func() {
		defer func() {
			c.subsMu.Lock()
			delete(c.subs, session.ID)
			c.subsMu.Unlock()
		}()

		for {
			select {
			case <-fwdCtx.Done():
				return
			case ev, ok := <-session.Events():
				if !ok {
					return
				}
				out := wsServerMessage{SessionID: session.ID}
				switch ev.Type {
				case EventChunk:
					out.Type = "content_chunk"
					out.Delta = ev.Delta
				case EventUsage:
					out.Type = "content_chunk"
					out.Usage = ev.Usage
				case EventDone:
					out.Type = "complete"
				case EventError:
					out.Type = "error"
					out.Error = ev.Error
				}
				if err := c.writeJSON(fwdCtx, out); err != nil {
					h.logger.Warn("websocket forward failed", zap.String("session_id", session.ID), zap.Error(err))
					return
				}
				session.MarkDelivered()
				if ev.Type == EventDone || ev.Type == EventError {
					return
				}
			}
		}
	}()
}

// ReadTimeout bounds how long a single conn.Read may block waiting for
// a client control message, matched to the idle-timeout sweeper's own
// notion of an abandoned session.
const ReadTimeout = 5 * time.Minute
