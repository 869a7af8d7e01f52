// handlers.go - HTTP handlers for the tool-invocation surface
package api

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/appvision-bridge/bridge/internal/gateway"
	"github.com/appvision-bridge/bridge/internal/lifecycle"
	"github.com/appvision-bridge/bridge/internal/models"
	"github.com/appvision-bridge/bridge/internal/ops"
	"github.com/appvision-bridge/bridge/internal/storage"
)

// ToolsHandler exposes the operation catalog and runs invocations. Every
// invocation outcome is an HTTP 200 carrying an ops.Result; only malformed
// requests produce HTTP errors.
type ToolsHandler struct {
	invoker *ops.Invoker
}

// NewToolsHandler creates the catalog/invocation handler.
func NewToolsHandler(invoker *ops.Invoker) *ToolsHandler {
	return &ToolsHandler{invoker: invoker}
}

// ToolListResponse is the catalog listing payload.
type ToolListResponse struct {
	Count int             `json:"count"`
	Tools []ops.Operation `json:"tools"`
}

// HandleListTools returns the full operation catalog with parameter specs,
// so callers can discover what is invokable without any session.
func (h *ToolsHandler) HandleListTools(c echo.Context) error {
	return c.JSON(http.StatusOK, ToolListResponse{
		Count: len(ops.Catalog),
		Tools: ops.Catalog,
	})
}

// HandleInvokeTool runs one named operation with the parameters given in the
// JSON body. Operation-level failures (no session, missing parameter,
// unreachable peer) come back as ok=false results, not HTTP errors.
func (h *ToolsHandler) HandleInvokeTool(c echo.Context) error {
	name := c.Param("name")
	if name == "" {
		return NewBadRequestError("operation name is required", nil)
	}

	params := map[string]string{}
	if c.Request().ContentLength > 0 {
		if err := c.Bind(&params); err != nil {
			return NewBadRequestError("invalid parameters body", err)
		}
	}

	result := h.invoker.Invoke(c.Request().Context(), name, params)
	return c.JSON(http.StatusOK, result)
}

// SessionHandler exposes the explicit login/logout surface. Login here is
// one-shot: a failure is reported, never retried.
type SessionHandler struct {
	gw          *gateway.Client
	store       storage.Store
	ctrl        *lifecycle.Controller
	defaultPeer string
	onActivity  func()
}

// NewSessionHandler creates the session handler. defaultPeer is used when a
// login request does not name a peer address.
func NewSessionHandler(gw *gateway.Client, store storage.Store, ctrl *lifecycle.Controller, defaultPeer string) *SessionHandler {
	return &SessionHandler{gw: gw, store: store, ctrl: ctrl, defaultPeer: defaultPeer, onActivity: func() {}}
}

// SetActivityHook registers a callback fired on successful login, so a fresh
// session starts with a full idle countdown.
func (h *SessionHandler) SetActivityHook(fn func()) {
	if fn != nil {
		h.onActivity = fn
	}
}

// LoginRequest is the login body.
type LoginRequest struct {
	PeerAddress string `json:"peerAddress,omitempty"`
	Username    string `json:"username"`
	Password    string `json:"password"`
}

// SessionResponse reports a login/logout outcome.
type SessionResponse struct {
	OK        bool   `json:"ok"`
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

// HandleLogin performs one Open and one Login against the peer. Rejections
// and unreachable peers are in-band results; only a malformed body is an
// HTTP error.
func (h *SessionHandler) HandleLogin(c echo.Context) error {
	req := LoginRequest{}
	if err := c.Bind(&req); err != nil {
		return NewBadRequestError("invalid login body", err)
	}
	if req.Username == "" {
		return NewBadRequestError("username is required", nil)
	}

	peer := req.PeerAddress
	if peer == "" {
		peer = h.defaultPeer
	}

	sess, result, err := h.ctrl.LoginOnce(c.Request().Context(), peer, req.Username, req.Password)
	if err != nil {
		return c.JSON(http.StatusOK, SessionResponse{
			OK:      false,
			Message: fmt.Sprintf("Login failed: %v", err),
		})
	}
	if !result.OK() {
		return c.JSON(http.StatusOK, SessionResponse{OK: false, Message: result.Message()})
	}

	h.onActivity()
	return c.JSON(http.StatusOK, SessionResponse{
		OK:        true,
		Message:   result.Message(),
		SessionID: sess.SessionID,
	})
}

// HandleLogout closes the recorded session: best-effort Logout call to the
// peer, then removal of the record. With no record it reports the uniform
// no-session message.
func (h *SessionHandler) HandleLogout(c echo.Context) error {
	sess, ok := h.store.Load()
	if !ok {
		return c.JSON(http.StatusOK, SessionResponse{OK: false, Message: ops.NoSessionMessage})
	}

	if _, err := h.gw.Request(c.Request().Context(), http.MethodGet, sess.PeerAddress, "Logout",
		nil, gateway.SessionHeaders(sess.SessionID), ""); err != nil {
		fmt.Printf("[API] Logout call failed (clearing record anyway): %v\n", err)
	}
	if err := h.store.Remove(); err != nil {
		return NewInternalError("failed to remove session record", err)
	}

	return c.JSON(http.StatusOK, SessionResponse{OK: true, Message: "Logged out"})
}

// SessionStateResponse describes the current session record.
type SessionStateResponse struct {
	Active  bool            `json:"active"`
	Session *models.Session `json:"session,omitempty"`
}

// HandleGetSession reports whether a session record exists and, if so, which
// peer it points at.
func (h *SessionHandler) HandleGetSession(c echo.Context) error {
	sess, ok := h.store.Load()
	if !ok {
		return c.JSON(http.StatusOK, SessionStateResponse{Active: false})
	}
	return c.JSON(http.StatusOK, SessionStateResponse{Active: true, Session: sess})
}

// HealthHandler answers liveness probes.
type HealthHandler struct {
	store   storage.Store
	version string
}

// NewHealthHandler creates the health handler.
func NewHealthHandler(store storage.Store, version string) *HealthHandler {
	return &HealthHandler{store: store, version: version}
}

// HandleHealth returns process status plus whether a session is recorded.
func (h *HealthHandler) HandleHealth(c echo.Context) error {
	_, hasSession := h.store.Load()
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"version": h.version,
		"session": hasSession,
	})
}
