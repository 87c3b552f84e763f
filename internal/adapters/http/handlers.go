package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dkeye/Fanhub/internal/adapters/signal"
	"github.com/dkeye/Fanhub/internal/app"
	"github.com/dkeye/Fanhub/internal/auth"
	"github.com/dkeye/Fanhub/internal/domain"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type handlers struct {
	deps Deps
}

type StartCallRequest struct {
	ToUserID domain.UserID   `json:"toUserId"`
	Kind     domain.CallKind `json:"kind"`
}

// NotifyRequest targets exactly one of UserID or ChatID.
type NotifyRequest struct {
	UserID  domain.UserID   `json:"userId"`
	ChatID  domain.ChatID   `json:"chatId"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

var notifyTypes = map[string]struct{}{
	domain.EventTaskCreated:           {},
	domain.EventTaskUpdated:           {},
	domain.EventTaskDeleted:           {},
	domain.EventReceiveGroupMessage:   {},
	domain.EventReceivePrivateMessage: {},
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *handlers) stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.deps.Orch.Stats())
}

func (h *handlers) iceServers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"iceServers": h.deps.ICEServers})
}

func (h *handlers) startCall(c *gin.Context) {
	uid, _ := auth.UserFrom(c)
	var req StartCallRequest
	if err := c.ShouldBindJSON(&req); err != nil || !req.ToUserID.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing or invalid toUserId"})
		return
	}
	if req.Kind == "" {
		req.Kind = domain.CallAudio
	}
	call, err := h.deps.Orch.StartCall("", uid, req.ToUserID, req.Kind)
	if err != nil {
		callError(c, err)
		return
	}
	c.JSON(http.StatusCreated, call)
}

func (h *handlers) acceptCall(c *gin.Context) {
	h.callAction(c, func(uid domain.UserID, id domain.CallID) (domain.Call, error) {
		return h.deps.Orch.AcceptCall("", uid, id)
	})
}

func (h *handlers) rejectCall(c *gin.Context) {
	h.callAction(c, h.deps.Orch.RejectCall)
}

func (h *handlers) endCall(c *gin.Context) {
	h.callAction(c, h.deps.Orch.EndCall)
}

func (h *handlers) callAction(c *gin.Context, do func(domain.UserID, domain.CallID) (domain.Call, error)) {
	uid, _ := auth.UserFrom(c)
	n, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || !domain.CallID(n).Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid call id"})
		return
	}
	call, err := do(uid, domain.CallID(n))
	if err != nil {
		callError(c, err)
		return
	}
	c.JSON(http.StatusOK, call)
}

func callError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, app.ErrSelfCall), errors.Is(err, app.ErrInvalidKind):
		status = http.StatusBadRequest
	case errors.Is(err, app.ErrCallNotFound):
		status = http.StatusNotFound
	case errors.Is(err, app.ErrNotParticipant), errors.Is(err, app.ErrNotCallee):
		status = http.StatusForbidden
	case errors.Is(err, app.ErrInvalidTransition), errors.Is(err, app.ErrBusy):
		status = http.StatusConflict
	}
	c.JSON(status, gin.H{"error": signal.CallErrorCode(err)})
}

func (h *handlers) history(c *gin.Context) {
	if h.deps.History == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "call history disabled"})
		return
	}
	uid, _ := auth.UserFrom(c)
	limit := 0
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	entries, err := h.deps.History.History(c.Request.Context(), uid, limit)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Int64("user", int64(uid)).Msg("load call history")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": entries})
}

// notify lets other services push server originated events into the hub.
// The payload fields are merged into the envelope next to type.
func (h *handlers) notify(c *gin.Context) {
	var req NotifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if _, ok := notifyTypes[req.Type]; !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported type"})
		return
	}
	if req.UserID.Valid() == req.ChatID.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "exactly one of userId or chatId is required"})
		return
	}

	fields := map[string]any{}
	if len(req.Payload) > 0 && string(req.Payload) != "null" {
		if err := json.Unmarshal(req.Payload, &fields); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "payload must be an object"})
			return
		}
	}
	fields["type"] = req.Type

	target := domain.UserChannel(req.UserID)
	if req.ChatID.Valid() {
		target = domain.ChatChannel(req.ChatID)
	}
	n := h.deps.Orch.DeliverJSON(target, req.Type, fields, "")
	c.JSON(http.StatusAccepted, gin.H{"channel": target, "delivered": n})
}
