// README: Ride chat handlers.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"bidride/internal/modules/chat"
)

type ChatHandler struct {
	chat *chat.Service
}

func NewChatHandler(svc *chat.Service) *ChatHandler {
	return &ChatHandler{chat: svc}
}

func (h *ChatHandler) List(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	msgs, err := h.chat.List(c.Request.Context(), id, callerID(c))
	if err != nil {
		writeAppError(c, err)
		return
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	writeJSON(c, http.StatusOK, gin.H{"messages": msgs})
}

type sendReq struct {
	Message string `json:"message"`
}

func (h *ChatHandler) Send(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req sendReq
	if !bindJSON(c, &req) {
		return
	}
	m, err := h.chat.Send(c.Request.Context(), id, callerID(c), req.Message)
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, m)
}

func (h *ChatHandler) MarkRead(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	n, err := h.chat.MarkRead(c.Request.Context(), id, callerID(c))
	if err != nil {
		writeAppError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"marked": n})
}
