package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"cypher-server/internal/chat"
	"cypher-server/internal/middleware"
	"cypher-server/internal/model"
)

type ChatHandler struct {
	Service *chat.Service
}

type sendBody struct {
	Persona         string             `json:"persona"`
	ActiveSessionID string             `json:"activeSessionId"`
	Text            string             `json:"text"`
	Attachments     []model.Attachment `json:"attachments"`
}

// Send resolves exactly one of: a reply turn, a quota-exceeded signal, or
// an error status. The conversation itself never ends up without a
// terminal turn once the quota gate is passed.
func (h *ChatHandler) Send(c *gin.Context) {
	accountID, ok := middleware.AccountIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	var body sendBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	if body.Text == "" && len(body.Attachments) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Empty message"})
		return
	}

	out, err := h.Service.Send(c.Request.Context(), accountID, model.Persona(body.Persona), body.ActiveSessionID, body.Text, body.Attachments)
	if err != nil {
		switch {
		case errors.Is(err, chat.ErrInvalidPersona):
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid persona"})
		case errors.Is(err, chat.ErrSessionBusy):
			c.JSON(http.StatusConflict, gin.H{"error": "Request already in flight for this session"})
		case errors.Is(err, chat.ErrAccountNotFound):
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unknown account"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Send failed"})
		}
		return
	}

	if out.QuotaExceeded {
		c.JSON(http.StatusOK, gin.H{
			"quotaExceeded": true,
			"session":       sessionView(out.Session, true),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session":   sessionView(out.Session, true),
		"reply":     messageView(*out.Reply),
		"quotaLeft": out.QuotaLeft,
	})
}
