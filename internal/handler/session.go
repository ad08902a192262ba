package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cypher-server/internal/middleware"
	"cypher-server/internal/model"
	"cypher-server/internal/store"
)

type SessionHandler struct {
	Store *store.Store
}

type createSessionBody struct {
	Persona string `json:"persona"`
	Title   string `json:"title"`
}

func (h *SessionHandler) Create(c *gin.Context) {
	accountID, ok := middleware.AccountIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	var body createSessionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}
	persona := model.Persona(body.Persona)
	if !persona.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid persona"})
		return
	}

	sess, err := h.Store.CreateSession(accountID, persona, body.Title, time.Now().UnixMilli())
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"session": sessionView(sess, true)})
}

func (h *SessionHandler) List(c *gin.Context) {
	accountID, ok := middleware.AccountIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	persona := model.Persona(c.Query("persona"))
	if !persona.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid persona"})
		return
	}

	sessions := h.Store.ListSessions(accountID, persona)
	resp := make([]gin.H, 0, len(sessions))
	for _, sess := range sessions {
		resp = append(resp, sessionView(sess, false))
	}
	c.JSON(http.StatusOK, gin.H{"sessions": resp})
}

func (h *SessionHandler) Get(c *gin.Context) {
	accountID, ok := middleware.AccountIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	sessionID := c.Param("id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid session id"})
		return
	}

	sess, ok := h.Store.GetSession(accountID, sessionID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Session not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": sessionView(sess, true)})
}

// sessionView projects a session; the list view omits message bodies to
// keep the sidebar payload small.
func sessionView(sess model.Session, withMessages bool) gin.H {
	view := gin.H{
		"id":           sess.ID,
		"persona":      string(sess.Persona),
		"title":        sess.Title,
		"createdAt":    sess.CreatedAt,
		"lastUpdated":  sess.LastUpdated,
		"messageCount": len(sess.Messages),
	}
	if withMessages {
		msgs := make([]gin.H, 0, len(sess.Messages))
		for _, m := range sess.Messages {
			msgs = append(msgs, messageView(m))
		}
		view["messages"] = msgs
	}
	return view
}

func messageView(m model.ChatMessage) gin.H {
	view := gin.H{
		"role":      string(m.Role),
		"content":   m.Content,
		"timestamp": m.Timestamp,
	}
	if len(m.Attachments) > 0 {
		atts := make([]gin.H, 0, len(m.Attachments))
		for _, a := range m.Attachments {
			atts = append(atts, gin.H{"mimeType": a.MIMEType, "data": a.Data})
		}
		view["attachments"] = atts
	}
	return view
}
