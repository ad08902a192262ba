package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"cypher-server/internal/hub"
	"cypher-server/internal/middleware"
	"cypher-server/internal/model"
	"cypher-server/internal/quota"
	"cypher-server/internal/store"
)

type AccountHandler struct {
	Store *store.Store
	Quota *quota.Tracker
	Hub   *hub.Hub
}

type updateAccountBody struct {
	PhotoURL       *string `json:"photoUrl"`
	PersonaDefault *string `json:"personaDefault"`
}

func (h *AccountHandler) Get(c *gin.Context) {
	accountID, ok := middleware.AccountIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	acc, ok := h.Store.GetAccount(accountID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		return
	}

	view := accountView(acc)
	if h.Quota != nil {
		view["quotaLeft"] = h.Quota.Remaining(acc)
		view["quotaLimit"] = h.Quota.Limit()
	}
	c.JSON(http.StatusOK, gin.H{"account": view})
}

// Update changes the mutable profile fields: photo and default persona.
func (h *AccountHandler) Update(c *gin.Context) {
	accountID, ok := middleware.AccountIDFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
		return
	}

	var body updateAccountBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	acc, ok := h.Store.GetAccount(accountID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Account not found"})
		return
	}

	changed := false
	if body.PhotoURL != nil && *body.PhotoURL != acc.PhotoURL {
		acc.PhotoURL = *body.PhotoURL
		changed = true
	}
	if body.PersonaDefault != nil {
		persona := model.Persona(*body.PersonaDefault)
		if !persona.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid persona"})
			return
		}
		if persona != acc.PersonaDefault {
			acc.PersonaDefault = persona
			changed = true
		}
	}

	if changed {
		acc.UpdatedAt = time.Now().UnixMilli()
		if err := h.Store.UpsertAccount(acc); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Update failed"})
			return
		}
		if h.Hub != nil {
			h.Hub.Publish(accountID, hub.Event{Type: hub.EventAccountUpdated})
		}
	}

	c.JSON(http.StatusOK, gin.H{"account": accountView(acc)})
}
