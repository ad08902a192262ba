package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"cypher-server/internal/auth"
	"cypher-server/internal/middleware"
	"cypher-server/internal/model"
)

// AuthHandler exposes the multi-step authentication flow over HTTP. Each
// step addresses a flow by id; the flow itself decides which transitions
// are legal.
type AuthHandler struct {
	Flows          *auth.Flows
	TokenConfig    auth.TokenConfig
	AttemptLimiter *middleware.RateLimiter
}

type identifyBody struct {
	FlowID     string `json:"flowId"`
	Identifier string `json:"identifier"`
	Persona    string `json:"persona"`
}

type codeBody struct {
	FlowID string `json:"flowId"`
	Code   string `json:"code"`
}

type registerBody struct {
	FlowID        string `json:"flowId"`
	DisplayName   string `json:"displayName"`
	Secret        string `json:"secret"`
	ConfirmSecret string `json:"confirmSecret"`
}

type passwordBody struct {
	FlowID string `json:"flowId"`
	Secret string `json:"secret"`
}

type resetBody struct {
	FlowID string `json:"flowId"`
}

// Identify starts (or restarts) a flow and routes by identifier.
func (h *AuthHandler) Identify(c *gin.Context) {
	var body identifyBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	flow, ok := h.Flows.Get(body.FlowID)
	if !ok {
		flow = h.Flows.Create()
	}

	state, err := flow.SubmitIdentifier(body.Identifier, model.Persona(body.Persona))
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, auth.ErrDeliveryFailed) {
			status = http.StatusBadGateway
		}
		c.JSON(status, gin.H{"error": err.Error(), "flowId": flow.ID, "state": string(state)})
		return
	}

	c.JSON(http.StatusOK, gin.H{"flowId": flow.ID, "state": string(state)})
}

// Code verifies the one-time code. Attempts are throttled per flow.
func (h *AuthHandler) Code(c *gin.Context) {
	var body codeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	flow, ok := h.Flows.Get(body.FlowID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown flow"})
		return
	}

	if h.AttemptLimiter != nil && !h.AttemptLimiter.Allow("code:"+flow.ID) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many attempts"})
		return
	}

	state, err := flow.SubmitCode(body.Code)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "state": string(state)})
		return
	}

	if h.AttemptLimiter != nil {
		h.AttemptLimiter.Clear("code:" + flow.ID)
	}
	c.JSON(http.StatusOK, gin.H{"flowId": flow.ID, "state": string(state)})
}

// Register completes the new-account path and issues an identity token.
func (h *AuthHandler) Register(c *gin.Context) {
	var body registerBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	flow, ok := h.Flows.Get(body.FlowID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown flow"})
		return
	}

	acc, err := flow.CompleteRegistration(body.DisplayName, body.Secret, body.ConfirmSecret)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, auth.ErrIdentifierTaken) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	h.finish(c, flow, acc)
}

// Password completes the known-identifier path. Attempts are throttled
// per flow.
func (h *AuthHandler) Password(c *gin.Context) {
	var body passwordBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	flow, ok := h.Flows.Get(body.FlowID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown flow"})
		return
	}

	if h.AttemptLimiter != nil && !h.AttemptLimiter.Allow("password:"+flow.ID) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "Too many attempts"})
		return
	}

	acc, err := flow.SubmitPassword(body.Secret)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	if h.AttemptLimiter != nil {
		h.AttemptLimiter.Clear("password:" + flow.ID)
	}
	h.finish(c, flow, acc)
}

// Reset returns a flow to IDENTIFY ("start over").
func (h *AuthHandler) Reset(c *gin.Context) {
	var body resetBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
		return
	}

	flow, ok := h.Flows.Get(body.FlowID)
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown flow"})
		return
	}

	flow.Reset()
	c.JSON(http.StatusOK, gin.H{"flowId": flow.ID, "state": string(flow.State())})
}

func (h *AuthHandler) finish(c *gin.Context, flow *auth.Flow, acc model.Account) {
	token, err := auth.CreateToken(acc.ID, h.TokenConfig)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Token creation failed"})
		return
	}
	h.Flows.Drop(flow.ID)

	c.JSON(http.StatusOK, gin.H{
		"state":   string(auth.StateAuthenticated),
		"token":   token,
		"account": accountView(acc),
	})
}

// accountView is the client-safe projection of an account record.
func accountView(acc model.Account) gin.H {
	return gin.H{
		"id":             acc.ID,
		"identifier":     acc.Identifier,
		"displayName":    acc.DisplayName,
		"photoUrl":       acc.PhotoURL,
		"personaDefault": string(acc.PersonaDefault),
		"quota": gin.H{
			"count":         acc.Quota.Count,
			"lastResetDate": acc.Quota.LastResetDate,
		},
	}
}
