package main

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

func (a *App) loginHandler(c *gin.Context) {
	var payload struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Message: "Invalid login payload"})
		return
	}
	if strings.TrimSpace(payload.Username) == "" || payload.Password == "" {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Message: "Username and password are required"})
		return
	}

	ctx := c.Request.Context()
	agent, err := a.authenticateAgent(ctx, payload.Username, payload.Password)
	if err != nil {
		a.metrics.loginAttempt(false)
		writeAPIError(c, err)
		return
	}

	session, err := a.createSession(ctx, agent)
	if err != nil {
		a.log.Error("session creation failed", "agent", agent.Username, "err", err)
		writeAPIError(c, err)
		return
	}
	a.metrics.loginAttempt(true)
	a.startAgentSession(c, session)
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"agent":     agent,
		"token":     session.Token,
		"expiresAt": session.ExpiresAt,
	})
}

func (a *App) logoutHandler(c *gin.Context) {
	if token := sessionTokenFromRequest(c); token != "" {
		if err := a.sessions.Delete(c.Request.Context(), token); err != nil {
			a.log.Error("session delete failed", "err", err)
		}
	}
	a.clearAgentSession(c)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (a *App) sessionHandler(c *gin.Context) {
	agent, err := getAgent(c)
	if err != nil {
		writeAPIError(c, errUnauthorized)
		return
	}
	c.JSON(http.StatusOK, gin.H{"agent": agent})
}
