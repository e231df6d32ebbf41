package main

import (
	"net/http"
	"regexp"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
)

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

type createUserPayload struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Role     string `json:"role"`
	IsActive *bool  `json:"isActive"`
}

type updateUserPayload struct {
	Username *string `json:"username"`
	Name     *string `json:"name"`
	Email    *string `json:"email"`
	Password *string `json:"password"`
	Role     *string `json:"role"`
	IsActive *bool   `json:"isActive"`
}

func validateCreateUserPayload(payload createUserPayload) error {
	var missing []string
	if strings.TrimSpace(payload.Username) == "" {
		missing = append(missing, "username")
	}
	if strings.TrimSpace(payload.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(payload.Email) == "" {
		missing = append(missing, "email")
	}
	if payload.Password == "" {
		missing = append(missing, "password")
	}
	if strings.TrimSpace(payload.Role) == "" {
		missing = append(missing, "role")
	}
	if len(missing) > 0 {
		return &apiError{Status: http.StatusBadRequest, Message: "Missing required fields", Details: strings.Join(missing, ", ")}
	}
	if !emailPattern.MatchString(strings.TrimSpace(payload.Email)) {
		return &apiError{Status: http.StatusBadRequest, Message: "Invalid email address"}
	}
	if !containsString(agentRoles, payload.Role) {
		return &apiError{Status: http.StatusBadRequest, Message: "Invalid role", Details: strings.Join(agentRoles, ", ")}
	}
	return nil
}

func (a *App) listUsersHandler(c *gin.Context) {
	result, err := a.agents.List(c.Request.Context(), AgentFilter{
		Query:    c.Query("q"),
		Role:     c.Query("role"),
		Status:   c.Query("status"),
		Page:     parsePage(c.Query("page")),
		PageSize: parsePageSize(c.Query("pageSize")),
	})
	if err != nil {
		a.log.Error("list users failed", "err", err)
		writeAPIError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"users":       result.Agents,
		"totalCount":  result.TotalCount,
		"totalPages":  result.TotalPages,
		"currentPage": result.CurrentPage,
		"pageSize":    result.PageSize,
	})
}

func (a *App) getUserHandler(c *gin.Context) {
	agent, err := a.agents.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeAPIError(c, err)
		return
	}
	if agent == nil {
		writeAPIError(c, &apiError{Status: http.StatusNotFound, Message: "User not found"})
		return
	}
	c.JSON(http.StatusOK, agent)
}

func (a *App) createUserHandler(c *gin.Context) {
	var payload createUserPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Message: "Invalid user payload", Details: err.Error()})
		return
	}
	if err := validateCreateUserPayload(payload); err != nil {
		writeAPIError(c, err)
		return
	}

	ctx := c.Request.Context()
	username := strings.TrimSpace(payload.Username)
	existing, err := a.agents.GetByUsername(ctx, username)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	if existing != nil {
		writeAPIError(c, errDuplicateUsername)
		return
	}

	hash, err := hashPassword(payload.Password)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	now := a.now().UTC()
	isActive := true
	if payload.IsActive != nil {
		isActive = *payload.IsActive
	}
	created, err := a.agents.Create(ctx, Agent{
		Username:     username,
		Name:         strings.TrimSpace(payload.Name),
		Email:        strings.TrimSpace(payload.Email),
		PasswordHash: hash,
		Role:         payload.Role,
		IsActive:     isActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		writeAPIError(c, err)
		return
	}
	a.log.Info("user created", "username", created.Username, "role", created.Role)
	c.JSON(http.StatusCreated, created)
}

func (a *App) updateUserHandler(c *gin.Context) {
	var payload updateUserPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Message: "Invalid user payload", Details: err.Error()})
		return
	}

	ctx := c.Request.Context()
	id := c.Param("id")
	current, err := a.agents.GetByID(ctx, id)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	if current == nil {
		writeAPIError(c, &apiError{Status: http.StatusNotFound, Message: "User not found"})
		return
	}

	fields := bson.M{}
	if payload.Username != nil {
		username := strings.TrimSpace(*payload.Username)
		if username == "" {
			writeAPIError(c, &apiError{Status: http.StatusBadRequest, Message: "Username cannot be empty"})
			return
		}
		if username != current.Username {
			existing, err := a.agents.GetByUsername(ctx, username)
			if err != nil {
				writeAPIError(c, err)
				return
			}
			if existing != nil {
				writeAPIError(c, errDuplicateUsername)
				return
			}
		}
		fields["username"] = username
	}
	if payload.Name != nil {
		fields["name"] = strings.TrimSpace(*payload.Name)
	}
	if payload.Email != nil {
		email := strings.TrimSpace(*payload.Email)
		if !emailPattern.MatchString(email) {
			writeAPIError(c, &apiError{Status: http.StatusBadRequest, Message: "Invalid email address"})
			return
		}
		fields["email"] = email
	}
	if payload.Role != nil {
		if !containsString(agentRoles, *payload.Role) {
			writeAPIError(c, &apiError{Status: http.StatusBadRequest, Message: "Invalid role", Details: strings.Join(agentRoles, ", ")})
			return
		}
		fields["role"] = *payload.Role
	}
	if payload.IsActive != nil {
		fields["isActive"] = *payload.IsActive
	}
	if payload.Password != nil && *payload.Password != "" {
		hash, err := hashPassword(*payload.Password)
		if err != nil {
			writeAPIError(c, err)
			return
		}
		fields["passwordHash"] = hash
	}
	fields["updatedAt"] = a.now().UTC()

	updated, err := a.agents.Update(ctx, id, fields)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	if updated == nil {
		writeAPIError(c, &apiError{Status: http.StatusNotFound, Message: "User not found"})
		return
	}
	if !updated.IsActive || fields["passwordHash"] != nil {
		if err := a.sessions.DeleteByAgent(ctx, updated.ID); err != nil {
			a.log.Error("session revoke failed", "user", updated.Username, "err", err)
		}
	}
	c.JSON(http.StatusOK, updated)
}

func (a *App) deleteUserHandler(c *gin.Context) {
	ctx := c.Request.Context()
	id := c.Param("id")
	if actor, err := getAgent(c); err == nil && actor.ID.Hex() == id {
		writeAPIError(c, &apiError{Status: http.StatusBadRequest, Message: "You cannot delete your own account"})
		return
	}

	target, err := a.agents.GetByID(ctx, id)
	if err != nil {
		writeAPIError(c, err)
		return
	}
	if target == nil {
		writeAPIError(c, &apiError{Status: http.StatusNotFound, Message: "User not found"})
		return
	}
	if _, err := a.agents.Delete(ctx, id); err != nil {
		writeAPIError(c, err)
		return
	}
	if err := a.sessions.DeleteByAgent(ctx, target.ID); err != nil {
		a.log.Error("session revoke failed", "user", target.Username, "err", err)
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
