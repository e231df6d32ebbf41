package main

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/crypto/bcrypt"
)

const (
	sessionTokenBytes    = 32
	bcryptCost           = 10
	agentContextKey      = "agent"
	sessionTokenCtxKey   = "sessionToken"
	legacySHA256HashSize = sha256.Size * 2
)

var (
	errInvalidCredentials = &apiError{Status: http.StatusUnauthorized, Message: "Invalid username or password"}
	errUnauthorized       = &apiError{Status: http.StatusUnauthorized, Message: "Unauthorized"}
	errForbidden          = &apiError{Status: http.StatusForbidden, Message: "Insufficient role"}
	legacyHashPattern     = regexp.MustCompile(`^[0-9a-f]{64}$`)
)

func containsString(list []string, value string) bool {
	for _, entry := range list {
		if entry == value {
			return true
		}
	}
	return false
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcryptCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// verifyPassword accepts bcrypt hashes and the unsalted SHA-256 hex digests
// written by the old admin script. The second return reports a legacy match.
func verifyPassword(hash, password string) (bool, bool) {
	if len(hash) == legacySHA256HashSize && legacyHashPattern.MatchString(hash) {
		digest := sha256.Sum256([]byte(password))
		candidate := hex.EncodeToString(digest[:])
		return subtle.ConstantTimeCompare([]byte(candidate), []byte(hash)) == 1, true
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil, false
}

func generateSessionToken() (string, error) {
	buffer := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(buffer); err != nil {
		return "", err
	}
	return hex.EncodeToString(buffer), nil
}

func (a *App) authenticateAgent(ctx context.Context, username, password string) (*Agent, error) {
	agent, err := a.agents.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return nil, err
	}
	if agent == nil || !agent.IsActive {
		return nil, errInvalidCredentials
	}
	ok, legacy := verifyPassword(agent.PasswordHash, password)
	if !ok {
		return nil, errInvalidCredentials
	}

	now := a.now().UTC()
	if legacy {
		if upgraded, err := hashPassword(password); err == nil {
			if _, err := a.agents.Update(ctx, agent.ID.Hex(), bson.M{"passwordHash": upgraded, "updatedAt": now}); err != nil {
				a.log.Warn("password hash upgrade failed", "agent", agent.Username, "err", err)
			}
		}
	}
	if err := a.agents.TouchLogin(ctx, agent.ID, now); err != nil {
		a.log.Warn("last login update failed", "agent", agent.Username, "err", err)
	}
	agent.LastLogin = &now
	return agent, nil
}

// createSession purges expired sessions, then issues a new random token.
func (a *App) createSession(ctx context.Context, agent *Agent) (*Session, error) {
	now := a.now().UTC()
	if _, err := a.sessions.DeleteExpired(ctx, now); err != nil {
		a.log.Warn("expired session cleanup failed", "err", err)
	}
	token, err := generateSessionToken()
	if err != nil {
		return nil, err
	}
	session := Session{
		Token:     token,
		AgentID:   agent.ID,
		ExpiresAt: now.Add(agentSessionDuration),
		CreatedAt: now,
	}
	if err := a.sessions.Create(ctx, session); err != nil {
		return nil, err
	}
	return &session, nil
}

// validateSession resolves a token to its active agent, or (nil, nil) when the
// token is unknown, expired or belongs to a deactivated agent.
func (a *App) validateSession(ctx context.Context, token string) (*Agent, error) {
	if strings.TrimSpace(token) == "" {
		return nil, nil
	}
	session, err := a.sessions.FindValid(ctx, token, a.now().UTC())
	if err != nil || session == nil {
		return nil, err
	}
	agent, err := a.agents.GetByID(ctx, session.AgentID.Hex())
	if err != nil || agent == nil {
		return nil, err
	}
	if !agent.IsActive {
		return nil, nil
	}
	return agent, nil
}

func sessionTokenFromRequest(c *gin.Context) string {
	if token, err := c.Cookie(agentCookieName); err == nil && strings.TrimSpace(token) != "" {
		return token
	}
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if len(header) > len("Bearer ") && strings.EqualFold(header[:len("Bearer ")], "Bearer ") {
		return strings.TrimSpace(header[len("Bearer "):])
	}
	return ""
}

func (a *App) startAgentSession(c *gin.Context, session *Session) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(agentCookieName, session.Token, int(agentSessionDuration.Seconds()), "/", "", a.isProduction(), true)
}

func (a *App) clearAgentSession(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(agentCookieName, "", -1, "/", "", a.isProduction(), true)
}

func (a *App) requireAgentSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := sessionTokenFromRequest(c)
		agent, err := a.validateSession(c.Request.Context(), token)
		if err != nil {
			a.log.Error("session validation failed", "err", err)
			writeAPIError(c, err)
			c.Abort()
			return
		}
		if agent == nil {
			writeAPIError(c, errUnauthorized)
			c.Abort()
			return
		}
		c.Set(agentContextKey, *agent)
		c.Set(sessionTokenCtxKey, token)
		c.Next()
	}
}

// optionalAgentSession attaches the agent when a valid session is present and
// never rejects the request.
func (a *App) optionalAgentSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := sessionTokenFromRequest(c)
		if token != "" {
			if agent, err := a.validateSession(c.Request.Context(), token); err == nil && agent != nil {
				c.Set(agentContextKey, *agent)
			}
		}
		c.Next()
	}
}

func (a *App) requireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		agent, err := getAgent(c)
		if err != nil {
			writeAPIError(c, errUnauthorized)
			c.Abort()
			return
		}
		if !containsString(roles, agent.Role) {
			writeAPIError(c, errForbidden)
			c.Abort()
			return
		}
		c.Next()
	}
}

func getAgent(c *gin.Context) (Agent, error) {
	value, ok := c.Get(agentContextKey)
	if !ok {
		return Agent{}, fmt.Errorf("missing session")
	}
	agent, ok := value.(Agent)
	if !ok {
		return Agent{}, fmt.Errorf("invalid session")
	}
	return agent, nil
}

func (a *App) checkRateLimit(key string, maxRequests int, window time.Duration, now time.Time) bool {
	a.rateLimiterMu.Lock()
	defer a.rateLimiterMu.Unlock()

	bucket, ok := a.rateBuckets[key]
	if !ok || now.Sub(bucket.start) >= window {
		a.rateBuckets[key] = rateBucket{start: now, count: 1}
		return true
	}
	bucket.count++
	a.rateBuckets[key] = bucket
	return bucket.count <= maxRequests
}

func (a *App) startRateLimiterCleanup(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				a.pruneRateLimiterState(now)
			}
		}
	}()
}

func (a *App) pruneRateLimiterState(now time.Time) {
	a.rateLimiterMu.Lock()
	defer a.rateLimiterMu.Unlock()
	for key, bucket := range a.rateBuckets {
		if now.Sub(bucket.start) >= contactRateLimitWindow {
			delete(a.rateBuckets, key)
		}
	}
}
