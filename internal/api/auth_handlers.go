package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/davido182/depositdigest/internal/middleware"
	"github.com/davido182/depositdigest/internal/resilience"
	"github.com/davido182/depositdigest/internal/service"
)

// AuthHandler exposes the login-attempt tracker and password policy to the
// authentication flow, which lives outside this service
type AuthHandler struct {
	svc *service.MonitoringService
}

func NewAuthHandler(svc *service.MonitoringService) *AuthHandler {
	return &AuthHandler{svc: svc}
}

// LoginAttemptRequest identifies the account a login concerns
type LoginAttemptRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	UserID     string `json:"user_id"`
}

// PasswordRequest carries a candidate password
type PasswordRequest struct {
	Password string `json:"password" binding:"required"`
}

// SessionRequest asks for a session for an authenticated user
type SessionRequest struct {
	UserID string `json:"user_id" binding:"required"`
}

// LoginCheck handles POST /api/auth/login-check
func (h *AuthHandler) LoginCheck(c *gin.Context) {
	var req LoginAttemptRequest
	if !bind(c, &req) {
		return
	}

	allowed := h.svc.CheckLoginAttempts(req.Identifier)
	status := http.StatusOK
	if !allowed {
		status = http.StatusTooManyRequests
	}
	c.JSON(status, gin.H{
		"allowed":  allowed,
		"attempts": h.svc.Security.AttemptCount(req.Identifier),
	})
}

// LoginFailed handles POST /api/auth/login-failed
func (h *AuthHandler) LoginFailed(c *gin.Context) {
	var req LoginAttemptRequest
	if !bind(c, &req) {
		return
	}

	h.svc.RecordFailedLogin(req.Identifier, req.UserID)
	c.JSON(http.StatusOK, gin.H{
		"allowed":  h.svc.CheckLoginAttempts(req.Identifier),
		"attempts": h.svc.Security.AttemptCount(req.Identifier),
	})
}

// LoginSuccess handles POST /api/auth/login-success
func (h *AuthHandler) LoginSuccess(c *gin.Context) {
	var req LoginAttemptRequest
	if !bind(c, &req) {
		return
	}

	h.svc.RecordSuccessfulLogin(req.UserID, req.Identifier)
	c.JSON(http.StatusOK, gin.H{"message": "login recorded"})
}

// IssueSession handles POST /api/auth/session
func (h *AuthHandler) IssueSession(c *gin.Context) {
	var req SessionRequest
	if !bind(c, &req) {
		return
	}

	session, err := h.svc.Sessions.Issue(req.UserID)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

// ValidatePassword handles POST /api/security/password/validate
func (h *AuthHandler) ValidatePassword(c *gin.Context) {
	var req PasswordRequest
	if !bind(c, &req) {
		return
	}

	result := h.svc.ValidatePassword(req.Password)
	if result.Errors == nil {
		result.Errors = []string{}
	}
	c.JSON(http.StatusOK, result)
}

// bind decodes the JSON body, answering 400 with a friendly message on failure
func bind(c *gin.Context, req interface{}) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		middleware.HandleAppError(c, middleware.NewBadRequestError(resilience.HandleValidationError(err)))
		return false
	}
	return true
}
