package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/commonroom/commonroom/internal/session"
	logger "github.com/commonroom/commonroom/middleware/log"
	"github.com/commonroom/commonroom/pkg/utils"
)

// AuthHandler exposes the SessionManager over HTTP.
type AuthHandler struct {
	session *session.Manager
	tokens  *utils.TokenIssuer
	log     *logger.Logger
}

func NewAuthHandler(sess *session.Manager, tokens *utils.TokenIssuer, log *logger.Logger) *AuthHandler {
	return &AuthHandler{
		session: sess,
		tokens:  tokens,
		log:     log,
	}
}

type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Secret   string `json:"secret" binding:"required"`
}

type LoginRequest struct {
	Email  string `json:"email" binding:"required"`
	Secret string `json:"secret" binding:"required"`
}

// Register handles signup: a validation failure is a hard error the client
// renders inline.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identity, err := h.session.SignUp(c.Request.Context(), req.Username, req.Email, req.Secret)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, session.ErrEmailInUse) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	token, err := h.tokens.Generate(identity.ID, identity.Username, identity.Email)
	if err != nil {
		h.log.Error("issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user": identity})
}

// Login handles authentication.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	identity, err := h.session.Login(c.Request.Context(), req.Email, req.Secret)
	if err != nil {
		if errors.Is(err, session.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		h.log.Error("login", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	token, err := h.tokens.Generate(identity.ID, identity.Username, identity.Email)
	if err != nil {
		h.log.Error("issue token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not issue token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"token": token, "user": identity})
}

// Logout clears the active identity; it has no failure mode.
func (h *AuthHandler) Logout(c *gin.Context) {
	h.session.Logout(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me returns the active identity.
func (h *AuthHandler) Me(c *gin.Context) {
	identity := h.session.Active()
	if identity == nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "not logged in"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": identity})
}
