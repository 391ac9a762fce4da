package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/layer-3/walletauth/core"
	"github.com/layer-3/walletauth/ports"
	"github.com/layer-3/walletauth/service"
)

// AuthHandlers contains the HTTP handlers for the wallet auth
// endpoints.
type AuthHandlers struct {
	appName  string
	verifier *service.Verifier
	sessions *service.SessionManager
	linking  *service.LinkingManager
	events   ports.EventPublisher
	log      *slog.Logger
}

// NewAuthHandlers creates the handler set. events may be nil.
func NewAuthHandlers(appName string, verifier *service.Verifier, sessions *service.SessionManager, linking *service.LinkingManager, events ports.EventPublisher, log *slog.Logger) *AuthHandlers {
	if log == nil {
		log = slog.Default()
	}
	return &AuthHandlers{
		appName:  appName,
		verifier: verifier,
		sessions: sessions,
		linking:  linking,
		events:   events,
		log:      log,
	}
}

// Challenge issues a sign-in message for the client's wallet to sign.
func (h *AuthHandlers) Challenge(c *gin.Context) {
	var req struct {
		AppName string `json:"app_name"`
	}
	// The body is optional; a bare POST uses the configured app name.
	_ = c.ShouldBindJSON(&req)

	appName := req.AppName
	if appName == "" {
		appName = h.appName
	}

	challenge, err := service.GenerateChallenge(appName, "")
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create challenge"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": challenge.Message})
}

// Verify runs the full authentication flow: verify the signed message,
// link or create the user record, then open a session. The three steps
// are strictly sequential; each one's output feeds the next.
func (h *AuthHandlers) Verify(c *gin.Context) {
	var req struct {
		PublicKey string         `json:"public_key" binding:"required"`
		Signature string         `json:"signature" binding:"required"`
		Message   string         `json:"message" binding:"required"`
		UserID    string         `json:"user_id"`
		Email     string         `json:"email"`
		Metadata  map[string]any `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	result := h.verifier.Verify(req.PublicKey, req.Signature, req.Message, service.VerifyOptions{})
	if !result.Valid {
		c.JSON(http.StatusUnauthorized, gin.H{"error": result.Reason})
		return
	}

	user, err := h.linking.LinkOrCreateUser(c.Request.Context(), core.LinkRequest{
		PublicKey:      result.PublicKey,
		ExistingUserID: req.UserID,
		Email:          req.Email,
		Metadata:       req.Metadata,
	})
	if err != nil {
		status := http.StatusInternalServerError
		switch {
		case errors.Is(err, core.ErrUserNotFound):
			status = http.StatusNotFound
		case errors.Is(err, core.ErrWalletAlreadyLinked), errors.Is(err, core.ErrEmailAlreadyLinked):
			status = http.StatusConflict
		default:
			h.log.Error("linking failed", "public_key", result.PublicKey, "error", err)
			c.JSON(status, gin.H{"error": "failed to link user"})
			return
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	sessionID, err := h.sessions.CreateSession(c.Request.Context(), result.PublicKey, service.CreateSessionOptions{
		UserID: user.ID,
	})
	if err != nil {
		h.log.Error("session creation failed", "public_key", result.PublicKey, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create session"})
		return
	}

	session, err := h.sessions.GetSession(c.Request.Context(), sessionID)
	if err != nil || session == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": sessionID,
		"public_key": session.PublicKey,
		"user_id":    session.UserID,
		"expires_at": session.ExpiresAt.Format(time.RFC3339),
	})
}

// Refresh extends a session's expiry from now.
func (h *AuthHandlers) Refresh(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	ok, err := h.sessions.RefreshSession(c.Request.Context(), req.SessionID, 0)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to refresh session"})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"refreshed": true})
}

// Logout deletes a session. Deleting an unknown session still reports
// success; logout is idempotent.
func (h *AuthHandlers) Logout(c *gin.Context) {
	var req struct {
		SessionID string `json:"session_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}

	session, err := h.sessions.GetSession(c.Request.Context(), req.SessionID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load session"})
		return
	}

	if err := h.sessions.DeleteSession(c.Request.Context(), req.SessionID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to delete session"})
		return
	}

	if h.events != nil && session != nil {
		if err := h.events.PublishSessionRevoked(c.Request.Context(), session.PublicKey, session.ID); err != nil {
			h.log.Warn("failed to publish session revoked event", "session_id", session.ID, "error", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Unlink detaches the authenticated wallet from its user record.
func (h *AuthHandlers) Unlink(c *gin.Context) {
	publicKey := PublicKeyFromContext(c)
	if publicKey == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	user, err := h.linking.GetUserByPublicKey(c.Request.Context(), publicKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up user"})
		return
	}
	if user == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": core.ErrUserNotFound.Error()})
		return
	}

	updated, err := h.linking.UnlinkWallet(c.Request.Context(), user.ID)
	if err != nil {
		if errors.Is(err, core.ErrUserNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to unlink wallet"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"user": updated})
}

// Me returns the authenticated public key and its user record, if any.
func (h *AuthHandlers) Me(c *gin.Context) {
	publicKey := PublicKeyFromContext(c)
	if publicKey == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	user, err := h.linking.GetUserByPublicKey(c.Request.Context(), publicKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"public_key": publicKey,
		"user":       user,
	})
}
