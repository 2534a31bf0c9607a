package handlers

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"
	"time"

	"flowwatch/config"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"
)

const (
	sessionCookie   = "flowwatch_session"
	authFlagCookie  = "isAuthenticated"
	userEmailCookie = "userEmail"
)

// sessionSigner issues HMAC-signed session tokens of the form
// base64(email).expiry.signature.
type sessionSigner struct {
	key    []byte
	maxAge time.Duration
}

func (s *sessionSigner) Issue(email string, now time.Time) string {
	payload := base64.RawURLEncoding.EncodeToString([]byte(email)) + "." + strconv.FormatInt(now.Add(s.maxAge).Unix(), 10)
	return payload + "." + s.sign(payload)
}

// Verify returns the session's email when the token is authentic and unexpired.
func (s *sessionSigner) Verify(token string, now time.Time) (string, bool) {
	parts := strings.Split(token, ".")
	if len(parts) != 3 {
		return "", false
	}
	payload := parts[0] + "." + parts[1]
	if !hmac.Equal([]byte(s.sign(payload)), []byte(parts[2])) {
		return "", false
	}
	expiry, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil || now.Unix() >= expiry {
		return "", false
	}
	email, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return "", false
	}
	return string(email), true
}

func (s *sessionSigner) sign(payload string) string {
	mac := hmac.New(sha256.New, s.key)
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// HashPassword returns a bcrypt hash suitable for an operator entry.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func findOperator(ops []config.Operator, email string) (config.Operator, bool) {
	for _, op := range ops {
		if strings.EqualFold(op.Email, email) {
			return op, true
		}
	}
	return config.Operator{}, false
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login checks operator credentials and starts a session.
func (h *Handler) Login(c *gin.Context) {
	if !h.cfg.AuthEnabled() {
		c.JSON(http.StatusOK, gin.H{"success": true, "authRequired": false})
		return
	}

	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, "Email and password are required", "")
		return
	}

	email := strings.TrimSpace(req.Email)
	op, ok := findOperator(h.cfg.Operators, email)
	if !ok || bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(req.Password)) != nil {
		h.log.Warn("failed login", "email", email, "client", c.ClientIP())
		respondError(c, http.StatusUnauthorized, "Invalid email or password", "")
		return
	}

	maxAge := int(h.sessions.maxAge.Seconds())
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sessionCookie, h.sessions.Issue(op.Email, h.now()), maxAge, "/", "", false, true)
	c.SetCookie(authFlagCookie, "true", maxAge, "/", "", false, false)
	c.SetCookie(userEmailCookie, op.Email, maxAge, "/", "", false, false)

	h.log.Info("operator signed in", "email", op.Email)
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    gin.H{"email": op.Email, "name": op.Name},
	})
}

// Logout clears the session cookies.
func (h *Handler) Logout(c *gin.Context) {
	for _, name := range []string{sessionCookie, authFlagCookie, userEmailCookie} {
		c.SetCookie(name, "", -1, "/", "", false, name == sessionCookie)
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// RequireSession rejects requests without a valid session cookie. It is a
// no-op when no operators are configured.
func (h *Handler) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !h.cfg.AuthEnabled() {
			c.Next()
			return
		}

		token, err := c.Cookie(sessionCookie)
		if err == nil {
			if email, ok := h.sessions.Verify(token, h.now()); ok {
				c.Set("operator", email)
				c.Next()
				return
			}
		}
		respondError(c, http.StatusUnauthorized, "Unauthorized", "Sign in at /api/auth/login")
		c.Abort()
	}
}
