package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/heysouravv/social-hour/internal/jwt"
)

// SessionCookieName is the cookie carrying the signed waitlist session ID.
const SessionCookieName = "sh_waitlist"

const sessionIDKey = "waitlistSessionID"

// SessionCookies reads and writes the signed session cookie.
type SessionCookies struct {
	signer *jwt.CookieSigner
	ttl    time.Duration
	secure bool
	logger *zap.Logger
}

// NewSessionCookies constructs the cookie middleware.
func NewSessionCookies(signer *jwt.CookieSigner, ttl time.Duration, secure bool, logger *zap.Logger) *SessionCookies {
	if logger == nil {
		logger = zap.L()
	}
	return &SessionCookies{signer: signer, ttl: ttl, secure: secure, logger: logger}
}

// Load attaches the session ID from a valid cookie. Missing, tampered or
// expired cookies are treated as no session.
func (m *SessionCookies) Load(c *gin.Context) {
	raw, err := c.Cookie(SessionCookieName)
	if err == nil && raw != "" {
		id, verr := m.signer.Verify(raw)
		if verr != nil {
			m.logger.Debug("discarding session cookie", zap.Error(verr))
		} else {
			c.Set(sessionIDKey, id)
		}
	}
	c.Next()
}

// Issue binds the response to session id.
func (m *SessionCookies) Issue(c *gin.Context, id string) error {
	token, err := m.signer.Sign(id)
	if err != nil {
		return err
	}
	c.Set(sessionIDKey, id)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, token, int(m.ttl.Seconds()), "/", "", m.secure, true)
	return nil
}

// Clear expires the cookie.
func (m *SessionCookies) Clear(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(SessionCookieName, "", -1, "/", "", m.secure, true)
}

// SessionID returns the session bound to the request, or "".
func SessionID(c *gin.Context) string {
	return c.GetString(sessionIDKey)
}
