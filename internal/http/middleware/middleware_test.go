package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/heysouravv/social-hour/internal/config"
	"github.com/heysouravv/social-hour/internal/jwt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newCookies(t *testing.T) *SessionCookies {
	t.Helper()
	signer, err := jwt.NewCookieSigner("test-secret", "social-hour", time.Hour)
	require.NoError(t, err)
	return NewSessionCookies(signer, time.Hour, false, zap.NewNop())
}

func TestSessionCookiesRoundTrip(t *testing.T) {
	cookies := newCookies(t)
	r := gin.New()
	r.Use(cookies.Load)
	r.GET("/issue", func(c *gin.Context) {
		require.NoError(t, cookies.Issue(c, "session-1"))
		c.Status(http.StatusNoContent)
	})
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, SessionID(c))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/issue", nil))
	resp := w.Result()
	require.Len(t, resp.Cookies(), 1)
	cookie := resp.Cookies()[0]
	require.Equal(t, SessionCookieName, cookie.Name)
	require.True(t, cookie.HttpOnly)
	require.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(cookie)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, "session-1", w.Body.String())
}

func TestSessionCookiesIgnoresTamperedCookie(t *testing.T) {
	cookies := newCookies(t)
	r := gin.New()
	r.Use(cookies.Load)
	r.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, SessionID(c))
	})

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: "forged"})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Empty(t, w.Body.String())
}

func TestRateLimiterRejectsBurst(t *testing.T) {
	limiter := NewRateLimiter(10)
	r := gin.New()
	r.Use(limiter.Handler())
	r.POST("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
	require.Equal(t, http.StatusTooManyRequests, w.Code)

	require.Nil(t, NewRateLimiter(0))
}

func TestRateLimiterLetsPollingThrough(t *testing.T) {
	limiter := NewRateLimiter(10)
	r := gin.New()
	r.Use(limiter.Handler())
	r.GET("/waitlist", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/waitlist/otp", func(c *gin.Context) { c.Status(http.StatusOK) })

	for i := 0; i < 20; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/waitlist", nil))
		require.Equal(t, http.StatusOK, w.Code)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/waitlist/otp", nil))
	require.Equal(t, http.StatusOK, w.Code)
}

func TestSendLimiterIsPerSession(t *testing.T) {
	limits := NewRateLimits(600, 6)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if id := c.GetHeader("X-Test-Session"); id != "" {
			c.Set(sessionIDKey, id)
		}
		c.Next()
	})
	r.Use(limits.Requests.Handler())
	r.POST("/waitlist/phone", limits.Sends.Handler(), func(c *gin.Context) { c.Status(http.StatusOK) })
	r.POST("/waitlist/profile", func(c *gin.Context) { c.Status(http.StatusOK) })

	post := func(path, session string) int {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.Header.Set("X-Test-Session", session)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w.Code
	}

	for i := 0; i < maxSendBurst; i++ {
		require.Equal(t, http.StatusOK, post("/waitlist/phone", "session-a"))
	}
	require.Equal(t, http.StatusTooManyRequests, post("/waitlist/phone", "session-a"))
	require.Equal(t, http.StatusOK, post("/waitlist/profile", "session-a"))
	require.Equal(t, http.StatusOK, post("/waitlist/phone", "session-b"))

	require.Nil(t, NewSendLimiter(0))
}

func TestCORSAllowsConfiguredOrigin(t *testing.T) {
	cfg := config.Config{
		CORSAllowedOrigins: []string{"https://socialhour.app"},
		CORSAllowedMethods: []string{"GET", "POST"},
		CORSAllowedHeaders: []string{"Content-Type"},
	}
	r := gin.New()
	r.Use(CORS(cfg))
	r.POST("/waitlist/profile", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodOptions, "/waitlist/profile", nil)
	req.Header.Set("Origin", "https://socialhour.app")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "https://socialhour.app", w.Header().Get("Access-Control-Allow-Origin"))
	require.Equal(t, "GET, POST", w.Header().Get("Access-Control-Allow-Methods"))

	req = httptest.NewRequest(http.MethodOptions, "/waitlist/profile", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestRequestLoggerSetsRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestLogger(zap.NewNop()))
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, RequestID(c)) })

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, "req-123", w.Body.String())
	require.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}
