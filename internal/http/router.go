package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.uber.org/zap"

	"github.com/heysouravv/social-hour/internal/config"
	"github.com/heysouravv/social-hour/internal/http/handler"
	"github.com/heysouravv/social-hour/internal/http/middleware"
	"github.com/heysouravv/social-hour/internal/http/views"
)

// NewRouter wires Gin routes and middleware.
func NewRouter(
	cfg config.Config,
	landingHandler *handler.LandingHandler,
	waitlistHandler *handler.WaitlistHandler,
	cookies *middleware.SessionCookies,
	limits middleware.RateLimits,
	logger *zap.Logger,
) *gin.Engine {
	r := gin.New()
	r.SetHTMLTemplate(views.Templates())
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORS(cfg))
	r.Use(otelgin.Middleware(cfg.ServiceName))

	r.GET("/healthz", handler.Healthz)
	r.GET("/", landingHandler.Show)

	waitlist := r.Group("/waitlist")
	waitlist.Use(cookies.Load, limits.Requests.Handler())
	{
		waitlist.GET("", waitlistHandler.Show)
		waitlist.POST("/profile", waitlistHandler.SubmitProfile)
		waitlist.POST("/phone", limits.Sends.Handler(), waitlistHandler.SubmitPhone)
		waitlist.POST("/otp", waitlistHandler.SubmitOTP)
		waitlist.POST("/resend", limits.Sends.Handler(), waitlistHandler.Resend)
		waitlist.POST("/change-number", waitlistHandler.ChangeNumber)
		waitlist.POST("/back", waitlistHandler.Back)
		waitlist.POST("/done", waitlistHandler.Done)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "error_description": "Route not found."})
	})

	return r
}
