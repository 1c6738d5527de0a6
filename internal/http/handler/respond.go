package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/heysouravv/social-hour/internal/domain"
	"github.com/heysouravv/social-hour/internal/flow"
	"github.com/heysouravv/social-hour/internal/http/middleware"
	"github.com/heysouravv/social-hour/internal/landing"
)

// SessionView is the JSON shape of a waitlist session.
type SessionView struct {
	Step        int            `json:"step"`
	StepName    string         `json:"step_name"`
	Name        string         `json:"name"`
	Area        string         `json:"area"`
	PhoneNumber string         `json:"phone_number"`
	CountryCode string         `json:"country_code"`
	Verified    bool           `json:"verified"`
	Pending     bool           `json:"pending"`
	Error       string         `json:"error,omitempty"`
	UserInfo    map[string]any `json:"user_info,omitempty"`
}

func newSessionView(s *domain.Session, rules flow.Rules) SessionView {
	return SessionView{
		Step:        int(s.Step),
		StepName:    s.Step.String(),
		Name:        s.Draft.Name,
		Area:        s.Draft.Area,
		PhoneNumber: s.Draft.PhoneNumber,
		CountryCode: rules.CountryCode,
		Verified:    s.Verified,
		Pending:     s.Pending,
		Error:       s.Error,
		UserInfo:    s.UserInfo,
	}
}

// page is the data every template receives.
type page struct {
	Title       string
	Refresh     int
	View        SessionView
	PhoneDigits int
	OTPDigits   int
	Message     string
	RequestID   string
	Content     landing.Content
	Notice      landing.Notice
}

func wantsJSON(c *gin.Context) bool {
	if c.ContentType() == gin.MIMEJSON {
		return true
	}
	return c.NegotiateFormat(gin.MIMEHTML, gin.MIMEJSON) == gin.MIMEJSON
}

func respondError(c *gin.Context, status int, code, description string) {
	requestID := middleware.RequestID(c)
	if wantsJSON(c) {
		c.AbortWithStatusJSON(status, gin.H{"error": code, "error_description": description, "request_id": requestID})
		return
	}
	c.HTML(status, "error.html", page{Title: "Social Hour", Message: description, RequestID: requestID})
	c.Abort()
}
