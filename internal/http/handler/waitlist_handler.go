package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/heysouravv/social-hour/internal/domain"
	"github.com/heysouravv/social-hour/internal/http/middleware"
	"github.com/heysouravv/social-hour/internal/service"
)

const waitlistPath = "/waitlist"

// WaitlistHandler serves the four step signup form.
type WaitlistHandler struct {
	svc        *service.WaitlistService
	cookies    *middleware.SessionCookies
	verifyWait time.Duration
	logger     *zap.Logger
}

// NewWaitlistHandler creates the handler set. verifyWait bounds how long an
// OTP submission waits for the verification result before rendering.
func NewWaitlistHandler(svc *service.WaitlistService, cookies *middleware.SessionCookies, verifyWait time.Duration, logger *zap.Logger) *WaitlistHandler {
	if logger == nil {
		logger = zap.L()
	}
	return &WaitlistHandler{svc: svc, cookies: cookies, verifyWait: verifyWait, logger: logger}
}

type profileRequest struct {
	Name string `form:"name" json:"name"`
	Area string `form:"area" json:"area"`
}

type phoneRequest struct {
	Phone string `form:"phone" json:"phone"`
}

type otpRequest struct {
	OTP string `form:"otp" json:"otp"`
}

// Show renders the current step, starting a session when needed.
func (h *WaitlistHandler) Show(c *gin.Context) {
	session, err := h.svc.Start(c.Request.Context(), middleware.SessionID(c))
	if err != nil {
		h.serverError(c, err)
		return
	}
	if err := h.cookies.Issue(c, session.ID); err != nil {
		h.serverError(c, err)
		return
	}
	h.render(c, http.StatusOK, session)
}

func (h *WaitlistHandler) SubmitProfile(c *gin.Context) {
	var req profileRequest
	if !h.bind(c, &req) {
		return
	}
	session, err := h.svc.SubmitProfile(c.Request.Context(), middleware.SessionID(c), req.Name, req.Area)
	h.respond(c, session, err)
}

func (h *WaitlistHandler) SubmitPhone(c *gin.Context) {
	var req phoneRequest
	if !h.bind(c, &req) {
		return
	}
	session, err := h.svc.SubmitPhone(c.Request.Context(), middleware.SessionID(c), req.Phone)
	h.respond(c, session, err)
}

// SubmitOTP starts verification and waits a bounded time for the result so
// the common case renders the outcome directly.
func (h *WaitlistHandler) SubmitOTP(c *gin.Context) {
	var req otpRequest
	if !h.bind(c, &req) {
		return
	}
	ctx := c.Request.Context()
	session, err := h.svc.SubmitOTP(ctx, middleware.SessionID(c), req.OTP)
	if err == nil && session.Pending && session.Error == "" {
		waitCtx, cancel := context.WithTimeout(ctx, h.verifyWait)
		settled, werr := h.svc.Await(waitCtx, session.ID)
		cancel()
		if werr == nil {
			session = settled
		} else {
			h.logger.Warn("await verification", zap.String("session_id", session.ID), zap.Error(werr))
		}
	}
	h.respond(c, session, err)
}

func (h *WaitlistHandler) Resend(c *gin.Context) {
	session, err := h.svc.Resend(c.Request.Context(), middleware.SessionID(c))
	h.respond(c, session, err)
}

func (h *WaitlistHandler) ChangeNumber(c *gin.Context) {
	session, err := h.svc.ChangeNumber(c.Request.Context(), middleware.SessionID(c))
	h.respond(c, session, err)
}

func (h *WaitlistHandler) Back(c *gin.Context) {
	session, err := h.svc.Back(c.Request.Context(), middleware.SessionID(c))
	h.respond(c, session, err)
}

// Done discards the session and returns to the landing page.
func (h *WaitlistHandler) Done(c *gin.Context) {
	if id := middleware.SessionID(c); id != "" {
		if err := h.svc.Finish(c.Request.Context(), id); err != nil {
			h.serverError(c, err)
			return
		}
	}
	h.cookies.Clear(c)
	if wantsJSON(c) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "redirect": "/"})
		return
	}
	c.Redirect(http.StatusSeeOther, "/")
}

func (h *WaitlistHandler) bind(c *gin.Context, req any) bool {
	if err := c.ShouldBind(req); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_request", "Malformed request body.")
		return false
	}
	return true
}

func (h *WaitlistHandler) respond(c *gin.Context, session *domain.Session, err error) {
	if errors.Is(err, domain.ErrSessionNotFound) {
		if wantsJSON(c) {
			respondError(c, http.StatusNotFound, "session_not_found", "Session expired. Reload the waitlist.")
			return
		}
		c.Redirect(http.StatusSeeOther, waitlistPath)
		return
	}
	if err != nil {
		h.serverError(c, err)
		return
	}
	// Every save extends the stored session, so the cookie follows.
	if err := h.cookies.Issue(c, session.ID); err != nil {
		h.serverError(c, err)
		return
	}

	if !wantsJSON(c) {
		c.Redirect(http.StatusSeeOther, waitlistPath)
		return
	}
	status := http.StatusOK
	if session.Error != "" {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, newSessionView(session, h.svc.Rules()))
}

func (h *WaitlistHandler) render(c *gin.Context, status int, session *domain.Session) {
	rules := h.svc.Rules()
	view := newSessionView(session, rules)
	if wantsJSON(c) {
		c.JSON(status, view)
		return
	}
	p := page{
		Title:       "Join the Waitlist | Social Hour",
		View:        view,
		PhoneDigits: rules.PhoneDigits,
		OTPDigits:   rules.OTPDigits,
	}
	if session.Pending {
		p.Refresh = 2
	}
	c.HTML(status, "waitlist.html", p)
}

func (h *WaitlistHandler) serverError(c *gin.Context, err error) {
	_ = c.Error(err)
	h.logger.Error("waitlist request failed", zap.String("path", c.Request.URL.Path), zap.Error(err))
	respondError(c, http.StatusInternalServerError, "server_error", "Something went wrong. Please try again.")
}
