package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/heysouravv/social-hour/internal/landing"
)

var viewportHints = strings.Join([]string{landing.HeaderViewportWidth, landing.HeaderViewportWidthLegacy}, ", ")

// LandingHandler serves the marketing page.
type LandingHandler struct {
	content         landing.Content
	notice          landing.Notice
	desktopMinWidth int
}

func NewLandingHandler(desktopMinWidth int) *LandingHandler {
	return &LandingHandler{
		content:         landing.DefaultContent(),
		notice:          landing.DesktopNotice(),
		desktopMinWidth: desktopMinWidth,
	}
}

// Show renders the desktop notice or the mobile page depending on the
// client's viewport width hint.
func (h *LandingHandler) Show(c *gin.Context) {
	header := c.Writer.Header()
	header.Set("Accept-CH", viewportHints)
	header.Add("Vary", viewportHints)

	variant := landing.Choose(landing.ViewportWidth(c.Request), h.desktopMinWidth)
	if variant == landing.VariantDesktop {
		c.HTML(http.StatusOK, "desktop.html", page{Title: "Social Hour", Notice: h.notice})
		return
	}
	c.HTML(http.StatusOK, "landing.html", page{Title: "Social Hour", Content: h.content})
}

// Healthz reports liveness.
func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
