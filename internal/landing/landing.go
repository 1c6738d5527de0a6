// Package landing holds the marketing page content and decides which
// variant a visitor gets.
package landing

import (
	"net/http"
	"strconv"
	"strings"
)

// Variant is the landing page flavour served to a client.
type Variant string

const (
	VariantMobile  Variant = "mobile"
	VariantDesktop Variant = "desktop"
)

// DefaultDesktopMinWidth is the smallest CSS pixel width treated as desktop.
const DefaultDesktopMinWidth = 1024

// Client hint headers carrying the layout viewport width.
const (
	HeaderViewportWidth       = "Sec-CH-Viewport-Width"
	HeaderViewportWidthLegacy = "Viewport-Width"
	QueryViewportWidth        = "vw"
)

// Feature is one row of the feature list.
type Feature struct {
	Icon        string
	Title       string
	Description string
}

// Content is everything the mobile page renders.
type Content struct {
	Badge       string
	Headline    string
	Subheadline string
	Features    []Feature
	HowItWorks  []string
	JoinedCount string
	CTALabel    string
	CTAHref     string
	Tagline     string
	Avatars     int
}

// Notice is the desktop placeholder.
type Notice struct {
	Title string
	Body  string
}

// DefaultContent returns the Social Hour copy.
func DefaultContent() Content {
	return Content{
		Badge:       "Social Hour",
		Headline:    "Meet New People at House Parties, Naturally",
		Subheadline: "Simple, friendly, and comfortable - exactly how meeting people should be.",
		Features: []Feature{
			{Icon: "home", Title: "Get Invited", Description: "Receive invitations to exclusive house parties"},
			{Icon: "sparkles", Title: "Perfect Timing", Description: "Meet someone new when the moment feels right"},
			{Icon: "message-square", Title: "Start Chatting", Description: "Use our helpful conversation starters"},
		},
		HowItWorks: []string{
			"Get invited to a house party",
			"Enjoy the party as usual",
			"When the moment's right, meet someone new",
			"Start chatting with our helpful conversation starters",
		},
		JoinedCount: "2,400+",
		CTALabel:    "Join Social Hour",
		CTAHref:     "/waitlist",
		Tagline:     "Trusted hosts, natural connections",
		Avatars:     4,
	}
}

// DesktopNotice is shown instead of the marketing page on wide screens.
func DesktopNotice() Notice {
	return Notice{
		Title: "We are not there yet",
		Body:  "Please view this page on a mobile device.",
	}
}

// Choose picks the variant for a viewport width. A width of zero or less
// means unknown and gets the mobile page.
func Choose(width, desktopMinWidth int) Variant {
	if desktopMinWidth <= 0 {
		desktopMinWidth = DefaultDesktopMinWidth
	}
	if width >= desktopMinWidth {
		return VariantDesktop
	}
	return VariantMobile
}

// ViewportWidth reads the viewport width from client hints, falling back to
// the vw query parameter. It returns 0 when the width is unknown.
func ViewportWidth(r *http.Request) int {
	candidates := []string{
		r.Header.Get(HeaderViewportWidth),
		r.Header.Get(HeaderViewportWidthLegacy),
		r.URL.Query().Get(QueryViewportWidth),
	}
	for _, raw := range candidates {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		width, err := strconv.ParseFloat(raw, 64)
		if err != nil || width <= 0 {
			continue
		}
		return int(width)
	}
	return 0
}
