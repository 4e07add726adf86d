// Package browser wraps Playwright sessions used to drive the chat page and
// to fetch source pages.
package browser

import (
	"time"

	"github.com/playwright-community/playwright-go"
)

// Session represents an active browser session with its associated resources.
type Session struct {
	// Name is the unique identifier for this session
	Name string

	// Browser is the Playwright browser instance. It is nil for persistent
	// sessions, which own only a context.
	Browser playwright.Browser

	// Context is the browser context
	Context playwright.BrowserContext

	// Page is the current active page
	Page playwright.Page

	// Headless indicates if the browser is running in headless mode
	Headless bool

	// CreatedAt is the timestamp when the session was created
	CreatedAt time.Time

	// LastUsedAt is the timestamp of the last operation on this session
	LastUsedAt time.Time

	// CurrentURL is the URL of the current page
	CurrentURL string
}

// SessionOptions configures a new browser session.
type SessionOptions struct {
	// Headless controls whether the browser runs without a visible window
	Headless bool

	// UserDataDir, when set, launches a persistent profile so a logged-in
	// chat session survives restarts.
	UserDataDir string

	// Viewport sets the initial viewport size
	Viewport *Viewport

	// Timeout sets the default timeout for operations (in milliseconds)
	Timeout float64
}

// Viewport represents the browser viewport dimensions.
type Viewport struct {
	Width  int
	Height int
}

// NavigateOptions configures page navigation behavior.
type NavigateOptions struct {
	// WaitUntil specifies when to consider navigation successful
	// Valid values: "load", "domcontentloaded", "networkidle"
	WaitUntil string

	// Timeout in milliseconds (0 means default)
	Timeout float64
}

// Toggle is a button that can be switched on or off, found by its label.
type Toggle struct {
	Label  string
	Active bool
}

// Default values for various operations
const (
	DefaultTimeout        = 30000.0 // 30 seconds in milliseconds
	DefaultViewportWidth  = 1280
	DefaultViewportHeight = 720
	DefaultMaxSessions    = 3
)

// ToggleButtonSelector matches elements that may be feature toggles.
const ToggleButtonSelector = `div[role="button"], button`

// ToggleSelectedClass marks an active toggle on the chat page.
const ToggleSelectedClass = "ds-toggle-button--selected"
