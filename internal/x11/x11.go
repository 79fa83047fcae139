// Package x11 prepares a replayed run's environment for an X display.
package x11

import (
	"encoding/hex"
	"fmt"
	"maps"
)

const (
	// DefaultDisplay is used when no display number is given.
	DefaultDisplay = 15

	// AuthorityPath is where the cookie is written inside the root.
	AuthorityPath = "/tmp/.reprobox_xauthority"

	cookieProtocol = "MIT-MAGIC-COOKIE-1"
)

// Handler adjusts run environments and emits the commands that must run
// before the replayed programs. A disabled Handler changes nothing.
type Handler struct {
	Enabled bool
	Display int

	// Cookie is the hex MIT-MAGIC-COOKIE-1 for the display, if known.
	Cookie string
}

// NewHandler returns a handler for display, or DefaultDisplay when display
// is nil. A non-empty cookie must be hex encoded.
func NewHandler(enabled bool, display *int, cookie string) (*Handler, error) {
	h := &Handler{Enabled: enabled, Display: DefaultDisplay, Cookie: cookie}
	if display != nil {
		if *display < 0 {
			return nil, fmt.Errorf("invalid X11 display number %d", *display)
		}
		h.Display = *display
	}
	if cookie != "" {
		if _, err := hex.DecodeString(cookie); err != nil {
			return nil, fmt.Errorf("invalid X11 cookie: %w", err)
		}
	}
	return h, nil
}

// DisplayName is the DISPLAY value runs see.
func (h *Handler) DisplayName() string {
	return fmt.Sprintf(":%d", h.Display)
}

// FixEnv returns a copy of env with the display variables set.
func (h *Handler) FixEnv(env map[string]string) map[string]string {
	out := maps.Clone(env)
	if out == nil {
		out = make(map[string]string)
	}
	if !h.Enabled {
		return out
	}
	out["DISPLAY"] = h.DisplayName()
	if h.Cookie != "" {
		out["XAUTHORITY"] = AuthorityPath
	} else {
		delete(out, "XAUTHORITY")
	}
	return out
}

// InitCommands lists shell commands to run, in order, before the runs.
func (h *Handler) InitCommands() []string {
	if !h.Enabled || h.Cookie == "" {
		return nil
	}
	return []string{
		fmt.Sprintf("xauth -f %s add %s %s %s", AuthorityPath, h.DisplayName(), cookieProtocol, h.Cookie),
	}
}
