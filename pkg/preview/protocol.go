// Package preview prints rendered banners inline in a terminal. It picks a
// graphics protocol from the environment, scales the frame to the cell
// area and encodes it as escape sequences.
package preview

import (
	"os"
	"strings"
)

// Protocol identifies which image rendering protocol to use.
type Protocol int

const (
	ProtocolNone       Protocol = iota // No graphics support
	ProtocolKitty                      // Kitty graphics protocol (Ghostty, Kitty, WezTerm)
	ProtocolITerm2                     // iTerm2 inline images protocol
	ProtocolSixel                      // Sixel graphics protocol
	ProtocolHalfblocks                 // Unicode half-block characters with ANSI color
)

var protocolNames = [...]string{
	ProtocolNone:       "none",
	ProtocolKitty:      "kitty",
	ProtocolITerm2:     "iterm2",
	ProtocolSixel:      "sixel",
	ProtocolHalfblocks: "halfblocks",
}

func (p Protocol) String() string {
	if int(p) < len(protocolNames) {
		return protocolNames[p]
	}
	return "unknown"
}

// Detect returns the best protocol for the terminal named by the
// environment. SSH sessions fall back to halfblocks, since image protocols
// are unreliable through most forwarding setups.
func Detect() Protocol {
	if isSSH() {
		return ProtocolHalfblocks
	}
	switch strings.ToLower(os.Getenv("TERM_PROGRAM")) {
	case "ghostty", "kitty", "wezterm":
		return ProtocolKitty
	case "iterm.app":
		return ProtocolITerm2
	}
	switch os.Getenv("TERM") {
	case "xterm-ghostty", "xterm-kitty":
		return ProtocolKitty
	}
	if os.Getenv("KITTY_WINDOW_ID") != "" || os.Getenv("WEZTERM_EXECUTABLE") != "" {
		return ProtocolKitty
	}
	if os.Getenv("ITERM_SESSION_ID") != "" || os.Getenv("LC_TERMINAL") == "iTerm2" {
		return ProtocolITerm2
	}
	return ProtocolHalfblocks
}

// Select resolves a configured protocol name. Empty and "auto" detect
// from the environment, as does any name that is not recognized.
func Select(override string) Protocol {
	switch strings.ToLower(override) {
	case "kitty":
		return ProtocolKitty
	case "iterm2":
		return ProtocolITerm2
	case "sixel":
		return ProtocolSixel
	case "halfblocks", "unicode", "half-blocks":
		return ProtocolHalfblocks
	case "none", "off", "disabled":
		return ProtocolNone
	default:
		return Detect()
	}
}

func isSSH() bool {
	return os.Getenv("SSH_TTY") != "" ||
		os.Getenv("SSH_CONNECTION") != "" ||
		os.Getenv("SSH_CLIENT") != ""
}
