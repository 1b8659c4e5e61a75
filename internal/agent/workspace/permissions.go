package workspace

import (
	"strings"

	"github.com/Drakonis96/optimAIzer-sub001/internal/errors"
)

// Permissions is the agent's capability set. Tool categories map onto the
// access bits below; categories without a bit (memory, messaging, home
// automation, undo) are always allowed. WebCredentials values are sealed at
// rest.
type Permissions struct {
	InternetAccess  bool `json:"internetAccess,omitempty"`
	HeadlessBrowser bool `json:"headlessBrowser,omitempty"`
	NotesAccess     bool `json:"notesAccess,omitempty"`
	SchedulerAccess bool `json:"schedulerAccess,omitempty"`
	CalendarAccess  bool `json:"calendarAccess,omitempty"`
	GmailAccess     bool `json:"gmailAccess,omitempty"`
	MediaAccess     bool `json:"mediaAccess,omitempty"`
	TerminalAccess  bool `json:"terminalAccess,omitempty"`
	CodeExecution   bool `json:"codeExecution,omitempty"`

	AllowedWebsites []string          `json:"allowedWebsites,omitempty"`
	WebCredentials  map[string]string `json:"webCredentials,omitempty"`
}

// categoryBits maps tool categories to their permission reader. Notes covers
// the whole keyed-CRUD family (notes, lists, expenses).
var categoryBits = map[string]func(Permissions) bool{
	"notes":     func(p Permissions) bool { return p.NotesAccess },
	"scheduler": func(p Permissions) bool { return p.SchedulerAccess },
	"internet":  func(p Permissions) bool { return p.InternetAccess },
	"calendar":  func(p Permissions) bool { return p.CalendarAccess },
	"email":     func(p Permissions) bool { return p.GmailAccess },
	"media":     func(p Permissions) bool { return p.MediaAccess },
	"terminal":  func(p Permissions) bool { return p.TerminalAccess },
	"code":      func(p Permissions) bool { return p.CodeExecution },
}

// Check gates a tool category. The signature matches
// toolregistry.PermissionFunc so it wires straight into the registry builder.
func (p Permissions) Check(category string) error {
	bit, gated := categoryBits[category]
	if !gated {
		return nil
	}
	if !bit(p) {
		return errors.NewPermissionDenied(category, "")
	}
	return nil
}

// AllowsHost reports whether a host clears the allowed-websites list. An
// empty list allows everything. Entries match the host itself and its
// subdomains; an explicit "*." prefix is accepted and means the same thing.
func (p Permissions) AllowsHost(host string) bool {
	if len(p.AllowedWebsites) == 0 {
		return true
	}
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return false
	}
	for _, entry := range p.AllowedWebsites {
		pattern := strings.ToLower(strings.TrimSpace(entry))
		pattern = strings.TrimPrefix(pattern, "*.")
		if pattern == "" {
			continue
		}
		if host == pattern || strings.HasSuffix(host, "."+pattern) {
			return true
		}
	}
	return false
}
