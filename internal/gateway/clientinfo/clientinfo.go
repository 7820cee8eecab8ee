// Package clientinfo renders User-Agent headers into short client
// descriptions for the verification audit trail.
package clientinfo

import (
	"strings"

	"github.com/mssola/useragent"
)

// Describe summarizes a raw User-Agent value as "<browser> on <platform>".
// Unparseable agents still yield a non-empty description, so audit entries
// never carry raw header text.
func Describe(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return "Unknown Device"
	}
	ua := useragent.New(raw)

	browser, _ := ua.Browser()
	if browser == "" {
		browser = "Unknown Browser"
	}

	platform := ua.OSInfo().Name
	if ua.Mobile() && ua.Platform() != "" {
		platform = ua.Platform()
	}
	if platform == "" {
		platform = "Unknown OS"
	}

	desc := browser + " on " + platform
	if ua.Bot() {
		desc += " (bot)"
	}
	return strings.Join(strings.Fields(desc), " ")
}
