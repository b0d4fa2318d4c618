package audit

import (
	"strings"

	"github.com/mssola/useragent"
)

// deviceMetadata extracts coarse browser and platform details from a
// User-Agent string. It never returns the raw header.
func deviceMetadata(ua string) map[string]string {
	if strings.TrimSpace(ua) == "" {
		return nil
	}
	parsed := useragent.New(ua)
	browser, version := parsed.Browser()
	if browser == "" {
		browser = "unknown"
	}
	major, _, _ := strings.Cut(version, ".")
	os := parsed.OS()
	if os == "" {
		os = "unknown"
	}
	platform := "desktop"
	switch {
	case parsed.Bot():
		platform = "bot"
	case parsed.Mobile():
		platform = "mobile"
	}
	out := map[string]string{
		"browser":  strings.ToLower(browser),
		"os":       os,
		"platform": platform,
	}
	if major != "" {
		out["browser_major"] = major
	}
	return out
}
