package service

import "sharedauth/internal/auth/models"

// sharedCookieNames is the namespace every app shares when per-app cookies are off.
var sharedCookieNames = models.CookieNames{
	SessionToken: "session-token",
	CSRFToken:    "csrf-token",
	CallbackURL:  "callback-url",
}

// CookieConfig describes the cookies this application reads and writes.
type CookieConfig struct {
	Names   models.CookieNames
	Options models.CookieOptions
	// PerApp is true when names are namespaced by application.
	PerApp bool
}

// CookieConfig returns per-app cookie names and hardened options when the
// secure_cookies flag is on, and the shared names otherwise.
func (s *Service) CookieConfig() CookieConfig {
	opts := models.DefaultCookieOptions(s.cfg.Production, s.cfg.CookieDomain)
	if !s.flags.For(s.evalContext("")).ShouldUseSecureCookies() {
		return CookieConfig{Names: sharedCookieNames, Options: opts}
	}
	return CookieConfig{Names: models.CookieNamesFor(s.cfg.App), Options: opts, PerApp: true}
}
