package models

import "net/http"

// CookieNames holds the per-application cookie namespace so sessions for
// different apps sharing a parent domain don't collide.
type CookieNames struct {
	SessionToken string
	CSRFToken    string
	CallbackURL  string
}

// CookieNamesFor returns the cookie names for an application.
func CookieNamesFor(app AppType) CookieNames {
	prefix := string(app)
	return CookieNames{
		SessionToken: prefix + ".session-token",
		CSRFToken:    prefix + ".csrf-token",
		CallbackURL:  prefix + ".callback-url",
	}
}

// CookieOptions are shared by every cookie of an application.
type CookieOptions struct {
	Path     string
	Domain   string
	HTTPOnly bool
	SameSite http.SameSite
	Secure   bool
}

// DefaultCookieOptions returns httpOnly, sameSite=lax cookies, secure in production.
func DefaultCookieOptions(production bool, domain string) CookieOptions {
	return CookieOptions{
		Path:     "/",
		Domain:   domain,
		HTTPOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   production,
	}
}

// Cookie builds an http.Cookie with these options.
func (o CookieOptions) Cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     o.Path,
		Domain:   o.Domain,
		MaxAge:   maxAge,
		HttpOnly: o.HTTPOnly,
		SameSite: o.SameSite,
		Secure:   o.Secure,
	}
}
