package audit

import (
	"regexp"
	"strings"
)

// RedactedValue replaces the value of any sensitive metadata entry.
const RedactedValue = "[REDACTED]"

var defaultSensitiveKeys = []string{"password", "token", "secret"}

// embeddedJWT matches a compact JWS anywhere in a string, including inside
// "Bearer ..." headers and error text.
var embeddedJWT = regexp.MustCompile(`eyJ[\w-]+\.[\w-]+\.[\w-]*`)

// redactor masks metadata by case-insensitive key substring. Free text, in
// metadata values and in the event error, is scanned for key=value or key: value
// pairs naming a sensitive key and for embedded JWTs.
type redactor struct {
	keys  []string
	pairs *regexp.Regexp
}

func newRedactor(extra ...string) redactor {
	keys := make([]string, 0, len(defaultSensitiveKeys)+len(extra))
	keys = append(keys, defaultSensitiveKeys...)
	for _, k := range extra {
		if k = strings.ToLower(strings.TrimSpace(k)); k != "" {
			keys = append(keys, k)
		}
	}
	quoted := make([]string, len(keys))
	for i, k := range keys {
		quoted[i] = regexp.QuoteMeta(k)
	}
	pairs := regexp.MustCompile(`(?i)([\w-]*(?:` + strings.Join(quoted, "|") + `)[\w-]*)(\s*[=:]\s*)("[^"]*"|'[^']*'|[^\s,;&]+)`)
	return redactor{keys: keys, pairs: pairs}
}

func (r redactor) redact(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		if r.sensitiveKey(k) || looksLikeJWT(v) {
			out[k] = RedactedValue
			continue
		}
		out[k] = r.scrub(v)
	}
	return out
}

// scrub masks sensitive pairs and embedded JWTs inside free text.
func (r redactor) scrub(text string) string {
	if text == "" {
		return text
	}
	text = embeddedJWT.ReplaceAllString(text, RedactedValue)
	if r.pairs != nil {
		text = r.pairs.ReplaceAllString(text, "${1}${2}"+RedactedValue)
	}
	return text
}

func (r redactor) sensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, k := range r.keys {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}

func looksLikeJWT(v string) bool {
	return strings.HasPrefix(v, "eyJ") && strings.Count(v, ".") == 2
}
