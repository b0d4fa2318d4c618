// Package tokencodec turns an EnrichedToken into the value stored in the
// session cookie and back.
//
// The claims are signed as an HS256 JWT whose audience is the token's app, and
// the JWT is then sealed with XChaCha20-Poly1305 using the app as associated
// data. The browser only ever sees ciphertext, and a cookie minted for one app
// does not open for another. Signing and encryption keys are derived from the
// configured secret with HKDF.
package tokencodec

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"maps"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"

	"sharedauth/internal/auth/models"
	dErrors "sharedauth/pkg/domain-errors"
)

const (
	defaultIssuer = "shared-auth"
	defaultMaxAge = 30 * 24 * time.Hour

	signingKeyInfo    = "shared-auth cookie signing v1"
	encryptionKeyInfo = "shared-auth cookie encryption v1"
)

// Claims is the cookie payload. The subject is the user id, the JWT id is the
// session id and the audience is the app the cookie belongs to.
type Claims struct {
	Email         string            `json:"email,omitempty"`
	Name          string            `json:"name,omitempty"`
	AccessToken   string            `json:"accessToken,omitempty"`
	AccessExpires *int64            `json:"accessTokenExpires,omitempty"`
	RefreshToken  *string           `json:"refreshToken,omitempty"`
	Roles         []string          `json:"roles,omitempty"`
	RoleSource    models.RoleSource `json:"roleSource,omitempty"`
	Permissions   []string          `json:"permissions,omitempty"`
	AppType       models.AppType    `json:"appType,omitempty"`
	Role          string            `json:"role,omitempty"`
	IsActive      bool              `json:"isActive"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	LastRefreshAt *int64            `json:"lastRefreshAt,omitempty"`
	Error         models.ErrorKind  `json:"error,omitempty"`
	jwt.RegisteredClaims
}

// Codec seals and opens cookie values. It is safe for concurrent use.
type Codec struct {
	signingKey []byte
	aead       cipher.AEAD
	issuer     string
	maxAge     time.Duration
	now        func() time.Time
	parsers    map[models.AppType]*jwt.Parser
}

type Option func(*Codec)

func WithIssuer(issuer string) Option {
	return func(c *Codec) {
		c.issuer = issuer
	}
}

// WithMaxAge bounds how long an encoded cookie stays valid.
func WithMaxAge(d time.Duration) Option {
	return func(c *Codec) {
		if d > 0 {
			c.maxAge = d
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		c.now = now
	}
}

func New(secret string, opts ...Option) (*Codec, error) {
	if secret == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "signing secret is required")
	}
	signingKey, err := deriveKey(secret, signingKeyInfo, 32)
	if err != nil {
		return nil, err
	}
	encKey, err := deriveKey(secret, encryptionKeyInfo, chacha20poly1305.KeySize)
	if err != nil {
		return nil, err
	}
	aead, err := chacha20poly1305.NewX(encKey)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to init cookie cipher")
	}

	c := &Codec{
		signingKey: signingKey,
		aead:       aead,
		issuer:     defaultIssuer,
		maxAge:     defaultMaxAge,
		now:        time.Now,
		parsers:    make(map[models.AppType]*jwt.Parser, len(models.AppTypes)),
	}
	for _, opt := range opts {
		opt(c)
	}
	for _, app := range models.AppTypes {
		c.parsers[app] = jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(c.issuer),
			jwt.WithAudience(string(app)),
			jwt.WithIssuedAt(),
			jwt.WithTimeFunc(c.now),
		)
	}
	return c, nil
}

func deriveKey(secret, info string, size int) ([]byte, error) {
	key := make([]byte, size)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(info)), key); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to derive cookie key")
	}
	return key, nil
}

func (c *Codec) MaxAge() time.Duration {
	return c.maxAge
}

// Encode signs and seals tok for its app. The cookie expires maxAge after now
// regardless of the access token's own expiry.
func (c *Codec) Encode(tok *models.EnrichedToken) (string, error) {
	if tok == nil || tok.SubjectID == "" {
		return "", dErrors.New(dErrors.CodeMissingSessionOrToken, "token with a subject is required")
	}
	if !tok.AppType.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "token has no app type")
	}
	now := c.now()
	issued := tok.IssuedAt
	if issued.IsZero() || issued.After(now) {
		issued = now
	}
	claims := Claims{
		Email:        tok.Email,
		Name:         tok.DisplayName,
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		Roles:        tok.Roles,
		RoleSource:   tok.RoleSource,
		Permissions:  tok.Permissions,
		AppType:      tok.AppType,
		Role:         tok.LegacyRole,
		IsActive:     tok.IsActive,
		Metadata:     tok.Metadata,
		Error:        tok.Error,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   tok.SubjectID,
			ID:        tok.SessionID,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{string(tok.AppType)},
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.maxAge)),
		},
	}
	if tok.AccessTokenExpiresAt != nil {
		ms := tok.AccessTokenExpiresAt.UnixMilli()
		claims.AccessExpires = &ms
	}
	if !tok.LastRefreshAt.IsZero() {
		ms := tok.LastRefreshAt.UnixMilli()
		claims.LastRefreshAt = &ms
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to sign session cookie")
	}

	nonce := make([]byte, c.aead.NonceSize(), c.aead.NonceSize()+len(signed)+c.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to seal session cookie")
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(signed), []byte(tok.AppType))
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decode opens raw as a cookie of app and rebuilds the token. An expired
// cookie yields CodeSessionExpired; anything else unreadable, including a
// cookie sealed for another app, yields CodeMissingSessionOrToken.
func (c *Codec) Decode(raw string, app models.AppType) (*models.EnrichedToken, error) {
	if raw == "" {
		return nil, dErrors.New(dErrors.CodeMissingSessionOrToken, "empty session cookie")
	}
	parser, ok := c.parsers[app]
	if !ok {
		return nil, dErrors.New(dErrors.CodeMissingSessionOrToken, "unknown app type: "+string(app))
	}
	signed, err := c.open(raw, app)
	if err != nil {
		return nil, err
	}

	claims := new(Claims)
	parsed, err := parser.ParseWithClaims(signed, claims, func(*jwt.Token) (any, error) {
		return c.signingKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeSessionExpired, "session cookie expired")
		}
		return nil, dErrors.New(dErrors.CodeMissingSessionOrToken, "invalid session cookie")
	}
	if !parsed.Valid || claims.Subject == "" || claims.AppType != app {
		return nil, dErrors.New(dErrors.CodeMissingSessionOrToken, "invalid session cookie")
	}

	tok := &models.EnrichedToken{
		SubjectID:    claims.Subject,
		Email:        claims.Email,
		DisplayName:  claims.Name,
		SessionID:    claims.ID,
		AccessToken:  claims.AccessToken,
		RefreshToken: claims.RefreshToken,
		Roles:        slices.Clone(claims.Roles),
		RoleSource:   claims.RoleSource,
		Permissions:  slices.Clone(claims.Permissions),
		AppType:      claims.AppType,
		Metadata:     maps.Clone(claims.Metadata),
		IsActive:     claims.IsActive,
		LegacyRole:   claims.Role,
		Error:        claims.Error,
	}
	if claims.IssuedAt != nil {
		tok.IssuedAt = claims.IssuedAt.Time
	}
	if claims.AccessExpires != nil {
		exp := time.UnixMilli(*claims.AccessExpires)
		tok.AccessTokenExpiresAt = &exp
	}
	if claims.LastRefreshAt != nil {
		tok.LastRefreshAt = time.UnixMilli(*claims.LastRefreshAt)
	}
	return tok, nil
}

func (c *Codec) open(raw string, app models.AppType) (string, error) {
	sealed, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil || len(sealed) < c.aead.NonceSize()+c.aead.Overhead() {
		return "", dErrors.New(dErrors.CodeMissingSessionOrToken, "invalid session cookie")
	}
	nonce, ciphertext := sealed[:c.aead.NonceSize()], sealed[c.aead.NonceSize():]
	plain, err := c.aead.Open(nil, nonce, ciphertext, []byte(app))
	if err != nil {
		return "", dErrors.New(dErrors.CodeMissingSessionOrToken, "invalid session cookie")
	}
	return string(plain), nil
}
