package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"sharedauth/internal/auth/models"
	"sharedauth/internal/platform/metrics"
	"sharedauth/internal/platform/tracer"
	"sharedauth/pkg/platform/circuit"
)

const (
	refreshPath  = "/auth/refresh"
	validatePath = "/auth/validate"

	defaultTimeout = 5 * time.Second
	maxBodyBytes   = 1 << 20
)

// HTTPDoer is the minimal interface needed from an HTTP client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RefreshResult is a successful /auth/refresh response. RefreshToken is nil
// when the provider did not rotate it.
type RefreshResult struct {
	AccessToken  string
	RefreshToken *string
	ExpiresIn    time.Duration
}

// RemoteUser is the user record /auth/validate may return.
type RemoteUser struct {
	ID          string   `json:"id"`
	Email       string   `json:"email"`
	Name        string   `json:"name,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// ValidateResult is a successful /auth/validate response.
type ValidateResult struct {
	Valid bool
	User  *RemoteUser
}

// Client calls the Identity Provider token endpoints. Every call runs under
// its own timeout; refreshes are rate limited and every call passes the breaker.
type Client struct {
	baseURL string
	http    HTTPDoer
	timeout time.Duration
	limiter *rate.Limiter
	breaker *circuit.Breaker
	tracer  tracer.Tracer
	metrics *metrics.Metrics
	logger  *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		c.http = doer
	}
}

// WithTimeout bounds every call. Non-positive values keep the 5s default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithRefreshRate limits outbound refreshes to perSecond with the given burst.
func WithRefreshRate(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), max(burst, 1))
		}
	}
}

func WithBreaker(b *circuit.Breaker) Option {
	return func(c *Client) {
		c.breaker = b
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(c *Client) {
		c.tracer = t
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New builds a client for the provider at baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		timeout: defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: c.timeout}
	}
	if c.breaker == nil {
		c.breaker = circuit.New("identity_provider")
	}
	if c.tracer == nil {
		c.tracer = tracer.Noop{}
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}
	return c
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type refreshResponse struct {
	AccessToken  string  `json:"accessToken"`
	RefreshToken *string `json:"refreshToken"`
	ExpiresIn    float64 `json:"expiresIn"`
}

// Refresh exchanges a refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*RefreshResult, error) {
	ctx, span := c.tracer.Start(ctx, "provider.refresh",
		tracer.String("refresh_token.fp", tracer.Fingerprint(refreshToken)),
	)

	var body refreshResponse
	err := c.call(ctx, refreshPath, "", refreshRequest{RefreshToken: refreshToken}, &body, c.limiter)
	if err == nil && (body.AccessToken == "" || body.ExpiresIn <= 0) {
		err = &Error{Kind: ErrorBadResponse, Endpoint: refreshPath, Message: "missing accessToken or expiresIn"}
	}
	span.End(err)
	if err != nil {
		return nil, err
	}

	result := &RefreshResult{
		AccessToken: body.AccessToken,
		ExpiresIn:   time.Duration(body.ExpiresIn * float64(time.Second)),
	}
	if body.RefreshToken != nil && *body.RefreshToken != "" {
		result.RefreshToken = body.RefreshToken
	}
	return result, nil
}

type validateRequest struct {
	App string `json:"app"`
}

type validateResponse struct {
	Valid *bool       `json:"valid"`
	User  *RemoteUser `json:"user"`
}

// Validate asks the provider whether accessToken is still good for app.
func (c *Client) Validate(ctx context.Context, accessToken string, app models.AppType) (*ValidateResult, error) {
	ctx, span := c.tracer.Start(ctx, "provider.validate", tracer.String("app_type", string(app)))

	var body validateResponse
	err := c.call(ctx, validatePath, accessToken, validateRequest{App: string(app)}, &body, nil)
	if err == nil && body.Valid == nil {
		err = &Error{Kind: ErrorBadResponse, Endpoint: validatePath, Message: "missing valid field"}
	}
	span.End(err)
	if err != nil {
		return nil, err
	}
	return &ValidateResult{Valid: *body.Valid, User: body.User}, nil
}

func (c *Client) call(ctx context.Context, path, bearer string, in, out any, limiter *rate.Limiter) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(KindOf(err))
		}
		c.metrics.ObserveProviderCall(path, outcome, time.Since(start))
	}()

	if !c.breaker.Allow() {
		return &Error{Kind: ErrorNetwork, Endpoint: path, Message: "circuit open"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if limiter != nil {
		if werr := limiter.Wait(ctx); werr != nil {
			return &Error{Kind: ErrorTimeout, Endpoint: path, Message: "rate limit wait", Err: werr}
		}
	}

	err = c.do(ctx, path, bearer, in, out)
	if err != nil && KindOf(err).trips() {
		if change := c.breaker.RecordFailure(); change.Opened {
			c.logger.WarnContext(ctx, "identity provider circuit opened", "endpoint", path, "error", err)
		}
		return err
	}
	if change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "identity provider circuit closed", "endpoint", path)
	}
	return err
}

func (c *Client) do(ctx context.Context, path, bearer string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return &Error{Kind: ErrorBadResponse, Endpoint: path, Message: "encode request", Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return &Error{Kind: ErrorNetwork, Endpoint: path, Message: "build request", Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return &Error{Kind: ErrorTimeout, Endpoint: path, Message: "request timeout", Err: err}
		}
		return &Error{Kind: ErrorNetwork, Endpoint: path, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctx.Err() != nil {
			return &Error{Kind: ErrorTimeout, Endpoint: path, Status: resp.StatusCode, Message: "read timeout", Err: err}
		}
		return &Error{Kind: ErrorNetwork, Endpoint: path, Status: resp.StatusCode, Message: "read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return classifyStatus(path, resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &Error{Kind: ErrorBadResponse, Endpoint: path, Status: resp.StatusCode, Message: "decode response", Err: err}
	}
	return nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}

// errorBody covers the common error envelopes: {"message": "..."},
// {"message": ["..."]}, {"error": "...", "code": "..."}.
type errorBody struct {
	Message json.RawMessage `json:"message"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func (b errorBody) text() string {
	var parts []string
	var single string
	var many []string
	if json.Unmarshal(b.Message, &single) == nil && single != "" {
		parts = append(parts, single)
	} else if json.Unmarshal(b.Message, &many) == nil {
		parts = append(parts, many...)
	}
	if b.Error != "" {
		parts = append(parts, b.Error)
	}
	if b.Code != "" {
		parts = append(parts, b.Code)
	}
	return strings.Join(parts, "; ")
}

var reuseMarkers = []string{"reuse", "already used", "already been used", "rotated", "token_reused"}

func classifyStatus(path string, status int, raw []byte) error {
	var body errorBody
	_ = json.Unmarshal(raw, &body)
	msg := body.text()

	switch {
	case status >= 500:
		return &Error{Kind: ErrorServer, Endpoint: path, Status: status, Message: msg}
	case (status == http.StatusUnauthorized || status == http.StatusConflict) && mentionsReuse(msg):
		return &Error{Kind: ErrorReused, Endpoint: path, Status: status, Message: msg}
	case status >= 400:
		return &Error{Kind: ErrorRejected, Endpoint: path, Status: status, Message: msg}
	default:
		return &Error{Kind: ErrorBadResponse, Endpoint: path, Status: status, Message: fmt.Sprintf("unexpected status %d", status)}
	}
}

func mentionsReuse(msg string) bool {
	lower := strings.ToLower(msg)
	for _, m := range reuseMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}
