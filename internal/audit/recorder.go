package audit

import (
	"context"
	"io"
	"log/slog"
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"sharedauth/internal/auth/models"
	"sharedauth/internal/platform/metrics"
	"sharedauth/internal/platform/privacy"
)

// Sink persists or forwards audit events.
type Sink interface {
	Append(ctx context.Context, event Event) error
}

type queued struct {
	ctx   context.Context
	event Event
}

// Recorder captures auth audit events and keeps per-application counters.
// Log never returns an error: sink failures are counted and self-logged once.
type Recorder struct {
	sink     Sink
	logger   *slog.Logger
	metrics  *metrics.Metrics
	redactor redactor
	now      func() time.Time

	events chan queued
	wg     sync.WaitGroup
	async  bool
	// closeMu guards closed so Log never sends on a closed channel.
	closeMu sync.RWMutex
	closed  bool

	idMu    sync.Mutex
	entropy io.Reader

	countersMu sync.Mutex
	counters   map[models.AppType]*Counters

	sinkFailure sync.Once
}

type Option func(*Recorder)

func WithLogger(logger *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Recorder) {
		r.metrics = m
	}
}

// WithClock overrides time.Now for event timestamps.
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) {
		r.now = now
	}
}

// WithAsyncBuffer hands events to a background goroutine through a buffer of
// the given size. When the buffer is full the event is dropped with a warning.
func WithAsyncBuffer(size int) Option {
	return func(r *Recorder) {
		if size > 0 {
			r.events = make(chan queued, size)
			r.async = true
		}
	}
}

// WithRedactedKeys adds metadata key fragments to the default
// password/token/secret set.
func WithRedactedKeys(keys ...string) Option {
	return func(r *Recorder) {
		r.redactor = newRedactor(keys...)
	}
}

func NewRecorder(sink Sink, opts ...Option) *Recorder {
	r := &Recorder{
		sink:     sink,
		redactor: newRedactor(),
		now:      time.Now,
		counters: make(map[models.AppType]*Counters),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.sink == nil {
		r.sink = NewLogSink(r.logger)
	}
	r.entropy = ulid.Monotonic(mathrand.New(mathrand.NewSource(r.now().UnixNano())), 0)
	if r.async {
		r.wg.Add(1)
		go r.processEvents()
	}
	return r
}

// Log records event. Missing ids and timestamps are filled in, metadata is
// redacted and client IPs are truncated before anything leaves the process.
func (r *Recorder) Log(ctx context.Context, event Event) {
	if r == nil {
		return
	}
	if !event.Type.IsValid() {
		r.logger.WarnContext(ctx, "audit event with unknown type ignored", "type", string(event.Type))
		return
	}
	event = r.prepare(event)
	r.count(event)
	r.metrics.IncrementAuditEvent(string(event.Type))

	if r.async {
		r.enqueue(ctx, event)
		return
	}
	r.append(ctx, event)
}

func (r *Recorder) enqueue(ctx context.Context, event Event) {
	r.closeMu.RLock()
	defer r.closeMu.RUnlock()
	if r.closed {
		r.metrics.IncrementAuditDropped()
		r.logger.WarnContext(ctx, "audit recorder closed, event dropped",
			"type", string(event.Type),
			"user_id", event.UserID,
		)
		return
	}
	select {
	case r.events <- queued{ctx: context.WithoutCancel(ctx), event: event}:
	default:
		r.metrics.IncrementAuditDropped()
		r.logger.WarnContext(ctx, "audit buffer full, event dropped",
			"type", string(event.Type),
			"user_id", event.UserID,
		)
	}
}

func (r *Recorder) prepare(event Event) Event {
	if event.Timestamp.IsZero() {
		event.Timestamp = r.now()
	}
	if event.ID == "" {
		event.ID = r.newID(event.Timestamp)
	}
	if event.IP != "" {
		event.IP = privacy.AnonymizeIP(event.IP)
	}
	event.Error = r.redactor.scrub(event.Error)
	event.Metadata = r.redactor.redact(event.Metadata)
	if device := deviceMetadata(event.UserAgent); device != nil {
		if event.Metadata == nil {
			event.Metadata = make(map[string]string, len(device))
		}
		for k, v := range device {
			if _, ok := event.Metadata[k]; !ok {
				event.Metadata[k] = v
			}
		}
	}
	return event
}

func (r *Recorder) newID(ts time.Time) string {
	r.idMu.Lock()
	defer r.idMu.Unlock()
	id, err := ulid.New(ulid.Timestamp(ts), r.entropy)
	if err != nil {
		// monotonic entropy overflowed within one millisecond
		return ulid.Make().String()
	}
	return id.String()
}

func (r *Recorder) append(ctx context.Context, event Event) {
	if err := r.sink.Append(ctx, event); err != nil {
		r.metrics.IncrementAuditSinkFailure()
		r.sinkFailure.Do(func() {
			r.logger.ErrorContext(ctx, "audit sink failed, further failures are only counted",
				"error", err,
				"type", string(event.Type),
			)
		})
	}
}

func (r *Recorder) processEvents() {
	defer r.wg.Done()
	for q := range r.events {
		r.append(q.ctx, q.event)
	}
}

// Close stops the async worker after the buffer drains. Events logged after
// Close are dropped.
func (r *Recorder) Close() {
	if r == nil || !r.async {
		return
	}
	r.closeMu.Lock()
	if r.closed {
		r.closeMu.Unlock()
		return
	}
	r.closed = true
	close(r.events)
	r.closeMu.Unlock()
	r.wg.Wait()
}

func (r *Recorder) count(event Event) {
	if !event.AppType.IsValid() {
		return
	}
	r.countersMu.Lock()
	defer r.countersMu.Unlock()

	c := r.counters[event.AppType]
	if c == nil {
		c = &Counters{}
		r.counters[event.AppType] = c
	}
	switch event.Type {
	case EventSignIn:
		c.SignIns++
		c.ActiveSessions++
	case EventSignOut:
		c.SignOuts++
		c.ActiveSessions = max(c.ActiveSessions-1, 0)
	case EventSessionExpired:
		c.ActiveSessions = max(c.ActiveSessions-1, 0)
	case EventAuthError:
		c.Errors++
	case EventTokenRefresh:
		c.TokenRefreshes++
	case EventPermissionDenied:
		c.PermissionDenied++
	}
	c.LastActivity = event.Timestamp
}

// Metrics returns the counters for app. Unknown apps report zeroes.
func (r *Recorder) Metrics(app models.AppType) Counters {
	r.countersMu.Lock()
	defer r.countersMu.Unlock()
	if c := r.counters[app]; c != nil {
		return *c
	}
	return Counters{}
}

// AllMetrics returns the counters of every app that has recorded activity.
func (r *Recorder) AllMetrics() map[models.AppType]Counters {
	r.countersMu.Lock()
	defer r.countersMu.Unlock()
	out := make(map[models.AppType]Counters, len(r.counters))
	for app, c := range r.counters {
		out[app] = *c
	}
	return out
}
