package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dtroode/learnhub-auth/internal/logger"
	"github.com/dtroode/learnhub-auth/internal/model"
)

// LogSink writes audit events to the application log.
type LogSink struct {
	logger *logger.Logger
}

func NewLogSink(logger *logger.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Record(ctx context.Context, event model.AuditEvent) error {
	s.logger.InfoContext(ctx, "Audit: "+string(event.Type),
		"event_id", event.ID.String(),
		"user_id", event.UserID.String(),
		"email", event.Email,
		"ip", event.IP,
	)
	return nil
}

// ObjectSink archives each audit event as a JSON object.
type ObjectSink struct {
	storage model.ObjectStorage
	prefix  string
}

func NewObjectSink(storage model.ObjectStorage, prefix string) *ObjectSink {
	if prefix == "" {
		prefix = "auth-events"
	}
	return &ObjectSink{storage: storage, prefix: prefix}
}

func (s *ObjectSink) Record(ctx context.Context, event model.AuditEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode audit event: %w", err)
	}
	if err := s.storage.Upload(ctx, s.Key(event), bytes.NewReader(body), int64(len(body)), "application/json"); err != nil {
		return fmt.Errorf("failed to archive audit event: %w", err)
	}
	return nil
}

// Key is the object name for event: <prefix>/YYYY/MM/DD/<id>.json.
func (s *ObjectSink) Key(event model.AuditEvent) string {
	return fmt.Sprintf("%s/%s/%s.json", s.prefix, event.OccurredAt.UTC().Format("2006/01/02"), event.ID)
}

// MultiSink fans an event out to several sinks and joins their errors.
type MultiSink []model.AuditSink

func (m MultiSink) Record(ctx context.Context, event model.AuditEvent) error {
	var errs []error
	for _, s := range m {
		if err := s.Record(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Recorder stamps events and records them without failing the caller.
type Recorder struct {
	sink    model.AuditSink
	logger  *logger.Logger
	timeout time.Duration
	now     func() time.Time
}

// NewRecorder wraps sink. A nil sink turns recording into a no-op.
func NewRecorder(sink model.AuditSink, logger *logger.Logger, timeout time.Duration) *Recorder {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Recorder{sink: sink, logger: logger, timeout: timeout, now: time.Now}
}

// Record fills ID and OccurredAt, then hands event to the sink. Sink errors
// are logged only; auditing never changes the outcome of an auth operation.
func (r *Recorder) Record(ctx context.Context, event model.AuditEvent) {
	if r == nil || r.sink == nil {
		return
	}
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = r.now()
	}
	if meta, ok := RequestMetaFromContext(ctx); ok {
		if event.IP == "" {
			event.IP = meta.IP
		}
		if event.UserAgent == "" {
			event.UserAgent = meta.UserAgent
		}
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.timeout)
	defer cancel()

	if err := r.sink.Record(ctx, event); err != nil {
		r.logger.Warn("Audit: failed to record event", "type", string(event.Type), "error", err.Error())
	}
}

// RequestMeta describes the client that triggered an event.
type RequestMeta struct {
	IP        string
	UserAgent string
}

type requestMetaKey struct{}

// WithRequestMeta attaches client information for later audit events.
func WithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, requestMetaKey{}, meta)
}

func RequestMetaFromContext(ctx context.Context) (RequestMeta, bool) {
	meta, ok := ctx.Value(requestMetaKey{}).(RequestMeta)
	return meta, ok
}
