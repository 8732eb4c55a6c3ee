package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// AuditEventType names a security relevant event.
type AuditEventType string

const (
	AuditLoginSucceeded  AuditEventType = "login.succeeded"
	AuditLoginFailed     AuditEventType = "login.failed"
	AuditRegistered      AuditEventType = "register"
	AuditLogout          AuditEventType = "logout"
	AuditLogoutAll       AuditEventType = "logout_all"
	AuditReplayDetected  AuditEventType = "refresh.replay_detected"
	AuditSessionsRevoked AuditEventType = "sessions.revoked"
)

// AuditEvent is one entry of the authentication audit trail.
type AuditEvent struct {
	ID         uuid.UUID         `json:"id"`
	Type       AuditEventType    `json:"type"`
	UserID     uuid.UUID         `json:"user_id,omitempty"`
	Email      string            `json:"email,omitempty"`
	IP         string            `json:"ip,omitempty"`
	UserAgent  string            `json:"user_agent,omitempty"`
	Detail     map[string]string `json:"detail,omitempty"`
	OccurredAt time.Time         `json:"occurred_at"`
}

// AuditSink records audit events. Implementations must not block auth flows for long.
type AuditSink interface {
	Record(ctx context.Context, event AuditEvent) error
}
