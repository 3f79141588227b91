// Package audit records security-relevant events of the access gate.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"hrportal/internal/platform/requestctx"
)

const (
	ActionLogin        = "auth.login"
	ActionLoginFailed  = "auth.login_failed"
	ActionLogout       = "auth.logout"
	ActionAccessDenied = "access.denied"
)

type Event struct {
	ID        string          `json:"id,omitempty"`
	ActorID   string          `json:"actorId"`
	Action    string          `json:"action"`
	Subject   string          `json:"subject"`
	RequestID string          `json:"requestId"`
	IP        string          `json:"ip"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

type Filter struct {
	Action  string
	ActorID string
}

type Recorder interface {
	Record(ctx context.Context, evt Event) error
}

// NewEvent fills request id, client ip and time from ctx. details may be nil.
func NewEvent(ctx context.Context, action, actorID, subject string, details any) Event {
	evt := Event{
		ActorID:   actorID,
		Action:    action,
		Subject:   subject,
		RequestID: requestctx.GetRequestID(ctx),
		IP:        requestctx.GetClientIP(ctx),
		CreatedAt: time.Now().UTC(),
	}
	if details != nil {
		if payload, err := json.Marshal(details); err == nil {
			evt.Details = payload
		} else {
			slog.Warn("audit details marshal failed", "action", action, "err", err)
		}
	}
	return evt
}

// Emit records evt and only logs failures; auditing never blocks the caller.
func Emit(ctx context.Context, rec Recorder, evt Event) {
	if rec == nil {
		return
	}
	if err := rec.Record(ctx, evt); err != nil {
		slog.Warn("audit record failed", "action", evt.Action, "requestId", evt.RequestID, "err", err)
	}
}

// LogRecorder writes events to a structured logger.
type LogRecorder struct {
	Logger *slog.Logger
}

func NewLogRecorder(logger *slog.Logger) *LogRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogRecorder{Logger: logger}
}

func (l *LogRecorder) Record(ctx context.Context, evt Event) error {
	l.Logger.LogAttrs(ctx, slog.LevelInfo, "audit",
		slog.String("action", evt.Action),
		slog.String("actorId", evt.ActorID),
		slog.String("subject", evt.Subject),
		slog.String("requestId", evt.RequestID),
		slog.String("ip", evt.IP),
		slog.String("details", string(evt.Details)),
	)
	return nil
}
