package services

import "context"

// AuditSink receives one structured entry per state change. Implementations
// must scrub PII before emitting.
type AuditSink interface {
	Record(ctx context.Context, action string, fields ...any)
}

type NopAudit struct{}

func (NopAudit) Record(context.Context, string, ...any) {}
