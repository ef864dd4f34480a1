package service

import (
	"context"
	"time"

	"exchange-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type auditService struct {
	repo ports.AuditRepository
	log  zerolog.Logger
}

// NewAuditService creates a new audit sink.
// If repo is nil, audit events are only written to the logger.
func NewAuditService(repo ports.AuditRepository, log zerolog.Logger) ports.AuditSink {
	return &auditService{repo: repo, log: log}
}

// Emit records an audit event asynchronously (fire-and-forget).
func (s *auditService) Emit(ctx context.Context, event *ports.AuditEvent) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	go func() {
		s.log.Info().
			Str("action", event.Action).
			Str("resource_type", event.ResourceType).
			Str("resource_id", event.ResourceID).
			Str("ip", event.IPAddress).
			Msg("audit")

		if s.repo != nil {
			if err := s.repo.Create(context.Background(), event); err != nil {
				s.log.Warn().Err(err).Str("action", event.Action).Msg("failed to persist audit event")
			}
		}
	}()
}
