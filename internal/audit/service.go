package audit

import (
	"context"
	"time"

	"github.com/xpload/voicecore-ai-sub002/internal/apierr"
	"github.com/xpload/voicecore-ai-sub002/internal/domain"
	"github.com/xpload/voicecore-ai-sub002/internal/repository"
	"github.com/xpload/voicecore-ai-sub002/pkg/logger"
	"go.uber.org/zap"
)

// Service mediates every audit write and read, enforcing the
// tenant-scoping and sanitization contracts of §4.7.
type Service struct {
	repo repository.AuditRepository
	salt string
}

func NewService(repo repository.AuditRepository, identifierSalt string) *Service {
	return &Service{repo: repo, salt: identifierSalt}
}

// Record sanitizes and appends an event. actorID is hashed before
// storage; a payload that still matches a forbidden pattern after
// sanitization is rejected with apierr.Privacy and never reaches the
// store (§4.7 "hard invariant").
func (s *Service) Record(ctx context.Context, tenantID, eventType, actorID, correlationID string, payload map[string]interface{}, success bool) error {
	clean, violation := SanitizePayload(payload)
	if violation {
		logger.Base().Error("audit payload rejected for privacy violation",
			zap.String("tenant_id", tenantID), zap.String("event_type", eventType))
		return apierr.New(apierr.Privacy, "payload contains a forbidden pattern after sanitization")
	}

	event := &domain.AuditEvent{
		TenantID:      tenantID,
		EventType:     eventType,
		ActorIDHash:   HashIdentifier(s.salt, actorID),
		CorrelationID: correlationID,
		Payload:       domain.JSONB(clean),
		Success:       success,
		Timestamp:     time.Now(),
	}

	if err := s.repo.Append(ctx, event); err != nil {
		return err
	}
	return nil
}

// ListByTenant returns events scoped to a single tenant — the service
// never accepts or constructs a cross-tenant query (§4.7 "Read contract").
func (s *Service) ListByTenant(ctx context.Context, tenantID string, limit int) ([]*domain.AuditEvent, error) {
	if tenantID == "" {
		return nil, apierr.New(apierr.Validation, "tenant_id is required")
	}
	return s.repo.ListByTenant(ctx, tenantID, limit)
}
