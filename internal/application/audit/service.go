package audit

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/clubhub/marketplace/internal/domain/audit"
)

// Service records the negotiation audit trail.
type Service struct {
	repo    audit.Repository
	logger  zerolog.Logger
	signKey []byte
}

// NewService creates a new audit service. Entries are signed when signKey
// is not empty.
func NewService(repo audit.Repository, logger zerolog.Logger, signKey []byte) *Service {
	return &Service{
		repo:    repo,
		signKey: signKey,
		logger:  logger.With().Str("service", "audit").Logger(),
	}
}

// Log creates a new audit log entry asynchronously. Failures are logged
// and never reach the caller.
func (s *Service) Log(ctx context.Context, entry *audit.AuditEntry) {
	go func() {
		if err := s.LogSync(context.Background(), entry); err != nil {
			s.logger.Error().Err(err).
				Str("entity_type", string(entry.EntityType)).
				Str("entity_id", entry.EntityID).
				Str("action", string(entry.Action)).
				Msg("failed to create audit log")
		}
	}()
}

// LogSync creates a new audit log entry synchronously.
func (s *Service) LogSync(ctx context.Context, entry *audit.AuditEntry) error {
	auditLog := audit.NewAuditLog(entry)
	if len(s.signKey) > 0 {
		sig, err := audit.SignAuditLog(auditLog, s.signKey)
		if err != nil {
			return fmt.Errorf("failed to sign audit log: %w", err)
		}
		auditLog.Signature = sig
	}

	if err := s.repo.Create(ctx, auditLog); err != nil {
		return fmt.Errorf("failed to save audit log: %w", err)
	}

	s.logger.Debug().
		Str("audit_id", auditLog.AuditID.String()).
		Str("entity_type", string(auditLog.EntityType)).
		Str("entity_id", auditLog.EntityID).
		Str("action", string(auditLog.Action)).
		Str("actor", auditLog.Actor).
		Msg("audit log created")
	return nil
}

// History returns the audit trail of one entity, oldest first.
func (s *Service) History(ctx context.Context, entityType audit.EntityType, entityID string) ([]*audit.AuditLog, error) {
	logs, err := s.repo.GetByEntityID(ctx, entityType, entityID)
	if err != nil {
		s.logger.Error().Err(err).
			Str("entity_type", string(entityType)).
			Str("entity_id", entityID).
			Msg("failed to get entity history")
		return nil, fmt.Errorf("failed to get entity history: %w", err)
	}
	return logs, nil
}

// VerifyResult reports whether a stored entry still matches its signature.
type VerifyResult struct {
	AuditID  string `json:"auditId"`
	Verified bool   `json:"verified"`
	Message  string `json:"message"`
}

// Verify checks the signatures of an entity's audit trail.
func (s *Service) Verify(ctx context.Context, entityType audit.EntityType, entityID string) ([]VerifyResult, error) {
	logs, err := s.History(ctx, entityType, entityID)
	if err != nil {
		return nil, err
	}
	results := make([]VerifyResult, 0, len(logs))
	for _, l := range logs {
		res := VerifyResult{AuditID: l.AuditID.String()}
		if len(s.signKey) == 0 {
			res.Message = "signing disabled"
			results = append(results, res)
			continue
		}
		ok, err := audit.VerifyAuditLogSignature(l, s.signKey)
		if err != nil {
			return nil, fmt.Errorf("failed to verify signature: %w", err)
		}
		res.Verified = ok
		if ok {
			res.Message = "audit log integrity verified"
		} else {
			res.Message = "audit log signature mismatch"
			s.logger.Warn().Str("audit_id", res.AuditID).Msg("audit log signature verification failed")
		}
		results = append(results, res)
	}
	return results, nil
}
