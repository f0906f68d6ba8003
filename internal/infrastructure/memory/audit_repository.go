package memory

import (
	"context"

	"github.com/clubhub/marketplace/internal/domain/audit"
)

// AuditRepository implements audit.Repository.
type AuditRepository struct {
	s *Store
}

func (r *AuditRepository) Create(ctx context.Context, log *audit.AuditLog) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	log.ID = r.s.nextID()
	cp := *log
	r.s.audits = append(r.s.audits, &cp)
	return nil
}

func (r *AuditRepository) GetByEntityID(ctx context.Context, entityType audit.EntityType, entityID string) ([]*audit.AuditLog, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	out := []*audit.AuditLog{}
	for _, l := range r.s.audits {
		if l.EntityType == entityType && l.EntityID == entityID {
			cp := *l
			out = append(out, &cp)
		}
	}
	return out, nil
}
