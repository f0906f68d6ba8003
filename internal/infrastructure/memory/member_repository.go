package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/clubhub/marketplace/internal/domain/apperr"
	"github.com/clubhub/marketplace/internal/domain/member"
)

// MemberRepository implements member.Repository.
type MemberRepository struct {
	s *Store
}

func (r *MemberRepository) Create(ctx context.Context, m *member.Member) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.members {
		if existing.Username == m.Username {
			return apperr.Conflict("username %q is taken", m.Username)
		}
		if existing.ShortID == m.ShortID {
			return apperr.Conflict("short id %q is taken", m.ShortID)
		}
	}
	m.ID = r.s.nextID()
	cp := *m
	r.s.members[m.MemberID] = &cp
	return nil
}

func (r *MemberRepository) Update(ctx context.Context, m *member.Member) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.members[m.MemberID]; !ok {
		return apperr.NotFound("member %s not found", m.MemberID)
	}
	cp := *m
	r.s.members[m.MemberID] = &cp
	return nil
}

func (r *MemberRepository) GetByID(ctx context.Context, memberID uuid.UUID) (*member.Member, error) {
	return r.find(func(m *member.Member) bool { return m.MemberID == memberID }), nil
}

func (r *MemberRepository) GetByShortID(ctx context.Context, shortID string) (*member.Member, error) {
	return r.find(func(m *member.Member) bool { return m.ShortID == shortID }), nil
}

func (r *MemberRepository) GetByUsername(ctx context.Context, username string) (*member.Member, error) {
	return r.find(func(m *member.Member) bool { return m.Username == username }), nil
}

func (r *MemberRepository) List(ctx context.Context, filter member.Filter, limit, offset int) ([]*member.Member, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	var out []*member.Member
	for _, m := range r.s.members {
		if filter.Role != nil && m.Role != *filter.Role {
			continue
		}
		if filter.Status != nil && m.Status != *filter.Status {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return page(out, limit, offset), nil
}

func (r *MemberRepository) Count(ctx context.Context) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	return len(r.s.members), nil
}

func (r *MemberRepository) find(match func(*member.Member) bool) *member.Member {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	for _, m := range r.s.members {
		if match(m) {
			cp := *m
			return &cp
		}
	}
	return nil
}
