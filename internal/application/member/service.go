package member

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clubhub/marketplace/internal/domain/apperr"
	domain "github.com/clubhub/marketplace/internal/domain/member"
	"github.com/clubhub/marketplace/internal/domain/party"
)

const shortIDAttempts = 5

// Service handles member accounts.
type Service struct {
	repo   domain.Repository
	logger zerolog.Logger
}

// NewService creates a member service.
func NewService(repo domain.Repository, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger.With().Str("service", "member").Logger(),
	}
}

// RegisterInput defines member registration input.
type RegisterInput struct {
	Username    string
	Password    string
	DisplayName string
	Role        domain.Role
}

// Register creates an active member and assigns its short id once.
func (s *Service) Register(ctx context.Context, input RegisterInput) (*domain.Member, error) {
	username := domain.NormalizeUsername(input.Username)
	if err := domain.ValidateUsername(username); err != nil {
		return nil, err
	}
	if err := domain.ValidatePassword(input.Password, username); err != nil {
		return nil, err
	}
	if input.Role == "" {
		input.Role = domain.RoleMember
	}
	if err := domain.ValidateRole(input.Role); err != nil {
		return nil, err
	}
	existing, err := s.repo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apperr.Conflict("username %q is taken", username)
	}

	hash, err := domain.HashPassword(input.Password)
	if err != nil {
		return nil, err
	}
	displayName := strings.TrimSpace(input.DisplayName)
	if displayName == "" {
		displayName = username
	}

	now := time.Now().UTC()
	m := &domain.Member{
		MemberID:     uuid.New(),
		Username:     username,
		DisplayName:  displayName,
		PasswordHash: hash,
		Role:         input.Role,
		Status:       domain.StatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for attempt := 1; ; attempt++ {
		m.ShortID, err = domain.NewShortID()
		if err != nil {
			return nil, err
		}
		err = s.repo.Create(ctx, m)
		if err == nil {
			break
		}
		if !errors.Is(err, apperr.ErrConflict) || attempt == shortIDAttempts {
			return nil, err
		}
		taken, lookupErr := s.repo.GetByUsername(ctx, username)
		if lookupErr != nil {
			return nil, lookupErr
		}
		if taken != nil {
			return nil, err
		}
	}

	s.logger.Info().Str("member_id", m.MemberID.String()).Str("short_id", m.ShortID).Msg("member registered")
	return m, nil
}

// Get returns the member with the given storage id.
func (s *Service) Get(ctx context.Context, memberID uuid.UUID) (*domain.Member, error) {
	m, err := s.repo.GetByID(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, apperr.NotFound("member %s not found", memberID)
	}
	return m, nil
}

// Resolve looks a member up by short id or storage id.
func (s *Service) Resolve(ctx context.Context, id string) (*domain.Member, error) {
	id = strings.TrimSpace(id)
	if domain.ValidShortID(id) {
		m, err := s.repo.GetByShortID(ctx, id)
		if err != nil {
			return nil, err
		}
		if m == nil {
			return nil, apperr.NotFound("member %s not found", id)
		}
		return m, nil
	}
	memberID, err := uuid.Parse(party.CanonicalID(id))
	if err != nil {
		return nil, apperr.Validation("invalid member id %q", id)
	}
	return s.Get(ctx, memberID)
}

// SetStatus enables or disables a member.
func (s *Service) SetStatus(ctx context.Context, memberID uuid.UUID, status domain.Status) (*domain.Member, error) {
	if err := domain.ValidateStatus(status); err != nil {
		return nil, err
	}
	m, err := s.Get(ctx, memberID)
	if err != nil {
		return nil, err
	}
	m.Status = status
	m.UpdatedAt = time.Now().UTC()
	if err := s.repo.Update(ctx, m); err != nil {
		return nil, err
	}
	s.logger.Info().Str("member_id", m.MemberID.String()).Str("status", string(status)).Msg("member status changed")
	return m, nil
}

func (s *Service) List(ctx context.Context, filter domain.Filter, limit, offset int) ([]*domain.Member, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.List(ctx, filter, limit, offset)
}

func (s *Service) Count(ctx context.Context) (int, error) {
	return s.repo.Count(ctx)
}
