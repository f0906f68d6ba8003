package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/clubhub/marketplace/internal/domain/apperr"
	domainMember "github.com/clubhub/marketplace/internal/domain/member"
)

// Claims carries both identifier forms of the caller: the subject is the
// storage id, ShortID the member code.
type Claims struct {
	jwt.RegisteredClaims
	ShortID string `json:"sid"`
}

// Service handles authentication.
type Service struct {
	memberRepo domainMember.Repository
	secret     []byte
	tokenTTL   time.Duration
	logger     zerolog.Logger
}

// NewService creates an auth service.
func NewService(memberRepo domainMember.Repository, secret []byte, tokenTTL time.Duration, logger zerolog.Logger) *Service {
	return &Service{
		memberRepo: memberRepo,
		secret:     secret,
		tokenTTL:   tokenTTL,
		logger:     logger.With().Str("service", "auth").Logger(),
	}
}

// LoginResult contains login response.
type LoginResult struct {
	Member    *domainMember.Member
	Token     string
	ExpiresAt time.Time
}

// Login authenticates a member and issues a token.
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = domainMember.NormalizeUsername(username)
	m, err := s.memberRepo.GetByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if m == nil || !domainMember.VerifyPassword(m.PasswordHash, password) {
		return nil, apperr.Unauthorized("invalid username or password")
	}
	if !m.IsActive() {
		return nil, apperr.Forbidden("member is disabled")
	}
	res, err := s.IssueToken(m)
	if err != nil {
		return nil, err
	}
	s.logger.Info().Str("member_id", m.MemberID.String()).Msg("member login")
	return res, nil
}

// IssueToken signs a token for m.
func (s *Service) IssueToken(m *domainMember.Member) (*LoginResult, error) {
	now := time.Now().UTC()
	expiresAt := now.Add(s.tokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   m.MemberID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
		ShortID: m.ShortID,
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, err
	}
	return &LoginResult{Member: m, Token: signed, ExpiresAt: expiresAt}, nil
}

// Authenticate validates a token and returns the active member behind it.
func (s *Service) Authenticate(ctx context.Context, tokenString string) (*domainMember.Member, error) {
	if tokenString == "" {
		return nil, apperr.Unauthorized("missing token")
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, apperr.Unauthorized("token expired")
		}
		return nil, apperr.Unauthorized("invalid token")
	}
	if !token.Valid {
		return nil, apperr.Unauthorized("invalid token")
	}
	memberID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, apperr.Unauthorized("invalid token subject")
	}
	m, err := s.memberRepo.GetByID(ctx, memberID)
	if err != nil {
		return nil, err
	}
	if m == nil || !m.IsActive() {
		return nil, apperr.Unauthorized("member not active")
	}
	if claims.ShortID != "" && claims.ShortID != m.ShortID {
		return nil, apperr.Unauthorized("token does not match member")
	}
	return m, nil
}
