package httpapi

import (
	"net/http"
	"time"

	appMember "github.com/clubhub/marketplace/internal/application/member"
	domainMember "github.com/clubhub/marketplace/internal/domain/member"
)

type registerRequest struct {
	Username    string `json:"username" validate:"required,min=3,max=32"`
	Password    string `json:"password" validate:"required,min=12,max=72"`
	DisplayName string `json:"displayName" validate:"max=64"`
}

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	Member    *domainMember.Member `json:"member"`
	Token     string               `json:"token"`
	ExpiresAt string               `json:"expiresAt"`
}

// register creates a member. The first member of an empty club becomes admin.
func (s *Server) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.respondAppError(w, r, err)
		return
	}
	count, err := s.memberSvc.Count(r.Context())
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	role := domainMember.RoleMember
	if count == 0 {
		role = domainMember.RoleAdmin
	}
	m, err := s.memberSvc.Register(r.Context(), appMember.RegisterInput{
		Username:    req.Username,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		Role:        role,
	})
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	res, err := s.authSvc.IssueToken(m)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, tokenResponse{
		Member:    res.Member,
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt.Format(time.RFC3339),
	})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.respondAppError(w, r, err)
		return
	}
	res, err := s.authSvc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, tokenResponse{
		Member:    res.Member,
		Token:     res.Token,
		ExpiresAt: res.ExpiresAt.Format(time.RFC3339),
	})
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, authMemberFromContext(r.Context()))
}
