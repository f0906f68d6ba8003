package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domainMember "github.com/clubhub/marketplace/internal/domain/member"
	"github.com/clubhub/marketplace/internal/domain/party"
)

type memberStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=ACTIVE DISABLED active disabled"`
}

// memberRatings returns the ratings about a member with their summary. The
// member may be addressed by short id or storage id.
func (s *Server) memberRatings(w http.ResponseWriter, r *http.Request) {
	m, err := s.memberSvc.Resolve(r.Context(), chi.URLParam(r, "memberId"))
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	ref := m.Identity().Ref()
	ratings, err := s.ratingSvc.ListRatingsFor(r.Context(), ref)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	summary, err := s.ratingSvc.Summary(r.Context(), ref)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"member":  memberProfile(ref, m),
		"summary": summary,
		"ratings": ratings,
	})
}

func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseLimitOffset(r, 50, 200)
	filter := domainMember.Filter{}
	if v := r.URL.Query().Get("status"); v != "" {
		status := domainMember.Status(strings.ToUpper(v))
		filter.Status = &status
	}
	if v := r.URL.Query().Get("role"); v != "" {
		role := domainMember.Role(strings.ToUpper(v))
		filter.Role = &role
	}
	members, err := s.memberSvc.List(r.Context(), filter, limit, offset)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"members": members})
}

func (s *Server) setMemberStatus(w http.ResponseWriter, r *http.Request) {
	target, err := s.memberSvc.Resolve(r.Context(), chi.URLParam(r, "memberId"))
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	var req memberStatusRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.respondAppError(w, r, err)
		return
	}
	m, err := s.memberSvc.SetStatus(r.Context(), target.MemberID, domainMember.Status(strings.ToUpper(req.Status)))
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, m)
}

func memberProfile(ref party.Ref, m *domainMember.Member) map[string]interface{} {
	return map[string]interface{}{
		"id":          ref.StorageID,
		"shortId":     ref.ShortID,
		"displayName": m.DisplayName,
	}
}
