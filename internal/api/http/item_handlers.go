package httpapi

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/clubhub/marketplace/internal/application/listing"
	"github.com/clubhub/marketplace/internal/domain/item"
	"github.com/clubhub/marketplace/internal/domain/member"
	"github.com/clubhub/marketplace/internal/domain/party"
)

type itemCreateRequest struct {
	Title       string          `json:"title" validate:"required,max=120"`
	Description string          `json:"description" validate:"max=2000"`
	AskingPrice decimal.Decimal `json:"askingPrice"`
	Status      string          `json:"status" validate:"omitempty,oneof=draft active"`
}

func (s *Server) createItem(w http.ResponseWriter, r *http.Request) {
	var req itemCreateRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.respondAppError(w, r, err)
		return
	}
	it, err := s.listingSvc.Create(r.Context(), callerIdentity(r.Context()), listing.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		AskingPrice: req.AskingPrice,
		Status:      item.Status(req.Status),
	})
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, it)
}

// listItems filters by ?status=, ?owner= (short id or storage id) or
// ?mine=true.
func (s *Server) listItems(w http.ResponseWriter, r *http.Request) {
	limit, offset := parseLimitOffset(r, 50, 200)
	q := r.URL.Query()
	filter := item.Filter{}
	if v := q.Get("status"); v != "" {
		status := item.Status(strings.ToLower(v))
		filter.Status = &status
	}
	switch {
	case q.Get("mine") == "true":
		ref := callerIdentity(r.Context()).Ref()
		filter.Owner = &ref
	case q.Get("owner") != "":
		ref := refFromParam(q.Get("owner"))
		filter.Owner = &ref
	}
	items, err := s.listingSvc.List(r.Context(), filter, limit, offset)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"items": items})
}

func (s *Server) getItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "itemId")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	it, err := s.listingSvc.Get(r.Context(), id)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, it)
}

func (s *Server) publishItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "itemId")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	it, err := s.listingSvc.Publish(r.Context(), id, callerIdentity(r.Context()))
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, it)
}

func (s *Server) withdrawItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "itemId")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	it, err := s.listingSvc.Withdraw(r.Context(), id, callerIdentity(r.Context()))
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, it)
}

func refFromParam(v string) party.Ref {
	v = strings.TrimSpace(v)
	if member.ValidShortID(v) {
		return party.Ref{ShortID: v}
	}
	return party.Ref{StorageID: v}.Canonical()
}
