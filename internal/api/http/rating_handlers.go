package httpapi

import (
	"net/http"

	"github.com/clubhub/marketplace/internal/domain/party"
)

type ratingRequest struct {
	Score    int        `json:"score" validate:"required,min=1,max=5"`
	Comment  string     `json:"comment" validate:"max=2000"`
	Reviewee *party.Ref `json:"reviewee,omitempty"`
}

type responseRequest struct {
	Response string `json:"response" validate:"required,max=2000"`
}

func (s *Server) ratingEligibility(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "offerId")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	e, err := s.ratingSvc.Eligibility(r.Context(), id, callerIdentity(r.Context()))
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, e)
}

func (s *Server) submitRating(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "offerId")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	var req ratingRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.respondAppError(w, r, err)
		return
	}
	var reviewee party.Ref
	if req.Reviewee != nil {
		reviewee = *req.Reviewee
	}
	rt, err := s.ratingSvc.SubmitRating(r.Context(), id, callerIdentity(r.Context()), reviewee, req.Score, req.Comment)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, rt)
}

func (s *Server) respondToRating(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "ratingId")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	var req responseRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.respondAppError(w, r, err)
		return
	}
	rt, err := s.ratingSvc.RespondToRating(r.Context(), id, callerIdentity(r.Context()), req.Response)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, rt)
}
