package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/clubhub/marketplace/internal/domain/audit"
	"github.com/clubhub/marketplace/internal/domain/offer"
	"github.com/clubhub/marketplace/internal/domain/party"
)

type offerOp func(ctx context.Context, offerID uuid.UUID, actor party.Identity) (*offer.Offer, error)

type proposalRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note" validate:"max=2000"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
}

func (s *Server) createOffer(w http.ResponseWriter, r *http.Request) {
	itemID, err := parseUUIDParam(r, "itemId")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	var req proposalRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.respondAppError(w, r, err)
		return
	}
	o, err := s.engine.CreateOffer(r.Context(), itemID, callerIdentity(r.Context()), req.Amount, req.Note)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, o)
}

// listItemOffers returns the negotiation history, newest first unless
// ?order=asc.
func (s *Server) listItemOffers(w http.ResponseWriter, r *http.Request) {
	itemID, err := parseUUIDParam(r, "itemId")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	filter := offerFilter(r)
	filter.NewestFirst = r.URL.Query().Get("order") != "asc"
	offers, err := s.engine.ListItemOffers(r.Context(), itemID, callerIdentity(r.Context()), filter)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"offers": offers})
}

func (s *Server) listMyOffers(w http.ResponseWriter, r *http.Request) {
	filter := offerFilter(r)
	filter.NewestFirst = true
	offers, err := s.engine.ListMyOffers(r.Context(), callerIdentity(r.Context()), filter)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"offers": offers})
}

func (s *Server) getOffer(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "offerId")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	o, err := s.engine.GetOffer(r.Context(), id, callerIdentity(r.Context()))
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (s *Server) counterOffer(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "offerId")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	var req proposalRequest
	if err := s.decodeBody(r, &req); err != nil {
		s.respondAppError(w, r, err)
		return
	}
	o, err := s.engine.CounterOffer(r.Context(), id, callerIdentity(r.Context()), req.Amount, req.Note)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusCreated, o)
}

func (s *Server) acceptOffer(w http.ResponseWriter, r *http.Request) {
	s.offerAction(w, r, s.engine.Accept)
}

func (s *Server) withdrawOffer(w http.ResponseWriter, r *http.Request) {
	s.offerAction(w, r, s.engine.Withdraw)
}

func (s *Server) confirmReceipt(w http.ResponseWriter, r *http.Request) {
	s.offerAction(w, r, s.engine.ConfirmReceipt)
}

func (s *Server) rejectOffer(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "offerId")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	var req rejectRequest
	if r.ContentLength != 0 {
		if err := s.decodeBody(r, &req); err != nil {
			s.respondAppError(w, r, err)
			return
		}
	}
	o, err := s.engine.Reject(r.Context(), id, callerIdentity(r.Context()), req.Reason)
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func (s *Server) offerAudit(w http.ResponseWriter, r *http.Request) {
	id, err := parseUUIDParam(r, "offerId")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	// Visibility follows the offer itself.
	if _, err := s.engine.GetOffer(r.Context(), id, callerIdentity(r.Context())); err != nil {
		s.respondAppError(w, r, err)
		return
	}
	if r.URL.Query().Get("verify") == "true" {
		results, err := s.auditSvc.Verify(r.Context(), audit.EntityTypeOffer, id.String())
		if err != nil {
			s.respondAppError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]interface{}{"results": results})
		return
	}
	logs, err := s.auditSvc.History(r.Context(), audit.EntityTypeOffer, id.String())
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"entries": logs})
}

func (s *Server) offerAction(w http.ResponseWriter, r *http.Request, op offerOp) {
	id, err := parseUUIDParam(r, "offerId")
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	o, err := op(r.Context(), id, callerIdentity(r.Context()))
	if err != nil {
		s.respondAppError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, o)
}

func offerFilter(r *http.Request) offer.ListFilter {
	filter := offer.ListFilter{}
	if v := r.URL.Query().Get("status"); v != "" {
		status := offer.Status(strings.ToLower(v))
		filter.Status = &status
	}
	return filter
}
