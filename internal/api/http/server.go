package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	appAudit "github.com/clubhub/marketplace/internal/application/audit"
	appAuth "github.com/clubhub/marketplace/internal/application/auth"
	"github.com/clubhub/marketplace/internal/application/listing"
	appMember "github.com/clubhub/marketplace/internal/application/member"
	"github.com/clubhub/marketplace/internal/application/negotiation"
	appRating "github.com/clubhub/marketplace/internal/application/rating"
	"github.com/clubhub/marketplace/internal/domain/apperr"
	"github.com/clubhub/marketplace/internal/infrastructure/sse"
)

// Deps bundles the services the HTTP layer calls into.
type Deps struct {
	Auth        *appAuth.Service
	Members     *appMember.Service
	Listings    *listing.Service
	Negotiation *negotiation.Service
	Ratings     *appRating.Service
	Audit       *appAudit.Service
	Hub         *sse.Hub
	Logger      zerolog.Logger
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	authSvc     *appAuth.Service
	memberSvc   *appMember.Service
	listingSvc  *listing.Service
	engine      *negotiation.Service
	ratingSvc   *appRating.Service
	auditSvc    *appAudit.Service
	sseHub      *sse.Hub
	validate    *validator.Validate
	logger      zerolog.Logger
	keepAlive   time.Duration
	requestTime time.Duration
}

func NewServer(deps Deps) *Server {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Server{
		authSvc:     deps.Auth,
		memberSvc:   deps.Members,
		listingSvc:  deps.Listings,
		engine:      deps.Negotiation,
		ratingSvc:   deps.Ratings,
		auditSvc:    deps.Audit,
		sseHub:      deps.Hub,
		validate:    v,
		logger:      deps.Logger.With().Str("component", "http").Logger(),
		keepAlive:   25 * time.Second,
		requestTime: 30 * time.Second,
	}
}

// Router builds the HTTP router.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.With(middleware.Timeout(s.requestTime)).Post("/register", s.register)
			r.With(middleware.Timeout(s.requestTime)).Post("/login", s.login)
			r.With(s.requireAuth).Get("/me", s.me)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			// The event stream is long-lived and stays outside the timeout.
			r.Get("/events", s.events)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Timeout(s.requestTime))

				r.Route("/items", func(r chi.Router) {
					r.Post("/", s.createItem)
					r.Get("/", s.listItems)
					r.Get("/{itemId}", s.getItem)
					r.Post("/{itemId}/publish", s.publishItem)
					r.Post("/{itemId}/withdraw", s.withdrawItem)
					r.Post("/{itemId}/offers", s.createOffer)
					r.Get("/{itemId}/offers", s.listItemOffers)
				})

				r.Route("/offers", func(r chi.Router) {
					r.Get("/", s.listMyOffers)
					r.Get("/{offerId}", s.getOffer)
					r.Post("/{offerId}/counter", s.counterOffer)
					r.Post("/{offerId}/accept", s.acceptOffer)
					r.Post("/{offerId}/reject", s.rejectOffer)
					r.Post("/{offerId}/withdraw", s.withdrawOffer)
					r.Post("/{offerId}/confirm-receipt", s.confirmReceipt)
					r.Get("/{offerId}/rating-eligibility", s.ratingEligibility)
					r.Post("/{offerId}/ratings", s.submitRating)
					r.Get("/{offerId}/audit", s.offerAudit)
				})

				r.Post("/ratings/{ratingId}/response", s.respondToRating)

				r.Route("/members", func(r chi.Router) {
					r.Get("/{memberId}/ratings", s.memberRatings)
					r.Group(func(r chi.Router) {
						r.Use(s.requireRole("ADMIN"))
						r.Get("/", s.listMembers)
						r.Post("/{memberId}/status", s.setMemberStatus)
					})
				})
			})
		})
	})

	return r
}

// Helpers
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, map[string]interface{}{
		"error":   code,
		"message": message,
	})
}

// respondAppError maps a service error to its category and status.
func (s *Server) respondAppError(w http.ResponseWriter, r *http.Request, err error) {
	code := apperr.Code(err)
	status := statusFor(code)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("path", r.URL.Path).
			Msg("request failed")
		msg = "internal error"
	}
	respondError(w, status, code, msg)
}

func statusFor(code string) int {
	switch code {
	case apperr.CodeValidation:
		return http.StatusBadRequest
	case apperr.CodeUnauthorized:
		return http.StatusUnauthorized
	case apperr.CodeForbidden:
		return http.StatusForbidden
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeConflict, apperr.CodeAlreadyRated, apperr.CodeAlreadyResponded:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func parseUUIDParam(r *http.Request, key string) (uuid.UUID, error) {
	val := chi.URLParam(r, key)
	id, err := uuid.Parse(val)
	if err != nil {
		return uuid.Nil, apperr.Validation("invalid %s", key)
	}
	return id, nil
}

// decodeBody reads a JSON body into v and runs its validate tags.
func (s *Server) decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return apperr.Validation("invalid request body: %v", err)
	}
	if err := s.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, e := range verrs {
				fields = append(fields, e.Field()+" "+validationMessage(e))
			}
			return apperr.Validation("%s", strings.Join(fields, "; "))
		}
		return apperr.Validation("%v", err)
	}
	return nil
}

func validationMessage(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "min":
		return "must be at least " + e.Param()
	case "max":
		return "must be at most " + e.Param()
	case "oneof":
		return "must be one of: " + e.Param()
	default:
		return "is invalid"
	}
}

func parseLimitOffset(r *http.Request, defaultLimit, maxLimit int) (int, int) {
	limit := defaultLimit
	offset := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil {
			limit = l
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if o, err := strconv.Atoi(v); err == nil {
			offset = o
		}
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
