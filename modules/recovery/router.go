package recovery

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/dmitrymomot/billingkit/pkg/billing"
	"github.com/dmitrymomot/billingkit/pkg/logger"
	"github.com/dmitrymomot/billingkit/pkg/plan"
	"github.com/dmitrymomot/billingkit/pkg/subscription"
	"github.com/dmitrymomot/billingkit/pkg/verifier"
)

// Handle returns the recovery HTTP surface.
func (s *Service) Handle() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/reconcile", s.reconcile)
	r.Route("/users/{userID}", func(r chi.Router) {
		r.Get("/access", s.access)
		r.Post("/activate", s.activate)
		r.Post("/cancel", s.cancel)
		r.Post("/trial/restart", s.restartTrial)
	})

	return r
}

type reconcileRequest struct {
	UserID    uuid.UUID `json:"user_id"`
	Platform  string    `json:"platform"`
	Reference string    `json:"reference"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Email     string    `json:"email,omitempty"`
}

type reconcileResponse struct {
	Outcome      string                     `json:"outcome"`
	Subscription *subscription.Subscription `json:"subscription"`
	PlanID       string                     `json:"plan_id"`
}

// reconcile re-runs the reconciliation for a payment whose original webhook
// processing failed or never arrived. Safe to call repeatedly: an already
// processed reference comes back as a duplicate outcome.
func (s *Service) reconcile(w http.ResponseWriter, r *http.Request) {
	var req reconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}
	if req.UserID == uuid.Nil || req.Platform == "" || req.Reference == "" {
		s.respondError(w, r, http.StatusBadRequest, "missing_fields", "user_id, platform and reference are required")
		return
	}

	res, err := s.engine.Reconcile(r.Context(), billing.ReconcileRequest{
		UserID:    req.UserID,
		Platform:  verifier.Platform(req.Platform),
		Reference: req.Reference,
		Amount:    req.Amount,
		Currency:  req.Currency,
		Email:     req.Email,
	})
	if err != nil {
		s.respondEngineError(w, r, err)
		return
	}

	s.respond(w, http.StatusOK, reconcileResponse{
		Outcome:      string(res.Outcome),
		Subscription: res.Subscription,
		PlanID:       res.Plan.ID,
	})
}

type activateRequest struct {
	PlanID   string `json:"plan_id"`
	Operator string `json:"operator"`
}

func (s *Service) activate(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	var req activateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}
	if req.PlanID == "" || req.Operator == "" {
		s.respondError(w, r, http.StatusBadRequest, "missing_fields", "plan_id and operator are required")
		return
	}

	sub, err := s.engine.ManualActivate(r.Context(), userID, req.PlanID, req.Operator)
	if err != nil {
		s.respondEngineError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, sub)
}

func (s *Service) cancel(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	sub, err := s.engine.Cancel(r.Context(), userID)
	if err != nil {
		s.respondEngineError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, sub)
}

type restartTrialRequest struct {
	Operator string `json:"operator"`
}

func (s *Service) restartTrial(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	var req restartTrialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}
	if req.Operator == "" {
		s.respondError(w, r, http.StatusBadRequest, "missing_fields", "operator is required")
		return
	}

	sub, err := s.engine.RestartTrial(r.Context(), userID, req.Operator)
	if err != nil {
		s.respondEngineError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, sub)
}

type accessResponse struct {
	UserID    uuid.UUID `json:"user_id"`
	HasAccess bool      `json:"has_access"`
}

func (s *Service) access(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.userID(w, r)
	if !ok {
		return
	}

	hasAccess, err := s.engine.HasAccess(r.Context(), userID)
	if err != nil {
		s.respondEngineError(w, r, err)
		return
	}
	s.respond(w, http.StatusOK, accessResponse{UserID: userID, HasAccess: hasAccess})
}

func (s *Service) userID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "userID"))
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid_user_id", "userID must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

// respondEngineError maps domain errors to HTTP statuses. Retryable errors
// get 502 so upstream webhook infrastructure redelivers; ErrCommitFailed
// deliberately gets 500 with no retry hint since the engine already raised
// the operator alert.
func (s *Service) respondEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, billing.ErrUnsupportedPlatform):
		s.respondError(w, r, http.StatusBadRequest, "unsupported_platform", err.Error())
	case errors.Is(err, billing.ErrTrialAlreadyUsed):
		s.respondError(w, r, http.StatusConflict, "trial_already_used", err.Error())
	case errors.Is(err, subscription.ErrSubscriptionNotFound):
		s.respondError(w, r, http.StatusNotFound, "subscription_not_found", err.Error())
	case errors.Is(err, plan.ErrPlanNotFound):
		s.respondError(w, r, http.StatusNotFound, "plan_not_found", err.Error())
	case subscription.IsInvalidTransitionError(err):
		s.respondError(w, r, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, billing.ErrVerificationFailed):
		s.respondError(w, r, http.StatusBadGateway, "verification_failed", err.Error())
	default:
		s.log.ErrorContext(r.Context(), "recovery operation failed",
			logger.Error(err),
			logger.RequestID(middleware.GetReqID(r.Context())),
		)
		s.respondError(w, r, http.StatusInternalServerError, "internal_error", "operation failed")
	}
}
