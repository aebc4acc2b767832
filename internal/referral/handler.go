package referral

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aveksana/referrals-api/internal/httputil"
	"github.com/aveksana/referrals-api/internal/logging"
	"github.com/aveksana/referrals-api/internal/user"
)

// Handler exposes the referral engine over HTTP.
type Handler struct {
	service *Service
	userID  func(*http.Request) (uuid.UUID, bool)
}

// NewHandler builds the handler. userID extracts the authenticated caller
// from a request that went through the auth middleware.
func NewHandler(service *Service, userID func(*http.Request) (uuid.UUID, bool)) *Handler {
	return &Handler{
		service: service,
		userID:  userID,
	}
}

// Routes mounts the referral endpoints. requireAuth guards the endpoints that
// act on behalf of the caller.
func (h *Handler) Routes(r chi.Router, requireAuth func(http.Handler) http.Handler) {
	r.Post("/record-event", h.RecordEvent)
	r.Post("/trigger-first-project", h.TriggerFirstProject)
	r.Get("/summary", h.Summary)
	r.Get("/invite/{code}", h.Invite)
	r.With(requireAuth).Post("/reconcile", h.Reconcile)
}

// RecordEventRequest is the record-event body. One of ReferredID or
// ReferredEmail is required.
type RecordEventRequest struct {
	ReferredID    string         `json:"referredId,omitempty"`
	ReferredEmail string         `json:"referredEmail,omitempty"`
	EventName     string         `json:"eventName"`
	Props         map[string]any `json:"props,omitempty"`
}

type RecordEventResponse struct {
	OK        bool `json:"ok"`
	Activated bool `json:"activated"`
}

type TriggerFirstProjectRequest struct {
	UserID string `json:"userId"`
}

type TriggerFirstProjectResponse struct {
	ShowPrompt bool `json:"showPrompt"`
}

type SummaryResponse struct {
	Referrals []ReferralSummary `json:"referrals"`
}

type ReconcileResponse struct {
	Granted []string `json:"granted"`
}

// RecordEvent handles activation event submissions
// @Summary      Record an activation event
// @Description  Marks an event completed for a referred user and grants any rewards it unlocks.
// @Tags         referrals
// @Accept       json
// @Produce      json
// @Param        request body RecordEventRequest true "Event"
// @Success      200 {object} RecordEventResponse
// @Failure      400 {object} httputil.ErrorResponse "Missing fields or invalid event name"
// @Failure      404 {object} httputil.ErrorResponse "User not found"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /referrals/record-event [post]
func (h *Handler) RecordEvent(w http.ResponseWriter, r *http.Request) {
	logger := logging.GetLoggerFromContext(r.Context())

	var req RecordEventRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		logger.Warn("invalid record-event request body", "error", err.Error())
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}

	var ref user.Ref
	switch {
	case req.ReferredID != "":
		id, err := uuid.Parse(req.ReferredID)
		if err != nil {
			httputil.RespondErrorWithCode(w, "user not found", httputil.CodeNotFound, http.StatusNotFound)
			return
		}
		ref = user.ByID(id)
	case req.ReferredEmail != "":
		ref = user.ByEmail(req.ReferredEmail)
	}

	result, err := h.service.RecordActivationEvent(r.Context(), ref, req.EventName, req.Props)
	if err != nil {
		h.respondServiceError(w, r, "record-event", err)
		return
	}

	httputil.RespondJSON(w, RecordEventResponse{OK: true, Activated: result.Activated}, http.StatusOK)
}

// TriggerFirstProject handles the first-project demo hook
// @Summary      Count a saved project
// @Description  Increments the user's saved projects and reports whether this was the first one.
// @Tags         referrals
// @Accept       json
// @Produce      json
// @Param        request body TriggerFirstProjectRequest true "User"
// @Success      200 {object} TriggerFirstProjectResponse
// @Failure      400 {object} httputil.ErrorResponse "Missing userId"
// @Failure      404 {object} httputil.ErrorResponse "User not found"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /referrals/trigger-first-project [post]
func (h *Handler) TriggerFirstProject(w http.ResponseWriter, r *http.Request) {
	var req TriggerFirstProjectRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.RespondErrorWithCode(w, "invalid request body", httputil.CodeInvalidRequestBody, http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		httputil.RespondErrorWithCode(w, "missing userId", httputil.CodeMissingFields, http.StatusBadRequest)
		return
	}

	id, err := uuid.Parse(req.UserID)
	if err != nil {
		httputil.RespondErrorWithCode(w, "user not found", httputil.CodeNotFound, http.StatusNotFound)
		return
	}

	showPrompt, err := h.service.TriggerFirstProjectSignal(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, "trigger-first-project", err)
		return
	}

	httputil.RespondJSON(w, TriggerFirstProjectResponse{ShowPrompt: showPrompt}, http.StatusOK)
}

// Summary lists a referrer's referred users
// @Summary      Referral summary
// @Description  Lists users referred by the given user with their activation progress.
// @Tags         referrals
// @Produce      json
// @Param        id query string true "Referrer id"
// @Success      200 {object} SummaryResponse
// @Failure      400 {object} httputil.ErrorResponse "Missing id"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /referrals/summary [get]
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("id")
	if raw == "" {
		httputil.RespondErrorWithCode(w, "missing id", httputil.CodeMissingFields, http.StatusBadRequest)
		return
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		httputil.RespondJSON(w, SummaryResponse{Referrals: []ReferralSummary{}}, http.StatusOK)
		return
	}

	referrals, err := h.service.ReadReferralSummary(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, "summary", err)
		return
	}

	httputil.RespondJSON(w, SummaryResponse{Referrals: referrals}, http.StatusOK)
}

// Invite resolves a referral code for the invite page
// @Summary      Resolve an invite
// @Description  Returns the inviting user and the credits a new user receives when signing up with the code.
// @Tags         referrals
// @Produce      json
// @Param        code path string true "Referral code"
// @Success      200 {object} Invitation
// @Failure      404 {object} httputil.ErrorResponse "Unknown referral code"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /referrals/invite/{code} [get]
func (h *Handler) Invite(w http.ResponseWriter, r *http.Request) {
	invitation, err := h.service.Invite(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		h.respondServiceError(w, r, "invite", err)
		return
	}
	httputil.RespondJSON(w, invitation, http.StatusOK)
}

// Reconcile re-evaluates the caller's milestone rewards
// @Summary      Reconcile milestones
// @Description  Grants any milestone tiers the caller has reached but not received.
// @Tags         referrals
// @Produce      json
// @Security     BearerAuth
// @Success      200 {object} ReconcileResponse
// @Failure      401 {object} httputil.ErrorResponse "Unauthorized"
// @Failure      404 {object} httputil.ErrorResponse "User not found"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /referrals/reconcile [post]
func (h *Handler) Reconcile(w http.ResponseWriter, r *http.Request) {
	id, ok := h.userID(r)
	if !ok {
		httputil.RespondErrorWithCode(w, "missing authentication", httputil.CodeMissingAuth, http.StatusUnauthorized)
		return
	}

	granted, err := h.service.ReconcileMilestones(r.Context(), id)
	if err != nil {
		h.respondServiceError(w, r, "reconcile", err)
		return
	}

	httputil.RespondJSON(w, ReconcileResponse{Granted: granted}, http.StatusOK)
}

func (h *Handler) respondServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	logger := logging.GetLoggerFromContext(r.Context())

	switch {
	case errors.Is(err, ErrMissingFields):
		logger.Warn(op+" rejected", "error", err.Error())
		httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeMissingFields, http.StatusBadRequest)
	case errors.Is(err, user.ErrInvalidEventName):
		logger.Warn(op+" rejected", "error", err.Error())
		httputil.RespondErrorWithCode(w, err.Error(), httputil.CodeInvalidEventName, http.StatusBadRequest)
	case errors.Is(err, user.ErrNotFound):
		httputil.RespondErrorWithCode(w, "user not found", httputil.CodeNotFound, http.StatusNotFound)
	default:
		logger.Error(op+" failed", "error", err.Error())
		httputil.RespondErrorWithCode(w, "internal server error", httputil.CodeInternalError, http.StatusInternalServerError)
	}
}
