package user

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/aveksana/referrals-api/internal/httputil"
	"github.com/aveksana/referrals-api/internal/logging"
)

// Handler serves read-only user lookups for development tooling.
type Handler struct {
	store Store
}

func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.GetByEmail)
	r.Get("/{id}", h.GetByID)
}

// LookupUser is the public view of a user returned by lookups.
type LookupUser struct {
	ID            uuid.UUID `json:"id"`
	Email         string    `json:"email"`
	ReferralCode  string    `json:"referralCode,omitempty"`
	Credits       int       `json:"credits"`
	PremiumMonths int       `json:"premiumMonths"`
	ReferrerEmail string    `json:"referrerEmail,omitempty"`
}

type LookupResponse struct {
	User          *LookupUser `json:"user,omitempty"`
	ReferrerEmail *string     `json:"referrerEmail,omitempty"`
}

// GetByID looks a user up by id
// @Summary      Look up a user by id
// @Description  Development only. Unknown or malformed ids return an empty object.
// @Tags         users
// @Produce      json
// @Param        id path string true "User id"
// @Success      200 {object} LookupResponse
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /users/{id} [get]
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.RespondJSON(w, LookupResponse{}, http.StatusOK)
		return
	}

	u, err := h.store.GetByID(r.Context(), id)
	h.respond(w, r, u, err, false)
}

// GetByEmail looks a user up by email
// @Summary      Look up a user by email
// @Description  Development only. Includes the referrer's email, resolved through referredBy when it was not stored at signup.
// @Tags         users
// @Produce      json
// @Param        email query string true "Email"
// @Success      200 {object} LookupResponse
// @Failure      400 {object} httputil.ErrorResponse "Missing email"
// @Failure      500 {object} httputil.ErrorResponse "Internal server error"
// @Router       /users [get]
func (h *Handler) GetByEmail(w http.ResponseWriter, r *http.Request) {
	email := r.URL.Query().Get("email")
	if email == "" {
		httputil.RespondErrorWithCode(w, "missing email", httputil.CodeMissingFields, http.StatusBadRequest)
		return
	}

	u, err := h.store.GetByEmail(r.Context(), email)
	h.respond(w, r, u, err, true)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, u *User, err error, withReferrer bool) {
	if errors.Is(err, ErrNotFound) {
		httputil.RespondJSON(w, LookupResponse{}, http.StatusOK)
		return
	}
	if err != nil {
		logging.GetLoggerFromContext(r.Context()).Error("user lookup failed", "error", err.Error())
		httputil.RespondErrorWithCode(w, "internal server error", httputil.CodeInternalError, http.StatusInternalServerError)
		return
	}

	out := &LookupUser{
		ID:            u.ID,
		Email:         u.Email,
		ReferralCode:  u.ReferralCode,
		Credits:       u.Credits,
		PremiumMonths: u.PremiumMonths,
	}
	resp := LookupResponse{User: out}

	if withReferrer {
		if email := h.referrerEmail(r, u); email != "" {
			out.ReferrerEmail = email
			resp.ReferrerEmail = &email
		}
	}

	httputil.RespondJSON(w, resp, http.StatusOK)
}

// referrerEmail prefers the copy taken at signup and falls back to loading
// the referrer. Lookup failures yield "".
func (h *Handler) referrerEmail(r *http.Request, u *User) string {
	if u.ReferrerEmail != "" {
		return u.ReferrerEmail
	}
	if u.ReferredBy == nil {
		return ""
	}
	referrer, err := h.store.GetByID(r.Context(), *u.ReferredBy)
	if err != nil {
		return ""
	}
	return referrer.Email
}
