package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/expense-track/apiserver/internal/policy"
	"github.com/expense-track/apiserver/internal/services"
	"github.com/expense-track/apiserver/internal/store"
	"github.com/expense-track/apiserver/types"
)

// UserHandler provides HTTP handlers for account administration.
type UserHandler struct {
	auth  *AuthHandler
	users *services.UserService
}

// NewUserHandler constructs a handler with the provided services.
func NewUserHandler(users *services.UserService, tokens *services.TokenService) *UserHandler {
	return &UserHandler{
		auth:  NewAuthHandler(users, tokens),
		users: users,
	}
}

// UserRouter registers user administration routes. It is mounted under
// /users, with authentication enforced by the caller.
func UserRouter(r chi.Router, users *services.UserService, tokens *services.TokenService) {
	handler := NewUserHandler(users, tokens)

	r.Get("/", handler.ListUsers)
	r.With(handler.requireManager).Post("/", handler.CreateUser)
	r.With(handler.requireManager).Get("/{username}", handler.GetUser)
	r.With(handler.requireManager).Patch("/{username}", handler.UpdateUser)
	r.With(handler.requireManager).Delete("/{username}", handler.DeleteUser)
}

// ListUsers returns every account for managers. Everyone else gets an
// empty listing rather than Forbidden; existing clients depend on the
// 200.
func (h *UserHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	actor, ok := userFromContext(r.Context())
	if !ok {
		writeDetail(w, http.StatusUnauthorized, detailNoCredentials)
		return
	}

	if !policy.ManagerOrAdmin(actor) {
		writeJSON(w, http.StatusOK, []types.User{})
		return
	}

	users, err := h.users.List(r.Context())
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Internal server error.")
		return
	}
	if users == nil {
		users = []types.User{}
	}

	writeJSON(w, http.StatusOK, users)
}

func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := userFromContext(r.Context())

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, ValidationErrors{"non_field_errors": {"Invalid data."}})
		return
	}

	user, errs := h.auth.createUser(r.Context(), actor, req)
	if len(errs) > 0 {
		writeValidation(w, errs)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeDetail(w, http.StatusNotFound, detailNotFound)
			return
		}
		writeDetail(w, http.StatusInternalServerError, "Internal server error.")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// UserUpdateRequest is the PATCH payload for an account.
type UserUpdateRequest struct {
	Email           *string `json:"email"`
	Password        *string `json:"password"`
	ConfirmPassword *string `json:"confirm_password"`
	UserType        *string `json:"user_type"`
}

func (h *UserHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	actor, _ := userFromContext(r.Context())

	user, err := h.users.GetByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeDetail(w, http.StatusNotFound, detailNotFound)
			return
		}
		writeDetail(w, http.StatusInternalServerError, "Internal server error.")
		return
	}

	var req UserUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, ValidationErrors{"non_field_errors": {"Invalid data."}})
		return
	}

	errs := ValidationErrors{}

	if req.Email != nil {
		email := strings.TrimSpace(*req.Email)
		if email == "" {
			errs.Add("email", "This field is required.")
		} else if _, err := mail.ParseAddress(email); err != nil {
			errs.Add("email", "Enter a valid email address.")
		} else if other, err := h.users.GetByEmail(r.Context(), email); err == nil && other.ID != user.ID {
			errs.Add("email", "This field must be unique.")
		} else if err != nil && !errors.Is(err, store.ErrNotFound) {
			writeDetail(w, http.StatusInternalServerError, "Internal server error.")
			return
		} else {
			user.Email = email
		}
	}

	if req.Password != nil {
		if *req.Password != deref(req.ConfirmPassword) {
			errs.Add("non_field_errors", "Passwords must match.")
		} else if *req.Password == "" {
			errs.Add("password", "This field is required.")
		} else {
			hashed, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
			if err != nil {
				writeDetail(w, http.StatusInternalServerError, "Internal server error.")
				return
			}
			user.PasswordHash = string(hashed)
		}
	}

	// Role changes are promote-only and reserved for superusers.
	if req.UserType != nil && actor.IsSuperuser {
		switch *req.UserType {
		case types.UserTypeStaff:
			user.IsStaff = true
		case types.UserTypeSuperuser:
			user.IsSuperuser = true
		default:
			errs.Add("non_field_errors", "Not valid user type.")
		}
	}

	if len(errs) > 0 {
		writeValidation(w, errs)
		return
	}

	updated, err := h.users.Update(r.Context(), user)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeDetail(w, http.StatusNotFound, detailNotFound)
			return
		}
		writeDetail(w, http.StatusInternalServerError, "Internal server error.")
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *UserHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.GetByUsername(r.Context(), chi.URLParam(r, "username"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeDetail(w, http.StatusNotFound, detailNotFound)
			return
		}
		writeDetail(w, http.StatusInternalServerError, "Internal server error.")
		return
	}

	if err := h.users.Delete(r.Context(), user.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeDetail(w, http.StatusNotFound, detailNotFound)
			return
		}
		writeDetail(w, http.StatusInternalServerError, "Internal server error.")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *UserHandler) requireManager(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		actor, ok := userFromContext(r.Context())
		if !ok {
			writeDetail(w, http.StatusUnauthorized, detailNoCredentials)
			return
		}
		if !policy.ManagerOrAdmin(actor) {
			writeDetail(w, http.StatusForbidden, detailForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
