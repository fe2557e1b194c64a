package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"strings"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/expense-track/apiserver/internal/services"
	"github.com/expense-track/apiserver/internal/store"
	"github.com/expense-track/apiserver/types"
)

// AuthHandler provides token authentication endpoints.
type AuthHandler struct {
	users  *services.UserService
	tokens *services.TokenService
}

// NewAuthHandler constructs an AuthHandler with the provided dependencies.
func NewAuthHandler(users *services.UserService, tokens *services.TokenService) *AuthHandler {
	return &AuthHandler{users: users, tokens: tokens}
}

// AuthRouter registers the registration and login routes.
func AuthRouter(r chi.Router, users *services.UserService, tokens *services.TokenService) {
	handler := NewAuthHandler(users, tokens)

	r.Post("/api-register", handler.Register)
	r.Post("/api-auth", handler.Login)
}

// RequireAuth resolves the Authorization header to a user and injects it
// into the request context. Both "Token <key>" and "Bearer <key>" are
// accepted.
func RequireAuth(tokens *services.TokenService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, err := tokenKey(r)
			if err != nil {
				writeDetail(w, http.StatusUnauthorized, detailNoCredentials)
				return
			}

			user, err := tokens.Resolve(r.Context(), key)
			if err != nil {
				writeDetail(w, http.StatusUnauthorized, detailInvalidToken)
				return
			}

			ctx := context.WithValue(r.Context(), contextUserKey, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RegisterRequest is the payload for account creation, both the public
// registration endpoint and the manager-gated user create.
type RegisterRequest struct {
	Username        *string `json:"username"`
	Email           *string `json:"email"`
	Password        *string `json:"password"`
	ConfirmPassword *string `json:"confirm_password"`
	UserType        *string `json:"user_type"`
}

// Register creates a new account and echoes its public representation.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, ValidationErrors{"non_field_errors": {"Invalid data."}})
		return
	}

	// Anonymous registration never grants roles, so the actor is a
	// zero-value user here.
	user, errs := h.createUser(r.Context(), types.User{}, req)
	if len(errs) > 0 {
		writeValidation(w, errs)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// LoginRequest carries credentials for token issuance.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login verifies credentials and returns the account's token.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, ValidationErrors{"non_field_errors": {"Invalid data."}})
		return
	}

	errs := ValidationErrors{}
	if strings.TrimSpace(req.Username) == "" {
		errs.Add("username", "This field is required.")
	}
	if req.Password == "" {
		errs.Add("password", "This field is required.")
	}
	if len(errs) > 0 {
		writeValidation(w, errs)
		return
	}

	user, err := h.users.GetByUsername(r.Context(), req.Username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeValidation(w, ValidationErrors{"non_field_errors": {"Unable to log in with provided credentials."}})
			return
		}
		writeDetail(w, http.StatusInternalServerError, "Internal server error.")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeValidation(w, ValidationErrors{"non_field_errors": {"Unable to log in with provided credentials."}})
		return
	}

	key, err := h.tokens.Issue(r.Context(), user)
	if err != nil {
		writeDetail(w, http.StatusInternalServerError, "Internal server error.")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": key})
}

// createUser validates a registration payload and stores the account.
// Role flags from user_type are honored only when the actor is a
// superuser; everyone else gets a plain account.
func (h *AuthHandler) createUser(ctx context.Context, actor types.User, req RegisterRequest) (types.User, ValidationErrors) {
	errs := ValidationErrors{}

	username := deref(req.Username)
	email := deref(req.Email)
	password := deref(req.Password)

	if req.Username == nil || strings.TrimSpace(username) == "" {
		errs.Add("username", "This field is required.")
	}
	if req.Email == nil || strings.TrimSpace(email) == "" {
		errs.Add("email", "This field is required.")
	} else if _, err := mail.ParseAddress(email); err != nil {
		errs.Add("email", "Enter a valid email address.")
	}
	if req.Password == nil || password == "" {
		errs.Add("password", "This field is required.")
	}
	if len(errs) > 0 {
		return types.User{}, errs
	}

	if password != deref(req.ConfirmPassword) {
		errs.Add("non_field_errors", "Passwords must match.")
		return types.User{}, errs
	}

	user := types.User{Username: username, Email: email}
	if req.UserType != nil {
		switch *req.UserType {
		case types.UserTypeStaff:
			if actor.IsSuperuser {
				user.IsStaff = true
			}
		case types.UserTypeSuperuser:
			if actor.IsSuperuser {
				user.IsSuperuser = true
			}
		default:
			errs.Add("non_field_errors", "Not valid user type.")
			return types.User{}, errs
		}
	}

	if _, err := h.users.GetByUsername(ctx, username); err == nil {
		errs.Add("username", "A user with that username already exists.")
	} else if !errors.Is(err, store.ErrNotFound) {
		errs.Add("non_field_errors", "Internal server error.")
		return types.User{}, errs
	}
	if _, err := h.users.GetByEmail(ctx, email); err == nil {
		errs.Add("email", "This field must be unique.")
	} else if !errors.Is(err, store.ErrNotFound) {
		errs.Add("non_field_errors", "Internal server error.")
		return types.User{}, errs
	}
	if len(errs) > 0 {
		return types.User{}, errs
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		errs.Add("non_field_errors", "Internal server error.")
		return types.User{}, errs
	}
	user.PasswordHash = string(hashed)

	created, err := h.users.Create(ctx, user)
	if err != nil {
		errs.Add("non_field_errors", "Internal server error.")
		return types.User{}, errs
	}
	return created, nil
}

func tokenKey(r *http.Request) (string, error) {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if auth == "" {
		return "", errors.New("missing authorization")
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !(strings.EqualFold(parts[0], "Token") || strings.EqualFold(parts[0], "Bearer")) {
		return "", errors.New("invalid authorization")
	}
	key := strings.TrimSpace(parts[1])
	if key == "" {
		return "", errors.New("invalid authorization")
	}
	return key, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
