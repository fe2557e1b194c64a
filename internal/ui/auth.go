package ui

import (
	"errors"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/expense-track/apiserver/internal/store"
	"github.com/expense-track/apiserver/types"
)

const tokenCookieName = "expense_token"

// actorFromCookie resolves the session cookie to a user. The zero
// value and false mean no valid session.
func (h *Handler) actorFromCookie(r *http.Request) (types.User, bool) {
	cookie, err := r.Cookie(tokenCookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return types.User{}, false
	}
	user, err := h.tokens.Resolve(r.Context(), strings.TrimSpace(cookie.Value))
	if err != nil {
		return types.User{}, false
	}
	return user, true
}

func (h *Handler) LoginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.actorFromCookie(r); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	renderHTML(w, http.StatusOK, loginPage(""))
}

func (h *Handler) LoginSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		renderHTML(w, http.StatusBadRequest, loginPage("Invalid form submission."))
		return
	}
	username := strings.TrimSpace(r.Form.Get("username"))
	password := r.Form.Get("password")
	if username == "" || password == "" {
		renderHTML(w, http.StatusBadRequest, loginPage("Username and password are required."))
		return
	}

	user, err := h.users.GetByUsername(r.Context(), username)
	if err != nil {
		renderHTML(w, http.StatusBadRequest, loginPage("Unable to log in with provided credentials."))
		return
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		renderHTML(w, http.StatusBadRequest, loginPage("Unable to log in with provided credentials."))
		return
	}

	key, err := h.tokens.Issue(r.Context(), user)
	if err != nil {
		renderHTML(w, http.StatusInternalServerError, loginPage("Something went wrong, try again."))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName,
		Value:    key,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Now().Add(24 * time.Hour),
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.actorFromCookie(r); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}
	renderHTML(w, http.StatusOK, registerPage(""))
}

func (h *Handler) RegisterSubmit(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		renderHTML(w, http.StatusBadRequest, registerPage("Invalid form submission."))
		return
	}
	username := strings.TrimSpace(r.Form.Get("username"))
	email := strings.TrimSpace(r.Form.Get("email"))
	password := r.Form.Get("password")
	confirm := r.Form.Get("confirm_password")

	switch {
	case username == "" || email == "" || password == "":
		renderHTML(w, http.StatusBadRequest, registerPage("All fields are required."))
		return
	case password != confirm:
		renderHTML(w, http.StatusBadRequest, registerPage("Passwords must match."))
		return
	}
	if _, err := mail.ParseAddress(email); err != nil {
		renderHTML(w, http.StatusBadRequest, registerPage("Enter a valid email address."))
		return
	}

	if _, err := h.users.GetByUsername(r.Context(), username); err == nil {
		renderHTML(w, http.StatusBadRequest, registerPage("A user with that username already exists."))
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		renderHTML(w, http.StatusInternalServerError, registerPage("Something went wrong, try again."))
		return
	}
	if _, err := h.users.GetByEmail(r.Context(), email); err == nil {
		renderHTML(w, http.StatusBadRequest, registerPage("A user with that email already exists."))
		return
	} else if !errors.Is(err, store.ErrNotFound) {
		renderHTML(w, http.StatusInternalServerError, registerPage("Something went wrong, try again."))
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		renderHTML(w, http.StatusInternalServerError, registerPage("Something went wrong, try again."))
		return
	}
	if _, err := h.users.Create(r.Context(), types.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hashed),
	}); err != nil {
		renderHTML(w, http.StatusInternalServerError, registerPage("Something went wrong, try again."))
		return
	}

	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

// Logout clears the session cookie. The token itself stays valid for
// API clients; it is shared per account.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     tokenCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   -1,
	})
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}
