// Package ui serves the server-rendered pages: login, registration and
// the expense overview. Pages talk to the same services as the API and
// hold the API token in an HttpOnly cookie.
package ui

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	gomponents "maragu.dev/gomponents"

	"github.com/expense-track/apiserver/internal/services"
)

// Handler carries the services the pages are rendered from.
type Handler struct {
	users    *services.UserService
	tokens   *services.TokenService
	expenses *services.ExpenseService
}

// NewHandler constructs a UI handler with the provided services.
func NewHandler(users *services.UserService, tokens *services.TokenService, expenses *services.ExpenseService) *Handler {
	return &Handler{
		users:    users,
		tokens:   tokens,
		expenses: expenses,
	}
}

// Router registers the UI routes on the given router.
func Router(r chi.Router, users *services.UserService, tokens *services.TokenService, expenses *services.ExpenseService) {
	handler := NewHandler(users, tokens, expenses)

	r.Get("/login", handler.LoginPage)
	r.Post("/login", handler.LoginSubmit)
	r.Get("/register", handler.RegisterPage)
	r.Post("/register", handler.RegisterSubmit)
	r.Get("/logout", handler.Logout)
	r.Get("/", handler.Index)
}

func renderHTML(w http.ResponseWriter, status int, page gomponents.Node) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_ = page.Render(w)
}
