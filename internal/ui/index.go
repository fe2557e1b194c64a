package ui

import (
	"net/http"

	gomponents "maragu.dev/gomponents"
	html "maragu.dev/gomponents/html"

	"github.com/expense-track/apiserver/internal/store"
)

// Index renders the expense overview for the signed-in user.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actorFromCookie(r)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	expenses, err := h.expenses.List(r.Context(), actor, actor.Username, store.ExpenseFilter{})
	if err != nil {
		renderHTML(w, http.StatusInternalServerError, errorPage("Error", "Could not load expenses."))
		return
	}

	rows := make([]gomponents.Node, 0, len(expenses))
	for _, expense := range expenses {
		rows = append(rows, html.Tr(
			html.Td(gomponents.Text(expense.Date.String())),
			html.Td(gomponents.Text(expense.Time.String())),
			html.Td(gomponents.Text(expense.Amount.String())),
			html.Td(gomponents.Text(expense.Description)),
			html.Td(gomponents.Text(expense.Comment)),
		))
	}

	renderHTML(w, http.StatusOK, appPage(
		"Expenses",
		actor.Username,
		html.Div(
			html.Class("card table-wrap"),
			html.Table(
				html.THead(html.Tr(
					html.Th(gomponents.Text("Date")),
					html.Th(gomponents.Text("Time")),
					html.Th(gomponents.Text("Amount")),
					html.Th(gomponents.Text("Description")),
					html.Th(gomponents.Text("Comment")),
				)),
				html.TBody(gomponents.Group(rows)),
			),
		),
	))
}
