package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/expense-track/apiserver/internal/services"
	"github.com/expense-track/apiserver/internal/storage"
	"github.com/expense-track/apiserver/internal/store"
	"github.com/expense-track/apiserver/types"
)

const (
	maxAmountDigits   = 10
	maxAmountDecimals = 2
	maxReceiptBytes   = 10 << 20
	formFieldReceipt  = "receipt"
)

// ExpenseHandler provides HTTP handlers for a user's expense collection.
type ExpenseHandler struct {
	expenseService *services.ExpenseService
	receipts       *storage.Storage
}

// NewExpenseHandler constructs a handler with the provided services.
// receipts may be nil, in which case the receipt endpoints report the
// feature as unavailable.
func NewExpenseHandler(expenseService *services.ExpenseService, receipts *storage.Storage) *ExpenseHandler {
	return &ExpenseHandler{
		expenseService: expenseService,
		receipts:       receipts,
	}
}

// ExpenseRouter registers expense routes. It is mounted under
// /users/{username}/expenses, with authentication enforced by the caller.
func ExpenseRouter(r chi.Router, expenseService *services.ExpenseService, receipts *storage.Storage) {
	handler := NewExpenseHandler(expenseService, receipts)

	r.Get("/", handler.ListExpenses)
	r.Post("/", handler.CreateExpense)
	r.Get("/report", handler.Report)
	r.Get("/report/{week}", handler.Report)
	r.Route("/{expenseID}", func(r chi.Router) {
		r.Get("/", handler.GetExpense)
		r.Put("/", handler.UpdateExpense)
		r.Patch("/", handler.UpdateExpense)
		r.Delete("/", handler.DeleteExpense)
		r.Post("/receipt", handler.UploadReceipt)
		r.Get("/receipt", handler.DownloadReceipt)
		r.Delete("/receipt", handler.DeleteReceipt)
	})
}

func (h *ExpenseHandler) ListExpenses(w http.ResponseWriter, r *http.Request) {
	actor, ok := userFromContext(r.Context())
	if !ok {
		writeDetail(w, http.StatusUnauthorized, detailNoCredentials)
		return
	}

	filter, errs := parseExpenseFilter(r)
	if len(errs) > 0 {
		writeValidation(w, errs)
		return
	}

	expenses, err := h.expenseService.List(r.Context(), actor, chi.URLParam(r, "username"), filter)
	if err != nil {
		writeExpenseError(w, err)
		return
	}
	if expenses == nil {
		expenses = []types.Expense{}
	}

	writeJSON(w, http.StatusOK, expenses)
}

func (h *ExpenseHandler) GetExpense(w http.ResponseWriter, r *http.Request) {
	actor, ok := userFromContext(r.Context())
	if !ok {
		writeDetail(w, http.StatusUnauthorized, detailNoCredentials)
		return
	}

	id, err := parseExpenseID(r)
	if err != nil {
		writeDetail(w, http.StatusNotFound, detailNotFound)
		return
	}

	expense, err := h.expenseService.Get(r.Context(), actor, id)
	if err != nil {
		writeExpenseError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, expense)
}

func (h *ExpenseHandler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	actor, ok := userFromContext(r.Context())
	if !ok {
		writeDetail(w, http.StatusUnauthorized, detailNoCredentials)
		return
	}

	var req ExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, ValidationErrors{"non_field_errors": {"Invalid data."}})
		return
	}

	expense, errs := buildExpense(req, true, types.Expense{})
	if len(errs) > 0 {
		writeValidation(w, errs)
		return
	}

	created, err := h.expenseService.Create(r.Context(), actor, chi.URLParam(r, "username"), deref(req.User), expense)
	if err != nil {
		if errors.Is(err, services.ErrOwnerNotFound) {
			writeValidation(w, ValidationErrors{"user": {"User matching query does not exist."}})
			return
		}
		writeExpenseError(w, err)
		return
	}
	if created == nil {
		// Staff submissions are accepted but never stored; the echoed
		// body carries no pk or user.
		writeJSON(w, http.StatusCreated, expense)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

func (h *ExpenseHandler) UpdateExpense(w http.ResponseWriter, r *http.Request) {
	actor, ok := userFromContext(r.Context())
	if !ok {
		writeDetail(w, http.StatusUnauthorized, detailNoCredentials)
		return
	}

	id, err := parseExpenseID(r)
	if err != nil {
		writeDetail(w, http.StatusNotFound, detailNotFound)
		return
	}

	current, err := h.expenseService.Get(r.Context(), actor, id)
	if err != nil {
		writeExpenseError(w, err)
		return
	}

	var req ExpenseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidation(w, ValidationErrors{"non_field_errors": {"Invalid data."}})
		return
	}

	// PUT replaces the record and re-applies field defaults; PATCH
	// merges into the stored values. The owner is immutable either way.
	full := r.Method == http.MethodPut
	expense, errs := buildExpense(req, full, current)
	if len(errs) > 0 {
		writeValidation(w, errs)
		return
	}
	expense.ID = current.ID
	expense.UserID = current.UserID
	expense.Username = current.Username
	expense.ReceiptKey = current.ReceiptKey
	expense.ReceiptContentType = current.ReceiptContentType

	updated, err := h.expenseService.Update(r.Context(), actor, expense)
	if err != nil {
		writeExpenseError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, updated)
}

func (h *ExpenseHandler) DeleteExpense(w http.ResponseWriter, r *http.Request) {
	actor, ok := userFromContext(r.Context())
	if !ok {
		writeDetail(w, http.StatusUnauthorized, detailNoCredentials)
		return
	}

	id, err := parseExpenseID(r)
	if err != nil {
		writeDetail(w, http.StatusNotFound, detailNotFound)
		return
	}

	if err := h.expenseService.Delete(r.Context(), actor, id); err != nil {
		writeExpenseError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Report renders the weekly expense report as plain text. The week
// defaults to the current ISO week when the path omits it.
func (h *ExpenseHandler) Report(w http.ResponseWriter, r *http.Request) {
	if _, ok := userFromContext(r.Context()); !ok {
		writeDetail(w, http.StatusUnauthorized, detailNoCredentials)
		return
	}

	week := types.Today().ISOWeek()
	if raw := chi.URLParam(r, "week"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeDetail(w, http.StatusNotFound, detailNotFound)
			return
		}
		week = parsed
	}

	report, err := h.expenseService.WeeklyReport(r.Context(), chi.URLParam(r, "username"), week)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, "User matching query does not exist.")
			return
		}
		writeDetail(w, http.StatusInternalServerError, "Internal server error.")
		return
	}

	total := "None"
	average := "None"
	if report.Total != nil {
		total = report.Total.String()
	}
	if report.Average != nil {
		average = report.Average.String()
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprintf(w, "Weekly report:\n \tTotal: %s\n\tAverage: %s\n", total, average)
}

func (h *ExpenseHandler) UploadReceipt(w http.ResponseWriter, r *http.Request) {
	actor, ok := userFromContext(r.Context())
	if !ok {
		writeDetail(w, http.StatusUnauthorized, detailNoCredentials)
		return
	}
	if h.receipts == nil {
		writeDetail(w, http.StatusServiceUnavailable, "Receipt storage is not configured.")
		return
	}

	id, err := parseExpenseID(r)
	if err != nil {
		writeDetail(w, http.StatusNotFound, detailNotFound)
		return
	}

	if _, err := h.expenseService.Get(r.Context(), actor, id); err != nil {
		writeExpenseError(w, err)
		return
	}

	if err := r.ParseMultipartForm(maxReceiptBytes); err != nil {
		writeValidation(w, ValidationErrors{formFieldReceipt: {"Invalid multipart form."}})
		return
	}
	file, header, err := r.FormFile(formFieldReceipt)
	if err != nil {
		writeValidation(w, ValidationErrors{formFieldReceipt: {"This field is required."}})
		return
	}
	defer file.Close()

	data, err := readLimited(file, maxReceiptBytes)
	if err != nil {
		writeValidation(w, ValidationErrors{formFieldReceipt: {"Uploaded file too large."}})
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	key := receiptKey(id)

	if err := h.receipts.Put(r.Context(), key, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		writeDetail(w, http.StatusInternalServerError, "Internal server error.")
		return
	}
	if err := h.expenseService.SetReceipt(r.Context(), actor, id, key, contentType); err != nil {
		writeExpenseError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *ExpenseHandler) DownloadReceipt(w http.ResponseWriter, r *http.Request) {
	actor, ok := userFromContext(r.Context())
	if !ok {
		writeDetail(w, http.StatusUnauthorized, detailNoCredentials)
		return
	}
	if h.receipts == nil {
		writeDetail(w, http.StatusServiceUnavailable, "Receipt storage is not configured.")
		return
	}

	id, err := parseExpenseID(r)
	if err != nil {
		writeDetail(w, http.StatusNotFound, detailNotFound)
		return
	}

	expense, err := h.expenseService.Get(r.Context(), actor, id)
	if err != nil {
		writeExpenseError(w, err)
		return
	}
	if expense.ReceiptKey == "" {
		writeDetail(w, http.StatusNotFound, detailNotFound)
		return
	}

	object, err := h.receipts.Get(r.Context(), expense.ReceiptKey)
	if err != nil {
		writeDetail(w, http.StatusNotFound, detailNotFound)
		return
	}
	defer object.Close()

	contentType := expense.ReceiptContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	_, _ = io.Copy(w, object)
}

func (h *ExpenseHandler) DeleteReceipt(w http.ResponseWriter, r *http.Request) {
	actor, ok := userFromContext(r.Context())
	if !ok {
		writeDetail(w, http.StatusUnauthorized, detailNoCredentials)
		return
	}
	if h.receipts == nil {
		writeDetail(w, http.StatusServiceUnavailable, "Receipt storage is not configured.")
		return
	}

	id, err := parseExpenseID(r)
	if err != nil {
		writeDetail(w, http.StatusNotFound, detailNotFound)
		return
	}

	expense, err := h.expenseService.Get(r.Context(), actor, id)
	if err != nil {
		writeExpenseError(w, err)
		return
	}
	if expense.ReceiptKey == "" {
		writeDetail(w, http.StatusNotFound, detailNotFound)
		return
	}

	if err := h.receipts.Delete(r.Context(), expense.ReceiptKey); err != nil {
		writeDetail(w, http.StatusInternalServerError, "Internal server error.")
		return
	}
	if err := h.expenseService.SetReceipt(r.Context(), actor, id, "", ""); err != nil {
		writeExpenseError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ExpenseRequest is the JSON payload for expense create and update.
// Pointer fields distinguish absent from empty; amount is decoded raw
// because clients send it as either a number or a string.
type ExpenseRequest struct {
	User        *string          `json:"user"`
	Date        *string          `json:"date"`
	Time        *string          `json:"time"`
	Amount      *json.RawMessage `json:"amount"`
	Description *string          `json:"description"`
	Comment     *string          `json:"comment"`
}

// buildExpense validates the payload. With full semantics, missing
// fields take their defaults (today, the current time, empty strings)
// and amount is required; otherwise missing fields keep the values of
// base.
func buildExpense(req ExpenseRequest, full bool, base types.Expense) (types.Expense, ValidationErrors) {
	errs := ValidationErrors{}
	expense := base
	if full {
		expense = types.Expense{
			Date: types.Today(),
			Time: types.CurrentTime(),
		}
	}

	if req.Amount != nil {
		amount, message := parseAmountPayload(*req.Amount)
		if message != "" {
			errs.Add("amount", message)
		} else {
			expense.Amount = amount
		}
	} else if full {
		errs.Add("amount", "This field is required.")
	}

	if req.Date != nil {
		date, err := types.ParseDate(strings.TrimSpace(*req.Date))
		if err != nil {
			errs.Add("date", "Date has wrong format. Use one of these formats instead: YYYY-MM-DD.")
		} else {
			expense.Date = date
		}
	}

	if req.Time != nil {
		tod, err := types.ParseTimeOfDay(strings.TrimSpace(*req.Time))
		if err != nil {
			errs.Add("time", "Time has wrong format. Use one of these formats instead: hh:mm[:ss[.uuuuuu]].")
		} else {
			expense.Time = tod
		}
	}

	if req.Description != nil {
		expense.Description = *req.Description
	}
	if req.Comment != nil {
		expense.Comment = *req.Comment
	}

	if len(errs) > 0 {
		return types.Expense{}, errs
	}
	return expense, nil
}

func parseAmountPayload(raw json.RawMessage) (types.Amount, string) {
	text := strings.TrimSpace(string(raw))
	if strings.HasPrefix(text, `"`) {
		var unquoted string
		if err := json.Unmarshal(raw, &unquoted); err != nil {
			return types.Amount{}, "A valid number is required."
		}
		text = strings.TrimSpace(unquoted)
	}

	amount, err := types.ParseAmount(text)
	if err != nil {
		return types.Amount{}, "A valid number is required."
	}
	if amount.DecimalPlaces() > maxAmountDecimals {
		return types.Amount{}, fmt.Sprintf("Ensure that there are no more than %d decimal places.", maxAmountDecimals)
	}
	if amount.TotalDigits() > maxAmountDigits {
		return types.Amount{}, fmt.Sprintf("Ensure that there are no more than %d digits in total.", maxAmountDigits)
	}
	return amount, ""
}

func parseExpenseFilter(r *http.Request) (store.ExpenseFilter, ValidationErrors) {
	errs := ValidationErrors{}
	filter := store.ExpenseFilter{}
	query := r.URL.Query()

	parseDate := func(field string, target **types.Date) {
		raw := strings.TrimSpace(query.Get(field))
		if raw == "" {
			return
		}
		date, err := types.ParseDate(raw)
		if err != nil {
			errs.Add(field, "Enter a valid date.")
			return
		}
		*target = &date
	}
	parseTime := func(field string, target **types.TimeOfDay) {
		raw := strings.TrimSpace(query.Get(field))
		if raw == "" {
			return
		}
		tod, err := types.ParseTimeOfDay(raw)
		if err != nil {
			errs.Add(field, "Enter a valid time.")
			return
		}
		*target = &tod
	}
	parseAmount := func(field string, target **types.Amount) {
		raw := strings.TrimSpace(query.Get(field))
		if raw == "" {
			return
		}
		amount, err := types.ParseAmount(raw)
		if err != nil {
			errs.Add(field, "Enter a number.")
			return
		}
		*target = &amount
	}

	parseDate("date_0", &filter.DateFrom)
	parseDate("date_1", &filter.DateTo)
	parseTime("time_0", &filter.TimeFrom)
	parseTime("time_1", &filter.TimeTo)
	parseAmount("amount_0", &filter.AmountFrom)
	parseAmount("amount_1", &filter.AmountTo)

	if len(errs) > 0 {
		return store.ExpenseFilter{}, errs
	}
	return filter, nil
}

func parseExpenseID(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "expenseID")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, errors.New("invalid expense id")
	}
	return id, nil
}

func receiptKey(expenseID int64) string {
	return fmt.Sprintf("receipts/%d", expenseID)
}

func writeExpenseError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeDetail(w, http.StatusNotFound, detailNotFound)
	case errors.Is(err, services.ErrForbidden):
		writeDetail(w, http.StatusForbidden, detailForbidden)
	default:
		writeDetail(w, http.StatusInternalServerError, "Internal server error.")
	}
}

func readLimited(reader io.Reader, limit int64) ([]byte, error) {
	limited := io.LimitReader(reader, limit+1)
	data, err := io.ReadAll(limited)
	if err != nil {
		return nil, errors.New("failed to read upload")
	}
	if int64(len(data)) > limit {
		return nil, errors.New("uploaded file too large")
	}
	return data, nil
}
