package handlers_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"

	"github.com/expense-track/apiserver/internal/handlers"
	"github.com/expense-track/apiserver/internal/services"
	"github.com/expense-track/apiserver/internal/testutil"
	"github.com/expense-track/apiserver/types"
)

type testServer struct {
	router   *chi.Mux
	users    *testutil.UserRepo
	expenses *testutil.ExpenseRepo
	tokens   *services.TokenService
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	users := testutil.NewUserRepo()
	expenses := testutil.NewExpenseRepo(users)
	tokenRepo := testutil.NewTokenRepo(users)

	userService := services.NewUserService(users)
	tokenService := services.NewTokenService(tokenRepo)
	expenseService := services.NewExpenseService(expenses, users)

	authMiddleware := handlers.RequireAuth(tokenService)

	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.NotFound(handlers.NotFound)
	handlers.AuthRouter(router, userService, tokenService)
	router.Route("/users", func(r chi.Router) {
		r.Use(authMiddleware)
		handlers.UserRouter(r, userService, tokenService)
		r.Route("/{username}/expenses", func(r chi.Router) {
			handlers.ExpenseRouter(r, expenseService, nil)
		})
	})

	return &testServer{
		router:   router,
		users:    users,
		expenses: expenses,
		tokens:   tokenService,
	}
}

func (ts *testServer) addUser(t *testing.T, username, password string, staff, super bool) types.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	user, err := ts.users.Create(t.Context(), types.User{
		Username:     username,
		Email:        username + "@bar.com",
		PasswordHash: string(hashed),
		IsStaff:      staff,
		IsSuperuser:  super,
	})
	if err != nil {
		t.Fatal(err)
	}
	return user
}

func (ts *testServer) tokenFor(t *testing.T, user types.User) string {
	t.Helper()
	key, err := ts.tokens.Issue(t.Context(), user)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func (ts *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}
	recorder := httptest.NewRecorder()
	ts.router.ServeHTTP(recorder, req)
	return recorder
}

func decodeMap(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", recorder.Body.String(), err)
	}
	return body
}

func decodeList(t *testing.T, recorder *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var body []map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", recorder.Body.String(), err)
	}
	return body
}

func assertDetail(t *testing.T, recorder *httptest.ResponseRecorder, status int, detail string) {
	t.Helper()
	if recorder.Code != status {
		t.Fatalf("status = %d, want %d (body %s)", recorder.Code, status, recorder.Body.String())
	}
	body := decodeMap(t, recorder)
	if body["detail"] != detail {
		t.Errorf("detail = %q, want %q", body["detail"], detail)
	}
}

func assertFieldError(t *testing.T, recorder *httptest.ResponseRecorder, field, message string) {
	t.Helper()
	if recorder.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 (body %s)", recorder.Code, recorder.Body.String())
	}
	var body map[string][]string
	if err := json.Unmarshal(recorder.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %q: %v", recorder.Body.String(), err)
	}
	messages, ok := body[field]
	if !ok {
		t.Fatalf("missing %q key in %v", field, body)
	}
	for _, m := range messages {
		if m == message {
			return
		}
	}
	t.Errorf("%s = %v, want %q", field, messages, message)
}

func TestRegister(t *testing.T) {
	ts := newTestServer(t)

	recorder := ts.do(t, http.MethodPost, "/api-register", "", map[string]string{
		"username":         "foobar",
		"email":            "foo@bar.com",
		"password":         "foobar1",
		"confirm_password": "foobar1",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	body := decodeMap(t, recorder)
	if body["username"] != "foobar" || body["email"] != "foo@bar.com" {
		t.Errorf("body = %v", body)
	}
	if _, ok := body["password"]; ok {
		t.Error("password leaked in response")
	}

	if _, err := ts.users.GetByUsername(t.Context(), "foobar"); err != nil {
		t.Errorf("user not stored: %v", err)
	}
}

func TestRegisterValidation(t *testing.T) {
	ts := newTestServer(t)
	ts.addUser(t, "taken", "pw", false, false)

	t.Run("password mismatch", func(t *testing.T) {
		recorder := ts.do(t, http.MethodPost, "/api-register", "", map[string]string{
			"username":         "foobar",
			"email":            "foo@bar.com",
			"password":         "foobar1",
			"confirm_password": "other",
		})
		assertFieldError(t, recorder, "non_field_errors", "Passwords must match.")
	})

	t.Run("missing fields", func(t *testing.T) {
		recorder := ts.do(t, http.MethodPost, "/api-register", "", map[string]string{})
		assertFieldError(t, recorder, "username", "This field is required.")
		assertFieldError(t, recorder, "email", "This field is required.")
		assertFieldError(t, recorder, "password", "This field is required.")
	})

	t.Run("duplicate username", func(t *testing.T) {
		recorder := ts.do(t, http.MethodPost, "/api-register", "", map[string]string{
			"username":         "taken",
			"email":            "new@bar.com",
			"password":         "pw1",
			"confirm_password": "pw1",
		})
		assertFieldError(t, recorder, "username", "A user with that username already exists.")
	})

	t.Run("duplicate email", func(t *testing.T) {
		recorder := ts.do(t, http.MethodPost, "/api-register", "", map[string]string{
			"username":         "fresh",
			"email":            "taken@bar.com",
			"password":         "pw1",
			"confirm_password": "pw1",
		})
		assertFieldError(t, recorder, "email", "This field must be unique.")
	})

	t.Run("invalid email", func(t *testing.T) {
		recorder := ts.do(t, http.MethodPost, "/api-register", "", map[string]string{
			"username":         "fresh",
			"email":            "not-an-email",
			"password":         "pw1",
			"confirm_password": "pw1",
		})
		assertFieldError(t, recorder, "email", "Enter a valid email address.")
	})
}

func TestLogin(t *testing.T) {
	ts := newTestServer(t)
	user := ts.addUser(t, "foobar", "foobar1", false, false)

	recorder := ts.do(t, http.MethodPost, "/api-auth", "", map[string]string{
		"username": "foobar",
		"password": "foobar1",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	body := decodeMap(t, recorder)
	key, _ := body["token"].(string)
	if key == "" {
		t.Fatalf("missing token in %v", body)
	}

	// The token works against a protected endpoint.
	listed := ts.do(t, http.MethodGet, "/users/foobar/expenses/", key, nil)
	if listed.Code != http.StatusOK {
		t.Errorf("authenticated request status = %d", listed.Code)
	}

	// Issuing again returns the same key.
	again := ts.tokenFor(t, user)
	if again != key {
		t.Errorf("second issue = %q, want %q", again, key)
	}
}

func TestLoginBadCredentials(t *testing.T) {
	ts := newTestServer(t)
	ts.addUser(t, "foobar", "foobar1", false, false)

	for name, payload := range map[string]map[string]string{
		"wrong password": {"username": "foobar", "password": "nope"},
		"unknown user":   {"username": "ghost", "password": "foobar1"},
	} {
		t.Run(name, func(t *testing.T) {
			recorder := ts.do(t, http.MethodPost, "/api-auth", "", payload)
			assertFieldError(t, recorder, "non_field_errors", "Unable to log in with provided credentials.")
		})
	}
}

func TestAuthenticationRequired(t *testing.T) {
	ts := newTestServer(t)
	ts.addUser(t, "foobar", "foobar1", false, false)

	recorder := ts.do(t, http.MethodGet, "/users/foobar/expenses/", "", nil)
	assertDetail(t, recorder, http.StatusUnauthorized, "Authentication credentials were not provided.")

	recorder = ts.do(t, http.MethodGet, "/users/foobar/expenses/", "bogus-token", nil)
	assertDetail(t, recorder, http.StatusUnauthorized, "Invalid token.")
}

func TestCreateExpense(t *testing.T) {
	ts := newTestServer(t)
	user := ts.addUser(t, "foobar", "pw", false, false)
	token := ts.tokenFor(t, user)

	recorder := ts.do(t, http.MethodPost, "/users/foobar/expenses/", token, map[string]any{
		"date":        "2021-03-15",
		"time":        "12:30:00",
		"amount":      666,
		"description": "lunch",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	body := decodeMap(t, recorder)
	want := map[string]any{
		"pk":          float64(1),
		"user":        "foobar",
		"date":        "2021-03-15",
		"time":        "12:30:00",
		"amount":      "666.00",
		"description": "lunch",
		"comment":     "",
	}
	for key, value := range want {
		if body[key] != value {
			t.Errorf("%s = %v, want %v", key, body[key], value)
		}
	}
	if len(body) != len(want) {
		t.Errorf("body has extra keys: %v", body)
	}
}

func TestCreateExpenseDefaults(t *testing.T) {
	ts := newTestServer(t)
	user := ts.addUser(t, "foobar", "pw", false, false)
	token := ts.tokenFor(t, user)

	// Only amount is required; date and time fall back to now.
	recorder := ts.do(t, http.MethodPost, "/users/foobar/expenses/", token, map[string]any{
		"amount": "42.50",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	body := decodeMap(t, recorder)
	if body["date"] != types.Today().String() {
		t.Errorf("date = %v, want today", body["date"])
	}
	if body["amount"] != "42.50" {
		t.Errorf("amount = %v", body["amount"])
	}
}

func TestCreateExpenseValidation(t *testing.T) {
	ts := newTestServer(t)
	user := ts.addUser(t, "foobar", "pw", false, false)
	token := ts.tokenFor(t, user)

	cases := []struct {
		name    string
		payload map[string]any
		field   string
		message string
	}{
		{"missing amount", map[string]any{"description": "x"}, "amount", "This field is required."},
		{"too many decimals", map[string]any{"amount": "10.005"}, "amount", "Ensure that there are no more than 2 decimal places."},
		{"too many digits", map[string]any{"amount": "12345678901.00"}, "amount", "Ensure that there are no more than 10 digits in total."},
		{"garbage amount", map[string]any{"amount": "abc"}, "amount", "A valid number is required."},
		{"bad date", map[string]any{"amount": "1.00", "date": "15/03/2021"}, "date", "Date has wrong format. Use one of these formats instead: YYYY-MM-DD."},
		{"bad time", map[string]any{"amount": "1.00", "time": "noonish"}, "time", "Time has wrong format. Use one of these formats instead: hh:mm[:ss[.uuuuuu]]."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recorder := ts.do(t, http.MethodPost, "/users/foobar/expenses/", token, tc.payload)
			assertFieldError(t, recorder, tc.field, tc.message)
		})
	}

	if ts.expenses.Count() != 0 {
		t.Errorf("invalid payloads stored %d records", ts.expenses.Count())
	}
}

func TestStaffCreateIsSilentNoOp(t *testing.T) {
	ts := newTestServer(t)
	staffer := ts.addUser(t, "staffer", "pw", true, false)
	token := ts.tokenFor(t, staffer)

	recorder := ts.do(t, http.MethodPost, "/users/staffer/expenses/", token, map[string]any{
		"amount": "100.00",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	body := decodeMap(t, recorder)
	if _, ok := body["pk"]; ok {
		t.Errorf("staff echo carries pk: %v", body)
	}
	if _, ok := body["user"]; ok {
		t.Errorf("staff echo carries user: %v", body)
	}
	if body["amount"] != "100.00" {
		t.Errorf("amount = %v", body["amount"])
	}
	if ts.expenses.Count() != 0 {
		t.Error("staff create stored a record")
	}
}

func TestSuperuserAssignsOwner(t *testing.T) {
	ts := newTestServer(t)
	ts.addUser(t, "foobar", "pw", false, false)
	admin := ts.addUser(t, "root", "pw", false, true)
	token := ts.tokenFor(t, admin)

	recorder := ts.do(t, http.MethodPost, "/users/root/expenses/", token, map[string]any{
		"amount": "5.00",
		"user":   "foobar",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	body := decodeMap(t, recorder)
	if body["user"] != "foobar" {
		t.Errorf("user = %v, want foobar", body["user"])
	}

	recorder = ts.do(t, http.MethodPost, "/users/root/expenses/", token, map[string]any{
		"amount": "5.00",
		"user":   "nobody",
	})
	assertFieldError(t, recorder, "user", "User matching query does not exist.")
}

func TestExpenseAccessControl(t *testing.T) {
	ts := newTestServer(t)
	owner := ts.addUser(t, "foobar", "pw", false, false)
	other := ts.addUser(t, "foobar2", "pw", false, false)
	admin := ts.addUser(t, "root", "pw", false, true)

	ownerToken := ts.tokenFor(t, owner)
	otherToken := ts.tokenFor(t, other)
	adminToken := ts.tokenFor(t, admin)

	created := ts.do(t, http.MethodPost, "/users/foobar/expenses/", ownerToken, map[string]any{"amount": "666.00"})
	if created.Code != http.StatusCreated {
		t.Fatalf("setup create failed: %s", created.Body.String())
	}

	// Foreign collection is forbidden.
	recorder := ts.do(t, http.MethodGet, "/users/foobar/expenses/", otherToken, nil)
	assertDetail(t, recorder, http.StatusForbidden, "You do not have permission to perform this action.")

	// Foreign object is forbidden, missing object is 404.
	recorder = ts.do(t, http.MethodGet, "/users/foobar/expenses/1/", otherToken, nil)
	assertDetail(t, recorder, http.StatusForbidden, "You do not have permission to perform this action.")
	recorder = ts.do(t, http.MethodGet, "/users/foobar/expenses/99/", ownerToken, nil)
	assertDetail(t, recorder, http.StatusNotFound, "Not found.")

	// Superuser sees everything regardless of the addressed collection.
	recorder = ts.do(t, http.MethodGet, "/users/foobar2/expenses/", adminToken, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("superuser list status = %d", recorder.Code)
	}
	if listed := decodeList(t, recorder); len(listed) != 1 {
		t.Errorf("superuser sees %d records, want 1", len(listed))
	}
}

func TestUpdateExpense(t *testing.T) {
	ts := newTestServer(t)
	user := ts.addUser(t, "foobar", "pw", false, false)
	token := ts.tokenFor(t, user)

	created := ts.do(t, http.MethodPost, "/users/foobar/expenses/", token, map[string]any{
		"date":        "2021-03-15",
		"time":        "12:30:00",
		"amount":      "666.00",
		"description": "lunch",
		"comment":     "team",
	})
	if created.Code != http.StatusCreated {
		t.Fatalf("setup create failed: %s", created.Body.String())
	}

	// PATCH merges into the stored record.
	recorder := ts.do(t, http.MethodPatch, "/users/foobar/expenses/1/", token, map[string]any{
		"amount": "700.00",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	body := decodeMap(t, recorder)
	if body["amount"] != "700.00" || body["description"] != "lunch" || body["date"] != "2021-03-15" {
		t.Errorf("patched body = %v", body)
	}

	// PUT replaces and re-applies defaults.
	recorder = ts.do(t, http.MethodPut, "/users/foobar/expenses/1/", token, map[string]any{
		"amount": "10.00",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("put status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	body = decodeMap(t, recorder)
	if body["description"] != "" || body["comment"] != "" {
		t.Errorf("put did not reset fields: %v", body)
	}
	if body["date"] != types.Today().String() {
		t.Errorf("put date = %v, want today", body["date"])
	}

	// PUT without amount fails.
	recorder = ts.do(t, http.MethodPut, "/users/foobar/expenses/1/", token, map[string]any{
		"description": "no amount",
	})
	assertFieldError(t, recorder, "amount", "This field is required.")
}

func TestDeleteExpense(t *testing.T) {
	ts := newTestServer(t)
	user := ts.addUser(t, "foobar", "pw", false, false)
	token := ts.tokenFor(t, user)

	created := ts.do(t, http.MethodPost, "/users/foobar/expenses/", token, map[string]any{"amount": "1.00"})
	if created.Code != http.StatusCreated {
		t.Fatalf("setup create failed: %s", created.Body.String())
	}

	recorder := ts.do(t, http.MethodDelete, "/users/foobar/expenses/1/", token, nil)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", recorder.Code)
	}
	recorder = ts.do(t, http.MethodDelete, "/users/foobar/expenses/1/", token, nil)
	assertDetail(t, recorder, http.StatusNotFound, "Not found.")
}

func TestListExpenseFilters(t *testing.T) {
	ts := newTestServer(t)
	user := ts.addUser(t, "foobar", "pw", false, false)
	token := ts.tokenFor(t, user)

	for _, payload := range []map[string]any{
		{"amount": "100.00", "date": "2021-03-15", "time": "08:00:00"},
		{"amount": "200.00", "date": "2021-03-16", "time": "12:00:00"},
		{"amount": "300.00", "date": "2021-03-17", "time": "20:00:00"},
	} {
		recorder := ts.do(t, http.MethodPost, "/users/foobar/expenses/", token, payload)
		if recorder.Code != http.StatusCreated {
			t.Fatalf("setup create failed: %s", recorder.Body.String())
		}
	}

	cases := []struct {
		name  string
		query string
		want  []string
	}{
		{"date range", "?date_0=2021-03-16&date_1=2021-03-17", []string{"200.00", "300.00"}},
		{"amount range inclusive", "?amount_0=100&amount_1=200", []string{"100.00", "200.00"}},
		{"time range", "?time_0=10:00:00&time_1=13:00:00", []string{"200.00"}},
		{"no filter", "", []string{"100.00", "200.00", "300.00"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			recorder := ts.do(t, http.MethodGet, "/users/foobar/expenses/"+tc.query, token, nil)
			if recorder.Code != http.StatusOK {
				t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
			}
			listed := decodeList(t, recorder)
			var got []string
			for _, item := range listed {
				got = append(got, item["amount"].(string))
			}
			if len(got) != len(tc.want) {
				t.Fatalf("amounts = %v, want %v", got, tc.want)
			}
			for i := range tc.want {
				if got[i] != tc.want[i] {
					t.Errorf("amounts = %v, want %v", got, tc.want)
				}
			}
		})
	}

	t.Run("invalid bound", func(t *testing.T) {
		recorder := ts.do(t, http.MethodGet, "/users/foobar/expenses/?date_0=bogus", token, nil)
		assertFieldError(t, recorder, "date_0", "Enter a valid date.")
	})
}

func TestWeeklyReportEndpoint(t *testing.T) {
	ts := newTestServer(t)
	user := ts.addUser(t, "foobar", "pw", false, false)
	token := ts.tokenFor(t, user)

	today := types.Today()
	for _, amount := range []string{"300.00", "100.00"} {
		recorder := ts.do(t, http.MethodPost, "/users/foobar/expenses/", token, map[string]any{
			"amount": amount,
			"date":   today.String(),
		})
		if recorder.Code != http.StatusCreated {
			t.Fatalf("setup create failed: %s", recorder.Body.String())
		}
	}

	recorder := ts.do(t, http.MethodGet, "/users/foobar/expenses/report/", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	want := "Weekly report:\n \tTotal: 400.00\n\tAverage: 200.00\n"
	if recorder.Body.String() != want {
		t.Errorf("report = %q, want %q", recorder.Body.String(), want)
	}
	if contentType := recorder.Header().Get("Content-Type"); !strings.HasPrefix(contentType, "text/plain") {
		t.Errorf("content type = %q", contentType)
	}
}

func TestWeeklyReportEmptyWeek(t *testing.T) {
	ts := newTestServer(t)
	user := ts.addUser(t, "foobar", "pw", false, false)
	token := ts.tokenFor(t, user)

	week := types.Today().ISOWeek()%52 + 1
	recorder := ts.do(t, http.MethodGet, "/users/foobar/expenses/report/"+strconv.Itoa(week)+"/", token, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	want := "Weekly report:\n \tTotal: None\n\tAverage: None\n"
	if recorder.Body.String() != want {
		t.Errorf("report = %q, want %q", recorder.Body.String(), want)
	}
}

func TestWeeklyReportUnknownUser(t *testing.T) {
	ts := newTestServer(t)
	user := ts.addUser(t, "foobar", "pw", false, false)
	token := ts.tokenFor(t, user)

	recorder := ts.do(t, http.MethodGet, "/users/ghost/expenses/report/", token, nil)
	if recorder.Code != http.StatusNotFound {
		t.Fatalf("status = %d", recorder.Code)
	}
	if recorder.Body.String() != "User matching query does not exist." {
		t.Errorf("body = %q", recorder.Body.String())
	}
}

func TestReceiptStorageDisabled(t *testing.T) {
	ts := newTestServer(t)
	user := ts.addUser(t, "foobar", "pw", false, false)
	token := ts.tokenFor(t, user)

	created := ts.do(t, http.MethodPost, "/users/foobar/expenses/", token, map[string]any{"amount": "1.00"})
	if created.Code != http.StatusCreated {
		t.Fatalf("setup create failed: %s", created.Body.String())
	}

	recorder := ts.do(t, http.MethodGet, "/users/foobar/expenses/1/receipt/", token, nil)
	assertDetail(t, recorder, http.StatusServiceUnavailable, "Receipt storage is not configured.")
}

func TestUserList(t *testing.T) {
	ts := newTestServer(t)
	regular := ts.addUser(t, "foobar", "pw", false, false)
	staffer := ts.addUser(t, "staffer", "pw", true, false)

	// Non-managers get an empty listing, not Forbidden.
	recorder := ts.do(t, http.MethodGet, "/users/", ts.tokenFor(t, regular), nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	if listed := decodeList(t, recorder); len(listed) != 0 {
		t.Errorf("non-manager sees %d users", len(listed))
	}

	recorder = ts.do(t, http.MethodGet, "/users/", ts.tokenFor(t, staffer), nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("status = %d", recorder.Code)
	}
	listed := decodeList(t, recorder)
	if len(listed) != 2 {
		t.Fatalf("manager sees %d users, want 2", len(listed))
	}
	for _, item := range listed {
		if len(item) != 2 {
			t.Errorf("user payload has extra keys: %v", item)
		}
	}
}

func TestUserAdminGating(t *testing.T) {
	ts := newTestServer(t)
	regular := ts.addUser(t, "foobar", "pw", false, false)
	staffer := ts.addUser(t, "staffer", "pw", true, false)
	regularToken := ts.tokenFor(t, regular)
	stafferToken := ts.tokenFor(t, staffer)

	recorder := ts.do(t, http.MethodGet, "/users/foobar/", regularToken, nil)
	assertDetail(t, recorder, http.StatusForbidden, "You do not have permission to perform this action.")

	recorder = ts.do(t, http.MethodPost, "/users/", regularToken, map[string]string{
		"username": "x", "email": "x@bar.com", "password": "pw", "confirm_password": "pw",
	})
	assertDetail(t, recorder, http.StatusForbidden, "You do not have permission to perform this action.")

	recorder = ts.do(t, http.MethodGet, "/users/foobar/", stafferToken, nil)
	if recorder.Code != http.StatusOK {
		t.Fatalf("manager get status = %d", recorder.Code)
	}
	body := decodeMap(t, recorder)
	if body["username"] != "foobar" || body["email"] != "foobar@bar.com" {
		t.Errorf("body = %v", body)
	}
}

func TestUserCreateWithRole(t *testing.T) {
	ts := newTestServer(t)
	staffer := ts.addUser(t, "staffer", "pw", true, false)
	admin := ts.addUser(t, "root", "pw", false, true)

	// A superuser can grant roles.
	recorder := ts.do(t, http.MethodPost, "/users/", ts.tokenFor(t, admin), map[string]string{
		"username":         "newstaff",
		"email":            "newstaff@bar.com",
		"password":         "pw1",
		"confirm_password": "pw1",
		"user_type":        "is_staff",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	created, err := ts.users.GetByUsername(t.Context(), "newstaff")
	if err != nil {
		t.Fatal(err)
	}
	if !created.IsStaff {
		t.Error("user_type is_staff not applied by superuser")
	}

	// A staff manager's user_type request is ignored but still validated.
	recorder = ts.do(t, http.MethodPost, "/users/", ts.tokenFor(t, staffer), map[string]string{
		"username":         "plain",
		"email":            "plain@bar.com",
		"password":         "pw1",
		"confirm_password": "pw1",
		"user_type":        "is_superuser",
	})
	if recorder.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	created, err = ts.users.GetByUsername(t.Context(), "plain")
	if err != nil {
		t.Fatal(err)
	}
	if created.IsSuperuser || created.IsStaff {
		t.Error("staff manager granted a role")
	}

	recorder = ts.do(t, http.MethodPost, "/users/", ts.tokenFor(t, admin), map[string]string{
		"username":         "broken",
		"email":            "broken@bar.com",
		"password":         "pw1",
		"confirm_password": "pw1",
		"user_type":        "is_wizard",
	})
	assertFieldError(t, recorder, "non_field_errors", "Not valid user type.")
}

func TestUserUpdateAndDelete(t *testing.T) {
	ts := newTestServer(t)
	target := ts.addUser(t, "foobar", "pw", false, false)
	admin := ts.addUser(t, "root", "pw", false, true)
	adminToken := ts.tokenFor(t, admin)

	recorder := ts.do(t, http.MethodPatch, "/users/foobar/", adminToken, map[string]string{
		"email":     "changed@bar.com",
		"user_type": "is_staff",
	})
	if recorder.Code != http.StatusOK {
		t.Fatalf("patch status = %d, body %s", recorder.Code, recorder.Body.String())
	}
	updated, err := ts.users.GetByID(t.Context(), target.ID)
	if err != nil {
		t.Fatal(err)
	}
	if updated.Email != "changed@bar.com" || !updated.IsStaff {
		t.Errorf("updated = %+v", updated)
	}

	recorder = ts.do(t, http.MethodPatch, "/users/foobar/", adminToken, map[string]string{
		"password":         "newpw",
		"confirm_password": "other",
	})
	assertFieldError(t, recorder, "non_field_errors", "Passwords must match.")

	recorder = ts.do(t, http.MethodDelete, "/users/foobar/", adminToken, nil)
	if recorder.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", recorder.Code)
	}
	recorder = ts.do(t, http.MethodGet, "/users/foobar/", adminToken, nil)
	assertDetail(t, recorder, http.StatusNotFound, "Not found.")
}

func TestUnmatchedRoute(t *testing.T) {
	ts := newTestServer(t)
	recorder := ts.do(t, http.MethodGet, "/nope/", "", nil)
	assertDetail(t, recorder, http.StatusNotFound, "Not found.")
}

