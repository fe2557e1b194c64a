// Package testutil provides in-memory repository fakes for package tests.
package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/expense-track/apiserver/internal/store"
	"github.com/expense-track/apiserver/types"
)

// UserRepo is an in-memory services.UserRepository.
type UserRepo struct {
	mu     sync.Mutex
	nextID int64
	users  map[int64]types.User
}

func NewUserRepo() *UserRepo {
	return &UserRepo{nextID: 1, users: make(map[int64]types.User)}
}

func (r *UserRepo) GetByID(_ context.Context, id int64) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user, ok := r.users[id]
	if !ok {
		return types.User{}, store.ErrNotFound
	}
	return user, nil
}

func (r *UserRepo) GetByUsername(_ context.Context, username string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Username == username {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *UserRepo) GetByEmail(_ context.Context, email string) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, user := range r.users {
		if user.Email == email {
			return user, nil
		}
	}
	return types.User{}, store.ErrNotFound
}

func (r *UserRepo) List(_ context.Context) ([]types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	users := make([]types.User, 0, len(r.users))
	for _, user := range r.users {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	return users, nil
}

func (r *UserRepo) Create(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	user.ID = r.nextID
	r.nextID++
	r.users[user.ID] = user
	return user, nil
}

func (r *UserRepo) Update(_ context.Context, user types.User) (types.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[user.ID]; !ok {
		return types.User{}, store.ErrNotFound
	}
	r.users[user.ID] = user
	return user, nil
}

func (r *UserRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.users[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.users, id)
	return nil
}

// ExpenseRepo is an in-memory services.ExpenseRepository. It reproduces
// the store's `(date, amount)` ordering and inclusive range filtering.
type ExpenseRepo struct {
	mu       sync.Mutex
	nextID   int64
	expenses map[int64]types.Expense
	users    *UserRepo
}

func NewExpenseRepo(users *UserRepo) *ExpenseRepo {
	return &ExpenseRepo{nextID: 1, expenses: make(map[int64]types.Expense), users: users}
}

func (r *ExpenseRepo) ownerUsername(userID int64) string {
	if r.users == nil {
		return ""
	}
	if user, err := r.users.GetByID(context.Background(), userID); err == nil {
		return user.Username
	}
	return ""
}

func matches(expense types.Expense, filter store.ExpenseFilter) bool {
	if filter.DateFrom != nil && expense.Date.Before(*filter.DateFrom) {
		return false
	}
	if filter.DateTo != nil && expense.Date.After(*filter.DateTo) {
		return false
	}
	if filter.TimeFrom != nil && expense.Time.Seconds() < filter.TimeFrom.Seconds() {
		return false
	}
	if filter.TimeTo != nil && expense.Time.Seconds() > filter.TimeTo.Seconds() {
		return false
	}
	if filter.AmountFrom != nil && expense.Amount.Cmp(filter.AmountFrom.Decimal) < 0 {
		return false
	}
	if filter.AmountTo != nil && expense.Amount.Cmp(filter.AmountTo.Decimal) > 0 {
		return false
	}
	return true
}

func sortExpenses(expenses []types.Expense) {
	sort.Slice(expenses, func(i, j int) bool {
		if expenses[i].Date.String() != expenses[j].Date.String() {
			return expenses[i].Date.String() < expenses[j].Date.String()
		}
		if cmp := expenses[i].Amount.Cmp(expenses[j].Amount.Decimal); cmp != 0 {
			return cmp < 0
		}
		return expenses[i].ID < expenses[j].ID
	})
}

func (r *ExpenseRepo) List(_ context.Context, ownerUsername string, filter store.ExpenseFilter) ([]types.Expense, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]types.Expense, 0)
	for _, expense := range r.expenses {
		expense.Username = r.ownerUsername(expense.UserID)
		if ownerUsername != "" && expense.Username != ownerUsername {
			continue
		}
		if !matches(expense, filter) {
			continue
		}
		result = append(result, expense)
	}
	sortExpenses(result)
	return result, nil
}

func (r *ExpenseRepo) ListByWeek(_ context.Context, userID int64, week int) ([]types.Expense, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	result := make([]types.Expense, 0)
	for _, expense := range r.expenses {
		if expense.UserID != userID || expense.Date.ISOWeek() != week {
			continue
		}
		expense.Username = r.ownerUsername(expense.UserID)
		result = append(result, expense)
	}
	sortExpenses(result)
	return result, nil
}

func (r *ExpenseRepo) Get(_ context.Context, id int64) (types.Expense, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	expense, ok := r.expenses[id]
	if !ok {
		return types.Expense{}, store.ErrNotFound
	}
	expense.Username = r.ownerUsername(expense.UserID)
	return expense, nil
}

func (r *ExpenseRepo) Create(_ context.Context, expense types.Expense) (types.Expense, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	expense.ID = r.nextID
	r.nextID++
	r.expenses[expense.ID] = expense
	return expense, nil
}

func (r *ExpenseRepo) Update(_ context.Context, expense types.Expense) (types.Expense, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.expenses[expense.ID]; !ok {
		return types.Expense{}, store.ErrNotFound
	}
	r.expenses[expense.ID] = expense
	return expense, nil
}

func (r *ExpenseRepo) Delete(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.expenses[id]; !ok {
		return store.ErrNotFound
	}
	delete(r.expenses, id)
	return nil
}

func (r *ExpenseRepo) SetReceipt(_ context.Context, id int64, key, contentType string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	expense, ok := r.expenses[id]
	if !ok {
		return store.ErrNotFound
	}
	expense.ReceiptKey = key
	expense.ReceiptContentType = contentType
	r.expenses[id] = expense
	return nil
}

// Count reports how many expense records exist.
func (r *ExpenseRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.expenses)
}

// TokenRepo is an in-memory services.TokenRepository.
type TokenRepo struct {
	mu     sync.Mutex
	nextID int
	keys   map[int64]string
	users  *UserRepo
}

func NewTokenRepo(users *UserRepo) *TokenRepo {
	return &TokenRepo{keys: make(map[int64]string), users: users}
}

func (r *TokenRepo) GetOrCreate(_ context.Context, userID int64) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if key, ok := r.keys[userID]; ok {
		return key, nil
	}
	r.nextID++
	key := fmt.Sprintf("%040d", r.nextID)
	r.keys[userID] = key
	return key, nil
}

func (r *TokenRepo) GetUserByKey(ctx context.Context, key string) (types.User, error) {
	r.mu.Lock()
	var userID int64 = -1
	for id, stored := range r.keys {
		if stored == key {
			userID = id
			break
		}
	}
	r.mu.Unlock()
	if userID < 0 {
		return types.User{}, store.ErrNotFound
	}
	return r.users.GetByID(ctx, userID)
}

func (r *TokenRepo) DeleteForUser(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.keys, userID)
	return nil
}
