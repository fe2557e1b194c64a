package services

import (
	"context"
	"errors"

	"github.com/expense-track/apiserver/internal/policy"
	"github.com/expense-track/apiserver/internal/store"
	"github.com/expense-track/apiserver/types"
)

// ErrForbidden is returned when the authorization policy denies an
// authenticated actor.
var ErrForbidden = errors.New("forbidden")

// ErrOwnerNotFound is returned when a superuser names a payload owner
// that does not exist.
var ErrOwnerNotFound = errors.New("expense owner does not exist")

// ExpenseRepository defines persistence operations for expenses.
type ExpenseRepository interface {
	List(ctx context.Context, ownerUsername string, filter store.ExpenseFilter) ([]types.Expense, error)
	ListByWeek(ctx context.Context, userID int64, week int) ([]types.Expense, error)
	Get(ctx context.Context, id int64) (types.Expense, error)
	Create(ctx context.Context, expense types.Expense) (types.Expense, error)
	Update(ctx context.Context, expense types.Expense) (types.Expense, error)
	Delete(ctx context.Context, id int64) error
	SetReceipt(ctx context.Context, id int64, key, contentType string) error
}

// ExpenseService encapsulates expense use-cases: authorization scoping,
// ownership assignment and the weekly report.
type ExpenseService struct {
	repo          ExpenseRepository
	users         UserRepository
	events        EventPublisher
	eventsChannel string
}

func NewExpenseService(repo ExpenseRepository, users UserRepository) *ExpenseService {
	return &ExpenseService{repo: repo, users: users}
}

// WithEvents enables best-effort change-event publishing on the given
// broker channel.
func (s *ExpenseService) WithEvents(publisher EventPublisher, channel string) *ExpenseService {
	s.events = publisher
	s.eventsChannel = channel
	return s
}

// List returns the expenses of the addressed collection. Superusers see
// every expense system-wide regardless of the addressed owner; everyone
// else may only address their own collection and sees only their own
// records. Range filters apply after the ownership scoping.
func (s *ExpenseService) List(ctx context.Context, actor types.User, ownerUsername string, filter store.ExpenseFilter) ([]types.Expense, error) {
	if !policy.OwnerOrAdminCollection(actor, ownerUsername) {
		return nil, ErrForbidden
	}
	if actor.IsSuperuser {
		return s.repo.List(ctx, "", filter)
	}
	return s.repo.List(ctx, actor.Username, filter)
}

// Get loads an expense and applies the object-level check. A missing
// record reports store.ErrNotFound before any policy evaluation.
func (s *ExpenseService) Get(ctx context.Context, actor types.User, id int64) (types.Expense, error) {
	expense, err := s.repo.Get(ctx, id)
	if err != nil {
		return types.Expense{}, err
	}
	if !policy.OwnerOrAdminObject(actor, expense) {
		return types.Expense{}, ErrForbidden
	}
	return expense, nil
}

// Create stores a new expense after collection-level authorization and
// ownership assignment. A superuser may name another owner via
// requestedOwner; a staff (non-superuser) actor is a silent no-op: no
// record is created and no error is reported (nil, nil); any other actor
// becomes the owner, requestedOwner is ignored.
func (s *ExpenseService) Create(ctx context.Context, actor types.User, ownerUsername, requestedOwner string, expense types.Expense) (*types.Expense, error) {
	if !policy.OwnerOrAdminCollection(actor, ownerUsername) {
		return nil, ErrForbidden
	}

	owner := actor
	switch {
	case actor.IsSuperuser:
		if requestedOwner != "" {
			named, err := s.users.GetByUsername(ctx, requestedOwner)
			if err != nil {
				if errors.Is(err, store.ErrNotFound) {
					return nil, ErrOwnerNotFound
				}
				return nil, err
			}
			owner = named
		}
	case actor.IsStaff:
		return nil, nil
	}

	expense.UserID = owner.ID
	expense.Username = owner.Username
	created, err := s.repo.Create(ctx, expense)
	if err != nil {
		return nil, err
	}
	created.Username = owner.Username

	s.publishExpenseEvent(ctx, ExpenseEventCreated, created)
	return &created, nil
}

// Update persists a modified expense after re-checking the object-level
// policy. The owner is immutable.
func (s *ExpenseService) Update(ctx context.Context, actor types.User, expense types.Expense) (types.Expense, error) {
	if !policy.OwnerOrAdminObject(actor, expense) {
		return types.Expense{}, ErrForbidden
	}
	updated, err := s.repo.Update(ctx, expense)
	if err != nil {
		return types.Expense{}, err
	}

	s.publishExpenseEvent(ctx, ExpenseEventUpdated, updated)
	return updated, nil
}

// Delete removes an expense after the object-level check.
func (s *ExpenseService) Delete(ctx context.Context, actor types.User, id int64) error {
	expense, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, expense.ID); err != nil {
		return err
	}

	s.publishExpenseEvent(ctx, ExpenseEventDeleted, expense)
	return nil
}

// SetReceipt records the object-storage location of the expense receipt
// after the object-level check. Empty values clear the attachment.
func (s *ExpenseService) SetReceipt(ctx context.Context, actor types.User, id int64, key, contentType string) error {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return err
	}
	return s.repo.SetReceipt(ctx, id, key, contentType)
}

// WeeklyReport aggregates the named user's expenses for the given ISO
// week number. The caller is responsible for route-level authentication;
// no further policy applies here.
func (s *ExpenseService) WeeklyReport(ctx context.Context, username string, week int) (Report, error) {
	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		return Report{}, err
	}

	expenses, err := s.repo.ListByWeek(ctx, user.ID, week)
	if err != nil {
		return Report{}, err
	}

	amounts := make([]types.Amount, 0, len(expenses))
	for _, expense := range expenses {
		amounts = append(amounts, expense.Amount)
	}

	report := Report{Week: week}
	if total, average, ok := Aggregate(amounts); ok {
		report.Total = &total
		report.Average = &average
	}
	return report, nil
}
