package services

import (
	"context"
	"encoding/json"
	"log"

	"github.com/expense-track/apiserver/types"
)

// Expense event actions published to the configured broker channel.
const (
	ExpenseEventCreated = "created"
	ExpenseEventUpdated = "updated"
	ExpenseEventDeleted = "deleted"
)

// EventPublisher sends a payload to the named broker channel.
// *mq.MQ satisfies this interface.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// ExpenseEvent is the payload published whenever an expense changes.
type ExpenseEvent struct {
	Action  string        `json:"action"`
	Expense types.Expense `json:"expense"`
}

// publishExpenseEvent emits a change event on a best-effort basis.
// Publishing never fails the originating request.
func (s *ExpenseService) publishExpenseEvent(ctx context.Context, action string, expense types.Expense) {
	if s.events == nil || s.eventsChannel == "" {
		return
	}

	payload, err := json.Marshal(ExpenseEvent{Action: action, Expense: expense})
	if err != nil {
		log.Printf("expense event marshal failed: %v", err)
		return
	}

	attrs := map[string]string{"action": action, "user": expense.Username}
	if _, err := s.events.Publish(ctx, s.eventsChannel, payload, attrs); err != nil {
		log.Printf("expense event publish failed: %v", err)
	}
}
