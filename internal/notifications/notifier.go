package notifications

import (
	"context"

	"github.com/geocoder89/expenseflow/internal/domain/expense"
)

// DecisionInput describes an approve or reject decision to tell the claim owner about.
type DecisionInput struct {
	ExpenseID  string
	OwnerEmail string
	OwnerName  string
	Status     expense.Status
	Amount     int64
	Reason     string
}

type Notifier interface {
	SendDecision(ctx context.Context, input DecisionInput) error
}
