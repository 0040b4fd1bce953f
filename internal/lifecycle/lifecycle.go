// Package lifecycle owns every status change of an expense claim. Functions
// here are pure: they take the current record and return the next one, and a
// failed call never hands back a modified record.
package lifecycle

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/geocoder89/expenseflow/internal/authz"
	"github.com/geocoder89/expenseflow/internal/domain/expense"
	"github.com/geocoder89/expenseflow/internal/domain/user"
)

type Action string

const (
	ActionCreate   Action = "create"
	ActionResubmit Action = "resubmit"
	ActionApprove  Action = "approve"
	ActionReject   Action = "reject"
)

var ErrUnknownAction = errors.New("unknown lifecycle action")

// Actor is the authenticated user invoking a transition.
type Actor struct {
	UserID string
	Role   user.Role
}

func ActorFor(u user.User) Actor {
	return Actor{UserID: u.ID, Role: u.Role}
}

// Payload carries action-specific input; only reject uses it today.
type Payload struct {
	Reason string
}

type rule struct {
	from []expense.Status
	gate authz.Action
}

var rules = map[Action]rule{
	ActionResubmit: {from: []expense.Status{expense.StatusDraft, expense.StatusRejected}, gate: authz.EditOwnExpense},
	ActionApprove:  {from: []expense.Status{expense.StatusPending}, gate: authz.ApproveReject},
	ActionReject:   {from: []expense.Status{expense.StatusPending}, gate: authz.ApproveReject},
}

// Allowed reports whether action is legal from status, ignoring who asks.
func Allowed(from expense.Status, action Action) bool {
	r, ok := rules[action]
	if !ok {
		return false
	}
	for _, s := range r.from {
		if s == from {
			return true
		}
	}
	return false
}

// Editable reports whether a record in status s may be edited and resubmitted.
func Editable(s expense.Status) bool {
	return Allowed(s, ActionResubmit)
}

// CanEdit reports whether actor may edit e right now.
func CanEdit(actor Actor, e expense.Expense) bool {
	return authz.Allowed(actor.Role, authz.EditOwnExpense) &&
		e.OwnerID == actor.UserID &&
		Editable(e.Status)
}

// Create builds a new pending claim owned by actor.
func Create(actor Actor, id string, form expense.Form, receipt string, now time.Time) (expense.Expense, error) {
	if !authz.Allowed(actor.Role, authz.SubmitExpense) {
		return expense.Expense{}, fmt.Errorf("%s: %w", ActionCreate, expense.ErrForbidden)
	}

	if err := expense.ValidateForm(&form); err != nil {
		return expense.Expense{}, err
	}

	submitted := now
	return expense.Expense{
		ID:          id,
		OwnerID:     actor.UserID,
		Date:        form.Date,
		Category:    form.Category,
		Amount:      form.Amount,
		Description: form.Description,
		Receipt:     receipt,
		Status:      expense.StatusPending,
		SubmittedAt: &submitted,
		Version:     1,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// Resubmit overwrites the mutable fields of a draft or rejected claim and
// puts it back to pending. An empty receipt keeps the existing one. Earlier
// rejection data stays on the record as history.
func Resubmit(actor Actor, current expense.Expense, form expense.Form, receipt string, now time.Time) (expense.Expense, error) {
	if !authz.Allowed(actor.Role, authz.EditOwnExpense) || current.OwnerID != actor.UserID {
		return expense.Expense{}, fmt.Errorf("%s: %w", ActionResubmit, expense.ErrForbidden)
	}

	if !Allowed(current.Status, ActionResubmit) {
		return expense.Expense{}, &expense.InvalidTransitionError{From: current.Status, Action: string(ActionResubmit)}
	}

	if err := expense.ValidateForm(&form); err != nil {
		return expense.Expense{}, err
	}

	next := current.Clone()
	next.Date = form.Date
	next.Category = form.Category
	next.Amount = form.Amount
	next.Description = form.Description
	if receipt != "" {
		next.Receipt = receipt
	}

	submitted := now
	next.Status = expense.StatusPending
	next.SubmittedAt = &submitted
	next.ApprovedAt = nil
	next.Version++
	next.UpdatedAt = now

	return next, nil
}

// Transition applies an approval-flow action (approve or reject) to current.
func Transition(actor Actor, current expense.Expense, action Action, p Payload, now time.Time) (expense.Expense, error) {
	r, ok := rules[action]
	if !ok || action == ActionResubmit {
		return expense.Expense{}, fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}

	if !authz.Allowed(actor.Role, r.gate) {
		return expense.Expense{}, fmt.Errorf("%s: %w", action, expense.ErrForbidden)
	}

	if !Allowed(current.Status, action) {
		return expense.Expense{}, &expense.InvalidTransitionError{From: current.Status, Action: string(action)}
	}

	next := current.Clone()
	at := now

	switch action {
	case ActionApprove:
		next.Status = expense.StatusApproved
		next.ApprovedAt = &at

	case ActionReject:
		if err := expense.ValidateReason(p.Reason); err != nil {
			return expense.Expense{}, err
		}
		next.Status = expense.StatusRejected
		next.RejectedAt = &at
		next.RejectionReason = strings.TrimSpace(p.Reason)
	}

	next.Version++
	next.UpdatedAt = now

	return next, nil
}
