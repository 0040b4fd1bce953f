package lifecycle

import (
	"errors"
	"testing"
	"time"

	"github.com/geocoder89/expenseflow/internal/domain/expense"
	"github.com/geocoder89/expenseflow/internal/domain/user"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	employee = Actor{UserID: "1", Role: user.RoleEmployee}
	approver = Actor{UserID: "2", Role: user.RoleApprover}
	admin    = Actor{UserID: "3", Role: user.RoleAdmin}
)

func trainFare() expense.Form {
	return expense.Form{
		Date:        "2025-08-20",
		Category:    expense.CategoryTransportation,
		Amount:      1500,
		Description: "client visit train fare",
	}
}

func mustCreate(t *testing.T, now time.Time) expense.Expense {
	t.Helper()
	e, err := Create(employee, "exp-1", trainFare(), "", now)
	require.NoError(t, err)
	return e
}

func TestCreate(t *testing.T) {
	now := time.Date(2025, 8, 20, 10, 0, 0, 0, time.UTC)

	e := mustCreate(t, now)

	assert.Equal(t, "exp-1", e.ID)
	assert.Equal(t, "1", e.OwnerID)
	assert.Equal(t, expense.StatusPending, e.Status)
	require.NotNil(t, e.SubmittedAt)
	assert.True(t, e.SubmittedAt.Equal(now))
	assert.Empty(t, e.Receipt)
	assert.Nil(t, e.ApprovedAt)
	assert.Nil(t, e.RejectedAt)
	assert.Equal(t, 1, e.Version)
}

func TestCreate_AllRolesMaySubmit(t *testing.T) {
	for _, a := range []Actor{employee, approver, admin} {
		_, err := Create(a, "x", trainFare(), "/uploads/receipts/r.png", time.Now())
		assert.NoError(t, err, "role %s", a.Role)
	}
}

func TestCreate_UnknownRoleForbidden(t *testing.T) {
	_, err := Create(Actor{UserID: "9", Role: "guest"}, "x", trainFare(), "", time.Now())
	assert.ErrorIs(t, err, expense.ErrForbidden)
}

func TestCreate_InvalidForm(t *testing.T) {
	f := trainFare()
	f.Amount = 0

	_, err := Create(employee, "x", f, "", time.Now())
	assert.True(t, expense.IsValidation(err))
}

func TestApprove(t *testing.T) {
	created := mustCreate(t, time.Now())
	at := time.Date(2025, 8, 21, 14, 0, 0, 0, time.UTC)

	approved, err := Transition(approver, created, ActionApprove, Payload{}, at)
	require.NoError(t, err)

	assert.Equal(t, expense.StatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedAt)
	assert.True(t, approved.ApprovedAt.Equal(at))
	assert.Equal(t, 2, approved.Version)
	assert.False(t, Editable(approved.Status))

	// input untouched
	assert.Equal(t, expense.StatusPending, created.Status)
	assert.Nil(t, created.ApprovedAt)
}

func TestApprove_NonPendingFails(t *testing.T) {
	created := mustCreate(t, time.Now())
	approved, err := Transition(admin, created, ActionApprove, Payload{}, time.Now())
	require.NoError(t, err)

	rejected, err := Transition(admin, created, ActionReject, Payload{Reason: "no"}, time.Now())
	require.NoError(t, err)

	for _, current := range []expense.Expense{approved, rejected} {
		_, err := Transition(approver, current, ActionApprove, Payload{}, time.Now())

		var te *expense.InvalidTransitionError
		require.True(t, errors.As(err, &te), "status %s: got %v", current.Status, err)
		assert.Equal(t, current.Status, te.From)
	}
}

func TestApprove_EmployeeForbidden(t *testing.T) {
	created := mustCreate(t, time.Now())

	_, err := Transition(employee, created, ActionApprove, Payload{}, time.Now())
	assert.ErrorIs(t, err, expense.ErrForbidden)

	_, err = Transition(employee, created, ActionReject, Payload{Reason: "x"}, time.Now())
	assert.ErrorIs(t, err, expense.ErrForbidden)
}

func TestReject(t *testing.T) {
	created := mustCreate(t, time.Now())
	at := time.Date(2025, 8, 19, 9, 0, 0, 0, time.UTC)

	rejected, err := Transition(approver, created, ActionReject, Payload{Reason: "  receipt missing "}, at)
	require.NoError(t, err)

	assert.Equal(t, expense.StatusRejected, rejected.Status)
	require.NotNil(t, rejected.RejectedAt)
	assert.True(t, rejected.RejectedAt.Equal(at))
	assert.Equal(t, "receipt missing", rejected.RejectionReason)
}

func TestReject_BlankReason(t *testing.T) {
	created := mustCreate(t, time.Now())

	for _, reason := range []string{"", "   ", "\n\t"} {
		out, err := Transition(approver, created, ActionReject, Payload{Reason: reason}, time.Now())

		assert.True(t, expense.IsValidation(err), "reason %q", reason)
		assert.Equal(t, expense.Expense{}, out)
	}
	assert.Equal(t, expense.StatusPending, created.Status)
	assert.Nil(t, created.RejectedAt)
	assert.Empty(t, created.RejectionReason)
}

func TestReject_ApprovedIsInvalidTransitionEvenWithoutReason(t *testing.T) {
	created := mustCreate(t, time.Now())
	approved, err := Transition(approver, created, ActionApprove, Payload{}, time.Now())
	require.NoError(t, err)

	_, err = Transition(approver, approved, ActionReject, Payload{}, time.Now())
	assert.True(t, expense.IsInvalidTransition(err))
}

func TestResubmitRejected(t *testing.T) {
	created := mustCreate(t, time.Date(2025, 8, 18, 11, 0, 0, 0, time.UTC))
	rejectedAt := time.Date(2025, 8, 19, 9, 0, 0, 0, time.UTC)
	rejected, err := Transition(approver, created, ActionReject, Payload{Reason: "receipt missing"}, rejectedAt)
	require.NoError(t, err)

	form := trainFare()
	form.Description = "client visit train fare (receipt attached)"
	resubmittedAt := time.Date(2025, 8, 20, 8, 0, 0, 0, time.UTC)

	next, err := Resubmit(employee, rejected, form, "/uploads/receipts/receipt_1_a.png", resubmittedAt)
	require.NoError(t, err)

	assert.Equal(t, expense.StatusPending, next.Status)
	require.NotNil(t, next.SubmittedAt)
	assert.True(t, next.SubmittedAt.Equal(resubmittedAt))
	assert.Equal(t, "/uploads/receipts/receipt_1_a.png", next.Receipt)
	assert.Equal(t, form.Description, next.Description)

	// history is kept
	require.NotNil(t, next.RejectedAt)
	assert.True(t, next.RejectedAt.Equal(rejectedAt))
	assert.Equal(t, "receipt missing", next.RejectionReason)
	assert.Equal(t, rejected.Version+1, next.Version)
}

func TestResubmit_KeepsReceiptWhenNoneSupplied(t *testing.T) {
	created, err := Create(employee, "x", trainFare(), "/uploads/receipts/old.png", time.Now())
	require.NoError(t, err)
	rejected, err := Transition(approver, created, ActionReject, Payload{Reason: "wrong amount"}, time.Now())
	require.NoError(t, err)

	next, err := Resubmit(employee, rejected, trainFare(), "", time.Now())
	require.NoError(t, err)
	assert.Equal(t, "/uploads/receipts/old.png", next.Receipt)
}

func TestResubmit_DraftAllowed(t *testing.T) {
	draft := mustCreate(t, time.Now())
	draft.Status = expense.StatusDraft

	next, err := Resubmit(employee, draft, trainFare(), "", time.Now())
	require.NoError(t, err)
	assert.Equal(t, expense.StatusPending, next.Status)
}

func TestResubmit_RefusedStates(t *testing.T) {
	created := mustCreate(t, time.Now())
	approved, err := Transition(approver, created, ActionApprove, Payload{}, time.Now())
	require.NoError(t, err)

	for _, current := range []expense.Expense{created, approved} {
		_, err := Resubmit(employee, current, trainFare(), "", time.Now())
		assert.True(t, expense.IsInvalidTransition(err), "status %s", current.Status)
	}
}

func TestResubmit_OnlyOwner(t *testing.T) {
	created := mustCreate(t, time.Now())
	rejected, err := Transition(approver, created, ActionReject, Payload{Reason: "x"}, time.Now())
	require.NoError(t, err)

	_, err = Resubmit(admin, rejected, trainFare(), "", time.Now())
	assert.ErrorIs(t, err, expense.ErrForbidden)
}

func TestTransition_UnknownAction(t *testing.T) {
	created := mustCreate(t, time.Now())

	for _, a := range []Action{ActionCreate, ActionResubmit, Action("archive")} {
		_, err := Transition(admin, created, a, Payload{}, time.Now())
		assert.ErrorIs(t, err, ErrUnknownAction, "action %s", a)
	}
}

func TestCanEdit(t *testing.T) {
	created := mustCreate(t, time.Now())
	rejected, err := Transition(approver, created, ActionReject, Payload{Reason: "x"}, time.Now())
	require.NoError(t, err)

	assert.False(t, CanEdit(employee, created))
	assert.True(t, CanEdit(employee, rejected))
	assert.False(t, CanEdit(approver, rejected))
}
