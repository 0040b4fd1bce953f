package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/geocoder89/expenseflow/internal/domain/expense"
	"github.com/geocoder89/expenseflow/internal/domain/user"
	"github.com/geocoder89/expenseflow/internal/lifecycle"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	employee = lifecycle.Actor{UserID: "1", Role: user.RoleEmployee}
	approver = lifecycle.Actor{UserID: "2", Role: user.RoleApprover}
)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Minute)
	return c.t
}

func newRepo() *ExpensesRepo {
	c := &stepClock{t: time.Date(2025, 8, 20, 9, 0, 0, 0, time.UTC)}
	return NewExpensesRepoWithClock(c.Now)
}

func form(date string, amount int64) expense.Form {
	return expense.Form{
		Date:        date,
		Category:    expense.CategoryMeals,
		Amount:      amount,
		Description: "team lunch",
	}
}

func TestCreateAndGet(t *testing.T) {
	r := newRepo()
	ctx := context.Background()

	e, err := r.Create(ctx, employee, form("2025-08-19", 2800), "/uploads/receipts/a.png")
	require.NoError(t, err)
	assert.NotEmpty(t, e.ID)
	assert.Equal(t, expense.StatusPending, e.Status)
	assert.Equal(t, "1", e.OwnerID)
	assert.Equal(t, 1, e.Version)

	got, err := r.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e, got)

	_, err = r.Get(ctx, "missing")
	assert.ErrorIs(t, err, expense.ErrNotFound)
}

func TestCreate_InvalidFormStoresNothing(t *testing.T) {
	r := newRepo()
	ctx := context.Background()

	_, err := r.Create(ctx, employee, form("2025-08-19", 0), "")
	assert.True(t, expense.IsValidation(err))

	all, err := r.List(ctx, expense.ListFilter{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestGetReturnsCopies(t *testing.T) {
	r := newRepo()
	ctx := context.Background()

	e, err := r.Create(ctx, employee, form("2025-08-19", 100), "")
	require.NoError(t, err)

	got, _ := r.Get(ctx, e.ID)
	*got.SubmittedAt = time.Time{}
	got.Amount = 1

	again, _ := r.Get(ctx, e.ID)
	assert.Equal(t, int64(100), again.Amount)
	assert.False(t, again.SubmittedAt.IsZero())
}

func TestTransition_RejectThenResubmitThenApprove(t *testing.T) {
	r := newRepo()
	ctx := context.Background()

	e, err := r.Create(ctx, employee, form("2025-08-18", 800), "")
	require.NoError(t, err)

	rejected, err := r.Transition(ctx, approver, e.ID, lifecycle.ActionReject, lifecycle.Payload{Reason: "missing receipt"}, e.Version)
	require.NoError(t, err)
	assert.Equal(t, expense.StatusRejected, rejected.Status)
	assert.Equal(t, 2, rejected.Version)

	resubmitted, err := r.Update(ctx, employee, e.ID, form("2025-08-18", 900), "/uploads/receipts/r.png", rejected.Version)
	require.NoError(t, err)
	assert.Equal(t, expense.StatusPending, resubmitted.Status)
	assert.Equal(t, int64(900), resubmitted.Amount)
	assert.True(t, resubmitted.SubmittedAt.After(*e.SubmittedAt))
	assert.Equal(t, "missing receipt", resubmitted.RejectionReason)

	approved, err := r.Transition(ctx, approver, e.ID, lifecycle.ActionApprove, lifecycle.Payload{}, 0)
	require.NoError(t, err)
	assert.Equal(t, expense.StatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedAt)
	require.NotNil(t, approved.RejectedAt, "rejection history survives approval")
	assert.True(t, approved.ApprovedAt.After(*approved.RejectedAt))
	assert.Equal(t, "missing receipt", approved.RejectionReason)

	_, err = r.Update(ctx, employee, e.ID, form("2025-08-18", 1000), "", 0)
	assert.True(t, expense.IsInvalidTransition(err))

	stored, _ := r.Get(ctx, e.ID)
	assert.Equal(t, approved, stored)
}

func TestVersionConflict(t *testing.T) {
	r := newRepo()
	ctx := context.Background()

	e, err := r.Create(ctx, employee, form("2025-08-19", 100), "")
	require.NoError(t, err)

	_, err = r.Transition(ctx, approver, e.ID, lifecycle.ActionApprove, lifecycle.Payload{}, e.Version)
	require.NoError(t, err)

	_, err = r.Transition(ctx, approver, e.ID, lifecycle.ActionReject, lifecycle.Payload{Reason: "late"}, e.Version)
	assert.ErrorIs(t, err, expense.ErrVersionConflict)

	_, err = r.Transition(ctx, approver, "missing", lifecycle.ActionApprove, lifecycle.Payload{}, 0)
	assert.ErrorIs(t, err, expense.ErrNotFound)
}

func TestTransition_FailureLeavesRecord(t *testing.T) {
	r := newRepo()
	ctx := context.Background()

	e, err := r.Create(ctx, employee, form("2025-08-19", 100), "")
	require.NoError(t, err)

	_, err = r.Transition(ctx, employee, e.ID, lifecycle.ActionApprove, lifecycle.Payload{}, 0)
	assert.ErrorIs(t, err, expense.ErrForbidden)

	_, err = r.Transition(ctx, approver, e.ID, lifecycle.ActionReject, lifecycle.Payload{Reason: "   "}, 0)
	assert.True(t, expense.IsValidation(err))

	stored, _ := r.Get(ctx, e.ID)
	assert.Equal(t, e, stored)
}

func TestList_FiltersAndOrder(t *testing.T) {
	r := newRepo()
	ctx := context.Background()

	first, _ := r.Create(ctx, employee, form("2025-08-25", 100), "")
	second, _ := r.Create(ctx, employee, form("2025-08-01", 200), "")
	other, _ := r.Create(ctx, lifecycle.Actor{UserID: "2", Role: user.RoleApprover}, form("2025-08-10", 300), "")

	bySubmitted, err := r.List(ctx, expense.ListFilter{})
	require.NoError(t, err)
	require.Len(t, bySubmitted, 3)
	assert.Equal(t, []string{other.ID, second.ID, first.ID}, ids(bySubmitted))

	byDate, err := r.List(ctx, expense.ListFilter{SortBy: expense.SortByDate})
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID, other.ID, second.ID}, ids(byDate))

	mine, err := r.List(ctx, expense.ListFilter{OwnerID: "1"})
	require.NoError(t, err)
	assert.Len(t, mine, 2)

	ranged, err := r.List(ctx, expense.ListFilter{From: "2025-08-05", To: "2025-08-25"})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{first.ID, other.ID}, ids(ranged))

	_, _ = r.Transition(ctx, approver, first.ID, lifecycle.ActionApprove, lifecycle.Payload{}, 0)
	approved, err := r.List(ctx, expense.ListFilter{Status: expense.StatusApproved})
	require.NoError(t, err)
	assert.Equal(t, []string{first.ID}, ids(approved))
}

func TestSeedSampleData(t *testing.T) {
	r := newRepo()
	ctx := context.Background()

	r.Seed(SampleExpenses("1")...)

	all, err := r.List(ctx, expense.ListFilter{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	assert.Equal(t, "sample-1", all[0].ID)

	pending, _ := r.List(ctx, expense.ListFilter{Status: expense.StatusPending})
	require.Len(t, pending, 1)

	rejected, _ := r.Get(ctx, "sample-5")
	assert.Equal(t, "No receipt attached", rejected.RejectionReason)
	assert.NotNil(t, rejected.RejectedAt)

	// seeded records go through the lifecycle like any other
	updated, err := r.Update(ctx, employee, "sample-5", form("2025-08-18", 800), "/uploads/receipts/n.png", 1)
	require.NoError(t, err)
	assert.Equal(t, expense.StatusPending, updated.Status)
}

func TestConcurrentTransitionsApplyOnce(t *testing.T) {
	r := newRepo()
	ctx := context.Background()

	e, err := r.Create(ctx, employee, form("2025-08-19", 100), "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins := 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Transition(ctx, approver, e.ID, lifecycle.ActionApprove, lifecycle.Payload{}, e.Version); err == nil {
				mu.Lock()
				wins++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
}

func ids(items []expense.Expense) []string {
	out := make([]string, len(items))
	for i, e := range items {
		out[i] = e.ID
	}
	return out
}
