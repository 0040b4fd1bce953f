package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/geocoder89/expenseflow/internal/domain/expense"
	"github.com/geocoder89/expenseflow/internal/lifecycle"
	"github.com/google/uuid"
)

// ExpensesRepo keeps claims in process memory. Every state change goes
// through the lifecycle package; the repo only stores what it returns.
type ExpensesRepo struct {
	mu    sync.RWMutex
	items map[string]expense.Expense
	now   func() time.Time
}

func NewExpensesRepo() *ExpensesRepo {
	return NewExpensesRepoWithClock(time.Now)
}

func NewExpensesRepoWithClock(now func() time.Time) *ExpensesRepo {
	return &ExpensesRepo{
		items: make(map[string]expense.Expense),
		now:   now,
	}
}

func (r *ExpensesRepo) Create(ctx context.Context, actor lifecycle.Actor, form expense.Form, receipt string) (expense.Expense, error) {
	if err := ctx.Err(); err != nil {
		return expense.Expense{}, err
	}

	e, err := lifecycle.Create(actor, uuid.NewString(), form, receipt, r.now().UTC())
	if err != nil {
		return expense.Expense{}, err
	}

	r.mu.Lock()
	r.items[e.ID] = e
	r.mu.Unlock()

	return e.Clone(), nil
}

// Update resubmits a draft or rejected claim. expectedVersion > 0 turns the
// write into a compare-and-swap.
func (r *ExpensesRepo) Update(ctx context.Context, actor lifecycle.Actor, id string, form expense.Form, receipt string, expectedVersion int) (expense.Expense, error) {
	return r.mutate(ctx, id, expectedVersion, func(cur expense.Expense, now time.Time) (expense.Expense, error) {
		return lifecycle.Resubmit(actor, cur, form, receipt, now)
	})
}

func (r *ExpensesRepo) Transition(ctx context.Context, actor lifecycle.Actor, id string, action lifecycle.Action, p lifecycle.Payload, expectedVersion int) (expense.Expense, error) {
	return r.mutate(ctx, id, expectedVersion, func(cur expense.Expense, now time.Time) (expense.Expense, error) {
		return lifecycle.Transition(actor, cur, action, p, now)
	})
}

func (r *ExpensesRepo) mutate(ctx context.Context, id string, expectedVersion int, apply func(expense.Expense, time.Time) (expense.Expense, error)) (expense.Expense, error) {
	if err := ctx.Err(); err != nil {
		return expense.Expense{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.items[id]
	if !ok {
		return expense.Expense{}, expense.ErrNotFound
	}
	if expectedVersion > 0 && cur.Version != expectedVersion {
		return expense.Expense{}, expense.ErrVersionConflict
	}

	next, err := apply(cur.Clone(), r.now().UTC())
	if err != nil {
		return expense.Expense{}, err
	}

	r.items[id] = next
	return next.Clone(), nil
}

func (r *ExpensesRepo) Get(ctx context.Context, id string) (expense.Expense, error) {
	r.mu.RLock()
	e, ok := r.items[id]
	r.mu.RUnlock()

	if !ok {
		return expense.Expense{}, expense.ErrNotFound
	}
	return e.Clone(), nil
}

// List returns copies of the matching claims, newest first.
func (r *ExpensesRepo) List(ctx context.Context, f expense.ListFilter) ([]expense.Expense, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	out := make([]expense.Expense, 0, len(r.items))
	for _, e := range r.items {
		if f.Matches(e) {
			out = append(out, e.Clone())
		}
	}
	r.mu.RUnlock()

	sortNewestFirst(out, f.SortBy)
	return out, nil
}

// Seed stores records as given, bypassing the lifecycle. Used for sample data.
func (r *ExpensesRepo) Seed(records ...expense.Expense) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range records {
		if e.ID == "" {
			e.ID = uuid.NewString()
		}
		if e.Version == 0 {
			e.Version = 1
		}
		r.items[e.ID] = e.Clone()
	}
}

func sortNewestFirst(items []expense.Expense, by expense.SortKey) {
	sort.SliceStable(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if by == expense.SortByDate {
			if a.Date != b.Date {
				return a.Date > b.Date
			}
		} else {
			at, bt := submittedOrCreated(a), submittedOrCreated(b)
			if !at.Equal(bt) {
				return at.After(bt)
			}
		}
		// stable tiebreak so repeated reads agree
		return a.ID > b.ID
	})
}

func submittedOrCreated(e expense.Expense) time.Time {
	if e.SubmittedAt != nil {
		return *e.SubmittedAt
	}
	return e.CreatedAt
}
