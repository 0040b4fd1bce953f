package memory

import (
	"time"

	"github.com/geocoder89/expenseflow/internal/domain/expense"
)

// SampleExpenses is the demo data set, all owned by ownerID.
func SampleExpenses(ownerID string) []expense.Expense {
	at := func(v string) *time.Time {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			panic(err)
		}
		return &t
	}

	mk := func(id, date string, cat expense.Category, amount int64, desc string, status expense.Status, submitted string) expense.Expense {
		s := at(submitted)
		return expense.Expense{
			ID:          id,
			OwnerID:     ownerID,
			Date:        date,
			Category:    cat,
			Amount:      amount,
			Description: desc,
			Status:      status,
			SubmittedAt: s,
			Version:     1,
			CreatedAt:   *s,
			UpdatedAt:   *s,
		}
	}

	train := mk("sample-1", "2025-08-20", expense.CategoryTransportation, 1500, "Train fare for a customer visit", expense.StatusApproved, "2025-08-20T10:00:00Z")
	train.ApprovedAt = at("2025-08-21T14:00:00Z")

	tea := mk("sample-2", "2025-08-15", expense.CategoryMeeting, 3200, "Tea for the department meeting", expense.StatusApproved, "2025-08-15T09:00:00Z")
	tea.ApprovedAt = at("2025-08-16T11:00:00Z")

	book := mk("sample-3", "2025-08-10", expense.CategoryBooksTraining, 2500, "Technical book", expense.StatusApproved, "2025-08-10T14:00:00Z")
	book.ApprovedAt = at("2025-08-11T10:00:00Z")

	dinner := mk("sample-4", "2025-08-19", expense.CategoryMeals, 2800, "Dinner with a client", expense.StatusPending, "2025-08-19T16:00:00Z")

	notes := mk("sample-5", "2025-08-18", expense.CategorySupplies, 800, "Notebooks and pens for meetings", expense.StatusRejected, "2025-08-18T11:00:00Z")
	notes.RejectedAt = at("2025-08-19T09:00:00Z")
	notes.RejectionReason = "No receipt attached"

	for _, e := range []*expense.Expense{&train, &tea, &book, &notes} {
		switch {
		case e.ApprovedAt != nil:
			e.UpdatedAt = *e.ApprovedAt
		case e.RejectedAt != nil:
			e.UpdatedAt = *e.RejectedAt
		}
	}

	return []expense.Expense{train, tea, book, dinner, notes}
}
