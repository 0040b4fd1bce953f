// Package report computes the read-only views built from the claim list:
// the personal dashboard, the approval queue and the admin summary.
package report

import (
	"sort"
	"time"

	"github.com/geocoder89/expenseflow/internal/domain/expense"
)

type CategoryTotal struct {
	Category expense.Category `json:"category"`
	Total    int64            `json:"total"`
}

type Dashboard struct {
	ThisMonthTotal    int64           `json:"thisMonthTotal"`
	LastMonthTotal    int64           `json:"lastMonthTotal"`
	MonthlyChangePct  float64         `json:"monthlyChangePct"`
	ApprovedThisMonth int             `json:"approvedThisMonth"`
	PendingCount      int             `json:"pendingCount"`
	PendingTotal      int64           `json:"pendingTotal"`
	CategoryBreakdown []CategoryTotal `json:"categoryBreakdown"`
}

// BuildDashboard totals approved claims by the month of their expense date,
// relative to now. The change is 0 when last month had nothing approved.
func BuildDashboard(items []expense.Expense, now time.Time) Dashboard {
	thisYear, thisMonth, _ := now.Date()
	lastYear, lastMonth := thisYear, thisMonth-1
	if thisMonth == time.January {
		lastYear, lastMonth = thisYear-1, time.December
	}

	var d Dashboard
	byCategory := make(map[expense.Category]int64)

	for _, e := range items {
		if e.Status == expense.StatusPending {
			d.PendingCount++
			d.PendingTotal += e.Amount
			continue
		}
		if e.Status != expense.StatusApproved {
			continue
		}

		date, err := time.Parse(expense.DateLayout, e.Date)
		if err != nil {
			continue
		}
		y, m, _ := date.Date()

		switch {
		case y == thisYear && m == thisMonth:
			d.ThisMonthTotal += e.Amount
			d.ApprovedThisMonth++
			byCategory[e.Category] += e.Amount
		case y == lastYear && m == lastMonth:
			d.LastMonthTotal += e.Amount
		}
	}

	if d.LastMonthTotal > 0 {
		d.MonthlyChangePct = float64(d.ThisMonthTotal-d.LastMonthTotal) / float64(d.LastMonthTotal) * 100
	}

	d.CategoryBreakdown = make([]CategoryTotal, 0, len(byCategory))
	for c, total := range byCategory {
		d.CategoryBreakdown = append(d.CategoryBreakdown, CategoryTotal{Category: c, Total: total})
	}
	sort.Slice(d.CategoryBreakdown, func(i, j int) bool {
		a, b := d.CategoryBreakdown[i], d.CategoryBreakdown[j]
		if a.Total != b.Total {
			return a.Total > b.Total
		}
		return a.Category < b.Category
	})

	return d
}

// RecentCompletedLimit caps the decided claims shown next to the pending queue.
const RecentCompletedLimit = 5

type ApprovalQueue struct {
	Pending        []expense.Expense `json:"pending"`
	Completed      []expense.Expense `json:"completed"`
	PendingCount   int               `json:"pendingCount"`
	CompletedCount int               `json:"completedCount"`
}

// BuildApprovalQueue splits items, already newest first, into the pending
// queue and the most recent decided claims.
func BuildApprovalQueue(items []expense.Expense) ApprovalQueue {
	q := ApprovalQueue{
		Pending:   []expense.Expense{},
		Completed: []expense.Expense{},
	}

	for _, e := range items {
		if e.Status == expense.StatusPending {
			q.Pending = append(q.Pending, e)
			continue
		}
		q.CompletedCount++
		if len(q.Completed) < RecentCompletedLimit {
			q.Completed = append(q.Completed, e)
		}
	}
	q.PendingCount = len(q.Pending)

	return q
}
