package report

import (
	"sort"

	"github.com/geocoder89/expenseflow/internal/domain/expense"
	"github.com/geocoder89/expenseflow/internal/domain/user"
)

// AdminRowLimit is how many rows the summary returns; TotalCount has the rest.
const AdminRowLimit = 50

type AdminFilter struct {
	Department string
	Status     expense.Status
}

type DepartmentStat struct {
	Department   string `json:"department"`
	UserCount    int    `json:"userCount"`
	ExpenseCount int    `json:"expenseCount"`
	TotalAmount  int64  `json:"totalAmount"`
}

// AdminRow is a claim with its owner resolved.
type AdminRow struct {
	expense.Expense
	OwnerName  string `json:"ownerName"`
	Department string `json:"department"`
}

type AdminSummary struct {
	TotalAmount     int64            `json:"totalAmount"`
	TotalCount      int              `json:"totalCount"`
	PendingCount    int              `json:"pendingCount"`
	ApprovedCount   int              `json:"approvedCount"`
	RejectedCount   int              `json:"rejectedCount"`
	Departments     []string         `json:"departments"`
	DepartmentStats []DepartmentStat `json:"departmentStats"`
	Rows            []AdminRow       `json:"rows"`
	Truncated       bool             `json:"truncated"`
}

// FilterRows resolves owners and applies f. Claims whose owner is unknown
// only match when no department is selected.
func FilterRows(items []expense.Expense, users []user.User, f AdminFilter) []AdminRow {
	byID := make(map[string]user.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}

	rows := make([]AdminRow, 0, len(items))
	for _, e := range items {
		owner, known := byID[e.OwnerID]
		if f.Department != "" && (!known || owner.Department != f.Department) {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		rows = append(rows, AdminRow{Expense: e, OwnerName: owner.Name, Department: owner.Department})
	}
	return rows
}

// BuildAdminSummary expects items newest first. Department stats always cover
// every claim; the filter only narrows the totals and rows.
func BuildAdminSummary(items []expense.Expense, users []user.User, f AdminFilter) AdminSummary {
	rows := FilterRows(items, users, f)

	s := AdminSummary{TotalCount: len(rows)}
	for _, r := range rows {
		s.TotalAmount += r.Amount
		switch r.Status {
		case expense.StatusPending:
			s.PendingCount++
		case expense.StatusApproved:
			s.ApprovedCount++
		case expense.StatusRejected:
			s.RejectedCount++
		}
	}

	if len(rows) > AdminRowLimit {
		s.Truncated = true
		rows = rows[:AdminRowLimit]
	}
	s.Rows = rows

	s.DepartmentStats = departmentStats(items, users)
	s.Departments = make([]string, 0, len(s.DepartmentStats))
	for _, d := range s.DepartmentStats {
		s.Departments = append(s.Departments, d.Department)
	}

	return s
}

func departmentStats(items []expense.Expense, users []user.User) []DepartmentStat {
	stats := make(map[string]*DepartmentStat)
	deptOf := make(map[string]string, len(users))

	for _, u := range users {
		if u.Department == "" {
			continue
		}
		deptOf[u.ID] = u.Department
		st, ok := stats[u.Department]
		if !ok {
			st = &DepartmentStat{Department: u.Department}
			stats[u.Department] = st
		}
		st.UserCount++
	}

	for _, e := range items {
		st, ok := stats[deptOf[e.OwnerID]]
		if !ok {
			continue
		}
		st.ExpenseCount++
		st.TotalAmount += e.Amount
	}

	out := make([]DepartmentStat, 0, len(stats))
	for _, st := range stats {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Department < out[j].Department })
	return out
}
