// Package authz is the single authority mapping roles to permitted actions.
// HTTP middleware and the service layer both consult it, so a hidden tab is
// never the only thing standing between a user and a protected operation.
package authz

import "github.com/geocoder89/expenseflow/internal/domain/user"

type Action string

const (
	ViewDashboard  Action = "view_dashboard"
	ViewList       Action = "view_list"
	SubmitExpense  Action = "submit_expense"
	EditOwnExpense Action = "edit_own_expense"
	ApproveReject  Action = "approve_reject"
	ViewAdminPanel Action = "view_admin_panel"
)

var permissions = map[user.Role]map[Action]bool{
	user.RoleEmployee: {
		ViewDashboard:  true,
		ViewList:       true,
		SubmitExpense:  true,
		EditOwnExpense: true,
	},
	user.RoleApprover: {
		ViewDashboard:  true,
		ViewList:       true,
		SubmitExpense:  true,
		EditOwnExpense: true,
		ApproveReject:  true,
	},
	user.RoleAdmin: {
		ViewDashboard:  true,
		ViewList:       true,
		SubmitExpense:  true,
		EditOwnExpense: true,
		ApproveReject:  true,
		ViewAdminPanel: true,
	},
}

// Allowed reports whether role may perform action. Unknown roles and unknown
// actions are denied.
func Allowed(role user.Role, action Action) bool {
	return permissions[role][action]
}

// Tab is a navigation entry surfaced to the client.
type Tab struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Action Action `json:"action"`
}

var allTabs = []Tab{
	{ID: "dashboard", Name: "Dashboard", Action: ViewDashboard},
	{ID: "list", Name: "Expenses", Action: ViewList},
	{ID: "form", Name: "New claim", Action: SubmitExpense},
	{ID: "approval", Name: "Approvals", Action: ApproveReject},
	{ID: "admin", Name: "Admin", Action: ViewAdminPanel},
}

// Tabs returns the navigation tabs role may see, in display order.
func Tabs(role user.Role) []Tab {
	out := make([]Tab, 0, len(allTabs))
	for _, t := range allTabs {
		if Allowed(role, t.Action) {
			out = append(out, t)
		}
	}
	return out
}
