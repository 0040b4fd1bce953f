package expense

import (
	"strings"
	"time"
)

type Status string

const (
	StatusDraft    Status = "draft"
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

func (s Status) Valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusApproved, StatusRejected:
		return true
	}
	return false
}

type Category string

const (
	CategoryTransportation Category = "transportation"
	CategoryLodging        Category = "lodging"
	CategoryMeals          Category = "meals"
	CategoryMeeting        Category = "meeting"
	CategoryCommunication  Category = "communication"
	CategorySupplies       Category = "supplies"
	CategoryBooksTraining  Category = "books_training"
	CategoryOther          Category = "other"
)

// Categories returns the closed set of categories in display order.
func Categories() []Category {
	return []Category{
		CategoryTransportation,
		CategoryLodging,
		CategoryMeals,
		CategoryMeeting,
		CategoryCommunication,
		CategorySupplies,
		CategoryBooksTraining,
		CategoryOther,
	}
}

func (c Category) Valid() bool {
	for _, known := range Categories() {
		if c == known {
			return true
		}
	}
	return false
}

// DateLayout is the wire format of Expense.Date, a calendar date with no time component.
const DateLayout = "2006-01-02"

type Expense struct {
	ID              string     `json:"id"`
	OwnerID         string     `json:"ownerId"`
	Date            string     `json:"date"`
	Category        Category   `json:"category"`
	Amount          int64      `json:"amount"`
	Description     string     `json:"description"`
	Receipt         string     `json:"receipt,omitempty"`
	Status          Status     `json:"status"`
	SubmittedAt     *time.Time `json:"submittedAt,omitempty"`
	ApprovedAt      *time.Time `json:"approvedAt,omitempty"`
	RejectedAt      *time.Time `json:"rejectedAt,omitempty"`
	RejectionReason string     `json:"rejectionReason,omitempty"`
	Version         int        `json:"version"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// Form carries the user-editable fields of a claim. The receipt is handled
// separately because it goes through the blob store first.
type Form struct {
	Date        string   `json:"date" form:"date" validate:"required,datetime=2006-01-02"`
	Category    Category `json:"category" form:"category" validate:"required,category"`
	Amount      int64    `json:"amount" form:"amount" validate:"required,min=1"`
	Description string   `json:"description" form:"description" validate:"notblank,max=1000"`
}

// Normalize trims free-text fields in place.
func (f *Form) Normalize() {
	f.Date = strings.TrimSpace(f.Date)
	f.Category = Category(strings.TrimSpace(string(f.Category)))
	f.Description = strings.TrimSpace(f.Description)
}

type SortKey string

const (
	SortBySubmitted SortKey = "submitted"
	SortByDate      SortKey = "date"
)

// with empty values meaning "no constraint"
type ListFilter struct {
	OwnerID  string
	Status   Status
	Category Category
	From     string // inclusive, DateLayout
	To       string // inclusive, DateLayout
	SortBy   SortKey
}

func (f ListFilter) Matches(e Expense) bool {
	if f.OwnerID != "" && e.OwnerID != f.OwnerID {
		return false
	}
	if f.Status != "" && e.Status != f.Status {
		return false
	}
	if f.Category != "" && e.Category != f.Category {
		return false
	}
	// DateLayout sorts lexically
	if f.From != "" && e.Date < f.From {
		return false
	}
	if f.To != "" && e.Date > f.To {
		return false
	}
	return true
}

// Clone returns a deep copy so callers never share timestamp pointers with the store.
func (e Expense) Clone() Expense {
	out := e
	out.SubmittedAt = cloneTime(e.SubmittedAt)
	out.ApprovedAt = cloneTime(e.ApprovedAt)
	out.RejectedAt = cloneTime(e.RejectedAt)
	return out
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
