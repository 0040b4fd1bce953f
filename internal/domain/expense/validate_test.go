package expense

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validForm() Form {
	return Form{
		Date:        "2025-08-20",
		Category:    CategoryTransportation,
		Amount:      1500,
		Description: "client visit train fare",
	}
}

func TestValidateForm(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Form)
		wantFields []string
	}{
		{name: "valid", mutate: func(*Form) {}},
		{name: "zero_amount", mutate: func(f *Form) { f.Amount = 0 }, wantFields: []string{"amount"}},
		{name: "negative_amount", mutate: func(f *Form) { f.Amount = -10 }, wantFields: []string{"amount"}},
		{name: "blank_description", mutate: func(f *Form) { f.Description = "   " }, wantFields: []string{"description"}},
		{name: "unknown_category", mutate: func(f *Form) { f.Category = "gadgets" }, wantFields: []string{"category"}},
		{name: "bad_date", mutate: func(f *Form) { f.Date = "20/08/2025" }, wantFields: []string{"date"}},
		{
			name:       "everything_missing",
			mutate:     func(f *Form) { *f = Form{} },
			wantFields: []string{"date", "category", "amount", "description"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validForm()
			tt.mutate(&f)

			err := ValidateForm(&f)
			if len(tt.wantFields) == 0 {
				require.NoError(t, err)
				return
			}

			var ve *ValidationError
			require.True(t, errors.As(err, &ve), "want *ValidationError, got %v", err)

			got := make([]string, 0, len(ve.Fields))
			for _, fe := range ve.Fields {
				got = append(got, fe.Field)
				assert.NotEmpty(t, fe.Message)
			}
			assert.ElementsMatch(t, tt.wantFields, got)
		})
	}
}

func TestValidateForm_TrimsDescription(t *testing.T) {
	f := validForm()
	f.Description = "  taxi  "

	require.NoError(t, ValidateForm(&f))
	assert.Equal(t, "taxi", f.Description)
}

func TestValidateReason(t *testing.T) {
	assert.NoError(t, ValidateReason("receipt missing"))

	err := ValidateReason(" \t")
	assert.True(t, IsValidation(err))
}

func TestListFilterMatches(t *testing.T) {
	e := Expense{OwnerID: "1", Status: StatusPending, Category: CategoryMeals, Date: "2025-08-19"}

	assert.True(t, ListFilter{}.Matches(e))
	assert.True(t, ListFilter{OwnerID: "1", From: "2025-08-19", To: "2025-08-19"}.Matches(e))
	assert.False(t, ListFilter{OwnerID: "2"}.Matches(e))
	assert.False(t, ListFilter{Status: StatusApproved}.Matches(e))
	assert.False(t, ListFilter{Category: CategoryLodging}.Matches(e))
	assert.False(t, ListFilter{From: "2025-08-20"}.Matches(e))
	assert.False(t, ListFilter{To: "2025-08-18"}.Matches(e))
}
