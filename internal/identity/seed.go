package identity

import (
	"time"

	"github.com/geocoder89/expenseflow/internal/domain/user"
)

// DemoSeeds is the built-in demo directory. The secrets are demo values and
// are only ever stored hashed.
func DemoSeeds() []Seed {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	return []Seed{
		{
			User: user.User{
				ID:         "1",
				Name:       "Taro Tanaka",
				Email:      "tanaka@company.com",
				Role:       user.RoleEmployee,
				Department: "Sales",
				CreatedAt:  created,
			},
			Password: "password123",
		},
		{
			User: user.User{
				ID:         "2",
				Name:       "Hanako Sato",
				Email:      "sato@company.com",
				Role:       user.RoleApprover,
				Department: "Sales",
				CreatedAt:  created,
			},
			Password: "password123",
		},
		{
			User: user.User{
				ID:         "3",
				Name:       "Kanri Yamada",
				Email:      "admin@company.com",
				Role:       user.RoleAdmin,
				Department: "Administration",
				CreatedAt:  created,
			},
			Password: "admin123",
		},
	}
}
