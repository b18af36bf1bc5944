// AngelaMos | 2026
// entity.go

package user

import (
	"time"
)

// User maps an auth platform subject to its billing identity.
type User struct {
	ID               string    `db:"id"`
	Email            string    `db:"email"`
	StripeCustomerID *string   `db:"stripe_customer_id"`
	CreatedAt        time.Time `db:"created_at"`
	UpdatedAt        time.Time `db:"updated_at"`
}

func (u *User) CustomerID() string {
	if u == nil || u.StripeCustomerID == nil {
		return ""
	}
	return *u.StripeCustomerID
}

func (u *User) HasCustomer() bool {
	return u.CustomerID() != ""
}
