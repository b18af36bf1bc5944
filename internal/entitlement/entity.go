// AngelaMos | 2026
// entity.go

package entitlement

import (
	"errors"
	"fmt"
	"time"
)

type Access string

const (
	AccessFree         Access = "free"
	AccessSubscription Access = "subscription"
	AccessLifetime     Access = "lifetime"
)

func (a Access) Valid() bool {
	switch a {
	case AccessFree, AccessSubscription, AccessLifetime:
		return true
	}
	return false
}

var ErrInvalidRecord = errors.New("invalid entitlement record")

// Record is the access a user holds for one feature. UpdatedAt doubles as
// the write time that Validate checks expiry against.
type Record struct {
	UserID     string     `db:"user_id"     json:"user_id"`
	FeatureKey string     `db:"feature_key" json:"feature_key"`
	Access     Access     `db:"access"      json:"access"`
	IsActive   bool       `db:"is_active"   json:"is_active"`
	ExpiresAt  *time.Time `db:"expires_at"  json:"expires_at"`
	CreatedAt  time.Time  `db:"created_at"  json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at"  json:"updated_at"`
}

func Lifetime(userID, featureKey string, now time.Time) Record {
	return Record{
		UserID:     userID,
		FeatureKey: featureKey,
		Access:     AccessLifetime,
		IsActive:   true,
		UpdatedAt:  now,
	}
}

func Subscription(
	userID, featureKey string,
	active bool,
	expiresAt *time.Time,
	now time.Time,
) Record {
	return Record{
		UserID:     userID,
		FeatureKey: featureKey,
		Access:     AccessSubscription,
		IsActive:   active,
		ExpiresAt:  expiresAt,
		UpdatedAt:  now,
	}
}

func Free(userID, featureKey string, now time.Time) Record {
	return Record{
		UserID:     userID,
		FeatureKey: featureKey,
		Access:     AccessFree,
		UpdatedAt:  now,
	}
}

func (r Record) Validate() error {
	if r.UserID == "" || r.FeatureKey == "" {
		return fmt.Errorf("%w: user and feature are required", ErrInvalidRecord)
	}

	switch r.Access {
	case AccessLifetime:
		if r.ExpiresAt != nil {
			return fmt.Errorf("%w: lifetime access cannot expire", ErrInvalidRecord)
		}
	case AccessSubscription:
		if r.IsActive && (r.ExpiresAt == nil || !r.ExpiresAt.After(r.UpdatedAt)) {
			return fmt.Errorf(
				"%w: active subscription needs a future expiry",
				ErrInvalidRecord,
			)
		}
	case AccessFree:
		if r.IsActive {
			return fmt.Errorf("%w: free access cannot be active", ErrInvalidRecord)
		}
	default:
		return fmt.Errorf("%w: unknown access %q", ErrInvalidRecord, r.Access)
	}

	return nil
}

// Grants reports which paid access the record confers at now.
func (r *Record) Grants(now time.Time) (Access, bool) {
	if r == nil || !r.IsActive {
		return "", false
	}

	switch r.Access {
	case AccessLifetime:
		return AccessLifetime, true
	case AccessSubscription:
		if r.ExpiresAt != nil && r.ExpiresAt.After(now) {
			return AccessSubscription, true
		}
	}

	return "", false
}
