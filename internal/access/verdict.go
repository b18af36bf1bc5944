// AngelaMos | 2026
// verdict.go

package access

import (
	"time"
)

type Type string

const (
	TypeLifetime     Type = "lifetime"
	TypeSubscription Type = "subscription"
	TypeFree         Type = "free"
	TypeNone         Type = "none"
)

type Reason string

const (
	ReasonTrialExhausted       Reason = "trial_exhausted"
	ReasonSubscriptionRequired Reason = "subscription_required"
)

// SuggestedAction tells the client what to offer the user after a denial.
func (r Reason) SuggestedAction() string {
	switch r {
	case ReasonTrialExhausted:
		return "subscribe"
	case ReasonSubscriptionRequired:
		return "upgrade"
	}
	return ""
}

type Verdict struct {
	Allowed        bool       `json:"allowed"`
	AccessType     Type       `json:"access_type"`
	TrialRemaining *int       `json:"trial_remaining,omitempty"`
	Reason         Reason     `json:"reason,omitempty"`
	ExpiresAt      *time.Time `json:"expires_at,omitempty"`
}

func allow(t Type) Verdict {
	return Verdict{Allowed: true, AccessType: t}
}

func allowTrial(remaining int) Verdict {
	return Verdict{
		Allowed:        true,
		AccessType:     TypeFree,
		TrialRemaining: &remaining,
	}
}

func deny(reason Reason) Verdict {
	zero := 0
	return Verdict{
		AccessType:     TypeNone,
		TrialRemaining: &zero,
		Reason:         reason,
	}
}

// Decision is the gate's outcome for one request.
type Decision struct {
	Verdict
	Feature  string `json:"feature"`
	Consumed bool   `json:"consumed"`
}
