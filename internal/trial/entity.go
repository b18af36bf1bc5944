// AngelaMos | 2026
// entity.go

package trial

import (
	"time"
)

const DefaultLimit = 3

type Record struct {
	UserID     string    `db:"user_id"     json:"user_id"`
	TrialLimit int       `db:"trial_limit" json:"trial_limit"`
	TrialUsed  int       `db:"trial_used"  json:"trial_used"`
	CreatedAt  time.Time `db:"created_at"  json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"  json:"updated_at"`
}

func (r *Record) Remaining() int {
	return remaining(r.TrialLimit, r.TrialUsed)
}

// ConsumeResult reports one consume attempt. Success=false with a nil error
// means the limit was already reached.
type ConsumeResult struct {
	Success    bool `db:"-"`
	TrialUsed  int  `db:"trial_used"`
	TrialLimit int  `db:"trial_limit"`
}

func (c ConsumeResult) Remaining() int {
	return remaining(c.TrialLimit, c.TrialUsed)
}

func remaining(limit, used int) int {
	if used >= limit {
		return 0
	}
	return limit - used
}
