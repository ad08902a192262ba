package quota

import (
	"time"

	"cypher-server/internal/model"
	"cypher-server/internal/persona"
)

// DefaultDailyLimit caps persona-restricted turns per calendar day.
const DefaultDailyLimit = 20

const dateLayout = "2006-01-02"

// Tracker enforces the per-account daily cap on quota-restricted personas.
// The reset is lazy: the counter rolls over on the first check of a new
// calendar day, so no background timer is needed.
type Tracker struct {
	limit int
	now   func() time.Time
}

func NewTracker(limit int) *Tracker {
	return NewTrackerWithNow(limit, time.Now)
}

func NewTrackerWithNow(limit int, now func() time.Time) *Tracker {
	if limit <= 0 {
		limit = DefaultDailyLimit
	}
	return &Tracker{limit: limit, now: now}
}

func (t *Tracker) Limit() int { return t.limit }

// CheckAndConsume decides one logical request. It mutates acc in place
// (lazy reset, then increment when allowed); the caller persists the
// account iff the request is allowed, which keeps check-and-increment
// atomic with respect to a single send.
func (t *Tracker) CheckAndConsume(acc *model.Account, p model.Persona) bool {
	if !persona.Lookup(p).QuotaRestricted {
		return true
	}

	today := t.now().Format(dateLayout)
	if acc.Quota.LastResetDate != today {
		acc.Quota.Count = 0
		acc.Quota.LastResetDate = today
	}

	if acc.Quota.Count >= t.limit {
		return false
	}
	acc.Quota.Count++
	return true
}

// Remaining reports how many restricted turns are left today without
// consuming one.
func (t *Tracker) Remaining(acc model.Account) int {
	today := t.now().Format(dateLayout)
	if acc.Quota.LastResetDate != today {
		return t.limit
	}
	left := t.limit - acc.Quota.Count
	if left < 0 {
		return 0
	}
	return left
}
