// Package quota decides whether a user may send another message today.
// It performs no I/O: the caller owns persisting the mutated state inside
// whatever transaction it commits, and under concurrent requests for the
// same user the caller must provide the serialization boundary.
package quota

import (
	"time"

	"github.com/michael7nightingale/ai-girls/internal/config"
	"github.com/michael7nightingale/ai-girls/internal/models"
)

// Limits maps subscription tiers to daily message caps.
type Limits struct {
	Standard int
	Elevated int
}

func LimitsFromConfig(cfg config.QuotaConfig) Limits {
	return Limits{
		Standard: cfg.DailyLimitStandard,
		Elevated: cfg.DailyLimitElevated,
	}
}

// ForRole returns the daily cap for the given effective role. Admins get the
// elevated cap.
func (l Limits) ForRole(role models.Role) int {
	switch role {
	case models.RolePremium, models.RoleAdmin:
		return l.Elevated
	default:
		return l.Standard
	}
}

// Allow reports whether another message fits under the limit, resetting the
// counter first when the calendar day (UTC) has rolled over since the last
// message. The reset mutates state in place; it happens exactly once per day
// transition because LastMessageDate is updated with it.
func Allow(state *models.QuotaState, limit int, now time.Time) bool {
	today := now.UTC().Truncate(24 * time.Hour)
	if state.LastMessageDate == nil || !sameDay(*state.LastMessageDate, now) {
		state.MessagesUsedToday = 0
		state.LastMessageDate = &today
	}
	return state.MessagesUsedToday < limit
}

// Consume records one sent message against the state.
func Consume(state *models.QuotaState, now time.Time) {
	ts := now.UTC()
	state.MessagesUsedToday++
	state.LastMessageDate = &ts
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
