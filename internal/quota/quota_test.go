package quota

import (
	"testing"
	"time"

	"github.com/michael7nightingale/ai-girls/internal/config"
	"github.com/michael7nightingale/ai-girls/internal/models"
)

func TestAllowResetsOnDayRollover(t *testing.T) {
	now := time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)
	yesterday := now.Add(-24 * time.Hour)

	cases := []struct {
		name string
		last *time.Time
		used int
	}{
		{"never sent", nil, 7},
		{"yesterday", &yesterday, 10},
		{"last week", ptrTime(now.Add(-7 * 24 * time.Hour)), 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			state := models.QuotaState{MessagesUsedToday: tc.used, LastMessageDate: tc.last}
			if !Allow(&state, 10, now) {
				t.Fatalf("expected allow after rollover reset")
			}
			if state.MessagesUsedToday != 0 {
				t.Fatalf("expected counter reset, got %d", state.MessagesUsedToday)
			}
			if state.LastMessageDate == nil {
				t.Fatalf("expected last message date set")
			}
		})
	}
}

func TestAllowSameDayKeepsCounter(t *testing.T) {
	now := time.Date(2024, 3, 5, 22, 0, 0, 0, time.UTC)
	earlier := now.Add(-3 * time.Hour)

	state := models.QuotaState{MessagesUsedToday: 4, LastMessageDate: &earlier}
	if !Allow(&state, 10, now) {
		t.Fatalf("expected allow under limit")
	}
	if state.MessagesUsedToday != 4 {
		t.Fatalf("same-day check must not reset counter, got %d", state.MessagesUsedToday)
	}
}

func TestAllowAgainstLimit(t *testing.T) {
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	for used := 0; used < 10; used++ {
		state := models.QuotaState{MessagesUsedToday: used, LastMessageDate: &now}
		if !Allow(&state, 10, now) {
			t.Fatalf("expected allow with used=%d < 10", used)
		}
	}
	for _, used := range []int{10, 11, 100} {
		state := models.QuotaState{MessagesUsedToday: used, LastMessageDate: &now}
		if Allow(&state, 10, now) {
			t.Fatalf("expected deny with used=%d >= 10", used)
		}
	}
}

func TestConsumeThenDeny(t *testing.T) {
	now := time.Date(2024, 3, 5, 12, 0, 0, 0, time.UTC)
	state := models.QuotaState{MessagesUsedToday: 9, LastMessageDate: &now}

	if !Allow(&state, 10, now) {
		t.Fatalf("expected allow at 9/10")
	}
	Consume(&state, now)
	if state.MessagesUsedToday != 10 {
		t.Fatalf("expected 10 used, got %d", state.MessagesUsedToday)
	}
	if Allow(&state, 10, now.Add(time.Minute)) {
		t.Fatalf("expected deny at 10/10")
	}
}

func TestLimitsForRole(t *testing.T) {
	limits := LimitsFromConfig(config.QuotaConfig{DailyLimitStandard: 10, DailyLimitElevated: 100})
	if got := limits.ForRole(models.RoleFree); got != 10 {
		t.Fatalf("free limit = %d, want 10", got)
	}
	if got := limits.ForRole(models.RolePremium); got != 100 {
		t.Fatalf("premium limit = %d, want 100", got)
	}
	if got := limits.ForRole(models.RoleAdmin); got != 100 {
		t.Fatalf("admin limit = %d, want 100", got)
	}
}

func ptrTime(t time.Time) *time.Time { return &t }
