package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"notification-engine/internal/models"
)

func activeRule() *models.Rule {
	return &models.Rule{
		ID:   "rule-001",
		Name: "low rating alert",
		Settings: models.RuleSettings{
			IsActive: true,
		},
	}
}

func atClock(hour, minute int) time.Time {
	return time.Date(2025, 3, 10, hour, minute, 0, 0, time.UTC)
}

func TestCanFire_ActiveFlag(t *testing.T) {
	rule := activeRule()
	now := atClock(12, 0)

	assert.True(t, CanFire(rule, now))

	rule.Settings.IsActive = false
	assert.False(t, CanFire(rule, now))
}

func TestCanFire_TimeWindow(t *testing.T) {
	tests := []struct {
		name     string
		window   *models.TimeWindow
		now      time.Time
		expected bool
	}{
		{
			name:     "no window",
			window:   nil,
			now:      atClock(3, 0),
			expected: true,
		},
		{
			name:     "missing start disables the window",
			window:   &models.TimeWindow{End: "17:00"},
			now:      atClock(3, 0),
			expected: true,
		},
		{
			name:     "missing end disables the window",
			window:   &models.TimeWindow{Start: "09:00"},
			now:      atClock(3, 0),
			expected: true,
		},
		{
			name:     "inside same day window",
			window:   &models.TimeWindow{Start: "09:00", End: "17:00"},
			now:      atClock(12, 30),
			expected: true,
		},
		{
			name:     "before same day window",
			window:   &models.TimeWindow{Start: "09:00", End: "17:00"},
			now:      atClock(8, 59),
			expected: false,
		},
		{
			name:     "start bound is inclusive",
			window:   &models.TimeWindow{Start: "09:00", End: "17:00"},
			now:      atClock(9, 0),
			expected: true,
		},
		{
			name:     "end bound is inclusive",
			window:   &models.TimeWindow{Start: "09:00", End: "17:00"},
			now:      atClock(17, 0),
			expected: true,
		},
		{
			name:     "after same day window",
			window:   &models.TimeWindow{Start: "09:00", End: "17:00"},
			now:      atClock(17, 1),
			expected: false,
		},
		{
			name:     "overnight window late evening",
			window:   &models.TimeWindow{Start: "22:00", End: "06:00"},
			now:      atClock(23, 30),
			expected: true,
		},
		{
			name:     "overnight window early morning",
			window:   &models.TimeWindow{Start: "22:00", End: "06:00"},
			now:      atClock(2, 0),
			expected: true,
		},
		{
			name:     "overnight window midday",
			window:   &models.TimeWindow{Start: "22:00", End: "06:00"},
			now:      atClock(12, 0),
			expected: false,
		},
		{
			name:     "overnight start bound is inclusive",
			window:   &models.TimeWindow{Start: "22:00", End: "06:00"},
			now:      atClock(22, 0),
			expected: true,
		},
		{
			name:     "overnight end bound is inclusive",
			window:   &models.TimeWindow{Start: "22:00", End: "06:00"},
			now:      atClock(6, 0),
			expected: true,
		},
		{
			name:     "overnight just past end",
			window:   &models.TimeWindow{Start: "22:00", End: "06:00"},
			now:      atClock(6, 1),
			expected: false,
		},
		{
			name:     "malformed start disables the window",
			window:   &models.TimeWindow{Start: "9am", End: "17:00"},
			now:      atClock(3, 0),
			expected: true,
		},
		{
			name:     "out of range hour disables the window",
			window:   &models.TimeWindow{Start: "25:00", End: "17:00"},
			now:      atClock(3, 0),
			expected: true,
		},
		{
			name:     "window in rule timezone",
			window:   &models.TimeWindow{Start: "09:00", End: "17:00", Timezone: "America/New_York"},
			now:      atClock(14, 0), // 09:00 or 10:00 in New York
			expected: true,
		},
		{
			name:     "outside window in rule timezone",
			window:   &models.TimeWindow{Start: "09:00", End: "17:00", Timezone: "America/New_York"},
			now:      atClock(3, 0), // previous evening in New York
			expected: false,
		},
		{
			name:     "unknown timezone falls back to UTC",
			window:   &models.TimeWindow{Start: "09:00", End: "17:00", Timezone: "Mars/Olympus"},
			now:      atClock(12, 0),
			expected: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := activeRule()
			rule.Settings.TimeWindow = tt.window
			assert.Equal(t, tt.expected, CanFire(rule, tt.now))
		})
	}
}

func TestCanFire_Cooldown(t *testing.T) {
	lastTriggered := atClock(12, 0)

	tests := []struct {
		name            string
		cooldownMinutes int
		lastTriggered   *time.Time
		now             time.Time
		expected        bool
	}{
		{
			name:            "no cooldown configured",
			cooldownMinutes: 0,
			lastTriggered:   &lastTriggered,
			now:             atClock(12, 1),
			expected:        true,
		},
		{
			name:            "never triggered",
			cooldownMinutes: 10,
			lastTriggered:   nil,
			now:             atClock(12, 1),
			expected:        true,
		},
		{
			name:            "inside cooldown",
			cooldownMinutes: 10,
			lastTriggered:   &lastTriggered,
			now:             atClock(12, 5),
			expected:        false,
		},
		{
			name:            "exactly at cooldown boundary",
			cooldownMinutes: 10,
			lastTriggered:   &lastTriggered,
			now:             atClock(12, 10),
			expected:        true,
		},
		{
			name:            "past cooldown",
			cooldownMinutes: 10,
			lastTriggered:   &lastTriggered,
			now:             atClock(12, 11),
			expected:        true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := activeRule()
			rule.Settings.CooldownMinutes = tt.cooldownMinutes
			rule.Statistics.LastTriggered = tt.lastTriggered
			assert.Equal(t, tt.expected, CanFire(rule, tt.now))
		})
	}
}

func TestCanFire_InactiveShortCircuits(t *testing.T) {
	// An inactive rule is gated even when window and cooldown would pass.
	lastTriggered := atClock(1, 0)
	rule := activeRule()
	rule.Settings.IsActive = false
	rule.Settings.TimeWindow = &models.TimeWindow{Start: "00:00", End: "23:59"}
	rule.Settings.CooldownMinutes = 1
	rule.Statistics.LastTriggered = &lastTriggered

	assert.False(t, CanFire(rule, atClock(12, 0)))
}
