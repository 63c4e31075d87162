package engine

import (
	"strconv"
	"strings"
	"time"

	"notification-engine/internal/models"
)

// CanFire reports whether a rule is allowed to fire at now, independent of
// its conditions. Checks run cheapest first and short-circuit: active flag,
// then time window, then cooldown.
func CanFire(rule *models.Rule, now time.Time) bool {
	if !rule.Settings.IsActive {
		return false
	}
	if !inTimeWindow(rule.Settings.TimeWindow, now) {
		return false
	}
	return cooldownElapsed(rule.Settings.CooldownMinutes, rule.Statistics.LastTriggered, now)
}

// inTimeWindow checks now against a daily window expressed in the rule's
// timezone. A window constrains only when both bounds are set. Bounds are
// inclusive. A start later than its end spans midnight: 22:00-06:00 admits
// 23:30 and 02:00 but not 12:00.
func inTimeWindow(window *models.TimeWindow, now time.Time) bool {
	if window == nil || window.Start == "" || window.End == "" {
		return true
	}

	start, ok := parseMinutes(window.Start)
	if !ok {
		return true
	}
	end, ok := parseMinutes(window.End)
	if !ok {
		return true
	}

	local := now.In(windowLocation(window.Timezone))
	current := local.Hour()*60 + local.Minute()

	if start <= end {
		return current >= start && current <= end
	}
	return current >= start || current <= end
}

// windowLocation loads the window's timezone, falling back to UTC when the
// name is empty or unknown.
func windowLocation(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// parseMinutes converts "HH:MM" to minutes since midnight.
func parseMinutes(value string) (int, bool) {
	parts := strings.Split(value, ":")
	if len(parts) != 2 {
		return 0, false
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, false
	}
	return hour*60 + minute, true
}

// cooldownElapsed reports whether enough time has passed since the last
// firing. Elapsed time exactly equal to the cooldown passes.
func cooldownElapsed(cooldownMinutes int, lastTriggered *time.Time, now time.Time) bool {
	if cooldownMinutes <= 0 || lastTriggered == nil {
		return true
	}
	return now.Sub(*lastTriggered) >= time.Duration(cooldownMinutes)*time.Minute
}
