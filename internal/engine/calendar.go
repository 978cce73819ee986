package engine

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidDateRange reports an exam window whose end precedes its start
	// or whose bounds cannot be parsed.
	ErrInvalidDateRange = errors.New("invalid exam date range")
	// ErrInvalidSlotConfig reports non-positive slot counts/durations or an
	// explicit time list that does not match slots-per-day.
	ErrInvalidSlotConfig = errors.New("invalid slot configuration")
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"
)

// defaultDayStart anchors evenly spaced slots when no explicit start times
// are supplied: the first exam of each day begins at 09:00 local time.
const defaultDayStart = 9 * time.Hour

// CalendarConfig describes how the exam window expands into concrete slots.
type CalendarConfig struct {
	StartDate    string   // inclusive, YYYY-MM-DD
	EndDate      string   // inclusive, YYYY-MM-DD
	SlotsPerDay  int
	SlotTimes    []string // optional explicit HH:MM starts; length must equal SlotsPerDay
	SlotDuration int      // minutes
	Holidays     []string // YYYY-MM-DD dates excluded from slot generation
	Timezone     string   // IANA name, empty means UTC
}

// BuildSlots expands the configured exam window into an ordered slot list.
// Days listed as holidays produce no slots at all; slot IDs stay dense so the
// same parameters always generate the same calendar.
func BuildSlots(cfg CalendarConfig) ([]Slot, error) {
	if cfg.SlotsPerDay <= 0 {
		return nil, fmt.Errorf("%w: slotsPerDay must be positive, got %d", ErrInvalidSlotConfig, cfg.SlotsPerDay)
	}
	if cfg.SlotDuration <= 0 {
		return nil, fmt.Errorf("%w: slot duration must be positive, got %d", ErrInvalidSlotConfig, cfg.SlotDuration)
	}
	if len(cfg.SlotTimes) > 0 && len(cfg.SlotTimes) != cfg.SlotsPerDay {
		return nil, fmt.Errorf("%w: %d explicit slot times for %d slots per day", ErrInvalidSlotConfig, len(cfg.SlotTimes), cfg.SlotsPerDay)
	}

	loc := time.UTC
	if cfg.Timezone != "" {
		parsed, err := time.LoadLocation(cfg.Timezone)
		if err == nil {
			loc = parsed
		}
	}

	start, err := time.ParseInLocation(dateLayout, cfg.StartDate, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: bad start date %q", ErrInvalidDateRange, cfg.StartDate)
	}
	end, err := time.ParseInLocation(dateLayout, cfg.EndDate, loc)
	if err != nil {
		return nil, fmt.Errorf("%w: bad end date %q", ErrInvalidDateRange, cfg.EndDate)
	}
	if end.Before(start) {
		return nil, fmt.Errorf("%w: end %s precedes start %s", ErrInvalidDateRange, cfg.EndDate, cfg.StartDate)
	}

	offsets, err := slotOffsets(cfg)
	if err != nil {
		return nil, err
	}

	holidays := make(map[string]struct{}, len(cfg.Holidays))
	for _, h := range cfg.Holidays {
		holidays[h] = struct{}{}
	}

	duration := time.Duration(cfg.SlotDuration) * time.Minute
	var slots []Slot
	dayIndex := 0
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if _, skip := holidays[day.Format(dateLayout)]; skip {
			continue
		}
		for i, offset := range offsets {
			slots = append(slots, Slot{
				ID:         len(slots),
				Start:      day.Add(offset),
				Duration:   duration,
				DayIndex:   dayIndex,
				IndexInDay: i,
			})
		}
		dayIndex++
	}
	return slots, nil
}

// slotOffsets resolves per-day start offsets from midnight, either from the
// explicit time list or by spacing slots one duration apart from the default
// day start.
func slotOffsets(cfg CalendarConfig) ([]time.Duration, error) {
	offsets := make([]time.Duration, 0, cfg.SlotsPerDay)
	if len(cfg.SlotTimes) > 0 {
		for _, raw := range cfg.SlotTimes {
			t, err := time.Parse(timeLayout, raw)
			if err != nil {
				return nil, fmt.Errorf("%w: bad slot time %q", ErrInvalidSlotConfig, raw)
			}
			offsets = append(offsets, time.Duration(t.Hour())*time.Hour+time.Duration(t.Minute())*time.Minute)
		}
		return offsets, nil
	}
	step := time.Duration(cfg.SlotDuration) * time.Minute
	for i := 0; i < cfg.SlotsPerDay; i++ {
		offsets = append(offsets, defaultDayStart+time.Duration(i)*step)
	}
	return offsets, nil
}
