package appointment

import "time"

// SlotStep is the fixed slot granularity. It does not depend on appointment durations.
const SlotStep = 30

// ComputeSlots lists the free slot start times for date given a doctor's weekly template and
// the doctor's active appointments. Only exact start-time collisions remove a slot.
func ComputeSlots(availability []AvailabilityEntry, booked []Appointment, date time.Time) []string {
	day := WeekdayOf(date)

	var entry *AvailabilityEntry
	for i := range availability {
		if availability[i].DayOfWeek == day && availability[i].IsAvailable {
			entry = &availability[i]
			break
		}
	}
	if entry == nil {
		return []string{}
	}

	start, err := minutesOf(entry.StartTime)
	if err != nil {
		return []string{}
	}
	end, err := minutesOf(entry.EndTime)
	if err != nil {
		return []string{}
	}

	taken := make(map[string]struct{}, len(booked))
	for _, a := range booked {
		if a.Status.Active() {
			taken[a.Time] = struct{}{}
		}
	}

	slots := []string{}
	for m := start; m < end; m += SlotStep {
		t := formatMinutes(m)
		if _, ok := taken[t]; ok {
			continue
		}
		slots = append(slots, t)
	}
	return slots
}
