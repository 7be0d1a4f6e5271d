package usage

import "screentime/internal/domain"

// TodaySeconds sums the entries dated today.
func TodaySeconds(entries []domain.UsageEntry, today string) int64 {
	var total int64
	for _, e := range entries {
		if e.Date == today {
			total += e.Seconds
		}
	}
	return total
}

// LastEntrySeconds returns the seconds of the last entry dated today, or 0.
func LastEntrySeconds(entries []domain.UsageEntry, today string) int64 {
	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].Date == today {
			return entries[i].Seconds
		}
	}
	return 0
}

// FilterDate keeps the entries for one date, preserving order.
func FilterDate(entries []domain.UsageEntry, date string) []domain.UsageEntry {
	out := make([]domain.UsageEntry, 0, len(entries))
	for _, e := range entries {
		if e.Date == date {
			out = append(out, e)
		}
	}
	return out
}
