// Package usage turns raw per-day usage log entries into daily
// actual-vs-target aggregates and performance badges.
package usage

import (
	"fmt"
	"sort"

	"screentime/internal/domain"
	"screentime/internal/timefmt"
)

const (
	BadgeExcellent = "Excellent"
	BadgeGood      = "Good"
	BadgeNeedsWork = "Needs Work"
	BadgeNoTarget  = "No Target"
)

// DefaultPageSize is the number of aggregate rows per table page.
const DefaultPageSize = 5

// Aggregate groups entries by date, sums their seconds and compares each
// date against the task's daily target. The result is sorted by date.
// A zero target yields aggregates with a nil Efficiency.
func Aggregate(taskID int64, entries []domain.UsageEntry, target timefmt.Target) ([]domain.DailyAggregate, error) {
	targetMinutes, err := target.Minutes()
	if err != nil {
		return nil, fmt.Errorf("task %d target: %w", taskID, err)
	}

	grouped := SumByDate(entries)

	out := make([]domain.DailyAggregate, 0, len(grouped))
	for date, seconds := range grouped {
		agg := domain.DailyAggregate{
			Date:          date,
			ActualSeconds: seconds,
			ActualMinutes: timefmt.Round(float64(seconds)/60, 2),
			ActualLabel:   timefmt.FormatLabel(seconds),
			TargetMinutes: targetMinutes,
			TargetLabel:   timefmt.FormatLabel(int64(targetMinutes * 60)),
		}
		if targetMinutes > 0 {
			eff := timefmt.Round(agg.ActualMinutes/targetMinutes*100, 1)
			agg.Efficiency = &eff
		}
		agg.Badge = BadgeFor(agg)
		out = append(out, agg)
	}

	// ISO dates order lexically.
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out, nil
}

// SumByDate adds up seconds per date.
func SumByDate(entries []domain.UsageEntry) map[string]int64 {
	grouped := make(map[string]int64)
	for _, e := range entries {
		grouped[e.Date] += e.Seconds
	}
	return grouped
}

// Badge classifies an efficiency percentage. Lower bounds are inclusive.
func Badge(efficiency float64) string {
	switch {
	case efficiency >= 100:
		return BadgeExcellent
	case efficiency >= 75:
		return BadgeGood
	default:
		return BadgeNeedsWork
	}
}

func BadgeFor(agg domain.DailyAggregate) string {
	if agg.Efficiency == nil {
		return BadgeNoTarget
	}
	return Badge(*agg.Efficiency)
}

// AverageEfficiency averages the aggregates that have a target.
// ok is false when none do.
func AverageEfficiency(aggs []domain.DailyAggregate) (avg float64, ok bool) {
	var sum float64
	n := 0
	for _, a := range aggs {
		if a.Efficiency == nil {
			continue
		}
		sum += *a.Efficiency
		n++
	}
	if n == 0 {
		return 0, false
	}
	return timefmt.Round(sum/float64(n), 1), true
}

// Page returns the zero-based page of aggs and the total page count.
func Page(aggs []domain.DailyAggregate, page, perPage int) ([]domain.DailyAggregate, int) {
	if perPage <= 0 {
		perPage = DefaultPageSize
	}
	total := (len(aggs) + perPage - 1) / perPage
	if page < 0 || page >= total {
		return []domain.DailyAggregate{}, total
	}
	end := (page + 1) * perPage
	if end > len(aggs) {
		end = len(aggs)
	}
	return aggs[page*perPage : end], total
}
