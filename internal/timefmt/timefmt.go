// Package timefmt converts raw second counts and per-day targets into
// display labels and normalized minute values.
package timefmt

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// DateLayout is the calendar date format used by usage log entries.
const DateLayout = time.DateOnly

var ErrInvalidDuration = errors.New("invalid duration")

// ParseDurationToHours parses "H:MM:SS" into decimal hours.
func ParseDurationToHours(text string) (float64, error) {
	parts := strings.Split(strings.TrimSpace(text), ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("%w: %q: want H:MM:SS", ErrInvalidDuration, text)
	}

	var fields [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("%w: %q: field %d is not a non-negative integer", ErrInvalidDuration, text, i+1)
		}
		fields[i] = n
	}
	if fields[1] > 59 || fields[2] > 59 {
		return 0, fmt.Errorf("%w: %q: minutes and seconds must be below 60", ErrInvalidDuration, text)
	}

	return float64(fields[0]) + float64(fields[1])/60 + float64(fields[2])/3600, nil
}

// FormatSeconds renders a second count as "n sec", "n min" or "n.n hr".
func FormatSeconds(seconds int64) string {
	switch {
	case seconds < 60:
		return fmt.Sprintf("%d sec", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%d min", seconds/60)
	default:
		return fmt.Sprintf("%.1f hr", float64(seconds)/3600)
	}
}

// FormatLabel renders the longer chart label, e.g. "2 hrs 5 min".
func FormatLabel(seconds int64) string {
	totalMinutes := seconds / 60
	hrs := totalMinutes / 60
	min := totalMinutes % 60

	switch {
	case hrs >= 1:
		label := fmt.Sprintf("%d hr", hrs)
		if hrs > 1 {
			label += "s"
		}
		if min > 0 {
			label += fmt.Sprintf(" %d min", min)
		}
		return label
	case totalMinutes >= 1:
		return fmt.Sprintf("%d min", totalMinutes)
	default:
		return fmt.Sprintf("%d sec", seconds)
	}
}

func HoursToMinutes(hours float64) float64 {
	return Round(hours*60, 2)
}

// Round rounds half away from zero to the given number of decimals.
func Round(v float64, decimals int) float64 {
	p := math.Pow(10, float64(decimals))
	return math.Round(v*p) / p
}

// DateOf returns the calendar date of t in t's location.
func DateOf(t time.Time) string {
	return t.Format(DateLayout)
}
