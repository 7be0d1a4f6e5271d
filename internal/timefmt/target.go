package timefmt

import (
	"bytes"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Target is a task's per-day goal. The store keeps it as an "HH:MM:SS" or
// "H:MM" string or as a plain hour count; all decode here.
type Target struct {
	text  string
	hours float64
	set   bool
}

func TargetFromHours(h float64) Target {
	return Target{hours: h, set: true}
}

func TargetFromText(s string) Target {
	return Target{text: strings.TrimSpace(s), set: true}
}

func (t Target) IsZero() bool { return !t.set }

// Hours resolves the target to decimal hours.
func (t Target) Hours() (float64, error) {
	if !t.set {
		return 0, nil
	}
	if t.text == "" {
		return t.hours, nil
	}
	if !strings.Contains(t.text, ":") {
		h, err := strconv.ParseFloat(t.text, 64)
		if err != nil || h < 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidDuration, t.text)
		}
		return h, nil
	}
	if strings.Count(t.text, ":") == 1 {
		return parseHoursMinutes(t.text)
	}
	return ParseDurationToHours(t.text)
}

// parseHoursMinutes reads the short "H:MM" form some targets are stored in.
func parseHoursMinutes(text string) (float64, error) {
	hs, ms, _ := strings.Cut(text, ":")
	h, herr := strconv.Atoi(hs)
	m, merr := strconv.Atoi(ms)
	if herr != nil || merr != nil || h < 0 || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q: want H:MM", ErrInvalidDuration, text)
	}
	return float64(h) + float64(m)/60, nil
}

// Minutes is the target in minutes rounded to two decimals.
func (t Target) Minutes() (float64, error) {
	h, err := t.Hours()
	if err != nil {
		return 0, err
	}
	return HoursToMinutes(h), nil
}

func (t Target) String() string {
	if t.text != "" {
		return t.text
	}
	return strconv.FormatFloat(t.hours, 'f', -1, 64)
}

func (t Target) MarshalJSON() ([]byte, error) {
	if !t.set {
		return []byte("null"), nil
	}
	if t.text != "" {
		return json.Marshal(t.text)
	}
	return json.Marshal(t.hours)
}

func (t *Target) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*t = Target{}
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = TargetFromText(s)
		return nil
	}
	var h float64
	if err := json.Unmarshal(b, &h); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidDuration, b)
	}
	*t = TargetFromHours(h)
	return nil
}

// Scan implements sql.Scanner for the hours_perday column.
func (t *Target) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*t = Target{}
	case string:
		*t = TargetFromText(v)
	case []byte:
		*t = TargetFromText(string(v))
	case float64:
		*t = TargetFromHours(v)
	case int64:
		*t = TargetFromHours(float64(v))
	default:
		return fmt.Errorf("timefmt: cannot scan %T into Target", src)
	}
	return nil
}

func (t Target) Value() (driver.Value, error) {
	if !t.set {
		return nil, nil
	}
	return t.String(), nil
}
