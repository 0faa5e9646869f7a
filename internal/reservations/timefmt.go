package reservations

import (
	"strings"
	"time"
)

const (
	dateLayout  = "2006-01-02"
	clockLayout = "15:04:05"
)

// accepted clock inputs, 12-hour forms first
var clockInputs = []string{
	"3:04 PM",
	"3:04PM",
	"3:04:05 PM",
	"3:04:05PM",
	"15:04:05",
	"15:04",
}

var dateInputs = []string{
	dateLayout,
	"2006/01/02",
	time.RFC3339Nano,
	time.RFC3339,
}

// narrow and non-breaking spaces show up in times copied from locale-formatted UIs
var spaceFolder = strings.NewReplacer("\u202f", " ", "\u00a0", " ")

// NormalizeClock turns free-form input such as "6:30 pm" or "6:30 PM" into HH:mm:ss
func NormalizeClock(field, raw string) (string, error) {
	s := strings.ToUpper(strings.Join(strings.Fields(spaceFolder.Replace(raw)), " "))
	if s == "" {
		return "", invalid(field, "is required")
	}
	for _, layout := range clockInputs {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format(clockLayout), nil
		}
	}
	return "", invalid(field, "must look like 6:30 PM or 18:30")
}

// NormalizeDate returns YYYY-MM-DD. Timestamps are read in loc so a late-evening UTC
// instant lands on the business's calendar day.
func NormalizeDate(field, raw string, loc *time.Location) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", invalid(field, "is required")
	}
	for _, layout := range dateInputs {
		t, err := time.Parse(layout, s)
		if err != nil {
			continue
		}
		if layout == time.RFC3339 || layout == time.RFC3339Nano {
			t = t.In(loc)
		}
		return t.Format(dateLayout), nil
	}
	return "", invalid(field, "must be a date like 2025-06-01")
}
