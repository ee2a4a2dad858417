package classify

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Vector/vector-trip-scraper/models"
)

// SectionKind says what an itinerary section holds, judged by its heading.
type SectionKind int

const (
	SectionOther SectionKind = iota
	SectionEmpty
	SectionNotes
	SectionFlights
	SectionHotels
	SectionCarRental
	SectionActivities
	SectionBudget
)

func ClassifySection(heading string) SectionKind {
	h := strings.TrimSpace(heading)
	lower := strings.ToLower(h)

	switch {
	case h == "":
		return SectionEmpty
	case lower == "notes":
		return SectionNotes
	case lower == "flight" || lower == "flights":
		return SectionFlights
	case strings.Contains(h, "Hotel") || strings.Contains(lower, "lodging"):
		return SectionHotels
	case strings.Contains(h, "Car") || strings.Contains(lower, "rental"):
		return SectionCarRental
	case lower == "activities" || lower == "places to visit":
		return SectionActivities
	case lower == "budget":
		return SectionBudget
	default:
		return SectionOther
	}
}

// HoldsActivities reports whether place blocks of a section are activities.
func (k SectionKind) HoldsActivities() bool {
	return k == SectionOther || k == SectionActivities
}

// IsDay reports whether a section is a candidate itinerary day.
func (k SectionKind) IsDay() bool {
	return k == SectionOther
}

var foodTypes = map[string]struct{}{
	"restaurant":    {},
	"cafe":          {},
	"bar":           {},
	"bakery":        {},
	"food":          {},
	"meal_takeaway": {},
	"meal_delivery": {},
}

// ScheduleItemType tags a place as food or a plain activity.
func ScheduleItemType(types []string) string {
	for _, t := range types {
		if _, ok := foodTypes[t]; ok {
			return models.ItemFood
		}
	}

	return models.ItemActivity
}

var (
	monthDayRe = regexp.MustCompile(
		`(?i)\b(jan(?:uary)?|feb(?:ruary)?|mar(?:ch)?|apr(?:il)?|may|june?|july?|aug(?:ust)?|sept?(?:ember)?|oct(?:ober)?|nov(?:ember)?|dec(?:ember)?)\.?\s+(\d{1,2})(?:st|nd|rd|th)?\b(?:,?\s*(\d{4}))?`,
	)
	slashDateRe = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{4}))?\b`)
	months      = map[string]time.Month{
		"jan": time.January, "feb": time.February, "mar": time.March,
		"apr": time.April, "may": time.May, "jun": time.June,
		"jul": time.July, "aug": time.August, "sep": time.September,
		"oct": time.October, "nov": time.November,
		"dec": time.December,
	}
)

// ParseScheduleDate reads a calendar date out of a day heading such as
// "Sunday, July 13th" or "7/13" and returns it as YYYY-MM-DD. The year
// defaults to the year of ref. An empty string means no date was found.
func ParseScheduleDate(heading string, ref time.Time) string {
	year := ref.Year()

	if m := monthDayRe.FindStringSubmatch(heading); m != nil {
		day, _ := strconv.Atoi(m[2])
		if m[3] != "" {
			year, _ = strconv.Atoi(m[3])
		}

		return formatDate(year, months[strings.ToLower(m[1])[:3]], day)
	}

	if m := slashDateRe.FindStringSubmatch(heading); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])

		if m[3] != "" {
			year, _ = strconv.Atoi(m[3])
		}

		if month < 1 || month > 12 {
			return ""
		}

		return formatDate(year, time.Month(month), day)
	}

	return ""
}

func formatDate(year int, month time.Month, day int) string {
	if day < 1 || day > 31 {
		return ""
	}

	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if d.Month() != month {
		return ""
	}

	return d.Format(time.DateOnly)
}
