package classify

import (
	"regexp"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Vector/vector-trip-scraper/models"
)

var (
	// <Airline> <AAA>-<BBB> <amount> <currency>
	flightRouteRe = regexp.MustCompile(
		`((?:[A-Z][\w&'.]*[ \t]+){0,3}[A-Z][\w&'.]*)[ \t]+([A-Z]{3})\s*[-–]\s*([A-Z]{3})\s+(` + amountExpr + `)\s*(CAD|USD)\b`,
	)
	timeRangeRe = regexp.MustCompile(
		`(?i)(\d{1,2}:\d{2}\s*[AP]M)\s*[–-]\s*(\d{1,2}:\d{2}\s*[AP]M(?:\s*\+\d)?)`,
	)
	baggageRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)includes\s+personal\s+item[^\n•]*?for\s+free`),
		regexp.MustCompile(`(?i)\d+\s+check(?:ed)?\s+bags?[^\n•]*?\d+\s*kg`),
		regexp.MustCompile(`(?i)personal\s+item[^\n•]*?free`),
		regexp.MustCompile(`(?i)carry-on[^\n•]*?free`),
	}
)

// ParseFlights reads every flight in a block of free text. The text is cut
// into spans, one per route match, and each flight takes its fields from its
// own span only. Text before the first route belongs to the first span.
func ParseFlights(text string) []models.Flight {
	matches := flightRouteRe.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return nil
	}

	flights := make([]models.Flight, 0, len(matches))

	// the airline capture may run into the previous flight's words
	for _, m := range matches {
		m[2] = airlineStart(text, m[2], m[3])
		m[0] = m[2]
	}

	for i, m := range matches {
		start := m[0]
		if i == 0 {
			start = 0
		}

		end := len(text)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}

		flights = append(flights, parseFlightSpan(text, m, start, end))
	}

	return flights
}

func parseFlightSpan(text string, m []int, start, end int) models.Flight {
	ans := models.Flight{
		Airline:          collapseSpaces(text[m[2]:m[3]]),
		DepartureAirport: text[m[4]:m[5]],
		ArrivalAirport:   text[m[6]:m[7]],
		Currency:         strings.ToUpper(text[m[10]:m[11]]),
	}

	if amount, err := ParseAmount(text[m[8]:m[9]]); err == nil {
		ans.Price = decimal.NewNullDecimal(amount)
	}

	span := text[start:end]

	if dep, arr, ok := ParseTimeRange(span); ok {
		ans.DepartureTime = dep
		ans.ArrivalTime = arr
	}

	ans.Baggage = BaggageNotes(span)

	return ans
}

// airlineTrailers end the previous flight's text on a joined line, as in
// "... 9:15 AM Porter Airlines" or "... for FREE Porter Airlines".
var airlineTrailers = map[string]struct{}{
	"am":       {},
	"pm":       {},
	"free":     {},
	"kg":       {},
	"included": {},
}

// airlineStart skips leading words of the airline capture text[start:end]
// that close the text before it. The last word is always kept.
func airlineStart(text string, start, end int) int {
	for {
		word := text[start:end]
		if i := strings.IndexAny(word, " \t"); i >= 0 {
			word = word[:i]
		} else {
			return start
		}

		if _, ok := airlineTrailers[strings.ToLower(word)]; !ok {
			return start
		}

		start += len(word)
		for start < end && (text[start] == ' ' || text[start] == '\t') {
			start++
		}
	}
}

// ParseTimeRange returns the first "7:00 AM – 9:15 PM(+1)" range in text.
func ParseTimeRange(text string) (string, string, bool) {
	m := timeRangeRe.FindStringSubmatch(text)
	if m == nil {
		return "", "", false
	}

	return collapseSpaces(m[1]), strings.ReplaceAll(collapseSpaces(m[2]), " +", "+"), true
}

// BaggageNotes collects baggage allowances mentioned in text, joined by " • ".
// Overlapping phrases are reported once.
func BaggageNotes(text string) string {
	type hit struct {
		start, end int
	}

	var hits []hit

	for _, re := range baggageRes {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			hits = append(hits, hit{start: loc[0], end: loc[1]})
		}
	}

	if len(hits) == 0 {
		return ""
	}

	sort.SliceStable(hits, func(i, j int) bool {
		return hits[i].start < hits[j].start
	})

	var (
		parts   []string
		lastEnd = -1
	)

	for _, h := range hits {
		if h.start < lastEnd {
			continue
		}

		parts = append(parts, collapseSpaces(text[h.start:h.end]))
		lastEnd = h.end
	}

	return strings.Join(parts, " • ")
}
