package wanderlog

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/Vector/vector-trip-scraper/models"
	"github.com/Vector/vector-trip-scraper/wanderlog/classify"
)

const lodgingMatchLen = 15

// StructuredData is the typed projection of the client state.
type StructuredData struct {
	Title      string                 `json:"title"`
	Creator    string                 `json:"creator"`
	StartDate  string                 `json:"start_date"`
	EndDate    string                 `json:"end_date"`
	Notes      string                 `json:"notes"`
	Flights    []models.Flight        `json:"flights"`
	Hotels     []models.Hotel         `json:"hotels"`
	CarRentals []models.CarRental     `json:"car_rentals"`
	Activities []models.Activity      `json:"activities"`
	Schedule   []models.DailySchedule `json:"daily_schedule"`
}

// Project turns client state into typed records. ref supplies the year for
// day headings that carry none. A nil state yields an empty result.
func Project(st *State, ref time.Time) StructuredData {
	plan := st.Plan()
	if plan == nil {
		return StructuredData{}
	}

	ans := StructuredData{
		Title:     strings.TrimSpace(plan.Title),
		StartDate: isoDate(plan.StartDate),
		EndDate:   isoDate(plan.EndDate),
	}

	if plan.User != nil {
		ans.Creator = firstNonEmpty(plan.User.Name, plan.User.Username)
	}

	var notes []string

	activities := newActivitySet()

	for _, sec := range plan.Itinerary.Sections {
		kind := classify.ClassifySection(sec.Heading)

		switch kind {
		case classify.SectionNotes:
			notes = append(notes, sectionNotes(sec)...)
		case classify.SectionFlights:
			ans.Flights = append(ans.Flights, sectionFlights(sec)...)
		case classify.SectionHotels:
			ans.Hotels = append(ans.Hotels, sectionHotels(sec)...)
		case classify.SectionCarRental:
			ans.CarRentals = append(ans.CarRentals, sectionCarRentals(sec)...)
		}

		if kind.HoldsActivities() {
			for _, b := range sec.Blocks {
				if b.Type == BlockPlace && b.Place != nil && strings.TrimSpace(b.Place.Name) != "" {
					activities.add(b.Place)
				}
			}
		}

		if kind.IsDay() {
			if day, ok := sectionDay(sec, len(ans.Schedule)+1, ref); ok {
				ans.Schedule = append(ans.Schedule, day)
			}
		}
	}

	ans.Activities = activities.list
	ans.Notes = strings.Join(notes, "\n\n")

	if budget := plan.Itinerary.Budget; budget != nil {
		applyLodgingExpenses(ans.Hotels, budget.Expenses)
		ans.CarRentals = append(ans.CarRentals, expenseCarRentals(budget.Expenses)...)
	}

	if ans.StartDate == "" || ans.EndDate == "" {
		first, last := scheduleDateRange(ans.Schedule)
		ans.StartDate = firstNonEmpty(ans.StartDate, first)
		ans.EndDate = firstNonEmpty(ans.EndDate, last)
	}

	return ans
}

func sectionNotes(sec StateSection) []string {
	var ans []string

	if t := sec.Text.String(); t != "" {
		ans = append(ans, t)
	}

	for _, b := range sec.Blocks {
		if b.Type == BlockNote {
			if t := b.Text.String(); t != "" {
				ans = append(ans, t)
			}
		}
	}

	return ans
}

// sectionFlights parses each note block on its own so a flight's fields can
// never come from a neighbouring block.
func sectionFlights(sec StateSection) []models.Flight {
	var ans []models.Flight

	for _, text := range sectionNotes(sec) {
		ans = append(ans, classify.ParseFlights(text)...)
	}

	return ans
}

func sectionHotels(sec StateSection) []models.Hotel {
	var ans []models.Hotel

	for _, b := range sec.Blocks {
		if b.Type != BlockPlace || b.Place == nil || strings.TrimSpace(b.Place.Name) == "" {
			continue
		}

		price := classify.ParseHotelPrice(b.Text.String())

		ans = append(ans, models.Hotel{
			Name:      strings.TrimSpace(b.Place.Name),
			RoomType:  price.Rest,
			Amenities: b.Place.AmenityList(),
			Rating:    b.Place.Rating,
			Price:     price.Price,
			Currency:  price.Currency,
			Address:   b.Place.FormattedAddress,
			Photos:    b.Place.PhotoURLs,
		})
	}

	return ans
}

func sectionCarRentals(sec StateSection) []models.CarRental {
	var ans []models.CarRental

	for _, b := range sec.Blocks {
		if b.Type != BlockNote {
			continue
		}

		if car, ok := classify.ParseCarRentalNote(b.Text.String()); ok {
			ans = append(ans, car)
		}
	}

	return ans
}

func expenseCarRentals(expenses []Expense) []models.CarRental {
	var ans []models.CarRental

	for _, e := range expenses {
		if !classify.IsCarRentalExpense(e.Category, e.Description) {
			continue
		}

		car := models.CarRental{
			Company:     classify.CarRentalCompany(e.Description),
			VehicleType: firstNonEmpty(classify.VehicleType(e.Description), strings.TrimSpace(e.Description)),
			Currency:    "CAD",
		}

		if e.Amount != nil {
			car.Price = decimal.NewNullDecimal(decimal.NewFromFloat(e.Amount.Amount))
			car.Currency = firstNonEmpty(strings.ToUpper(e.Amount.CurrencyCode), car.Currency)
		}

		ans = append(ans, car)
	}

	return ans
}

// applyLodgingExpenses lets the budget's lodging lines override the prices
// read from hotel notes. A line matches a hotel when its description holds
// the start of the hotel name.
func applyLodgingExpenses(hotels []models.Hotel, expenses []Expense) {
	for i := range hotels {
		prefix := strings.ToLower(hotels[i].Name)
		if len(prefix) > lodgingMatchLen {
			prefix = prefix[:lodgingMatchLen]
		}

		for _, e := range expenses {
			if !strings.EqualFold(e.Category, "lodging") || e.Amount == nil {
				continue
			}

			if strings.Contains(strings.ToLower(e.Description), prefix) {
				hotels[i].Price = decimal.NewNullDecimal(decimal.NewFromFloat(e.Amount.Amount))
				hotels[i].Currency = firstNonEmpty(strings.ToUpper(e.Amount.CurrencyCode), hotels[i].Currency)

				break
			}
		}
	}
}

func sectionDay(sec StateSection, dayNumber int, ref time.Time) (models.DailySchedule, bool) {
	day := models.DailySchedule{
		DayNumber: dayNumber,
		Heading:   strings.TrimSpace(sec.Heading),
	}

	for _, b := range sec.Blocks {
		if b.Type != BlockPlace || b.Place == nil || strings.TrimSpace(b.Place.Name) == "" {
			continue
		}

		day.Items = append(day.Items, models.ScheduleItem{
			Type:        classify.ScheduleItemType(b.Place.Types),
			Name:        strings.TrimSpace(b.Place.Name),
			ActivityKey: classify.StableKey(b.Place.PlaceID, b.Place.Name),
		})
	}

	if len(day.Items) == 0 {
		return models.DailySchedule{}, false
	}

	day.Date = isoDate(sec.Date)
	if day.Date == "" {
		day.Date = classify.ParseScheduleDate(sec.Heading, ref)
	}

	return day, true
}

func scheduleDateRange(days []models.DailySchedule) (string, string) {
	var first, last string

	for _, d := range days {
		if d.Date == "" {
			continue
		}

		if first == "" || d.Date < first {
			first = d.Date
		}

		if d.Date > last {
			last = d.Date
		}
	}

	return first, last
}

type activitySet struct {
	index map[string]int
	list  []models.Activity
}

func newActivitySet() *activitySet {
	return &activitySet{index: make(map[string]int)}
}

// add records a place as an activity. A place that shows up on several days
// is one activity; later sightings only contribute new photos.
func (s *activitySet) add(p *Place) {
	key := classify.StableKey(p.PlaceID, p.Name)

	if i, ok := s.index[key]; ok {
		s.list[i].Images = appendMissing(s.list[i].Images, p.PhotoURLs...)

		return
	}

	s.index[key] = len(s.list)
	s.list = append(s.list, models.Activity{
		Key:         key,
		Name:        strings.TrimSpace(p.Name),
		Description: classify.DescribePlace(p.Name, p.Types, p.Rating),
		Address:     p.FormattedAddress,
		Rating:      p.Rating,
		Contact:     p.InternationalPhoneNumber,
		Category:    classify.Category(p.Types),
		Images:      appendMissing(nil, p.PhotoURLs...),
	})
}

func appendMissing(dst []string, urls ...string) []string {
	for _, u := range urls {
		if u == "" {
			continue
		}

		found := false

		for _, d := range dst {
			if d == u {
				found = true

				break
			}
		}

		if !found {
			dst = append(dst, u)
		}
	}

	return dst
}

func isoDate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) < len(time.DateOnly) {
		return ""
	}

	if _, err := time.Parse(time.DateOnly, s[:len(time.DateOnly)]); err != nil {
		return ""
	}

	return s[:len(time.DateOnly)]
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}

	return ""
}
