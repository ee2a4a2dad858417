package classify

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/Vector/vector-trip-scraper/models"
)

const UnknownCompany = "Unknown"

var rentalCompanies = []string{
	"Budget",
	"Avis",
	"Enterprise",
	"Hertz",
	"Alamo",
	"National",
	"Sixt",
	"Thrifty",
	"Dollar",
}

// casedCompanies are also plain words and only count when capitalised.
var casedCompanies = map[string]struct{}{
	"Dollar": {},
}

var (
	companyRes = func() []*regexp.Regexp {
		ans := make([]*regexp.Regexp, len(rentalCompanies))
		for i, c := range rentalCompanies {
			flags := `(?i)`
			if _, ok := casedCompanies[c]; ok {
				flags = ""
			}

			ans[i] = regexp.MustCompile(flags + `\b` + c + `\b`)
		}

		return ans
	}()

	carPriceRe = regexp.MustCompile(
		`(?i)(?:C\$|US\$|CAD\s*\$|USD\s*\$)\s*(` + amountExpr + `)|(` + amountExpr + `)\s*(?:CAD|USD)\b`,
	)
	vehicleRe = regexp.MustCompile(
		`(?i)\b(economy|compact|intermediate|mid-?size|standard|full-?size|premium|luxury|convertible|minivan|pickup|suv|van)\b(?:\s+(?:car|suv|vehicle))?`,
	)
	rentalCategories = map[string]struct{}{
		"carrental":      {},
		"car_rental":     {},
		"rental":         {},
		"transportation": {},
	}
	rentalKeywords = []string{"car", "rental", "budget", "avis", "enterprise", "hertz"}
)

// CarRentalCompany returns the rental company mentioned earliest in text, or
// UnknownCompany.
func CarRentalCompany(text string) string {
	best, bestPos := UnknownCompany, -1

	for i, re := range companyRes {
		loc := re.FindStringIndex(text)
		if loc == nil {
			continue
		}

		if bestPos == -1 || loc[0] < bestPos {
			best, bestPos = rentalCompanies[i], loc[0]
		}
	}

	return best
}

// IsCarRentalExpense reports whether a budget line looks like a car rental.
func IsCarRentalExpense(category, description string) bool {
	if _, ok := rentalCategories[strings.ToLower(category)]; ok {
		return true
	}

	desc := strings.ToLower(description)
	for _, kw := range rentalKeywords {
		if strings.Contains(desc, kw) {
			return true
		}
	}

	return false
}

// VehicleType extracts a vehicle class such as "Compact SUV" from text.
func VehicleType(text string) string {
	return collapseSpaces(vehicleRe.FindString(text))
}

// CurrencyOf returns USD when text mentions US dollars and CAD otherwise.
func CurrencyOf(text string) string {
	if strings.Contains(text, "US$") || strings.Contains(strings.ToUpper(text), "USD") {
		return "USD"
	}

	return "CAD"
}

// ParseCarRentalNote reads a rental from a free-text note. A note needs both
// a known company and a price to count.
func ParseCarRentalNote(text string) (models.CarRental, bool) {
	company := CarRentalCompany(text)
	if company == UnknownCompany {
		return models.CarRental{}, false
	}

	m := carPriceRe.FindStringSubmatch(text)
	if m == nil {
		return models.CarRental{}, false
	}

	raw := m[1]
	if raw == "" {
		raw = m[2]
	}

	amount, err := ParseAmount(raw)
	if err != nil {
		return models.CarRental{}, false
	}

	return models.CarRental{
		Company:     company,
		VehicleType: VehicleType(text),
		Price:       decimal.NewNullDecimal(amount),
		Currency:    CurrencyOf(text),
	}, true
}
