// Package classify holds the text heuristics used to turn loosely structured
// itinerary text into typed fields. Everything here is pure: no I/O, no page
// access, so each rule can be tested on its own.
package classify

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"
)

// amountExpr matches 715, 715.5, 1234.50 and 1,234.50.
const amountExpr = `\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?`

var (
	hotelPriceRe = regexp.MustCompile(`(?i)total\s+price\s+(` + amountExpr + `)\s*(CAD|USD)\b`)
	spacesRe     = regexp.MustCompile(`\s+`)
)

// ParseAmount parses a money amount that may carry thousands separators.
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")

	return decimal.NewFromString(s)
}

// HotelPrice is the result of ParseHotelPrice.
type HotelPrice struct {
	Price    decimal.NullDecimal
	Currency string
	// Rest is the input with the price phrase removed, used as room type.
	Rest string
}

// ParseHotelPrice finds a "Total Price <amount> <currency>" phrase in text.
func ParseHotelPrice(text string) HotelPrice {
	ans := HotelPrice{Rest: collapseSpaces(text)}

	loc := hotelPriceRe.FindStringSubmatchIndex(text)
	if loc == nil {
		return ans
	}

	amount, err := ParseAmount(text[loc[2]:loc[3]])
	if err != nil {
		return ans
	}

	ans.Price = decimal.NewNullDecimal(amount)
	ans.Currency = strings.ToUpper(text[loc[4]:loc[5]])
	ans.Rest = collapseSpaces(text[:loc[0]] + " " + text[loc[1]:])

	return ans
}

func collapseSpaces(s string) string {
	return strings.TrimSpace(spacesRe.ReplaceAllString(s, " "))
}
