package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Image sections.
const (
	SectionHeader   = "header"
	SectionActivity = "activity"
	SectionHotel    = "hotel"
	SectionDining   = "dining"
)

// Schedule item types.
const (
	ItemActivity = "activity"
	ItemFood     = "food"
)

type Trip struct {
	ID        string    `json:"id"`
	SourceURL string    `json:"source_url"`
	Title     string    `json:"title"`
	Creator   string    `json:"creator,omitempty"`
	StartDate string    `json:"start_date,omitempty"`
	EndDate   string    `json:"end_date,omitempty"`
	Notes     string    `json:"notes,omitempty"`
	ScrapedAt time.Time `json:"scraped_at"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}

type Flight struct {
	Airline          string              `json:"airline"`
	DepartureAirport string              `json:"departure_airport"`
	ArrivalAirport   string              `json:"arrival_airport"`
	DepartureTime    string              `json:"departure_time,omitempty"`
	ArrivalTime      string              `json:"arrival_time,omitempty"`
	Price            decimal.NullDecimal `json:"price"`
	Currency         string              `json:"currency,omitempty"`
	Baggage          string              `json:"baggage,omitempty"`
}

type Hotel struct {
	Name      string              `json:"name"`
	RoomType  string              `json:"room_type,omitempty"`
	Amenities []string            `json:"amenities,omitempty"`
	Rating    float64             `json:"rating,omitempty"`
	Price     decimal.NullDecimal `json:"price"`
	Currency  string              `json:"currency,omitempty"`
	Address   string              `json:"address,omitempty"`
	Photos    []string            `json:"photos,omitempty"`
}

type CarRental struct {
	Company     string              `json:"company"`
	VehicleType string              `json:"vehicle_type,omitempty"`
	Price       decimal.NullDecimal `json:"price"`
	Currency    string              `json:"currency,omitempty"`
}

// Activity is a place worth visiting. Key is stable across scrapes of the
// same trip and is what the writer upserts on.
type Activity struct {
	Key         string   `json:"key"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Address     string   `json:"address,omitempty"`
	Rating      float64  `json:"rating,omitempty"`
	Contact     string   `json:"contact,omitempty"`
	Category    string   `json:"category,omitempty"`
	Images      []string `json:"images,omitempty"`
}

type ScheduleItem struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	ActivityKey string `json:"activity_key,omitempty"`
}

type DailySchedule struct {
	DayNumber int            `json:"day_number"`
	Date      string         `json:"date,omitempty"`
	Heading   string         `json:"heading,omitempty"`
	Items     []ScheduleItem `json:"items"`
}

type Image struct {
	SourceURL   string `json:"source_url"`
	URL         string `json:"url"`
	Position    int    `json:"position"`
	Section     string `json:"section,omitempty"`
	ActivityKey string `json:"activity_key,omitempty"`
}

type ImageStats struct {
	Total        int `json:"total"`
	Associated   int `json:"associated"`
	Unassociated int `json:"unassociated"`
}

// Bundle is everything persisted for one scrape of a trip.
type Bundle struct {
	Trip       Trip            `json:"trip"`
	Flights    []Flight        `json:"flights"`
	Hotels     []Hotel         `json:"hotels"`
	CarRentals []CarRental     `json:"car_rentals"`
	Activities []Activity      `json:"activities"`
	Schedule   []DailySchedule `json:"daily_schedule"`
	Images     []Image         `json:"images"`
	ImageStats ImageStats      `json:"image_stats"`
}

type Stats struct {
	Flights           int        `json:"flights"`
	Hotels            int        `json:"hotels"`
	CarRentals        int        `json:"carRentals"`
	Activities        int        `json:"activities"`
	DailyScheduleDays int        `json:"dailyScheduleDays"`
	Images            int        `json:"images"`
	ImageAssociation  ImageStats `json:"imageAssociation"`
}

func (b *Bundle) Stats() Stats {
	return Stats{
		Flights:           len(b.Flights),
		Hotels:            len(b.Hotels),
		CarRentals:        len(b.CarRentals),
		Activities:        len(b.Activities),
		DailyScheduleDays: len(b.Schedule),
		Images:            len(b.Images),
		ImageAssociation:  b.ImageStats,
	}
}

// CountImages splits images into those tied to the trip header or to an
// activity and the rest.
func CountImages(imgs []Image) ImageStats {
	ans := ImageStats{Total: len(imgs)}

	for _, img := range imgs {
		if img.Section == SectionHeader || img.ActivityKey != "" {
			ans.Associated++
		}
	}

	ans.Unassociated = ans.Total - ans.Associated

	return ans
}
