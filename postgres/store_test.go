package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Vector/vector-trip-scraper/models"
	"github.com/Vector/vector-trip-scraper/postgres"
	"github.com/Vector/vector-trip-scraper/testcontainers"
)

func sampleBundle(sourceURL string) *models.Bundle {
	imgs := []models.Image{
		{SourceURL: "https://src/hero.jpg", URL: "https://cdn/hero.jpg", Position: 0, Section: models.SectionHeader},
		{SourceURL: "https://src/lake.jpg", URL: "https://cdn/lake.jpg", Position: 1, Section: models.SectionActivity, ActivityKey: "place:p1"},
		{SourceURL: "https://src/cafe.jpg", URL: "https://cdn/cafe.jpg", Position: 2, Section: models.SectionDining, ActivityKey: "name:trailhead-cafe"},
		{SourceURL: "https://src/room.jpg", URL: "https://cdn/room.jpg", Position: 3, Section: models.SectionHotel},
	}

	return &models.Bundle{
		Trip: models.Trip{
			SourceURL: sourceURL,
			Title:     "Rockies Road Trip",
			Creator:   "sam",
			StartDate: "2025-07-13",
			EndDate:   "2025-07-14",
			Notes:     "Pack layers.",
			ScrapedAt: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		},
		Flights: []models.Flight{{
			Airline:          "Air Canada",
			DepartureAirport: "YVR",
			ArrivalAirport:   "YYC",
			DepartureTime:    "9:05 AM",
			ArrivalTime:      "11:40 AM",
			Price:            decimal.NewNullDecimal(decimal.RequireFromString("245.50")),
			Currency:         "CAD",
		}},
		Hotels: []models.Hotel{{
			Name:      "Fairmont Banff Springs",
			Amenities: []string{"pool", "spa"},
			Price:     decimal.NewNullDecimal(decimal.NewFromInt(1500)),
			Currency:  "CAD",
			Photos:    []string{"https://cdn/room.jpg"},
		}},
		CarRentals: []models.CarRental{{Company: "Alamo", VehicleType: "intermediate SUV", Currency: "USD"}},
		Activities: []models.Activity{
			{Key: "place:p1", Name: "Lake Louise", Rating: 4.8, Images: []string{"https://cdn/lake.jpg"}},
			{Key: "name:trailhead-cafe", Name: "Trailhead Cafe", Contact: "+1 403 555 0100", Images: []string{"https://cdn/cafe.jpg"}},
		},
		Schedule: []models.DailySchedule{
			{DayNumber: 1, Date: "2025-07-13", Heading: "Day 1", Items: []models.ScheduleItem{
				{Type: models.ItemActivity, Name: "Lake Louise", ActivityKey: "place:p1"},
				{Type: models.ItemFood, Name: "Trailhead Cafe", ActivityKey: "name:trailhead-cafe"},
			}},
			{DayNumber: 2, Heading: "Day 2"},
		},
		Images:     imgs,
		ImageStats: models.CountImages(imgs),
	}
}

func TestStore(t *testing.T) {
	tc := testcontainers.New(t, testcontainers.WithPostgres())
	store := postgres.NewStore(tc.DB, zap.NewNop())
	ctx := context.Background()

	countRows := func(t *testing.T, table, tripID string) int {
		t.Helper()

		var n int
		require.NoError(t, tc.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+table+` WHERE trip_id = $1`, tripID).Scan(&n))

		return n
	}

	t.Run("[success scenario] - write and read back a trip", func(t *testing.T) {
		b := sampleBundle("https://wanderlog.com/view/abc/roundtrip")

		res, err := store.WriteTrip(ctx, b, postgres.WriteOptions{})
		require.NoError(t, err)
		require.NoError(t, res.Partial)

		got, err := store.GetTrip(ctx, res.TripID)
		require.NoError(t, err)

		assert.Equal(t, res.TripID, got.Trip.ID)
		assert.Equal(t, "Rockies Road Trip", got.Trip.Title)
		assert.Equal(t, "2025-07-13", got.Trip.StartDate)
		assert.Equal(t, "2025-07-14", got.Trip.EndDate)

		require.Len(t, got.Flights, 1)
		assert.True(t, got.Flights[0].Price.Decimal.Equal(decimal.RequireFromString("245.5")))

		require.Len(t, got.Hotels, 1)
		assert.Equal(t, []string{"pool", "spa"}, got.Hotels[0].Amenities)
		assert.Equal(t, []string{"https://cdn/room.jpg"}, got.Hotels[0].Photos)

		require.Len(t, got.CarRentals, 1)
		assert.False(t, got.CarRentals[0].Price.Valid)

		require.Len(t, got.Activities, 2)
		assert.Equal(t, "place:p1", got.Activities[0].Key)
		assert.Equal(t, []string{"https://cdn/lake.jpg"}, got.Activities[0].Images)

		require.Len(t, got.Schedule, 2)
		assert.Equal(t, "2025-07-13", got.Schedule[0].Date)
		assert.Empty(t, got.Schedule[1].Date)
		assert.Len(t, got.Schedule[0].Items, 2)
		assert.Empty(t, got.Schedule[1].Items)

		assert.Equal(t, models.ImageStats{Total: 4, Associated: 3, Unassociated: 1}, got.ImageStats)
	})

	t.Run("[error scenario] - second write without force", func(t *testing.T) {
		b := sampleBundle("https://wanderlog.com/view/abc/twice")

		_, err := store.WriteTrip(ctx, b, postgres.WriteOptions{})
		require.NoError(t, err)

		_, err = store.WriteTrip(ctx, b, postgres.WriteOptions{})
		assert.ErrorIs(t, err, postgres.ErrTripExists)
	})

	t.Run("[success scenario] - force replaces the previous trip", func(t *testing.T) {
		b := sampleBundle("https://wanderlog.com/view/abc/forced")

		first, err := store.WriteTrip(ctx, b, postgres.WriteOptions{})
		require.NoError(t, err)

		b.Trip.Title = "Rockies Again"
		b.Activities = b.Activities[:1]

		second, err := store.WriteTrip(ctx, b, postgres.WriteOptions{Force: true})
		require.NoError(t, err)
		assert.NotEqual(t, first.TripID, second.TripID)

		_, err = store.GetTrip(ctx, first.TripID)
		assert.ErrorIs(t, err, postgres.ErrNotFound)
		assert.Zero(t, countRows(t, "activities", first.TripID))

		got, err := store.GetTripByURL(ctx, b.Trip.SourceURL)
		require.NoError(t, err)
		assert.Equal(t, "Rockies Again", got.Title)
		assert.Equal(t, 1, countRows(t, "activities", second.TripID))
	})

	t.Run("[success scenario] - duplicate activity keys are upserted", func(t *testing.T) {
		b := sampleBundle("https://wanderlog.com/view/abc/upsert")
		b.Activities = append(b.Activities, models.Activity{Key: "place:p1", Name: "Lake Louise (updated)"})

		res, err := store.WriteTrip(ctx, b, postgres.WriteOptions{})
		require.NoError(t, err)
		require.NoError(t, res.Partial)

		assert.Equal(t, 2, countRows(t, "activities", res.TripID))

		var name string
		require.NoError(t, tc.DB.QueryRowContext(ctx,
			`SELECT name FROM activities WHERE trip_id = $1 AND stable_key = 'place:p1'`, res.TripID).Scan(&name))
		assert.Equal(t, "Lake Louise (updated)", name)

		var linked int
		require.NoError(t, tc.DB.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM images WHERE trip_id = $1 AND activity_id IS NOT NULL`, res.TripID).Scan(&linked))
		assert.Equal(t, 2, linked)
	})

	t.Run("[success scenario] - repeated image urls are stored once", func(t *testing.T) {
		b := sampleBundle("https://wanderlog.com/view/abc/dupimages")
		b.Images = append(b.Images, models.Image{URL: "https://cdn/hero.jpg", Position: 4, Section: models.SectionHotel})

		res, err := store.WriteTrip(ctx, b, postgres.WriteOptions{})
		require.NoError(t, err)
		require.NoError(t, res.Partial)

		assert.Equal(t, 4, countRows(t, "images", res.TripID))
	})

	t.Run("[success scenario] - failing child table keeps the rest", func(t *testing.T) {
		b := sampleBundle("https://wanderlog.com/view/abc/partial")
		b.Schedule = append(b.Schedule, models.DailySchedule{DayNumber: 1, Heading: "Day 1 again"})

		res, err := store.WriteTrip(ctx, b, postgres.WriteOptions{})
		require.NoError(t, err)
		require.Error(t, res.Partial)
		assert.Contains(t, res.Partial.Error(), "daily_schedules")

		assert.Zero(t, countRows(t, "daily_schedules", res.TripID))
		assert.Equal(t, 2, countRows(t, "activities", res.TripID))
		assert.Equal(t, 4, countRows(t, "images", res.TripID))
	})

	t.Run("[success scenario] - failing activity only drops its own images", func(t *testing.T) {
		b := sampleBundle("https://wanderlog.com/view/abc/badactivity")

		// postgres text rejects NUL bytes
		bad := models.Activity{Key: "name:broken", Name: "Broken\u0000Place", Images: []string{"https://cdn/broken.jpg"}}
		b.Activities = []models.Activity{b.Activities[0], bad, b.Activities[1]}
		b.Images = append(b.Images, models.Image{
			SourceURL: "https://src/broken.jpg", URL: "https://cdn/broken.jpg", Position: 4,
			Section: models.SectionActivity, ActivityKey: "name:broken",
		})

		res, err := store.WriteTrip(ctx, b, postgres.WriteOptions{})
		require.NoError(t, err)
		require.Error(t, res.Partial)
		assert.Contains(t, res.Partial.Error(), "name:broken")
		assert.NotContains(t, res.Partial.Error(), "images")

		got, err := store.GetTrip(ctx, res.TripID)
		require.NoError(t, err)

		require.Len(t, got.Activities, 2)
		assert.Equal(t, "place:p1", got.Activities[0].Key)
		assert.Equal(t, []string{"https://cdn/lake.jpg"}, got.Activities[0].Images)
		assert.Equal(t, "name:trailhead-cafe", got.Activities[1].Key)
		assert.Equal(t, []string{"https://cdn/cafe.jpg"}, got.Activities[1].Images)

		assert.Equal(t, 4, countRows(t, "images", res.TripID))

		var header, broken int
		require.NoError(t, tc.DB.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM images WHERE trip_id = $1 AND section = 'header'`, res.TripID).Scan(&header))
		require.NoError(t, tc.DB.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM images WHERE trip_id = $1 AND url = 'https://cdn/broken.jpg'`, res.TripID).Scan(&broken))
		assert.Equal(t, 1, header)
		assert.Zero(t, broken)

		assert.Equal(t, 2, countRows(t, "daily_schedules", res.TripID))
	})

	t.Run("[success scenario] - delete removes every child row", func(t *testing.T) {
		b := sampleBundle("https://wanderlog.com/view/abc/deleted")

		res, err := store.WriteTrip(ctx, b, postgres.WriteOptions{})
		require.NoError(t, err)

		require.NoError(t, store.DeleteTripByURL(ctx, b.Trip.SourceURL))

		for _, table := range []string{"flights", "hotels", "car_rentals", "activities", "images", "daily_schedules"} {
			assert.Zero(t, countRows(t, table, res.TripID), table)
		}

		exists, err := store.TripExists(ctx, b.Trip.SourceURL)
		require.NoError(t, err)
		assert.False(t, exists)

		assert.ErrorIs(t, store.DeleteTripByURL(ctx, b.Trip.SourceURL), postgres.ErrNotFound)
	})

	t.Run("[error scenario] - unknown ids", func(t *testing.T) {
		_, err := store.GetTrip(ctx, "not-a-uuid")
		assert.ErrorIs(t, err, postgres.ErrNotFound)

		_, err = store.GetTrip(ctx, "9b2f8a0e-6c1d-4a53-9f0e-2d7c4b1a8e11")
		assert.ErrorIs(t, err, postgres.ErrNotFound)

		_, err = store.GetTripByURL(ctx, "https://wanderlog.com/view/none")
		assert.ErrorIs(t, err, postgres.ErrNotFound)
	})

	t.Run("[success scenario] - list trips newest first", func(t *testing.T) {
		trips, err := store.ListTrips(ctx, 2, 0)
		require.NoError(t, err)
		require.Len(t, trips, 2)
		assert.False(t, trips[0].CreatedAt.Before(trips[1].CreatedAt))

		all, err := store.ListTrips(ctx, 0, 0)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, len(all), 5)
	})
}

func TestMigrationRunner(t *testing.T) {
	tc := testcontainers.New(t, testcontainers.WithEmptyPostgres())

	runner := postgres.NewMigrationRunner(tc.DSN, zap.NewNop())

	require.NoError(t, runner.RunMigrations(context.Background()))
	// second run has nothing to apply
	require.NoError(t, runner.RunMigrations(context.Background()))

	var value string
	require.NoError(t, tc.DB.QueryRowContext(context.Background(),
		`SELECT value FROM system_config WHERE key = 'relay.max_images'`).Scan(&value))
	assert.Equal(t, "40", value)
}
