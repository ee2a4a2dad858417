package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Vector/vector-trip-scraper/models"
)

const tripColumns = `id, source_url, title, creator, COALESCE(start_date::text, ''), COALESCE(end_date::text, ''),
	notes, scraped_at, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanTrip(row scanner) (models.Trip, error) {
	var t models.Trip

	err := row.Scan(&t.ID, &t.SourceURL, &t.Title, &t.Creator, &t.StartDate, &t.EndDate, &t.Notes, &t.ScrapedAt, &t.CreatedAt)

	return t, err
}

// TripExists reports whether a trip is stored for sourceURL.
func (s *Store) TripExists(ctx context.Context, sourceURL string) (bool, error) {
	var exists bool

	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM trips WHERE source_url = $1)`, sourceURL).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check trip: %w", err)
	}

	return exists, nil
}

func (s *Store) GetTripByURL(ctx context.Context, sourceURL string) (*models.Trip, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+tripColumns+` FROM trips WHERE source_url = $1`, sourceURL)

	t, err := scanTrip(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("failed to get trip: %w", err)
	}

	return &t, nil
}

// GetTrip loads a trip with all its children.
func (s *Store) GetTrip(ctx context.Context, id string) (*models.Bundle, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrNotFound
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+tripColumns+` FROM trips WHERE id = $1`, id)

	t, err := scanTrip(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}

		return nil, fmt.Errorf("failed to get trip: %w", err)
	}

	b := &models.Bundle{Trip: t}

	loaders := []func(context.Context, string, *models.Bundle) error{
		s.loadFlights,
		s.loadHotels,
		s.loadCarRentals,
		s.loadActivities,
		s.loadImages,
		s.loadSchedule,
	}

	for _, load := range loaders {
		if err := load(ctx, id, b); err != nil {
			return nil, err
		}
	}

	b.ImageStats = models.CountImages(b.Images)

	return b, nil
}

func (s *Store) ListTrips(ctx context.Context, limit, offset int) ([]models.Trip, error) {
	if limit <= 0 {
		limit = 50
	}

	if offset < 0 {
		offset = 0
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+tripColumns+` FROM trips ORDER BY created_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list trips: %w", err)
	}

	defer rows.Close()

	ans := []models.Trip{}

	for rows.Next() {
		t, err := scanTrip(rows)
		if err != nil {
			return nil, err
		}

		ans = append(ans, t)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return ans, nil
}

// DeleteTripByURL removes a trip; its children go with it.
func (s *Store) DeleteTripByURL(ctx context.Context, sourceURL string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM trips WHERE source_url = $1`, sourceURL)
	if err != nil {
		return fmt.Errorf("failed to delete trip: %w", err)
	}

	if n, _ := result.RowsAffected(); n == 0 {
		return ErrNotFound
	}

	return nil
}

func (s *Store) loadFlights(ctx context.Context, tripID string, b *models.Bundle) error {
	rows, err := s.db.QueryContext(ctx, `SELECT airline, departure_airport, arrival_airport, departure_time,
		arrival_time, price, currency, baggage FROM flights WHERE trip_id = $1 ORDER BY position`, tripID)
	if err != nil {
		return fmt.Errorf("failed to load flights: %w", err)
	}

	defer rows.Close()

	for rows.Next() {
		var f models.Flight

		if err := rows.Scan(&f.Airline, &f.DepartureAirport, &f.ArrivalAirport, &f.DepartureTime,
			&f.ArrivalTime, &f.Price, &f.Currency, &f.Baggage); err != nil {
			return err
		}

		b.Flights = append(b.Flights, f)
	}

	return rows.Err()
}

func (s *Store) loadHotels(ctx context.Context, tripID string, b *models.Bundle) error {
	rows, err := s.db.QueryContext(ctx, `SELECT name, room_type, amenities, rating, price, currency, address, photos
		FROM hotels WHERE trip_id = $1 ORDER BY position`, tripID)
	if err != nil {
		return fmt.Errorf("failed to load hotels: %w", err)
	}

	defer rows.Close()

	for rows.Next() {
		var (
			h                 models.Hotel
			amenities, photos []byte
		)

		if err := rows.Scan(&h.Name, &h.RoomType, &amenities, &h.Rating, &h.Price, &h.Currency, &h.Address, &photos); err != nil {
			return err
		}

		if err := json.Unmarshal(amenities, &h.Amenities); err != nil {
			return fmt.Errorf("failed to decode amenities: %w", err)
		}

		if err := json.Unmarshal(photos, &h.Photos); err != nil {
			return fmt.Errorf("failed to decode photos: %w", err)
		}

		b.Hotels = append(b.Hotels, h)
	}

	return rows.Err()
}

func (s *Store) loadCarRentals(ctx context.Context, tripID string, b *models.Bundle) error {
	rows, err := s.db.QueryContext(ctx, `SELECT company, vehicle_type, price, currency
		FROM car_rentals WHERE trip_id = $1 ORDER BY position`, tripID)
	if err != nil {
		return fmt.Errorf("failed to load car rentals: %w", err)
	}

	defer rows.Close()

	for rows.Next() {
		var c models.CarRental

		if err := rows.Scan(&c.Company, &c.VehicleType, &c.Price, &c.Currency); err != nil {
			return err
		}

		b.CarRentals = append(b.CarRentals, c)
	}

	return rows.Err()
}

func (s *Store) loadActivities(ctx context.Context, tripID string, b *models.Bundle) error {
	const q = `SELECT a.stable_key, a.name, a.description, a.address, a.rating, a.contact, a.category,
		COALESCE((SELECT json_agg(i.url ORDER BY i.position) FROM images i WHERE i.activity_id = a.id), '[]')
		FROM activities a WHERE a.trip_id = $1 ORDER BY a.position`

	rows, err := s.db.QueryContext(ctx, q, tripID)
	if err != nil {
		return fmt.Errorf("failed to load activities: %w", err)
	}

	defer rows.Close()

	for rows.Next() {
		var (
			a      models.Activity
			images []byte
		)

		if err := rows.Scan(&a.Key, &a.Name, &a.Description, &a.Address, &a.Rating, &a.Contact, &a.Category, &images); err != nil {
			return err
		}

		if err := json.Unmarshal(images, &a.Images); err != nil {
			return fmt.Errorf("failed to decode activity images: %w", err)
		}

		b.Activities = append(b.Activities, a)
	}

	return rows.Err()
}

func (s *Store) loadImages(ctx context.Context, tripID string, b *models.Bundle) error {
	rows, err := s.db.QueryContext(ctx, `SELECT i.source_url, i.url, i.position, i.section, COALESCE(a.stable_key, '')
		FROM images i LEFT JOIN activities a ON a.id = i.activity_id
		WHERE i.trip_id = $1 ORDER BY i.position`, tripID)
	if err != nil {
		return fmt.Errorf("failed to load images: %w", err)
	}

	defer rows.Close()

	for rows.Next() {
		var img models.Image

		if err := rows.Scan(&img.SourceURL, &img.URL, &img.Position, &img.Section, &img.ActivityKey); err != nil {
			return err
		}

		b.Images = append(b.Images, img)
	}

	return rows.Err()
}

func (s *Store) loadSchedule(ctx context.Context, tripID string, b *models.Bundle) error {
	rows, err := s.db.QueryContext(ctx, `SELECT day_number, COALESCE(date::text, ''), heading, items
		FROM daily_schedules WHERE trip_id = $1 ORDER BY day_number`, tripID)
	if err != nil {
		return fmt.Errorf("failed to load schedule: %w", err)
	}

	defer rows.Close()

	for rows.Next() {
		var (
			d     models.DailySchedule
			items []byte
		)

		if err := rows.Scan(&d.DayNumber, &d.Date, &d.Heading, &items); err != nil {
			return err
		}

		if err := json.Unmarshal(items, &d.Items); err != nil {
			return fmt.Errorf("failed to decode schedule items: %w", err)
		}

		b.Schedule = append(b.Schedule, d)
	}

	return rows.Err()
}
