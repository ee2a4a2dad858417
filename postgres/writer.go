package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Vector/vector-trip-scraper/models"
)

var (
	ErrNotFound   = errors.New("trip not found")
	ErrTripExists = errors.New("trip already exists")
)

// Store persists trips and reads them back.
type Store struct {
	db  *sql.DB
	log *zap.Logger
}

func NewStore(db *sql.DB, log *zap.Logger) *Store {
	return &Store{db: db, log: log}
}

type WriteOptions struct {
	// Force replaces a trip already stored under the same source URL.
	Force bool
}

type WriteResult struct {
	TripID string
	// Partial collects child tables that could not be written. The trip and
	// the other tables are committed regardless.
	Partial error
}

type childWriter struct {
	table string
	write func(ctx context.Context, tx *sql.Tx, tripID string) error
	// reset drops state recorded by a write that was rolled back.
	reset func()
}

// WriteTrip stores a bundle in one transaction. Failing to insert the trip row
// aborts everything; a failing child table is rolled back to its savepoint,
// logged and reported in WriteResult.Partial.
func (s *Store) WriteTrip(ctx context.Context, b *models.Bundle, opts WriteOptions) (*WriteResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		_ = tx.Rollback()
	}()

	if opts.Force {
		if _, err := tx.ExecContext(ctx, `DELETE FROM trips WHERE source_url = $1`, b.Trip.SourceURL); err != nil {
			return nil, fmt.Errorf("failed to delete previous trip: %w", err)
		}
	}

	tripID, err := insertTrip(ctx, tx, &b.Trip)
	if err != nil {
		return nil, err
	}

	var (
		activityIDs     = make(map[string]int64, len(b.Activities))
		skippedActivity error
		partial         error
	)

	steps := []childWriter{
		{table: "flights", write: func(ctx context.Context, tx *sql.Tx, id string) error { return insertFlights(ctx, tx, id, b.Flights) }},
		{table: "hotels", write: func(ctx context.Context, tx *sql.Tx, id string) error { return insertHotels(ctx, tx, id, b.Hotels) }},
		{table: "car_rentals", write: func(ctx context.Context, tx *sql.Tx, id string) error {
			return insertCarRentals(ctx, tx, id, b.CarRentals)
		}},
		{
			table: "activities",
			write: func(ctx context.Context, tx *sql.Tx, id string) error {
				var err error

				skippedActivity, err = upsertActivities(ctx, tx, id, b.Activities, activityIDs)

				return err
			},
			reset: func() { clear(activityIDs) },
		},
		{table: "images", write: func(ctx context.Context, tx *sql.Tx, id string) error {
			return insertImages(ctx, tx, id, b.Images, activityIDs)
		}},
		{table: "daily_schedules", write: func(ctx context.Context, tx *sql.Tx, id string) error {
			return insertSchedule(ctx, tx, id, b.Schedule)
		}},
	}

	for _, step := range steps {
		err := s.withSavepoint(ctx, tx, tripID, step)

		if step.table == "activities" && skippedActivity != nil {
			s.log.Warn("could not store activities",
				zap.String("trip_id", tripID),
				zap.Error(skippedActivity),
			)

			partial = multierr.Append(partial, fmt.Errorf("activities: %w", skippedActivity))
		}

		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}

			if step.reset != nil {
				step.reset()
			}

			s.log.Warn("could not store trip table",
				zap.String("table", step.table),
				zap.String("trip_id", tripID),
				zap.Error(err),
			)

			partial = multierr.Append(partial, fmt.Errorf("%s: %w", step.table, err))
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit trip: %w", err)
	}

	s.log.Info("trip stored",
		zap.String("trip_id", tripID),
		zap.String("url", b.Trip.SourceURL),
		zap.Int("activities", len(activityIDs)),
		zap.Int("images", len(b.Images)),
		zap.Bool("partial", partial != nil),
	)

	return &WriteResult{TripID: tripID, Partial: partial}, nil
}

func (s *Store) withSavepoint(ctx context.Context, tx *sql.Tx, tripID string, step childWriter) error {
	sp := "sp_" + step.table

	if _, err := tx.ExecContext(ctx, "SAVEPOINT "+sp); err != nil {
		return err
	}

	if err := step.write(ctx, tx, tripID); err != nil {
		if _, rbErr := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+sp); rbErr != nil {
			return multierr.Append(err, rbErr)
		}

		return err
	}

	_, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+sp)

	return err
}

func insertTrip(ctx context.Context, tx *sql.Tx, t *models.Trip) (string, error) {
	const q = `INSERT INTO trips (id, source_url, title, creator, start_date, end_date, notes, scraped_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (source_url) DO NOTHING
		RETURNING id`

	var id string

	err := tx.QueryRowContext(ctx, q,
		uuid.New().String(), t.SourceURL, t.Title, t.Creator,
		nullDate(t.StartDate), nullDate(t.EndDate), t.Notes, t.ScrapedAt,
	).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrTripExists
		}

		return "", fmt.Errorf("failed to insert trip: %w", err)
	}

	return id, nil
}

func insertFlights(ctx context.Context, tx *sql.Tx, tripID string, flights []models.Flight) error {
	const q = `INSERT INTO flights
		(trip_id, position, airline, departure_airport, arrival_airport, departure_time, arrival_time, price, currency, baggage)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	for i, f := range flights {
		_, err := tx.ExecContext(ctx, q,
			tripID, i, f.Airline, f.DepartureAirport, f.ArrivalAirport,
			f.DepartureTime, f.ArrivalTime, f.Price, f.Currency, f.Baggage,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

func insertHotels(ctx context.Context, tx *sql.Tx, tripID string, hotels []models.Hotel) error {
	const q = `INSERT INTO hotels
		(trip_id, position, name, room_type, amenities, rating, price, currency, address, photos)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	for i, h := range hotels {
		amenities, err := jsonList(h.Amenities)
		if err != nil {
			return err
		}

		photos, err := jsonList(h.Photos)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, q,
			tripID, i, h.Name, h.RoomType, amenities, h.Rating, h.Price, h.Currency, h.Address, photos,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

func insertCarRentals(ctx context.Context, tx *sql.Tx, tripID string, cars []models.CarRental) error {
	const q = `INSERT INTO car_rentals (trip_id, position, company, vehicle_type, price, currency)
		VALUES ($1, $2, $3, $4, $5, $6)`

	for i, c := range cars {
		if _, err := tx.ExecContext(ctx, q, tripID, i, c.Company, c.VehicleType, c.Price, c.Currency); err != nil {
			return err
		}
	}

	return nil
}

// upsertActivities writes activities one at a time, each under its own
// savepoint, and records the row id of each stable key so images can point at
// them. A failing activity is rolled back and returned in skipped; its key
// stays unmapped. err is only set when the savepoints themselves fail.
func upsertActivities(
	ctx context.Context,
	tx *sql.Tx,
	tripID string,
	activities []models.Activity,
	ids map[string]int64,
) (skipped, err error) {
	const q = `INSERT INTO activities
		(trip_id, stable_key, position, name, description, address, rating, contact, category)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (trip_id, stable_key) DO UPDATE SET
			position = EXCLUDED.position,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			address = EXCLUDED.address,
			rating = EXCLUDED.rating,
			contact = EXCLUDED.contact,
			category = EXCLUDED.category
		RETURNING id`

	for i, a := range activities {
		sp := fmt.Sprintf("sp_activity_%d", i)

		if _, err := tx.ExecContext(ctx, "SAVEPOINT "+sp); err != nil {
			return skipped, err
		}

		var id int64

		qErr := tx.QueryRowContext(ctx, q,
			tripID, a.Key, i, a.Name, a.Description, a.Address, a.Rating, a.Contact, a.Category,
		).Scan(&id)
		if qErr != nil {
			if _, err := tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+sp); err != nil {
				return skipped, multierr.Append(qErr, err)
			}

			skipped = multierr.Append(skipped, fmt.Errorf("activity %q: %w", a.Key, qErr))

			continue
		}

		if _, err := tx.ExecContext(ctx, "RELEASE SAVEPOINT "+sp); err != nil {
			return skipped, err
		}

		ids[a.Key] = id
	}

	return skipped, nil
}

func insertImages(ctx context.Context, tx *sql.Tx, tripID string, images []models.Image, activityIDs map[string]int64) error {
	const q = `INSERT INTO images (trip_id, activity_id, source_url, url, position, section)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (trip_id, url) DO NOTHING`

	for _, img := range images {
		var activityID sql.NullInt64

		if img.ActivityKey != "" {
			id, ok := activityIDs[img.ActivityKey]
			if !ok {
				// the activity was not stored, its images go with it
				continue
			}

			activityID = sql.NullInt64{Int64: id, Valid: true}
		}

		if _, err := tx.ExecContext(ctx, q, tripID, activityID, img.SourceURL, img.URL, img.Position, img.Section); err != nil {
			return err
		}
	}

	return nil
}

func insertSchedule(ctx context.Context, tx *sql.Tx, tripID string, days []models.DailySchedule) error {
	const q = `INSERT INTO daily_schedules (trip_id, day_number, date, heading, items)
		VALUES ($1, $2, $3, $4, $5)`

	for _, d := range days {
		items, err := json.Marshal(nonNil(d.Items))
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, q, tripID, d.DayNumber, nullDate(d.Date), d.Heading, string(items)); err != nil {
			return err
		}
	}

	return nil
}

func jsonList(v []string) (string, error) {
	data, err := json.Marshal(nonNil(v))
	if err != nil {
		return "", err
	}

	return string(data), nil
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}

	return v
}

func nullDate(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
