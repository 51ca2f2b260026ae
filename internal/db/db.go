package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb"

	"route-animator/internal/itinerary"
	"route-animator/internal/route"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// LoadItinerary reads an itinerary with its locations and transport segments.
// Days are numbered from 1 in the tables and positioned from 0 in the result.
func LoadItinerary(ctx context.Context, db *sql.DB, id string) (*itinerary.Itinerary, error) {
	var (
		dayCount int
		start    sql.NullTime
	)
	q := `SELECT day_count, start_date FROM itineraries WHERE id = $1`
	if err := db.QueryRowContext(ctx, q, id).Scan(&dayCount, &start); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("itinerary %q not found", id)
		}
		return nil, fmt.Errorf("query itinerary: %w", err)
	}
	if dayCount < 0 {
		return nil, fmt.Errorf("itinerary %q: negative day_count %d", id, dayCount)
	}

	it := &itinerary.Itinerary{ID: id, Days: make([]itinerary.Day, dayCount)}
	for i := range it.Days {
		it.Days[i].Index = i + 1
	}
	if start.Valid {
		it.Start = start.Time
		labels := itinerary.Labels(start.Time, dayCount)
		for i := range it.Days {
			it.Days[i].Label = labels[i]
		}
	}

	if err := fetchLocations(ctx, db, it); err != nil {
		return nil, err
	}
	if err := fetchSegments(ctx, db, it); err != nil {
		return nil, err
	}
	return it, nil
}

func fetchLocations(ctx context.Context, db *sql.DB, it *itinerary.Itinerary) error {
	q := `SELECT day, place_type, lat, lon
FROM itinerary_locations
WHERE itinerary_id = $1
ORDER BY day, seq`
	rows, err := db.QueryContext(ctx, q, it.ID)
	if err != nil {
		return fmt.Errorf("query locations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			day      int
			typ      string
			lat, lon float64
		)
		if err := rows.Scan(&day, &typ, &lat, &lon); err != nil {
			return err
		}
		d, err := dayAt(it, day)
		if err != nil {
			return err
		}
		p := orb.Point{lon, lat}
		if !route.ValidCoordinate(p) {
			return fmt.Errorf("day %d location %v: %w", day, p, route.ErrInvalidCoordinate)
		}
		d.Locations = append(d.Locations, itinerary.Location{Type: typ, Coordinate: p})
	}
	return rows.Err()
}

func fetchSegments(ctx context.Context, db *sql.DB, it *itinerary.Itinerary) error {
	// Prefer plain lat/lon columns, fall back to PostGIS geography columns.
	cols, err := hasColumns(ctx, db, "public", "itinerary_segments", "origin_lat", "origin_lon", "dest_lat", "dest_lon")
	if err != nil {
		return fmt.Errorf("introspect itinerary_segments columns: %w", err)
	}
	var q string
	if cols["origin_lat"] && cols["origin_lon"] && cols["dest_lat"] && cols["dest_lon"] {
		q = `SELECT day, origin_lat, origin_lon, dest_lat, dest_lon, COALESCE(mode, '')
             FROM itinerary_segments WHERE itinerary_id = $1 ORDER BY day, seq`
	} else {
		loc, err := hasColumns(ctx, db, "public", "itinerary_segments", "origin_loc", "dest_loc")
		if err != nil {
			return fmt.Errorf("introspect itinerary_segments locations: %w", err)
		}
		if !loc["origin_loc"] || !loc["dest_loc"] {
			return fmt.Errorf("itinerary_segments missing expected columns (origin/dest lat/lon or origin_loc/dest_loc)")
		}
		q = `SELECT day,
                    ST_Y(origin_loc::geometry), ST_X(origin_loc::geometry),
                    ST_Y(dest_loc::geometry), ST_X(dest_loc::geometry),
                    COALESCE(mode, '')
             FROM itinerary_segments WHERE itinerary_id = $1 ORDER BY day, seq`
	}

	rows, err := db.QueryContext(ctx, q, it.ID)
	if err != nil {
		return fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			day                    int
			oLat, oLon, dLat, dLon sql.NullFloat64
			mode                   string
		)
		if err := rows.Scan(&day, &oLat, &oLon, &dLat, &dLon, &mode); err != nil {
			return err
		}
		d, err := dayAt(it, day)
		if err != nil {
			return err
		}
		if !oLat.Valid || !oLon.Valid || !dLat.Valid || !dLon.Valid {
			return fmt.Errorf("day %d: %w", day, itinerary.ErrMissingEndpoints)
		}
		m, err := route.ParseMode(mode)
		if err != nil {
			return fmt.Errorf("day %d: %w", day, err)
		}
		d.Segments = append(d.Segments, route.Segment{
			Origin:      orb.Point{oLon.Float64, oLat.Float64},
			Destination: orb.Point{dLon.Float64, dLat.Float64},
			Mode:        m,
		})
	}
	return rows.Err()
}

func dayAt(it *itinerary.Itinerary, day int) (*itinerary.Day, error) {
	if day < 1 || day > len(it.Days) {
		return nil, fmt.Errorf("itinerary %q: day %d outside 1..%d", it.ID, day, len(it.Days))
	}
	return &it.Days[day-1], nil
}

// hasColumns returns a map of requested column names to existence for the given table.
func hasColumns(ctx context.Context, db *sql.DB, schema, table string, cols ...string) (map[string]bool, error) {
	res := make(map[string]bool, len(cols))
	if len(cols) == 0 {
		return res, nil
	}
	for _, c := range cols {
		res[c] = false
	}
	q := `SELECT column_name FROM information_schema.columns
          WHERE table_schema = $1 AND table_name = $2 AND column_name = ANY($3)`
	rows, err := db.QueryContext(ctx, q, schema, table, cols)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res[name] = true
	}
	return res, rows.Err()
}
