// Copyright 2025 The Nemchi Authors
// SPDX-License-Identifier: Apache-2.0

// Package history keeps an audit log of resolutions in duckdb. The log is
// never consulted while matching.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // duckdb driver
	"github.com/google/uuid"
	"github.com/jcodagnone/nemchi/destination"
)

// MethodNone is the method recorded for resolutions without a destination.
const MethodNone = "none"

// Record is one logged resolution.
type Record struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"created_at"`
	Source         string    `json:"source"` // text, audio or cli
	Transcript     string    `json:"transcript"`
	Normalized     string    `json:"normalized"`
	PlaceID        *int      `json:"place_id"`
	PlaceName      string    `json:"place_name,omitempty"`
	MatchedVariant string    `json:"matched_variant,omitempty"`
	Confidence     float64   `json:"confidence"`
	Method         string    `json:"method"`
	Lat            float64   `json:"lat,omitempty"`
	Lng            float64   `json:"lng,omitempty"`
}

// NewRecord builds the record of res.
func NewRecord(res destination.Resolution, source string, now time.Time) Record {
	r := Record{
		ID:         uuid.NewString(),
		CreatedAt:  now.UTC(),
		Source:     source,
		Transcript: res.Transcript.Raw,
		Normalized: res.Transcript.Normalized,
		Method:     MethodNone,
	}

	if m := res.Match; m != nil {
		id := m.Place.ID
		r.PlaceID = &id
		r.PlaceName = m.Place.Name
		r.MatchedVariant = m.MatchedVariant
		r.Confidence = m.Confidence
		r.Method = string(m.Method)
		r.Lat, r.Lng = m.Place.Lat, m.Place.Lng
	}

	return r
}

// Repository persists resolution records.
type Repository interface {
	CreateSchema() error
	Save(ctx context.Context, r Record) error
	List(ctx context.Context, limit, offset int) ([]Record, error)
	CountByMethod(ctx context.Context) (map[string]int, error)
}

type sqlRepository struct {
	db *sql.DB
}

// NewRepository creates a repository over db.
func NewRepository(db *sql.DB) Repository {
	return &sqlRepository{db: db}
}

// Open opens the duckdb database at path and makes sure the schema exists.
func Open(path string) (*sql.DB, Repository, error) {
	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening %s: %w", path, err)
	}

	repo := NewRepository(db)
	if err := repo.CreateSchema(); err != nil {
		db.Close()

		return nil, nil, fmt.Errorf("creating history schema: %w", err)
	}

	return db, repo, nil
}

func (r *sqlRepository) CreateSchema() error {
	_, err := r.db.Exec(`
		CREATE TABLE IF NOT EXISTS resolutions (
			id VARCHAR PRIMARY KEY,
			created_at TIMESTAMP NOT NULL,
			source VARCHAR NOT NULL,
			transcript VARCHAR NOT NULL,
			normalized VARCHAR NOT NULL,
			place_id INTEGER,
			place_name VARCHAR,
			matched_variant VARCHAR,
			confidence DOUBLE NOT NULL,
			method VARCHAR NOT NULL,
			lat DOUBLE,
			lng DOUBLE
		);
	`)

	return err
}

func (r *sqlRepository) Save(ctx context.Context, rec Record) error {
	var placeID, lat, lng any
	if rec.PlaceID != nil {
		placeID, lat, lng = *rec.PlaceID, rec.Lat, rec.Lng
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO resolutions (id, created_at, source, transcript, normalized, place_id, place_name,
			matched_variant, confidence, method, lat, lng)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CreatedAt, rec.Source, rec.Transcript, rec.Normalized, placeID, rec.PlaceName,
		rec.MatchedVariant, rec.Confidence, rec.Method, lat, lng)
	if err != nil {
		return fmt.Errorf("saving resolution %s: %w", rec.ID, err)
	}

	return nil
}

// List returns records, newest first. A non-positive limit returns them all.
func (r *sqlRepository) List(ctx context.Context, limit, offset int) ([]Record, error) {
	query := `
		SELECT id, created_at, source, transcript, normalized, place_id, place_name,
			matched_variant, confidence, method, lat, lng
		FROM resolutions
		ORDER BY created_at DESC, id`

	args := []any{}
	if limit > 0 {
		query += " LIMIT ? OFFSET ?"

		args = append(args, limit, max(offset, 0))
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing resolutions: %w", err)
	}
	defer rows.Close()

	var ret []Record

	for rows.Next() {
		var (
			rec                Record
			placeID            sql.NullInt64
			placeName, variant sql.NullString
			lat, lng           sql.NullFloat64
		)

		if err := rows.Scan(&rec.ID, &rec.CreatedAt, &rec.Source, &rec.Transcript, &rec.Normalized,
			&placeID, &placeName, &variant, &rec.Confidence, &rec.Method, &lat, &lng); err != nil {
			return nil, fmt.Errorf("scanning resolution: %w", err)
		}

		if placeID.Valid {
			id := int(placeID.Int64)
			rec.PlaceID = &id
		}

		rec.PlaceName = placeName.String
		rec.MatchedVariant = variant.String
		rec.Lat, rec.Lng = lat.Float64, lng.Float64
		rec.CreatedAt = rec.CreatedAt.UTC()

		ret = append(ret, rec)
	}

	return ret, rows.Err()
}

func (r *sqlRepository) CountByMethod(ctx context.Context) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT method, count(*) FROM resolutions GROUP BY method`)
	if err != nil {
		return nil, fmt.Errorf("counting resolutions: %w", err)
	}
	defer rows.Close()

	ret := make(map[string]int)

	for rows.Next() {
		var (
			method string
			count  int
		)

		if err := rows.Scan(&method, &count); err != nil {
			return nil, err
		}

		ret[method] = count
	}

	return ret, rows.Err()
}
