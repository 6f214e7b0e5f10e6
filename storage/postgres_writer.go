package storage

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"car-listing-scraper/models"
)

const recordColumns = 8 // run_id, position, then the six record fields

// PostgresWriter persists one run's records to PostgreSQL. Rows from
// different runs are told apart by run_id.
type PostgresWriter struct {
	db    *sql.DB
	runID uuid.UUID
	next  int
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema migrations,
// and returns a writer tagged with a fresh run id.
func NewPostgresWriter(dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	pw := &PostgresWriter{db: db, runID: uuid.New()}
	if err := pw.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return pw, nil
}

// RunID identifies the rows written by this writer.
func (pw *PostgresWriter) RunID() uuid.UUID { return pw.runID }

func (pw *PostgresWriter) migrate() error {
	_, err := pw.db.Exec(`
		CREATE TABLE IF NOT EXISTS car_listings (
			id                SERIAL PRIMARY KEY,
			run_id            UUID        NOT NULL,
			position          INTEGER     NOT NULL,
			car_name          TEXT        NOT NULL,
			year              VARCHAR(4),
			kilometers_driven TEXT,
			fuel_type         VARCHAR(16),
			transmission      VARCHAR(16),
			price             TEXT,
			created_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE (run_id, position)
		);

		CREATE INDEX IF NOT EXISTS idx_car_listings_run       ON car_listings(run_id);
		CREATE INDEX IF NOT EXISTS idx_car_listings_year      ON car_listings(year);
		CREATE INDEX IF NOT EXISTS idx_car_listings_fuel_type ON car_listings(fuel_type);
	`)
	return err
}

// Write batch-inserts records after any already written in this run,
// preserving their order in the position column.
func (pw *PostgresWriter) Write(records []models.ListingRecord) error {
	const batchSize = 50
	for i := 0; i < len(records); i += batchSize {
		end := i + batchSize
		if end > len(records) {
			end = len(records)
		}
		query, args := buildInsert(pw.runID, pw.next+i, records[i:end])
		if _, err := pw.db.Exec(query, args...); err != nil {
			return fmt.Errorf("postgres: insert batch at %d: %w", pw.next+i, err)
		}
	}
	pw.next += len(records)
	return nil
}

// buildInsert renders one multi-row INSERT. Absent fields are stored as NULL.
func buildInsert(runID uuid.UUID, offset int, batch []models.ListingRecord) (string, []interface{}) {
	valueStrings := make([]string, 0, len(batch))
	valueArgs := make([]interface{}, 0, len(batch)*recordColumns)

	for idx, r := range batch {
		base := idx * recordColumns
		ph := make([]string, recordColumns)
		for c := range ph {
			ph[c] = fmt.Sprintf("$%d", base+c+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(ph, ",")+")")
		valueArgs = append(valueArgs,
			runID.String(), offset+idx, r.CarName,
			nullable(r.Year), nullable(r.KilometersDriven), nullable(r.FuelType),
			nullable(r.Transmission), nullable(r.Price))
	}

	query := fmt.Sprintf(`
		INSERT INTO car_listings
			(run_id, position, car_name, year, kilometers_driven, fuel_type, transmission, price)
		VALUES %s
		ON CONFLICT (run_id, position) DO NOTHING
	`, strings.Join(valueStrings, ","))
	return query, valueArgs
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}
