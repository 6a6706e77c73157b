package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite"

	"caseplanner/internal"
)

const (
	KeyBudget      = "planner.budget"
	KeyTaxRate     = "planner.tax_rate"
	KeyKeysOwned   = "planner.keys_owned"
	KeyLastRefresh = "prices.last_refresh"
)

type DB struct {
	conn *sql.DB
}

func Open(path string) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	if _, err := conn.Exec(`PRAGMA journal_mode = WAL;`); err != nil {
		_ = conn.Close()
		return nil, err
	}

	db := &DB{conn: conn}
	if err := db.init(); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return db, nil
}

func (d *DB) Close() error {
	return d.conn.Close()
}

func (d *DB) init() error {
	schema := `
CREATE TABLE IF NOT EXISTS cases (
  normalizedKey TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  nameSource TEXT NOT NULL,
  price REAL,
  roi REAL,
  keyCost REAL,
  metadataImageUrl TEXT,
  marketImageUrl TEXT,
  priceSeenAt TEXT,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS planner_lines (
  normalizedKey TEXT PRIMARY KEY,
  name TEXT NOT NULL,
  quantity INTEGER NOT NULL CHECK (quantity >= 0),
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS refresh_runs (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  traceId TEXT NOT NULL,
  status TEXT NOT NULL,
  timingsJson TEXT NOT NULL,
  countsJson TEXT NOT NULL,
  createdAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS metadata (
  key TEXT PRIMARY KEY,
  value TEXT NOT NULL,
  updatedAt TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := d.conn.Exec(schema)
	return err
}

// SaveSnapshot upserts every record. Rows are never deleted and a NULL column
// in the incoming record keeps the stored value.
func (d *DB) SaveSnapshot(records []internal.CaseRecord) error {
	tx, err := d.conn.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
INSERT INTO cases (
  normalizedKey, name, nameSource, price, roi, keyCost,
  metadataImageUrl, marketImageUrl, priceSeenAt, updatedAt
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
ON CONFLICT(normalizedKey) DO UPDATE SET
  name=excluded.name,
  nameSource=excluded.nameSource,
  price=COALESCE(excluded.price, cases.price),
  roi=COALESCE(excluded.roi, cases.roi),
  keyCost=COALESCE(excluded.keyCost, cases.keyCost),
  metadataImageUrl=COALESCE(excluded.metadataImageUrl, cases.metadataImageUrl),
  marketImageUrl=COALESCE(excluded.marketImageUrl, cases.marketImageUrl),
  priceSeenAt=COALESCE(excluded.priceSeenAt, cases.priceSeenAt),
  updatedAt=CURRENT_TIMESTAMP
`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, r := range records {
		if r.NormalizedKey == "" {
			return fmt.Errorf("case %q has no normalized key", r.Name)
		}
		var seen *string
		if r.PriceSeenAt != nil {
			v := r.PriceSeenAt.UTC().Format(time.RFC3339)
			seen = &v
		}
		if _, err := stmt.Exec(
			r.NormalizedKey, r.Name, string(r.NameSource), r.Price, r.ROI, r.KeyCost,
			r.MetadataImageURL, r.MarketImageURL, seen,
		); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (d *DB) LoadSnapshot() ([]internal.CaseRecord, error) {
	rows, err := d.conn.Query(`
SELECT normalizedKey, name, nameSource, price, roi, keyCost,
       metadataImageUrl, marketImageUrl, priceSeenAt
FROM cases ORDER BY normalizedKey`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.CaseRecord
	for rows.Next() {
		var r internal.CaseRecord
		var source string
		var seen *string
		if err := rows.Scan(
			&r.NormalizedKey, &r.Name, &source, &r.Price, &r.ROI, &r.KeyCost,
			&r.MetadataImageURL, &r.MarketImageURL, &seen,
		); err != nil {
			return nil, err
		}
		r.NameSource = internal.NameSource(source)
		if seen != nil {
			if ts, err := time.Parse(time.RFC3339, *seen); err == nil {
				r.PriceSeenAt = &ts
			}
		}
		out = append(out, r)
	}

	return out, rows.Err()
}

// AddPlannerLine adds qty to the line for key, creating it when missing.
func (d *DB) AddPlannerLine(key, name string, qty int) error {
	if qty < 0 {
		return fmt.Errorf("quantity must not be negative: %d", qty)
	}
	_, err := d.conn.Exec(`
INSERT INTO planner_lines (normalizedKey, name, quantity) VALUES (?, ?, ?)
ON CONFLICT(normalizedKey) DO UPDATE SET
  name=excluded.name,
  quantity=planner_lines.quantity + excluded.quantity,
  updatedAt=CURRENT_TIMESTAMP
`, key, name, qty)
	return err
}

func (d *DB) SetPlannerLine(key, name string, qty int) error {
	if qty < 0 {
		return fmt.Errorf("quantity must not be negative: %d", qty)
	}
	_, err := d.conn.Exec(`
INSERT INTO planner_lines (normalizedKey, name, quantity) VALUES (?, ?, ?)
ON CONFLICT(normalizedKey) DO UPDATE SET
  name=excluded.name,
  quantity=excluded.quantity,
  updatedAt=CURRENT_TIMESTAMP
`, key, name, qty)
	return err
}

// RemovePlannerLine reports whether a line existed.
func (d *DB) RemovePlannerLine(key string) (bool, error) {
	res, err := d.conn.Exec(`DELETE FROM planner_lines WHERE normalizedKey = ?`, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (d *DB) ClearPlanner() error {
	_, err := d.conn.Exec(`DELETE FROM planner_lines`)
	return err
}

func (d *DB) ListPlannerLines() ([]internal.PlannerLine, error) {
	rows, err := d.conn.Query(`SELECT normalizedKey, name, quantity FROM planner_lines ORDER BY createdAt ASC, normalizedKey ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.PlannerLine
	for rows.Next() {
		var l internal.PlannerLine
		if err := rows.Scan(&l.NormalizedKey, &l.Name, &l.Quantity); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (d *DB) InsertRun(traceID, status string, timings map[string]float64, counts map[string]int) error {
	timingsJSON, _ := json.Marshal(timings)
	countsJSON, _ := json.Marshal(counts)
	_, err := d.conn.Exec(`INSERT INTO refresh_runs (traceId, status, timingsJson, countsJson) VALUES (?, ?, ?, ?)`,
		traceID, status, string(timingsJSON), string(countsJSON))
	return err
}

func (d *DB) ListRuns(limit int) ([]internal.RefreshRun, error) {
	rows, err := d.conn.Query(`
SELECT id, traceId, status, timingsJson, countsJson, createdAt
FROM refresh_runs ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.RefreshRun
	for rows.Next() {
		var run internal.RefreshRun
		var timingsJSON, countsJSON string
		if err := rows.Scan(&run.ID, &run.TraceID, &run.Status, &timingsJSON, &countsJSON, &run.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal([]byte(timingsJSON), &run.Timings)
		_ = json.Unmarshal([]byte(countsJSON), &run.Counts)
		out = append(out, run)
	}
	return out, rows.Err()
}

func (d *DB) SetMetadata(key, value string) error {
	_, err := d.conn.Exec(`
INSERT INTO metadata (key, value) VALUES (?, ?)
ON CONFLICT(key) DO UPDATE SET value = excluded.value, updatedAt = CURRENT_TIMESTAMP
`, key, value)
	return err
}

func (d *DB) GetMetadata(key string) (*string, error) {
	var value string
	err := d.conn.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &value, nil
}

// MetadataFloat returns fallback when key is unset.
func (d *DB) MetadataFloat(key string, fallback float64) (float64, error) {
	v, err := d.GetMetadata(key)
	if err != nil || v == nil {
		return fallback, err
	}
	f, err := strconv.ParseFloat(*v, 64)
	if err != nil {
		return fallback, fmt.Errorf("metadata %s: %w", key, err)
	}
	return f, nil
}

func (d *DB) MetadataInt(key string, fallback int) (int, error) {
	v, err := d.GetMetadata(key)
	if err != nil || v == nil {
		return fallback, err
	}
	n, err := strconv.Atoi(*v)
	if err != nil {
		return fallback, fmt.Errorf("metadata %s: %w", key, err)
	}
	return n, nil
}
