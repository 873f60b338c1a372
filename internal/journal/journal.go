// Package journal persists controller decisions to SQLite for analysis and
// audit.
package journal

import (
	"database/sql"
	"log"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"treasury-systemv1/internal/model"
)

// Journal is a single-writer SQLite decision log.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// New opens (or creates) the journal database.
func New(dbPath string) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS decisions (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		epoch_ts       DATETIME NOT NULL,
		price          REAL NOT NULL,
		moving_average REAL NOT NULL,
		std_dev        REAL NOT NULL,
		pct_band       REAL NOT NULL,
		side           TEXT NOT NULL,
		order_size     REAL NOT NULL,
		num_intervals  INTEGER NOT NULL,
		order_id       TEXT,
		created_at     DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_decisions_epoch ON decisions(epoch_ts);
	CREATE INDEX IF NOT EXISTS idx_decisions_side ON decisions(side);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, err
	}

	log.Printf("[journal] opened decision journal at %s", dbPath)
	return &Journal{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (j *Journal) DB() *sql.DB { return j.db }

// Record persists one decision.
func (j *Journal) Record(d model.Decision) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.Exec(
		`INSERT INTO decisions (epoch_ts, price, moving_average, std_dev, pct_band, side, order_size, num_intervals, order_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.EpochTS.UTC().Format(time.RFC3339Nano),
		d.Price,
		d.MovingAverage,
		d.StdDev,
		d.PctBand,
		string(d.Side),
		d.OrderSize,
		d.NumIntervals,
		d.OrderID,
	)
	return err
}

// Record is a row from the decisions table.
type Record struct {
	ID            int64   `json:"id"`
	EpochTS       string  `json:"epoch_ts"`
	Price         float64 `json:"price"`
	MovingAverage float64 `json:"moving_average"`
	StdDev        float64 `json:"std_dev"`
	PctBand       float64 `json:"pct_band"`
	Side          string  `json:"side"`
	OrderSize     float64 `json:"order_size"`
	NumIntervals  int     `json:"num_intervals"`
	OrderID       string  `json:"order_id"`
}

// Recent returns the last N decisions, newest first.
func (j *Journal) Recent(limit int) ([]Record, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.Query(
		`SELECT id, epoch_ts, price, moving_average, std_dev, pct_band, side, order_size, num_intervals, COALESCE(order_id, '')
		 FROM decisions ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.EpochTS, &r.Price, &r.MovingAverage, &r.StdDev,
			&r.PctBand, &r.Side, &r.OrderSize, &r.NumIntervals, &r.OrderID); err != nil {
			continue
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
