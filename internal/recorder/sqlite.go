package recorder

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"KabuSentinel/internal/model"
)

// SQLiteRecorder persists historical data to a SQLite database.
type SQLiteRecorder struct {
	db *sqlx.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so dashboards can read while a scan writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS scan_runs (
			id          TEXT PRIMARY KEY,
			kind        TEXT NOT NULL,
			timestamp   INTEGER NOT NULL,
			total       INTEGER,
			qualified   INTEGER,
			failed      INTEGER,
			recovered   INTEGER,
			duration_ms INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_kind_ts ON scan_runs(kind, timestamp)`,

		`CREATE TABLE IF NOT EXISTS dividend_hits (
			id              INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id          TEXT NOT NULL REFERENCES scan_runs(id),
			rank            INTEGER,
			ticker          TEXT,
			name            TEXT,
			sector          TEXT,
			price           REAL,
			yield           REAL,
			annual_dividend REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_dividend_run ON dividend_hits(run_id)`,

		`CREATE TABLE IF NOT EXISTS low_hits (
			id       INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id   TEXT NOT NULL REFERENCES scan_runs(id),
			ticker   TEXT,
			name     TEXT,
			price    REAL,
			low_13w  REAL,
			pct_13w  REAL,
			low_26w  REAL,
			pct_26w  REAL,
			low_52w  REAL,
			pct_52w  REAL,
			alert    INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_low_run ON low_hits(run_id)`,

		`CREATE TABLE IF NOT EXISTS portfolio_valuations (
			id        TEXT PRIMARY KEY,
			timestamp INTEGER NOT NULL,
			session   TEXT,
			total     TEXT,
			positions TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_valuations_ts ON portfolio_valuations(timestamp)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// runRow is the scan_runs row.
type runRow struct {
	ID         string `db:"id"`
	Kind       string `db:"kind"`
	Timestamp  int64  `db:"timestamp"`
	Total      int    `db:"total"`
	Qualified  int    `db:"qualified"`
	Failed     int    `db:"failed"`
	Recovered  int    `db:"recovered"`
	DurationMS int64  `db:"duration_ms"`
}

type dividendRow struct {
	RunID          string  `db:"run_id"`
	Rank           int     `db:"rank"`
	Ticker         string  `db:"ticker"`
	Name           string  `db:"name"`
	Sector         string  `db:"sector"`
	Price          float64 `db:"price"`
	Yield          float64 `db:"yield"`
	AnnualDividend float64 `db:"annual_dividend"`
}

type lowRow struct {
	RunID  string  `db:"run_id"`
	Ticker string  `db:"ticker"`
	Name   string  `db:"name"`
	Price  float64 `db:"price"`
	Low13  float64 `db:"low_13w"`
	Pct13  float64 `db:"pct_13w"`
	Low26  float64 `db:"low_26w"`
	Pct26  float64 `db:"pct_26w"`
	Low52  float64 `db:"low_52w"`
	Pct52  float64 `db:"pct_52w"`
	Alert  bool    `db:"alert"`
}

func insertRun(tx *sqlx.Tx, run *ScanRun) error {
	s := run.Summary
	_, err := tx.NamedExec(`INSERT INTO scan_runs
		(id, kind, timestamp, total, qualified, failed, recovered, duration_ms)
		VALUES (:id, :kind, :timestamp, :total, :qualified, :failed, :recovered, :duration_ms)`,
		runRow{
			ID: run.ID, Kind: run.Kind, Timestamp: run.StartedAt.Unix(),
			Total: s.TotalScanned, Qualified: s.Qualified, Failed: s.Failed, Recovered: s.Recovered,
			DurationMS: s.Elapsed.Milliseconds(),
		})
	return err
}

// inTx runs fn inside a transaction under the recorder lock.
func (r *SQLiteRecorder) inTx(fn func(tx *sqlx.Tx) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Beginx()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) RecordDividendScan(run *ScanRun, entries []model.DividendEntry) error {
	return r.inTx(func(tx *sqlx.Tx) error {
		if err := insertRun(tx, run); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		for i, e := range entries {
			if _, err := tx.NamedExec(`INSERT INTO dividend_hits
				(run_id, rank, ticker, name, sector, price, yield, annual_dividend)
				VALUES (:run_id, :rank, :ticker, :name, :sector, :price, :yield, :annual_dividend)`,
				dividendRow{
					RunID: run.ID, Rank: i + 1, Ticker: e.Ticker, Name: e.Name, Sector: e.Sector,
					Price: e.Price, Yield: e.Yield, AnnualDividend: e.AnnualDividend,
				}); err != nil {
				return fmt.Errorf("insert dividend hit %s: %w", e.Ticker, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRecorder) RecordLowCheck(run *ScanRun, rows []model.LowEntry, alerts []model.LowEntry) error {
	alerted := make(map[string]bool, len(alerts))
	for _, a := range alerts {
		alerted[a.Ticker] = true
	}
	return r.inTx(func(tx *sqlx.Tx) error {
		if err := insertRun(tx, run); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}
		for _, e := range rows {
			l13, _ := e.Low("13w")
			l26, _ := e.Low("26w")
			l52, _ := e.Low("52w")
			if _, err := tx.NamedExec(`INSERT INTO low_hits
				(run_id, ticker, name, price, low_13w, pct_13w, low_26w, pct_26w, low_52w, pct_52w, alert)
				VALUES (:run_id, :ticker, :name, :price, :low_13w, :pct_13w, :low_26w, :pct_26w, :low_52w, :pct_52w, :alert)`,
				lowRow{
					RunID: run.ID, Ticker: e.Ticker, Name: e.Name, Price: e.Price,
					Low13: l13.Low, Pct13: l13.PctFromLow,
					Low26: l26.Low, Pct26: l26.PctFromLow,
					Low52: l52.Low, Pct52: l52.PctFromLow,
					Alert: alerted[e.Ticker],
				}); err != nil {
				return fmt.Errorf("insert low hit %s: %w", e.Ticker, err)
			}
		}
		return nil
	})
}

func (r *SQLiteRecorder) RecordValuation(val *model.Valuation) error {
	positions, err := json.Marshal(val.Positions)
	if err != nil {
		return fmt.Errorf("marshal positions: %w", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err = r.db.Exec(`INSERT INTO portfolio_valuations
		(id, timestamp, session, total, positions)
		VALUES (?,?,?,?,?)`,
		uuid.NewString(), val.At.Unix(), val.Session, val.Total.String(), string(positions),
	)
	return err
}

func (r *SQLiteRecorder) LastRun(kind string) (*ScanRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var row runRow
	err := r.db.Get(&row, `SELECT id, kind, timestamp, total, qualified, failed, recovered, duration_ms
		FROM scan_runs WHERE kind = ? ORDER BY timestamp DESC, rowid DESC LIMIT 1`, kind)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last %s run: %w", kind, err)
	}
	return &ScanRun{
		ID:        row.ID,
		Kind:      row.Kind,
		StartedAt: time.Unix(row.Timestamp, 0),
		Summary: model.ScanSummary{
			TotalScanned: row.Total,
			Qualified:    row.Qualified,
			Failed:       row.Failed,
			Recovered:    row.Recovered,
			Elapsed:      time.Duration(row.DurationMS) * time.Millisecond,
		},
	}, nil
}

func (r *SQLiteRecorder) Close() error {
	log.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}
