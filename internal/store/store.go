// Package store persists spot geometry and occupancy history in SQLite.
//
// Every monitoring run gets a UUID. Status rows and statistics snapshots are
// tagged with the run and the frame number that produced them, so history can
// be replayed per run. Spots are keyed by their index and upserted on every
// run, because spot indices are stable for a given mask.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/ironsheep/parkwatch-mcp/internal/detection"
	"github.com/ironsheep/parkwatch-mcp/internal/logger"
	"github.com/ironsheep/parkwatch-mcp/internal/occupancy"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// DefaultHistoryLimit caps history queries that pass a limit <= 0.
const DefaultHistoryLimit = 100

// Store wraps the SQLite database.
type Store struct {
	db  *sql.DB
	log *logger.Logger
	now func() time.Time
}

// Run describes one monitoring session.
type Run struct {
	ID                  string     `json:"run_id"`
	Source              string     `json:"source"`
	MaskPath            string     `json:"mask_path"`
	SpotCount           int        `json:"spot_count"`
	Cadence             int        `json:"cadence"`
	DiffThreshold       float64    `json:"diff_threshold"`
	ConfidenceThreshold float64    `json:"confidence_threshold"`
	StartedAt           time.Time  `json:"started_at"`
	EndedAt             *time.Time `json:"ended_at,omitempty"`
}

// StatusRecord is one spot's status as written after a sampled frame.
type StatusRecord struct {
	RunID       string           `json:"run_id"`
	SpotIndex   int              `json:"spot_index"`
	FrameNumber uint64           `json:"frame_number"`
	Status      occupancy.Status `json:"status"`
	Confidence  *float64         `json:"confidence,omitempty"`
	RecordedAt  time.Time        `json:"recorded_at"`
}

// StatisticsRecord is a statistics snapshot.
type StatisticsRecord struct {
	RunID       string    `json:"run_id"`
	FrameNumber uint64    `json:"frame_number"`
	RecordedAt  time.Time `json:"recorded_at"`
	occupancy.Statistics
}

// Open opens (creating if needed) the database at path and applies migrations.
// path may be ":memory:" for a throwaway database.
func Open(path string, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.Discard()
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// One connection: SQLite serializes writers anyway, and ":memory:" databases
	// are per connection.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys=ON",
		"PRAGMA busy_timeout=5000",
	}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode=WAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}

	s := &Store{db: db, log: log, now: time.Now}
	if err := s.MigrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	log.Debugf("store opened at %s", path)
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// BeginRun records a new run and returns its generated ID. ID and StartedAt in
// r are ignored.
func (s *Store) BeginRun(ctx context.Context, r Run) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (run_id, source, mask_path, spot_count, cadence, diff_threshold, confidence_threshold, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, r.Source, r.MaskPath, r.SpotCount, r.Cadence, r.DiffThreshold, r.ConfidenceThreshold, s.now().UnixNano())
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	s.log.Infof("run %s started (%d spots, source %q)", id, r.SpotCount, r.Source)
	return id, nil
}

// EndRun stamps the run's end time.
func (s *Store) EndRun(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE runs SET ended_at = ? WHERE run_id = ?`, s.now().UnixNano(), id)
	if err != nil {
		return fmt.Errorf("end run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetRun loads one run.
func (s *Store) GetRun(ctx context.Context, id string) (Run, error) {
	var (
		r       Run
		started int64
		ended   sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT run_id, source, mask_path, spot_count, cadence, diff_threshold, confidence_threshold, started_at, ended_at
		FROM runs WHERE run_id = ?`, id).
		Scan(&r.ID, &r.Source, &r.MaskPath, &r.SpotCount, &r.Cadence, &r.DiffThreshold, &r.ConfidenceThreshold, &started, &ended)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("run %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return Run{}, err
	}
	r.StartedAt = time.Unix(0, started)
	if ended.Valid {
		t := time.Unix(0, ended.Int64)
		r.EndedAt = &t
	}
	return r, nil
}

// SaveSpots inserts or updates spots by index.
func (s *Store) SaveSpots(ctx context.Context, spots []detection.Spot) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO spots (spot_index, x, y, width, height, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(spot_index) DO UPDATE SET
			x = excluded.x, y = excluded.y, width = excluded.width, height = excluded.height,
			updated_at = excluded.updated_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := s.now().UnixNano()
	for _, sp := range spots {
		if _, err := stmt.ExecContext(ctx, sp.Index, sp.X, sp.Y, sp.Width, sp.Height, now); err != nil {
			return fmt.Errorf("save spot %d: %w", sp.Index, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Infof("saved %d parking spots", len(spots))
	return nil
}

// Spots returns all stored spots ordered by index.
func (s *Store) Spots(ctx context.Context) ([]detection.Spot, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT spot_index, x, y, width, height FROM spots ORDER BY spot_index`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []detection.Spot
	for rows.Next() {
		var sp detection.Spot
		if err := rows.Scan(&sp.Index, &sp.X, &sp.Y, &sp.Width, &sp.Height); err != nil {
			return nil, err
		}
		out = append(out, sp)
	}
	return out, rows.Err()
}

// SaveStatus writes one status row per record in a single transaction.
func (s *Store) SaveStatus(ctx context.Context, records []StatusRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO spot_status (run_id, spot_index, frame_number, status, confidence, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := s.now().UnixNano()
	for _, r := range records {
		var conf sql.NullFloat64
		if r.Confidence != nil {
			conf = sql.NullFloat64{Float64: *r.Confidence, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, r.RunID, r.SpotIndex, int64(r.FrameNumber), r.Status.String(), conf, now); err != nil {
			return fmt.Errorf("save status for spot %d: %w", r.SpotIndex, err)
		}
	}
	return tx.Commit()
}

// SaveStatistics writes a statistics snapshot.
func (s *Store) SaveStatistics(ctx context.Context, runID string, frame uint64, st occupancy.Statistics) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO statistics (run_id, frame_number, total_spots, available_spots, occupied_spots, unknown_spots, availability_rate, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, int64(frame), st.Total, st.Available, st.Occupied, st.Unknown, st.AvailabilityRate, s.now().UnixNano())
	if err != nil {
		return fmt.Errorf("save statistics: %w", err)
	}
	return nil
}

// SpotHistory returns up to limit status rows for a spot, newest first.
func (s *Store) SpotHistory(ctx context.Context, index, limit int) ([]StatusRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, spot_index, frame_number, status, confidence, recorded_at
		FROM spot_status WHERE spot_index = ?
		ORDER BY status_id DESC LIMIT ?`, index, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatusRecord
	for rows.Next() {
		var (
			r        StatusRecord
			frame    int64
			status   string
			conf     sql.NullFloat64
			recorded int64
		)
		if err := rows.Scan(&r.RunID, &r.SpotIndex, &frame, &status, &conf, &recorded); err != nil {
			return nil, err
		}
		if r.Status, err = occupancy.ParseStatus(status); err != nil {
			return nil, err
		}
		r.FrameNumber = uint64(frame)
		r.RecordedAt = time.Unix(0, recorded)
		if conf.Valid {
			v := conf.Float64
			r.Confidence = &v
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LatestStatistics returns up to limit statistics snapshots, newest first.
func (s *Store) LatestStatistics(ctx context.Context, limit int) ([]StatisticsRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, frame_number, total_spots, available_spots, occupied_spots, unknown_spots, availability_rate, recorded_at
		FROM statistics ORDER BY statistics_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StatisticsRecord
	for rows.Next() {
		var (
			r        StatisticsRecord
			frame    int64
			recorded int64
		)
		if err := rows.Scan(&r.RunID, &frame, &r.Total, &r.Available, &r.Occupied, &r.Unknown, &r.AvailabilityRate, &recorded); err != nil {
			return nil, err
		}
		r.FrameNumber = uint64(frame)
		r.RecordedAt = time.Unix(0, recorded)
		out = append(out, r)
	}
	return out, rows.Err()
}
