package db

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/helm/internal/j1939"
)

var (
	ErrSessionNotFound = errors.New("logging session not found")
	ErrInvalidCANID    = errors.New("invalid can_id")
)

var hexPattern = regexp.MustCompile(`^[0-9A-Fa-f]+$`)

// Session is one CAN logging run.
type Session struct {
	ID        string     `json:"id"`
	Label     string     `json:"label"`
	StartedAt time.Time  `json:"started_at"`
	StoppedAt *time.Time `json:"stopped_at,omitempty"`
	Frames    int64      `json:"frames"`
}

// FrameRow is a stored CAN frame.
type FrameRow struct {
	SessionID string  `json:"session_id"`
	Interface string  `json:"interface"`
	SA        uint8   `json:"sa"`
	PGN       uint32  `json:"pgn"`
	Timestamp float64 `json:"timestamp"`
	DA        uint8   `json:"da"`
	CANID     string  `json:"can_id"`
	DataHex   string  `json:"data_hex"`
	Data      []byte  `json:"data_bytes"`
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixMicro()) / 1e6
}

func fromUnixSeconds(s float64) time.Time {
	sec, frac := math.Modf(s)
	return time.Unix(int64(sec), int64(math.Round(frac*1e6))*1e3).UTC()
}

// CreateSession opens a new logging session.
func (db *DB) CreateSession(label string, at time.Time) (Session, error) {
	s := Session{ID: uuid.NewString(), Label: label, StartedAt: fromUnixSeconds(unixSeconds(at))}
	_, err := db.Exec(
		`INSERT INTO logging_sessions (id, label, started_at) VALUES (?, ?, ?)`,
		s.ID, s.Label, unixSeconds(at),
	)
	if err != nil {
		return Session{}, fmt.Errorf("failed to create session: %w", err)
	}
	return s, nil
}

// StopSession records the end time of a session.
func (db *DB) StopSession(id string, at time.Time) error {
	res, err := db.Exec(`UPDATE logging_sessions SET stopped_at = ? WHERE id = ?`, unixSeconds(at), id)
	if err != nil {
		return fmt.Errorf("failed to stop session: %w", err)
	}
	return requireRow(res)
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

const sessionColumns = `s.id, s.label, s.started_at, s.stopped_at,
	(SELECT COUNT(*) FROM can_frames f WHERE f.session_id = s.id)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(r rowScanner) (Session, error) {
	var (
		s       Session
		started float64
		stopped sql.NullFloat64
	)
	if err := r.Scan(&s.ID, &s.Label, &started, &stopped, &s.Frames); err != nil {
		return Session{}, err
	}
	s.StartedAt = fromUnixSeconds(started)
	if stopped.Valid {
		t := fromUnixSeconds(stopped.Float64)
		s.StoppedAt = &t
	}
	return s, nil
}

// Sessions lists logging sessions, newest first.
func (db *DB) Sessions() ([]Session, error) {
	rows, err := db.Query(`SELECT ` + sessionColumns + ` FROM logging_sessions s ORDER BY s.started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// GetSession returns one session by id.
func (db *DB) GetSession(id string) (Session, error) {
	s, err := scanSession(db.QueryRow(`SELECT `+sessionColumns+` FROM logging_sessions s WHERE s.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Session{}, ErrSessionNotFound
	}
	return s, err
}

// DeleteSession removes a session and its frames.
func (db *DB) DeleteSession(id string) error {
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM can_frames WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete frames: %w", err)
	}
	res, err := tx.Exec(`DELETE FROM logging_sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	if err := requireRow(res); err != nil {
		return err
	}
	return tx.Commit()
}

// InsertFrames stores a batch in one transaction. Frames repeating an
// existing (interface, sa, pgn, timestamp) key are skipped. On error nothing
// from the batch is kept.
func (db *DB) InsertFrames(sessionID string, frames []j1939.Frame) error {
	if len(frames) == 0 {
		return nil
	}
	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR IGNORE INTO can_frames (
			session_id, interface, sa, pgn, timestamp, da, can_id, data_hex, data_bytes
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, f := range frames {
		if _, err := stmt.Exec(
			sessionID, f.Interface, f.SA, f.PGN, unixSeconds(f.Time), f.DA,
			f.IDString(), f.DataHex(), f.Data,
		); err != nil {
			return fmt.Errorf("failed to insert frame %s: %w", f.IDString(), err)
		}
	}
	return tx.Commit()
}

// ValidateCANIDs upper-cases ids after checking they are hex.
func ValidateCANIDs(ids []string) ([]string, error) {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if !hexPattern.MatchString(id) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidCANID, id)
		}
		out = append(out, strings.ToUpper(id))
	}
	return out, nil
}

// Frames returns the frames of a session in time order, restricted to canIDs
// when any are given.
func (db *DB) Frames(sessionID string, canIDs []string) ([]FrameRow, error) {
	ids, err := ValidateCANIDs(canIDs)
	if err != nil {
		return nil, err
	}
	if _, err := db.GetSession(sessionID); err != nil {
		return nil, err
	}

	query := `SELECT session_id, interface, sa, pgn, timestamp, da, can_id, data_hex, data_bytes
		FROM can_frames WHERE session_id = ?`
	args := []any{sessionID}
	if len(ids) > 0 {
		query += ` AND can_id IN (?` + strings.Repeat(`, ?`, len(ids)-1) + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	query += ` ORDER BY timestamp, interface, sa, pgn`

	rows, err := db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	frames := []FrameRow{}
	for rows.Next() {
		var f FrameRow
		if err := rows.Scan(&f.SessionID, &f.Interface, &f.SA, &f.PGN, &f.Timestamp, &f.DA, &f.CANID, &f.DataHex, &f.Data); err != nil {
			return nil, err
		}
		frames = append(frames, f)
	}
	return frames, rows.Err()
}

var csvHeader = []string{"interface", "sa", "pgn", "timestamp", "da", "can_id", "data_hex"}

// ExportSessionCSV writes every frame of a session as CSV with a header row.
func (db *DB) ExportSessionCSV(w io.Writer, sessionID string) error {
	frames, err := db.Frames(sessionID, nil)
	if err != nil {
		return err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, f := range frames {
		record := []string{
			f.Interface,
			strconv.Itoa(int(f.SA)),
			strconv.FormatUint(uint64(f.PGN), 10),
			strconv.FormatFloat(f.Timestamp, 'f', 6, 64),
			strconv.Itoa(int(f.DA)),
			f.CANID,
			f.DataHex,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
