package db

import (
	"context"
	"fmt"
	"time"

	"github.com/banshee-data/helm/internal/dial"
	"github.com/banshee-data/helm/internal/monitoring"
	"github.com/banshee-data/helm/internal/timeutil"
)

// NavSample is one recorded instrument state.
type NavSample struct {
	Time time.Time `json:"time"`
	dial.State
}

// GoalSelection is one recorded desired-goal change.
type GoalSelection struct {
	Time        time.Time        `json:"time"`
	Kind        dial.GestureKind `json:"kind"`
	DesiredGoal float64          `json:"desired_goal"`
}

func (db *DB) RecordNavSnapshot(at time.Time, s dial.State) error {
	_, err := db.Exec(
		`INSERT INTO nav_snapshots (
			timestamp, heading, rudder, speed, goal, desired_goal, steer, steer_goal
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		unixSeconds(at), s.Heading, s.Rudder, s.Speed, s.Goal, s.DesiredGoal, s.Steer, s.SteerGoal,
	)
	if err != nil {
		return fmt.Errorf("failed to record nav snapshot: %w", err)
	}
	return nil
}

func (db *DB) RecordGoalSelection(at time.Time, c dial.GoalChange) error {
	_, err := db.Exec(
		`INSERT INTO goal_selections (timestamp, kind, desired_goal) VALUES (?, ?, ?)`,
		unixSeconds(at), string(c.Kind), c.DesiredGoal,
	)
	if err != nil {
		return fmt.Errorf("failed to record goal selection: %w", err)
	}
	return nil
}

// NavHistory returns samples with from <= time < to in time order.
func (db *DB) NavHistory(from, to time.Time) ([]NavSample, error) {
	rows, err := db.Query(
		`SELECT timestamp, heading, rudder, speed, goal, desired_goal, steer, steer_goal
		FROM nav_snapshots WHERE timestamp >= ? AND timestamp < ? ORDER BY timestamp`,
		unixSeconds(from), unixSeconds(to),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	samples := []NavSample{}
	for rows.Next() {
		var (
			s  NavSample
			ts float64
		)
		if err := rows.Scan(&ts, &s.Heading, &s.Rudder, &s.Speed, &s.Goal, &s.DesiredGoal, &s.Steer, &s.SteerGoal); err != nil {
			return nil, err
		}
		s.Time = fromUnixSeconds(ts)
		samples = append(samples, s)
	}
	return samples, rows.Err()
}

// GoalSelections returns goal changes with from <= time < to in time order.
func (db *DB) GoalSelections(from, to time.Time) ([]GoalSelection, error) {
	rows, err := db.Query(
		`SELECT timestamp, kind, desired_goal FROM goal_selections
		WHERE timestamp >= ? AND timestamp < ? ORDER BY timestamp`,
		unixSeconds(from), unixSeconds(to),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []GoalSelection{}
	for rows.Next() {
		var (
			g    GoalSelection
			ts   float64
			kind string
		)
		if err := rows.Scan(&ts, &kind, &g.DesiredGoal); err != nil {
			return nil, err
		}
		g.Time = fromUnixSeconds(ts)
		g.Kind = dial.GestureKind(kind)
		out = append(out, g)
	}
	return out, rows.Err()
}

// PruneNavHistory deletes samples and goal selections older than before.
func (db *DB) PruneNavHistory(before time.Time) (int64, error) {
	cutoff := unixSeconds(before)
	var total int64
	for _, table := range []string{"nav_snapshots", "goal_selections"} {
		res, err := db.Exec(`DELETE FROM `+table+` WHERE timestamp < ?`, cutoff)
		if err != nil {
			return total, fmt.Errorf("failed to prune %s: %w", table, err)
		}
		n, _ := res.RowsAffected()
		total += n
	}
	return total, nil
}

// NavRecorder samples the dial view into nav_snapshots and records goal
// changes as they happen.
type NavRecorder struct {
	db        *DB
	clock     timeutil.Clock
	period    time.Duration
	retention time.Duration
	latest    func() dial.View

	goals chan GoalSelection
}

const goalQueue = 64

// NewNavRecorder samples latest every period. Samples older than retention
// are pruned hourly; zero retention keeps everything.
func NewNavRecorder(db *DB, clock timeutil.Clock, period, retention time.Duration, latest func() dial.View) *NavRecorder {
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	if period <= 0 {
		period = time.Second
	}
	return &NavRecorder{
		db:        db,
		clock:     clock,
		period:    period,
		retention: retention,
		latest:    latest,
		goals:     make(chan GoalSelection, goalQueue),
	}
}

// ObserveGoal queues c for recording without blocking; it is suitable for
// dial.Owner.OnGoalChange. Changes are dropped when the queue is full.
func (r *NavRecorder) ObserveGoal(c dial.GoalChange) {
	select {
	case r.goals <- GoalSelection{Time: r.clock.Now(), Kind: c.Kind, DesiredGoal: c.DesiredGoal}:
	default:
		monitoring.Logf("history: goal queue full, dropping %s %.1f", c.Kind, c.DesiredGoal)
	}
}

// Run records until ctx is cancelled. Views without a feed snapshot are not
// sampled.
func (r *NavRecorder) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.period)
	defer ticker.Stop()
	var lastPrune time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case g := <-r.goals:
			if err := r.db.RecordGoalSelection(g.Time, dial.GoalChange{Kind: g.Kind, DesiredGoal: g.DesiredGoal}); err != nil {
				monitoring.Logf("history: %v", err)
			}
		case now := <-ticker.C():
			v := r.latest()
			if !v.FeedAt.IsZero() {
				if err := r.db.RecordNavSnapshot(now, v.State); err != nil {
					monitoring.Logf("history: %v", err)
				}
			}
			if r.retention > 0 && now.Sub(lastPrune) >= time.Hour {
				lastPrune = now
				if n, err := r.db.PruneNavHistory(now.Add(-r.retention)); err != nil {
					monitoring.Logf("history: %v", err)
				} else if n > 0 {
					monitoring.Logf("history: pruned %d rows", n)
				}
			}
		}
	}
}
