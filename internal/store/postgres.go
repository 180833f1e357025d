package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Event names seeded by Migrate.
const (
	EventDailyReport    = "daily_report"
	EventStatsReport    = "stats_report"
	EventLiquidityAlert = "liquidity_alert"
)

var ErrNotFound = errors.New("not found")

const foreignKeyViolation = "23503"

// Store persists delivery routing: which Lark recipients receive which
// events. Activity data itself is never stored.
type Store struct {
	pool *pgxpool.Pool
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

func (s *Store) Close() { s.pool.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// --- Events ---

type Event struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Category    string    `json:"category"`
	Enabled     bool      `json:"enabled"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *Store) ListEvents(ctx context.Context) ([]Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, name, description, category, enabled, created_at FROM events WHERE enabled = true ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.Name, &e.Description, &e.Category, &e.Enabled, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Subscriptions ---

type Subscription struct {
	ID            int64     `json:"id"`
	ReceiveID     string    `json:"receive_id"`
	ReceiveIDType string    `json:"receive_id_type"`
	EventID       int       `json:"event_id"`
	EventName     string    `json:"event_name"`
	ReportHour    int       `json:"report_hour"`
	ThresholdPct  float64   `json:"threshold_pct"`
	CreatedAt     time.Time `json:"created_at"`
}

const subscriptionColumns = `s.id, s.receive_id, s.receive_id_type, s.event_id, e.name, s.report_hour, s.threshold_pct, s.created_at`

func scanSubscription(row pgx.Row) (*Subscription, error) {
	var sub Subscription
	err := row.Scan(&sub.ID, &sub.ReceiveID, &sub.ReceiveIDType, &sub.EventID, &sub.EventName, &sub.ReportHour, &sub.ThresholdPct, &sub.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (s *Store) ListSubscriptions(ctx context.Context, receiveID string) ([]Subscription, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+subscriptionColumns+`
		FROM subscriptions s
		JOIN events e ON e.id = s.event_id
		WHERE s.receive_id = $1
		ORDER BY s.id`, receiveID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, *sub)
	}
	return subs, rows.Err()
}

// Subscribe creates or updates the recipient's subscription to an event.
func (s *Store) Subscribe(ctx context.Context, receiveID, receiveIDType string, eventID, reportHour int, thresholdPct float64) (*Subscription, error) {
	row := s.pool.QueryRow(ctx, `
		WITH upserted AS (
			INSERT INTO subscriptions (receive_id, receive_id_type, event_id, report_hour, threshold_pct)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (receive_id, event_id) DO UPDATE
				SET receive_id_type = $2, report_hour = $4, threshold_pct = $5
			RETURNING *
		)
		SELECT `+subscriptionColumns+`
		FROM upserted s
		JOIN events e ON e.id = s.event_id`,
		receiveID, receiveIDType, eventID, reportHour, thresholdPct)
	sub, err := scanSubscription(row)
	var pgErr *pgconn.PgError
	if errors.Is(err, pgx.ErrNoRows) || (errors.As(err, &pgErr) && pgErr.Code == foreignKeyViolation) {
		return nil, ErrNotFound
	}
	return sub, err
}

func (s *Store) Unsubscribe(ctx context.Context, subID int64) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM subscriptions WHERE id = $1`, subID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Target is a recipient with its per-subscription settings.
type Target struct {
	ReceiveID     string
	ReceiveIDType string
	ReportHour    int
	ThresholdPct  float64
}

func (s *Store) queryTargets(ctx context.Context, query string, args ...any) ([]Target, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var targets []Target
	for rows.Next() {
		var t Target
		if err := rows.Scan(&t.ReceiveID, &t.ReceiveIDType, &t.ReportHour, &t.ThresholdPct); err != nil {
			return nil, err
		}
		targets = append(targets, t)
	}
	return targets, rows.Err()
}

// GetTargets returns every recipient subscribed to an event.
func (s *Store) GetTargets(ctx context.Context, eventName string) ([]Target, error) {
	return s.queryTargets(ctx, `
		SELECT s.receive_id, s.receive_id_type, s.report_hour, s.threshold_pct
		FROM subscriptions s
		JOIN events e ON e.id = s.event_id
		WHERE e.name = $1 AND e.enabled = true`, eventName)
}

// GetDailyReportTargets returns recipients of a report event due at hour.
func (s *Store) GetDailyReportTargets(ctx context.Context, eventName string, hour int) ([]Target, error) {
	return s.queryTargets(ctx, `
		SELECT s.receive_id, s.receive_id_type, s.report_hour, s.threshold_pct
		FROM subscriptions s
		JOIN events e ON e.id = s.event_id
		WHERE e.name = $1 AND e.enabled = true AND s.report_hour = $2`, eventName, hour)
}

// CountSubscriptions returns the number of active subscriptions for an event.
func (s *Store) CountSubscriptions(ctx context.Context, eventName string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*)
		FROM subscriptions s
		JOIN events e ON e.id = s.event_id
		WHERE e.name = $1`, eventName).Scan(&count)
	return count, err
}
