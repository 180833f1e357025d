package store

import "context"

const migrationSQL = `
CREATE TABLE IF NOT EXISTS events (
    id SERIAL PRIMARY KEY,
    name TEXT NOT NULL UNIQUE,
    description TEXT NOT NULL DEFAULT '',
    category TEXT NOT NULL DEFAULT 'general',
    enabled BOOLEAN NOT NULL DEFAULT true,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS subscriptions (
    id BIGSERIAL PRIMARY KEY,
    receive_id TEXT NOT NULL,
    receive_id_type TEXT NOT NULL DEFAULT 'chat_id',
    event_id INT NOT NULL REFERENCES events(id) ON DELETE CASCADE,
    report_hour INT NOT NULL DEFAULT 8,
    threshold_pct DOUBLE PRECISION NOT NULL DEFAULT 0,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE(receive_id, event_id)
);

CREATE INDEX IF NOT EXISTS subscriptions_event_hour_idx ON subscriptions (event_id, report_hour);

-- Seed default events (idempotent)
INSERT INTO events (name, description, category) VALUES
    ('daily_report', 'Daily net growth card per project, sent at the chosen hour (Asia/Shanghai)', 'report'),
    ('stats_report', 'Lifetime project stats card, sent at the chosen hour (Asia/Shanghai)', 'report'),
    ('liquidity_alert', 'Alert when a bridge''s liquidity drops by the chosen percentage between polls', 'bridge')
ON CONFLICT (name) DO NOTHING;
`

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, migrationSQL)
	return err
}
