package clicks

import (
	"context"
	"database/sql"
	"fmt"
)

// PGSink appends click events to a Postgres warehouse table. Schema:
//
//	CREATE TABLE clicks (
//	    click_id   TEXT PRIMARY KEY,
//	    deal_id    TEXT NOT NULL,
//	    brand      TEXT NOT NULL,
//	    ts         TIMESTAMPTZ NOT NULL,
//	    user_agent TEXT,
//	    ip         TEXT,
//	    referrer   TEXT
//	);
type PGSink struct {
	db *sql.DB
}

func NewPGSink(db *sql.DB) *PGSink {
	return &PGSink{db: db}
}

func (s *PGSink) Append(ctx context.Context, ev Event) error {
	const query = `
		INSERT INTO clicks (click_id, deal_id, brand, ts, user_agent, ip, referrer)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (click_id) DO NOTHING
	`
	if _, err := s.db.ExecContext(ctx, query,
		ev.ClickID, ev.DealID, ev.Brand, ev.Timestamp, ev.UserAgent, ev.IP, ev.Referrer,
	); err != nil {
		return fmt.Errorf("insert click: %w", err)
	}
	return nil
}

func (s *PGSink) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	return nil
}
