// Package seeder fills a warehouse schema with synthetic product events so
// the agent has something to query in development.
package seeder

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"
)

type Service struct {
	cfg       Config
	db        *sql.DB
	log       *slog.Logger
	generator *Generator
	now       func() time.Time
}

func NewService(cfg Config, db *sql.DB, logger *slog.Logger) (*Service, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Service{
		cfg:       cfg,
		db:        db,
		log:       logger,
		generator: NewGenerator(cfg.Seed, cfg.UserCardinality),
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Run creates the events table when configured and inserts Days*EventsPerDay
// rows ending today. It returns the number of rows inserted.
func (s *Service) Run(ctx context.Context) (int, error) {
	if s.cfg.CreateTable {
		if err := s.ensureTable(ctx); err != nil {
			return 0, err
		}
	}
	if s.cfg.Truncate {
		if _, err := s.db.ExecContext(ctx, `TRUNCATE TABLE `+s.cfg.qualifiedTable()); err != nil {
			return 0, fmt.Errorf("truncate demo table: %w", err)
		}
	}

	today := s.now().Truncate(24 * time.Hour)
	first := today.AddDate(0, 0, -(s.cfg.Days - 1))

	batch := make([]Event, 0, s.cfg.BatchSize)
	inserted := 0
	for day := 0; day < s.cfg.Days; day++ {
		dayStart := first.AddDate(0, 0, day)
		for i := 0; i < s.cfg.EventsPerDay; i++ {
			batch = append(batch, s.generator.NextEvent(dayStart))
			if len(batch) == s.cfg.BatchSize {
				if err := s.insertBatch(ctx, batch); err != nil {
					return inserted, err
				}
				inserted += len(batch)
				batch = batch[:0]
			}
		}
	}
	if len(batch) > 0 {
		if err := s.insertBatch(ctx, batch); err != nil {
			return inserted, err
		}
		inserted += len(batch)
	}

	s.log.Info("seeded demo events",
		slog.String("table", s.cfg.qualifiedTable()),
		slog.Int("rows", inserted),
		slog.Int("days", s.cfg.Days),
	)
	return inserted, nil
}

func (s *Service) ensureTable(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `CREATE SCHEMA IF NOT EXISTS `+s.cfg.Schema); err != nil {
		return fmt.Errorf("create demo schema: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS `+s.cfg.qualifiedTable()+` (
    event_id bigint NOT NULL,
    user_id text NOT NULL,
    session_id text NOT NULL,
    event_type text NOT NULL,
    amount numeric(10, 2) NOT NULL DEFAULT 0,
    currency text NOT NULL,
    country text NOT NULL,
    device text NOT NULL,
    occurred_at timestamptz NOT NULL
)`)
	if err != nil {
		return fmt.Errorf("create demo table: %w", err)
	}
	s.log.Info("demo table ready", slog.String("table", s.cfg.qualifiedTable()))
	return nil
}

const eventColumns = 9

func (s *Service) insertBatch(ctx context.Context, events []Event) error {
	var b strings.Builder
	b.WriteString(`INSERT INTO `)
	b.WriteString(s.cfg.qualifiedTable())
	b.WriteString(` (event_id, user_id, session_id, event_type, amount, currency, country, device, occurred_at) VALUES `)

	args := make([]any, 0, len(events)*eventColumns)
	for i, event := range events {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for col := 0; col < eventColumns; col++ {
			if col > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "$%d", i*eventColumns+col+1)
		}
		b.WriteString(")")
		args = append(args,
			event.EventID,
			event.UserID,
			event.SessionID,
			event.EventType,
			event.Amount,
			event.Currency,
			event.Country,
			event.Device,
			event.OccurredAt,
		)
	}

	if _, err := s.db.ExecContext(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("insert demo events: %w", err)
	}
	return nil
}
