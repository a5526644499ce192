package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "modernc.org/sqlite"

	logx "postbot/pkg/logx"
)

//go:embed schema.sql
var schemaSQL string

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Backend, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")
	_, _ = db.Exec("PRAGMA foreign_keys = ON")

	if _, err := db.ExecContext(context.Background(), schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite migrate: %w", err)
	}
	return &sqliteStore{db: db, log: log}, nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Load(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{}

	rows, err := s.db.QueryContext(ctx, `SELECT id, title FROM channels`)
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var id int64
		var title string
		if err := rows.Scan(&id, &title); err != nil {
			_ = rows.Close()
			return nil, err
		}
		snap[id] = ChannelRecord{Title: title, Jobs: []JobRecord{}}
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}

	rows, err = s.db.QueryContext(ctx,
		`SELECT channel_id, id, text, photo, time, days, user_id, paused FROM jobs ORDER BY channel_id, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			chID   int64
			j      JobRecord
			photo  sql.NullString
			days   string
			paused int
		)
		if err := rows.Scan(&chID, &j.ID, &j.Text, &photo, &j.Time, &days, &j.UserID, &paused); err != nil {
			return nil, err
		}
		j.Photo = photo.String
		j.Paused = paused != 0
		if j.Days, err = parseDays(days); err != nil {
			return nil, fmt.Errorf("%w: job %d/%d: %v", ErrCorrupt, chID, j.ID, err)
		}
		ch := snap[chID]
		ch.Jobs = append(ch.Jobs, j)
		snap[chID] = ch
	}
	return snap, rows.Err()
}

// Save replaces both tables in one transaction.
func (s *sqliteStore) Save(ctx context.Context, snap Snapshot) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = tx.ExecContext(ctx, `DELETE FROM jobs`); err != nil {
		return err
	}
	if _, err = tx.ExecContext(ctx, `DELETE FROM channels`); err != nil {
		return err
	}
	for id, ch := range snap {
		if _, err = tx.ExecContext(ctx, `INSERT INTO channels(id, title) VALUES(?, ?)`, id, ch.Title); err != nil {
			return err
		}
		for _, j := range ch.Jobs {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO jobs(channel_id, id, text, photo, time, days, user_id, paused) VALUES(?,?,?,?,?,?,?,?)`,
				id, j.ID, j.Text, nullStr(j.Photo), j.Time, formatDays(j.Days), j.UserID, boolInt(j.Paused),
			)
			if err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

func formatDays(days []int) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

func parseDays(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return []int{}, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		d, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func nullStr(v string) any {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
