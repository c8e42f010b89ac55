package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

func (s *DB) PutDedup(ctx context.Context, key string, until time.Time) error {
	if err := s.ready(); err != nil {
		return err
	}
	if key == "" {
		return nil
	}
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO dedup(key, until_ms) VALUES(?, ?)
	ON CONFLICT(key) DO UPDATE SET until_ms = excluded.until_ms`), key, until.UnixMilli())
	if err == nil && s.opCount.Add(1)%s.pruneEvery == 0 {
		pctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		if perr := s.pruneDedup(pctx, time.Now()); perr != nil {
			s.log.Debug("dedup prune failed")
		}
		cancel()
	}
	return err
}

func (s *DB) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	if err := s.ready(); err != nil {
		return time.Time{}, false, err
	}
	if key == "" {
		return time.Time{}, false, nil
	}
	var ms int64
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT until_ms FROM dedup WHERE key = ?`), key).Scan(&ms)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}

func (s *DB) pruneDedup(ctx context.Context, now time.Time) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM dedup WHERE until_ms < ?`), now.UnixMilli())
	return err
}
