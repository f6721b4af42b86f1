package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/kleros/market-maker/inventory"
)

const schema = `
CREATE TABLE IF NOT EXISTS reserve_snapshots (
	id         BIGSERIAL PRIMARY KEY,
	pair       TEXT        NOT NULL,
	base       NUMERIC     NOT NULL,
	quote      NUMERIC     NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS reserve_snapshots_pair_id ON reserve_snapshots (pair, id DESC);
`

type snapshotRow struct {
	ID        int64           `db:"id"`
	Pair      string          `db:"pair"`
	Base      decimal.Decimal `db:"base"`
	Quote     decimal.Decimal `db:"quote"`
	CreatedAt time.Time       `db:"created_at"`
}

// PostgresStore 每次保存追加一行快照，Load 取最新一行，保留完整的储备历史。
type PostgresStore struct {
	db   *sqlx.DB
	pair string
	now  func() time.Time
}

// OpenPostgres 连接数据库并建表。
func OpenPostgres(ctx context.Context, dsn, pair string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres store: empty dsn")
	}
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := NewPostgresStore(db, pair)
	if err := s.Migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewPostgresStore 包装已有连接。
func NewPostgresStore(db *sqlx.DB, pair string) *PostgresStore {
	if pair == "" {
		pair = "default"
	}
	return &PostgresStore{db: db, pair: pair, now: func() time.Time { return time.Now().UTC() }}
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate reserve_snapshots: %w", err)
	}
	return nil
}

func (s *PostgresStore) Load(ctx context.Context) (inventory.Reserve, bool, error) {
	var row snapshotRow
	err := s.db.GetContext(ctx, &row,
		`SELECT id, pair, base, quote, created_at FROM reserve_snapshots WHERE pair = $1 ORDER BY id DESC LIMIT 1`,
		s.pair)
	if errors.Is(err, sql.ErrNoRows) {
		return inventory.Reserve{}, false, nil
	}
	if err != nil {
		return inventory.Reserve{}, false, fmt.Errorf("load reserve: %w", err)
	}
	r, err := inventory.NewReserve(row.Base, row.Quote)
	if err != nil {
		return inventory.Reserve{}, false, fmt.Errorf("snapshot %d: %w", row.ID, err)
	}
	return r, true, nil
}

func (s *PostgresStore) Save(ctx context.Context, r inventory.Reserve) error {
	_, err := s.db.NamedExecContext(ctx,
		`INSERT INTO reserve_snapshots (pair, base, quote, created_at) VALUES (:pair, :base, :quote, :created_at)`,
		snapshotRow{Pair: s.pair, Base: r.Base, Quote: r.Quote, CreatedAt: s.now()})
	if err != nil {
		return fmt.Errorf("save reserve: %w", err)
	}
	return nil
}

// History 返回最近 limit 条快照，新的在前。
func (s *PostgresStore) History(ctx context.Context, limit int) ([]inventory.Reserve, error) {
	var rows []snapshotRow
	if err := s.db.SelectContext(ctx, &rows,
		`SELECT id, pair, base, quote, created_at FROM reserve_snapshots WHERE pair = $1 ORDER BY id DESC LIMIT $2`,
		s.pair, limit); err != nil {
		return nil, fmt.Errorf("reserve history: %w", err)
	}
	out := make([]inventory.Reserve, 0, len(rows))
	for _, row := range rows {
		out = append(out, inventory.Reserve{Base: row.Base, Quote: row.Quote})
	}
	return out, nil
}

func (s *PostgresStore) Close() error { return s.db.Close() }
