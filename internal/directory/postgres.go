package directory

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/feerecon/internal/db"
	"github.com/sells-group/feerecon/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS profiles (
	seq        BIGSERIAL UNIQUE,
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL,
	id_card    TEXT NOT NULL DEFAULT '',
	bank_card  TEXT NOT NULL DEFAULT '',
	bank_name  TEXT NOT NULL DEFAULT '',
	phone      TEXT NOT NULL DEFAULT '',
	salary_id  TEXT NOT NULL DEFAULT '',
	department TEXT NOT NULL DEFAULT '',
	category   TEXT NOT NULL DEFAULT '',
	remark     TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_profiles_name ON profiles(name);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) FindByNames(ctx context.Context, names []string) (map[string][]model.Profile, error) {
	out := make(map[string][]model.Profile)
	names = uniqueNames(names)
	if len(names) == 0 {
		return out, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE name = ANY($1) ORDER BY seq`,
		names,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: find profiles by name")
	}
	defer rows.Close()

	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, err
		}
		out[p.Name] = append(out[p.Name], *p)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: find profiles iterate")
	}
	return out, nil
}

var copyColumns = []string{
	"id", "name", "id_card", "bank_card", "bank_name", "phone",
	"salary_id", "department", "category", "remark", "created_at",
}

func (s *PostgresStore) Insert(ctx context.Context, profiles []model.Profile) (int, error) {
	prepared, err := prepareProfiles(profiles)
	if err != nil {
		return 0, err
	}
	rows := make([][]any, len(prepared))
	for i, p := range prepared {
		rows[i] = profileRow(p)
	}
	n, err := db.CopyFrom(ctx, s.pool, "profiles", copyColumns, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: insert profiles")
	}
	return int(n), nil
}
