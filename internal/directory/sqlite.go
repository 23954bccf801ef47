package directory

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/feerecon/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS profiles (
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
	created_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS idx_profiles_name ON profiles(name);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const profileColumns = `id, name, id_card, bank_card, bank_name, phone, salary_id, department, category, remark, created_at`

func (s *SQLiteStore) FindByNames(ctx context.Context, names []string) (map[string][]model.Profile, error) {
	out := make(map[string][]model.Profile)
	names = uniqueNames(names)

	for start := 0; start < len(names); start += lookupChunk {
		end := min(start+lookupChunk, len(names))
		chunk := names[start:end]

		args := make([]any, len(chunk))
		for i, n := range chunk {
			args[i] = n
		}
		query := `SELECT ` + profileColumns + ` FROM profiles WHERE name IN (?` +
			strings.Repeat(", ?", len(chunk)-1) + `) ORDER BY rowid`

		rows, err := s.db.QueryContext(ctx, query, args...)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: find profiles by name")
		}
		for rows.Next() {
			p, err := scanProfile(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			out[p.Name] = append(out[p.Name], *p)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: find profiles iterate")
		}
	}
	return out, nil
}

func (s *SQLiteStore) Insert(ctx context.Context, profiles []model.Profile) (int, error) {
	prepared, err := prepareProfiles(profiles)
	if err != nil {
		return 0, err
	}
	if len(prepared) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin insert")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO profiles (`+profileColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare insert")
	}
	defer stmt.Close()

	for _, p := range prepared {
		if _, err := stmt.ExecContext(ctx, profileRow(p)...); err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert profile %s", p.Name)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit insert")
	}
	return len(prepared), nil
}

// prepareProfiles assigns ids and timestamps and normalizes names.
func prepareProfiles(profiles []model.Profile) ([]model.Profile, error) {
	now := time.Now().UTC()
	out := make([]model.Profile, 0, len(profiles))
	for i, p := range profiles {
		p.Name = model.NormalizeName(p.Name)
		if p.Name == "" {
			return nil, eris.Errorf("directory: profile %d has no name", i)
		}
		if p.ID == "" {
			p.ID = uuid.New().String()
		}
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		out = append(out, p)
	}
	return out, nil
}

func profileRow(p model.Profile) []any {
	return []any{
		p.ID, p.Name, p.IDCard, p.BankCard, p.BankName, p.Phone,
		p.SalaryID, p.Department, p.Category, p.Remark, p.CreatedAt,
	}
}

type scannable interface {
	Scan(dest ...any) error
}

func scanProfile(row scannable) (*model.Profile, error) {
	var p model.Profile
	err := row.Scan(&p.ID, &p.Name, &p.IDCard, &p.BankCard, &p.BankName, &p.Phone,
		&p.SalaryID, &p.Department, &p.Category, &p.Remark, &p.CreatedAt)
	if err != nil {
		return nil, eris.Wrap(err, "directory: scan profile")
	}
	return &p, nil
}
