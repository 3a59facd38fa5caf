package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/m1520n/rag-chatbot/engine/catalog/migrations"
	"github.com/m1520n/rag-chatbot/engine/domain"
)

const selectColumns = "id, name, descr, descr2, tags, active"

// emptyPredicates maps a filter to the SQL condition selecting rows missing that field.
var emptyPredicates = map[domain.CatalogFilter]string{
	domain.FilterEmptyDescription: "(descr IS NULL OR descr = '' OR descr2 IS NULL OR descr2 = '')",
	domain.FilterEmptyName:        "(name IS NULL OR name = '')",
	domain.FilterEmptyTags:        "(tags IS NULL OR tags = '')",
}

// SQLiteSource is a Source backed by a SQLite products table.
type SQLiteSource struct {
	db   *sql.DB
	path string
}

// OpenSQLite opens (creating if needed) the catalog database at path and
// applies pending migrations.
func OpenSQLite(path string) (*SQLiteSource, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("catalog: create data directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("catalog: open database: %w", err)
	}
	s := &SQLiteSource{db: db, path: path}
	if err := s.migrate(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database.
func (s *SQLiteSource) Close() error { return s.db.Close() }

// Path returns the database file path.
func (s *SQLiteSource) Path() string { return s.path }

func (s *SQLiteSource) migrate(fsys fs.FS) error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return fmt.Errorf("read migrations: %w", err)
	}
	var ups []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".up.sql") {
			ups = append(ups, e.Name())
		}
	}
	sort.Strings(ups)

	for _, name := range ups {
		var version int
		if _, err := fmt.Sscanf(name, "%d_", &version); err != nil || version <= current {
			continue
		}
		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := s.db.Exec(string(body)); err != nil {
			return fmt.Errorf("apply migration %s: %w", name, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_migrations (version) VALUES (?)", version); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
	}
	return nil
}

func filterClause(filters []domain.CatalogFilter) string {
	var conds []string
	for _, f := range filters {
		if p, ok := emptyPredicates[f]; ok {
			conds = append(conds, p)
		}
	}
	if len(conds) == 0 {
		return ""
	}
	return " AND (" + strings.Join(conds, " OR ") + ")"
}

func (s *SQLiteSource) FetchActive(ctx context.Context) ([]domain.ProductRecord, error) {
	return s.query(ctx, "SELECT "+selectColumns+" FROM products WHERE active = 1 ORDER BY id")
}

func (s *SQLiteSource) FetchActivePaginated(ctx context.Context, offset, limit int, filters ...domain.CatalogFilter) ([]domain.ProductRecord, error) {
	q := "SELECT " + selectColumns + " FROM products WHERE active = 1" + filterClause(filters) +
		" ORDER BY id DESC LIMIT ? OFFSET ?"
	return s.query(ctx, q, limit, offset)
}

func (s *SQLiteSource) CountActive(ctx context.Context, filters ...domain.CatalogFilter) (int, error) {
	var n int
	q := "SELECT COUNT(*) FROM products WHERE active = 1" + filterClause(filters)
	if err := s.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("catalog: count active: %w", err)
	}
	return n, nil
}

func (s *SQLiteSource) Get(ctx context.Context, id string) (domain.ProductRecord, error) {
	num, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return domain.ProductRecord{}, fmt.Errorf("catalog: product %q: %w", id, domain.ErrNotFound)
	}
	recs, err := s.query(ctx, "SELECT "+selectColumns+" FROM products WHERE id = ?", num)
	if err != nil {
		return domain.ProductRecord{}, err
	}
	if len(recs) == 0 {
		return domain.ProductRecord{}, fmt.Errorf("catalog: product %s: %w", id, domain.ErrNotFound)
	}
	return recs[0], nil
}

// Insert adds or replaces a product row. An empty ID lets SQLite assign one.
func (s *SQLiteSource) Insert(ctx context.Context, rec domain.ProductRecord) error {
	var id any
	if rec.ID != "" {
		num, err := strconv.ParseInt(rec.ID, 10, 64)
		if err != nil {
			return fmt.Errorf("catalog: insert: id %q is not numeric", rec.ID)
		}
		id = num
	}
	var descr, descr2 string
	if len(rec.Descriptions) > 0 {
		descr = rec.Descriptions[0]
	}
	if len(rec.Descriptions) > 1 {
		descr2 = strings.Join(rec.Descriptions[1:], " ")
	}
	active := 0
	if rec.Active {
		active = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO products (id, name, descr, descr2, tags, active, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		id, rec.Name, descr, descr2, rec.Tags, active)
	if err != nil {
		return fmt.Errorf("catalog: insert product %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLiteSource) query(ctx context.Context, q string, args ...any) ([]domain.ProductRecord, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("catalog: query products: %w", err)
	}
	defer rows.Close()

	var out []domain.ProductRecord
	for rows.Next() {
		var (
			id                        int64
			name, descr, descr2, tags sql.NullString
			active                    bool
		)
		if err := rows.Scan(&id, &name, &descr, &descr2, &tags, &active); err != nil {
			return nil, fmt.Errorf("catalog: scan product: %w", err)
		}
		out = append(out, domain.ProductRecord{
			ID:           strconv.FormatInt(id, 10),
			Name:         name.String,
			Descriptions: []string{descr.String, descr2.String},
			Tags:         tags.String,
			Active:       active,
		})
	}
	if err := rows.Err(); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("catalog: iterate products: %w", err)
	}
	return out, nil
}
