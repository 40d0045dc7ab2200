package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Backend using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB

	mu       sync.RWMutex
	notifier ChangeNotifier
	now      func() time.Time
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// A single connection keeps ":memory:" databases shared across calls.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SetNotifier registers the receiver of committed inserts and updates.
func (s *SQLiteStore) SetNotifier(n ChangeNotifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier = n
}

func (s *SQLiteStore) notify(ctx context.Context, c Change) {
	s.mu.RLock()
	n := s.notifier
	s.mu.RUnlock()
	if n != nil {
		n.NotifyChange(ctx, c)
	}
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// whereClause renders conds as an AND-joined SQL fragment and its args.
func whereClause(table string, where []Cond) (string, []any, error) {
	var conditions []string
	var args []any

	for _, c := range where {
		if err := checkColumns(table, c.Column); err != nil {
			return "", nil, err
		}
		switch len(c.Values) {
		case 0:
			// An empty IN matches nothing.
			conditions = append(conditions, "0")
		case 1:
			conditions = append(conditions, c.Column+" = ?")
			args = append(args, c.Values[0])
		default:
			marks := strings.TrimSuffix(strings.Repeat("?, ", len(c.Values)), ", ")
			conditions = append(conditions, fmt.Sprintf("%s IN (%s)", c.Column, marks))
			args = append(args, c.Values...)
		}
	}

	return strings.Join(conditions, " AND "), args, nil
}

// Select returns rows of table matching every cond, newest first.
func (s *SQLiteStore) Select(
	ctx context.Context,
	table string,
	where ...Cond,
) ([]Row, error) {
	if err := checkColumns(table); err != nil {
		return nil, err
	}

	clause, args, err := whereClause(table, where)
	if err != nil {
		return nil, err
	}

	query := "SELECT * FROM " + table
	if clause != "" {
		query += " WHERE " + clause
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying %s: %w", table, err)
	}
	defer rows.Close()

	var out []Row
	for rows.Next() {
		m := make(map[string]any)
		if err := rows.MapScan(m); err != nil {
			return nil, fmt.Errorf("scanning %s row: %w", table, err)
		}
		out = append(out, normalizeRow(m))
	}

	return out, rows.Err()
}

// Update applies patch to the row with the given id if it also matches
// every cond. The updated_at column is maintained automatically.
func (s *SQLiteStore) Update(
	ctx context.Context,
	table, id string,
	patch Row,
	where ...Cond,
) (int64, error) {
	if len(patch) == 0 {
		return 0, fmt.Errorf("updating %s %s: empty patch", table, id)
	}

	columns := make([]string, 0, len(patch))
	for c := range patch {
		columns = append(columns, c)
	}
	sort.Strings(columns)
	if err := checkColumns(table, columns...); err != nil {
		return 0, err
	}

	sets := make([]string, 0, len(columns)+1)
	args := make([]any, 0, len(columns)+1)
	for _, c := range columns {
		sets = append(sets, c+" = ?")
		args = append(args, patch[c])
	}
	if hasColumn(table, ColumnUpdatedAt) && patch[ColumnUpdatedAt] == nil {
		sets = append(sets, ColumnUpdatedAt+" = ?")
		args = append(args, s.now().UTC().Format(time.RFC3339Nano))
	}

	clause, whereArgs, err := whereClause(table, append([]Cond{Eq(ColumnID, id)}, where...))
	if err != nil {
		return 0, err
	}
	args = append(args, whereArgs...)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s", table, strings.Join(sets, ", "), clause)
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("updating %s %s: %w", table, id, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reading rows affected for %s %s: %w", table, id, err)
	}

	if n > 0 {
		if rows, err := s.Select(ctx, table, Eq(ColumnID, id)); err == nil && len(rows) == 1 {
			s.notify(ctx, Change{Table: table, Kind: ChangeUpdate, Row: rows[0]})
		}
	}

	return n, nil
}

// Insert adds a row to table. A missing id gets a new UUID and missing
// created_at/updated_at columns are set to now. The stored row is returned.
func (s *SQLiteStore) Insert(ctx context.Context, table string, row Row) (Row, error) {
	r := make(Row, len(row)+3)
	for k, v := range row {
		r[k] = v
	}
	if r.String(ColumnID) == "" {
		r[ColumnID] = uuid.New().String()
	}
	now := s.now().UTC().Format(time.RFC3339Nano)
	if _, ok := r[ColumnCreatedAt]; !ok {
		r[ColumnCreatedAt] = now
	}
	if hasColumn(table, ColumnUpdatedAt) {
		if _, ok := r[ColumnUpdatedAt]; !ok {
			r[ColumnUpdatedAt] = now
		}
	}

	columns := make([]string, 0, len(r))
	for c := range r {
		columns = append(columns, c)
	}
	sort.Strings(columns)
	if err := checkColumns(table, columns...); err != nil {
		return nil, err
	}

	args := make([]any, len(columns))
	for i, c := range columns {
		args[i] = r[c]
	}
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), marks,
	)
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("inserting into %s: %w", table, err)
	}

	rows, err := s.Select(ctx, table, Eq(ColumnID, r[ColumnID]))
	if err != nil {
		return nil, err
	}
	if len(rows) != 1 {
		return nil, fmt.Errorf("inserting into %s: row %v not readable", table, r[ColumnID])
	}

	s.notify(ctx, Change{Table: table, Kind: ChangeInsert, Row: rows[0]})
	return rows[0], nil
}

// normalizeRow converts driver byte slices to strings.
func normalizeRow(m map[string]any) Row {
	r := make(Row, len(m))
	for k, v := range m {
		if b, ok := v.([]byte); ok {
			r[k] = string(b)
			continue
		}
		r[k] = v
	}
	return r
}
