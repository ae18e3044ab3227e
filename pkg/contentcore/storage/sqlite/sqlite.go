package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/content-core/pkg/contentcore"
	sqlitedriver "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// Fixed width so that text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const selectColumns = `id, type, version, attributes, created_at, updated_at`

func init() {
	if err := sqlitedriver.RegisterDeterministicScalarFunction("content_match", 2, contentMatch); err != nil {
		panic(fmt.Sprintf("register content_match: %v", err))
	}
}

// Open opens the database at path. Use ":memory:" for a throwaway database;
// the pool is then limited to one connection so every query sees the same
// data.
func Open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}
	return db, nil
}

// EnsureSchema creates the content_items table if needed
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Storage implements contentcore.Storage on SQLite. All content types share
// one table; each Storage only sees rows of its own type.
type Storage[T any] struct {
	db          *sql.DB
	contentType string
}

// New creates a backend for contentType on db
func New[T any](db *sql.DB, contentType string) *Storage[T] {
	return &Storage[T]{db: db, contentType: contentType}
}

func (s *Storage[T]) Get(ctx context.Context, id string) (*contentcore.Item[T], error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM content_items WHERE type = ? AND id = ?`, s.contentType, id)

	item, err := scanItem[T](row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, contentcore.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s %s: %w", s.contentType, id, err)
	}
	return item, nil
}

func (s *Storage[T]) MGet(ctx context.Context, ids []string) ([]*contentcore.Item[T], error) {
	if len(ids) == 0 {
		return []*contentcore.Item[T]{}, nil
	}

	args := make([]any, 0, len(ids)+1)
	args = append(args, s.contentType)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM content_items WHERE type = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("bulk get %s: %w", s.contentType, err)
	}
	defer rows.Close()

	byID := make(map[string]*contentcore.Item[T], len(ids))
	for rows.Next() {
		item, err := scanItem[T](rows)
		if err != nil {
			return nil, fmt.Errorf("bulk get %s: %w", s.contentType, err)
		}
		byID[item.ID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bulk get %s: %w", s.contentType, err)
	}

	items := make([]*contentcore.Item[T], 0, len(byID))
	for _, id := range ids {
		if item, ok := byID[id]; ok {
			items = append(items, item)
		}
	}
	return items, nil
}

func (s *Storage[T]) Create(ctx context.Context, attrs T, opts contentcore.CreateOptions) (*contentcore.Item[T], error) {
	encoded, err := json.Marshal(attrs)
	if err != nil {
		return nil, fmt.Errorf("encode attributes: %w", err)
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	now := time.Now().UTC()

	query := `INSERT INTO content_items (type, id, version, attributes, created_at, updated_at)
		VALUES (?, ?, 1, ?, ?, ?)`
	if opts.Overwrite {
		query += ` ON CONFLICT (type, id) DO UPDATE SET
			version = 1, attributes = excluded.attributes,
			created_at = excluded.created_at, updated_at = excluded.updated_at`
	} else {
		query += ` ON CONFLICT (type, id) DO NOTHING`
	}

	res, err := s.db.ExecContext(ctx, query, s.contentType, id, string(encoded), now.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", s.contentType, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return nil, fmt.Errorf("%s %s already exists: %w", s.contentType, id, contentcore.ErrConflict)
	}

	item := &contentcore.Item[T]{
		CommonFields: contentcore.CommonFields{
			ID:        id,
			Type:      s.contentType,
			Version:   1,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
	if err := json.Unmarshal(encoded, &item.Attributes); err != nil {
		return nil, fmt.Errorf("decode attributes: %w", err)
	}
	return item, nil
}

func (s *Storage[T]) Update(ctx context.Context, id string, patch contentcore.Patch, opts contentcore.UpdateOptions) (*contentcore.UpdateResult, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if opts.Version != 0 && opts.Version != current.Version {
		return nil, fmt.Errorf("%s %s is at version %d, not %d: %w",
			s.contentType, id, current.Version, opts.Version, contentcore.ErrConflict)
	}

	merged, applied, err := contentcore.MergeAttributes(current.Attributes, patch)
	if err != nil {
		return nil, err
	}
	encoded, err := json.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("encode attributes: %w", err)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`UPDATE content_items SET attributes = ?, version = version + 1, updated_at = ?
		WHERE type = ? AND id = ? AND version = ?`,
		string(encoded), now.Format(timeLayout), s.contentType, id, current.Version)
	if err != nil {
		return nil, fmt.Errorf("update %s %s: %w", s.contentType, id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Changed or removed since it was read.
		if _, err := s.Get(ctx, id); errors.Is(err, contentcore.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%s %s was modified concurrently: %w", s.contentType, id, contentcore.ErrConflict)
	}

	fields := current.CommonFields
	fields.Version++
	fields.UpdatedAt = now
	return &contentcore.UpdateResult{CommonFields: fields, Attributes: applied}, nil
}

func (s *Storage[T]) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM content_items WHERE type = ? AND id = ?`, s.contentType, id)
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", s.contentType, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s %s: %w", s.contentType, id, err)
	}
	if n == 0 {
		return contentcore.ErrNotFound
	}
	return nil
}

func (s *Storage[T]) Search(ctx context.Context, query contentcore.SearchQuery) (*contentcore.SearchResult[T], error) {
	query = query.Normalize()

	var total int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM content_items WHERE type = ? AND content_match(attributes, ?)`,
		s.contentType, query.Text).Scan(&total)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", s.contentType, err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM content_items
		WHERE type = ? AND content_match(attributes, ?)
		ORDER BY updated_at DESC, id ASC LIMIT ? OFFSET ?`,
		s.contentType, query.Text, query.Limit, query.Offset)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", s.contentType, err)
	}
	defer rows.Close()

	result := &contentcore.SearchResult[T]{Hits: []*contentcore.Item[T]{}, Total: total}
	for rows.Next() {
		item, err := scanItem[T](rows)
		if err != nil {
			return nil, fmt.Errorf("search %s: %w", s.contentType, err)
		}
		result.Hits = append(result.Hits, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search %s: %w", s.contentType, err)
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanItem[T any](row scanner) (*contentcore.Item[T], error) {
	var (
		item                 contentcore.Item[T]
		attributes           string
		createdAt, updatedAt string
	)
	if err := row.Scan(&item.ID, &item.Type, &item.Version, &attributes, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(attributes), &item.Attributes); err != nil {
		return nil, fmt.Errorf("decode attributes of %s: %w", item.ID, err)
	}

	var err error
	if item.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at of %s: %w", item.ID, err)
	}
	if item.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at of %s: %w", item.ID, err)
	}
	return &item, nil
}

// contentMatch backs the content_match(attributes, text) SQL function so
// search matches string values the same way the in-process backends do.
// SQLite's lower() only folds ASCII.
func contentMatch(_ *sqlitedriver.FunctionContext, args []driver.Value) (driver.Value, error) {
	var attributes []byte
	switch v := args[0].(type) {
	case string:
		attributes = []byte(v)
	case []byte:
		attributes = v
	default:
		return int64(0), nil
	}
	text, _ := args[1].(string)
	if contentcore.MatchText(attributes, text) {
		return int64(1), nil
	}
	return int64(0), nil
}
