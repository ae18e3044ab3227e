package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/content-core/pkg/contentcore"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// DefaultSchema is the schema holding the content_items table
const DefaultSchema = "content"

const selectColumns = `id, type, version, attributes, created_at, updated_at`

// Storage implements contentcore.Storage using PostgreSQL. All content types
// share one table keyed by (type, id).
type Storage[T any] struct {
	db          DBTX
	contentType string
	table       string
}

// Option configures a Storage
type Option func(*options)

type options struct {
	schema string
}

// WithSchema sets the schema holding the content_items table
func WithSchema(schema string) Option {
	return func(o *options) {
		if schema != "" {
			o.schema = schema
		}
	}
}

// New creates a PostgreSQL backend for contentType
func New[T any](db DBTX, contentType string, opts ...Option) *Storage[T] {
	o := options{schema: DefaultSchema}
	for _, opt := range opts {
		opt(&o)
	}
	return &Storage[T]{
		db:          db,
		contentType: contentType,
		table:       tableName(o.schema),
	}
}

// NewWithPool creates a PostgreSQL backend with connection pool
func NewWithPool[T any](pool *pgxpool.Pool, contentType string, opts ...Option) *Storage[T] {
	return New[T](pool, contentType, opts...)
}

// EnsureSchema creates the schema and the content_items table if needed
func EnsureSchema(ctx context.Context, db DBTX, schema string) error {
	if schema == "" {
		schema = DefaultSchema
	}
	table := tableName(schema)

	statements := []string{
		`CREATE SCHEMA IF NOT EXISTS ` + pgx.Identifier{schema}.Sanitize(),
		`CREATE TABLE IF NOT EXISTS ` + table + ` (
			type       TEXT        NOT NULL,
			id         TEXT        NOT NULL,
			version    BIGINT      NOT NULL DEFAULT 1,
			attributes JSONB       NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL,
			CONSTRAINT content_items_pkey PRIMARY KEY (type, id)
		)`,
		`CREATE INDEX IF NOT EXISTS content_items_updated_idx ON ` + table + ` (type, updated_at DESC)`,
	}
	for _, stmt := range statements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return handlePostgresError("ensure schema", err)
		}
	}
	return nil
}

func tableName(schema string) string {
	return pgx.Identifier{schema, "content_items"}.Sanitize()
}

// Error handling helper
func handlePostgresError(operation string, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s: %w", operation, contentcore.ErrConflict)
		case "23502": // not_null_violation
			return fmt.Errorf("%s: required field %s is missing", operation, pgErr.ColumnName)
		case "42P01": // undefined_table
			return fmt.Errorf("%s: table does not exist - run EnsureSchema", operation)
		default:
			return fmt.Errorf("database error in %s: %s (code: %s)", operation, pgErr.Message, pgErr.Code)
		}
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return contentcore.ErrNotFound
	}

	return fmt.Errorf("database error in %s: %w", operation, err)
}

func (s *Storage[T]) Get(ctx context.Context, id string) (*contentcore.Item[T], error) {
	row := s.db.QueryRow(ctx,
		`SELECT `+selectColumns+` FROM `+s.table+` WHERE type = $1 AND id = $2`, s.contentType, id)

	item, err := scanItem[T](row)
	if err != nil {
		return nil, handlePostgresError("get "+s.contentType, err)
	}
	return item, nil
}

func (s *Storage[T]) MGet(ctx context.Context, ids []string) ([]*contentcore.Item[T], error) {
	if len(ids) == 0 {
		return []*contentcore.Item[T]{}, nil
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+selectColumns+` FROM `+s.table+` WHERE type = $1 AND id = ANY($2)`, s.contentType, ids)
	if err != nil {
		return nil, handlePostgresError("bulk get "+s.contentType, err)
	}
	defer rows.Close()

	byID := make(map[string]*contentcore.Item[T], len(ids))
	for rows.Next() {
		item, err := scanItem[T](rows)
		if err != nil {
			return nil, handlePostgresError("bulk get "+s.contentType, err)
		}
		byID[item.ID] = item
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError("bulk get "+s.contentType, err)
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
	// TIMESTAMPTZ keeps microseconds.
	now := time.Now().UTC().Truncate(time.Microsecond)

	query := `INSERT INTO ` + s.table + ` (type, id, version, attributes, created_at, updated_at)
		VALUES ($1, $2, 1, $3, $4, $4)`
	if opts.Overwrite {
		query += ` ON CONFLICT (type, id) DO UPDATE SET
			version = 1, attributes = EXCLUDED.attributes,
			created_at = EXCLUDED.created_at, updated_at = EXCLUDED.updated_at`
	} else {
		query += ` ON CONFLICT (type, id) DO NOTHING`
	}

	tag, err := s.db.Exec(ctx, query, s.contentType, id, encoded, now)
	if err != nil {
		return nil, handlePostgresError("create "+s.contentType, err)
	}
	if tag.RowsAffected() == 0 {
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

	var fields contentcore.CommonFields
	err = s.db.QueryRow(ctx,
		`UPDATE `+s.table+` SET attributes = $1, version = version + 1, updated_at = $2
		WHERE type = $3 AND id = $4 AND version = $5
		RETURNING id, type, version, created_at, updated_at`,
		encoded, time.Now().UTC().Truncate(time.Microsecond), s.contentType, id, current.Version,
	).Scan(&fields.ID, &fields.Type, &fields.Version, &fields.CreatedAt, &fields.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		// Changed or removed since it was read.
		if _, err := s.Get(ctx, id); errors.Is(err, contentcore.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%s %s was modified concurrently: %w", s.contentType, id, contentcore.ErrConflict)
	}
	if err != nil {
		return nil, handlePostgresError("update "+s.contentType, err)
	}

	return &contentcore.UpdateResult{CommonFields: fields, Attributes: applied}, nil
}

func (s *Storage[T]) Delete(ctx context.Context, id string) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM `+s.table+` WHERE type = $1 AND id = $2`, s.contentType, id)
	if err != nil {
		return handlePostgresError("delete "+s.contentType, err)
	}
	if tag.RowsAffected() == 0 {
		return contentcore.ErrNotFound
	}
	return nil
}

func (s *Storage[T]) Search(ctx context.Context, query contentcore.SearchQuery) (*contentcore.SearchResult[T], error) {
	query = query.Normalize()
	pattern := likePattern(query.Text)

	var total int
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM `+s.table+` WHERE type = $1 AND `+matchValues,
		s.contentType, pattern).Scan(&total)
	if err != nil {
		return nil, handlePostgresError("search "+s.contentType, err)
	}

	rows, err := s.db.Query(ctx,
		`SELECT `+selectColumns+` FROM `+s.table+`
		WHERE type = $1 AND `+matchValues+`
		ORDER BY updated_at DESC, id ASC LIMIT $3 OFFSET $4`,
		s.contentType, pattern, query.Limit, query.Offset)
	if err != nil {
		return nil, handlePostgresError("search "+s.contentType, err)
	}
	defer rows.Close()

	result := &contentcore.SearchResult[T]{Hits: []*contentcore.Item[T]{}, Total: total}
	for rows.Next() {
		item, err := scanItem[T](rows)
		if err != nil {
			return nil, handlePostgresError("search "+s.contentType, err)
		}
		result.Hits = append(result.Hits, item)
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError("search "+s.contentType, err)
	}
	return result, nil
}

func scanItem[T any](row pgx.Row) (*contentcore.Item[T], error) {
	var (
		item       contentcore.Item[T]
		attributes []byte
	)
	if err := row.Scan(&item.ID, &item.Type, &item.Version, &attributes, &item.CreatedAt, &item.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(attributes, &item.Attributes); err != nil {
		return nil, fmt.Errorf("decode attributes of %s: %w", item.ID, err)
	}
	item.CreatedAt = item.CreatedAt.UTC()
	item.UpdatedAt = item.UpdatedAt.UTC()
	return &item, nil
}

// matchValues is true when any string value in attributes matches the ILIKE
// pattern $2. Keys are not searched. The empty pattern matches every row.
const matchValues = `($2 = '%%' OR EXISTS (
	SELECT 1 FROM jsonb_path_query(attributes, 'strict $.**') AS v(value)
	WHERE jsonb_typeof(v.value) = 'string' AND v.value #>> '{}' ILIKE $2))`

// likePattern escapes ILIKE wildcards in text; backslash is the default escape.
func likePattern(text string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(text) + "%"
}
