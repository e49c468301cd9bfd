package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"github.com/maneesh/mailattach/internal/attachment"
	"github.com/maneesh/mailattach/internal/models"
	"github.com/maneesh/mailattach/internal/storage/migrations"
	"github.com/pressly/goose/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// TiDBClient indexes published attachments in TiDB
type TiDBClient struct {
	db *sql.DB
}

// NewTiDBClient opens and pings the database, then applies migrations
func NewTiDBClient(ctx context.Context, dsn string) (*TiDBClient, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)

	tc := NewTiDBClientFromDB(db)
	if err := tc.RunMigrations(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return tc, nil
}

// NewTiDBClientFromDB wraps an existing connection pool
func NewTiDBClientFromDB(db *sql.DB) *TiDBClient {
	return &TiDBClient{db: db}
}

// Close closes the database connection
func (tc *TiDBClient) Close() error {
	return tc.db.Close()
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded schema migrations
func (tc *TiDBClient) RunMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("mysql"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := gooseUpContext(ctx, tc.db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// CreateAttachment records a published manifest. Re-publishing identical
// content yields the same handle and leaves the existing row in place.
func (tc *TiDBClient) CreateAttachment(ctx context.Context, a *models.Attachment) error {
	ctx, span := tracer.Start(ctx, "tidb.create_attachment",
		trace.WithAttributes(
			attribute.String("attachment_id", a.ID),
			attribute.String("manifest_handle", a.ManifestHandle),
			attribute.String("file_name", a.Filename),
		),
	)
	defer span.End()

	query := `INSERT INTO attachments (id, manifest_handle, filename, filetype, size, data_hash, chunk_count, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			  ON DUPLICATE KEY UPDATE manifest_handle = manifest_handle`

	_, err := tc.db.ExecContext(ctx, query,
		a.ID, a.ManifestHandle, a.Filename, a.FileType, a.Size, a.DataHash, a.ChunkCount, a.CreatedAt)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to insert attachment: %w", err)
	}
	return nil
}

// GetAttachment looks up the index row for a manifest handle
func (tc *TiDBClient) GetAttachment(ctx context.Context, handle string) (*models.Attachment, error) {
	ctx, span := tracer.Start(ctx, "tidb.get_attachment",
		trace.WithAttributes(attribute.String("manifest_handle", handle)),
	)
	defer span.End()

	query := `SELECT id, manifest_handle, filename, filetype, size, data_hash, chunk_count, created_at
			  FROM attachments WHERE manifest_handle = ?`

	var a models.Attachment
	err := tc.db.QueryRowContext(ctx, query, handle).Scan(
		&a.ID, &a.ManifestHandle, &a.Filename, &a.FileType, &a.Size, &a.DataHash, &a.ChunkCount, &a.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		span.SetAttributes(attribute.Bool("found", false))
		return nil, fmt.Errorf("attachment %s: %w", handle, attachment.ErrNotFound)
	} else if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query attachment: %w", err)
	}

	span.SetAttributes(attribute.Bool("found", true))
	return &a, nil
}

// ListAttachments returns the most recently published attachments first
func (tc *TiDBClient) ListAttachments(ctx context.Context, limit int) ([]*models.Attachment, error) {
	ctx, span := tracer.Start(ctx, "tidb.list_attachments",
		trace.WithAttributes(attribute.Int("limit", limit)),
	)
	defer span.End()

	query := `SELECT id, manifest_handle, filename, filetype, size, data_hash, chunk_count, created_at
			  FROM attachments
			  ORDER BY created_at DESC
			  LIMIT ?`

	rows, err := tc.db.QueryContext(ctx, query, limit)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to query attachments: %w", err)
	}
	defer rows.Close()

	var list []*models.Attachment
	for rows.Next() {
		var a models.Attachment
		if err := rows.Scan(
			&a.ID, &a.ManifestHandle, &a.Filename, &a.FileType, &a.Size, &a.DataHash, &a.ChunkCount, &a.CreatedAt,
		); err != nil {
			span.RecordError(err)
			return nil, fmt.Errorf("failed to scan attachment: %w", err)
		}
		list = append(list, &a)
	}

	if err := rows.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("error iterating attachments: %w", err)
	}

	span.SetAttributes(attribute.Int("attachment_count", len(list)))
	return list, nil
}
