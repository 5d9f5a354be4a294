package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tooltool/internal/common"
	"github.com/dmitrijs2005/tooltool/internal/dbx"
	"github.com/dmitrijs2005/tooltool/internal/server/models"
)

// PostgresRepository implements file storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(s scanner) (*models.File, error) {
	var f models.File
	var visibility string
	if err := s.Scan(&f.ID, &f.Digest, &f.Size, &visibility); err != nil {
		return nil, err
	}
	f.Visibility = models.Visibility(visibility)
	return &f, nil
}

// GetOrCreate relies on the unique sha512 constraint: a concurrent insert of
// the same digest makes this one a no-op and the winner's row is read back.
func (r *PostgresRepository) GetOrCreate(ctx context.Context, digest string, size int64, visibility models.Visibility) (*models.File, bool, error) {
	query := `
		INSERT INTO files (sha512, size, visibility)
		VALUES ($1, $2, $3)
		ON CONFLICT (sha512) DO NOTHING
		RETURNING id, sha512, size, visibility
	`
	f, err := scanFile(r.db.QueryRowContext(ctx, query, digest, size, string(visibility)))
	if err == nil {
		return f, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("failed to insert file: %w", err)
	}

	f, err = r.GetByDigest(ctx, digest)
	if err != nil {
		return nil, false, err
	}
	return f, false, nil
}

// GetByDigest returns common.ErrorNotFound when no file has the digest.
func (r *PostgresRepository) GetByDigest(ctx context.Context, digest string) (*models.File, error) {
	query := `SELECT id, sha512, size, visibility FROM files WHERE sha512=$1`
	f, err := scanFile(r.db.QueryRowContext(ctx, query, digest))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select file: %w", err)
	}
	return f, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.File, error) {
	query := `SELECT id, sha512, size, visibility FROM files WHERE id=$1`
	f, err := scanFile(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select file: %w", err)
	}
	return f, nil
}

// Search matches files uploaded under a filename containing q, or whose
// digest starts with q.
func (r *PostgresRepository) Search(ctx context.Context, q string) ([]*models.File, error) {
	query := `
		SELECT DISTINCT f.id, f.sha512, f.size, f.visibility
		FROM files f JOIN batch_files bf ON bf.file_id = f.id
		WHERE strpos(bf.filename, $1) > 0 OR left(f.sha512, length($1)) = $1
		ORDER BY f.id
	`
	return r.list(ctx, query, q)
}

func (r *PostgresRepository) SetVisibility(ctx context.Context, id int64, visibility models.Visibility) error {
	query := `UPDATE files SET visibility=$2 WHERE id=$1`
	res, err := r.db.ExecContext(ctx, query, id, string(visibility))
	if err != nil {
		return fmt.Errorf("failed to update visibility: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

// ListUnderReplicated returns files having at least one instance but fewer
// than regionCount.
func (r *PostgresRepository) ListUnderReplicated(ctx context.Context, regionCount int) ([]*models.File, error) {
	query := `
		SELECT f.id, f.sha512, f.size, f.visibility
		FROM files f
		JOIN (SELECT file_id, COUNT(*) AS instance_count FROM file_instances GROUP BY file_id) i
			ON i.file_id = f.id
		WHERE i.instance_count < $1
		ORDER BY f.id
	`
	return r.list(ctx, query, regionCount)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.File, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*models.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
