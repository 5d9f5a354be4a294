package pendinguploads

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/tooltool/internal/dbx"
	"github.com/dmitrijs2005/tooltool/internal/server/models"
)

// PostgresRepository implements pending upload storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Upsert(ctx context.Context, pu *models.PendingUpload) error {
	query := `
		INSERT INTO pending_uploads (file_id, region, expires)
		VALUES ($1, $2, $3)
		ON CONFLICT (file_id, region)
		DO UPDATE SET expires = EXCLUDED.expires
	`
	if _, err := r.db.ExecContext(ctx, query, pu.FileID, pu.Region, pu.Expires); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListByFile(ctx context.Context, fileID int64) ([]*models.PendingUpload, error) {
	query := `SELECT file_id, region, expires FROM pending_uploads WHERE file_id=$1 ORDER BY region`
	return r.list(ctx, query, fileID)
}

func (r *PostgresRepository) ListAll(ctx context.Context) ([]*models.PendingUpload, error) {
	query := `SELECT file_id, region, expires FROM pending_uploads ORDER BY expires, file_id, region`
	return r.list(ctx, query)
}

func (r *PostgresRepository) Delete(ctx context.Context, fileID int64, region string, expires time.Time) (bool, error) {
	query := `DELETE FROM pending_uploads WHERE file_id=$1 AND region=$2 AND expires=$3`
	res, err := r.db.ExecContext(ctx, query, fileID, region, expires)
	if err != nil {
		return false, fmt.Errorf("failed to delete pending upload: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n > 0, nil
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]*models.PendingUpload, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select pending uploads: %w", err)
	}
	defer rows.Close()

	var result []*models.PendingUpload
	for rows.Next() {
		var item models.PendingUpload
		if err := rows.Scan(&item.FileID, &item.Region, &item.Expires); err != nil {
			return nil, err
		}
		item.Expires = item.Expires.UTC()
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
