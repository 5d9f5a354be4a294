package instances

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/tooltool/internal/dbx"
)

// PostgresRepository implements instance storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts (fileID, region). A concurrent verifier inserting the same
// pair loses the race silently.
func (r *PostgresRepository) Create(ctx context.Context, fileID int64, region string) (bool, error) {
	query := `
		INSERT INTO file_instances (file_id, region)
		VALUES ($1, $2)
		ON CONFLICT (file_id, region) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query, fileID, region)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected error: %w", err)
	}
	return n == 1, nil
}

// ListByFile returns the regions holding fileID, sorted by name.
func (r *PostgresRepository) ListByFile(ctx context.Context, fileID int64) ([]string, error) {
	query := `SELECT region FROM file_instances WHERE file_id=$1 ORDER BY region`
	rows, err := r.db.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to select instances: %w", err)
	}
	defer rows.Close()

	var result []string
	for rows.Next() {
		var region string
		if err := rows.Scan(&region); err != nil {
			return nil, err
		}
		result = append(result, region)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, fileID int64, region string) error {
	query := `DELETE FROM file_instances WHERE file_id=$1 AND region=$2`
	if _, err := r.db.ExecContext(ctx, query, fileID, region); err != nil {
		return fmt.Errorf("failed to delete instance: %w", err)
	}
	return nil
}
