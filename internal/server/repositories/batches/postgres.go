package batches

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tooltool/internal/common"
	"github.com/dmitrijs2005/tooltool/internal/dbx"
	"github.com/dmitrijs2005/tooltool/internal/server/models"
)

// PostgresRepository implements batch storage over a dbx.DBTX.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, b *models.Batch) error {
	query := `
		INSERT INTO batches (uploaded, author, message)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	if err := r.db.QueryRowContext(ctx, query, b.Uploaded, b.Author, b.Message).Scan(&b.ID); err != nil {
		return fmt.Errorf("failed to insert batch: %w", err)
	}
	return nil
}

func (r *PostgresRepository) AddFile(ctx context.Context, bf *models.BatchFile) error {
	query := `INSERT INTO batch_files (batch_id, file_id, filename) VALUES ($1, $2, $3)`
	if _, err := r.db.ExecContext(ctx, query, bf.BatchID, bf.FileID, bf.Filename); err != nil {
		return fmt.Errorf("failed to insert batch file: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.Batch, error) {
	query := `SELECT id, uploaded, author, message FROM batches WHERE id=$1`

	var b models.Batch
	err := r.db.QueryRowContext(ctx, query, id).Scan(&b.ID, &b.Uploaded, &b.Author, &b.Message)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to select batch: %w", err)
	}
	b.Uploaded = b.Uploaded.UTC()
	return &b, nil
}

// Search matches batches whose author or message contains q.
func (r *PostgresRepository) Search(ctx context.Context, q string) ([]*models.Batch, error) {
	query := `
		SELECT id, uploaded, author, message FROM batches
		WHERE strpos(author, $1) > 0 OR strpos(message, $1) > 0
		ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query, q)
	if err != nil {
		return nil, fmt.Errorf("failed to select batches: %w", err)
	}
	defer rows.Close()

	var result []*models.Batch
	for rows.Next() {
		var b models.Batch
		if err := rows.Scan(&b.ID, &b.Uploaded, &b.Author, &b.Message); err != nil {
			return nil, err
		}
		b.Uploaded = b.Uploaded.UTC()
		result = append(result, &b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListFiles returns the batch's files ordered by filename.
func (r *PostgresRepository) ListFiles(ctx context.Context, batchID int64) ([]*models.NamedFile, error) {
	query := `
		SELECT bf.filename, f.id, f.sha512, f.size, f.visibility
		FROM batch_files bf JOIN files f ON f.id = bf.file_id
		WHERE bf.batch_id=$1
		ORDER BY bf.filename
	`
	rows, err := r.db.QueryContext(ctx, query, batchID)
	if err != nil {
		return nil, fmt.Errorf("failed to select batch files: %w", err)
	}
	defer rows.Close()

	var result []*models.NamedFile
	for rows.Next() {
		var item models.NamedFile
		var visibility string
		if err := rows.Scan(&item.Filename, &item.File.ID, &item.File.Digest, &item.File.Size, &visibility); err != nil {
			return nil, err
		}
		item.File.Visibility = models.Visibility(visibility)
		result = append(result, &item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
