package batches

import (
	"context"

	"github.com/dmitrijs2005/tooltool/internal/server/models"
)

type Repository interface {
	// Create inserts the batch and sets its ID.
	Create(ctx context.Context, b *models.Batch) error
	AddFile(ctx context.Context, bf *models.BatchFile) error
	GetByID(ctx context.Context, id int64) (*models.Batch, error)
	Search(ctx context.Context, q string) ([]*models.Batch, error)
	ListFiles(ctx context.Context, batchID int64) ([]*models.NamedFile, error)
}
