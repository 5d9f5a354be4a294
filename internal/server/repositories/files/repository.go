package files

import (
	"context"

	"github.com/dmitrijs2005/tooltool/internal/server/models"
)

type Repository interface {
	// GetOrCreate inserts a file for digest unless one exists. created
	// reports whether this call inserted it; otherwise the stored row is returned.
	GetOrCreate(ctx context.Context, digest string, size int64, visibility models.Visibility) (file *models.File, created bool, err error)
	GetByDigest(ctx context.Context, digest string) (*models.File, error)
	GetByID(ctx context.Context, id int64) (*models.File, error)
	Search(ctx context.Context, q string) ([]*models.File, error)
	SetVisibility(ctx context.Context, id int64, visibility models.Visibility) error
	ListUnderReplicated(ctx context.Context, regionCount int) ([]*models.File, error)
}
