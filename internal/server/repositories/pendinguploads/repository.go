package pendinguploads

import (
	"context"
	"time"

	"github.com/dmitrijs2005/tooltool/internal/server/models"
)

type Repository interface {
	// Upsert stores the grant; an existing grant for the same file and region
	// takes the new expiry.
	Upsert(ctx context.Context, pu *models.PendingUpload) error
	ListByFile(ctx context.Context, fileID int64) ([]*models.PendingUpload, error)
	ListAll(ctx context.Context) ([]*models.PendingUpload, error)
	// Delete removes the grant only if it still carries expires. It reports
	// whether a row was removed.
	Delete(ctx context.Context, fileID int64, region string, expires time.Time) (bool, error)
}
