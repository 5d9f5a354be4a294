package instances

import "context"

type Repository interface {
	// Create records a verified instance. It reports false when the
	// instance already existed.
	Create(ctx context.Context, fileID int64, region string) (bool, error)
	ListByFile(ctx context.Context, fileID int64) ([]string, error)
	Delete(ctx context.Context, fileID int64, region string) error
}
