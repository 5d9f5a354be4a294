package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/tooltool/internal/dbx"
	"github.com/dmitrijs2005/tooltool/internal/server/models"
	"github.com/dmitrijs2005/tooltool/internal/server/repositories/repomanager"
)

// FileView is a file as reported to API callers. Instances is filled only
// when requested.
type FileView struct {
	File         models.File
	HasInstances bool
	Instances    []string
}

// BatchView is a batch and the files it references by filename.
type BatchView struct {
	Batch models.Batch
	Files map[string]FileView
}

func fileView(ctx context.Context, repos repomanager.RepositoryManager, db dbx.DBTX, f *models.File, withInstances bool) (FileView, error) {
	regions, err := repos.Instances(db).ListByFile(ctx, f.ID)
	if err != nil {
		return FileView{}, err
	}
	v := FileView{File: *f, HasInstances: len(regions) > 0}
	if withInstances {
		v.Instances = regions
		if v.Instances == nil {
			v.Instances = []string{}
		}
	}
	return v, nil
}

func batchView(ctx context.Context, repos repomanager.RepositoryManager, db dbx.DBTX, b *models.Batch) (BatchView, error) {
	named, err := repos.Batches(db).ListFiles(ctx, b.ID)
	if err != nil {
		return BatchView{}, err
	}
	v := BatchView{Batch: *b, Files: make(map[string]FileView, len(named))}
	for _, nf := range named {
		fv, err := fileView(ctx, repos, db, &nf.File, false)
		if err != nil {
			return BatchView{}, err
		}
		v.Files[nf.Filename] = fv
	}
	return v, nil
}

// retryAfter is the hint returned while a grant is still open: whole seconds
// remaining plus one to absorb rounding and clock skew.
func retryAfter(remaining time.Duration) time.Duration {
	return time.Duration(1+int64(remaining/time.Second)) * time.Second
}
