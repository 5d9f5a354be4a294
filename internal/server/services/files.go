package services

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/tooltool/internal/common"
	"github.com/dmitrijs2005/tooltool/internal/dbx"
	"github.com/dmitrijs2005/tooltool/internal/digest"
	"github.com/dmitrijs2005/tooltool/internal/server/auth"
	"github.com/dmitrijs2005/tooltool/internal/server/models"
)

// Patch operations.
const (
	OpDeleteInstances = "delete_instances"
	OpSetVisibility   = "set_visibility"
)

// PatchOp is one administrative change to a file.
type PatchOp struct {
	Op         string
	Visibility models.Visibility
}

// FileService answers catalog queries about files and applies
// administrative changes.
type FileService struct {
	deps Deps
}

func NewFileService(deps Deps) *FileService {
	return &FileService{deps: deps.withDefaults()}
}

// SearchFiles returns files uploaded under a filename containing q or whose
// digest starts with q.
func (s *FileService) SearchFiles(ctx context.Context, q string) ([]FileView, error) {
	db := s.deps.Repos.Conn()
	found, err := s.deps.Repos.Files(db).Search(ctx, q)
	if err != nil {
		return nil, err
	}
	result := make([]FileView, 0, len(found))
	for _, f := range found {
		v, err := fileView(ctx, s.deps.Repos, db, f, false)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, nil
}

func (s *FileService) GetFile(ctx context.Context, d string) (*FileView, error) {
	if err := digest.Validate(d); err != nil {
		return nil, err
	}
	db := s.deps.Repos.Conn()
	f, err := s.deps.Repos.Files(db).GetByDigest(ctx, d)
	if err != nil {
		return nil, err
	}
	v, err := fileView(ctx, s.deps.Repos, db, f, true)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// PatchFile applies ops in order in one transaction. It requires the manage
// scope, and rejects the whole request before changing anything if any op is
// invalid.
func (s *FileService) PatchFile(ctx context.Context, caller auth.Caller, d string, ops []PatchOp) (*FileView, error) {
	if !caller.HasPermission(common.ScopeManage) {
		return nil, fmt.Errorf("%w: %s scope required", common.ErrorUnauthorized, common.ScopeManage)
	}
	if err := digest.Validate(d); err != nil {
		return nil, err
	}
	for _, op := range ops {
		switch op.Op {
		case OpDeleteInstances:
		case OpSetVisibility:
			if !op.Visibility.Valid() {
				return nil, common.Malformed("bad visibility level %q", op.Visibility)
			}
		case "":
			return nil, common.Malformed("no op")
		default:
			return nil, common.Malformed("unknown op %q", op.Op)
		}
	}

	db := s.deps.Repos.Conn()
	f, err := s.deps.Repos.Files(db).GetByDigest(ctx, d)
	if err != nil {
		return nil, err
	}
	log := s.deps.Log.With("sha512", d, "caller", caller.ID)

	visibility := f.Visibility
	var removed []string
	err = s.deps.Repos.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		for _, op := range ops {
			switch op.Op {
			case OpDeleteInstances:
				regions, err := s.dropInstances(ctx, tx, f)
				if err != nil {
					return err
				}
				removed = append(removed, regions...)
			case OpSetVisibility:
				if err := s.deps.Repos.Files(tx).SetVisibility(ctx, f.ID, op.Visibility); err != nil {
					return err
				}
				visibility = op.Visibility
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if visibility != f.Visibility {
		log.Info(ctx, "changed file visibility", "visibility", visibility)
		f.Visibility = visibility
	}
	if len(removed) > 0 {
		log.Info(ctx, "deleted file instances", "regions", removed)
		s.removeObjects(ctx, f, removed)
	}

	v, err := fileView(ctx, s.deps.Repos, db, f, true)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// dropInstances deletes the instance rows of f and returns their regions.
// Objects are only removed once the rows are gone, so an instance never
// outlives its content.
func (s *FileService) dropInstances(ctx context.Context, tx dbx.DBTX, f *models.File) ([]string, error) {
	regions, err := s.deps.Repos.Instances(tx).ListByFile(ctx, f.ID)
	if err != nil {
		return nil, err
	}
	for _, region := range regions {
		if !s.deps.Regions.Has(region) {
			return nil, common.Misconfigured("no bucket for region %q defined", region)
		}
		if err := s.deps.Repos.Instances(tx).Delete(ctx, f.ID, region); err != nil {
			return nil, err
		}
	}
	return regions, nil
}

// removeObjects deletes the stored content of f in regions. A failure leaves
// an unreferenced object behind and is only logged.
func (s *FileService) removeObjects(ctx context.Context, f *models.File, regions []string) {
	key := digest.KeyName(f.Digest)
	for _, region := range regions {
		if err := s.deps.Store.Delete(ctx, region, key); err != nil {
			s.deps.Log.Error(ctx, "failed to delete object of removed instance",
				"sha512", f.Digest, "region", region, "error", err)
		}
	}
}
