package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/tooltool/internal/common"
	"github.com/dmitrijs2005/tooltool/internal/dbx"
	"github.com/dmitrijs2005/tooltool/internal/digest"
	"github.com/dmitrijs2005/tooltool/internal/server/auth"
	"github.com/dmitrijs2005/tooltool/internal/server/config"
	"github.com/dmitrijs2005/tooltool/internal/server/models"
	"github.com/dmitrijs2005/tooltool/internal/server/notify"
)

// FileSpec is the client's claim about one file of a batch.
type FileSpec struct {
	Algorithm  string
	Digest     string
	Size       int64
	Visibility models.Visibility
}

// UploadRequest describes a batch to upload. Author must be unset: the
// author is always the authenticated caller.
type UploadRequest struct {
	Message string
	Author  *string
	Files   map[string]FileSpec
}

// UploadedFile echoes a FileSpec. PutURL is empty when the content is
// already stored and no write is needed.
type UploadedFile struct {
	FileSpec
	PutURL string
}

// UploadResult is the created batch.
type UploadResult struct {
	BatchID  int64
	Author   string
	Message  string
	Uploaded time.Time
	Files    map[string]UploadedFile
}

// UploadService issues upload grants and reports on batches.
type UploadService struct {
	deps      Deps
	publisher notify.Publisher
	uploadTTL time.Duration
}

func NewUploadService(deps Deps, publisher notify.Publisher, cfg *config.Config) *UploadService {
	if publisher == nil {
		publisher = notify.NopPublisher{}
	}
	return &UploadService{
		deps:      deps.withDefaults(),
		publisher: publisher,
		uploadTTL: cfg.UploadExpiresIn,
	}
}

// UploadBatch records the batch and returns a signed PUT URL for every file
// whose content has not been verified yet. All catalog writes of the batch
// commit together.
func (s *UploadService) UploadBatch(ctx context.Context, caller auth.Caller, req *UploadRequest, preferredRegion string) (*UploadResult, error) {
	if req.Message == "" {
		return nil, common.Malformed("message must be non-empty")
	}
	if len(req.Files) == 0 {
		return nil, common.Malformed("a batch must include at least one file")
	}
	if req.Author != nil {
		return nil, common.Malformed("author must not be specified for upload")
	}

	region := s.deps.Regions.Target(preferredRegion, s.deps.Selector)
	if region == "" {
		return nil, common.Misconfigured("no storage regions configured")
	}

	visibilities := map[models.Visibility]struct{}{}
	for _, spec := range req.Files {
		visibilities[spec.Visibility] = struct{}{}
	}
	for v := range visibilities {
		if !v.Valid() {
			return nil, common.Malformed("bad visibility level %q", v)
		}
		if !caller.HasPermission(common.UploadScope(string(v))) {
			return nil, fmt.Errorf("%w: no permission to upload %s files", common.ErrorForbidden, v)
		}
	}

	filenames := make([]string, 0, len(req.Files))
	for name := range req.Files {
		filenames = append(filenames, name)
	}
	sort.Strings(filenames)

	log := s.deps.Log.With("operation", "upload", "caller", caller.ID)
	result := &UploadResult{
		Author:   caller.ID,
		Message:  req.Message,
		Uploaded: s.deps.Now(),
		Files:    make(map[string]UploadedFile, len(req.Files)),
	}
	var grants []string

	err := s.deps.Repos.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		batch := &models.Batch{Uploaded: result.Uploaded, Author: result.Author, Message: result.Message}
		if err := s.deps.Repos.Batches(tx).Create(ctx, batch); err != nil {
			return err
		}
		result.BatchID = batch.ID

		for _, name := range filenames {
			spec := req.Files[name]
			file, putURL, err := s.prepareFile(ctx, tx, region, name, spec)
			if err != nil {
				return err
			}
			if putURL != "" {
				grants = append(grants, spec.Digest)
				log.Info(ctx, "issued upload grant", "sha512", spec.Digest, "region", region, "expires_in", s.uploadTTL)
			}
			err = s.deps.Repos.Batches(tx).AddFile(ctx, &models.BatchFile{BatchID: batch.ID, FileID: file.ID, Filename: name})
			if err != nil {
				return err
			}
			result.Files[name] = UploadedFile{FileSpec: spec, PutURL: putURL}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for range grants {
		s.deps.Metrics.GrantIssued(region)
	}
	return result, nil
}

// prepareFile finds or creates the file for spec and, unless its content is
// already verified somewhere, issues a grant for region.
func (s *UploadService) prepareFile(ctx context.Context, tx dbx.DBTX, region, name string, spec FileSpec) (*models.File, string, error) {
	if spec.Algorithm != digest.Algorithm {
		return nil, "", common.Malformed("%q is the only allowed digest algorithm", digest.Algorithm)
	}
	if err := digest.Validate(spec.Digest); err != nil {
		return nil, "", err
	}
	if spec.Size < 0 {
		return nil, "", common.Malformed("negative size for %s", name)
	}

	files := s.deps.Repos.Files(tx)
	file, created, err := files.GetOrCreate(ctx, spec.Digest, spec.Size, spec.Visibility)
	if err != nil {
		return nil, "", err
	}

	if !created {
		if file.Visibility != spec.Visibility {
			return nil, "", common.Malformed("cannot change already existing file's visibility level")
		}
		instances, err := s.deps.Repos.Instances(tx).ListByFile(ctx, file.ID)
		if err != nil {
			return nil, "", err
		}
		if len(instances) > 0 {
			if file.Size != spec.Size {
				return nil, "", common.Malformed("size mismatch for %s", name)
			}
			return file, "", nil
		}
	}

	putURL, err := s.deps.Store.PresignPut(ctx, region, digest.KeyName(spec.Digest), s.uploadTTL)
	if err != nil {
		return nil, "", err
	}
	grant := &models.PendingUpload{FileID: file.ID, Region: region, Expires: s.deps.Now().Add(s.uploadTTL)}
	if err := s.deps.Repos.PendingUploads(tx).Upsert(ctx, grant); err != nil {
		return nil, "", err
	}
	return file, putURL, nil
}

// MarkUploadComplete asks for the pending uploads of d to be verified. While
// any grant for d is still open it returns a *common.ConflictError; otherwise
// a check notification is published. Publish failures are logged only, as
// the periodic sweep checks every grant anyway.
func (s *UploadService) MarkUploadComplete(ctx context.Context, d string) error {
	if err := digest.Validate(d); err != nil {
		return err
	}
	log := s.deps.Log.With("sha512", d)

	file, err := s.deps.Repos.Files(s.deps.Repos.Conn()).GetByDigest(ctx, d)
	switch {
	case errors.Is(err, common.ErrorNotFound):
	case err != nil:
		return err
	default:
		grants, err := s.deps.Repos.PendingUploads(s.deps.Repos.Conn()).ListByFile(ctx, file.ID)
		if err != nil {
			return err
		}
		now := s.deps.Now()
		var remaining time.Duration
		for _, g := range grants {
			if left := g.Expires.Sub(now); left > remaining {
				remaining = left
			}
		}
		if remaining > 0 {
			return &common.ConflictError{RetryAfter: retryAfter(remaining)}
		}
	}

	if err := s.publisher.Publish(ctx, common.RouteCheckFilePendingUploads, notify.CheckFile{Digest: d}); err != nil {
		log.Error(ctx, "cannot send check notification", "error", err)
		return nil
	}
	log.Info(ctx, "sent check notification", "route", common.RouteCheckFilePendingUploads)
	return nil
}

// SearchBatches returns batches whose author or message contains q.
func (s *UploadService) SearchBatches(ctx context.Context, q string) ([]BatchView, error) {
	db := s.deps.Repos.Conn()
	found, err := s.deps.Repos.Batches(db).Search(ctx, q)
	if err != nil {
		return nil, err
	}
	result := make([]BatchView, 0, len(found))
	for _, b := range found {
		v, err := batchView(ctx, s.deps.Repos, db, b)
		if err != nil {
			return nil, err
		}
		result = append(result, v)
	}
	return result, nil
}

func (s *UploadService) GetBatch(ctx context.Context, id int64) (*BatchView, error) {
	db := s.deps.Repos.Conn()
	b, err := s.deps.Repos.Batches(db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	v, err := batchView(ctx, s.deps.Repos, db, b)
	if err != nil {
		return nil, err
	}
	return &v, nil
}
