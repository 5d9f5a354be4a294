package verifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tooltool/internal/common"
	"github.com/dmitrijs2005/tooltool/internal/dbx"
	"github.com/dmitrijs2005/tooltool/internal/digest"
	"github.com/dmitrijs2005/tooltool/internal/logging"
	"github.com/dmitrijs2005/tooltool/internal/server/metrics"
	"github.com/dmitrijs2005/tooltool/internal/server/models"
	"github.com/dmitrijs2005/tooltool/internal/server/regions"
	"github.com/dmitrijs2005/tooltool/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tooltool/internal/server/storage"
	"github.com/dmitrijs2005/tooltool/internal/timex"
)

// Result says what a check did to a grant.
type Result string

const (
	ResultOpen         Result = "open"
	ResultMissing      Result = metrics.OutcomeMissing
	ResultVerified     Result = metrics.OutcomeVerified
	ResultRejected     Result = metrics.OutcomeRejected
	ResultAbandoned    Result = metrics.OutcomeAbandoned
	ResultUnconfigured Result = metrics.OutcomeUnconfigured
)

// Verifier checks pending uploads against stored objects. Checks are
// idempotent and may run concurrently on the same grant.
type Verifier struct {
	repos   repomanager.RepositoryManager
	store   storage.Store
	regions *regions.Regions
	now     timex.Clock
	log     logging.Logger
	metrics *metrics.Metrics
}

func New(repos repomanager.RepositoryManager, store storage.Store, r *regions.Regions, log logging.Logger, m *metrics.Metrics) *Verifier {
	return &Verifier{
		repos:   repos,
		store:   store,
		regions: r,
		now:     timex.UTCNow,
		log:     log.With("module", "verifier"),
		metrics: m,
	}
}

// CheckAll checks every outstanding grant. A failing grant does not stop
// the sweep; all failures are returned joined.
func (v *Verifier) CheckAll(ctx context.Context) error {
	db := v.repos.Conn()
	grants, err := v.repos.PendingUploads(db).ListAll(ctx)
	if err != nil {
		return err
	}

	files := map[int64]*models.File{}
	var errs []error
	for _, g := range grants {
		f, ok := files[g.FileID]
		if !ok {
			f, err = v.repos.Files(db).GetByID(ctx, g.FileID)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			files[g.FileID] = f
		}
		if _, err := v.CheckPendingUpload(ctx, f, g); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CheckFile checks the grants of one digest. An unknown digest is not an error.
func (v *Verifier) CheckFile(ctx context.Context, d string) error {
	db := v.repos.Conn()
	f, err := v.repos.Files(db).GetByDigest(ctx, d)
	if errors.Is(err, common.ErrorNotFound) {
		v.log.Info(ctx, "no file to check", "sha512", d)
		return nil
	}
	if err != nil {
		return err
	}
	grants, err := v.repos.PendingUploads(db).ListByFile(ctx, f.ID)
	if err != nil {
		return err
	}

	var errs []error
	for _, g := range grants {
		if _, err := v.CheckPendingUpload(ctx, f, g); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CheckPendingUpload resolves one grant of f if it can be resolved now.
// Storage is inspected with no transaction open; the catalog change of a
// verdict commits in one transaction afterwards.
func (v *Verifier) CheckPendingUpload(ctx context.Context, f *models.File, g *models.PendingUpload) (Result, error) {
	log := v.log.With("sha512", f.Digest, "region", g.Region)

	switch Schedule(v.now(), g.Expires) {
	case PhaseIssued:
		return ResultOpen, nil
	case PhaseAbandoned:
		log.Info(ctx, "deleting abandoned pending upload")
		return v.finish(ResultAbandoned, v.dropGrant(ctx, g))
	}

	if !v.regions.Has(g.Region) {
		log.Warn(ctx, "pending upload was to an unconfigured region")
		return v.finish(ResultUnconfigured, v.dropGrant(ctx, g))
	}

	key := digest.KeyName(f.Digest)
	info, err := v.store.Head(ctx, g.Region, key)
	if errors.Is(err, storage.ErrObjectNotFound) {
		log.Info(ctx, "object not uploaded yet")
		return v.finish(ResultMissing, nil)
	}
	if err != nil {
		return "", err
	}

	in := Inspection{Info: *info}
	if info.Size == f.Size {
		if in.Sum, err = v.hash(ctx, g.Region, key); err != nil {
			return "", err
		}
	}

	if verdict := Judge(f, in); verdict != nil {
		log.Warn(ctx, "uploaded file is invalid; deleting it", "reason", verdict)
		if err := v.store.Delete(ctx, g.Region, key); err != nil {
			return "", err
		}
		return v.finish(ResultRejected, v.dropGrant(ctx, g))
	}

	// The ACL is not inspected, only forced.
	if err := v.store.SetPrivate(ctx, g.Region, key); err != nil {
		return "", err
	}

	// The evaluated grant is gone when it was resolved concurrently or
	// reissued while the object was read. A reissued grant has an open write
	// window and is left for its own check.
	reissued := false
	err = v.repos.WithTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		deleted, err := v.repos.PendingUploads(tx).Delete(ctx, g.FileID, g.Region, g.Expires)
		if err != nil {
			return err
		}
		if !deleted {
			reissued = true
			return nil
		}
		created, err := v.repos.Instances(tx).Create(ctx, f.ID, g.Region)
		if err != nil {
			return err
		}
		if !created {
			log.Debug(ctx, "instance already recorded")
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	if reissued {
		log.Info(ctx, "pending upload changed during verification")
		return ResultOpen, nil
	}
	log.Info(ctx, "upload verified")
	return v.finish(ResultVerified, nil)
}

func (v *Verifier) hash(ctx context.Context, region, key string) (string, error) {
	rc, err := v.store.Open(ctx, region, key)
	if err != nil {
		return "", err
	}
	defer rc.Close()
	sum, _, err := digest.Sum(rc)
	if err != nil {
		return "", fmt.Errorf("read object: %w", err)
	}
	return sum, nil
}

func (v *Verifier) dropGrant(ctx context.Context, g *models.PendingUpload) error {
	_, err := v.repos.PendingUploads(v.repos.Conn()).Delete(ctx, g.FileID, g.Region, g.Expires)
	return err
}

func (v *Verifier) finish(r Result, err error) (Result, error) {
	if err != nil {
		return "", err
	}
	v.metrics.Verification(string(r))
	return r, nil
}
