// Package replicator copies verified content to every configured region
// that does not hold it yet.
package replicator

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/tooltool/internal/digest"
	"github.com/dmitrijs2005/tooltool/internal/logging"
	"github.com/dmitrijs2005/tooltool/internal/server/metrics"
	"github.com/dmitrijs2005/tooltool/internal/server/models"
	"github.com/dmitrijs2005/tooltool/internal/server/regions"
	"github.com/dmitrijs2005/tooltool/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tooltool/internal/server/storage"
)

type Replicator struct {
	repos    repomanager.RepositoryManager
	store    storage.Store
	regions  *regions.Regions
	selector regions.Selector
	log      logging.Logger
	metrics  *metrics.Metrics
}

// New builds a Replicator. sel picks the copy source among the configured
// regions holding a file; nil means the first in region order.
func New(repos repomanager.RepositoryManager, store storage.Store, r *regions.Regions, sel regions.Selector, log logging.Logger, m *metrics.Metrics) *Replicator {
	if sel == nil {
		sel = regions.FirstSelector{}
	}
	return &Replicator{
		repos:    repos,
		store:    store,
		regions:  r,
		selector: sel,
		log:      log.With("module", "replicator"),
		metrics:  m,
	}
}

// Run replicates every file held in fewer regions than are configured.
// Failures of one file do not stop the others.
func (r *Replicator) Run(ctx context.Context) error {
	files, err := r.repos.Files(r.repos.Conn()).ListUnderReplicated(ctx, r.regions.Len())
	if err != nil {
		return err
	}
	r.log.Info(ctx, "replicating files", "count", len(files))

	var errs []error
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.ReplicateFile(ctx, f); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ReplicateFile copies f from one configured region holding it to every
// configured region missing it. Each copy is recorded as soon as it
// completes.
func (r *Replicator) ReplicateFile(ctx context.Context, f *models.File) error {
	log := r.log.With("sha512", f.Digest)
	db := r.repos.Conn()

	held, err := r.repos.Instances(db).ListByFile(ctx, f.ID)
	if err != nil {
		return err
	}
	sources := r.regions.Filter(held)
	if len(sources) == 0 {
		log.Warn(ctx, "no source for replication; all instances are in unconfigured regions", "instances", held)
		r.metrics.Replication(metrics.OutcomeSkipped)
		return nil
	}
	source := r.selector.Pick(sources)
	key := digest.KeyName(f.Digest)

	var errs []error
	for _, target := range r.regions.Missing(held) {
		if err := r.store.Copy(ctx, source, target, key); err != nil {
			log.Error(ctx, "copy failed", "source", source, "target", target, "error", err)
			r.metrics.Replication(metrics.OutcomeFailed)
			errs = append(errs, err)
			continue
		}
		created, err := r.repos.Instances(db).Create(ctx, f.ID, target)
		if err != nil {
			r.metrics.Replication(metrics.OutcomeFailed)
			errs = append(errs, err)
			continue
		}
		if !created {
			log.Debug(ctx, "instance recorded concurrently", "target", target)
		}
		r.metrics.Replication(metrics.OutcomeCopied)
		log.Info(ctx, "replicated file", "source", source, "target", target)
	}
	return errors.Join(errs...)
}
