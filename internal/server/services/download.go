package services

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/dmitrijs2005/tooltool/internal/common"
	"github.com/dmitrijs2005/tooltool/internal/digest"
	"github.com/dmitrijs2005/tooltool/internal/server/auth"
	"github.com/dmitrijs2005/tooltool/internal/server/config"
	"github.com/dmitrijs2005/tooltool/internal/server/models"
)

// URLSigner signs CDN URLs for object keys.
type URLSigner interface {
	SignedURL(key string, expires time.Time) (string, error)
}

// DownloadService resolves a digest to a short-lived URL serving verified content.
type DownloadService struct {
	deps            Deps
	cdn             URLSigner
	downloadTTL     time.Duration
	anonymousPublic bool
}

// NewDownloadService builds the resolver. cdn may be nil, in which case
// downloads are redirected to a storage region.
func NewDownloadService(deps Deps, cdn URLSigner, cfg *config.Config) *DownloadService {
	return &DownloadService{
		deps:            deps.withDefaults(),
		cdn:             cdn,
		downloadTTL:     cfg.DownloadExpiresIn,
		anonymousPublic: cfg.AllowAnonymousPublicDownload,
	}
}

// DownloadFile returns the URL to redirect the caller to. Files without a
// verified instance are reported as not found.
func (s *DownloadService) DownloadFile(ctx context.Context, caller auth.Caller, d string, preferredRegion string) (string, error) {
	if err := digest.Validate(d); err != nil {
		return "", err
	}
	db := s.deps.Repos.Conn()
	f, err := s.deps.Repos.Files(db).GetByDigest(ctx, d)
	if err != nil {
		return "", err
	}
	held, err := s.deps.Repos.Instances(db).ListByFile(ctx, f.ID)
	if err != nil {
		return "", err
	}
	if len(held) == 0 {
		return "", common.ErrorNotFound
	}

	if f.Visibility != models.VisibilityPublic || !s.anonymousPublic {
		if !caller.HasPermission(common.DownloadScope(string(f.Visibility))) {
			return "", fmt.Errorf("%w: no permission to download %s files", common.ErrorForbidden, f.Visibility)
		}
	}

	log := s.deps.Log.With("sha512", d, "operation", "download_file")
	key := digest.KeyName(d)

	if s.cdn != nil {
		u, err := s.cdn.SignedURL(key, s.deps.Now().Add(s.downloadTTL))
		if err != nil {
			return "", err
		}
		s.deps.Metrics.Download("cdn")
		log.Info(ctx, "generated signed CDN URL", "expires_in", s.downloadTTL)
		return u, nil
	}

	candidates := s.deps.Regions.Filter(held)
	if len(candidates) == 0 {
		return "", common.Misconfigured("no configured region holds %s", d)
	}
	region := preferredRegion
	if !slices.Contains(candidates, region) {
		region = s.deps.Selector.Pick(candidates)
	}

	u, err := s.deps.Store.PresignGet(ctx, region, key, s.downloadTTL)
	if err != nil {
		return "", err
	}
	s.deps.Metrics.Download("s3")
	log.Info(ctx, "generated signed GET URL", "region", region, "expires_in", s.downloadTTL)
	return u, nil
}
